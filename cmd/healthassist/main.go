package main

import "os"

func main() {
	rc, _ := Cli(os.Args[1:], NewCliConfig())
	os.Exit(rc)
}
