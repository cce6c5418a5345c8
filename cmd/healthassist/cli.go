package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"HealthAssist/internal/assistant"
	"HealthAssist/internal/capture"
	"HealthAssist/internal/config"

	"github.com/alecthomas/kong"
)

type cmdAsk struct {
	Prompt string `short:"m" help:"Ask a single question and exit instead of chatting."`
	Stdin  bool   `help:"Read a single question from stdin, such as a speech transcript."`
	Mic    bool   `help:"Dictate the question with the microphone."`
}

type cmdDietPlan struct {
	Age         string `required:"" help:"Age in years."`
	Weight      string `required:"" help:"Weight in kg."`
	DietType    string `default:"veg" enum:"veg,non-veg,vegan,keto,paleo,mediterranean" help:"One of veg, non-veg, vegan, keto, paleo, mediterranean."`
	Allergies   string `help:"Foods to avoid."`
	CalorieGoal string `help:"Daily calorie goal."`
	HealthGoal  string `help:"For example weight loss or muscle gain."`
	Save        bool   `help:"Save every plan line to favorites."`
}

type cmdDietTip struct{}

type cmdFavList struct{}

type cmdFavItem struct {
	Item string `arg:"" help:"Recommendation text."`
}

type cmdFavorites struct {
	List   cmdFavList `cmd:"" help:"List saved recommendations."`
	Add    cmdFavItem `cmd:"" help:"Save a recommendation."`
	Remove cmdFavItem `cmd:"" help:"Remove a saved recommendation."`
}

type cmdWaterShow struct {
	Weight string `help:"Weight in kg used for the recommended intake."`
}

type cmdWaterAdd struct{}

type cmdWaterReset struct{}

type cmdWater struct {
	Show  cmdWaterShow  `cmd:"" help:"Show today's intake against the recommendation."`
	Add   cmdWaterAdd   `cmd:"" help:"Log one glass of water."`
	Reset cmdWaterReset `cmd:"" help:"Reset the intake to zero."`
}

type cmdDiet struct {
	Plan      cmdDietPlan  `cmd:"" help:"Create a personalised diet plan."`
	Tip       cmdDietTip   `cmd:"" help:"Show the healthy eating tip of the day."`
	Favorites cmdFavorites `cmd:"" help:"Manage saved diet recommendations."`
	Water     cmdWater     `cmd:"" help:"Track daily water intake."`
}

// cmdReport, cmdSkin and cmdTablet take an image file or a data: URI
type cmdReport struct {
	Image  string `short:"i" help:"Photo of the report."`
	Camera bool   `help:"Take the photo with the camera."`
}

type cmdSkin struct {
	Problem []string `arg:"" optional:"" help:"Description of the skin problem."`
	Image   string   `short:"i" help:"Photo of the affected skin."`
	Camera  bool     `help:"Take the photo with the camera."`
}

type cmdTablet struct {
	Image  string `short:"i" help:"Photo of the tablet or tonic."`
	Camera bool   `help:"Take the photo with the camera."`
}

type cliArgs struct {
	Config string `short:"c" type:"path" help:"TOML configuration file."`
	Debug  bool   `help:"Log at debug level."`
	TXT    string `name:"txt" type:"path" help:"Also save the result or transcript as text to this file."`
	PDF    string `name:"pdf" type:"path" help:"Also save the result or transcript as PDF to this file."`
	Copy   bool   `help:"Also copy the result or transcript to the clipboard."`

	Ask    cmdAsk    `cmd:"" help:"Chat with the doctor assistant."`
	Diet   cmdDiet   `cmd:"" help:"Diet plans, tips, favorites and water tracking."`
	Report cmdReport `cmd:"" help:"Analyze a photo of a medical report."`
	Skin   cmdSkin   `cmd:"" help:"Suggest home remedies for a skin problem, or one per line on stdin when none is given."`
	Tablet cmdTablet `cmd:"" help:"Identify a tablet or tonic from a photo and chat about it."`
}

// CliConfig contains the configuration for the healthassist cli
type CliConfig struct {
	Name        string
	Description string
	// Exit is called by kong after printing help
	Exit   func(int)
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Clipboard receives copied text; the system clipboard when nil
	Clipboard func(text string) error
}

// NewCliConfig returns a CliConfig bound to the process stdio
func NewCliConfig() *CliConfig {
	return &CliConfig{
		Name:        "healthassist",
		Description: "A terminal health assistant: doctor Q&A, diet plans, report analysis, skin remedies and tablet identification.",
		Exit:        os.Exit,
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		Clipboard:   capture.CopyText,
	}
}

// Cli parses args and runs the selected subcommand. rc is 2 for usage
// errors and 1 for failed commands.
func Cli(args []string, cc *CliConfig) (rc int, err error) {
	var cli cliArgs

	parser, err := kong.New(&cli,
		kong.Name(cc.Name),
		kong.Description(cc.Description),
		kong.Exit(cc.Exit),
		kong.Writers(cc.Stdout, cc.Stderr),
	)
	if err != nil {
		return 1, err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		parser.Errorf("%s", err)
		return 2, err
	}

	cfg, err := config.Load(cli.Config)
	if err != nil {
		fmt.Fprintf(cc.Stderr, "Error: %v\n", err)
		return 1, err
	}
	if cli.Debug {
		cfg.Debug = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx, cfg, cc)
	if err != nil {
		fmt.Fprintf(cc.Stderr, "Failed to initialize: %v\n", err)
		return 1, err
	}
	defer a.Close()
	a.txtPath = cli.TXT
	a.pdfPath = cli.PDF
	a.toClipboard = cli.Copy

	cmd := kctx.Command()
	a.logger.Info("running command", "command", cmd)

	switch cmd {
	case "ask":
		err = a.ask(ctx, cli.Ask)
	case "diet plan":
		err = a.dietPlan(ctx, cli.Diet.Plan)
	case "diet tip":
		err = a.dietTip(ctx)
	case "diet favorites list":
		err = a.favoritesList(ctx)
	case "diet favorites add <item>":
		err = a.favoritesAdd(ctx, cli.Diet.Favorites.Add.Item)
	case "diet favorites remove <item>":
		err = a.favoritesRemove(ctx, cli.Diet.Favorites.Remove.Item)
	case "diet water show":
		err = a.waterShow(ctx, cli.Diet.Water.Show.Weight)
	case "diet water add":
		err = a.waterAdd(ctx)
	case "diet water reset":
		err = a.waterReset(ctx)
	case "report":
		err = a.report(ctx, cli.Report)
	case "skin", "skin <problem>":
		err = a.skin(ctx, cli.Skin)
	case "tablet":
		err = a.tablet(ctx, cli.Tablet)
	default:
		err = fmt.Errorf("unrecognized command: %s", cmd)
	}

	if err != nil {
		a.logger.Error("command failed", "command", cmd, "error", err)
		fmt.Fprintln(cc.Stderr, assistant.StatusMessage(err))
		return 1, err
	}
	return 0, nil
}
