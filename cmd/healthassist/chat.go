package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"HealthAssist/internal/assistant"
	"HealthAssist/internal/chatbot"
	"HealthAssist/internal/export"
	"HealthAssist/internal/markup"
	"HealthAssist/internal/session"
)

const chatHelp = `Commands:
  /history            show the conversation so far
  /retry              resend the last question after a failure
  /clear              start over
  /copy               copy the conversation to the clipboard
  /export-txt [path]  save the conversation as text
  /export-pdf [path]  save the conversation as PDF
  /quit               exit`

// chatLoop runs an interactive conversation on stdin. A non-nil first
// prompt is sent before reading any input.
func (a *app) chatLoop(ctx context.Context, title string, first *chatbot.Prompt) error {
	fmt.Fprintf(a.stdout, "=== %s ===\n", title)
	fmt.Fprintf(a.stdout, "Conversation: %s\n", a.bot.Conversation().ID)
	fmt.Fprintln(a.stdout, "Type /help for commands, /quit to exit")
	fmt.Fprintln(a.stdout)

	if first != nil {
		a.printReply(a.bot.SendPrompt(ctx, *first))
	}

	scanner := a.lines()
	for {
		fmt.Fprint(a.stdout, "You: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldQuit, err := a.handleCommand(ctx, title, input)
			if err != nil {
				fmt.Fprintf(a.stdout, "Error: %s\n", assistant.StatusMessage(err))
				a.logger.Error("command error", "command", input, "error", err)
			}
			if shouldQuit {
				break
			}
			continue
		}

		a.printReply(a.bot.Send(ctx, input))
		if ctx.Err() != nil {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	if err := a.export(title, export.Transcript(a.bot.Conversation().Turns())); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, "Goodbye!")
	return nil
}

func (a *app) printReply(turn session.Turn, err error) {
	if err == nil {
		fmt.Fprintf(a.stdout, "Bot: %s\n\n", markup.Terminal(turn.Markup))
		return
	}

	a.logger.Error("failed to send message", "error", err)
	fmt.Fprintf(a.stdout, "Bot: %s\n", assistant.StatusMessage(err))
	if !errors.Is(err, chatbot.ErrBusy) && !errors.Is(err, chatbot.ErrEmptyQuestion) {
		fmt.Fprintln(a.stdout, "Type /retry to try again.")
	}
	fmt.Fprintln(a.stdout)
}

func (a *app) handleCommand(ctx context.Context, title, input string) (bool, error) {
	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(a.stdout, chatHelp)
	case "/clear":
		a.bot.Clear()
		fmt.Fprintln(a.stdout, "Conversation cleared.")
	case "/copy":
		if err := a.copyText(export.Transcript(a.bot.Conversation().Turns())); err != nil {
			return false, err
		}
		fmt.Fprintln(a.stdout, "Copied conversation to clipboard.")
	case "/history":
		for _, turn := range a.bot.History() {
			if turn.Role == session.RoleUser {
				fmt.Fprintf(a.stdout, "You: %s\n", turn.Text)
				continue
			}
			fmt.Fprintf(a.stdout, "Bot: %s\n", markup.Terminal(turn.Markup))
		}
	case "/retry":
		turn, err := a.bot.Resend(ctx)
		if errors.Is(err, chatbot.ErrNothingToRetry) {
			return false, err
		}
		a.printReply(turn, err)
	case "/export-txt":
		path := exportPath(arg, title, ".txt")
		text := export.Transcript(a.bot.Conversation().Turns())
		if err := export.ToFile(path, func(w io.Writer) error { return export.WriteTXT(w, text) }); err != nil {
			return false, err
		}
		fmt.Fprintf(a.stdout, "Saved %s\n", path)
	case "/export-pdf":
		path := exportPath(arg, title, ".pdf")
		text := export.Transcript(a.bot.Conversation().Turns())
		if err := export.ToFile(path, func(w io.Writer) error { return export.WritePDF(w, title, text, a.pdfOptions()...) }); err != nil {
			return false, err
		}
		fmt.Fprintf(a.stdout, "Saved %s\n", path)
	default:
		return false, fmt.Errorf("unknown command: %s", cmd)
	}
	return false, nil
}

// skinLoop answers one skin problem per input line. /again asks the last
// problem again, which the chatbot answers from its cache.
func (a *app) skinLoop(ctx context.Context) error {
	fmt.Fprintf(a.stdout, "=== %s ===\n", titleSkin)
	fmt.Fprintln(a.stdout, "Describe a skin problem per line. /again repeats the last one, /copy copies the last answer, /quit exits")
	fmt.Fprintln(a.stdout)

	var last, lastAnswer string
	var results []string
	scanner := a.lines()
loop:
	for {
		fmt.Fprint(a.stdout, "Problem: ")
		if !scanner.Scan() {
			break
		}

		problem := strings.TrimSpace(scanner.Text())
		switch problem {
		case "":
			continue
		case "/quit", "/exit":
			break loop
		case "/copy":
			if lastAnswer == "" {
				fmt.Fprintln(a.stdout, "Nothing to copy yet.")
				continue
			}
			if err := a.copyText(lastAnswer); err != nil {
				fmt.Fprintf(a.stdout, "Error: %s\n", assistant.StatusMessage(err))
				continue
			}
			fmt.Fprintln(a.stdout, "Copied answer to clipboard.")
			continue
		case "/again":
			if last == "" {
				fmt.Fprintf(a.stdout, "Error: %s\n", assistant.StatusMessage(chatbot.ErrNothingToRetry))
				continue
			}
			problem = last
		}

		doc, _, err := assistant.Remedy(ctx, a.bot, problem, nil, a.cfg.MaxTokens)
		if err != nil {
			a.logger.Error("remedy failed", "problem", problem, "error", err)
			fmt.Fprintf(a.stdout, "Error: %s\n", assistant.StatusMessage(err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		last, lastAnswer = problem, markup.PlainText(doc)
		fmt.Fprintf(a.stdout, "%s\n\n", markup.Terminal(doc))
		results = append(results, "Problem: "+problem+"\n\n"+lastAnswer)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	if len(results) == 0 {
		return nil
	}
	return a.export(titleSkin, strings.Join(results, "\n\n"))
}

func (a *app) lines() *bufio.Scanner {
	scanner := bufio.NewScanner(a.stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return scanner
}

// exportPath returns path, or a file name derived from title
func exportPath(path, title, ext string) string {
	if path != "" {
		return path
	}
	slug := strings.ToLower(strings.NewReplacer(" ", "_", "&", "").Replace(title))
	return slug + ext
}
