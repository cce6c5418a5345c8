// Package assistant holds the page-level behaviour of the health
// assistant: the prompts each page sends, how replies are shaped for
// display, and how failures become status lines.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"HealthAssist/internal/capture"
	"HealthAssist/internal/chatbot"
	"HealthAssist/internal/markup"
	"HealthAssist/internal/requester"
)

// Fallback texts shown when a page's reply is empty
const (
	NoAnalysisFound = "No analysis found."
	NoRemedyFound   = "No remedy found."
)

// Asker sends a one-shot prompt
type Asker interface {
	Ask(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// DietPlan is a diet plan reply split for display
type DietPlan struct {
	Lines            []string
	NutritionSummary string
}

// RequestDietPlan asks for a personalised plan
func RequestDietPlan(ctx context.Context, a Asker, prefs DietPreferences, maxTokens int) (DietPlan, error) {
	if err := prefs.Validate(); err != nil {
		return DietPlan{}, err
	}
	reply, err := a.Ask(ctx, DietPlanPrompt(prefs), maxTokens)
	if err != nil && !isEmptyReply(err) {
		return DietPlan{}, err
	}
	lines, summary := SplitPlan(reply)
	return DietPlan{Lines: lines, NutritionSummary: summary}, nil
}

// TipOfTheDay asks for a one-line healthy eating tip
func TipOfTheDay(ctx context.Context, a Asker, maxTokens int) (string, error) {
	reply, err := a.Ask(ctx, TipPrompt, maxTokens)
	if err != nil && !isEmptyReply(err) {
		return "", err
	}
	return reply, nil
}

// AnalyzeReport asks for a structured analysis of a report image
func AnalyzeReport(ctx context.Context, a Asker, img capture.Image, maxTokens int) (markup.Document, error) {
	reply, err := a.Ask(ctx, ReportPrompt(img), maxTokens)
	if isEmptyReply(err) {
		return markup.Text(NoAnalysisFound), nil
	}
	if err != nil {
		return markup.Document{}, err
	}
	return markup.Format(reply), nil
}

// Remedy asks for home remedies for a described problem, a photo, or both.
// The reply only has its line breaks preserved.
func Remedy(ctx context.Context, a Asker, problem string, img *capture.Image, maxTokens int) (markup.Document, string, error) {
	var prompt string
	switch {
	case img != nil:
		prompt = RemedyImagePrompt(*img)
	case problem != "":
		prompt = RemedyPrompt(problem)
	default:
		return markup.Document{}, "", errors.New("please enter a skin issue or upload an image")
	}

	reply, err := a.Ask(ctx, prompt, maxTokens)
	if isEmptyReply(err) {
		return markup.Text(NoRemedyFound), NoRemedyFound, nil
	}
	if err != nil {
		return markup.Document{}, "", err
	}
	return markup.FormatBreaksOnly(reply), reply, nil
}

// TabletPrompt returns the chat prompt for an uploaded tablet image. The
// image is replayed in later history as a placeholder only.
func TabletPrompt(img capture.Image) chatbot.Prompt {
	return chatbot.Prompt{Display: ImagePlaceholder, Content: TabletImagePrompt(img)}
}

func isEmptyReply(err error) bool {
	var emptyErr *chatbot.EmptyReplyError
	return errors.As(err, &emptyErr)
}

// StatusMessage converts any pipeline or capture failure into the line
// shown to the user
func StatusMessage(err error) string {
	var (
		netErr   *requester.NetworkError
		upErr    *requester.UpstreamError
		emptyErr *chatbot.EmptyReplyError
		capErr   *capture.CaptureUnavailableError
	)

	switch {
	case err == nil:
		return ""
	case errors.Is(err, chatbot.ErrBusy):
		return "Please wait for the current answer."
	case errors.Is(err, chatbot.ErrEmptyQuestion):
		return "Please enter a question."
	case errors.Is(err, chatbot.ErrNothingToRetry):
		return "Nothing to retry."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Request cancelled."
	case errors.As(err, &emptyErr):
		return chatbot.FallbackReply
	case errors.As(err, &capErr):
		return fmt.Sprintf("The %s is not available: %s.", capErr.Device, capErr.Reason)
	case errors.As(err, &upErr):
		if upErr.Status == http.StatusTooManyRequests {
			return "The service is busy. Please try again shortly."
		}
		return fmt.Sprintf("The service rejected the request (status %d).", upErr.Status)
	case errors.As(err, &netErr):
		return "Failed to reach the service."
	default:
		return "Something went wrong: " + err.Error()
	}
}
