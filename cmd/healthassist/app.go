package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"HealthAssist/internal/assistant"
	"HealthAssist/internal/cache"
	"HealthAssist/internal/capture"
	"HealthAssist/internal/chatbot"
	"HealthAssist/internal/config"
	"HealthAssist/internal/export"
	"HealthAssist/internal/markup"
	"HealthAssist/internal/requester"
	"HealthAssist/internal/store"
	"HealthAssist/internal/telemetry"

	"golang.org/x/time/rate"
)

// Export titles, also used for default export file names
const (
	titleAsk    = "Doctor Q&A"
	titleDiet   = "Diet Plan"
	titleReport = "Medical Report Analysis"
	titleSkin   = "Home Remedies"
	titleTablet = "Tablet Information"
)

// app owns everything one command run needs
type app struct {
	cfg    config.Config
	logger *slog.Logger
	bot    *chatbot.ChatBot

	stdin  io.Reader
	stdout io.Writer

	txtPath     string
	pdfPath     string
	toClipboard bool
	copyText    func(string) error

	store   store.Store
	closers []func()
}

func newApp(ctx context.Context, cfg config.Config, cc *CliConfig) (*app, error) {
	a := &app{cfg: cfg, stdin: cc.Stdin, stdout: cc.Stdout, copyText: cc.Clipboard}
	if a.copyText == nil {
		a.copyText = capture.CopyText
	}

	logger, logFile, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return nil, err
	}
	a.logger = logger
	a.closers = append(a.closers, func() { logFile.Close() })

	tracer, meter, shutdown, err := telemetry.InitTelemetry(ctx, cfg.LogDir)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, shutdown)

	policy := requester.Policy{
		Retries:      cfg.Retries,
		InitialDelay: cfg.InitialDelay(),
		Retryable:    requester.RetryTransient,
		OnRetry:      chatbot.RetryRecorder(meter, logger),
	}
	if cfg.RequestsPerSec > 0 {
		policy.Limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1)
	}

	var opts []requester.Option
	if cfg.APIKey != "" {
		opts = append(opts, requester.WithBearerToken(cfg.APIKey))
	} else {
		logger.Warn("no API key configured")
	}
	req := requester.New(&http.Client{Timeout: cfg.Timeout()}, policy, logger, opts...)

	a.bot = chatbot.NewChatBot(req, chatbot.Options{
		Endpoint:  cfg.Endpoint,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
		Logger:    logger,
		Tracer:    tracer,
		Meter:     meter,
		Cache:     cache.New(24 * time.Hour),
	})

	logger.Info("pipeline ready",
		"endpoint", cfg.Endpoint,
		"model", cfg.Model,
		"retries", cfg.Retries,
		"initial_delay", cfg.InitialDelay(),
	)
	return a, nil
}

// Close releases resources in reverse order of acquisition
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("failed to close store", "error", err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// openStore opens the configured store on first use
func (a *app) openStore() (store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := store.Open(a.cfg.Store)
	if err != nil {
		return nil, err
	}
	a.logger.Info("store opened", "backend", a.cfg.Store.Backend, "path", a.cfg.Store.Path)
	a.store = s
	return s, nil
}

// emit prints a result and writes the requested exports of it
func (a *app) emit(title string, doc markup.Document) error {
	fmt.Fprintln(a.stdout, markup.Terminal(doc))
	return a.export(title, markup.PlainText(doc))
}

func (a *app) export(title, text string) error {
	return a.exportAs(text, func(w io.Writer) error {
		return export.WritePDF(w, title, text, a.pdfOptions()...)
	})
}

// exportAs writes text to the txt export and the clipboard, and renders the
// PDF export with writePDF
func (a *app) exportAs(text string, writePDF func(io.Writer) error) error {
	if a.txtPath != "" {
		if err := export.ToFile(a.txtPath, func(w io.Writer) error { return export.WriteTXT(w, text) }); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "Saved %s\n", a.txtPath)
	}
	if a.pdfPath != "" {
		if err := export.ToFile(a.pdfPath, writePDF); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "Saved %s\n", a.pdfPath)
	}
	if a.toClipboard {
		if err := a.copyText(text); err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, "Copied to clipboard")
	}
	return nil
}

func (a *app) pdfOptions() []export.PDFOption {
	if a.cfg.PDFFont == "" {
		return nil
	}
	return []export.PDFOption{export.WithUTF8Font(a.cfg.PDFFont)}
}

// readImage loads a file path or a pasted data: URI
func readImage(src string, camera bool) (capture.Image, error) {
	if camera {
		return capture.Image{}, capture.Camera()
	}
	if src == "" {
		return capture.Image{}, errors.New("an image is required, pass --image")
	}
	if strings.HasPrefix(src, "data:") {
		return capture.ParseDataURI(src)
	}
	return capture.LoadImage(src)
}

func isEmptyReply(err error) bool {
	var emptyErr *chatbot.EmptyReplyError
	return errors.As(err, &emptyErr)
}

func (a *app) ask(ctx context.Context, c cmdAsk) error {
	switch {
	case c.Mic:
		return capture.Microphone()
	case c.Stdin:
		question, err := capture.ReadTranscript(a.stdin)
		if err != nil {
			return err
		}
		return a.askOnce(ctx, question)
	case c.Prompt != "":
		return a.askOnce(ctx, c.Prompt)
	}
	return a.chatLoop(ctx, titleAsk, nil)
}

func (a *app) askOnce(ctx context.Context, question string) error {
	turn, err := a.bot.Send(ctx, question)
	switch {
	case isEmptyReply(err):
		fmt.Fprintln(a.stdout, chatbot.FallbackReply)
	case err != nil:
		return err
	default:
		fmt.Fprintln(a.stdout, markup.Terminal(turn.Markup))
	}
	return a.export(titleAsk, export.Transcript(a.bot.Conversation().Turns()))
}

func (a *app) dietPlan(ctx context.Context, c cmdDietPlan) error {
	prefs := assistant.DietPreferences{
		Age:         c.Age,
		Weight:      c.Weight,
		DietType:    assistant.DietTypeLabel(c.DietType),
		Allergies:   c.Allergies,
		CalorieGoal: c.CalorieGoal,
		HealthGoal:  c.HealthGoal,
	}
	plan, err := assistant.RequestDietPlan(ctx, a.bot, prefs, a.cfg.MaxTokens)
	if err != nil {
		return err
	}

	text := strings.Join(plan.Lines, "\n")
	if plan.NutritionSummary != "" {
		text += "\n\n" + plan.NutritionSummary
	}
	fmt.Fprintln(a.stdout, markup.Terminal(markup.Format(text)))
	recommended := assistant.RecommendedWater(c.Weight)
	fmt.Fprintf(a.stdout, "\nRecommended water intake: %d ml\n", recommended)

	if c.Save && len(plan.Lines) > 0 {
		favorites, err := a.favorites()
		if err != nil {
			return err
		}
		for _, line := range plan.Lines {
			if _, err := favorites.Add(ctx, strings.TrimSpace(line)); err != nil {
				return err
			}
		}
		fmt.Fprintf(a.stdout, "Saved %d recommendations to favorites\n", len(plan.Lines))
	}

	return a.exportAs(text, func(w io.Writer) error {
		saved, drunk, err := a.dietState(ctx)
		if err != nil {
			return err
		}
		return export.WritePDFSections(w, titleDiet, dietSections(plan, saved, drunk, recommended), a.pdfOptions()...)
	})
}

// dietState reads the favorites and the water total for the diet PDF
func (a *app) dietState(ctx context.Context) ([]string, int, error) {
	favorites, err := a.favorites()
	if err != nil {
		return nil, 0, err
	}
	saved, err := favorites.List(ctx)
	if err != nil {
		return nil, 0, err
	}
	water, err := a.water()
	if err != nil {
		return nil, 0, err
	}
	drunk, err := water.Total(ctx)
	if err != nil {
		return nil, 0, err
	}
	return saved, drunk, nil
}

// dietSections lays out the diet PDF as plan, summary, favorites and water tables
func dietSections(plan assistant.DietPlan, favorites []string, drunkML, recommendedML int) []export.Section {
	sections := []export.Section{{Heading: "Diet Plan", Rows: plan.Lines}}
	if plan.NutritionSummary != "" {
		sections = append(sections, export.Section{Heading: "Nutrition Summary", Text: plan.NutritionSummary})
	}
	if len(favorites) > 0 {
		sections = append(sections, export.Section{Heading: "Favorites", Rows: favorites})
	}
	return append(sections, export.Section{
		Heading: "Water Intake",
		Rows: []string{
			fmt.Sprintf("Today: %d ml (%d glasses)", drunkML, drunkML/store.GlassML),
			fmt.Sprintf("Recommended: %d ml", recommendedML),
		},
	})
}

func (a *app) dietTip(ctx context.Context) error {
	tip, err := assistant.TipOfTheDay(ctx, a.bot, a.cfg.TipMaxTokens)
	if err != nil {
		return err
	}
	if tip == "" {
		tip = chatbot.FallbackReply
	}
	fmt.Fprintf(a.stdout, "Tip of the day: %s\n", tip)
	return nil
}

func (a *app) favorites() (*store.Favorites, error) {
	s, err := a.openStore()
	if err != nil {
		return nil, err
	}
	return store.NewFavorites(s), nil
}

func (a *app) printFavorites(items []string) {
	if len(items) == 0 {
		fmt.Fprintln(a.stdout, "No favorites saved.")
		return
	}
	for i, item := range items {
		fmt.Fprintf(a.stdout, "%d. %s\n", i+1, item)
	}
}

func (a *app) favoritesList(ctx context.Context) error {
	favorites, err := a.favorites()
	if err != nil {
		return err
	}
	items, err := favorites.List(ctx)
	if err != nil {
		return err
	}
	a.printFavorites(items)
	return nil
}

func (a *app) favoritesAdd(ctx context.Context, item string) error {
	item = strings.TrimSpace(item)
	if item == "" {
		return errors.New("favorite must not be empty")
	}
	favorites, err := a.favorites()
	if err != nil {
		return err
	}
	items, err := favorites.Add(ctx, item)
	if err != nil {
		return err
	}
	a.printFavorites(items)
	return nil
}

func (a *app) favoritesRemove(ctx context.Context, item string) error {
	favorites, err := a.favorites()
	if err != nil {
		return err
	}
	items, err := favorites.Remove(ctx, strings.TrimSpace(item))
	if err != nil {
		return err
	}
	a.printFavorites(items)
	return nil
}

func (a *app) water() (*store.Water, error) {
	s, err := a.openStore()
	if err != nil {
		return nil, err
	}
	return store.NewWater(s), nil
}

func (a *app) waterShow(ctx context.Context, weight string) error {
	water, err := a.water()
	if err != nil {
		return err
	}
	total, err := water.Total(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Water intake: %d / %d ml (%d glasses)\n",
		total, assistant.RecommendedWater(weight), total/store.GlassML)
	return nil
}

func (a *app) waterAdd(ctx context.Context) error {
	water, err := a.water()
	if err != nil {
		return err
	}
	total, err := water.AddGlass(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Water intake: %d ml\n", total)
	return nil
}

func (a *app) waterReset(ctx context.Context) error {
	water, err := a.water()
	if err != nil {
		return err
	}
	if err := water.Reset(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, "Water intake reset.")
	return nil
}

func (a *app) report(ctx context.Context, c cmdReport) error {
	img, err := readImage(c.Image, c.Camera)
	if err != nil {
		return err
	}

	var doc markup.Document
	if a.cfg.APIKey == "" {
		a.logger.Warn("no API key, showing demo analysis")
		doc = markup.Format(assistant.DemoReportAnalysis)
	} else {
		doc, err = assistant.AnalyzeReport(ctx, a.bot, img, a.cfg.MaxTokens)
		if err != nil {
			return err
		}
	}
	return a.emit(titleReport, doc)
}

func (a *app) skin(ctx context.Context, c cmdSkin) error {
	if len(c.Problem) == 0 && c.Image == "" && !c.Camera {
		return a.skinLoop(ctx)
	}

	var img *capture.Image
	if c.Image != "" || c.Camera {
		loaded, err := readImage(c.Image, c.Camera)
		if err != nil {
			return err
		}
		img = &loaded
	}

	doc, _, err := assistant.Remedy(ctx, a.bot, strings.Join(c.Problem, " "), img, a.cfg.MaxTokens)
	if err != nil {
		return err
	}
	return a.emit(titleSkin, doc)
}

func (a *app) tablet(ctx context.Context, c cmdTablet) error {
	img, err := readImage(c.Image, c.Camera)
	if err != nil {
		return err
	}
	first := assistant.TabletPrompt(img)
	return a.chatLoop(ctx, titleTablet, &first)
}
