package chatbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"HealthAssist/internal/backend"
	"HealthAssist/internal/cache"
	"HealthAssist/internal/markup"
	"HealthAssist/internal/session"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// FallbackReply is shown in place of an empty reply
const FallbackReply = "No answer generated."

// PlaceholderID identifies the transient turn shown while a send is in flight
const PlaceholderID = "pending"

var (
	// ErrBusy is returned when a send is attempted while another is in flight
	ErrBusy = errors.New("a request is already in flight")

	// ErrEmptyQuestion is returned for blank user input
	ErrEmptyQuestion = errors.New("please enter a question")

	// ErrNothingToRetry is returned by Resend when the last turn is not a user turn
	ErrNothingToRetry = errors.New("nothing to retry")
)

// EmptyReplyError means the endpoint answered successfully but with no
// usable content
type EmptyReplyError struct{}

func (e *EmptyReplyError) Error() string {
	return "empty reply from inference endpoint"
}

// Sender posts a payload and returns the raw response body
type Sender interface {
	Send(ctx context.Context, endpoint string, payload any) ([]byte, error)
}

// Options configures a ChatBot
type Options struct {
	Endpoint  string
	Model     string
	MaxTokens int

	Logger *slog.Logger
	Tracer trace.Tracer
	Meter  metric.Meter
	Cache  *cache.Cache // used by Ask only

	// Format turns reply text into a document; markup.Format when nil
	Format func(string) markup.Document
}

// Prompt is one user message. Display is what the conversation keeps and
// replays later; Content is what goes to the endpoint for this send only.
type Prompt struct {
	Display string
	Content string
}

// ChatBot runs the request/response pipeline for one conversation
type ChatBot struct {
	endpoint  string
	model     string
	maxTokens int

	sender Sender
	conv   *session.Conversation
	cache  *cache.Cache
	format func(string) markup.Document

	logger   *slog.Logger
	tracer   trace.Tracer
	meter    metric.Meter
	duration metric.Float64Histogram

	inflight atomic.Bool
	mu       sync.Mutex
	last     Prompt // outgoing form of the most recent user turn
}

// NewChatBot creates a ChatBot with an empty conversation
func NewChatBot(sender Sender, opts Options) *ChatBot {
	cb := &ChatBot{
		endpoint:  opts.Endpoint,
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		sender:    sender,
		conv:      session.New(),
		cache:     opts.Cache,
		format:    opts.Format,
		logger:    opts.Logger,
		tracer:    opts.Tracer,
		meter:     opts.Meter,
	}
	if cb.format == nil {
		cb.format = markup.Format
	}
	if cb.logger == nil {
		cb.logger = slog.Default()
	}
	if cb.tracer == nil {
		cb.tracer = tracenoop.NewTracerProvider().Tracer("")
	}
	if cb.meter == nil {
		cb.meter = metricnoop.NewMeterProvider().Meter("")
	}

	histogram, err := cb.meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err != nil {
		cb.logger.Warn("failed to create duration histogram", "error", err)
	}
	cb.duration = histogram

	cb.logger.Info("created new conversation", "conversation_id", cb.conv.ID, "model", cb.model)
	return cb
}

// Conversation returns the conversation owned by this ChatBot
func (cb *ChatBot) Conversation() *session.Conversation {
	return cb.conv
}

// Pending reports whether a send is in flight
func (cb *ChatBot) Pending() bool {
	return cb.inflight.Load()
}

// History returns the turns to display. While a send is in flight a single
// placeholder assistant turn follows the real ones.
func (cb *ChatBot) History() []session.Turn {
	cb.mu.Lock()
	turns := cb.conv.Turns()
	pending := cb.inflight.Load()
	cb.mu.Unlock()

	if pending {
		turns = append(turns, session.Turn{
			ID:     PlaceholderID,
			Role:   session.RoleAssistant,
			Text:   "...",
			Markup: markup.Text("..."),
		})
	}
	return turns
}

// Clear discards the conversation history
func (cb *ChatBot) Clear() {
	cb.conv.Clear()
	cb.logger.Info("conversation cleared", "conversation_id", cb.conv.ID)
}

// Send appends text as a user turn, sends the whole history and appends
// the formatted reply. On failure the user turn stays and Resend can be
// used to try again.
func (cb *ChatBot) Send(ctx context.Context, text string) (session.Turn, error) {
	return cb.SendPrompt(ctx, Prompt{Display: text, Content: text})
}

// SendPrompt is Send with a separate outgoing form of the user message
func (cb *ChatBot) SendPrompt(ctx context.Context, p Prompt) (session.Turn, error) {
	p.Display = strings.TrimSpace(p.Display)
	p.Content = strings.TrimSpace(p.Content)
	if p.Display == "" || p.Content == "" {
		return session.Turn{}, ErrEmptyQuestion
	}

	cb.mu.Lock()
	if !cb.inflight.CompareAndSwap(false, true) {
		cb.mu.Unlock()
		return session.Turn{}, ErrBusy
	}
	cb.conv.AppendUser(p.Display)
	cb.last = p
	cb.mu.Unlock()

	return cb.complete(ctx, p)
}

// Resend retries the last user turn when it never got a reply
func (cb *ChatBot) Resend(ctx context.Context) (session.Turn, error) {
	cb.mu.Lock()
	if !cb.inflight.CompareAndSwap(false, true) {
		cb.mu.Unlock()
		return session.Turn{}, ErrBusy
	}
	last, ok := cb.conv.Last()
	if !ok || last.Role != session.RoleUser {
		cb.inflight.Store(false)
		cb.mu.Unlock()
		return session.Turn{}, ErrNothingToRetry
	}
	p := cb.last
	cb.mu.Unlock()

	if p.Display != last.Text {
		p = Prompt{Display: last.Text, Content: last.Text}
	}
	return cb.complete(ctx, p)
}

// complete sends the history ending in p and settles the in-flight send.
// The reply is appended and the flag cleared under cb.mu so History never
// sees both the reply and the placeholder.
func (cb *ChatBot) complete(ctx context.Context, p Prompt) (session.Turn, error) {
	messages := answered(cb.conv.ToRequestMessages())
	if n := len(messages); n > 0 && messages[n-1].Role == backend.RoleUser {
		messages[n-1].Content = p.Content
	} else {
		// history was cleared while this send was being prepared
		messages = append(messages, backend.Message{Role: backend.RoleUser, Content: p.Content})
	}

	reply, err := cb.call(ctx, backend.ChatRequest{
		Model:     cb.model,
		Messages:  messages,
		MaxTokens: cb.maxTokens,
	})

	var turn session.Turn
	cb.mu.Lock()
	if err == nil {
		turn = cb.conv.AppendAssistant(cb.format(reply))
	}
	cb.inflight.Store(false)
	cb.mu.Unlock()

	if err != nil {
		return session.Turn{}, err
	}
	cb.logger.Info("assistant reply appended", "conversation_id", cb.conv.ID, "turns", cb.conv.Len())
	return turn, nil
}

// answered drops user messages that never got a reply, keeping the last
// one, so roles alternate after a failed send is abandoned
func answered(messages []backend.Message) []backend.Message {
	out := messages[:0]
	for i, m := range messages {
		if m.Role == backend.RoleUser && i+1 < len(messages) && messages[i+1].Role == backend.RoleUser {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Ask sends a single stateless prompt outside the conversation and returns
// the raw reply text. Replies are cached when the ChatBot has a cache.
func (cb *ChatBot) Ask(ctx context.Context, prompt string, maxTokens int) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrEmptyQuestion
	}
	if maxTokens <= 0 {
		maxTokens = cb.maxTokens
	}

	req := backend.ChatRequest{
		Model:     cb.model,
		Messages:  []backend.Message{{Role: backend.RoleUser, Content: prompt}},
		MaxTokens: maxTokens,
	}

	var cacheKey string
	if cb.cache != nil {
		cacheKey = cache.GenerateCacheKey(req)
		if cached, ok := cb.cache.Get(cacheKey); ok {
			cb.logger.Info("cache hit", "key", cacheKey[:16])
			return cached, nil
		}
	}

	reply, err := cb.call(ctx, req)
	if err != nil {
		return "", err
	}

	if cb.cache != nil {
		cb.cache.Put(cacheKey, reply)
		cb.logger.Info("cached response", "key", cacheKey[:16])
	}
	return reply, nil
}

// call sends one chat-completion request and extracts the reply text
func (cb *ChatBot) call(ctx context.Context, req backend.ChatRequest) (string, error) {
	ctx, span := cb.tracer.Start(ctx, "chat_completion",
		trace.WithAttributes(
			attribute.String("llm.model", req.Model),
			attribute.Int("llm.messages", len(req.Messages)),
		),
	)
	defer span.End()

	start := time.Now()
	body, err := cb.sender.Send(ctx, cb.endpoint, req)
	if cb.duration != nil {
		cb.duration.Record(ctx, float64(time.Since(start).Milliseconds()))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	var apiResp backend.ChatResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	cb.recordMetrics(ctx, apiResp.Usage)

	content := apiResp.Content()
	if content == "" {
		cb.logger.Warn("empty reply", "model", req.Model)
		return "", &EmptyReplyError{}
	}
	return content, nil
}

// recordMetrics records OpenTelemetry metrics from usage data
func (cb *ChatBot) recordMetrics(ctx context.Context, usage map[string]interface{}) {
	if usage == nil {
		return
	}

	for key, value := range usage {
		if intVal, ok := value.(float64); ok {
			counter, err := cb.meter.Int64Counter(
				fmt.Sprintf("llm.usage.%s", key),
				metric.WithDescription(fmt.Sprintf("LLM usage metric: %s", key)),
			)
			if err != nil {
				cb.logger.Warn("failed to create counter", "key", key, "error", err)
				continue
			}
			counter.Add(ctx, int64(intVal))
		}
	}
}

// RetryRecorder returns a requester retry hook that counts retries
func RetryRecorder(meter metric.Meter, logger *slog.Logger) func(int, time.Duration, error) {
	counter, err := meter.Int64Counter(
		"llm.request.retries",
		metric.WithDescription("Inference request retries"),
	)
	if err != nil {
		logger.Warn("failed to create retry counter", "error", err)
		return nil
	}
	return func(attempt int, delay time.Duration, err error) {
		counter.Add(context.Background(), 1)
	}
}
