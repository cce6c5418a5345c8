package chatbot

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"HealthAssist/internal/backend"
	"HealthAssist/internal/cache"
	"HealthAssist/internal/markup"
	"HealthAssist/internal/requester"
	"HealthAssist/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func replyBody(content string) []byte {
	return []byte(`{"choices":[{"message":{"role":"assistant","content":` + quote(content) + `}}],"usage":{"total_tokens":12}}`)
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// fakeSender records every request and answers from a queue
type fakeSender struct {
	mu       sync.Mutex
	requests []backend.ChatRequest
	replies  []func() ([]byte, error)
}

func (f *fakeSender) Send(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, payload.(backend.ChatRequest))
	if len(f.replies) == 0 {
		return replyBody("default"), nil
	}
	next := f.replies[0]
	f.replies = f.replies[1:]
	return next()
}

func (f *fakeSender) reply(content string) *fakeSender {
	f.replies = append(f.replies, func() ([]byte, error) { return replyBody(content), nil })
	return f
}

func (f *fakeSender) fail(err error) *fakeSender {
	f.replies = append(f.replies, func() ([]byte, error) { return nil, err })
	return f
}

func newBot(sender Sender) *ChatBot {
	return NewChatBot(sender, Options{
		Endpoint:  "http://inference.test",
		Model:     "sonar-pro",
		MaxTokens: 4000,
		Logger:    discardLogger(),
	})
}

func TestSend_AppendsFormattedReply(t *testing.T) {
	sender := (&fakeSender{}).reply("## Advice\n- **Rest**")
	cb := newBot(sender)

	turn, err := cb.Send(context.Background(), "  I have a cold  ")
	require.NoError(t, err)

	assert.Equal(t, session.RoleAssistant, turn.Role)
	assert.Equal(t, "<h3><u>Advice</u></h3><br/><li><strong>Rest</strong></li>", markup.HTML(turn.Markup))

	require.Len(t, sender.requests, 1)
	req := sender.requests[0]
	assert.Equal(t, "sonar-pro", req.Model)
	assert.Equal(t, 4000, req.MaxTokens)
	assert.Equal(t, []backend.Message{{Role: "user", Content: "I have a cold"}}, req.Messages)

	turns := cb.History()
	require.Len(t, turns, 2)
	assert.Equal(t, "I have a cold", turns[0].Text)
	assert.Equal(t, "Advice\nRest", turns[1].Text)
}

func TestSend_ReplaysPlainTextHistory(t *testing.T) {
	sender := (&fakeSender{}).reply("**ok**").reply("second")
	cb := newBot(sender)

	_, err := cb.Send(context.Background(), "hi")
	require.NoError(t, err)
	_, err = cb.Send(context.Background(), "again")
	require.NoError(t, err)

	require.Len(t, sender.requests, 2)
	assert.Equal(t, []backend.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "ok"},
		{Role: "user", Content: "again"},
	}, sender.requests[1].Messages)
}

func TestSend_EmptyQuestion(t *testing.T) {
	sender := &fakeSender{}
	cb := newBot(sender)

	_, err := cb.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Empty(t, sender.requests)
	assert.Equal(t, 0, cb.Conversation().Len())
}

func TestSend_FailureKeepsHistoryAndResendWorks(t *testing.T) {
	sender := (&fakeSender{}).fail(&requester.NetworkError{Err: errors.New("offline")}).reply("better now")
	cb := newBot(sender)

	_, err := cb.Send(context.Background(), "headache")
	var netErr *requester.NetworkError
	require.ErrorAs(t, err, &netErr)

	turns := cb.History()
	require.Len(t, turns, 1)
	assert.Equal(t, session.RoleUser, turns[0].Role)

	turn, err := cb.Resend(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "better now", turn.Text)
	assert.Len(t, cb.History(), 2)

	require.Len(t, sender.requests, 2)
	assert.Equal(t, sender.requests[0].Messages, sender.requests[1].Messages)

	_, err = cb.Resend(context.Background())
	assert.ErrorIs(t, err, ErrNothingToRetry)
}

func TestSend_EmptyReply(t *testing.T) {
	sender := (&fakeSender{}).reply("   ")
	cb := newBot(sender)

	_, err := cb.Send(context.Background(), "question")

	var emptyErr *EmptyReplyError
	require.ErrorAs(t, err, &emptyErr)
	assert.Len(t, cb.History(), 1)
}

func TestSend_MalformedBody(t *testing.T) {
	sender := &fakeSender{}
	sender.replies = append(sender.replies, func() ([]byte, error) { return []byte("<html>"), nil })
	cb := newBot(sender)

	_, err := cb.Send(context.Background(), "question")
	assert.ErrorContains(t, err, "failed to unmarshal response")
}

func TestSendPrompt_ReplaysDisplayForm(t *testing.T) {
	sender := (&fakeSender{}).reply("Paracetamol").reply("twice a day")
	cb := newBot(sender)

	_, err := cb.SendPrompt(context.Background(), Prompt{Display: "[Image]", Content: "Identify this tablet: aGVsbG8="})
	require.NoError(t, err)
	_, err = cb.Send(context.Background(), "dosage?")
	require.NoError(t, err)

	assert.Equal(t, "Identify this tablet: aGVsbG8=", sender.requests[0].Messages[0].Content)
	assert.Equal(t, "[Image]", sender.requests[1].Messages[0].Content)
}

// blockingSender waits until released so the in-flight state can be observed
type blockingSender struct {
	started chan struct{}
	release chan struct{}
	calls   int32
}

func (b *blockingSender) Send(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	atomic.AddInt32(&b.calls, 1)
	close(b.started)
	<-b.release
	return replyBody("done"), nil
}

func TestSend_BusyAndPlaceholder(t *testing.T) {
	sender := &blockingSender{started: make(chan struct{}), release: make(chan struct{})}
	cb := newBot(sender)

	done := make(chan error, 1)
	go func() {
		_, err := cb.Send(context.Background(), "first")
		done <- err
	}()
	<-sender.started

	assert.True(t, cb.Pending())
	_, err := cb.Send(context.Background(), "second")
	assert.ErrorIs(t, err, ErrBusy)
	_, err = cb.Resend(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	pending := cb.History()
	require.Len(t, pending, 2)
	assert.Equal(t, PlaceholderID, pending[1].ID)

	close(sender.release)
	require.NoError(t, <-done)

	settled := cb.History()
	require.Len(t, settled, 2)
	assert.NotEqual(t, PlaceholderID, settled[1].ID)
	assert.Equal(t, "done", settled[1].Text)
	assert.False(t, cb.Pending())
	assert.Equal(t, int32(1), atomic.LoadInt32(&sender.calls))
}

// blockOnMessage parks the logging goroutine on one record so the state
// right after that log call can be observed
type blockOnMessage struct {
	msg     string
	reached chan struct{}
	release chan struct{}
	once    sync.Once
}

func (h *blockOnMessage) Enabled(context.Context, slog.Level) bool { return true }

func (h *blockOnMessage) Handle(_ context.Context, r slog.Record) error {
	if r.Message == h.msg {
		h.once.Do(func() { close(h.reached) })
		<-h.release
	}
	return nil
}

func (h *blockOnMessage) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *blockOnMessage) WithGroup(string) slog.Handler      { return h }

func TestHistory_NoPlaceholderOnceReplyIsAppended(t *testing.T) {
	h := &blockOnMessage{msg: "assistant reply appended", reached: make(chan struct{}), release: make(chan struct{})}
	cb := NewChatBot((&fakeSender{}).reply("ok"), Options{
		Endpoint: "http://inference.test",
		Model:    "sonar-pro",
		Logger:   slog.New(h),
	})

	done := make(chan error, 1)
	go func() {
		_, err := cb.Send(context.Background(), "hi")
		done <- err
	}()
	<-h.reached

	turns := cb.History()
	require.Len(t, turns, 2)
	assert.Equal(t, "ok", turns[1].Text)
	assert.NotEqual(t, PlaceholderID, turns[1].ID)
	assert.False(t, cb.Pending())

	close(h.release)
	require.NoError(t, <-done)
}

func TestSend_NewQuestionAfterFailureKeepsRolesAlternating(t *testing.T) {
	sender := (&fakeSender{}).
		fail(&requester.NetworkError{Err: errors.New("offline")}).
		reply("   ").
		reply("answer").
		reply("more")
	cb := newBot(sender)
	ctx := context.Background()

	_, err := cb.Send(ctx, "first")
	require.Error(t, err)
	_, err = cb.Send(ctx, "second")
	var emptyErr *EmptyReplyError
	require.ErrorAs(t, err, &emptyErr)
	_, err = cb.Send(ctx, "third")
	require.NoError(t, err)
	_, err = cb.Send(ctx, "fourth")
	require.NoError(t, err)

	require.Len(t, sender.requests, 4)
	assert.Equal(t, []backend.Message{{Role: "user", Content: "third"}}, sender.requests[2].Messages)
	assert.Equal(t, []backend.Message{
		{Role: "user", Content: "third"},
		{Role: "assistant", Content: "answer"},
		{Role: "user", Content: "fourth"},
	}, sender.requests[3].Messages)

	for _, req := range sender.requests {
		for i := 1; i < len(req.Messages); i++ {
			assert.NotEqual(t, req.Messages[i-1].Role, req.Messages[i].Role)
		}
	}
	// abandoned questions stay visible
	assert.Len(t, cb.History(), 6)
}

func TestClear(t *testing.T) {
	cb := newBot((&fakeSender{}).reply("hello"))
	_, err := cb.Send(context.Background(), "hi")
	require.NoError(t, err)

	cb.Clear()
	assert.Empty(t, cb.History())
	assert.Empty(t, cb.Conversation().ToRequestMessages())
}

func TestAsk_UsesCache(t *testing.T) {
	sender := (&fakeSender{}).reply("Eat greens.")
	cb := NewChatBot(sender, Options{
		Endpoint:  "http://inference.test",
		Model:     "sonar-pro",
		MaxTokens: 4000,
		Logger:    discardLogger(),
		Cache:     cache.New(time.Hour),
	})

	first, err := cb.Ask(context.Background(), "Give a short healthy eating tip (1 line).", 50)
	require.NoError(t, err)
	second, err := cb.Ask(context.Background(), "Give a short healthy eating tip (1 line).", 50)
	require.NoError(t, err)

	assert.Equal(t, "Eat greens.", first)
	assert.Equal(t, first, second)
	require.Len(t, sender.requests, 1)
	assert.Equal(t, 50, sender.requests[0].MaxTokens)
	assert.Equal(t, 0, cb.Conversation().Len())
}

func TestAsk_DefaultsMaxTokens(t *testing.T) {
	sender := (&fakeSender{}).reply("plan")
	cb := newBot(sender)

	_, err := cb.Ask(context.Background(), "diet plan", 0)
	require.NoError(t, err)
	assert.Equal(t, 4000, sender.requests[0].MaxTokens)

	_, err = cb.Ask(context.Background(), "", 0)
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestPipeline_EndToEndWithRequester(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		var req backend.ChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		w.Write(replyBody("## Diagnosis\nMild **flu**"))
	}))
	defer server.Close()

	var retries int32
	policy := requester.DefaultPolicy()
	policy.InitialDelay = time.Millisecond
	policy.OnRetry = func(int, time.Duration, error) { atomic.AddInt32(&retries, 1) }
	req := requester.New(server.Client(), policy, discardLogger(), requester.WithBearerToken("key"))

	cb := NewChatBot(req, Options{
		Endpoint:  server.URL,
		Model:     "sonar-pro",
		MaxTokens: 4000,
		Logger:    discardLogger(),
	})

	turn, err := cb.Send(context.Background(), "fever and cough")
	require.NoError(t, err)
	assert.Equal(t, "<h3><u>Diagnosis</u></h3><br/>Mild <strong>flu</strong>", markup.HTML(turn.Markup))
	assert.Equal(t, int32(3), hits)
	assert.Equal(t, int32(2), retries)
}

func TestRetryRecorder(t *testing.T) {
	hook := RetryRecorder(metricnoop.NewMeterProvider().Meter(""), discardLogger())
	require.NotNil(t, hook)
	hook(1, time.Second, errors.New("x"))
}
