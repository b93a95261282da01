package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/cardlead/constants"
	"github.com/joseph-ayodele/cardlead/internal/entity"
	"github.com/joseph-ayodele/cardlead/internal/llm"
	"github.com/joseph-ayodele/cardlead/internal/llm/openai"
)

type reply struct {
	text string
	err  error
}

// scripted returns replies in order and repeats the last one once exhausted.
type scripted struct {
	mu      sync.Mutex
	replies []reply
	calls   int
	reqs    []llm.VisionRequest
}

func (s *scripted) Complete(_ context.Context, req llm.VisionRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	i := s.calls
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	s.calls++
	return s.replies[i].text, s.replies[i].err
}

func (s *scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recorder struct {
	mu      sync.Mutex
	results []string
}

func (r *recorder) ObserveAttempt(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

const goodReply = `{"会社名":"ACME","業種":"39情報サービス業"}`

func TestEngine_FirstReplyOK(t *testing.T) {
	svc := &scripted{replies: []reply{{text: goodReply}}}
	e := NewEngine(svc, nil)

	got := e.Extract(context.Background(), "https://img/card.jpg")
	assert.Equal(t, entity.ExtractionResult{"会社名": "ACME", "業種": "39情報サービス業"}, got)
	assert.Equal(t, 1, svc.Calls())
	assert.Equal(t, "https://img/card.jpg", svc.reqs[0].ImageURL)
	assert.Contains(t, svc.reqs[0].Instruction, constants.FieldCompany)
}

func TestEngine_RefusalThenFencedSuccess(t *testing.T) {
	svc := &scripted{replies: []reply{
		{text: "I'm sorry, I can't help with that."},
		{text: "I'm sorry, I can't help with that."},
		{text: "```json\n" + goodReply + "\n```"},
	}}
	obs := &recorder{}
	e := NewEngine(svc, nil, WithObserver(obs))

	got := e.Extract(context.Background(), "u")
	assert.Equal(t, "ACME", got.Get(constants.FieldCompany))
	assert.Equal(t, 3, svc.Calls())
	assert.Equal(t, []string{"refusal", "refusal", "ok"}, obs.results)
}

func TestEngine_AlwaysRefusesMakesExactlyMaxAttempts(t *testing.T) {
	svc := &scripted{replies: []reply{{text: "I'm sorry"}}}
	e := NewEngine(svc, nil)

	got := e.Extract(context.Background(), "u")
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Equal(t, DefaultMaxAttempts, svc.Calls())
}

func TestEngine_MalformedAndServiceErrorsShareBudget(t *testing.T) {
	svc := &scripted{replies: []reply{
		{err: errors.New("connection reset")},
		{text: "not json"},
		{err: errors.New("503")},
	}}
	obs := &recorder{}
	e := NewEngine(svc, nil, WithMaxAttempts(3), WithObserver(obs))

	got := e.Extract(context.Background(), "u")
	assert.Empty(t, got)
	assert.Equal(t, 3, svc.Calls())
	assert.Equal(t, []string{"service_error", "malformed", "service_error"}, obs.results)
}

func TestEngine_FatalStopsImmediately(t *testing.T) {
	svc := &scripted{replies: []reply{{text: "blocked"}}}
	fatal := llm.ClassifierFunc(func(string) llm.Verdict {
		return llm.Verdict{Outcome: llm.OutcomeFatal, Reason: "policy"}
	})
	e := NewEngine(svc, nil, WithClassifier(fatal))

	assert.Empty(t, e.Extract(context.Background(), "u"))
	assert.Equal(t, 1, svc.Calls())
}

func TestEngine_CancelledContextStops(t *testing.T) {
	svc := &scripted{replies: []reply{{text: "I'm sorry"}}}
	e := NewEngine(svc, nil, WithJitter(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan entity.ExtractionResult, 1)
	go func() { done <- e.Extract(ctx, "u") }()

	require.Eventually(t, func() bool { return svc.Calls() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case got := <-done:
		assert.Empty(t, got)
	case <-time.After(2 * time.Second):
		t.Fatal("extract did not stop after cancel")
	}
	assert.Equal(t, 1, svc.Calls())
}

func TestEngine_RawModeInstruction(t *testing.T) {
	svc := &scripted{replies: []reply{{text: goodReply}}}
	e := NewEngine(svc, nil, WithMode(llm.ModeRaw))
	e.Extract(context.Background(), "u")
	assert.NotContains(t, svc.reqs[0].Instruction, "39情報サービス業")
}

type byURL struct {
	calls atomic.Int32
}

func (b *byURL) Complete(_ context.Context, req llm.VisionRequest) (string, error) {
	b.calls.Add(1)
	switch {
	case strings.HasSuffix(req.ImageURL, "panic"):
		panic("boom")
	case strings.HasSuffix(req.ImageURL, "refuse"):
		return "I can't", nil
	}
	return `{"会社名":"` + req.ImageURL + `"}`, nil
}

func TestEngine_ExtractBatchKeepsOrderAndIsolatesFailures(t *testing.T) {
	svc := &byURL{}
	e := NewEngine(svc, nil, WithMaxAttempts(2))

	urls := []string{"a", "b-refuse", "c-panic", "d"}
	got := e.ExtractBatch(context.Background(), urls)
	require.Len(t, got, 4)
	assert.Equal(t, "a", got[0].Get(constants.FieldCompany))
	assert.Empty(t, got[1])
	assert.Empty(t, got[2])
	assert.NotNil(t, got[2])
	assert.Equal(t, "d", got[3].Get(constants.FieldCompany))
}

func TestEngine_ExtractBatchEmpty(t *testing.T) {
	e := NewEngine(&byURL{}, nil)
	assert.Empty(t, e.ExtractBatch(context.Background(), nil))
}

func TestEngine_ClientTimeoutIsRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			select {
			case <-time.After(300 * time.Millisecond):
			case <-r.Context().Done():
			}
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"会社名\":\"Acme\"}"}}]}`))
	}))
	defer srv.Close()

	c := openai.NewClient(openai.Config{APIKey: "k", BaseURL: srv.URL, Timeout: 100 * time.Millisecond}, quiet())
	obs := &recorder{}
	e := NewEngine(c, quiet(), WithObserver(obs))

	got := e.Extract(context.Background(), "https://img/card.jpg")
	assert.Equal(t, "Acme", got.Get(constants.FieldCompany))
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, []string{"service_error", "ok"}, obs.results)
}

func TestEngine_StatusErrors(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		calls   int
		results []string
	}{
		{name: "unauthorized is fatal", status: http.StatusUnauthorized, calls: 1, results: []string{"fatal"}},
		{name: "bad request is fatal", status: http.StatusBadRequest, calls: 1, results: []string{"fatal"}},
		{name: "rate limited is retried", status: http.StatusTooManyRequests, calls: 3,
			results: []string{"service_error", "service_error", "service_error"}},
		{name: "unavailable is retried", status: http.StatusServiceUnavailable, calls: 3,
			results: []string{"service_error", "service_error", "service_error"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &scripted{replies: []reply{{err: &llm.StatusError{StatusCode: tc.status, Body: "{}"}}}}
			obs := &recorder{}
			e := NewEngine(svc, quiet(), WithMaxAttempts(3), WithObserver(obs))

			assert.Empty(t, e.Extract(context.Background(), "u"))
			assert.Equal(t, tc.calls, svc.Calls())
			assert.Equal(t, tc.results, obs.results)
		})
	}
}

func TestEngine_WrappedStatusErrorIsFatal(t *testing.T) {
	svc := &scripted{replies: []reply{{err: fmt.Errorf("send: %w", &llm.StatusError{StatusCode: http.StatusForbidden})}}}
	e := NewEngine(svc, quiet())

	assert.Empty(t, e.Extract(context.Background(), "u"))
	assert.Equal(t, 1, svc.Calls())
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEngine_ObjectWithRefusalWordAcceptedFirstAttempt(t *testing.T) {
	svc := &scripted{replies: []reply{
		{text: `{"会社名":"Cannot Corp","備考":"I'm sorry we missed you"}`},
		{text: goodReply},
	}}
	obs := &recorder{}
	e := NewEngine(svc, quiet(), WithObserver(obs))

	got := e.Extract(context.Background(), "u")
	assert.Equal(t, "Cannot Corp", got.Get(constants.FieldCompany))
	assert.Equal(t, 1, svc.Calls())
	assert.Equal(t, []string{"ok"}, obs.results)
}
