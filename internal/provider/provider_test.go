package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/x-agent/internal/failure"
	"github.com/xaenox/x-agent/internal/metrics"
)

func geminiServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32, *[]map[string]any) {
	t.Helper()
	var calls atomic.Int32
	var mu sync.Mutex
	var requests []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			http.NotFound(w, r)
			return
		}
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		mu.Lock()
		requests = append(requests, payload)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, &requests
}

func groqServer(t *testing.T, status int, body string) (*httptest.Server, *[]map[string]any) {
	t.Helper()
	var mu sync.Mutex
	var requests []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer groq-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		mu.Lock()
		requests = append(requests, payload)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

const geminiOK = `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"post_text\":\"hello\"}"}]},"finishReason":"STOP"}]}`

func TestGeminiGenerate(t *testing.T) {
	srv, calls, requests := geminiServer(t, http.StatusOK, geminiOK)
	m := metrics.New(prometheus.NewRegistry())
	g := NewGemini(GeminiConfig{APIKey: "key", Model: "gemini-test", BaseURL: srv.URL}, m, zap.NewNop())

	text, err := g.Generate(context.Background(), Request{
		System:   "You are a writer.",
		Prompt:   "Write a post",
		Document: &Document{Data: []byte("%PDF-1.4"), MimeType: "application/pdf"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"post_text":"hello"}`, text)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderCalls.WithLabelValues("gemini", "ok")))

	require.Len(t, *requests, 1)
	raw, _ := json.Marshal((*requests)[0])
	assert.Contains(t, string(raw), "You are a writer.\\n\\nWrite a post")
	assert.Contains(t, string(raw), "application/pdf")
	assert.Contains(t, string(raw), "BLOCK_NONE")
}

func TestGeminiMissingCredential(t *testing.T) {
	srv, calls, _ := geminiServer(t, http.StatusOK, geminiOK)
	g := NewGemini(GeminiConfig{BaseURL: srv.URL}, nil, zap.NewNop())

	_, err := g.Generate(context.Background(), Request{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, failure.KindMissingCredential, failure.KindOf(err))
	assert.Equal(t, int32(0), calls.Load(), "no call is attempted without a credential")
}

func TestGeminiErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   failure.Kind
	}{
		{"rate limited", 429, `{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`, failure.KindRateLimited},
		{"forbidden", 403, `{"error":{"code":403,"message":"denied","status":"PERMISSION_DENIED"}}`, failure.KindForbidden},
		{"bad request", 400, `{"error":{"code":400,"message":"bad model","status":"INVALID_ARGUMENT"}}`, failure.KindProvider},
		{"no candidates", 200, `{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`, failure.KindEmptyResponse},
		{"no text", 200, `{"candidates":[{"content":{"role":"model","parts":[]},"finishReason":"SAFETY"}]}`, failure.KindEmptyResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, _ := geminiServer(t, tt.status, tt.body)
			g := NewGemini(GeminiConfig{APIKey: "key", Model: "gemini-test", BaseURL: srv.URL}, nil, zap.NewNop())

			_, err := g.Generate(context.Background(), Request{Prompt: "x"})
			require.Error(t, err)
			assert.Equal(t, tt.want, failure.KindOf(err), err.Error())
		})
	}
}

func TestGeminiProviderErrorCarriesStatusAndBody(t *testing.T) {
	srv, _, _ := geminiServer(t, 400, `{"error":{"code":400,"message":"bad model","status":"INVALID_ARGUMENT"}}`)
	g := NewGemini(GeminiConfig{APIKey: "key", Model: "gemini-test", BaseURL: srv.URL}, nil, zap.NewNop())

	_, err := g.Generate(context.Background(), Request{Prompt: "x"})
	var fe *failure.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 400, fe.Status)
	assert.Contains(t, fe.Body, "bad model")
}

func TestGroqGenerate(t *testing.T) {
	srv, requests := groqServer(t, http.StatusOK,
		`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"summary\":\"ok\"}"},"finish_reason":"stop"}]}`)
	g := NewGroq(GroqConfig{APIKey: "groq-key", BaseURL: srv.URL}, nil, zap.NewNop())

	text, err := g.Generate(context.Background(), Request{System: "Return ONLY a JSON object.", Prompt: "Analyze"})
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"ok"}`, text)

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Equal(t, DefaultGroqModel, req["model"])
	msgs := req["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "Return ONLY a JSON object.", msgs[0].(map[string]any)["content"])
	assert.Equal(t, "Analyze", msgs[1].(map[string]any)["content"])
}

func TestGroqErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   failure.Kind
	}{
		{"rate limited", 429, `{"error":{"message":"Rate limit reached","type":"tokens","code":"rate_limit_exceeded"}}`, failure.KindRateLimited},
		{"forbidden", 403, `{"error":{"message":"Forbidden","type":"permission"}}`, failure.KindForbidden},
		{"server error", 503, `{"error":{"message":"overloaded","type":"server"}}`, failure.KindProvider},
		{"empty content", 200, `{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"  "}}]}`, failure.KindEmptyResponse},
		{"no choices", 200, `{"id":"1","choices":[]}`, failure.KindEmptyResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := groqServer(t, tt.status, tt.body)
			g := NewGroq(GroqConfig{APIKey: "groq-key", BaseURL: srv.URL}, nil, zap.NewNop())

			_, err := g.Generate(context.Background(), Request{Prompt: "x"})
			require.Error(t, err)
			assert.Equal(t, tt.want, failure.KindOf(err), err.Error())
		})
	}
}

func TestGroqMissingCredential(t *testing.T) {
	g := NewGroq(GroqConfig{}, nil, zap.NewNop())
	_, err := g.Generate(context.Background(), Request{Prompt: "x"})
	assert.Equal(t, failure.KindMissingCredential, failure.KindOf(err))
}

func TestLazyClientIsSharedAcrossConcurrentCalls(t *testing.T) {
	srv, _ := groqServer(t, http.StatusOK,
		`{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"{}"}}]}`)
	g := NewGroq(GroqConfig{APIKey: "groq-key", BaseURL: srv.URL}, nil, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Generate(context.Background(), Request{Prompt: "x"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Same(t, g.getClient(), g.getClient())
}

func TestThrottleHonoursCancelledContext(t *testing.T) {
	l := newLimiter(1)
	require.NotNil(t, l)
	require.NoError(t, throttle(context.Background(), l, "groq"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := throttle(ctx, l, "groq")
	require.Error(t, err)
	assert.Equal(t, failure.KindProvider, failure.KindOf(err))
	assert.Nil(t, newLimiter(0))
}
