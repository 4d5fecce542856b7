package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"fbmonitor/internal/domain"
)

const completionBody = `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
"choices":[{"index":0,"message":{"role":"assistant","content":"Sure, it's available."},"finish_reason":"stop"}],
"usage":{"prompt_tokens":12,"completion_tokens":5,"total_tokens":17}}`

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) *OpenAI {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	o := NewOpenAI(OpenAIConfig{APIKey: "sk-test", APIBase: srv.URL + "/v1", Logger: testLogger(), Timeout: 5 * time.Second})
	o.retry.backoff = func(int) time.Duration { return time.Millisecond }
	return o
}

func TestOpenAI_CompleteSendsRequest(t *testing.T) {
	var got struct {
		Model       string               `json:"model"`
		Messages    []domain.PromptMessage `json:"messages"`
		MaxTokens   int                  `json:"max_tokens"`
		Temperature float32              `json:"temperature"`
	}
	o := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", auth)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody))
	})

	resp, err := o.Complete(context.Background(), domain.CompletionRequest{
		Messages:    []domain.PromptMessage{{Role: domain.RoleUser, Content: "available?"}},
		Model:       "gpt-test",
		MaxTokens:   80,
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Content != "Sure, it's available." || resp.Usage.TotalTokens != 17 || resp.Provider != "openai" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if got.Model != "gpt-test" || got.MaxTokens != 80 || len(got.Messages) != 1 || got.Temperature != 0.7 {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestOpenAI_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	o := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		_, _ = w.Write([]byte(completionBody))
	})

	resp, err := o.Complete(context.Background(), domain.CompletionRequest{Messages: []domain.PromptMessage{{Role: domain.RoleUser, Content: "hi"}}})
	if err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if resp.Content == "" || calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestOpenAI_DoesNotRetryAuthErrors(t *testing.T) {
	var calls atomic.Int32
	o := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	})

	if _, err := o.Complete(context.Background(), domain.CompletionRequest{Messages: []domain.PromptMessage{{Role: domain.RoleUser, Content: "hi"}}}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("401 should not be retried, got %d calls", calls.Load())
	}
}
