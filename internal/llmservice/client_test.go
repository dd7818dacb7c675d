package llmservice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"book-reader/internal/config"
)

func TestStripThinking(t *testing.T) {
	tests := map[string]string{
		"plain":                                   "plain",
		"<think>hmm\nlet me see</think>\n answer ": "answer",
		"<think>a</think>x<think>b</think>y":      "xy",
	}
	for in, want := range tests {
		if got := StripThinking(in); got != want {
			t.Errorf("StripThinking(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNew_Providers(t *testing.T) {
	t.Setenv("BOOKQA_TEST_MISSING_KEY", "")
	if _, err := New(&config.LLMConfig{Provider: "bard"}); err == nil {
		t.Fatal("unknown provider should fail")
	}
	if _, err := New(&config.LLMConfig{Provider: "openai", KeyEnv: "BOOKQA_TEST_MISSING_KEY"}); err == nil {
		t.Fatal("openai without key should fail")
	}
	if _, err := New(&config.LLMConfig{Provider: "ollama", BaseURL: "http://localhost:11434", Model: "llama3.2"}); err != nil {
		t.Fatalf("ollama client: %v", err)
	}
}

func TestComplete_OpenAICompatible(t *testing.T) {
	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Messages []struct {
				Content json.RawMessage `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) > 0 {
			gotPrompt = string(req.Messages[0].Content)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","created":1,"model":"test",
			"choices":[{"index":0,"message":{"role":"assistant","content":"<think>x</think>{\"answer\":\"Paris\",\"confidence\":0.9}"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
	}))
	defer srv.Close()

	c, err := New(&config.LLMConfig{Provider: "openai", BaseURL: srv.URL, Model: "test", Key: "k"})
	if err != nil {
		t.Fatal(err)
	}
	out, err := c.Complete(context.Background(), "What is the capital of France?")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out != `{"answer":"Paris","confidence":0.9}` {
		t.Fatalf("Complete = %q", out)
	}
	if !strings.Contains(gotPrompt, "What is the capital of France?") {
		t.Fatalf("server saw prompt %q", gotPrompt)
	}
}
