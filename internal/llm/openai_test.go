package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAzureOpenAI_SendsOrderedTurnsToDeployment(t *testing.T) {
	var gotPath, gotKey, gotVersion string
	var gotBody struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("api-key")
		gotVersion = r.URL.Query().Get("api-version")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"What is your name?"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":5,"total_tokens":8}}`))
	}))
	defer srv.Close()

	c := NewAzureOpenAI(srv.URL+"/", "secret", "intake-gpt", "2024-02-01")
	resp, err := c.Generate(context.Background(), []Message{
		{Role: RoleSystem, Content: "be a receptionist"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: "hi"},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Content != "What is your name?" || resp.TotalTokens != 8 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if gotPath != "/openai/deployments/intake-gpt/chat/completions" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotKey != "secret" || gotVersion != "2024-02-01" {
		t.Fatalf("unexpected auth/version: %q %q", gotKey, gotVersion)
	}
	if len(gotBody.Messages) != 3 || gotBody.Messages[0].Role != "system" || gotBody.Messages[2].Content != "hi" {
		t.Fatalf("turn order not preserved: %+v", gotBody.Messages)
	}
}

func TestOpenAI_EmptyChoicesIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	c := NewOpenAI("k", srv.URL+"/v1", "gpt-4o-mini")
	_, err := c.Generate(context.Background(), []Message{{Role: RoleSystem, Content: "p"}})
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("want ErrEmptyCompletion, got %v", err)
	}
}

func TestOpenAI_ServiceErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	c := NewOpenAI("k", srv.URL+"/v1", "gpt-4o-mini")
	if _, err := c.Generate(context.Background(), []Message{{Role: RoleSystem, Content: "p"}}); err == nil {
		t.Fatalf("expected error on 429")
	}
}
