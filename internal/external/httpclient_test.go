package external

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPCompleterPostsPromptAndDecodesText(t *testing.T) {
	var gotReq completionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing auth header")
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(completionResponse{Text: "child tasks here"})
	}))
	defer srv.Close()

	c := NewHTTPCompleter(srv.URL, "tok")
	out, err := c.Complete(context.Background(), "decompose this", CompletionOptions{MaxTokens: 512})
	if err != nil {
		t.Fatal(err)
	}
	if out != "child tasks here" {
		t.Fatalf("got %q", out)
	}
	if gotReq.Prompt != "decompose this" || gotReq.MaxTokens != 512 {
		t.Fatalf("unexpected request: %+v", gotReq)
	}
}

func TestHTTPCompleterReturnsErrorOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPCompleter(srv.URL, "")
	if _, err := c.Complete(context.Background(), "x", CompletionOptions{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestHTTPCodeMapperDecodesSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(CodebaseSummary{Languages: []string{"go"}, Notes: "ok"})
	}))
	defer srv.Close()

	m := NewHTTPCodeMapper(srv.URL, "")
	summary, err := m.Summarize(context.Background(), "/repo")
	if err != nil {
		t.Fatal(err)
	}
	if len(summary.Languages) != 1 || summary.Languages[0] != "go" {
		t.Fatalf("got %+v", summary)
	}
}
