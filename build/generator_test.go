// ABOUTME: Tests for the HTTP generator against an httptest server.
// ABOUTME: Verifies the request body, streamed success, and mapping of non-2xx error bodies.

package build

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPGeneratorStreamsBody(t *testing.T) {
	var got GenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer tok" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, sseBody("<html></html>"))
	}))
	defer srv.Close()

	g := NewHTTPGenerator(srv.URL)
	g.Header = http.Header{"Authorization": {"Bearer tok"}}
	body, err := g.Generate(context.Background(), GenerateRequest{
		Messages:    []ChatMessage{{Role: "user", Content: "hi"}},
		IsFollowUp:  true,
		CurrentCode: "<p>old</p>",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(raw), "[DONE]") {
		t.Errorf("body = %q", raw)
	}
	if !got.IsFollowUp || got.CurrentCode != "<p>old</p>" {
		t.Errorf("request = %+v", got)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "hi" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestHTTPGeneratorMapsErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":"model overloaded"}`)
	}))
	defer srv.Close()

	_, err := NewHTTPGenerator(srv.URL).Generate(context.Background(), GenerateRequest{})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusServiceUnavailable || httpErr.Message != "model overloaded" {
		t.Errorf("error = %+v", httpErr)
	}
	if !httpErr.Retryable() {
		t.Error("503 should be retryable")
	}
}

func TestHTTPGeneratorPlainErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewHTTPGenerator(srv.URL).Generate(context.Background(), GenerateRequest{})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *HTTPError, got %v", err)
	}
	if httpErr.Message != "nope" {
		t.Errorf("message = %q", httpErr.Message)
	}
	if httpErr.Retryable() {
		t.Error("400 should not be retryable")
	}
}
