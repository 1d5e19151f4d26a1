package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSendPostsToBotEndpoint(t *testing.T) {
	var gotPath string
	var gotBody sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewSender("test-token", srv.URL, 5*time.Second, nil)
	err := s.Send(context.Background(), map[string]string{"chat_id": "42"}, "meeting in 10 minutes")
	if err != nil {
		t.Fatal(err)
	}
	if gotPath != "/bottest-token/sendMessage" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotBody.ChatID != 42 || gotBody.Text != "meeting in 10 minutes" {
		t.Fatalf("body = %#v", gotBody)
	}
	if gotBody.ParseMode != "Markdown" {
		t.Fatalf("parse_mode = %q, want Markdown first", gotBody.ParseMode)
	}
}

func TestSendFallsBackToPlainOnParseError(t *testing.T) {
	var modes []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req sendMessageRequest
		json.NewDecoder(r.Body).Decode(&req)
		modes = append(modes, req.ParseMode)
		if req.ParseMode == "Markdown" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: can't parse entities"}`))
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewSender("t", srv.URL, 5*time.Second, nil)
	err := s.Send(context.Background(), map[string]string{"chat_id": "1"}, "broken *markdown")
	if err != nil {
		t.Fatal(err)
	}
	if len(modes) != 2 || modes[0] != "Markdown" || modes[1] != "" {
		t.Fatalf("modes = %v", modes)
	}
}

func TestSendSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
	}))
	defer srv.Close()

	s := NewSender("t", srv.URL, 5*time.Second, nil)
	err := s.Send(context.Background(), map[string]string{"chat_id": "1"}, "hi")
	if err == nil {
		t.Fatal("expected error")
	}
	reqErr, ok := err.(*requestError)
	if !ok || reqErr.StatusCode != http.StatusForbidden {
		t.Fatalf("err = %v", err)
	}
}

func TestSendRejectsBadConfig(t *testing.T) {
	s := NewSender("t", "http://unused", time.Second, nil)
	if err := s.Send(context.Background(), map[string]string{}, "hi"); err == nil {
		t.Fatal("expected error for missing chat_id")
	}
	if err := s.Send(context.Background(), map[string]string{"chat_id": "abc"}, "hi"); err == nil {
		t.Fatal("expected error for non-numeric chat_id")
	}
	if err := s.Send(context.Background(), map[string]string{"chat_id": "1"}, "  "); err == nil {
		t.Fatal("expected error for empty content")
	}
}
