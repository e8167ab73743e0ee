package qstash

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPublishPostsToDestination(t *testing.T) {
	t.Parallel()

	var (
		gotPath string
		gotAuth string
		gotBody map[string]any
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		fmt.Fprint(w, `{"messageId":"msg_1"}`)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		URL:         server.URL,
		Token:       "tok",
		Destination: "https://hooks.example.com/advice",
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	id, err := client.Publish(context.Background(), map[string]any{"kind": "plan.created"})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if id != "msg_1" {
		t.Fatalf("Publish() id = %q, want %q", id, "msg_1")
	}
	if gotPath != "/v2/publish/https://hooks.example.com/advice" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotBody["kind"] != "plan.created" {
		t.Fatalf("body = %#v", gotBody)
	}
}

func TestPublishHTTPError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"unauthorized"}`)
	}))
	t.Cleanup(server.Close)

	client := MustNew(Config{URL: server.URL, Token: "bad", Destination: "topic"})
	if _, err := client.Publish(context.Background(), map[string]any{}); err == nil {
		t.Fatal("Publish() expected error on 401")
	}
}

func TestNewClientRequiresDestination(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{URL: "https://qstash.upstash.io", Token: "tok"}); err == nil {
		t.Fatal("NewClient() expected error without destination")
	}
	if (Config{Token: "tok"}).Enabled() {
		t.Fatal("Enabled() = true without destination")
	}
}
