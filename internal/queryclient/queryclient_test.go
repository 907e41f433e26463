package queryclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestQuerySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(queryResponse{Data: map[string]any{"status": "running"}})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, 3)
	data, err := c.Query(context.Background(), "{ status }")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data["status"] != "running" {
		t.Fatalf("expected status=running, got %v", data)
	}
}

func TestQueryLogicalErrorNotRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, 3)
	_, err := c.Query(context.Background(), "{ status }")
	if err == nil {
		t.Fatalf("expected error for 4xx response")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly one attempt for a logical error, got %d", attempts)
	}
}

func TestQueryTransportErrorRetriedUntilSuccess(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(queryResponse{Data: map[string]any{"status": "ok"}})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, 3)
	data, err := c.Query(context.Background(), "{ status }")
	if err != nil {
		t.Fatalf("unexpected error after retry: %v", err)
	}
	if data["status"] != "ok" {
		t.Fatalf("expected eventual success, got %v", data)
	}
	if attempts != 2 {
		t.Fatalf("expected exactly two attempts, got %d", attempts)
	}
}

func TestQueryTransportErrorExhaustsRetries(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, 1)
	_, err := c.Query(context.Background(), "{ status }")
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if attempts != 2 {
		t.Fatalf("expected maxRetries+1=2 attempts, got %d", attempts)
	}
}

func TestHealthCheckDoesNotRetry(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, 5)
	if c.HealthCheck(context.Background()) {
		t.Fatalf("expected health check to report unhealthy")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly one health check attempt, got %d", attempts)
	}
}

func TestResolveEndpoint(t *testing.T) {
	if got := ResolveEndpoint("https://example.com/graphql", "10.0.0.1"); got != "https://example.com/graphql" {
		t.Fatalf("expected absolute endpoint unchanged, got %s", got)
	}
	if got := ResolveEndpoint("/graphql", "10.0.0.1"); got != "http://10.0.0.1:8080/graphql" {
		t.Fatalf("expected resolved pod endpoint, got %s", got)
	}
}
