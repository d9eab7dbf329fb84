package models

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func roundTrip(t *testing.T, handler http.HandlerFunc) (*http.Response, error) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	transport := &validatingTransport{inner: http.DefaultTransport, provider: "ollama"}
	req, err := http.NewRequest("POST", srv.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	return transport.RoundTrip(req)
}

func TestValidatingTransportPassesJSON(t *testing.T) {
	resp, err := roundTrip(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"test"}`))
	})
	if err != nil {
		t.Fatalf("RoundTrip() error = %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"model":"test"}` {
		t.Errorf("body = %q, want untouched JSON", body)
	}
}

func TestValidatingTransportPassesNDJSON(t *testing.T) {
	resp, err := roundTrip(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Write([]byte(`{"done":false}` + "\n"))
	})
	if err != nil {
		t.Fatalf("RoundTrip() error = %v for streaming content type", err)
	}
	resp.Body.Close()
}

func TestValidatingTransportRejectsPlainText(t *testing.T) {
	_, err := roundTrip(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("no available server"))
	})
	if err == nil {
		t.Fatal("RoundTrip() expected error for plain-text response")
	}

	var unavail *ErrModelUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("error type = %T, want *ErrModelUnavailable", err)
	}
	if unavail.Provider != "ollama" {
		t.Errorf("Provider = %q, want ollama", unavail.Provider)
	}
	if !strings.Contains(unavail.Body, "no available server") {
		t.Errorf("Body = %q, want proxy message preserved", unavail.Body)
	}
}

func TestValidatingTransportRejectsServerError(t *testing.T) {
	_, err := roundTrip(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("service unavailable"))
	})

	var unavail *ErrModelUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("error = %v, want *ErrModelUnavailable", err)
	}
	if !strings.Contains(unavail.Body, "service unavailable") {
		t.Errorf("Body = %q, want error page body", unavail.Body)
	}
}

func TestValidatingTransportWrapsDialFailure(t *testing.T) {
	transport := &validatingTransport{inner: http.DefaultTransport, provider: "ollama"}
	req, _ := http.NewRequest("POST", "http://127.0.0.1:1", nil) // nothing listening
	_, err := transport.RoundTrip(req)

	var unavail *ErrModelUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("error = %v, want *ErrModelUnavailable", err)
	}
	if unavail.Cause == nil {
		t.Error("Cause is nil, want the dial error preserved")
	}
}
