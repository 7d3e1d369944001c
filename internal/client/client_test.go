package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientNew(t *testing.T) {
	c := New("https://example.com/")

	if c.BaseURL != "https://example.com" {
		t.Errorf("expected base URL 'https://example.com', got '%s'", c.BaseURL)
	}
	if c.http == nil {
		t.Error("expected non-nil HTTP client")
	}
}

func TestVerifySplitsEnvelope(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/verifikasi/abc" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"success":false,"message":"Invalid Node"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"persisted":false,"token":"abc","ownerName":"Bob","status":"Active","plan":"pro","logs":[{"time":"10:00:00","status":"Active","ip":"1.1.1.1"}]}`))
	}))
	defer ts.Close()

	c := New(ts.URL)
	res, err := c.Verify(context.Background(), "abc")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.Bot.OwnerName != "Bob" || len(res.Bot.Logs) != 1 {
		t.Fatalf("unexpected bot: %+v", res.Bot)
	}
	if res.Persisted == nil || *res.Persisted {
		t.Fatalf("expected persisted=false, got %v", res.Persisted)
	}
	if _, ok := res.Bot.Extra["success"]; ok {
		t.Error("success must not leak into the record")
	}
	if string(res.Bot.Extra["plan"]) != `"pro"` {
		t.Errorf("expected extra field plan, got %q", res.Bot.Extra["plan"])
	}

	_, err = c.Verify(context.Background(), "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Message != "Invalid Node" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestSyncSendsEnvelope(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"registry commit: github api 409: conflict"}`))
	}))
	defer ts.Close()

	err := New(ts.URL).Sync(context.Background(), nil, "wipe")
	if err == nil || !strings.Contains(err.Error(), "409") {
		t.Fatalf("expected commit error, got %v", err)
	}
	if !strings.Contains(got, `"newList":[]`) || !strings.Contains(got, `"action":"wipe"`) {
		t.Fatalf("unexpected body %s", got)
	}
}
