package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func newListServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestLoginPlainText(t *testing.T) {
	ts := newListServer(t, http.StatusOK, `[{"username":"admin","password":"hunter2"},{"username":"ops","password":"x"}]`)
	svc := NewService(NewHTTPSource(ts.URL, time.Second))

	user, err := svc.Login(context.Background(), "admin", "hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.Username != "admin" {
		t.Fatalf("unexpected user %q", user.Username)
	}

	if _, err := svc.Login(context.Background(), "admin", "Hunter2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "ops", "hunter2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for crossed pair, got %v", err)
	}
}

func TestLoginSkipsMalformedEntries(t *testing.T) {
	ts := newListServer(t, http.StatusOK, `[{"username":42,"password":"x"},null,"junk",{"password":""},{"username":"admin","password":"hunter2"}]`)
	svc := NewService(NewHTTPSource(ts.URL, time.Second))

	user, err := svc.Login(context.Background(), "admin", "hunter2")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.Username != "admin" {
		t.Fatalf("unexpected user %q", user.Username)
	}
	if _, err := svc.Login(context.Background(), "", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("empty credentials must not match a malformed entry, got %v", err)
	}
}

func TestLoginBcryptEntry(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	ts := newListServer(t, http.StatusOK, `[{"username":"root","password":"`+string(hash)+`"}]`)
	svc := NewService(NewHTTPSource(ts.URL, time.Second))

	if _, err := svc.Login(context.Background(), "root", "s3cret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := svc.Login(context.Background(), "root", string(hash)); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("hash itself must not be accepted as password, got %v", err)
	}
}

func TestLoginSourceFailures(t *testing.T) {
	cases := map[string]*httptest.Server{
		"server error": newListServer(t, http.StatusInternalServerError, `oops`),
		"not json":     newListServer(t, http.StatusOK, `<html></html>`),
		"not a list":   newListServer(t, http.StatusOK, `{"username":"admin"}`),
	}
	for name, ts := range cases {
		t.Run(name, func(t *testing.T) {
			svc := NewService(NewHTTPSource(ts.URL, time.Second))
			_, err := svc.Login(context.Background(), "admin", "hunter2")
			if !errors.Is(err, ErrAuthSource) {
				t.Fatalf("expected ErrAuthSource, got %v", err)
			}
		})
	}
}

func TestLoginUnreachableSource(t *testing.T) {
	ts := newListServer(t, http.StatusOK, `[]`)
	url := ts.URL
	ts.Close()

	svc := NewService(NewHTTPSource(url, time.Second))
	if _, err := svc.Login(context.Background(), "admin", "hunter2"); !errors.Is(err, ErrAuthSource) {
		t.Fatalf("expected ErrAuthSource, got %v", err)
	}
}

func TestPasswordMatches(t *testing.T) {
	if !PasswordMatches("abc", "abc") {
		t.Fatal("expected plain match")
	}
	if PasswordMatches("abc", "abcd") {
		t.Fatal("unexpected match")
	}
	if PasswordMatches("", "x") {
		t.Fatal("unexpected match on empty stored password")
	}
}
