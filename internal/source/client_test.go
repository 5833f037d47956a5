package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestClient(baseURL string, cookies []Cookie) *Client {
	return NewClient(Options{
		BaseURL:   baseURL,
		UserAgent: "test",
		Timeout:   time.Second,
		Cookies:   cookies,
	}, zerolog.Nop())
}

func TestVerifyAuthenticated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ideas" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if _, err := r.Cookie("forum_session"); err != nil {
			t.Fatal("session cookie should be forwarded")
		}
		w.Write([]byte(`<html><body><a href="/logout">Logout</a></body></html>`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, []Cookie{{Name: "forum_session", Value: "abc"}})
	if err := c.Verify(context.Background()); err != nil {
		t.Fatalf("authenticated session should verify: %v", err)
	}
}

func TestVerifyUnauthenticated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><a href="/login">Login</a></body></html>`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, nil)
	if err := c.Verify(context.Background()); !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
}

func TestFetchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, nil)
	if _, err := c.LatestIdeas(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestLatestIdeasEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(feedFixture))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, nil)
	ideas, err := c.LatestIdeas(context.Background())
	if err != nil {
		t.Fatalf("LatestIdeas: %v", err)
	}
	if len(ideas) != 2 {
		t.Fatalf("expected 2 ideas, got %d", len(ideas))
	}
}
