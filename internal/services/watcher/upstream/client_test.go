package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewClientRejectsRelativeBaseURL(t *testing.T) {
	if _, err := NewClient(Options{BaseURL: "/relative"}); err == nil {
		t.Fatal("expected error for relative base url")
	}
}

func TestLatestURL(t *testing.T) {
	client, err := NewClient(Options{BaseURL: "https://upstream.example/"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	got := client.LatestURL("games", 3)
	want := "https://upstream.example/sam/latest_alpha/latest_data.php?cat=games&cmd=list&page=3&rows=90&sort=date"
	if got != want {
		t.Fatalf("LatestURL = %q, want %q", got, want)
	}
}

func TestVersionCheckURLKeepsCommaSeparatedIDs(t *testing.T) {
	client, err := NewClient(Options{BaseURL: "https://upstream.example"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	got := client.VersionCheckURL([]string{"1", "22", "333"})
	want := "https://upstream.example/sam/checker.php?threads=1,22,333"
	if got != want {
		t.Fatalf("VersionCheckURL = %q, want %q", got, want)
	}
}

func TestLatestSendsSessionCookiesAndReturnsBody(t *testing.T) {
	var gotCookie, gotAgent, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != latestPath {
			t.Errorf("path = %q, want %q", r.URL.Path, latestPath)
		}
		if c, err := r.Cookie("xf_user"); err == nil {
			gotCookie = c.Value
		}
		gotAgent = r.Header.Get("User-Agent")
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"status":"ok","msg":{"data":[]}}`))
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Options{
		BaseURL:   server.URL,
		Cookies:   "xf_user=session-token; xf_csrf=abc",
		UserAgent: "threadwatch-test",
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	body, err := client.Latest(context.Background(), "comics", 2)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if string(body) != `{"status":"ok","msg":{"data":[]}}` {
		t.Fatalf("body = %q", body)
	}
	if gotCookie != "session-token" {
		t.Fatalf("cookie = %q, want %q", gotCookie, "session-token")
	}
	if gotAgent != "threadwatch-test" {
		t.Fatalf("user agent = %q, want %q", gotAgent, "threadwatch-test")
	}
	if !strings.Contains(gotQuery, "cat=comics") || !strings.Contains(gotQuery, "page=2") {
		t.Fatalf("query = %q, want category and page", gotQuery)
	}
}

func TestLatestRejectsPageZero(t *testing.T) {
	client, err := NewClient(Options{BaseURL: "https://upstream.example"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Latest(context.Background(), "games", 0); err == nil {
		t.Fatal("expected error for page 0")
	}
}

func TestCheckVersionsRejectsEmptyBatch(t *testing.T) {
	client, err := NewClient(Options{BaseURL: "https://upstream.example"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.CheckVersions(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty batch")
	}
}

func TestNon2xxResponsesBecomeUpstreamErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantFlag string
	}{
		{name: "rate limit page", status: http.StatusTooManyRequests, body: "<html><title>429 Too Many Requests</title></html>", wantFlag: FlagRateLimited},
		{name: "bare status", status: http.StatusTeapot, body: "nope", wantFlag: "http_418"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			t.Cleanup(server.Close)

			client, err := NewClient(Options{BaseURL: server.URL})
			if err != nil {
				t.Fatalf("new client: %v", err)
			}
			_, err = client.CheckVersions(context.Background(), []string{"1"})
			var upstreamErr *Error
			if !errors.As(err, &upstreamErr) {
				t.Fatalf("err = %v, want *Error", err)
			}
			if upstreamErr.Flag != tc.wantFlag {
				t.Fatalf("flag = %q, want %q", upstreamErr.Flag, tc.wantFlag)
			}
			if upstreamErr.StatusCode != tc.status {
				t.Fatalf("status = %d, want %d", upstreamErr.StatusCode, tc.status)
			}
		})
	}
}

func TestNon2xxJSONEnvelopeIsReturnedForDecoding(t *testing.T) {
	const notFound = `{"status":"error","msg":"Thread not found"}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(notFound))
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Options{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	body, err := client.CheckVersions(context.Background(), []string{"1", "2"})
	if err != nil {
		t.Fatalf("check versions: %v", err)
	}
	if string(body) != notFound {
		t.Fatalf("body = %q, want %q", body, notFound)
	}
	if _, err := DecodeVersions(body); !errors.Is(err, ErrThreadNotFound) {
		t.Fatalf("decode err = %v, want ErrThreadNotFound", err)
	}
}
