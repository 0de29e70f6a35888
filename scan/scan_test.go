package scan

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const contactPage = `<html><head><script>var x = "hidden@script.io";</script></head><body>
<p>Write to press@example.com or PRESS@example.com.</p>
<div>sales@example.org</div><div>next block</div>
<a href="mailto:booking@example.net?subject=hi">Booking</a>
<a href="MAILTO:caps@example.net">Caps</a>
<a href="mailto:not-an-address">Broken</a>
<a href="/about">About</a>
<a href="https://twitter.com/someone">Twitter</a>
<a href="https://kick.com/other">Kick</a>
<a href="https://twitter.com/someone">Twitter again</a>
<a href="javascript:void(0)">JS</a>
<a href="#top">Top</a>
<a href="">Empty</a>
</body></html>`

func TestExtract(t *testing.T) {
	res, err := Extract(contactPage, "https://kick.com/somechannel")
	if err != nil {
		t.Fatal(err)
	}

	wantEmails := []string{"press@example.com", "PRESS@example.com", "sales@example.org", "booking@example.net"}
	if diff := cmp.Diff(wantEmails, res.Emails); diff != "" {
		t.Errorf("emails (-want +got):\n%s", diff)
	}

	wantLinks := []string{
		"https://kick.com/about",
		"https://twitter.com/someone",
		"https://kick.com/other",
		"https://kick.com/somechannel#top",
		"https://kick.com/somechannel",
	}
	if diff := cmp.Diff(wantLinks, res.Links); diff != "" {
		t.Errorf("links (-want +got):\n%s", diff)
	}
}

func TestExternal(t *testing.T) {
	r := Result{Links: []string{"https://kick.com/a", "https://KICK.com/b", "https://x.org/", "https://www.kick.com/c"}}
	if diff := cmp.Diff([]string{"https://x.org/"}, r.External("kick.com")); diff != "" {
		t.Errorf("External (-want +got):\n%s", diff)
	}
	if len(r.External("")) != 4 {
		t.Error("empty host should keep everything")
	}
}

func TestRestricted(t *testing.T) {
	for _, u := range []string{"", "chrome://settings", "chrome-extension://abc/popup.html", "edge://flags", "about:blank", "file:///etc/passwd"} {
		if !Restricted(u) {
			t.Errorf("%q should be restricted", u)
		}
	}
	for _, u := range []string{"https://kick.com/", "http://example.com"} {
		if Restricted(u) {
			t.Errorf("%q should not be restricted", u)
		}
	}
}

func TestScanRestrictedDoesNotFetch(t *testing.T) {
	s := New(FetcherFunc(func(context.Context, string) (string, error) {
		t.Fatal("fetch called for restricted url")
		return "", nil
	}))
	if _, err := s.Scan(context.Background(), "about:blank"); !errors.Is(err, ErrRestricted) {
		t.Fatalf("got %v", err)
	}
}

func TestScanTimeout(t *testing.T) {
	s := New(FetcherFunc(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}), WithTimeout(20*time.Millisecond))

	_, err := s.Scan(context.Background(), "https://slow.example")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v", err)
	}
	if Message(err) != "Page took too long to respond. Try refreshing the tab." {
		t.Errorf("message: %q", Message(err))
	}
}

func TestScanTimeoutWithStuckFetcher(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	s := New(FetcherFunc(func(context.Context, string) (string, error) {
		<-release
		return "", nil
	}), WithTimeout(20*time.Millisecond))

	if _, err := s.Scan(context.Background(), "https://stuck.example"); !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v", err)
	}
}

func TestScanEmptyPage(t *testing.T) {
	s := New(FetcherFunc(func(context.Context, string) (string, error) { return "  ", nil }))
	_, err := s.Scan(context.Background(), "https://empty.example")
	if !errors.Is(err, ErrUnreadable) {
		t.Fatalf("got %v", err)
	}
}

func TestMessage(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{ErrRestricted, "Cannot read this page. Open a normal website first."},
		{ErrTimeout, "Page took too long to respond. Try refreshing the tab."},
		{ErrUnreadable, "Could not read page."},
		{ErrNoTab, "No active tab."},
		{errors.New("boom"), "boom"},
		{errors.New(""), "Something went wrong."},
	}
	for _, tc := range cases {
		if got := Message(tc.err); got != tc.want {
			t.Errorf("Message(%v): got %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		if !strings.Contains(r.Header.Get("User-Agent"), "kickguard") {
			t.Errorf("user agent: %q", r.Header.Get("User-Agent"))
		}
		w.Write([]byte(contactPage))
	}))
	defer srv.Close()

	s := New(NewHTTPFetcher())
	res, err := s.Scan(context.Background(), srv.URL+"/contact")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Emails) != 4 {
		t.Errorf("emails: %v", res.Emails)
	}
	if _, err := s.Scan(context.Background(), srv.URL+"/missing"); err == nil {
		t.Error("404 should fail")
	}
}

func TestAutoFetcherEscalates(t *testing.T) {
	shell := `<html><body><div id="root"></div><script src="/app.js"></script></body></html>`
	rendered := `<html><body><p>contact@rendered.io</p></body></html>`
	browserCalls := 0

	auto := NewAutoFetcher(
		FetcherFunc(func(context.Context, string) (string, error) { return shell, nil }),
		FetcherFunc(func(context.Context, string) (string, error) { browserCalls++; return rendered, nil }),
		nil,
	)
	got, err := auto.Fetch(context.Background(), "https://spa.example")
	if err != nil {
		t.Fatal(err)
	}
	if got != rendered || browserCalls != 1 {
		t.Errorf("escalation: calls=%d got=%q", browserCalls, got)
	}
}

func TestAutoFetcherKeepsRichHTML(t *testing.T) {
	rich := "<html><body><article>" + strings.Repeat("Plenty of server rendered prose here. ", 30) + "</article></body></html>"
	auto := NewAutoFetcher(
		FetcherFunc(func(context.Context, string) (string, error) { return rich, nil }),
		FetcherFunc(func(context.Context, string) (string, error) {
			t.Error("browser should not be used")
			return "", nil
		}),
		nil,
	)
	if _, err := auto.Fetch(context.Background(), "https://static.example"); err != nil {
		t.Fatal(err)
	}
}

func TestNeedsBrowser(t *testing.T) {
	if !NeedsBrowser([]byte("<html></html>")) {
		t.Error("tiny document should need a browser")
	}
	script := "<html><body><script>" + strings.Repeat("var a=1;", 200) + "</script><p>hi</p></body></html>"
	if !NeedsBrowser([]byte(script)) {
		t.Error("script-only document should need a browser")
	}
}
