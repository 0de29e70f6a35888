package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/quic-go/quic-go"

	"github.com/hazyhaar/kickguard/guard"
)

func testServer(t *testing.T, opts ...Option) (*Server, context.Context) {
	t.Helper()
	cfg := guard.DefaultConfig()
	cfg.Store.Backend = "memory"
	cfg.Scan.Fetch = "http"
	cfg.Scan.ExcludeHost = "127.0.0.1"
	g := guard.New(cfg, nil)
	t.Cleanup(g.Stop)

	tlsCfg, err := SelfSignedTLS()
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(g, "test", tlsCfg, append([]Option{WithLogger(logger)}, opts...)...)
	if err := srv.Listen("127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)
	go srv.Serve(ctx)
	t.Cleanup(func() { srv.Close() })
	return srv, ctx
}

func dial(t *testing.T, ctx context.Context, srv *Server) *Client {
	t.Helper()
	c, err := Dial(ctx, srv.Addr().String(), ClientTLS(true))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func waitSessions(t *testing.T, srv *Server, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for len(srv.Sessions()) != want {
		if time.Now().After(deadline) {
			t.Fatalf("sessions: got %d, want %d", len(srv.Sessions()), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPreamble(t *testing.T) {
	var buf bytes.Buffer
	if err := writePreamble(&buf); err != nil {
		t.Fatal(err)
	}
	if err := readPreamble(&buf); err != nil {
		t.Fatalf("own preamble rejected: %v", err)
	}
	if err := readPreamble(bytes.NewReader([]byte("HTTP"))); !errors.Is(err, ErrBadPreamble) {
		t.Errorf("HTTP preamble: got %v, want ErrBadPreamble", err)
	}
	if err := readPreamble(bytes.NewReader([]byte("KG"))); err == nil {
		t.Error("short preamble accepted")
	}
}

func TestTLSConfigs(t *testing.T) {
	srv, err := SelfSignedTLS()
	if err != nil {
		t.Fatal(err)
	}
	if len(srv.Certificates) != 1 || srv.MinVersion != 0x0304 {
		t.Errorf("server tls: %d certs, min %x", len(srv.Certificates), srv.MinVersion)
	}
	if diff := cmp.Diff([]string{ALPN}, srv.NextProtos); diff != "" {
		t.Errorf("server ALPN (-want +got):\n%s", diff)
	}
	if ClientTLS(false).InsecureSkipVerify || !ClientTLS(true).InsecureSkipVerify {
		t.Error("ClientTLS insecure flag not applied")
	}
	if _, err := LoadServerTLS("/nonexistent.crt", "/nonexistent.key"); err == nil {
		t.Error("missing key pair accepted")
	}
}

func TestQUICConfigNo0RTT(t *testing.T) {
	if quicConfig().Allow0RTT {
		t.Error("0-RTT must stay disabled")
	}
}

func TestRemoteVerifiedRoundTrip(t *testing.T) {
	srv, ctx := testServer(t)
	c := dial(t, ctx, srv)
	u := "https://kick.com/foo"

	for i, wantAdded := range []bool{true, false} {
		saved, err := c.SaveVerified(ctx, u)
		if err != nil {
			t.Fatal(err)
		}
		if saved.Added != wantAdded {
			t.Errorf("save %d: added = %v, want %v", i+1, saved.Added, wantAdded)
		}
	}

	list, err := c.ListVerified(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{u}, list.Links); diff != "" {
		t.Errorf("list (-want +got):\n%s", diff)
	}

	check, err := c.CheckVerified(ctx, u)
	if err != nil || !check.Verified {
		t.Errorf("check = %+v, %v", check, err)
	}
	check, err = c.CheckVerified(ctx, u+"/")
	if err != nil || check.Verified {
		t.Errorf("membership must be exact: %+v, %v", check, err)
	}
}

func TestRemoteSaveRejectsRestricted(t *testing.T) {
	srv, ctx := testServer(t)
	c := dial(t, ctx, srv)

	_, err := c.SaveVerified(ctx, "chrome://settings")
	var te *ToolError
	if !errors.As(err, &te) || te.Tool != guard.ToolSaveVerified {
		t.Fatalf("got %v, want a save tool error", err)
	}
}

func TestRemoteScan(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><p>press@example.org</p>
<a href="https://twitter.com/kick">X</a><a href="/about">About</a></body></html>`)
	}))
	defer site.Close()

	srv, ctx := testServer(t)
	c := dial(t, ctx, srv)

	res, err := c.Scan(ctx, site.URL+"/contact")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"press@example.org"}, res.Emails); diff != "" {
		t.Errorf("emails (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"https://twitter.com/kick"}, res.External); diff != "" {
		t.Errorf("external (-want +got):\n%s", diff)
	}
}

func TestRemoteScanRestrictedMessage(t *testing.T) {
	srv, ctx := testServer(t)
	c := dial(t, ctx, srv)

	_, err := c.Scan(ctx, "chrome://extensions")
	var te *ToolError
	if !errors.As(err, &te) {
		t.Fatalf("got %v, want ToolError", err)
	}
	if te.Message != "Cannot read this page. Open a normal website first." {
		t.Errorf("message = %q", te.Message)
	}
}

func TestSessionsTracked(t *testing.T) {
	srv, ctx := testServer(t, WithSessionIDs(func() string { return "rs_fixed" }))
	c := dial(t, ctx, srv)
	waitSessions(t, srv, 1)
	if got := srv.Sessions()[0].ID; got != "rs_fixed" {
		t.Errorf("session id = %q", got)
	}

	c.Close()
	waitSessions(t, srv, 0)
}

func TestSessionLimit(t *testing.T) {
	srv, ctx := testServer(t, WithMaxSessions(1))
	first := dial(t, ctx, srv)
	waitSessions(t, srv, 1)

	dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if c, err := Dial(dctx, srv.Addr().String(), ClientTLS(true)); err == nil {
		c.Close()
		t.Fatal("second session admitted over the limit")
	}

	if _, err := first.ListVerified(ctx); err != nil {
		t.Errorf("first session broken by the refused one: %v", err)
	}
}

func TestBadPreambleClosesConnection(t *testing.T) {
	srv, ctx := testServer(t)

	conn, err := quic.DialAddr(ctx, srv.Addr().String(), ClientTLS(true), quicConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.CloseWithError(codeOK, "")
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := stream.Write([]byte("GET / HTTP/1.1\r\n")); err != nil {
		t.Fatal(err)
	}

	select {
	case <-conn.Context().Done():
	case <-time.After(5 * time.Second):
		t.Fatal("connection not closed after a bad preamble")
	}
	var appErr *quic.ApplicationError
	if err := context.Cause(conn.Context()); errors.As(err, &appErr) && appErr.ErrorCode != codeBadPreamble {
		t.Errorf("close code = %#x, want %#x", appErr.ErrorCode, codeBadPreamble)
	}
}

func TestCloseEndsSessions(t *testing.T) {
	srv, ctx := testServer(t)
	c := dial(t, ctx, srv)
	waitSessions(t, srv, 1)

	if err := srv.Close(); err != nil {
		t.Fatal(err)
	}
	if n := len(srv.Sessions()); n != 0 {
		t.Errorf("sessions after close: %d", n)
	}
	if _, err := c.ListVerified(ctx); err == nil {
		t.Error("call succeeded on a closed server")
	}
}
