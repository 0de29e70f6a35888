// Command kickguard keeps kick.com pages free of media and channel chrome,
// and serves the page scan and verified-list tools.
//
// Usage:
//
//	kickguard -config kickguard.yaml              # guard the configured pages
//	kickguard -url https://kick.com/somechannel   # guard one page, reports on stdout
//	kickguard -scan https://example.com           # print e-mails and links, then exit
//	kickguard -strip -page-url URL < in.html      # one static sweep, stdin to stdout
//	kickguard -serve :8080                        # HTTP API
//	kickguard -mcp                                # MCP tools on stdio
//	kickguard -quic :4433                         # tools for remote kickguards over QUIC
//	kickguard -remote host:4433 -scan URL         # run -scan/-check/-save/-list-verified remotely
package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/kickguard/guard"
	"github.com/hazyhaar/kickguard/httpapi"
	"github.com/hazyhaar/kickguard/idgen"
	"github.com/hazyhaar/kickguard/remote"
)

const version = "0.1.0"

type options struct {
	configPath string
	singleURL  string
	scanURL    string
	strip      bool
	pageURL    string
	serveAddr  string
	scanLimit  int
	proxies    string
	stdioMCP   bool
	quicAddr   string
	quicMax    int
	tlsCert    string
	tlsKey     string

	remoteAddr     string
	remoteInsecure bool
	listVerified   bool
	checkURL       string
	saveURL        string
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to kickguard.yaml config file")
	flag.StringVar(&o.singleURL, "url", "", "guard a single URL")
	flag.StringVar(&o.scanURL, "scan", "", "scan a single URL and exit")
	flag.BoolVar(&o.strip, "strip", false, "sweep an HTML document from stdin and write it to stdout")
	flag.StringVar(&o.pageURL, "page-url", "https://kick.com/", "base URL of the document given to -strip")
	flag.StringVar(&o.serveAddr, "serve", "", "serve the HTTP API on this address")
	flag.IntVar(&o.scanLimit, "scan-limit", 30, "scans per client per minute on the HTTP API (0 = unlimited)")
	flag.StringVar(&o.proxies, "trusted-proxy", "", "comma-separated proxy addresses or CIDRs allowed to set X-Forwarded-For")
	flag.BoolVar(&o.stdioMCP, "mcp", false, "serve MCP tools on stdin/stdout")
	flag.StringVar(&o.quicAddr, "quic", "", "serve the tools to remote kickguard clients over QUIC on this UDP address")
	flag.IntVar(&o.quicMax, "quic-sessions", 32, "concurrent QUIC sessions (0 = unlimited)")
	flag.StringVar(&o.tlsCert, "tls-cert", "", "certificate for -quic (self-signed when empty)")
	flag.StringVar(&o.tlsKey, "tls-key", "", "private key for -quic")
	flag.StringVar(&o.remoteAddr, "remote", "", "run the one-shot operation on the kickguard serving -quic at this address")
	flag.BoolVar(&o.remoteInsecure, "remote-insecure", false, "accept a self-signed -remote certificate")
	flag.BoolVar(&o.listVerified, "list-verified", false, "print the verified list and exit")
	flag.StringVar(&o.checkURL, "check", "", "tell whether a URL is verified and exit")
	flag.StringVar(&o.saveURL, "save", "", "add a URL to the verified list and exit")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, o); err != nil {
		logger.Error("kickguard: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, o options) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}

	if o.strip {
		return runStrip(ctx, logger, cfg, o.pageURL)
	}
	oneShot := o.scanURL != "" || o.listVerified || o.checkURL != "" || o.saveURL != ""
	if o.remoteAddr != "" {
		if !oneShot {
			return fmt.Errorf("-remote needs -scan, -check, -save or -list-verified")
		}
		return runRemote(ctx, o)
	}
	if oneShot {
		return runLocal(ctx, logger, cfg, o)
	}

	serving := o.serveAddr != "" || o.stdioMCP || o.quicAddr != ""
	guarding := len(cfg.Pages) > 0 || cfg.Store.WatchPages
	if !serving && !guarding {
		fmt.Fprintln(os.Stderr, "usage: kickguard -config <file> | -url <url> | -scan <url> | -strip | -serve <addr> | -mcp | -quic <addr>")
		os.Exit(1)
	}

	// stdout belongs to the MCP session in stdio mode.
	out := io.Writer(os.Stdout)
	if o.stdioMCP {
		out = os.Stderr
	}
	sinks := guard.SinksFromConfig(cfg.Sinks, out, logger)
	if len(sinks) == 0 {
		sinks = append(sinks, guard.NewStdoutSink(out))
	}

	g := guard.New(cfg, logger, sinks...)
	defer g.Stop()

	if guarding {
		if err := g.Start(ctx); err != nil {
			return fmt.Errorf("start: %w", err)
		}
	} else if err := g.Open(ctx); err != nil {
		return fmt.Errorf("open: %w", err)
	}

	if !serving {
		<-ctx.Done()
		return nil
	}

	// Any server ending, stdio MCP included when stdin closes, ends them all.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)
	if o.serveAddr != "" {
		eg.Go(func() error { defer cancel(); return serveHTTP(ctx, logger, g, o) })
	}
	if o.stdioMCP {
		eg.Go(func() error { defer cancel(); return mcpServer(g).Run(ctx, &mcp.StdioTransport{}) })
	}
	if o.quicAddr != "" {
		eg.Go(func() error { defer cancel(); return serveQUIC(ctx, logger, g, o) })
	}
	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func loadConfig(o options) (*guard.Config, error) {
	cfg := guard.DefaultConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = guard.LoadConfigFile(o.configPath); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if o.singleURL != "" {
		cfg.Pages = append(cfg.Pages, guard.PageConfig{ID: idgen.New(), URL: o.singleURL})
	}
	return cfg, nil
}

func runStrip(ctx context.Context, logger *slog.Logger, cfg *guard.Config, pageURL string) error {
	t, err := guard.Strip(ctx, os.Stdin, os.Stdout, pageURL, cfg.Engine)
	if err != nil {
		return err
	}
	logger.Info("kickguard: stripped", "url", pageURL, "images", t.Images, "videos", t.Videos, "errors", t.Errors)
	return nil
}

// runLocal runs one operation against this process's own store.
func runLocal(ctx context.Context, logger *slog.Logger, cfg *guard.Config, o options) error {
	g := guard.New(cfg, logger)
	defer g.Stop()
	if err := g.Open(ctx); err != nil {
		return fmt.Errorf("open: %w", err)
	}

	eps := g.Endpoints()
	var resp any
	var err error
	switch {
	case o.scanURL != "":
		resp, err = eps.Scan(ctx, &guard.URLRequest{URL: o.scanURL})
	case o.checkURL != "":
		resp, err = eps.CheckVerified(ctx, &guard.URLRequest{URL: o.checkURL})
	case o.saveURL != "":
		resp, err = eps.SaveVerified(ctx, &guard.URLRequest{URL: o.saveURL})
	default:
		resp, err = eps.ListVerified(ctx, nil)
	}
	if err != nil {
		return err
	}
	return printJSON(resp)
}

// runRemote runs one operation on another kickguard over QUIC.
func runRemote(ctx context.Context, o options) error {
	var tlsCfg *tls.Config
	if o.remoteInsecure {
		tlsCfg = remote.ClientTLS(true)
	}
	c, err := remote.Dial(ctx, o.remoteAddr, tlsCfg)
	if err != nil {
		return err
	}
	defer c.Close()

	var resp any
	switch {
	case o.scanURL != "":
		resp, err = c.Scan(ctx, o.scanURL)
	case o.checkURL != "":
		resp, err = c.CheckVerified(ctx, o.checkURL)
	case o.saveURL != "":
		resp, err = c.SaveVerified(ctx, o.saveURL)
	default:
		resp, err = c.ListVerified(ctx)
	}
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func mcpServer(g *guard.Guard) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "kickguard", Version: version}, nil)
	g.RegisterMCP(srv)
	return srv
}

func serveHTTP(ctx context.Context, logger *slog.Logger, g *guard.Guard, o options) error {
	proxies, err := httpapi.ParseProxies(o.proxies)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr: o.serveAddr,
		Handler: httpapi.New(g.Endpoints(), httpapi.Options{
			ScanLimit:      o.scanLimit,
			TrustedProxies: proxies,
			Logger:         logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("kickguard: http listening", "addr", o.serveAddr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http: %w", err)
	case <-ctx.Done():
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return ctx.Err()
}

func serveQUIC(ctx context.Context, logger *slog.Logger, g *guard.Guard, o options) error {
	tlsCfg, err := remote.SelfSignedTLS()
	if o.tlsCert != "" {
		tlsCfg, err = remote.LoadServerTLS(o.tlsCert, o.tlsKey)
	}
	if err != nil {
		return err
	}

	srv := remote.NewServer(g, version, tlsCfg,
		remote.WithLogger(logger),
		remote.WithMaxSessions(o.quicMax))
	if err := srv.Listen(o.quicAddr); err != nil {
		return err
	}
	defer srv.Close()
	return srv.Serve(ctx)
}
