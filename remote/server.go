package remote

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/quic-go/quic-go"

	"github.com/hazyhaar/kickguard/idgen"
	"github.com/hazyhaar/kickguard/kit"
)

// Tools registers the served MCP tools. *guard.Guard implements it.
type Tools interface {
	RegisterMCP(srv *mcp.Server)
}

// SessionInfo describes a live remote session.
type SessionInfo struct {
	ID      string
	Remote  string
	Started time.Time
}

type session struct {
	info SessionInfo
	conn *quic.Conn
}

// Server serves the guard's tools to remote clients.
type Server struct {
	mcp         *mcp.Server
	tlsCfg      *tls.Config
	logger      *slog.Logger
	maxSessions int
	handshake   time.Duration
	newID       idgen.Generator

	mu       sync.Mutex
	ln       *quic.Listener
	sessions map[string]*session
	closed   bool
	wg       sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMaxSessions caps concurrent sessions; connections over the cap are
// closed at once. 0 means no cap.
func WithMaxSessions(n int) Option {
	return func(s *Server) { s.maxSessions = n }
}

// WithHandshakeTimeout bounds the wait for the client's stream and
// preamble. Default 10s.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(s *Server) { s.handshake = d }
}

// WithSessionIDs sets the session id generator.
func WithSessionIDs(gen idgen.Generator) Option {
	return func(s *Server) { s.newID = gen }
}

// NewServer builds a server for tools. version is reported to clients in
// the MCP handshake.
func NewServer(tools Tools, version string, tlsCfg *tls.Config, opts ...Option) *Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "kickguard", Version: version}, nil)
	tools.RegisterMCP(srv)

	s := &Server{
		mcp:         srv,
		tlsCfg:      tlsCfg,
		logger:      slog.Default(),
		maxSessions: 32,
		handshake:   10 * time.Second,
		newID:       idgen.Prefixed("rs_", idgen.Short(8)),
		sessions:    make(map[string]*session),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Listen binds the UDP address.
func (s *Server) Listen(addr string) error {
	ln, err := quic.ListenAddr(addr, s.tlsCfg, quicConfig())
	if err != nil {
		return fmt.Errorf("remote: listen %s: %w", addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.logger.Info("remote: listening", "addr", ln.Addr().String())
	return nil
}

// Addr is the bound address, nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve accepts connections until ctx is done or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return fmt.Errorf("remote: serve before listen")
	}

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if s.isClosed() {
				return nil
			}
			s.logger.Warn("remote: accept failed", "error", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

// Sessions returns the live sessions, oldest first.
func (s *Server) Sessions() []SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for _, ss := range s.sessions {
		out = append(out, ss.info)
	}
	slices.SortFunc(out, func(a, b SessionInfo) int {
		if c := a.Started.Compare(b.Started); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Close stops accepting, ends every session and waits for them.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.ln
	for _, ss := range s.sessions {
		ss.conn.CloseWithError(codeShutdown, "server closing")
	}
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	s.wg.Wait()
	return err
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) serveConn(ctx context.Context, conn *quic.Conn) {
	remote := conn.RemoteAddr().String()
	id, ok := s.admit(conn)
	if !ok {
		s.logger.Warn("remote: session refused", "remote", remote, "max", s.maxSessions)
		conn.CloseWithError(codeBusy, "too many sessions")
		return
	}
	defer s.release(id)
	logger := s.logger.With("session", id, "remote", remote)

	stream, err := s.openSession(ctx, conn)
	if err != nil {
		logger.Warn("remote: handshake failed", "error", err)
		conn.CloseWithError(codeBadPreamble, "handshake failed")
		return
	}

	ctx = kit.WithRequestID(kit.WithTransport(ctx, "remote"), id)
	ss, err := s.mcp.Connect(ctx, &streamTransport{stream: stream, id: id}, nil)
	if err != nil {
		logger.Error("remote: mcp connect failed", "error", err)
		conn.CloseWithError(codeShutdown, "mcp connect failed")
		return
	}
	logger.Info("remote: session started")
	if err := ss.Wait(); err != nil {
		logger.Debug("remote: session error", "error", err)
	}
	conn.CloseWithError(codeOK, "")
	logger.Info("remote: session ended")
}

// openSession waits for the client's stream and checks its preamble
// within the handshake timeout.
func (s *Server) openSession(ctx context.Context, conn *quic.Conn) (*quic.Stream, error) {
	hctx, cancel := context.WithTimeout(ctx, s.handshake)
	defer cancel()
	stream, err := conn.AcceptStream(hctx)
	if err != nil {
		return nil, fmt.Errorf("remote: accept stream: %w", err)
	}
	stream.SetReadDeadline(time.Now().Add(s.handshake))
	if err := readPreamble(stream); err != nil {
		stream.CancelRead(0)
		return nil, err
	}
	stream.SetReadDeadline(time.Time{})
	return stream, nil
}

func (s *Server) admit(conn *quic.Conn) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || (s.maxSessions > 0 && len(s.sessions) >= s.maxSessions) {
		return "", false
	}
	id := s.newID()
	s.sessions[id] = &session{
		info: SessionInfo{ID: id, Remote: conn.RemoteAddr().String(), Started: time.Now()},
		conn: conn,
	}
	return id, true
}

func (s *Server) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// streamTransport runs an MCP connection over one QUIC stream. Both ends
// use it.
type streamTransport struct {
	stream *quic.Stream
	id     string
}

func (t *streamTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	iot := &mcp.IOTransport{
		Reader: io.NopCloser(t.stream),
		Writer: t.stream,
	}
	conn, err := iot.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &idConn{Connection: conn, id: t.id}, nil
}

// idConn reports the kickguard session id instead of the empty one of a
// plain IO connection.
type idConn struct {
	mcp.Connection
	id string
}

func (c *idConn) SessionID() string { return c.id }
