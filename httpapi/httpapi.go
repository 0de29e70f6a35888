// Package httpapi exposes the guard's scan and verified-list operations
// over HTTP with chi.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/kickguard/guard"
	"github.com/hazyhaar/kickguard/kit"
	"github.com/hazyhaar/kickguard/scan"
)

// Options tunes the API.
type Options struct {
	// ScanLimit is the number of scans one client may run per ScanWindow.
	// 0 disables the limit.
	ScanLimit  int
	ScanWindow time.Duration
	// TrustedProxies may set X-Forwarded-For. Without any, the limit keys
	// on the connection's remote address.
	TrustedProxies Proxies
	Logger         *slog.Logger
}

// New builds the router over the guard's endpoints.
func New(eps guard.Endpoints, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ScanWindow <= 0 {
		opts.ScanWindow = time.Minute
	}
	h := &handler{eps: eps, logger: opts.Logger}

	r := chi.NewRouter()
	r.Use(headToGet, securityHeaders, maxBody(64<<10), withRequestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/verified", func(r chi.Router) {
		r.Get("/", h.call(eps.ListVerified, noRequest))
		r.Post("/", h.call(eps.SaveVerified, jsonURL))
		r.Get("/contains", h.call(eps.CheckVerified, queryURL))
	})
	r.With(newLimiter(opts.ScanLimit, opts.ScanWindow).middleware(opts.TrustedProxies)).
		Get("/scan", h.call(eps.Scan, queryURL))
	return r
}

type handler struct {
	eps    guard.Endpoints
	logger *slog.Logger
}

type decodeFunc func(*http.Request) (any, error)

func noRequest(*http.Request) (any, error) { return nil, nil }

func queryURL(r *http.Request) (any, error) {
	return &guard.URLRequest{URL: r.URL.Query().Get("url")}, nil
}

func jsonURL(r *http.Request) (any, error) {
	var req guard.URLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (h *handler) call(ep kit.Endpoint, decode decodeFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decode(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		resp, err := ep(r.Context(), req)
		if err != nil {
			status, msg := classify(err)
			if status >= 500 {
				h.logger.Warn("httpapi: request failed",
					"path", r.URL.Path, "request_id", kit.GetRequestID(r.Context()), "error", err)
			}
			writeError(w, status, msg)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// classify maps an endpoint error to a status and the user-readable text.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, guard.ErrInvalid):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, scan.ErrRestricted):
		return http.StatusBadRequest, scan.Message(err)
	case errors.Is(err, scan.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, scan.Message(scan.ErrTimeout)
	case errors.Is(err, scan.ErrUnreadable):
		return http.StatusBadGateway, scan.Message(err)
	case errors.Is(err, guard.ErrNoPage):
		return http.StatusServiceUnavailable, err.Error()
	}
	return http.StatusBadGateway, scan.Message(err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
