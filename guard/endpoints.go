package guard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hazyhaar/kickguard/kit"
	"github.com/hazyhaar/kickguard/scan"
)

// ErrInvalid marks a request the caller must fix.
var ErrInvalid = errors.New("guard: invalid request")

// URLRequest carries the single url argument every operation takes.
type URLRequest struct {
	URL string `json:"url"`
}

// ScanResponse is a scan result plus the links that leave the excluded host.
type ScanResponse struct {
	URL      string   `json:"url"`
	Emails   []string `json:"emails"`
	Links    []string `json:"links"`
	External []string `json:"external"`
}

// ListResponse is the verified list.
type ListResponse struct {
	Links []string `json:"links"`
}

// CheckResponse tells whether a URL is verified.
type CheckResponse struct {
	URL      string `json:"url"`
	Verified bool   `json:"verified"`
}

// SaveResponse tells whether a URL was newly added.
type SaveResponse struct {
	URL   string `json:"url"`
	Added bool   `json:"added"`
}

// Endpoints are the guard operations shared by the HTTP API and the MCP
// tools. Requests are *URLRequest; ListVerified ignores its request.
type Endpoints struct {
	Scan          kit.Endpoint
	ListVerified  kit.Endpoint
	CheckVerified kit.Endpoint
	SaveVerified  kit.Endpoint
}

// Endpoints returns the operations wrapped in logging middleware.
func (g *Guard) Endpoints() Endpoints {
	wrap := func(op string, ep kit.Endpoint) kit.Endpoint {
		return kit.Logging(g.logger, op)(ep)
	}
	return Endpoints{
		Scan:          wrap("scan", g.scanEndpoint),
		ListVerified:  wrap("list_verified", g.listEndpoint),
		CheckVerified: wrap("check_verified", g.checkEndpoint),
		SaveVerified:  wrap("save_verified", g.saveEndpoint),
	}
}

func urlArg(req any) (string, error) {
	r, ok := req.(*URLRequest)
	if !ok || r == nil {
		return "", fmt.Errorf("%w: missing url", ErrInvalid)
	}
	u := strings.TrimSpace(r.URL)
	if u == "" {
		return "", fmt.Errorf("%w: missing url", ErrInvalid)
	}
	return u, nil
}

func (g *Guard) scanEndpoint(ctx context.Context, req any) (any, error) {
	u, err := urlArg(req)
	if err != nil {
		return nil, err
	}
	res, err := g.Scan(ctx, u)
	if err != nil {
		return nil, err
	}
	return ScanResponse{
		URL:      res.URL,
		Emails:   nonNil(res.Emails),
		Links:    nonNil(res.Links),
		External: nonNil(res.External(g.ExcludeHost())),
	}, nil
}

func (g *Guard) listEndpoint(ctx context.Context, _ any) (any, error) {
	store, err := g.Verified()
	if err != nil {
		return nil, err
	}
	return ListResponse{Links: nonNil(store.List(ctx))}, nil
}

func (g *Guard) checkEndpoint(ctx context.Context, req any) (any, error) {
	u, err := urlArg(req)
	if err != nil {
		return nil, err
	}
	store, err := g.Verified()
	if err != nil {
		return nil, err
	}
	return CheckResponse{URL: u, Verified: store.Contains(ctx, u)}, nil
}

func (g *Guard) saveEndpoint(ctx context.Context, req any) (any, error) {
	u, err := urlArg(req)
	if err != nil {
		return nil, err
	}
	if scan.Restricted(u) {
		return nil, fmt.Errorf("%w: cannot verify %q", ErrInvalid, u)
	}
	store, err := g.Verified()
	if err != nil {
		return nil, err
	}
	return SaveResponse{URL: u, Added: store.Save(ctx, u)}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
