package kit

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next Endpoint) Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				order = append(order, name+"_before")
				resp, err := next(ctx, req)
				order = append(order, name+"_after")
				return resp, err
			}
		}
	}
	base := func(_ context.Context, _ any) (any, error) {
		order = append(order, "endpoint")
		return "ok", nil
	}

	resp, err := Chain(mw("a"), mw("b"))(base)(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp != "ok" {
		t.Fatalf("response: got %v", resp)
	}
	want := []string{"a_before", "b_before", "endpoint", "b_after", "a_after"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestLogging_PassesThroughError(t *testing.T) {
	errFail := errors.New("fail")
	ep := Logging(nil, "op")(func(context.Context, any) (any, error) { return nil, errFail })
	if _, err := ep(context.Background(), nil); !errors.Is(err, errFail) {
		t.Fatalf("error: got %v, want %v", err, errFail)
	}
}

func TestContext_Transport(t *testing.T) {
	if got := GetTransport(context.Background()); got != "http" {
		t.Errorf("default transport = %q, want http", got)
	}
	if got := GetTransport(WithTransport(context.Background(), "mcp")); got != "mcp" {
		t.Errorf("transport = %q, want mcp", got)
	}
}

func TestContext_RequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	if got := GetRequestID(ctx); got != "req-1" {
		t.Errorf("request id = %q", got)
	}
}

func TestInputSchema(t *testing.T) {
	s := InputSchema(map[string]any{"url": map[string]any{"type": "string"}}, []string{"url"})
	if s["type"] != "object" {
		t.Errorf("type = %v", s["type"])
	}
	if _, ok := s["required"]; !ok {
		t.Error("required missing")
	}
	if _, ok := InputSchema(nil, nil)["required"]; ok {
		t.Error("required set without required fields")
	}
}
