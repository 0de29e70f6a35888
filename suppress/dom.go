// Package suppress is the mutation-reactive suppression engine. It keeps a
// live document free of media loads (images, videos) and leaves hidden
// containers in place, re-applying its policy whenever the host page
// rewrites the tree.
//
// The engine never talks to a browser directly. It drives a DOM and a UI
// Surface, both interfaces: internal/cdpdom implements them over the Chrome
// DevTools protocol, internal/htmldom over a parsed HTML tree.
package suppress

import (
	"context"
	"errors"
)

// NodeID identifies an element within one document.
type NodeID int64

// Document is the root of the tree; QueryAll(Document, ...) searches everything.
const Document NodeID = 0

// ErrNodeGone is returned when a node was detached between being found and
// being acted on.
var ErrNodeGone = errors.New("suppress: node no longer attached")

// Node is a point-in-time view of an element. It is never retained beyond
// the sweep or mutation batch that produced it.
type Node struct {
	ID        NodeID
	ParentID  NodeID
	Tag       string // lower case; "#text" etc. for non-elements
	ParentTag string // lower case, empty at the root
	Attrs     map[string]string
}

// Attr returns the attribute value, or "" when absent.
func (n Node) Attr(name string) string {
	return n.Attrs[name]
}

// HasAttr reports whether the attribute is present (possibly empty).
func (n Node) HasAttr(name string) bool {
	_, ok := n.Attrs[name]
	return ok
}

func (n Node) without(name string) Node {
	attrs := make(map[string]string, len(n.Attrs))
	for k, v := range n.Attrs {
		if k != name {
			attrs[k] = v
		}
	}
	n.Attrs = attrs
	return n
}

// DOM is the tree the engine narrows. Implementations must tolerate calls on
// nodes that have since been removed by returning an error (ideally
// ErrNodeGone); the engine swallows it.
type DOM interface {
	Describe(ctx context.Context, id NodeID) (Node, error)
	QueryAll(ctx context.Context, root NodeID, selector string) ([]Node, error)
	FirstElementChild(ctx context.Context, id NodeID) (Node, bool, error)
	SetAttr(ctx context.Context, id NodeID, name, value string) error
	RemoveAttr(ctx context.Context, id NodeID, name string) error
	// Detach removes the node from its parent.
	Detach(ctx context.Context, id NodeID) error
	// StopPlayback pauses a media element and rewinds it to position 0.
	StopPlayback(ctx context.Context, id NodeID) error
	// SetStyle sets an inline style property; an empty value clears it.
	SetStyle(ctx context.Context, id NodeID, prop, value string) error
}
