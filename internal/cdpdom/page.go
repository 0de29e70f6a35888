// Package cdpdom drives a live Chrome tab through the DevTools protocol:
// it implements suppress.DOM and suppress.Surface over go-rod, turns CDP DOM
// events into change records, bridges requestAnimationFrame to Go, and
// exposes the page's localStorage as a verified.Backend.
//
// A critical constraint: DOM.getDocument must be called with depth=-1 so
// that every node is known to the frontend. Without it, CDP silently drops
// mutation events on nodes deeper than the initial fetch.
package cdpdom

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/kickguard/suppress"
)

// Page is one guarded tab.
type Page struct {
	page   *rod.Page
	logger *slog.Logger
	nodes  *nodeMap

	mu   sync.RWMutex
	root proto.DOMNodeID

	// CDP round trips used by event dispatch; replaced in tests.
	describe func(context.Context, suppress.NodeID) (suppress.Node, error)
	expand   func(context.Context, proto.DOMNodeID)
	reinit   func(context.Context) error
}

// New wraps page. Call Init before use.
func New(page *rod.Page, logger *slog.Logger) *Page {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Page{page: page, logger: logger, nodes: newNodeMap()}
	p.describe = p.Describe
	p.expand = p.requestChildren
	p.reinit = p.Init
	return p
}

// Rod returns the underlying page.
func (p *Page) Rod() *rod.Page { return p.page }

// Init enables the DOM domain and loads the whole tree.
func (p *Page) Init(ctx context.Context) error {
	pg := p.page.Context(ctx)
	if err := (proto.DOMEnable{}).Call(pg); err != nil {
		return fmt.Errorf("cdpdom: DOM.enable: %w", err)
	}
	depth := -1
	doc, err := proto.DOMGetDocument{Depth: &depth, Pierce: true}.Call(pg)
	if err != nil {
		return fmt.Errorf("cdpdom: DOM.getDocument: %w", err)
	}
	p.nodes.reset(doc.Root)
	p.mu.Lock()
	p.root = doc.Root.NodeID
	p.mu.Unlock()

	p.logger.Debug("cdpdom: DOM tracking initialised", "nodes", p.nodes.size())
	return nil
}

func (p *Page) cdpID(id suppress.NodeID) proto.DOMNodeID {
	if id == suppress.Document {
		p.mu.RLock()
		defer p.mu.RUnlock()
		return p.root
	}
	return proto.DOMNodeID(id)
}

func (p *Page) nodeID(id proto.DOMNodeID) suppress.NodeID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if id == p.root {
		return suppress.Document
	}
	return suppress.NodeID(id)
}

// --- suppress.DOM ---

func (p *Page) Describe(ctx context.Context, id suppress.NodeID) (suppress.Node, error) {
	res, err := proto.DOMDescribeNode{NodeID: p.cdpID(id)}.Call(p.page.Context(ctx))
	if err != nil {
		return suppress.Node{}, gone("describe", id, err)
	}
	return p.toNode(ctx, p.cdpID(id), res.Node), nil
}

func (p *Page) QueryAll(ctx context.Context, root suppress.NodeID, selector string) ([]suppress.Node, error) {
	pg := p.page.Context(ctx)
	res, err := proto.DOMQuerySelectorAll{NodeID: p.cdpID(root), Selector: selector}.Call(pg)
	if err != nil {
		return nil, gone("query "+selector, root, err)
	}
	out := make([]suppress.Node, 0, len(res.NodeIDs))
	for _, id := range res.NodeIDs {
		d, err := proto.DOMDescribeNode{NodeID: id}.Call(pg)
		if err != nil {
			// Removed between the query and the describe.
			continue
		}
		out = append(out, p.toNode(ctx, id, d.Node))
	}
	return out, nil
}

func (p *Page) FirstElementChild(ctx context.Context, id suppress.NodeID) (suppress.Node, bool, error) {
	depth := 1
	res, err := proto.DOMDescribeNode{NodeID: p.cdpID(id), Depth: &depth}.Call(p.page.Context(ctx))
	if err != nil {
		return suppress.Node{}, false, gone("children", id, err)
	}
	for _, c := range res.Node.Children {
		if c.NodeType != 1 {
			continue
		}
		n := suppress.Node{
			ID:        p.nodeID(c.NodeID),
			ParentID:  id,
			Tag:       tagName(c),
			ParentTag: tagName(res.Node),
			Attrs:     attrMap(c.Attributes),
		}
		return n, true, nil
	}
	return suppress.Node{}, false, nil
}

func (p *Page) SetAttr(ctx context.Context, id suppress.NodeID, name, value string) error {
	err := proto.DOMSetAttributeValue{NodeID: p.cdpID(id), Name: name, Value: value}.Call(p.page.Context(ctx))
	return gone("set "+name, id, err)
}

func (p *Page) RemoveAttr(ctx context.Context, id suppress.NodeID, name string) error {
	err := proto.DOMRemoveAttribute{NodeID: p.cdpID(id), Name: name}.Call(p.page.Context(ctx))
	return gone("remove "+name, id, err)
}

func (p *Page) Detach(ctx context.Context, id suppress.NodeID) error {
	err := proto.DOMRemoveNode{NodeID: p.cdpID(id)}.Call(p.page.Context(ctx))
	return gone("detach", id, err)
}

func (p *Page) StopPlayback(ctx context.Context, id suppress.NodeID) error {
	el, err := p.element(ctx, id)
	if err != nil {
		return err
	}
	_, err = el.Eval(`function () {
		if (typeof this.pause === "function") this.pause();
		try { this.currentTime = 0; } catch (e) {}
	}`)
	return gone("stop playback", id, err)
}

func (p *Page) SetStyle(ctx context.Context, id suppress.NodeID, prop, value string) error {
	el, err := p.element(ctx, id)
	if err != nil {
		return err
	}
	_, err = el.Eval(`function (prop, value) {
		if (value === "") this.style.removeProperty(prop);
		else this.style.setProperty(prop, value);
	}`, prop, value)
	return gone("style "+prop, id, err)
}

func (p *Page) element(ctx context.Context, id suppress.NodeID) (*rod.Element, error) {
	el, err := p.page.Context(ctx).ElementFromNode(&proto.DOMNode{NodeID: p.cdpID(id)})
	if err != nil {
		return nil, gone("resolve", id, err)
	}
	return el, nil
}

// toNode builds a snapshot, filling the parent from the node map and,
// for nodes the map does not know, from the page.
func (p *Page) toNode(ctx context.Context, id proto.DOMNodeID, n *proto.DOMNode) suppress.Node {
	out := suppress.Node{
		ID:    p.nodeID(id),
		Tag:   tagName(n),
		Attrs: attrMap(n.Attributes),
	}
	if parent, tag, ok := p.nodes.parentOf(id); ok {
		out.ParentID = p.nodeID(parent)
		out.ParentTag = tag
		return out
	}
	if out.Tag != "source" {
		return out
	}
	// Classifying a <source> needs its parent.
	if parent, tag, err := p.lookupParent(ctx, id); err == nil {
		out.ParentID = p.nodeID(parent)
		out.ParentTag = tag
	}
	return out
}

func (p *Page) lookupParent(ctx context.Context, id proto.DOMNodeID) (proto.DOMNodeID, string, error) {
	pg := p.page.Context(ctx)
	el, err := pg.ElementFromNode(&proto.DOMNode{NodeID: id})
	if err != nil {
		return 0, "", err
	}
	parent, err := el.Parent()
	if err != nil {
		return 0, "", err
	}
	req, err := proto.DOMRequestNode{ObjectID: parent.Object.ObjectID}.Call(pg)
	if err != nil {
		return 0, "", err
	}
	if tag, ok := p.nodes.tag(req.NodeID); ok {
		return req.NodeID, tag, nil
	}
	d, err := proto.DOMDescribeNode{NodeID: req.NodeID}.Call(pg)
	if err != nil {
		return 0, "", err
	}
	return req.NodeID, tagName(d.Node), nil
}

// gone wraps a CDP failure, mapping "no node" errors to ErrNodeGone.
func gone(op string, id suppress.NodeID, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "Could not find node") || strings.Contains(msg, "No node with given id") {
		return fmt.Errorf("cdpdom: %s node %d: %w", op, id, suppress.ErrNodeGone)
	}
	return fmt.Errorf("cdpdom: %s node %d: %w", op, id, err)
}
