package cdpdom

import (
	"context"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/kickguard/suppress"
)

// rawEvent is a CDP DOM event waiting to become a change record.
type rawEvent struct {
	insert *proto.DOMChildNodeInserted
	attr   *proto.DOMAttributeModified
	grown  proto.DOMNodeID // childNodeCountUpdated on a node whose children were never requested
	reset  bool
}

// Handlers receive observed changes.
type Handlers struct {
	// Mutations gets records in delivery order, batched like a
	// MutationObserver callback: everything queued when the worker wakes up.
	Mutations func([]suppress.Record)
	// DocumentReset runs after the whole document was replaced and the node
	// map rebuilt.
	DocumentReset func()
}

// Observe subscribes to DOM events until ctx is done. Only insertions and
// writes of media source attributes become records; removals only update
// the node map.
//
// Chrome reports childNodeInserted only under parents whose children the
// client has requested. Every inserted element is therefore expanded with
// DOM.requestChildNodes, and a childNodeCountUpdated (the only event sent
// for a parent that was not expanded yet) becomes an insert record for
// that parent, so its new descendants are swept.
func (p *Page) Observe(ctx context.Context, h Handlers) {
	raw := make(chan rawEvent, 4096)
	push := func(ev rawEvent) {
		select {
		case raw <- ev:
		case <-ctx.Done():
		}
	}

	go p.page.Context(ctx).EachEvent(
		func(e *proto.DOMChildNodeInserted) {
			p.nodes.add(e.ParentNodeID, e.Node)
			push(rawEvent{insert: e})
		},
		func(e *proto.DOMSetChildNodes) {
			p.nodes.setChildren(e.ParentID, e.Nodes)
		},
		func(e *proto.DOMChildNodeCountUpdated) {
			push(rawEvent{grown: e.NodeID})
		},
		func(e *proto.DOMChildNodeRemoved) {
			p.nodes.remove(e.NodeID)
		},
		func(e *proto.DOMAttributeModified) {
			if p.keepAttr(e) {
				push(rawEvent{attr: e})
			}
		},
		func(e *proto.DOMDocumentUpdated) {
			push(rawEvent{reset: true})
		},
	)()

	go p.loop(ctx, raw, h)
}

// keepAttr drops attribute writes that cannot start a media load. Nodes
// the map does not know yet are kept and checked again after Describe.
func (p *Page) keepAttr(e *proto.DOMAttributeModified) bool {
	tag, ok := p.nodes.tag(e.NodeID)
	return !ok || suppress.IsWatchedAttr(tag, e.Name)
}

func (p *Page) loop(ctx context.Context, raw <-chan rawEvent, h Handlers) {
	for {
		var first rawEvent
		select {
		case <-ctx.Done():
			return
		case first = <-raw:
		}

		batch := []rawEvent{first}
	drain:
		for {
			select {
			case ev := <-raw:
				batch = append(batch, ev)
			default:
				break drain
			}
		}
		p.dispatch(ctx, batch, h)
	}
}

// dispatch turns one batch of events into records. A document reset
// flushes what came before it first.
func (p *Page) dispatch(ctx context.Context, batch []rawEvent, h Handlers) {
	var records []suppress.Record
	flush := func() {
		if len(records) > 0 && h.Mutations != nil {
			h.Mutations(records)
		}
		records = nil
	}

	grown := make(map[proto.DOMNodeID]bool)
	for _, ev := range batch {
		switch {
		case ev.reset:
			flush()
			clear(grown)
			p.documentReset(ctx, h)
		case ev.insert != nil:
			records = append(records, p.insertRecord(ev.insert))
			if ev.insert.Node.NodeType == 1 {
				p.expand(ctx, ev.insert.Node.NodeID)
			}
		case ev.grown != 0:
			if grown[ev.grown] {
				continue
			}
			grown[ev.grown] = true
			if rec, ok := p.grownRecord(ctx, ev.grown); ok {
				records = append(records, rec)
			}
		case ev.attr != nil:
			if rec, ok := p.attrRecord(ctx, ev.attr); ok {
				records = append(records, rec)
			}
		}
	}
	flush()
}

func (p *Page) insertRecord(e *proto.DOMChildNodeInserted) suppress.Record {
	n := suppress.Node{
		ID:       p.nodeID(e.Node.NodeID),
		ParentID: p.nodeID(e.ParentNodeID),
		Tag:      tagName(e.Node),
		Attrs:    attrMap(e.Node.Attributes),
	}
	if tag, ok := p.nodes.tag(e.ParentNodeID); ok {
		n.ParentTag = tag
	}
	return suppress.Record{Kind: suppress.RecordInsert, Node: n}
}

// grownRecord expands a parent that gained children without reporting
// them and hands it to the listener as a fresh subtree.
func (p *Page) grownRecord(ctx context.Context, id proto.DOMNodeID) (suppress.Record, bool) {
	p.expand(ctx, id)
	n, err := p.describe(ctx, p.nodeID(id))
	if err != nil {
		p.logger.Debug("cdpdom: grown node gone", "node", id, "error", err)
		return suppress.Record{}, false
	}
	return suppress.Record{Kind: suppress.RecordInsert, Node: n}, true
}

// attrRecord re-reads the node: the engine needs its current attributes,
// not only the one that changed.
func (p *Page) attrRecord(ctx context.Context, e *proto.DOMAttributeModified) (suppress.Record, bool) {
	n, err := p.describe(ctx, p.nodeID(e.NodeID))
	if err != nil {
		p.logger.Debug("cdpdom: attribute target gone", "node", e.NodeID, "error", err)
		return suppress.Record{}, false
	}
	if !suppress.IsWatchedAttr(n.Tag, e.Name) {
		return suppress.Record{}, false
	}
	return suppress.Record{Kind: suppress.RecordAttr, Node: n, Attr: e.Name, Value: e.Value}, true
}

// requestChildren asks Chrome for the whole subtree under id, which makes
// later insertions below it arrive as childNodeInserted.
func (p *Page) requestChildren(ctx context.Context, id proto.DOMNodeID) {
	depth := -1
	err := proto.DOMRequestChildNodes{NodeID: id, Depth: &depth, Pierce: true}.Call(p.page.Context(ctx))
	if err != nil {
		p.logger.Debug("cdpdom: request child nodes", "node", id, "error", err)
	}
}

func (p *Page) documentReset(ctx context.Context, h Handlers) {
	p.logger.Info("cdpdom: document replaced")
	if err := p.reinit(ctx); err != nil {
		p.logger.Error("cdpdom: re-init DOM tracking failed", "error", err)
		return
	}
	if h.DocumentReset != nil {
		h.DocumentReset()
	}
}
