package cdpdom

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/kickguard/suppress"
)

// fakeCDP records the round trips dispatch makes instead of calling Chrome.
type fakeCDP struct {
	mu       sync.Mutex
	expanded []proto.DOMNodeID
	nodes    map[suppress.NodeID]suppress.Node
	reinits  int
}

func newEventPage(t *testing.T) (*Page, *fakeCDP) {
	t.Helper()
	p := New(nil, nil)
	p.nodes.reset(testTree())
	p.root = 1

	f := &fakeCDP{nodes: map[suppress.NodeID]suppress.Node{
		6: {ID: 6, ParentID: 3, Tag: "img", ParentTag: "body", Attrs: map[string]string{"src": "/a.png"}},
	}}
	p.expand = func(_ context.Context, id proto.DOMNodeID) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.expanded = append(f.expanded, id)
	}
	p.describe = func(_ context.Context, id suppress.NodeID) (suppress.Node, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		n, ok := f.nodes[id]
		if !ok {
			return suppress.Node{}, suppress.ErrNodeGone
		}
		return n, nil
	}
	p.reinit = func(context.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.reinits++
		return nil
	}
	return p, f
}

func collectBatches(batches *[][]suppress.Record) Handlers {
	return Handlers{Mutations: func(recs []suppress.Record) {
		*batches = append(*batches, recs)
	}}
}

func TestDispatchInsertExpandsSubtree(t *testing.T) {
	p, f := newEventPage(t)
	div := &proto.DOMNode{NodeID: 7, NodeType: 1, NodeName: "DIV", Attributes: []string{"id", "row"}, ChildNodeCount: func() *int { n := 2; return &n }()}
	p.nodes.add(3, div)

	var got [][]suppress.Record
	p.dispatch(context.Background(), []rawEvent{
		{insert: &proto.DOMChildNodeInserted{ParentNodeID: 3, Node: div}},
		{insert: &proto.DOMChildNodeInserted{ParentNodeID: 3, Node: &proto.DOMNode{NodeID: 8, NodeType: 3, NodeName: "#text"}}},
	}, collectBatches(&got))

	want := [][]suppress.Record{{
		{Kind: suppress.RecordInsert, Node: suppress.Node{ID: 7, ParentID: 3, Tag: "div", ParentTag: "body", Attrs: map[string]string{"id": "row"}}},
		{Kind: suppress.RecordInsert, Node: suppress.Node{ID: 8, ParentID: 3, Tag: "#text", ParentTag: "body", Attrs: map[string]string{}}},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]proto.DOMNodeID{7}, f.expanded); diff != "" {
		t.Errorf("expanded (-want +got):\n%s", diff)
	}
}

func TestDispatchGrownParentBecomesInsert(t *testing.T) {
	p, f := newEventPage(t)
	f.nodes[7] = suppress.Node{ID: 7, ParentID: 3, Tag: "div", ParentTag: "body", Attrs: map[string]string{"id": "row"}}

	var got [][]suppress.Record
	p.dispatch(context.Background(), []rawEvent{{grown: 7}, {grown: 7}, {grown: 99}}, collectBatches(&got))

	want := [][]suppress.Record{{{Kind: suppress.RecordInsert, Node: f.nodes[7]}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]proto.DOMNodeID{7, 99}, f.expanded); diff != "" {
		t.Errorf("expanded (-want +got):\n%s", diff)
	}
}

func TestDispatchAttrRecords(t *testing.T) {
	p, f := newEventPage(t)
	f.nodes[9] = suppress.Node{ID: 9, Tag: "div", Attrs: map[string]string{"src": "x"}}

	var got [][]suppress.Record
	p.dispatch(context.Background(), []rawEvent{
		{attr: &proto.DOMAttributeModified{NodeID: 6, Name: "src", Value: "/b.png"}},
		{attr: &proto.DOMAttributeModified{NodeID: 9, Name: "src", Value: "x"}},  // not media
		{attr: &proto.DOMAttributeModified{NodeID: 42, Name: "src", Value: "y"}}, // gone
	}, collectBatches(&got))

	want := [][]suppress.Record{{
		{Kind: suppress.RecordAttr, Node: f.nodes[6], Attr: "src", Value: "/b.png"},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records (-want +got):\n%s", diff)
	}
}

func TestKeepAttr(t *testing.T) {
	p, _ := newEventPage(t)
	cases := []struct {
		node proto.DOMNodeID
		name string
		want bool
	}{
		{6, "src", true},
		{6, "srcset", true},
		{6, "alt", false},
		{4, "src", true},
		{4, "poster", false},
		{3, "class", false},
		{42, "class", true}, // unknown node, checked after describe
	}
	for _, c := range cases {
		if got := p.keepAttr(&proto.DOMAttributeModified{NodeID: c.node, Name: c.name}); got != c.want {
			t.Errorf("keepAttr(%d, %s) = %v, want %v", c.node, c.name, got, c.want)
		}
	}
}

func TestDispatchResetFlushesFirst(t *testing.T) {
	p, f := newEventPage(t)
	var order []string
	h := Handlers{
		Mutations:     func(recs []suppress.Record) { order = append(order, "records") },
		DocumentReset: func() { order = append(order, "reset") },
	}
	img := &proto.DOMNode{NodeID: 10, NodeType: 1, NodeName: "IMG"}
	p.dispatch(context.Background(), []rawEvent{
		{insert: &proto.DOMChildNodeInserted{ParentNodeID: 3, Node: img}},
		{reset: true},
		{insert: &proto.DOMChildNodeInserted{ParentNodeID: 3, Node: img}},
	}, h)

	if diff := cmp.Diff([]string{"records", "reset", "records"}, order); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}
	if f.reinits != 1 {
		t.Errorf("reinits = %d, want 1", f.reinits)
	}
}

func TestDispatchResetFailureSkipsHandler(t *testing.T) {
	p, _ := newEventPage(t)
	p.reinit = func(context.Context) error { return errors.New("target closed") }
	called := false
	p.dispatch(context.Background(), []rawEvent{{reset: true}}, Handlers{DocumentReset: func() { called = true }})
	if called {
		t.Error("DocumentReset ran although re-init failed")
	}
}

func TestLoopDeliversBatches(t *testing.T) {
	p, _ := newEventPage(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	raw := make(chan rawEvent, 8)
	out := make(chan []suppress.Record, 8)
	go p.loop(ctx, raw, Handlers{Mutations: func(recs []suppress.Record) { out <- recs }})

	raw <- rawEvent{insert: &proto.DOMChildNodeInserted{ParentNodeID: 3, Node: &proto.DOMNode{NodeID: 11, NodeType: 1, NodeName: "VIDEO"}}}

	select {
	case recs := <-out:
		if len(recs) != 1 || recs[0].Node.Tag != "video" || recs[0].Node.ParentTag != "body" {
			t.Errorf("records: %+v", recs)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no batch delivered")
	}
}
