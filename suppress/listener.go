package suppress

import (
	"context"
	"fmt"
	"log/slog"
)

// RecordKind is the type of a DOM change record.
type RecordKind int

const (
	// RecordInsert is a subtree insertion; Node is the inserted root.
	RecordInsert RecordKind = iota + 1
	// RecordAttr is an attribute change; Node is the target.
	RecordAttr
)

// Record is one DOM change as delivered by the host's observer. Removals
// are not represented: the engine never acts on removed nodes.
type Record struct {
	Kind  RecordKind
	Node  Node
	Attr  string // attribute name for RecordAttr
	Value string // new attribute value for RecordAttr
}

// watchedAttrs lists, per tag, the attributes whose rewrite is a reload
// attempt.
var watchedAttrs = map[string]map[string]bool{
	"img":   {"src": true, "srcset": true},
	"video": {"src": true},
}

// IsWatchedAttr reports whether a change of attr on tag can start a media
// load. Adapters use it to drop irrelevant attribute records early.
func IsWatchedAttr(tag, attr string) bool {
	return watchedAttrs[tag][attr]
}

// Tally counts what a batch or sweep did.
type Tally struct {
	Images    int
	Videos    int
	Reblocked int
	Errors    int
}

func (t *Tally) add(o Tally) {
	t.Images += o.Images
	t.Videos += o.Videos
	t.Reblocked += o.Reblocked
	t.Errors += o.Errors
}

func (t *Tally) count(out Outcome) {
	if !out.Applied {
		return
	}
	switch out.Kind {
	case KindImage:
		t.Images++
	case KindVideo, KindVideoSource:
		t.Videos++
	}
}

// Listener turns change records into suppression actions. It never fails:
// a node that vanished or an adapter error is counted and logged, and
// processing continues with the next record.
type Listener struct {
	actions *Actions
	logger  *slog.Logger
}

// NewListener creates a Listener.
func NewListener(actions *Actions, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{actions: actions, logger: logger}
}

// Handle processes records in delivery order.
func (l *Listener) Handle(ctx context.Context, records []Record) Tally {
	var t Tally
	for _, rec := range records {
		switch rec.Kind {
		case RecordInsert:
			t.add(l.inserted(ctx, rec.Node))
		case RecordAttr:
			t.add(l.attrChanged(ctx, rec))
		}
	}
	return t
}

func (l *Listener) inserted(ctx context.Context, n Node) Tally {
	var t Tally
	if l.actions.cls.Classify(n) == KindIrrelevant && n.Tag == "" {
		return t
	}

	l.guard(&t, "insert", n, func() error {
		return suppressOne(ctx, l.actions, n, &t)
	})

	switch n.Tag {
	case "img", "source", "meta", "link", "#text", "#comment":
		return t
	}
	t.add(suppressDescendants(ctx, l.actions, n.ID, l.guard))
	return t
}

func (l *Listener) attrChanged(ctx context.Context, rec Record) Tally {
	var t Tally
	n := rec.Node
	if !IsWatchedAttr(n.Tag, rec.Attr) || rec.Value == "" {
		return t
	}
	l.guard(&t, "reload", n, func() error {
		// The host wrote a real source. Force the marker off even if the
		// snapshot predates it, then suppress again.
		if !n.HasAttr(MarkerAttr) {
			n.Attrs = withAttr(n.Attrs, MarkerAttr, "1")
		}
		applied, err := l.actions.Resuppress(ctx, n)
		if applied {
			t.Reblocked++
		}
		return err
	})
	return t
}

type guardFunc func(t *Tally, op string, n Node, fn func() error)

// guard runs fn, converting both errors and adapter panics into a counted,
// logged failure.
func (l *Listener) guard(t *Tally, op string, n Node, fn func() error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("suppress: panic: %v", r)
			}
		}()
		return fn()
	}()
	if err != nil {
		t.Errors++
		l.logger.Debug("suppress: node skipped", "op", op, "tag", n.Tag, "node", n.ID, "error", err)
	}
}

// descendantSelectors are queried under an inserted root and over the
// whole document on each sweep. The last one catches sources under a video
// that already carries the marker, e.g. a suppressed video the host cloned
// or re-inserted with its sources.
var descendantSelectors = []string{"img", "video", "video > source"}

// suppressDescendants applies media suppression under root. Marked nodes
// whose source came back are re-suppressed.
func suppressDescendants(ctx context.Context, a *Actions, root NodeID, guard guardFunc) Tally {
	var t Tally
	for _, sel := range descendantSelectors {
		var nodes []Node
		guard(&t, "query", Node{ID: root, Tag: sel}, func() error {
			var err error
			nodes, err = a.dom.QueryAll(ctx, root, sel)
			return err
		})
		for _, n := range nodes {
			guard(&t, "sweep", n, func() error {
				return suppressOne(ctx, a, n, &t)
			})
		}
	}
	return t
}

// suppressOne suppresses n, or re-suppresses it when it is marked but
// carries source data again.
func suppressOne(ctx context.Context, a *Actions, n Node, t *Tally) error {
	if reloading(n) {
		applied, err := a.Resuppress(ctx, n)
		if applied {
			t.Reblocked++
		}
		return err
	}
	out, err := a.Suppress(ctx, n)
	t.count(out)
	return err
}

func withAttr(attrs map[string]string, name, value string) map[string]string {
	out := make(map[string]string, len(attrs)+1)
	for k, v := range attrs {
		out[k] = v
	}
	out[name] = value
	return out
}
