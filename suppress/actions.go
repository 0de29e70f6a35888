package suppress

import (
	"context"
	"fmt"
)

// MarkerAttr is set on every suppressed media element. A marked node is
// skipped by later sweeps; the marker is cleared only when the host writes
// a real source back onto the node.
const MarkerAttr = "data-kick-blocked"

// Actions applies suppression to classified nodes. Every action is
// idempotent: once a node carries the marker, repeating the action is a
// no-op.
type Actions struct {
	dom DOM
	cls Classifier
}

// NewActions binds actions to a DOM.
func NewActions(dom DOM, cls Classifier) *Actions {
	return &Actions{dom: dom, cls: cls}
}

// Outcome tells what a Suppress call did.
type Outcome struct {
	Kind    Kind
	Applied bool // false when the node was already suppressed or is not a target
}

// Suppress classifies n and applies the matching action.
func (a *Actions) Suppress(ctx context.Context, n Node) (Outcome, error) {
	kind := a.cls.Classify(n)
	out := Outcome{Kind: kind}

	var err error
	switch kind {
	case KindImage:
		out.Applied, err = a.SuppressImage(ctx, n)
	case KindVideo:
		out.Applied, err = a.SuppressVideo(ctx, n)
	case KindVideoSource:
		out.Applied, err = a.SuppressVideoSource(ctx, n)
	case KindContainer:
		out.Applied, err = a.SuppressContainer(ctx, n)
	}
	return out, err
}

// SuppressImage clears src and srcset. The attributes are cleared before
// the marker is written so that a failure half-way leaves the node
// unmarked and the next sweep tries again.
func (a *Actions) SuppressImage(ctx context.Context, n Node) (bool, error) {
	if n.HasAttr(MarkerAttr) {
		return false, nil
	}
	for _, attr := range []string{"src", "srcset"} {
		if !n.HasAttr(attr) {
			continue
		}
		if err := a.dom.RemoveAttr(ctx, n.ID, attr); err != nil {
			return false, fmt.Errorf("suppress: image %s: %w", attr, err)
		}
	}
	if err := a.dom.SetAttr(ctx, n.ID, MarkerAttr, "1"); err != nil {
		return false, fmt.Errorf("suppress: mark image: %w", err)
	}
	return true, nil
}

// SuppressVideo clears src, detaches child <source> elements and stops
// playback. The <video> element itself stays: host layout code holds
// references to it.
func (a *Actions) SuppressVideo(ctx context.Context, n Node) (bool, error) {
	if n.HasAttr(MarkerAttr) {
		return false, nil
	}
	if n.HasAttr("src") {
		if err := a.dom.RemoveAttr(ctx, n.ID, "src"); err != nil {
			return false, fmt.Errorf("suppress: video src: %w", err)
		}
	}
	if err := a.detachSources(ctx, n.ID); err != nil {
		return false, err
	}
	if err := a.dom.StopPlayback(ctx, n.ID); err != nil {
		return false, fmt.Errorf("suppress: stop playback: %w", err)
	}
	if err := a.dom.SetAttr(ctx, n.ID, MarkerAttr, "1"); err != nil {
		return false, fmt.Errorf("suppress: mark video: %w", err)
	}
	return true, nil
}

// SuppressVideoSource handles a <source> appearing under a <video>. An
// unsuppressed parent gets the full video treatment; an already suppressed
// parent only loses the new source, since the marker makes SuppressVideo a
// no-op.
func (a *Actions) SuppressVideoSource(ctx context.Context, n Node) (bool, error) {
	parent, err := a.dom.Describe(ctx, n.ParentID)
	if err != nil {
		return false, fmt.Errorf("suppress: video of source: %w", err)
	}
	if !parent.HasAttr(MarkerAttr) {
		return a.SuppressVideo(ctx, parent)
	}
	if err := a.dom.Detach(ctx, n.ID); err != nil {
		return false, fmt.Errorf("suppress: detach late source: %w", err)
	}
	if err := a.dom.StopPlayback(ctx, parent.ID); err != nil {
		return false, fmt.Errorf("suppress: stop playback: %w", err)
	}
	return true, nil
}

// SuppressContainer leaves the node in the tree. Containers are hidden by
// the stylesheet keyed on their ids; detaching them stalls the host's
// load-completion logic.
func (a *Actions) SuppressContainer(context.Context, Node) (bool, error) {
	return false, nil
}

// Resuppress clears the marker on a media node whose source the host has
// rewritten and suppresses it again.
func (a *Actions) Resuppress(ctx context.Context, n Node) (bool, error) {
	if n.HasAttr(MarkerAttr) {
		if err := a.dom.RemoveAttr(ctx, n.ID, MarkerAttr); err != nil {
			return false, fmt.Errorf("suppress: clear marker: %w", err)
		}
		n = n.without(MarkerAttr)
	}
	switch a.cls.Classify(n) {
	case KindImage:
		return a.SuppressImage(ctx, n)
	case KindVideo:
		return a.SuppressVideo(ctx, n)
	}
	return false, nil
}

func (a *Actions) detachSources(ctx context.Context, video NodeID) error {
	sources, err := a.dom.QueryAll(ctx, video, "source")
	if err != nil {
		return fmt.Errorf("suppress: list sources: %w", err)
	}
	for _, s := range sources {
		if err := a.dom.Detach(ctx, s.ID); err != nil {
			return fmt.Errorf("suppress: detach source: %w", err)
		}
	}
	return nil
}

// reloading reports whether a marked media node carries source data again.
func reloading(n Node) bool {
	if !n.HasAttr(MarkerAttr) {
		return false
	}
	switch n.Tag {
	case "img":
		return n.Attr("src") != "" || n.Attr("srcset") != ""
	case "video":
		return n.Attr("src") != ""
	}
	return false
}
