// Package htmldom is an in-memory document implementing suppress.DOM and
// suppress.Surface over golang.org/x/net/html. It stands in for a live
// browser tab: tests drive host-side changes through the Host* methods and
// feed the recorded changes to the engine with Flush.
package htmldom

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/kickguard/suppress"
)

// Document is a parsed page. All methods are safe for concurrent use.
type Document struct {
	mu      sync.Mutex
	root    *html.Node
	url     string
	ids     map[*html.Node]suppress.NodeID
	nodes   map[suppress.NodeID]*html.Node
	next    suppress.NodeID
	pending []suppress.Record
	stopped map[*html.Node]int

	heldBody *html.Node // body withheld while loading
}

// Option configures Parse.
type Option func(*Document)

// Loading parses the document with its body withheld, as seen by a script
// that runs before the parser reaches <body>. FinishLoading attaches it.
func Loading() Option {
	return func(d *Document) {
		body := findFirst(d.root, atom.Body)
		if body == nil || body.Parent == nil {
			return
		}
		body.Parent.RemoveChild(body)
		d.heldBody = body
	}
}

// Parse reads an HTML document served at pageURL.
func Parse(r io.Reader, pageURL string, opts ...Option) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmldom: parse: %w", err)
	}
	d := &Document{
		root:    root,
		url:     pageURL,
		ids:     map[*html.Node]suppress.NodeID{root: suppress.Document},
		nodes:   map[suppress.NodeID]*html.Node{suppress.Document: root},
		next:    suppress.Document + 1,
		stopped: make(map[*html.Node]int),
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// ParseString is Parse over a string.
func ParseString(s, pageURL string, opts ...Option) (*Document, error) {
	return Parse(strings.NewReader(s), pageURL, opts...)
}

// --- suppress.DOM ---

func (d *Document) Describe(_ context.Context, id suppress.NodeID) (suppress.Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.lookup(id)
	if err != nil {
		return suppress.Node{}, err
	}
	return d.describe(n), nil
}

func (d *Document) QueryAll(_ context.Context, root suppress.NodeID, selector string) ([]suppress.Node, error) {
	m, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("htmldom: selector %q: %w", selector, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.lookup(root)
	if err != nil {
		return nil, err
	}
	var out []suppress.Node
	goquery.NewDocumentFromNode(n).FindMatcher(m).Each(func(_ int, s *goquery.Selection) {
		out = append(out, d.describe(s.Get(0)))
	})
	return out, nil
}

func (d *Document) FirstElementChild(_ context.Context, id suppress.NodeID) (suppress.Node, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.lookup(id)
	if err != nil {
		return suppress.Node{}, false, err
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return d.describe(c), true, nil
		}
	}
	return suppress.Node{}, false, nil
}

func (d *Document) SetAttr(_ context.Context, id suppress.NodeID, name, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.lookup(id)
	if err != nil {
		return err
	}
	setAttr(n, name, value)
	return nil
}

func (d *Document) RemoveAttr(_ context.Context, id suppress.NodeID, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.lookup(id)
	if err != nil {
		return err
	}
	removeAttr(n, name)
	return nil
}

func (d *Document) Detach(_ context.Context, id suppress.NodeID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.lookup(id)
	if err != nil {
		return err
	}
	if n.Parent == nil {
		return fmt.Errorf("htmldom: cannot detach the document")
	}
	n.Parent.RemoveChild(n)
	return nil
}

func (d *Document) StopPlayback(_ context.Context, id suppress.NodeID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.lookup(id)
	if err != nil {
		return err
	}
	d.stopped[n]++
	return nil
}

func (d *Document) SetStyle(_ context.Context, id suppress.NodeID, prop, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.lookup(id)
	if err != nil {
		return err
	}
	setStyle(n, prop, value)
	return nil
}

// --- suppress.Surface ---

func (d *Document) Location(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url, nil
}

func (d *Document) BodyReady(context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.body() != nil, nil
}

func (d *Document) HasElement(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.byID(id) != nil, nil
}

func (d *Document) InjectButton(_ context.Context, spec suppress.ButtonSpec) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	body := d.body()
	if body == nil {
		return suppress.ErrNoBody
	}
	if d.byID(spec.ID) != nil {
		return nil
	}
	btn := element(atom.Button,
		html.Attribute{Key: "id", Val: spec.ID},
		html.Attribute{Key: "type", Val: "button"},
		html.Attribute{Key: "style", Val: suppress.Inline(suppress.ButtonStyle(spec.Background))},
	)
	btn.AppendChild(&html.Node{Type: html.TextNode, Data: spec.Label})
	body.AppendChild(btn)
	return nil
}

func (d *Document) InjectBanner(_ context.Context, spec suppress.BannerSpec) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	body := d.body()
	if body == nil {
		return suppress.ErrNoBody
	}
	if d.byID(spec.ID) != nil {
		return nil
	}
	banner := element(atom.Div,
		html.Attribute{Key: "id", Val: spec.ID},
		html.Attribute{Key: "role", Val: "alert"},
		html.Attribute{Key: "style", Val: suppress.Inline(suppress.BannerStyle)},
	)
	text := element(atom.Span)
	text.AppendChild(&html.Node{Type: html.TextNode, Data: "⚠️ " + spec.Text})
	dismiss := element(atom.Button,
		html.Attribute{Key: "type", Val: "button"},
		html.Attribute{Key: "style", Val: suppress.Inline(suppress.DismissStyle)},
	)
	dismiss.AppendChild(&html.Node{Type: html.TextNode, Data: spec.DismissLabel})
	banner.AppendChild(text)
	banner.AppendChild(dismiss)
	body.AppendChild(banner)
	return nil
}

func (d *Document) SetButtonState(_ context.Context, id, label, background string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.byID(id)
	if n == nil {
		return fmt.Errorf("htmldom: no element #%s: %w", id, suppress.ErrNodeGone)
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: label})
	setStyle(n, "background-color", background)
	return nil
}

// --- host side ---

// Flush returns the change records accumulated since the last call.
func (d *Document) Flush() []suppress.Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.pending
	d.pending = nil
	return out
}

// HostAppend parses fragment in the context of the first element matching
// selector and appends it there, recording one insert per top-level element.
func (d *Document) HostAppend(selector, fragment string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	parent, err := d.first(selector)
	if err != nil {
		return err
	}
	return d.appendFragment(parent, fragment)
}

// HostReplaceBody swaps the whole body content, as a client-side router
// does on navigation. Injected affordances are lost with it.
func (d *Document) HostReplaceBody(fragment string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	body := d.body()
	if body == nil {
		return suppress.ErrNoBody
	}
	for c := body.FirstChild; c != nil; {
		next := c.NextSibling
		body.RemoveChild(c)
		c = next
	}
	return d.appendFragment(body, fragment)
}

// HostSetAttr writes an attribute on every element matching selector and
// records the change.
func (d *Document) HostSetAttr(selector, name, value string) error {
	m, err := cascadia.Compile(selector)
	if err != nil {
		return fmt.Errorf("htmldom: selector %q: %w", selector, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, n := range cascadia.QueryAll(d.root, m) {
		setAttr(n, name, value)
		d.pending = append(d.pending, suppress.Record{
			Kind:  suppress.RecordAttr,
			Node:  d.describe(n),
			Attr:  name,
			Value: value,
		})
	}
	return nil
}

// HostNavigate changes the location without reloading, like pushState.
func (d *Document) HostNavigate(pageURL string) {
	d.mu.Lock()
	d.url = pageURL
	d.mu.Unlock()
}

// FinishLoading attaches a body withheld by the Loading option and records
// its insertion.
func (d *Document) FinishLoading() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.heldBody == nil {
		return
	}
	htmlEl := findFirst(d.root, atom.Html)
	if htmlEl == nil {
		htmlEl = d.root
	}
	htmlEl.AppendChild(d.heldBody)
	d.pending = append(d.pending, suppress.Record{Kind: suppress.RecordInsert, Node: d.describe(d.heldBody)})
	d.heldBody = nil
}

// Dismiss removes the element with the given id, like a click on the
// banner's close control.
func (d *Document) Dismiss(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n := d.byID(id); n != nil {
		n.Parent.RemoveChild(n)
	}
}

// --- inspection ---

// Find returns snapshots of every element matching selector.
func (d *Document) Find(selector string) []suppress.Node {
	nodes, _ := d.QueryAll(context.Background(), suppress.Document, selector)
	return nodes
}

// Text returns the text content of the element with the given id.
func (d *Document) Text(id string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.byID(id)
	if n == nil {
		return ""
	}
	return goquery.NewDocumentFromNode(n).Text()
}

// Style returns an inline style property of the element.
func (d *Document) Style(id suppress.NodeID, prop string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.lookup(id)
	if err != nil {
		return ""
	}
	return styleOf(n, prop)
}

// ElementStyle is Style for an element addressed by its id attribute.
func (d *Document) ElementStyle(id, prop string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.byID(id)
	if n == nil {
		return ""
	}
	return styleOf(n, prop)
}

// Stops returns how many times playback was stopped on the node.
func (d *Document) Stops(id suppress.NodeID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.nodes[id]
	if !ok {
		return 0
	}
	return d.stopped[n]
}

// InjectStylesheet adds a <style> element to the head.
func (d *Document) InjectStylesheet(css string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	head := findFirst(d.root, atom.Head)
	if head == nil {
		return
	}
	style := element(atom.Style, html.Attribute{Key: "data-kickguard", Val: "1"})
	style.AppendChild(&html.Node{Type: html.TextNode, Data: css})
	head.AppendChild(style)
}

// Render serialises the document.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := html.Render(w, d.root); err != nil {
		return fmt.Errorf("htmldom: render: %w", err)
	}
	return nil
}

// String renders the document, or "" on error.
func (d *Document) String() string {
	var b strings.Builder
	if err := d.Render(&b); err != nil {
		return ""
	}
	return b.String()
}

// --- internals (mu held) ---

func (d *Document) idOf(n *html.Node) suppress.NodeID {
	if id, ok := d.ids[n]; ok {
		return id
	}
	id := d.next
	d.next++
	d.ids[n] = id
	d.nodes[id] = n
	return id
}

func (d *Document) lookup(id suppress.NodeID) (*html.Node, error) {
	n, ok := d.nodes[id]
	if !ok || !d.attached(n) {
		return nil, fmt.Errorf("htmldom: node %d: %w", id, suppress.ErrNodeGone)
	}
	return n, nil
}

func (d *Document) attached(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == d.root {
			return true
		}
	}
	return false
}

func (d *Document) describe(n *html.Node) suppress.Node {
	out := suppress.Node{ID: d.idOf(n), Tag: tagOf(n)}
	if n.Type == html.ElementNode {
		out.Attrs = make(map[string]string, len(n.Attr))
		for _, a := range n.Attr {
			out.Attrs[a.Key] = a.Val
		}
	}
	if p := n.Parent; p != nil {
		out.ParentID = d.idOf(p)
		if p.Type == html.ElementNode {
			out.ParentTag = tagOf(p)
		}
	}
	return out
}

func (d *Document) body() *html.Node {
	return findFirst(d.root, atom.Body)
}

func (d *Document) byID(id string) *html.Node {
	var found *html.Node
	walk(d.root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && attr(n, "id") == id {
			found = n
			return false
		}
		return true
	})
	return found
}

func (d *Document) first(selector string) (*html.Node, error) {
	m, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("htmldom: selector %q: %w", selector, err)
	}
	n := cascadia.Query(d.root, m)
	if n == nil {
		return nil, fmt.Errorf("htmldom: nothing matches %q", selector)
	}
	return n, nil
}

func (d *Document) appendFragment(parent *html.Node, fragment string) error {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), parent)
	if err != nil {
		return fmt.Errorf("htmldom: parse fragment: %w", err)
	}
	for _, n := range nodes {
		parent.AppendChild(n)
		if n.Type == html.ElementNode {
			d.pending = append(d.pending, suppress.Record{Kind: suppress.RecordInsert, Node: d.describe(n)})
		}
	}
	return nil
}

func tagOf(n *html.Node) string {
	switch n.Type {
	case html.ElementNode:
		return strings.ToLower(n.Data)
	case html.TextNode:
		return "#text"
	case html.CommentNode:
		return "#comment"
	case html.DocumentNode:
		return "#document"
	}
	return ""
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

func findFirst(root *html.Node, a atom.Atom) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == a {
			found = n
			return false
		}
		return true
	})
	return found
}

// walk visits nodes depth-first until fn returns false.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}
