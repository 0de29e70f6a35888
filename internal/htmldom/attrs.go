package htmldom

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/kickguard/suppress"
)

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

func removeAttr(n *html.Node, name string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != name {
			out = append(out, a)
		}
	}
	n.Attr = out
}

// parseStyle splits an inline style attribute, keeping declaration order.
func parseStyle(s string) []suppress.Decl {
	var out []suppress.Decl
	for _, part := range strings.Split(s, ";") {
		prop, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		if prop == "" {
			continue
		}
		out = append(out, suppress.Decl{Prop: prop, Value: strings.TrimSpace(value)})
	}
	return out
}

func styleOf(n *html.Node, prop string) string {
	for _, d := range parseStyle(attr(n, "style")) {
		if d.Prop == prop {
			return d.Value
		}
	}
	return ""
}

// setStyle sets or, with an empty value, clears one property.
func setStyle(n *html.Node, prop, value string) {
	decls := parseStyle(attr(n, "style"))
	out := decls[:0]
	found := false
	for _, d := range decls {
		switch {
		case d.Prop == prop:
			if value != "" && !found {
				out = append(out, suppress.Decl{Prop: prop, Value: value})
				found = true
			}
		default:
			out = append(out, d)
		}
	}
	if value != "" && !found {
		out = append(out, suppress.Decl{Prop: prop, Value: value})
	}
	if len(out) == 0 {
		removeAttr(n, "style")
		return
	}
	setAttr(n, "style", suppress.Inline(out))
}
