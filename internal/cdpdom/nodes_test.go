package cdpdom

import (
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/google/go-cmp/cmp"
)

func elem(id proto.DOMNodeID, name string, kids ...*proto.DOMNode) *proto.DOMNode {
	return &proto.DOMNode{NodeID: id, NodeType: 1, NodeName: name, LocalName: "", Children: kids}
}

func testTree() *proto.DOMNode {
	return &proto.DOMNode{NodeID: 1, NodeType: 9, NodeName: "#document", Children: []*proto.DOMNode{
		elem(2, "HTML",
			elem(3, "BODY",
				elem(4, "VIDEO", elem(5, "SOURCE")),
				elem(6, "IMG"),
			),
		),
	}}
}

func TestNodeMapReset(t *testing.T) {
	nm := newNodeMap()
	nm.reset(testTree())

	if got := nm.size(); got != 6 {
		t.Fatalf("size = %d, want 6", got)
	}
	p, tag, ok := nm.parentOf(5)
	if !ok || p != 4 || tag != "video" {
		t.Errorf("parentOf(5) = %d %q %v, want 4 video true", p, tag, ok)
	}
	if tag, _ := nm.tag(1); tag != "#document" {
		t.Errorf("tag(1) = %q", tag)
	}
	if _, _, ok := nm.parentOf(1); ok {
		t.Error("document has a parent")
	}
}

func TestNodeMapAddAndRemove(t *testing.T) {
	nm := newNodeMap()
	nm.reset(testTree())

	nm.add(3, elem(7, "DIV", elem(8, "IMG")))
	if _, tag, ok := nm.parentOf(8); !ok || tag != "div" {
		t.Fatalf("inserted subtree not linked: %q %v", tag, ok)
	}

	nm.remove(4)
	if _, ok := nm.tag(5); ok {
		t.Error("descendant of removed node still known")
	}
	if _, ok := nm.tag(4); ok {
		t.Error("removed node still known")
	}
	if diff := cmp.Diff([]proto.DOMNodeID{6, 7}, nm.children[3]); diff != "" {
		t.Errorf("body children (-want +got):\n%s", diff)
	}
}

func TestNodeMapSetChildren(t *testing.T) {
	nm := newNodeMap()
	nm.reset(&proto.DOMNode{NodeID: 1, NodeType: 9, NodeName: "#document"})
	nm.setChildren(1, []*proto.DOMNode{elem(2, "HTML")})
	nm.setChildren(1, []*proto.DOMNode{elem(2, "HTML")})

	if diff := cmp.Diff([]proto.DOMNodeID{2}, nm.children[1]); diff != "" {
		t.Errorf("children (-want +got):\n%s", diff)
	}
}

func TestTagName(t *testing.T) {
	cases := []struct {
		node *proto.DOMNode
		want string
	}{
		{&proto.DOMNode{NodeType: 1, NodeName: "IMG"}, "img"},
		{&proto.DOMNode{NodeType: 1, NodeName: "SVG:IMAGE", LocalName: "image"}, "image"},
		{&proto.DOMNode{NodeType: 3, NodeName: "#text"}, "#text"},
		{&proto.DOMNode{NodeType: 9, NodeName: "#document"}, "#document"},
	}
	for _, c := range cases {
		if got := tagName(c.node); got != c.want {
			t.Errorf("tagName(%s) = %q, want %q", c.node.NodeName, got, c.want)
		}
	}
}

func TestAttrMap(t *testing.T) {
	got := attrMap([]string{"src", "a.png", "alt", "", "dangling"})
	want := map[string]string{"src": "a.png", "alt": ""}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("attrMap (-want +got):\n%s", diff)
	}
}

func TestOriginOf(t *testing.T) {
	got, err := originOf("https://kick.com:8443/browse/irl?x=1")
	if err != nil || got != "https://kick.com:8443" {
		t.Errorf("originOf = %q, %v", got, err)
	}
	if _, err := originOf("chrome://newtab/"); err == nil {
		t.Error("chrome:// has no storage origin")
	}
}
