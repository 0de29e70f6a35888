package cdpdom

import (
	"strings"
	"sync"

	"github.com/go-rod/rod/lib/proto"
)

// nodeMap mirrors the parent and tag of every node the DevTools frontend
// knows about. CDP does not report a node's parent in describeNode, and
// a <source> element is only classifiable with its parent's tag.
type nodeMap struct {
	mu       sync.RWMutex
	tags     map[proto.DOMNodeID]string
	parent   map[proto.DOMNodeID]proto.DOMNodeID
	children map[proto.DOMNodeID][]proto.DOMNodeID
}

func newNodeMap() *nodeMap {
	return &nodeMap{
		tags:     make(map[proto.DOMNodeID]string),
		parent:   make(map[proto.DOMNodeID]proto.DOMNodeID),
		children: make(map[proto.DOMNodeID][]proto.DOMNodeID),
	}
}

// reset rebuilds the map from a DOM.getDocument result.
func (nm *nodeMap) reset(root *proto.DOMNode) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.tags = make(map[proto.DOMNodeID]string)
	nm.parent = make(map[proto.DOMNodeID]proto.DOMNodeID)
	nm.children = make(map[proto.DOMNodeID][]proto.DOMNodeID)
	nm.walk(root)
}

func (nm *nodeMap) walk(n *proto.DOMNode) {
	if n == nil {
		return
	}
	nm.tags[n.NodeID] = tagName(n)
	for _, c := range n.Children {
		nm.link(n.NodeID, c.NodeID)
		nm.walk(c)
	}
	for _, sr := range n.ShadowRoots {
		nm.link(n.NodeID, sr.NodeID)
		nm.walk(sr)
	}
	if n.ContentDocument != nil {
		nm.link(n.NodeID, n.ContentDocument.NodeID)
		nm.walk(n.ContentDocument)
	}
}

func (nm *nodeMap) link(parent, child proto.DOMNodeID) {
	if _, ok := nm.parent[child]; ok {
		return
	}
	nm.parent[child] = parent
	nm.children[parent] = append(nm.children[parent], child)
}

// add registers an inserted subtree.
func (nm *nodeMap) add(parent proto.DOMNodeID, n *proto.DOMNode) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.link(parent, n.NodeID)
	nm.walk(n)
}

// setChildren registers nodes pushed by DOM.setChildNodes.
func (nm *nodeMap) setChildren(parent proto.DOMNodeID, nodes []*proto.DOMNode) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	for _, n := range nodes {
		nm.link(parent, n.NodeID)
		nm.walk(n)
	}
}

func (nm *nodeMap) remove(id proto.DOMNodeID) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.removeLocked(id)
	if p, ok := nm.parent[id]; ok {
		kids := nm.children[p]
		for i, k := range kids {
			if k == id {
				nm.children[p] = append(kids[:i], kids[i+1:]...)
				break
			}
		}
	}
	delete(nm.parent, id)
}

func (nm *nodeMap) removeLocked(id proto.DOMNodeID) {
	for _, c := range nm.children[id] {
		nm.removeLocked(c)
		delete(nm.parent, c)
	}
	delete(nm.children, id)
	delete(nm.tags, id)
}

// parentOf returns the parent id and tag, ok=false when unknown.
func (nm *nodeMap) parentOf(id proto.DOMNodeID) (proto.DOMNodeID, string, bool) {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	p, ok := nm.parent[id]
	if !ok {
		return 0, "", false
	}
	return p, nm.tags[p], true
}

func (nm *nodeMap) tag(id proto.DOMNodeID) (string, bool) {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	t, ok := nm.tags[id]
	return t, ok
}

func (nm *nodeMap) size() int {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	return len(nm.tags)
}

// tagName lower-cases element names and maps other node types to the
// "#name" form CDP already uses for them.
func tagName(n *proto.DOMNode) string {
	if n.NodeType == 1 {
		if n.LocalName != "" {
			return strings.ToLower(n.LocalName)
		}
		return strings.ToLower(n.NodeName)
	}
	return strings.ToLower(n.NodeName)
}

// attrMap converts CDP's flat name/value list.
func attrMap(flat []string) map[string]string {
	m := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		m[flat[i]] = flat[i+1]
	}
	return m
}
