// Package nav builds the navigation tree from the flat node list served by
// menuTreeData.
package nav

import (
	"sort"

	"github.com/sahilm/fuzzy"
)

// NodeType is the kind of a navigation node.
type NodeType string

const (
	TypeNavigation        NodeType = "navigation"
	TypeCategory          NodeType = "category"
	TypeProfile           NodeType = "profile"
	TypeProfileDefinition NodeType = "profileDefinition"
	TypeDisplayText       NodeType = "displayText"
)

// Node is one entry of the server's navigation list.
type Node struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Parent   string   `json:"parent,omitempty"`
	Type     NodeType `json:"type"`
	Category string   `json:"category,omitempty"`
	Profile  string   `json:"profile,omitempty"`
	Key      string   `json:"key,omitempty"` // displayText only
}

// Selectable reports whether selecting the node shows a settings panel.
func (n Node) Selectable() bool {
	switch n.Type {
	case TypeCategory, TypeProfile, TypeProfileDefinition, TypeDisplayText:
		return true
	}
	return false
}

type item struct {
	node     Node
	parent   *item
	children []*item
}

// Tree is the hierarchical view of a node list. It is immutable after Build.
type Tree struct {
	byID  map[string]*item
	roots []*item
	order []*item // depth-first order
}

// Row is a flattened, renderable tree line.
type Row struct {
	Node
	Depth       int
	HasChildren bool
	Expanded    bool
	Matched     bool
	MatchedIdx  []int // rune indexes of the match in Name
}

// Build creates a tree from a flat list. Nodes whose parent is unknown, or
// that are part of a parent cycle, become roots. Sibling order follows the
// input order. Later duplicates of an id are ignored.
func Build(nodes []Node) *Tree {
	t := &Tree{byID: make(map[string]*item, len(nodes))}
	items := make([]*item, 0, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			continue
		}
		if _, dup := t.byID[n.ID]; dup {
			continue
		}
		it := &item{node: n}
		t.byID[n.ID] = it
		items = append(items, it)
	}

	for _, it := range items {
		parent, ok := t.byID[it.node.Parent]
		if !ok || parent == it || createsCycle(it, parent) {
			t.roots = append(t.roots, it)
			continue
		}
		it.parent = parent
		parent.children = append(parent.children, it)
	}

	var walk func(its []*item)
	walk = func(its []*item) {
		for _, it := range its {
			t.order = append(t.order, it)
			walk(it.children)
		}
	}
	walk(t.roots)
	return t
}

// createsCycle reports whether attaching child under parent would close a loop.
func createsCycle(child, parent *item) bool {
	for p := parent; p != nil; p = p.parent {
		if p == child {
			return true
		}
	}
	return false
}

// Len returns the number of nodes.
func (t *Tree) Len() int {
	return len(t.order)
}

// Node looks up a node by id.
func (t *Tree) Node(id string) (Node, bool) {
	it, ok := t.byID[id]
	if !ok {
		return Node{}, false
	}
	return it.node, true
}

// Roots returns the top-level nodes.
func (t *Tree) Roots() []Node {
	out := make([]Node, len(t.roots))
	for i, it := range t.roots {
		out[i] = it.node
	}
	return out
}

// Children returns the direct children of id.
func (t *Tree) Children(id string) []Node {
	it, ok := t.byID[id]
	if !ok {
		return nil
	}
	out := make([]Node, len(it.children))
	for i, c := range it.children {
		out[i] = c.node
	}
	return out
}

// Path returns the nodes from the root down to id, inclusive.
func (t *Tree) Path(id string) []Node {
	it, ok := t.byID[id]
	if !ok {
		return nil
	}
	var path []Node
	for ; it != nil; it = it.parent {
		path = append(path, it.node)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// ProfileOf returns the profile id of the closest profile node on the path
// to id, or "".
func (t *Tree) ProfileOf(id string) string {
	for it := t.byID[id]; it != nil; it = it.parent {
		if it.node.Profile != "" {
			return it.node.Profile
		}
	}
	return ""
}

// Locate returns the node that shows the settings of category, within
// profile when it is not empty.
func (t *Tree) Locate(category, profile string) (Node, bool) {
	for _, it := range t.order {
		n := it.node
		if !n.Selectable() || n.Category != category {
			continue
		}
		if profile == "" && n.Profile == "" || profile != "" && n.Profile == profile {
			return n, true
		}
	}
	return Node{}, false
}

// Visible flattens the tree to the rows shown for an expansion state.
func (t *Tree) Visible(expanded Expanded) []Row {
	var rows []Row
	var walk func(its []*item, depth int)
	walk = func(its []*item, depth int) {
		for _, it := range its {
			open := expanded[it.node.ID]
			rows = append(rows, Row{
				Node:        it.node,
				Depth:       depth,
				HasChildren: len(it.children) > 0,
				Expanded:    open,
			})
			if open {
				walk(it.children, depth+1)
			}
		}
	}
	walk(t.roots, 0)
	return rows
}

// Filter returns the rows whose names fuzzy-match term, together with their
// ancestors, in tree order. Every returned row is expanded. An empty term
// returns nil.
func (t *Tree) Filter(term string) []Row {
	if term == "" {
		return nil
	}

	names := make([]string, len(t.order))
	for i, it := range t.order {
		names[i] = it.node.Name
	}

	matches := fuzzy.Find(term, names)
	if len(matches) == 0 {
		return nil
	}

	matched := make(map[*item][]int, len(matches))
	keep := make(map[*item]bool)
	for _, m := range matches {
		it := t.order[m.Index]
		matched[it] = m.MatchedIndexes
		for p := it; p != nil; p = p.parent {
			keep[p] = true
		}
	}

	var rows []Row
	for _, it := range t.order {
		if !keep[it] {
			continue
		}
		idx, isMatch := matched[it]
		rows = append(rows, Row{
			Node:        it.node,
			Depth:       t.depth(it),
			HasChildren: len(it.children) > 0,
			Expanded:    true,
			Matched:     isMatch,
			MatchedIdx:  idx,
		})
	}
	return rows
}

func (t *Tree) depth(it *item) int {
	d := 0
	for p := it.parent; p != nil; p = p.parent {
		d++
	}
	return d
}

// Expanded is the set of expanded node ids.
type Expanded map[string]bool

// NewExpanded creates an expansion set from a persisted id list.
func NewExpanded(ids []string) Expanded {
	e := make(Expanded, len(ids))
	for _, id := range ids {
		e[id] = true
	}
	return e
}

// Toggle flips the expansion state of id and returns the new state.
func (e Expanded) Toggle(id string) bool {
	if e[id] {
		delete(e, id)
		return false
	}
	e[id] = true
	return true
}

// ExpandPath expands every ancestor of id so that it becomes visible.
func (e Expanded) ExpandPath(t *Tree, id string) {
	path := t.Path(id)
	for i := 0; i < len(path)-1; i++ {
		e[path[i].ID] = true
	}
}

// IDs returns the expanded ids, sorted, for persistence.
func (e Expanded) IDs() []string {
	out := make([]string, 0, len(e))
	for id, open := range e {
		if open {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
