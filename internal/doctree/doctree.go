package doctree

import (
	"fmt"
	"slices"

	"github.com/cespare/xxhash/v2"
)

// Kind classifies a node. Two nodes are only ever substitutable for each
// other when their kinds match.
type Kind string

const (
	KindDocument      Kind = "Document"
	KindHeading       Kind = "Heading"
	KindParagraph     Kind = "Paragraph"
	KindText          Kind = "Text"
	KindList          Kind = "List"
	KindCodeBlock     Kind = "CodeBlock"
	KindQuote         Kind = "Quote"
	KindTable         Kind = "Table"
	KindThematicBreak Kind = "ThematicBreak"
	KindHTMLBlock     Kind = "HTMLBlock"
	KindTemplate      Kind = "Template"
	KindWikilink      Kind = "Wikilink"
	KindExternalLink  Kind = "ExternalLink"
	KindTag           Kind = "Tag"
	KindComment       Kind = "Comment"
)

// ComparesText reports whether equality for this kind is decided on the full
// text instead of the content hash.
func (k Kind) ComparesText() bool {
	return k == KindHeading || k == KindParagraph
}

// NodeID indexes a node inside one Tree. IDs from different trees are
// unrelated.
type NodeID int

// None marks a missing parent or an absent node.
const None NodeID = -1

// Node is one structural unit of a document: the synthetic root, a section
// heading, or a block of content.
type Node struct {
	ID       NodeID
	Kind     Kind
	Name     string // Display name, e.g. "History (S.2)" or "Paragraph: Some text..."
	Level    int    // Heading level; 0 for the lead section and for non-headings
	Hash     uint64 // Headings hash their whole section, other nodes their text
	Text     string // Literal text, right-trimmed
	Offset   int    // Byte offset from the start of the enclosing section
	Pair     int    // Token shared with the partner heading after pruning; 0 when unmatched
	Parent   NodeID
	Children []NodeID
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool { return len(n.Children) == 0 }

// Hash returns the content hash used for node equality checks.
func Hash(s string) uint64 {
	return xxhash.Sum64String(s)
}

// Tree is an ordered document tree stored as an arena in postorder: a node's
// ID is its position in Nodes and the root is always the last node.
type Tree struct {
	Title    string
	Nodes    []Node
	Sections map[string]string // Section name -> heading plus direct body text
}

// Len returns the number of nodes, root included.
func (t *Tree) Len() int { return len(t.Nodes) }

// Root returns the ID of the synthetic root.
func (t *Tree) Root() NodeID { return NodeID(len(t.Nodes) - 1) }

// Node returns the node with the given ID.
func (t *Tree) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(t.Nodes) {
		panic(fmt.Sprintf("doctree: node %d out of range [0,%d)", id, len(t.Nodes)))
	}
	return &t.Nodes[id]
}

// Leftmost returns, for every node, the ID of its leftmost leaf descendant
// (the node itself when it is a leaf). Children precede their parent in
// postorder, so one forward pass suffices.
func (t *Tree) Leftmost() []NodeID {
	lm := make([]NodeID, len(t.Nodes))
	for i := range t.Nodes {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			lm[i] = NodeID(i)
			continue
		}
		first := n.Children[0]
		if first >= NodeID(i) {
			panic(fmt.Sprintf("doctree: child %d of node %d breaks postorder", first, i))
		}
		lm[i] = lm[first]
	}
	return lm
}

// Keyroots returns, in ascending order, the root plus every node that has a
// left sibling.
func (t *Tree) Keyroots() []NodeID {
	if len(t.Nodes) == 0 {
		return nil
	}
	mark := make([]bool, len(t.Nodes))
	mark[t.Root()] = true
	for i := range t.Nodes {
		kids := t.Nodes[i].Children
		for k := 1; k < len(kids); k++ {
			mark[kids[k]] = true
		}
	}
	var out []NodeID
	for i, ok := range mark {
		if ok {
			out = append(out, NodeID(i))
		}
	}
	return out
}

// Headings returns the IDs of all heading nodes in postorder.
func (t *Tree) Headings() []NodeID {
	var out []NodeID
	for i := range t.Nodes {
		if t.Nodes[i].Kind == KindHeading {
			out = append(out, NodeID(i))
		}
	}
	return out
}

// Section returns the name of the section a node belongs to: a heading's own
// name, otherwise the nearest heading ancestor, otherwise the lead section.
func (t *Tree) Section(id NodeID) string {
	for cur := id; cur != None; cur = t.Node(cur).Parent {
		n := t.Node(cur)
		if n.Kind == KindHeading {
			return n.Name
		}
	}
	return LeadSection
}

// RetainChildren drops every child of id for which keep returns false. The
// dropped children lose their parent link and disappear on the next Compact.
// It returns the number of children dropped.
func (t *Tree) RetainChildren(id NodeID, keep func(*Node) bool) int {
	n := t.Node(id)
	kept := n.Children[:0]
	dropped := 0
	for _, c := range n.Children {
		if keep(t.Node(c)) {
			kept = append(kept, c)
			continue
		}
		t.Node(c).Parent = None
		dropped++
	}
	n.Children = kept
	return dropped
}

// Compact lays the tree out again in postorder from the root, discarding
// every node no longer reachable from it. IDs are reassigned.
func (t *Tree) Compact() {
	if len(t.Nodes) == 0 {
		return
	}
	t.Nodes = layout(t.Nodes, t.Root())
}

// Clone returns a deep copy of the tree.
func (t *Tree) Clone() *Tree {
	out := &Tree{
		Title:    t.Title,
		Nodes:    make([]Node, len(t.Nodes)),
		Sections: make(map[string]string, len(t.Sections)),
	}
	for i, n := range t.Nodes {
		n.Children = slices.Clone(n.Children)
		out.Nodes[i] = n
	}
	for k, v := range t.Sections {
		out.Sections[k] = v
	}
	return out
}

// Walk visits the tree in document (pre)order with each node's depth.
func (t *Tree) Walk(fn func(n *Node, depth int)) {
	if len(t.Nodes) == 0 {
		return
	}
	var visit func(id NodeID, depth int)
	visit = func(id NodeID, depth int) {
		n := t.Node(id)
		fn(n, depth)
		for _, c := range n.Children {
			visit(c, depth+1)
		}
	}
	visit(t.Root(), 0)
}

// layout returns the nodes reachable from root in postorder with IDs,
// parents and children remapped to their new positions.
func layout(src []Node, root NodeID) []Node {
	type frame struct {
		id   NodeID
		next int
	}
	order := make([]NodeID, 0, len(src))
	stack := []frame{{id: root}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		kids := src[top.id].Children
		if top.next < len(kids) {
			c := kids[top.next]
			top.next++
			stack = append(stack, frame{id: c})
			continue
		}
		order = append(order, top.id)
		stack = stack[:len(stack)-1]
	}

	remap := make([]NodeID, len(src))
	for i := range remap {
		remap[i] = None
	}
	for newID, oldID := range order {
		remap[oldID] = NodeID(newID)
	}

	out := make([]Node, len(order))
	for newID, oldID := range order {
		n := src[oldID]
		n.ID = NodeID(newID)
		kids := make([]NodeID, len(n.Children))
		for k, c := range n.Children {
			kids[k] = remap[c]
		}
		n.Children = kids
		if oldID == root {
			n.Parent = None
		} else {
			n.Parent = remap[n.Parent]
		}
		out[newID] = n
	}
	return out
}
