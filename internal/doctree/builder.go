package doctree

import (
	"fmt"
	"strings"
)

// LeadSection names the synthetic section holding content that precedes the
// first heading.
const LeadSection = "Lead (S.0)"

// Builder grows a tree in document order and lays it out in postorder once
// finished.
type Builder struct {
	title    string
	nodes    []Node
	sections map[string]string
}

// NewBuilder starts a tree holding only the synthetic root.
func NewBuilder(title string) *Builder {
	b := &Builder{
		title:    title,
		sections: make(map[string]string),
	}
	b.nodes = append(b.nodes, Node{
		ID:     0,
		Kind:   KindDocument,
		Name:   "root",
		Hash:   Hash(""),
		Parent: None,
	})
	return b
}

// Root returns the builder-local ID of the root.
func (b *Builder) Root() NodeID { return 0 }

// Add appends n as the last child of parent and returns its builder-local ID.
func (b *Builder) Add(parent NodeID, n Node) NodeID {
	id := NodeID(len(b.nodes))
	n.ID = id
	n.Parent = parent
	n.Children = nil
	b.nodes = append(b.nodes, n)
	b.nodes[parent].Children = append(b.nodes[parent].Children, id)
	return id
}

// Node returns a builder-local node for in-place updates.
func (b *Builder) Node(id NodeID) *Node { return &b.nodes[id] }

// SetSection records the display text of a section.
func (b *Builder) SetSection(name, text string) { b.sections[name] = text }

// Tree finalizes the tree. Builder-local IDs are not valid afterwards.
func (b *Builder) Tree() *Tree {
	return &Tree{
		Title:    b.title,
		Nodes:    layout(b.nodes, b.Root()),
		Sections: b.sections,
	}
}

// SectionName renders a heading's display name, e.g. "History (S.2)".
func SectionName(title string, level int) string {
	return fmt.Sprintf("%s (S.%d)", strings.TrimSpace(title), level)
}

// NodeName renders a content node's display name, e.g. "Paragraph: The quick...".
func NodeName(kind Kind, text string) string {
	t := strings.ReplaceAll(text, "\n", `\n`)
	if len(t) > 13 {
		return fmt.Sprintf("%s: %s...", kind, truncateRunes(t, 10))
	}
	return fmt.Sprintf("%s: %s", kind, t)
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
