package parser

import (
	"fmt"
	"strings"

	"github.com/dgallion1/docdiff/internal/doctree"
)

// Block is one top-level unit produced by a dialect front-end. Concatenating
// the Raw text of every block reproduces the document, so offsets inside a
// section are the running sum of Raw lengths.
type Block struct {
	Kind  doctree.Kind
	Level int    // Heading level (1-6); headings only
	Title string // Heading title; headings only
	Raw   string // Literal source text, trailing separators included
}

// assemble nests blocks under their headings and finalizes the tree.
func assemble(title string, blocks []Block) *doctree.Tree {
	b := doctree.NewBuilder(title)

	// Stack of open sections; the root is level 0 and is never popped.
	type stackEntry struct {
		id    doctree.NodeID
		level int
		lead  bool
	}
	stack := []stackEntry{{id: b.Root(), level: 0}}

	raws := map[doctree.NodeID]string{}
	var headings []doctree.NodeID
	offset := 0
	// Section names key the side table; repeats get a " #n" suffix.
	seen := map[string]int{}

	for _, blk := range blocks {
		if blk.Kind == doctree.KindHeading {
			for len(stack) > 1 && (stack[len(stack)-1].lead || stack[len(stack)-1].level >= blk.Level) {
				stack = stack[:len(stack)-1]
			}
			parent := stack[len(stack)-1].id
			name := doctree.SectionName(blk.Title, blk.Level)
			if seen[name]++; seen[name] > 1 {
				name = fmt.Sprintf("%s #%d", name, seen[name])
			}
			id := b.Add(parent, doctree.Node{
				Kind:  doctree.KindHeading,
				Name:  name,
				Level: blk.Level,
				Text:  strings.TrimRight(blk.Raw, " \t\r\n"),
			})
			raws[id] = blk.Raw
			headings = append(headings, id)
			stack = append(stack, stackEntry{id: id, level: blk.Level})
			offset = len(blk.Raw)
			continue
		}

		text := strings.TrimRight(blk.Raw, " \t\r\n")
		if strings.TrimSpace(text) == "" {
			// Whitespace-only blocks carry no content; keep offsets exact.
			offset += len(blk.Raw)
			continue
		}
		if len(stack) == 1 {
			// Content before the first heading opens the lead section.
			id := b.Add(b.Root(), doctree.Node{
				Kind: doctree.KindHeading,
				Name: doctree.LeadSection,
			})
			headings = append(headings, id)
			stack = append(stack, stackEntry{id: id, lead: true})
			offset = 0
		}

		id := b.Add(stack[len(stack)-1].id, doctree.Node{
			Kind:   blk.Kind,
			Name:   doctree.NodeName(blk.Kind, text),
			Hash:   doctree.Hash(text),
			Text:   text,
			Offset: offset,
		})
		raws[id] = blk.Raw
		offset += len(blk.Raw)
	}

	// A heading's hash covers its whole section, sub-sections included; the
	// side table keeps the heading plus its direct body.
	var full func(id doctree.NodeID, sb *strings.Builder)
	full = func(id doctree.NodeID, sb *strings.Builder) {
		sb.WriteString(raws[id])
		for _, c := range b.Node(id).Children {
			full(c, sb)
		}
	}
	for _, h := range headings {
		var all strings.Builder
		full(h, &all)
		n := b.Node(h)
		n.Hash = doctree.Hash(strings.TrimRight(all.String(), " \t\r\n"))

		var direct strings.Builder
		direct.WriteString(raws[h])
		for _, c := range n.Children {
			if b.Node(c).Kind != doctree.KindHeading {
				direct.WriteString(raws[c])
			}
		}
		b.SetSection(n.Name, strings.TrimRight(direct.String(), " \t\r\n"))
	}

	return b.Tree()
}
