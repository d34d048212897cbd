package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/docdiff/internal/differ"
	"github.com/dgallion1/docdiff/internal/doctree"
	"github.com/fatih/color"
)

type palette struct {
	remove  func(a ...any) string
	insert  func(a ...any) string
	change  func(a ...any) string
	section func(a ...any) string
	dim     func(a ...any) string
}

func newPalette(enabled bool) palette {
	if !enabled {
		return palette{fmt.Sprint, fmt.Sprint, fmt.Sprint, fmt.Sprint, fmt.Sprint}
	}
	// The caller has already decided; override color's own tty detection.
	sprint := func(c *color.Color) func(a ...any) string {
		c.EnableColor()
		return c.SprintFunc()
	}
	return palette{
		remove:  sprint(color.New(color.FgRed)),
		insert:  sprint(color.New(color.FgGreen)),
		change:  sprint(color.New(color.FgYellow)),
		section: sprint(color.New(color.FgCyan, color.Bold)),
		dim:     sprint(color.RGB(128, 128, 128)),
	}
}

// renderDiff prints one line per edit, grouped under the section it touches.
func renderDiff(w io.Writer, d *differ.Diff, p palette) {
	if d.Empty() {
		fmt.Fprintln(w, p.dim("no structural changes"))
		return
	}

	type line struct {
		section string
		text    string
	}
	var lines []line
	for _, e := range d.Remove {
		lines = append(lines, line{e.Section, p.remove("- " + e.Name + at(e))})
	}
	for _, e := range d.Insert {
		lines = append(lines, line{e.Section, p.insert("+ " + e.Name + at(e))})
	}
	for _, c := range d.Change {
		text := p.change(fmt.Sprintf("~ %s%s -> %s", c.Prev.Name, at(c.Prev), c.Curr.Name))
		text += p.dim(fmt.Sprintf(" (+%d -%d)", c.Delta.Inserted, c.Delta.Deleted))
		lines = append(lines, line{c.Curr.Section, text})
	}

	current := "\x00"
	for _, l := range lines {
		if l.section != current {
			current = l.section
			name := l.section
			if name == "" {
				name = "(document)"
			}
			fmt.Fprintln(w, p.section(name))
		}
		fmt.Fprintln(w, "  "+l.text)
	}
	fmt.Fprintln(w, p.dim(fmt.Sprintf("%d removed, %d inserted, %d changed (cost %d, %d/%d nodes after pruning, %.2f ms)",
		len(d.Remove), len(d.Insert), len(d.Change), d.Cost,
		d.Stats.PrevAfter, d.Stats.CurrAfter, d.Stats.DurationMS)))
}

func at(e differ.Entry) string {
	return fmt.Sprintf(" @%d", e.Offset)
}

// renderTree prints the tree in document order with one node per line.
func renderTree(w io.Writer, t *doctree.Tree, p palette) {
	if t.Title != "" {
		fmt.Fprintln(w, p.section(t.Title))
	}
	t.Walk(func(n *doctree.Node, depth int) {
		if n.Kind == doctree.KindDocument {
			return
		}
		name := n.Name
		if n.Kind == doctree.KindHeading {
			name = p.section(name)
		}
		fmt.Fprintf(w, "%s%s %s\n", strings.Repeat("  ", depth-1), name,
			p.dim(fmt.Sprintf("#%d @%d %dB", n.ID, n.Offset, len(n.Text))))
	})
}
