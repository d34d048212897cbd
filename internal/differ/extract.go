package differ

import (
	"cmp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/docdiff/internal/doctree"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Entry describes one node of a diff with its structural context.
type Entry struct {
	ID      doctree.NodeID `json:"-"`
	Name    string         `json:"name"`
	Type    doctree.Kind   `json:"type"`
	Section string         `json:"section"`
	Offset  int            `json:"offset"`
	Size    int            `json:"size"`
	Text    string         `json:"text,omitempty"`
}

// Delta counts the characters a change inserts and deletes.
type Delta struct {
	Inserted int `json:"inserted"`
	Deleted  int `json:"deleted"`
}

// Change pairs a node with its edited counterpart.
type Change struct {
	Prev  Entry `json:"prev"`
	Curr  Entry `json:"curr"`
	Delta Delta `json:"delta"`
}

// Diff is the structured result of one comparison. SectionsPrev holds the
// text of every previous section touched by a remove or change, SectionsCurr
// every current section touched by an insert or change.
type Diff struct {
	Remove       []Entry           `json:"remove"`
	Insert       []Entry           `json:"insert"`
	Change       []Change          `json:"change"`
	SectionsPrev map[string]string `json:"sections-prev"`
	SectionsCurr map[string]string `json:"sections-curr"`
	Cost         int               `json:"cost"`
	Stats        Stats             `json:"stats"`
}

// Empty reports whether the diff holds no edits.
func (d *Diff) Empty() bool {
	return len(d.Remove) == 0 && len(d.Insert) == 0 && len(d.Change) == 0
}

// Extract turns an edit script over prev and curr into a Diff. Lists are in
// postorder of the tree they refer to.
func Extract(s *Script, prev, curr *doctree.Tree) *Diff {
	d := &Diff{
		Remove:       []Entry{},
		Insert:       []Entry{},
		Change:       []Change{},
		SectionsPrev: map[string]string{},
		SectionsCurr: map[string]string{},
		Cost:         s.Cost,
	}

	for _, op := range s.Ops {
		switch op.Kind {
		case OpRemove:
			e := entry(prev, op.Prev)
			d.Remove = append(d.Remove, e)
			touch(d.SectionsPrev, prev, e.Section)
		case OpInsert:
			e := entry(curr, op.Curr)
			d.Insert = append(d.Insert, e)
			touch(d.SectionsCurr, curr, e.Section)
		case OpChange:
			p, c := entry(prev, op.Prev), entry(curr, op.Curr)
			d.Change = append(d.Change, Change{Prev: p, Curr: c, Delta: textDelta(p.Text, c.Text)})
			touch(d.SectionsPrev, prev, p.Section)
			touch(d.SectionsCurr, curr, c.Section)
		}
	}

	byID := func(a, b Entry) int { return cmp.Compare(a.ID, b.ID) }
	slices.SortFunc(d.Remove, byID)
	slices.SortFunc(d.Insert, byID)
	slices.SortFunc(d.Change, func(a, b Change) int { return byID(a.Prev, b.Prev) })
	return d
}

func entry(t *doctree.Tree, id doctree.NodeID) Entry {
	n := t.Node(id)
	return Entry{
		ID:      id,
		Name:    n.Name,
		Type:    n.Kind,
		Section: t.Section(id),
		Offset:  n.Offset,
		Size:    len(n.Text),
		Text:    n.Text,
	}
}

func touch(dst map[string]string, t *doctree.Tree, section string) {
	if text, ok := t.Sections[section]; ok {
		dst[section] = text
	}
}

func textDelta(prev, curr string) Delta {
	dmp := diffmatchpatch.New()
	lines := strings.Contains(prev, "\n") && strings.Contains(curr, "\n")
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(prev, curr, lines))
	var d Delta
	for _, df := range diffs {
		switch df.Type {
		case diffmatchpatch.DiffInsert:
			d.Inserted += utf8.RuneCountInString(df.Text)
		case diffmatchpatch.DiffDelete:
			d.Deleted += utf8.RuneCountInString(df.Text)
		}
	}
	return d
}
