package differ

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/dgallion1/docdiff/internal/doctree"
	"github.com/dgallion1/docdiff/internal/parser"
)

func md(t *testing.T, src string) *doctree.Tree {
	t.Helper()
	tree, err := (&parser.MarkdownParser{}).Parse(strings.NewReader(src), "doc.md")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return tree
}

func compare(t *testing.T, prev, curr *doctree.Tree) *Diff {
	t.Helper()
	d, err := Compare(context.Background(), prev, curr, Options{Timeout: time.Minute})
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	return d
}

const intro = "## Intro\n\nA\n\n"

func TestCompare_Identity(t *testing.T) {
	tree := md(t, intro+"## History\n\nB\n")
	d := compare(t, tree, tree.Clone())
	if !d.Empty() || d.Cost != 0 {
		t.Fatalf("expected empty diff, got %+v", d)
	}
	if len(d.SectionsPrev) != 0 || len(d.SectionsCurr) != 0 {
		t.Errorf("expected no touched sections, got %v / %v", d.SectionsPrev, d.SectionsCurr)
	}
}

func TestCompare_ParagraphChanged(t *testing.T) {
	prev := md(t, intro+"## History\n\nB\n")
	curr := md(t, intro+"## History\n\nC\n")
	d := compare(t, prev, curr)

	if len(d.Remove) != 0 || len(d.Insert) != 0 {
		t.Fatalf("expected only a change, got remove=%v insert=%v", d.Remove, d.Insert)
	}
	if len(d.Change) != 1 {
		t.Fatalf("expected 1 change, got %d", len(d.Change))
	}
	c := d.Change[0]
	if c.Prev.Text != "B" || c.Curr.Text != "C" {
		t.Errorf("expected B -> C, got %q -> %q", c.Prev.Text, c.Curr.Text)
	}
	if c.Prev.Section != "History (S.2)" || c.Curr.Section != "History (S.2)" {
		t.Errorf("expected History section on both sides, got %q / %q", c.Prev.Section, c.Curr.Section)
	}
	if c.Prev.Type != doctree.KindParagraph {
		t.Errorf("expected Paragraph, got %s", c.Prev.Type)
	}
	if c.Prev.Offset != len("## History\n\n") || c.Prev.Size != 1 {
		t.Errorf("unexpected offset/size: %d/%d", c.Prev.Offset, c.Prev.Size)
	}
	if d.SectionsPrev["History (S.2)"] != "## History\n\nB" || d.SectionsCurr["History (S.2)"] != "## History\n\nC" {
		t.Errorf("unexpected section texts: %v / %v", d.SectionsPrev, d.SectionsCurr)
	}
	if _, ok := d.SectionsPrev["Intro (S.2)"]; ok {
		t.Error("untouched Intro section must not be in sections-prev")
	}
}

func TestCompare_SectionAdded(t *testing.T) {
	base := intro + "## History\n\nB\n\n"
	prev := md(t, base)
	curr := md(t, base+"## See Also\n\nD\n")
	d := compare(t, prev, curr)

	if len(d.Remove) != 0 || len(d.Change) != 0 {
		t.Fatalf("expected only inserts, got remove=%v change=%v", d.Remove, d.Change)
	}
	if len(d.Insert) != 2 {
		t.Fatalf("expected 2 inserts, got %v", d.Insert)
	}
	if d.Insert[0].Type != doctree.KindParagraph || d.Insert[0].Text != "D" {
		t.Errorf("expected paragraph D first, got %+v", d.Insert[0])
	}
	if d.Insert[1].Type != doctree.KindHeading || d.Insert[1].Name != "See Also (S.2)" {
		t.Errorf("expected See Also heading, got %+v", d.Insert[1])
	}
	for _, e := range d.Insert {
		if e.Section != "See Also (S.2)" {
			t.Errorf("%s: expected section See Also, got %q", e.Name, e.Section)
		}
	}
	if d.SectionsCurr["See Also (S.2)"] != "## See Also\n\nD" {
		t.Errorf("unexpected sections-curr: %v", d.SectionsCurr)
	}

	// Reversed, the same edit reads as removals.
	back := compare(t, curr, prev)
	if len(back.Remove) != 2 || len(back.Insert) != 0 || back.Cost != d.Cost {
		t.Fatalf("expected 2 removes at cost %d, got %+v", d.Cost, back)
	}
}

func TestCompare_LeadSection(t *testing.T) {
	prev := md(t, "Opening words.\n\n## Body\n\nx\n")
	curr := md(t, "Different opening.\n\n## Body\n\nx\n")
	d := compare(t, prev, curr)
	if len(d.Change) != 1 || d.Change[0].Prev.Section != doctree.LeadSection {
		t.Fatalf("expected one change in the lead section, got %+v", d.Change)
	}
}

func TestCompare_TypeChangeIsRemoveAndInsert(t *testing.T) {
	prev := md(t, "## S\n\nitem\n")
	curr := md(t, "## S\n\n- item\n")
	d := compare(t, prev, curr)
	if len(d.Change) != 0 {
		t.Fatalf("expected no change across kinds, got %+v", d.Change)
	}
	if len(d.Remove) != 1 || d.Remove[0].Type != doctree.KindParagraph {
		t.Errorf("expected paragraph removed, got %+v", d.Remove)
	}
	if len(d.Insert) != 1 || d.Insert[0].Type != doctree.KindList {
		t.Errorf("expected list inserted, got %+v", d.Insert)
	}
}

func TestCompare_PruningIsCostNeutral(t *testing.T) {
	unchanged1 := "## One\n\nfirst para\n\nsecond para\n\n"
	unchanged3 := "## Three\n\n- a\n- b\n\n```\ncode\n```\n"
	prev := md(t, unchanged1+"## Two\n\nold text\n\n"+unchanged3)
	curr := md(t, unchanged1+"## Two\n\nnew text\n\n"+unchanged3)

	d := compare(t, prev, curr)
	if d.Stats.Matched == 0 || d.Stats.PrevAfter >= d.Stats.PrevBefore {
		t.Fatalf("expected pruning to shrink the trees, got %+v", d.Stats.PruneStats)
	}

	full, err := NewEngine(prev, curr).Run(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if full.Cost != d.Cost {
		t.Errorf("pruned cost %d differs from unpruned cost %d", d.Cost, full.Cost)
	}

	for _, e := range append(append([]Entry{}, d.Remove...), d.Insert...) {
		if e.Section == "One (S.2)" || e.Section == "Three (S.2)" {
			t.Errorf("pruned section leaked into the diff: %+v", e)
		}
	}
	for _, c := range d.Change {
		if c.Prev.Section != "Two (S.2)" {
			t.Errorf("pruned section leaked into the diff: %+v", c)
		}
	}
}

func TestCompare_PrunedDuplicateTitleStaysPaired(t *testing.T) {
	prev := md(t, "## X\n\na\n")
	curr := md(t, "## X\n\na\n\n## X\n\nb\n")

	d := compare(t, prev, curr)
	if d.Stats.Matched != 1 {
		t.Fatalf("expected 1 matched section, got %+v", d.Stats.PruneStats)
	}
	if d.Cost != 2 || len(d.Remove) != 0 || len(d.Change) != 0 || len(d.Insert) != 2 {
		t.Fatalf("expected the second X and its paragraph inserted, got cost=%d %+v", d.Cost, d)
	}

	var heading, para Entry
	for _, e := range d.Insert {
		switch e.Type {
		case doctree.KindHeading:
			heading = e
		case doctree.KindParagraph:
			para = e
		}
	}
	if para.Text != "b" {
		t.Fatalf("expected paragraph b inserted, got %+v", d.Insert)
	}
	// Postorder puts the parent after its child; the pruned first X has none.
	if heading.ID <= para.ID {
		t.Errorf("inserted heading %d is not the parent of paragraph %d", heading.ID, para.ID)
	}
}

func TestPrune_PairsNestedSectionsWithTheirParent(t *testing.T) {
	// The first "Y" in curr is a decoy outside the matched "A" section.
	prev := md(t, "## A\n\ntext\n\n### Y\n\nsame\n")
	curr := md(t, "## B\n\nother\n\n### Y\n\nsame\n\n## A\n\ntext\n\n### Y\n\nsame\n")

	d := compare(t, prev, curr)
	full, err := NewEngine(prev, curr).Run(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Cost != full.Cost {
		t.Errorf("pruned cost %d differs from unpruned cost %d", d.Cost, full.Cost)
	}
	for _, e := range d.Remove {
		t.Errorf("unexpected removal: %+v", e)
	}
	for _, e := range d.Insert {
		if e.Section == "A (S.2)" {
			t.Errorf("pruned section leaked into the diff: %+v", e)
		}
	}
}

func TestPrune_MatchesNeverCross(t *testing.T) {
	prev := md(t, "## A\n\na\n\n## B\n\nb\n")
	curr := md(t, "## B\n\nb\n\n## A\n\na\n")
	t1, t2 := prev.Clone(), curr.Clone()

	st := Prune(t1, t2)
	if st.Matched != 1 {
		t.Fatalf("expected only one of two swapped sections matched, got %d", st.Matched)
	}
	s, err := NewEngine(t1, t2).Run(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, op := range s.Ops {
		if op.Prev != doctree.None && t1.Node(op.Prev).Pair != 0 {
			t.Errorf("paired prev node %d appears in %s", op.Prev, op.Kind)
		}
		if op.Curr != doctree.None && t2.Node(op.Curr).Pair != 0 {
			t.Errorf("paired curr node %d appears in %s", op.Curr, op.Kind)
		}
	}
}

func TestCompare_DoesNotMutateInputs(t *testing.T) {
	prev := md(t, intro+"## History\n\nB\n")
	curr := md(t, intro+"## History\n\nC\n")
	before := prev.Len()
	compare(t, prev, curr)
	if prev.Len() != before {
		t.Errorf("input tree mutated: %d -> %d nodes", before, prev.Len())
	}
}

func TestCompare_Timeout(t *testing.T) {
	prev := md(t, "## A\n\nx\n")
	curr := md(t, "## A\n\ny\n")
	d, err := Compare(context.Background(), prev, curr, Options{Timeout: -time.Second})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if d != nil {
		t.Error("expected no diff on timeout")
	}
	if StatusOf(err) != StatusTimeout {
		t.Errorf("expected timeout status, got %s", StatusOf(err))
	}
}

func TestCompare_ContextDeadline(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Millisecond))
	defer cancel()
	_, err := Compare(ctx, md(t, "a\n"), md(t, "b\n"), Options{})
	if StatusOf(err) != StatusTimeout {
		t.Fatalf("expected timeout status, got %v", err)
	}
}

func TestCompare_TooLarge(t *testing.T) {
	_, err := Compare(context.Background(), md(t, "a\n"), md(t, "b\n"), Options{MaxCells: 1})
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if StatusOf(err) != StatusTooLarge {
		t.Errorf("expected too_large status, got %s", StatusOf(err))
	}
}

func TestCompare_ChangeDelta(t *testing.T) {
	prev := md(t, "## S\n\nThe quick brown fox\n")
	curr := md(t, "## S\n\nThe quick red fox jumps\n")
	d := compare(t, prev, curr)
	if len(d.Change) != 1 {
		t.Fatalf("expected 1 change, got %+v", d.Change)
	}
	delta := d.Change[0].Delta
	if delta.Inserted == 0 || delta.Deleted == 0 {
		t.Errorf("expected both insertions and deletions, got %+v", delta)
	}
	if got, want := delta.Inserted-delta.Deleted, len("The quick red fox jumps")-len("The quick brown fox"); got != want {
		t.Errorf("net delta: expected %d, got %d", want, got)
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want Status
	}{
		{nil, StatusOK},
		{ErrTimeout, StatusTimeout},
		{fmt.Errorf("wrapped: %w", ErrTooLarge), StatusTooLarge},
		{context.Canceled, StatusCanceled},
		{context.DeadlineExceeded, StatusTimeout},
		{fmt.Errorf("%w: boom", ErrInternal), StatusInternal},
		{errors.New("other"), StatusInternal},
	}
	for _, tt := range tests {
		if got := StatusOf(tt.err); got != tt.want {
			t.Errorf("StatusOf(%v): expected %s, got %s", tt.err, tt.want, got)
		}
	}
}

// randomMarkdown builds a document of a few sections with paragraph and
// list bodies.
func randomMarkdown(f *gofakeit.Faker) []string {
	var blocks []string
	sections := f.Number(1, 4)
	for s := 0; s < sections; s++ {
		blocks = append(blocks, strings.Repeat("#", f.Number(1, 3))+" "+f.Noun())
		paras := f.Number(0, 3)
		for p := 0; p < paras; p++ {
			if f.Bool() {
				blocks = append(blocks, "- "+f.Word()+"\n- "+f.Word())
			} else {
				blocks = append(blocks, f.Word()+" "+f.Word()+" "+f.Word()+".")
			}
		}
	}
	return blocks
}

func mutate(f *gofakeit.Faker, blocks []string) []string {
	out := make([]string, 0, len(blocks)+2)
	for _, b := range blocks {
		switch f.Number(0, 5) {
		case 0: // drop
		case 1:
			out = append(out, f.Word()+" "+f.Word()+".")
		case 2:
			out = append(out, b, "## "+f.Noun())
		default:
			out = append(out, b)
		}
	}
	return out
}

func TestCompare_RandomizedProperties(t *testing.T) {
	f := gofakeit.New(7)
	for iter := 0; iter < 100; iter++ {
		a := randomMarkdown(f)
		b := mutate(f, a)
		ta := md(t, strings.Join(a, "\n\n")+"\n")
		tb := md(t, strings.Join(b, "\n\n")+"\n")

		ab := compare(t, ta, tb)
		ba := compare(t, tb, ta)

		if ab.Cost != ba.Cost {
			t.Fatalf("iteration %d: asymmetric cost %d vs %d", iter, ab.Cost, ba.Cost)
		}
		if ab.Cost > ta.Len()+tb.Len() {
			t.Fatalf("iteration %d: cost %d exceeds %d+%d", iter, ab.Cost, ta.Len(), tb.Len())
		}
		for _, c := range ab.Change {
			if c.Prev.Type != c.Curr.Type {
				t.Fatalf("iteration %d: change across kinds %s -> %s", iter, c.Prev.Type, c.Curr.Type)
			}
		}
		if same := compare(t, ta, ta.Clone()); !same.Empty() {
			t.Fatalf("iteration %d: self-comparison not empty: %+v", iter, same)
		}
	}
}
