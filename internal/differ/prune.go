package differ

import "github.com/dgallion1/docdiff/internal/doctree"

// PruneStats describes what Prune removed.
type PruneStats struct {
	Matched    int `json:"matched_sections"`
	PrevBefore int `json:"prev_nodes"`
	CurrBefore int `json:"curr_nodes"`
	PrevAfter  int `json:"prev_nodes_pruned"`
	CurrAfter  int `json:"curr_nodes_pruned"`
}

// Prune collapses sections that are byte-identical in both trees down to
// their heading skeleton, in place.
//
// Prev headings are visited in document order and each is matched to the
// first curr heading with the same section hash that starts after the last
// matched curr section, so matches never cross. A matched section and every
// sub-section under it are paired node for node: each pair shares a token in
// Node.Pair, loses its non-heading children, and compares equal only to its
// partner. Both trees are compacted afterwards.
func Prune(prev, curr *doctree.Tree) PruneStats {
	st := PruneStats{PrevBefore: prev.Len(), CurrBefore: curr.Len()}

	queue := make(map[uint64][]doctree.NodeID)
	for _, id := range headingsInOrder(curr) {
		h := curr.Node(id).Hash
		queue[h] = append(queue[h], id)
	}
	// In postorder a subtree occupies [leftmost, root], so a candidate lies
	// wholly after the last match when its leftmost leaf does.
	lm := curr.Leftmost()
	last := doctree.None

	for _, id := range headingsInOrder(prev) {
		n := prev.Node(id)
		if n.Pair != 0 {
			continue
		}
		candidates := queue[n.Hash]
		for len(candidates) > 0 && lm[candidates[0]] <= last {
			candidates = candidates[1:]
		}
		queue[n.Hash] = candidates
		if len(candidates) == 0 || !sameSubtree(prev, id, curr, candidates[0]) {
			continue
		}
		match := candidates[0]
		queue[n.Hash] = candidates[1:]
		last = match
		pairSections(prev, id, curr, match, &st.Matched)
	}

	if st.Matched > 0 {
		prev.Compact()
		curr.Compact()
	}
	st.PrevAfter, st.CurrAfter = prev.Len(), curr.Len()
	return st
}

// headingsInOrder returns heading IDs in document (pre)order.
func headingsInOrder(t *doctree.Tree) []doctree.NodeID {
	var out []doctree.NodeID
	t.Walk(func(n *doctree.Node, _ int) {
		if n.Kind == doctree.KindHeading {
			out = append(out, n.ID)
		}
	})
	return out
}

// sameSubtree reports whether two subtrees are structurally identical with
// identical content. It guards the hash match against collisions.
func sameSubtree(t1 *doctree.Tree, a doctree.NodeID, t2 *doctree.Tree, b doctree.NodeID) bool {
	x, y := t1.Node(a), t2.Node(b)
	if x.Kind != y.Kind || x.Hash != y.Hash || x.Text != y.Text || len(x.Children) != len(y.Children) {
		return false
	}
	for k := range x.Children {
		if !sameSubtree(t1, x.Children[k], t2, y.Children[k]) {
			return false
		}
	}
	return true
}

// pairSections tags a and b and every heading below them with a shared
// token, then strips their non-heading children. The subtrees must already
// be identical.
func pairSections(prev *doctree.Tree, a doctree.NodeID, curr *doctree.Tree, b doctree.NodeID, token *int) {
	pa, cb := prev.Node(a), curr.Node(b)
	*token++
	pa.Pair, cb.Pair = *token, *token

	for k, c := range pa.Children {
		if prev.Node(c).Kind == doctree.KindHeading {
			pairSections(prev, c, curr, cb.Children[k], token)
		}
	}

	isHeading := func(n *doctree.Node) bool { return n.Kind == doctree.KindHeading }
	prev.RetainChildren(a, isHeading)
	curr.RetainChildren(b, isHeading)
}
