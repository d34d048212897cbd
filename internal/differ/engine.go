package differ

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgallion1/docdiff/internal/doctree"
)

// OpKind is one elementary edit.
type OpKind string

const (
	OpRemove OpKind = "remove"
	OpInsert OpKind = "insert"
	OpChange OpKind = "change"
)

// Op is one edit of the script. Prev is None for inserts, Curr for removes.
type Op struct {
	Kind OpKind
	Prev doctree.NodeID
	Curr doctree.NodeID
}

// Script is a minimum-cost edit script between two trees.
type Script struct {
	Ops  []Op
	Cost int
}

const editCost int32 = 1

// Equal reports whether two nodes of the same kind carry the same content.
// Headings and paragraphs compare their full text so that a hash collision
// can never hide an edit. A heading collapsed by Prune equals only its own
// partner.
func Equal(a, b *doctree.Node) bool {
	if a.Kind != b.Kind || a.Pair != b.Pair {
		return false
	}
	if a.Kind.ComparesText() {
		return a.Text == b.Text
	}
	return a.Hash == b.Hash
}

// Engine computes the ordered tree edit distance between two trees with the
// Zhang-Shasha keyroot decomposition. One Engine serves one comparison.
type Engine struct {
	t1, t2   *doctree.Tree
	n1, n2   int
	lm1, lm2 []doctree.NodeID
	kr1, kr2 []doctree.NodeID

	// td[i*n2+j] is the distance between the subtrees rooted at i and j.
	td []int32
	// fd is forest-distance scratch for one keyroot pair, row stride n2+1.
	fd []int32

	// Cost of any edit that must never be chosen: a cross-kind
	// substitution, or touching a pruned heading other than by aligning it
	// with its partner. It exceeds any achievable script cost, and table
	// entries saturate at it.
	ban   int32
	pairs int
}

// NewEngine prepares the tables for comparing t1 against t2. Both trees
// must be laid out in postorder and hold at least their root.
func NewEngine(t1, t2 *doctree.Tree) *Engine {
	n1, n2 := t1.Len(), t2.Len()
	return &Engine{
		t1:  t1,
		t2:  t2,
		n1:  n1,
		n2:  n2,
		lm1: t1.Leftmost(),
		lm2: t2.Leftmost(),
		kr1: t1.Keyroots(),
		kr2: t2.Keyroots(),
		td:  make([]int32, n1*n2),
		fd:  make([]int32, (n1+1)*(n2+1)),
		ban: int32(n1 + n2 + 1),
	}
}

// KeyrootPairs returns how many keyroot pairs have been solved so far.
func (e *Engine) KeyrootPairs() int { return e.pairs }

// Run fills the distance tables and recovers the edit script. The deadline
// and ctx are polled before every keyroot pair; once either has expired the
// run is abandoned and no partial script is returned. A zero deadline means
// no wall-clock limit.
func (e *Engine) Run(ctx context.Context, deadline time.Time) (*Script, error) {
	if e.n1 == 0 || e.n2 == 0 {
		return nil, fmt.Errorf("%w: empty tree (%d, %d nodes)", ErrInternal, e.n1, e.n2)
	}
	for _, k1 := range e.kr1 {
		for _, k2 := range e.kr2 {
			if err := e.expired(ctx, deadline); err != nil {
				return nil, err
			}
			e.forest(int(k1), int(k2), true)
			e.pairs++
		}
	}
	return e.script(), nil
}

func (e *Engine) expired(ctx context.Context, deadline time.Time) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return err
	}
	if !deadline.IsZero() && !time.Now().Before(deadline) {
		return ErrTimeout
	}
	return nil
}

func (e *Engine) cost(i, j int) int32 {
	a, b := &e.t1.Nodes[i], &e.t2.Nodes[j]
	if a.Kind != b.Kind || a.Pair != b.Pair {
		return e.ban
	}
	if Equal(a, b) {
		return 0
	}
	return editCost
}

func (e *Engine) removeCost(i int) int32 {
	if e.t1.Nodes[i].Pair != 0 {
		return e.ban
	}
	return editCost
}

func (e *Engine) insertCost(j int) int32 {
	if e.t2.Nodes[j].Pair != 0 {
		return e.ban
	}
	return editCost
}

// add sums two table entries, saturating at ban.
func (e *Engine) add(a, b int32) int32 {
	if s := a + b; s < e.ban {
		return s
	}
	return e.ban
}

// forest computes the forest distances between the subtrees rooted at k1
// and k2 into fd. With record set, distances between whole subtrees whose
// leftmost leaves coincide with the keyroots' are stored in td.
func (e *Engine) forest(k1, k2 int, record bool) {
	l1, l2 := int(e.lm1[k1]), int(e.lm2[k2])
	rows, cols := k1-l1+2, k2-l2+2
	stride := e.n2 + 1
	fd := e.fd

	fd[0] = 0
	for x := 1; x < rows; x++ {
		fd[x*stride] = e.add(fd[(x-1)*stride], e.removeCost(l1+x-1))
	}
	for y := 1; y < cols; y++ {
		fd[y] = e.add(fd[y-1], e.insertCost(l2+y-1))
	}

	for x := 1; x < rows; x++ {
		i := l1 + x - 1
		li := int(e.lm1[i])
		row, prev := x*stride, (x-1)*stride
		for y := 1; y < cols; y++ {
			j := l2 + y - 1
			lj := int(e.lm2[j])

			del := e.add(fd[prev+y], e.removeCost(i))
			ins := e.add(fd[row+y-1], e.insertCost(j))
			var sub int32
			if li == l1 && lj == l2 {
				sub = e.add(fd[prev+y-1], e.cost(i, j))
			} else {
				sub = e.add(fd[(li-l1)*stride+(lj-l2)], e.td[i*e.n2+j])
			}

			best := min(sub, del, ins)
			fd[row+y] = best
			if record && li == l1 && lj == l2 {
				e.td[i*e.n2+j] = best
			}
		}
	}
}

// script backtracks through the forest tables from the two roots. Subtree
// pairs aligned inside a forest are pushed and resolved against their own
// forest table afterwards. Equal candidates resolve as change, then remove,
// then insert.
func (e *Engine) script() *Script {
	root1, root2 := e.n1-1, e.n2-1
	s := &Script{Cost: int(e.td[root1*e.n2+root2])}

	type pair struct{ i, j int }
	stack := []pair{{root1, root2}}
	stride := e.n2 + 1

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		e.forest(p.i, p.j, false)
		fd := e.fd
		l1, l2 := int(e.lm1[p.i]), int(e.lm2[p.j])
		x, y := p.i-l1+1, p.j-l2+1

		for x > 0 || y > 0 {
			i, j := l1+x-1, l2+y-1
			cur := fd[x*stride+y]
			switch {
			case y == 0:
				s.Ops = append(s.Ops, Op{Kind: OpRemove, Prev: doctree.NodeID(i), Curr: doctree.None})
				x--
			case x == 0:
				s.Ops = append(s.Ops, Op{Kind: OpInsert, Prev: doctree.None, Curr: doctree.NodeID(j)})
				y--
			default:
				li, lj := int(e.lm1[i]), int(e.lm2[j])
				whole := li == l1 && lj == l2
				var sub int32
				if whole {
					sub = e.add(fd[(x-1)*stride+y-1], e.cost(i, j))
				} else {
					sub = e.add(fd[(li-l1)*stride+(lj-l2)], e.td[i*e.n2+j])
				}
				switch {
				case sub == cur && whole:
					c := e.cost(i, j)
					if c >= e.ban {
						panic(fmt.Sprintf("differ: banned alignment of %d (%s) and %d (%s)",
							i, e.t1.Nodes[i].Kind, j, e.t2.Nodes[j].Kind))
					}
					if c > 0 {
						s.Ops = append(s.Ops, Op{Kind: OpChange, Prev: doctree.NodeID(i), Curr: doctree.NodeID(j)})
					}
					x--
					y--
				case sub == cur:
					stack = append(stack, pair{i, j})
					x, y = li-l1, lj-l2
				case e.add(fd[(x-1)*stride+y], e.removeCost(i)) == cur:
					s.Ops = append(s.Ops, Op{Kind: OpRemove, Prev: doctree.NodeID(i), Curr: doctree.None})
					x--
				case e.add(fd[x*stride+y-1], e.insertCost(j)) == cur:
					s.Ops = append(s.Ops, Op{Kind: OpInsert, Prev: doctree.None, Curr: doctree.NodeID(j)})
					y--
				default:
					panic(fmt.Sprintf("differ: no candidate reproduces distance %d at (%d, %d)", cur, i, j))
				}
			}
		}
	}

	if len(s.Ops) != s.Cost {
		panic(fmt.Sprintf("differ: script has %d ops for cost %d", len(s.Ops), s.Cost))
	}
	return s
}
