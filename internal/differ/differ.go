// Package differ computes structural differences between two document
// trees: identical sections are pruned, a Zhang-Shasha tree edit distance is
// run over what remains, and the edit script is reported as typed remove,
// insert and change records annotated with their sections.
package differ

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/dgallion1/docdiff/internal/doctree"
)

const (
	// DefaultTimeout bounds one comparison when the caller sets none.
	DefaultTimeout = 2 * time.Second
	// DefaultMaxCells caps n1*n2, the size of the subtree distance table.
	DefaultMaxCells = 4_000_000
)

// Options tunes one comparison.
type Options struct {
	// Timeout is the wall-clock budget. Zero selects DefaultTimeout; a
	// negative value is already expired.
	Timeout time.Duration
	// MaxCells caps n1*n2 after pruning. Zero selects DefaultMaxCells; a
	// negative value disables the cap.
	MaxCells int
	Logger   *slog.Logger
}

// Stats describes the work one comparison did.
type Stats struct {
	PruneStats
	KeyrootPairs int     `json:"keyroot_pairs"`
	DurationMS   float64 `json:"duration_ms"`
}

// Compare diffs prev against curr. The input trees are not modified.
//
// A nil Diff always comes with an error: ErrTimeout, ErrTooLarge, a context
// error, or ErrInternal when an engine invariant fails. None of them mean
// "no changes".
func Compare(ctx context.Context, prev, curr *doctree.Tree, opts Options) (diff *Diff, err error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("comparison invariant violated", "panic", r, "stack", string(debug.Stack()))
			diff, err = nil, fmt.Errorf("%w: %v", ErrInternal, r)
		}
	}()

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	deadline := start.Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	maxCells := opts.MaxCells
	if maxCells == 0 {
		maxCells = DefaultMaxCells
	}

	t1, t2 := prev.Clone(), curr.Clone()
	pst := Prune(t1, t2)
	log.Debug("pruned identical sections",
		"matched", pst.Matched,
		"prev_nodes", pst.PrevBefore, "prev_pruned", pst.PrevAfter,
		"curr_nodes", pst.CurrBefore, "curr_pruned", pst.CurrAfter,
	)

	if maxCells > 0 && t1.Len()*t2.Len() > maxCells {
		return nil, fmt.Errorf("%w: %d x %d nodes exceeds %d cells", ErrTooLarge, t1.Len(), t2.Len(), maxCells)
	}

	engine := NewEngine(t1, t2)
	script, err := engine.Run(ctx, deadline)
	if err != nil {
		log.Warn("comparison unavailable",
			"error", err,
			"keyroot_pairs", engine.KeyrootPairs(),
			"elapsed", time.Since(start),
		)
		return nil, err
	}

	diff = Extract(script, t1, t2)
	diff.Stats = Stats{
		PruneStats:   pst,
		KeyrootPairs: engine.KeyrootPairs(),
		DurationMS:   float64(time.Since(start).Microseconds()) / 1000,
	}
	return diff, nil
}
