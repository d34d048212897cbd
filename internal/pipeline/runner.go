// Package pipeline runs comparisons end to end: it fetches revisions when
// asked to, builds both document trees, diffs them and records the outcome.
// Large comparisons can be queued as asynchronous jobs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/docdiff/internal/differ"
	"github.com/dgallion1/docdiff/internal/doctree"
	"github.com/dgallion1/docdiff/internal/metrics"
	"github.com/dgallion1/docdiff/internal/parser"
	"github.com/dgallion1/docdiff/internal/wikiapi"
	"golang.org/x/sync/errgroup"
)

// ErrFetch wraps failures to retrieve the documents being compared.
var ErrFetch = errors.New("fetch revisions")

// StatusFetchFailed reports a comparison that never ran because its
// documents could not be fetched.
const StatusFetchFailed differ.Status = "fetch_failed"

// Outcome classifies an error returned by Run.
func Outcome(err error) differ.Status {
	if errors.Is(err, ErrFetch) {
		return StatusFetchFailed
	}
	return differ.StatusOf(err)
}

// Request describes one comparison. When RevID is set the two snapshots are
// fetched from the wiki (the revision and its parent) and Previous, Current
// and Dialect are ignored.
type Request struct {
	Previous []byte
	Current  []byte
	Dialect  parser.Dialect
	Filename string
	Title    string

	Lang  string
	RevID int64

	Timeout time.Duration

	// onCompare is called once the documents are available.
	onCompare func()
}

// Fetcher retrieves a revision together with its parent.
type Fetcher interface {
	RevisionPair(ctx context.Context, lang string, revID int64) (prev, curr *wikiapi.Revision, err error)
}

// Runner executes comparisons and records their outcome.
type Runner struct {
	wiki     Fetcher
	window   *metrics.Window
	log      *slog.Logger
	maxCells int
	backoff  func(attempt int) time.Duration
}

func NewRunner(wiki Fetcher, window *metrics.Window, log *slog.Logger, maxCells int) *Runner {
	return &Runner{
		wiki:     wiki,
		window:   window,
		log:      log,
		maxCells: maxCells,
		backoff:  Backoff,
	}
}

// Window returns the latency window the runner records into.
func (r *Runner) Window() *metrics.Window { return r.window }

// Run performs one comparison. A nil Diff always comes with an error.
func (r *Runner) Run(ctx context.Context, req Request) (*differ.Diff, error) {
	log := r.log.With("dialect", req.Dialect)
	if req.RevID > 0 {
		log = r.log.With("lang", req.Lang, "revid", req.RevID)
		prev, curr, err := r.fetch(ctx, req.Lang, req.RevID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFetch, err)
		}
		req.Previous = []byte(prev.Content)
		req.Current = []byte(curr.Content)
		req.Dialect = parser.Wikitext
		if req.Title == "" {
			req.Title = curr.Title
		}
	}
	if req.Dialect == "" {
		req.Dialect = parser.Wikitext
	}
	if req.onCompare != nil {
		req.onCompare()
	}

	var prevTree, currTree *doctree.Tree
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		prevTree = r.build(gctx, req, req.Previous, log)
		return gctx.Err()
	})
	g.Go(func() error {
		currTree = r.build(gctx, req, req.Current, log)
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		r.record(nil, err, 0)
		return nil, err
	}

	start := time.Now()
	diff, err := differ.Compare(ctx, prevTree, currTree, differ.Options{
		Timeout:  req.Timeout,
		MaxCells: r.maxCells,
		Logger:   log,
	})
	r.record(diff, err, time.Since(start))
	if err != nil {
		return nil, err
	}
	log.Info("comparison complete",
		"removed", len(diff.Remove),
		"inserted", len(diff.Insert),
		"changed", len(diff.Change),
		"cost", diff.Cost,
		"duration_ms", diff.Stats.DurationMS,
	)
	return diff, nil
}

func (r *Runner) build(ctx context.Context, req Request, data []byte, log *slog.Logger) *doctree.Tree {
	if ctx.Err() != nil {
		return nil
	}
	tree := parser.Build(req.Dialect, data, req.Filename, log)
	if req.Title != "" {
		tree.Title = req.Title
	}
	return tree
}

func (r *Runner) record(diff *differ.Diff, err error, elapsed time.Duration) {
	status := string(differ.StatusOf(err))
	c := metrics.Comparison{Status: status, Duration: elapsed}
	if diff != nil {
		c.PrevNodes = diff.Stats.PrevAfter
		c.CurrNodes = diff.Stats.CurrAfter
		c.KeyrootPairs = diff.Stats.KeyrootPairs
	}
	metrics.RecordComparison(c)
	if r.window != nil {
		r.window.Record(elapsed.Milliseconds(), status)
	}
}

// fetch retrieves a revision pair, retrying transient failures with backoff.
func (r *Runner) fetch(ctx context.Context, lang string, revID int64) (prev, curr *wikiapi.Revision, err error) {
	if r.wiki == nil {
		return nil, nil, errors.New("no wiki client configured")
	}
	for attempt := range MaxRetries {
		prev, curr, err = r.wiki.RevisionPair(ctx, lang, revID)
		if err == nil {
			metrics.RecordFetch("ok")
			return prev, curr, nil
		}
		if !IsRetryable(err) {
			metrics.RecordFetch("error")
			return nil, nil, err
		}
		metrics.RecordFetch("retryable")
		r.log.Warn("retryable fetch error", "lang", lang, "revid", revID, "attempt", attempt, "error", err)
		if attempt == MaxRetries-1 {
			break
		}
		select {
		case <-time.After(r.backoff(attempt)):
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
	return nil, nil, err
}
