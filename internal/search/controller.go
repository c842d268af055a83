// Package search debounces free-text catalog search.
//
// Each keystroke cancels the pending search and schedules a new one after a
// quiet window. Only the last keystroke of a burst reaches the service.
package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"storefront/internal/catalog"
	"storefront/internal/model"
	"storefront/internal/notice"
)

// DefaultDelay is the quiet window after the last keystroke.
const DefaultDelay = 500 * time.Millisecond

// Searcher is the slice of adapter.Storefront the controller needs.
type Searcher interface {
	SearchProducts(ctx context.Context, text string) ([]model.Product, error)
}

// Config holds controller dependencies. Zero fields get defaults.
type Config struct {
	Delay   time.Duration
	Clock   Clock
	Notices notice.Sink
	Logger  *slog.Logger
}

// Controller owns the single pending-search slot.
type Controller struct {
	api     Searcher
	store   *catalog.Store
	delay   time.Duration
	clock   Clock
	notices notice.Sink
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	gen     uint64 // generation of the pending search; bumped on every input
	pending Timer
	closed  bool
}

// Handle identifies one scheduled search.
type Handle struct {
	c    *Controller
	gen  uint64
	text string
}

// Text returns the search text the handle was scheduled with.
func (h Handle) Text() string { return h.text }

// Pending reports whether the search is still waiting to run.
func (h Handle) Pending() bool {
	if h.c == nil {
		return false
	}
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	return !h.c.closed && h.c.pending != nil && h.c.gen == h.gen
}

// Cancel drops the search if it has not run yet. Cancelling a superseded
// handle is a no-op.
func (h Handle) Cancel() {
	if h.c == nil {
		return
	}
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	if h.c.gen == h.gen {
		h.c.cancelPendingLocked()
	}
}

// New creates a controller that writes search results into store.
func New(api Searcher, store *catalog.Store, cfg Config) *Controller {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock{}
	}
	if cfg.Notices == nil {
		cfg.Notices = notice.Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		api:     api,
		store:   store,
		delay:   cfg.Delay,
		clock:   cfg.Clock,
		notices: cfg.Notices,
		logger:  cfg.Logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// OnSearchInput cancels any pending search and schedules one for text.
// After Close it returns a zero Handle and schedules nothing.
func (c *Controller) OnSearchInput(text string) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Handle{}
	}

	c.cancelPendingLocked()
	c.gen++
	gen := c.gen
	c.pending = c.clock.AfterFunc(c.delay, func() { c.fire(gen, text) })

	return Handle{c: c, gen: gen, text: text}
}

// Cancel drops the pending search, if any.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelPendingLocked()
}

// Close cancels the pending search, aborts an in-flight one and refuses
// further input.
func (c *Controller) Close() {
	c.mu.Lock()
	c.cancelPendingLocked()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
}

// cancelPendingLocked stops the timer and retires its generation, so the
// callback is inert even if Stop lost the race with it.
func (c *Controller) cancelPendingLocked() {
	if c.pending == nil {
		return
	}
	c.pending.Stop()
	c.pending = nil
	c.gen++
}

// fire runs on the timer goroutine.
func (c *Controller) fire(gen uint64, text string) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.pending = nil
	seq := c.store.NextSeq()
	c.mu.Unlock()

	c.Search(c.ctx, seq, text)
}

// Search performs one search immediately and applies the outcome:
//   - results (possibly empty) replace the catalog;
//   - no matches empties the catalog silently;
//   - any other failure leaves the catalog as it was and emits an error notice.
//
// seq orders the result against other catalog writes; see catalog.Store.Apply.
func (c *Controller) Search(ctx context.Context, seq uint64, text string) {
	products, err := c.api.SearchProducts(ctx, text)
	switch {
	case err == nil:
		c.apply(ctx, seq, text, products)

	case errors.Is(err, model.ErrNotFound):
		c.apply(ctx, seq, text, []model.Product{})

	case ctx.Err() != nil:
		c.logger.DebugContext(ctx, "search aborted", slog.String("text", text))

	case errors.Is(err, model.ErrUnreachable):
		c.logger.WarnContext(ctx, "search failed", slog.String("text", text), slog.Any("error", err))
		c.notices.Notify(ctx, notice.FromError(err, model.MsgSearchUnreachable))

	default:
		c.logger.WarnContext(ctx, "search failed", slog.String("text", text), slog.Any("error", err))
		c.notices.Notify(ctx, notice.FromError(err, model.MsgSearchFailed))
	}
}

func (c *Controller) apply(ctx context.Context, seq uint64, text string, products []model.Product) {
	if !c.store.Apply(seq, products) {
		c.logger.DebugContext(ctx, "discarding stale search result",
			slog.String("text", text),
			slog.Uint64("seq", seq),
		)
		return
	}
	c.logger.DebugContext(ctx, "search applied",
		slog.String("text", text),
		slog.Int("results", len(products)),
	)
}
