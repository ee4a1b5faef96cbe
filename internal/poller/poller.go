// Package poller watches the response container on the chat page until a
// completion marker appears or the deadline passes.
//
// The page offers no reliable completion event, so the poller samples the DOM
// at a fixed interval. Each tick reads the text of the last element matched by
// the response-container selectors, then checks for a completion marker. The
// marker is only looked at once per tick, so completion is noticed at most one
// interval after it appears.
package poller

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/browser"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/logging"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/selectors"
)

const (
	DefaultInterval       = 300 * time.Millisecond
	DefaultTimeout        = 30 * time.Second
	DefaultAttemptTimeout = 2 * time.Second
)

// Options controls poll cadence.
type Options struct {
	// Interval is the sleep between ticks.
	Interval time.Duration
	// Timeout is the overall ceiling for one wait.
	Timeout time.Duration
	// AttemptTimeout bounds the DOM lookups inside a single tick.
	AttemptTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = DefaultAttemptTimeout
	}
	return o
}

// Result describes how a wait ended.
type Result struct {
	// Text is the last observed response text, trimmed.
	Text string
	// Complete is set when the completion marker was seen.
	Complete bool
	// TimedOut is set when the deadline passed first. Text is then partial.
	TimedOut bool
	Ticks    int
	Elapsed  time.Duration
}

// ChunkFunc receives streaming deltas. Returning an error stops the wait.
type ChunkFunc func(chunk string) error

// Poller samples the chat page.
type Poller struct {
	table  selectors.Table
	opts   Options
	logger *zap.Logger
}

// New returns a poller using the response and completion selectors in table.
func New(table selectors.Table, opts Options, logger *zap.Logger) *Poller {
	return &Poller{table: table, opts: opts.withDefaults(), logger: logging.OrNop(logger)}
}

// Snapshot counts the response containers and completion markers already on
// the page. Elements counted in a snapshot are ignored by a later wait, so a
// previous answer in the same conversation is not mistaken for the new one.
// The zero Snapshot ignores nothing.
type Snapshot struct {
	responses map[string]int
	markers   map[string]int
}

// Snapshot records the current element counts. Failed lookups count as zero.
func (p *Poller) Snapshot(ctx context.Context, page browser.Page) Snapshot {
	count := func(list []string) map[string]int {
		counts := make(map[string]int, len(list))
		for _, sel := range list {
			els, err := page.Elements(ctx, sel)
			if err != nil {
				continue
			}
			counts[sel] = len(els)
		}
		return counts
	}
	return Snapshot{
		responses: count(p.table.ResponseContainer),
		markers:   count(p.table.CompletionMarker),
	}
}

// Wait polls until completion or timeout and returns the final text. A timeout
// is not an error: the last observed text is returned with TimedOut set. The
// only errors are context cancellation.
func (p *Poller) Wait(ctx context.Context, page browser.Page, since Snapshot) (Result, error) {
	return p.run(ctx, page, since, nil)
}

// Stream polls like Wait and calls onChunk with every append-only delta of the
// trimmed response text. A sample that is not an extension of the previously emitted
// text (a shrink or a rewrite) emits nothing and keeps the previous baseline,
// so the concatenated chunks are always a prefix of some observed text.
func (p *Poller) Stream(ctx context.Context, page browser.Page, since Snapshot, onChunk ChunkFunc) (Result, error) {
	var (
		emitted string
		warned  bool
	)
	return p.run(ctx, page, since, func(text string) error {
		switch {
		case len(text) > len(emitted) && strings.HasPrefix(text, emitted):
			delta := text[len(emitted):]
			emitted = text
			return onChunk(delta)
		case text != emitted && !warned:
			warned = true
			p.logger.Warn("response text changed without appending, chunks suspended until it extends the emitted text",
				zap.Int("emitted_len", len(emitted)),
				zap.Int("observed_len", len(text)))
		}
		return nil
	})
}

func (p *Poller) run(ctx context.Context, page browser.Page, since Snapshot, observe func(string) error) (Result, error) {
	start := time.Now()
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	var (
		res  Result
		last string
	)
	finish := func() Result {
		res.Text = last
		res.Elapsed = time.Since(start)
		return res
	}

	for {
		select {
		case <-ctx.Done():
			return finish(), ctx.Err()
		case <-ticker.C:
		}
		res.Ticks++

		attemptCtx, cancel := context.WithTimeout(ctx, p.opts.AttemptTimeout)
		text, found := p.readResponse(attemptCtx, page, since)
		if found {
			// Trimmed here so streamed chunks add up to Result.Text.
			text = strings.TrimSpace(text)
			last = text
			if observe != nil {
				if err := observe(text); err != nil {
					cancel()
					return finish(), err
				}
			}
		}
		done := p.hasMarker(attemptCtx, page, since)
		cancel()

		if ctx.Err() != nil {
			return finish(), ctx.Err()
		}
		if done {
			res.Complete = true
			out := finish()
			p.logger.Debug("response complete", zap.Int("ticks", out.Ticks), zap.Duration("elapsed", out.Elapsed))
			return out, nil
		}
		if time.Since(start) >= p.opts.Timeout {
			res.TimedOut = true
			out := finish()
			p.logger.Warn("response wait timed out", zap.Int("ticks", out.Ticks), zap.Int("chars", len(out.Text)))
			return out, nil
		}
	}
}

// readResponse returns the text of the last element matched by the first
// response selector that matches anything new since the snapshot. Lookup
// errors are swallowed; the container may not exist yet.
func (p *Poller) readResponse(ctx context.Context, page browser.Page, since Snapshot) (string, bool) {
	for _, sel := range p.table.ResponseContainer {
		els, err := page.Elements(ctx, sel)
		if err != nil {
			p.logger.Debug("response lookup failed", zap.String("selector", sel), zap.Error(err))
			continue
		}
		if len(els) <= since.responses[sel] {
			continue
		}
		text, err := els[len(els)-1].Text(ctx)
		if err != nil {
			p.logger.Debug("response text unreadable", zap.String("selector", sel), zap.Error(err))
			return "", false
		}
		return text, true
	}
	return "", false
}

func (p *Poller) hasMarker(ctx context.Context, page browser.Page, since Snapshot) bool {
	for _, sel := range p.table.CompletionMarker {
		els, err := page.Elements(ctx, sel)
		if err != nil {
			p.logger.Debug("marker lookup failed", zap.String("selector", sel), zap.Error(err))
			continue
		}
		if len(els) > since.markers[sel] {
			return true
		}
	}
	return false
}
