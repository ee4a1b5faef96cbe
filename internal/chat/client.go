// Package chat sends conversations through the browser session and collects
// the answer, either whole or as a stream of deltas.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/browser"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/driver"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/logging"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/metrics"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/poller"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/prompt"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/screenshot"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/session"
)

// Mode labels a request as single-shot or streaming.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeStream Mode = "stream"
)

// Session is the part of session.Manager the client needs.
type Session interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	Reopen(ctx context.Context, forceVisible bool) error
	IsReady() bool
	Page() (browser.Page, bool)
}

var _ Session = (*session.Manager)(nil)

// Client runs one request at a time against the shared chat page. Further
// callers wait in line; the page has a single input and response area.
type Client struct {
	session Session
	driver  *driver.Driver
	poller  *poller.Poller
	queue   *semaphore.Weighted
	shots   *screenshot.Sink
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithScreenshots captures debug screenshots into sink.
func WithScreenshots(sink *screenshot.Sink) Option {
	return func(c *Client) { c.shots = sink }
}

// WithMetrics records request outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = logging.OrNop(l) }
}

// NewClient wires a client from its parts.
func NewClient(sess Session, drv *driver.Driver, pol *poller.Poller, opts ...Option) *Client {
	c := &Client{
		session: sess,
		driver:  drv,
		poller:  pol,
		queue:   semaphore.NewWeighted(1),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsConnected reports whether the browser session is open.
func (c *Client) IsConnected() bool {
	return c.session.IsReady()
}

// Close waits for the request in progress, if any, and then closes the session.
func (c *Client) Close(ctx context.Context) error {
	if err := c.queue.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.queue.Release(1)
	return c.session.Close(ctx)
}

// Reopen waits for the request in progress, if any, and then reopens the
// session, visible when forceVisible is set.
func (c *Client) Reopen(ctx context.Context, forceVisible bool) error {
	if err := c.queue.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.queue.Release(1)
	return c.session.Reopen(ctx, forceVisible)
}

// LoginRequired reports whether the open page shows a login button. It does
// not wait in the queue; the check only reads the page.
func (c *Client) LoginRequired(ctx context.Context) bool {
	page, ok := c.session.Page()
	if !ok {
		return false
	}
	required, err := c.driver.LoginRequired(ctx, page)
	if err != nil {
		c.logger.Debug("login check failed", zap.Error(err))
		return false
	}
	return required
}

// SendMessage submits the conversation and returns the full answer. When the
// page does not finish within the poll timeout the partial answer is returned
// without an error.
func (c *Client) SendMessage(ctx context.Context, messages []prompt.Message) (string, error) {
	res, err := c.send(ctx, ModeSingle, messages, nil)
	return res.Text, err
}

// SendMessageStream submits the conversation and calls onChunk with each
// appended piece of the answer. It returns the final text.
func (c *Client) SendMessageStream(ctx context.Context, messages []prompt.Message, onChunk poller.ChunkFunc) (string, error) {
	res, err := c.send(ctx, ModeStream, messages, onChunk)
	return res.Text, err
}

func (c *Client) send(ctx context.Context, mode Mode, messages []prompt.Message, onChunk poller.ChunkFunc) (poller.Result, error) {
	if err := c.queue.Acquire(ctx, 1); err != nil {
		return poller.Result{}, err
	}
	defer c.queue.Release(1)

	page, err := c.ready(ctx)
	if err != nil {
		c.count(mode, metrics.OutcomeError)
		return poller.Result{}, err
	}

	text := prompt.Format(messages)
	log := c.logger.With(zap.String("mode", string(mode)), zap.Int("messages", len(messages)))

	since := c.poller.Snapshot(ctx, page)

	found, err := c.driver.FillInput(ctx, page, text)
	if err != nil {
		c.count(mode, metrics.OutcomeError)
		return poller.Result{}, err
	}
	if !found {
		c.count(mode, metrics.OutcomeInputNotFound)
		c.capture(ctx, page, "input-not-found")
		return poller.Result{}, driver.ErrInputNotFound
	}
	c.capture(ctx, page, "after-fill")

	method, err := c.driver.Submit(ctx, page)
	if err != nil {
		c.count(mode, metrics.OutcomeError)
		return poller.Result{}, err
	}
	c.capture(ctx, page, "after-submit")
	log.Debug("prompt sent", zap.String("submit", string(method)), zap.Int("chars", len(text)))

	var res poller.Result
	if mode == ModeStream {
		res, err = c.poller.Stream(ctx, page, since, func(chunk string) error {
			if c.metrics != nil {
				c.metrics.ChunksEmitted.Inc()
			}
			return onChunk(chunk)
		})
	} else {
		res, err = c.poller.Wait(ctx, page, since)
	}
	c.observe(mode, res.Elapsed)

	if err != nil {
		c.count(mode, metrics.OutcomeError)
		return res, fmt.Errorf("waiting for response: %w", err)
	}
	if res.TimedOut {
		c.count(mode, metrics.OutcomeTimeout)
		c.capture(ctx, page, "response-timeout")
		log.Warn("response incomplete, returning partial text", zap.Int("chars", len(res.Text)))
		return res, nil
	}

	c.count(mode, metrics.OutcomeComplete)
	c.capture(ctx, page, "response-complete")
	log.Info("response received", zap.Int("chars", len(res.Text)), zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

// ready opens the session on first use and returns its page.
func (c *Client) ready(ctx context.Context) (browser.Page, error) {
	if !c.session.IsReady() {
		err := c.session.Open(ctx)
		if c.metrics != nil {
			result := "ok"
			if err != nil {
				result = "error"
			}
			c.metrics.SessionOpenings.WithLabelValues(result).Inc()
		}
		if err != nil {
			return nil, err
		}
	}
	page, ok := c.session.Page()
	if !ok {
		return nil, errors.New("browser session is not open")
	}
	return page, nil
}

// capture saves a screenshot when a sink is configured. Failures are logged only.
func (c *Client) capture(ctx context.Context, page browser.Page, name string) {
	if c.shots == nil {
		return
	}
	data, err := page.Screenshot(ctx)
	if err != nil {
		c.logger.Warn("screenshot failed", zap.String("name", name), zap.Error(err))
		return
	}
	if _, err := c.shots.Save(name, data); err != nil {
		c.logger.Warn("screenshot not saved", zap.String("name", name), zap.Error(err))
	}
}

func (c *Client) count(mode Mode, outcome string) {
	if c.metrics != nil {
		c.metrics.Completions.WithLabelValues(string(mode), outcome).Inc()
	}
}

func (c *Client) observe(mode Mode, elapsed time.Duration) {
	if c.metrics != nil {
		c.metrics.PollDuration.WithLabelValues(string(mode)).Observe(elapsed.Seconds())
	}
}
