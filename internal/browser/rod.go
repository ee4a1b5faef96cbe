package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/logging"
)

const defaultNavigationTimeout = 30 * time.Second

// RodLauncher starts a local Chrome/Chromium process through go-rod.
type RodLauncher struct {
	logger *zap.Logger
}

// NewRodLauncher creates a launcher for local browser processes.
func NewRodLauncher(logger *zap.Logger) *RodLauncher {
	return &RodLauncher{logger: logging.OrNop(logger)}
}

// Launch starts the browser and connects to it.
func (l *RodLauncher) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	// The launcher kills the process when its context ends, and the browser
	// must outlive the request that opened it.
	ln := launcher.New().
		Context(context.WithoutCancel(ctx)).
		Headless(opts.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("no-first-run").
		Set("no-default-browser-check")
	if opts.BinPath != "" {
		ln = ln.Bin(opts.BinPath)
	}

	controlURL, err := ln.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		ln.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	l.logger.Info("browser launched",
		zap.Bool("headless", opts.Headless),
		zap.String("control_url", controlURL))

	return &rodBrowser{
		browser:    b,
		controlURL: controlURL,
		navTimeout: opts.NavigationTimeout,
		cleanup: func() {
			ln.Kill()
			ln.Cleanup()
		},
	}, nil
}

// ConnectRod attaches to an already running browser at controlURL.
// cleanup runs after the browser connection is closed.
func ConnectRod(controlURL string, navTimeout time.Duration, cleanup func()) (Browser, error) {
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	return &rodBrowser{browser: b, controlURL: controlURL, navTimeout: navTimeout, cleanup: cleanup}, nil
}

type rodBrowser struct {
	browser    *rod.Browser
	controlURL string
	navTimeout time.Duration
	cleanup    func()
}

func (b *rodBrowser) Page(ctx context.Context) (Page, error) {
	pages, err := b.browser.Context(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	if len(pages) > 0 {
		return b.wrap(pages.First()), nil
	}

	page, err := b.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return b.wrap(page), nil
}

func (b *rodBrowser) wrap(p *rod.Page) *rodPage {
	timeout := b.navTimeout
	if timeout == 0 {
		timeout = defaultNavigationTimeout
	}
	return &rodPage{page: p, navTimeout: timeout}
}

func (b *rodBrowser) ControlURL() string {
	return b.controlURL
}

func (b *rodBrowser) Close() error {
	err := b.browser.Close()
	if b.cleanup != nil {
		b.cleanup()
	}
	return err
}

type rodPage struct {
	page       *rod.Page
	navTimeout time.Duration
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx).Timeout(p.navTimeout)
	defer page.CancelTimeout()

	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("page did not finish loading: %w", err)
	}
	return nil
}

func (p *rodPage) Elements(ctx context.Context, selector string) ([]Element, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out, nil
}

func (p *rodPage) PressEnter(ctx context.Context) error {
	return p.page.Context(ctx).Keyboard.Press(input.Enter)
}

func (p *rodPage) Cookies(ctx context.Context) ([]Cookie, error) {
	raw, err := p.page.Context(ctx).Cookies(nil)
	if err != nil {
		return nil, err
	}
	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return cookies, nil
}

func (p *rodPage) SetCookies(ctx context.Context, cookies []Cookie) error {
	// rod treats an empty slice as "clear all cookies".
	if len(cookies) == 0 {
		return nil
	}
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  proto.TimeSinceEpoch(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: proto.NetworkCookieSameSite(c.SameSite),
		})
	}
	return p.page.Context(ctx).SetCookies(params)
}

func (p *rodPage) Screenshot(ctx context.Context) ([]byte, error) {
	return p.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

func (p *rodPage) Activate(ctx context.Context) error {
	_, err := p.page.Context(ctx).Activate()
	return err
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Focus(ctx context.Context) error {
	return e.el.Context(ctx).Focus()
}

func (e *rodElement) Input(ctx context.Context, text string) error {
	return e.el.Context(ctx).Input(text)
}

func (e *rodElement) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}
