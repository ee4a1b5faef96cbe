// Package session owns the browser process and the one chat page the bridge
// drives. A Manager is either fully uninitialized (no browser, no page) or
// fully ready; a failed Open rolls back to uninitialized.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/browser"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/logging"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/store"
)

// ErrInitFailed wraps every launch or navigation failure returned by Open.
var ErrInitFailed = errors.New("browser session initialization failed")

// CookieKey is the store key holding the serialized cookie jar.
const CookieKey = "cookies"

// State is the initialization state of a session.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateOpening       State = "opening"
	StateReady         State = "ready"
	// StateFailed means the last Open failed. No browser is held.
	StateFailed State = "failed"
)

// Options configures the session.
type Options struct {
	ChatURL           string
	Headless          bool
	BinPath           string
	NavigationTimeout time.Duration
}

// Manager handles the session lifecycle. lifecycle serializes Open, Close
// and Reopen; mu guards the fields and is never held across browser calls,
// so readiness checks stay cheap while a launch is in progress.
type Manager struct {
	opts     Options
	launcher browser.Launcher
	store    store.Store
	logger   *zap.Logger

	lifecycle    sync.Mutex
	forceVisible bool

	mu      sync.Mutex
	browser browser.Browser
	page    browser.Page
	state   State
	lastErr error
	cookies []browser.Cookie
}

// NewManager creates an uninitialized session. st may be nil, in which case
// cookies are not persisted.
func NewManager(opts Options, launcher browser.Launcher, st store.Store, logger *zap.Logger) *Manager {
	return &Manager{
		opts:     opts,
		launcher: launcher,
		store:    st,
		logger:   logging.OrNop(logger),
		state:    StateUninitialized,
	}
}

// Open launches the browser, restores cookies and loads the chat page.
// It is a no-op when the session is already ready.
func (m *Manager) Open(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	return m.open(ctx)
}

// open requires m.lifecycle.
func (m *Manager) open(ctx context.Context) error {
	m.mu.Lock()
	if m.readyLocked() {
		m.mu.Unlock()
		return nil
	}
	m.state = StateOpening
	m.mu.Unlock()

	headless := m.opts.Headless && !m.forceVisible
	b, err := m.launcher.Launch(ctx, browser.LaunchOptions{
		Headless:          headless,
		BinPath:           m.opts.BinPath,
		NavigationTimeout: m.opts.NavigationTimeout,
	})
	if err != nil {
		return m.fail(nil, err)
	}

	page, err := b.Page(ctx)
	if err != nil {
		return m.fail(b, err)
	}

	m.loadCookies(ctx, page)

	if err := page.Navigate(ctx, m.opts.ChatURL); err != nil {
		return m.fail(b, err)
	}

	m.mu.Lock()
	m.browser = b
	m.page = page
	m.state = StateReady
	m.lastErr = nil
	m.mu.Unlock()

	m.logger.Info("browser session ready",
		zap.String("url", m.opts.ChatURL),
		zap.Bool("headless", headless))
	return nil
}

// fail tears down a partially launched browser and records the failure.
func (m *Manager) fail(b browser.Browser, cause error) error {
	if b != nil {
		if err := b.Close(); err != nil {
			m.logger.Warn("failed to close browser after init failure", zap.Error(err))
		}
	}

	m.mu.Lock()
	m.browser = nil
	m.page = nil
	m.state = StateFailed
	m.lastErr = cause
	m.mu.Unlock()

	m.logger.Error("browser session failed to open", zap.Error(cause))
	return fmt.Errorf("%w: %w", ErrInitFailed, cause)
}

// Close saves cookies (best effort) and closes the browser. The session is
// uninitialized afterwards even if closing fails. Closing an uninitialized
// session is a no-op.
func (m *Manager) Close(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	return m.close(ctx)
}

// close requires m.lifecycle.
func (m *Manager) close(ctx context.Context) error {
	m.forceVisible = false

	m.mu.Lock()
	b, page := m.browser, m.page
	m.browser = nil
	m.page = nil
	if b != nil || m.state == StateReady {
		m.state = StateUninitialized
	}
	m.mu.Unlock()

	if b == nil {
		return nil
	}
	if page != nil {
		m.saveCookies(ctx, page)
	}

	if err := b.Close(); err != nil {
		m.logger.Warn("failed to close browser", zap.Error(err))
		return fmt.Errorf("failed to close browser: %w", err)
	}
	m.logger.Info("browser session closed")
	return nil
}

// Reopen closes any open session and opens a new one, visible when
// forceVisible is set, then brings the page to the foreground. It is used for
// manual login.
func (m *Manager) Reopen(ctx context.Context, forceVisible bool) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if err := m.close(ctx); err != nil {
		m.logger.Warn("ignoring close error during reopen", zap.Error(err))
	}
	m.forceVisible = forceVisible

	if err := m.open(ctx); err != nil {
		return err
	}
	page, _ := m.Page()
	if err := page.Activate(ctx); err != nil {
		m.logger.Warn("failed to bring page to front", zap.Error(err))
	}
	return nil
}

// IsReady reports whether the browser and page are both live. It does not
// wait for an Open in progress.
func (m *Manager) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readyLocked()
}

func (m *Manager) readyLocked() bool {
	return m.browser != nil && m.page != nil && m.state == StateReady
}

// State returns the initialization state and the error of the last failed Open.
func (m *Manager) State() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.lastErr
}

// Page returns the live page, if any.
func (m *Manager) Page() (browser.Page, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.readyLocked() {
		return nil, false
	}
	return m.page, true
}

// ControlURL returns the DevTools address of the live browser, or "".
func (m *Manager) ControlURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.browser == nil {
		return ""
	}
	return m.browser.ControlURL()
}

// Cookies returns the last cookie set loaded or saved.
func (m *Manager) Cookies() []browser.Cookie {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]browser.Cookie(nil), m.cookies...)
}

func (m *Manager) loadCookies(ctx context.Context, page browser.Page) {
	if m.store == nil {
		return
	}

	data, err := m.store.Get(CookieKey)
	if errors.Is(err, store.ErrNotFound) {
		m.logger.Debug("no saved cookies")
		return
	}
	if err != nil {
		m.logger.Warn("failed to load cookies", zap.Error(err))
		return
	}

	var cookies []browser.Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		m.logger.Warn("saved cookies are unreadable", zap.Error(err))
		return
	}
	if err := page.SetCookies(ctx, cookies); err != nil {
		m.logger.Warn("failed to apply cookies", zap.Error(err))
		return
	}
	m.setCookies(cookies)
	m.logger.Info("cookies restored", zap.Int("count", len(cookies)))
}

func (m *Manager) saveCookies(ctx context.Context, page browser.Page) {
	if m.store == nil {
		return
	}

	cookies, err := page.Cookies(ctx)
	if err != nil {
		m.logger.Warn("failed to read cookies", zap.Error(err))
		return
	}
	data, err := json.Marshal(cookies)
	if err != nil {
		m.logger.Warn("failed to encode cookies", zap.Error(err))
		return
	}
	if err := m.store.Set(CookieKey, data); err != nil {
		m.logger.Warn("failed to save cookies", zap.Error(err))
		return
	}
	m.setCookies(cookies)
	m.logger.Info("cookies saved", zap.Int("count", len(cookies)))
}

func (m *Manager) setCookies(cookies []browser.Cookie) {
	m.mu.Lock()
	m.cookies = cookies
	m.mu.Unlock()
}
