// Package browsertest provides in-memory fakes of the browser interfaces.
package browsertest

import (
	"context"
	"sync"

	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/browser"
)

// Element is a fake DOM element.
type Element struct {
	mu       sync.Mutex
	text     string
	focused  int
	inputs   []string
	clicks   int
	InputErr error
	ClickErr error
	TextErr  error
}

// NewElement returns an element whose Text is text.
func NewElement(text string) *Element {
	return &Element{text: text}
}

func (e *Element) Focus(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.focused++
	return nil
}

func (e *Element) Input(ctx context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.InputErr != nil {
		return e.InputErr
	}
	e.inputs = append(e.inputs, text)
	return nil
}

func (e *Element) Click(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ClickErr != nil {
		return e.ClickErr
	}
	e.clicks++
	return nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.TextErr != nil {
		return "", e.TextErr
	}
	return e.text, nil
}

// SetText replaces the element text.
func (e *Element) SetText(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.text = text
}

// Focused reports how many times Focus was called.
func (e *Element) Focused() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.focused
}

// Inputs returns every string typed into the element.
func (e *Element) Inputs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.inputs...)
}

// Clicks reports how many times the element was clicked.
func (e *Element) Clicks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clicks
}

// Page is a fake browser tab. Selectors resolve to static elements set with
// Set, or to dynamic results registered with On.
type Page struct {
	mu         sync.Mutex
	static     map[string][]browser.Element
	dynamic    map[string]func() []browser.Element
	lookups    map[string]int
	navigated  []string
	enter      int
	activated  int
	jar        []browser.Cookie
	screenshot []byte

	NavigateErr   error
	ElementsErr   error
	CookiesErr    error
	SetCookiesErr error
	EnterErr      error
}

// NewPage returns an empty page.
func NewPage() *Page {
	return &Page{
		static:     make(map[string][]browser.Element),
		dynamic:    make(map[string]func() []browser.Element),
		lookups:    make(map[string]int),
		screenshot: []byte("\x89PNG fake"),
	}
}

// Set makes selector resolve to els.
func (p *Page) Set(selector string, els ...*Element) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]browser.Element, 0, len(els))
	for _, el := range els {
		out = append(out, el)
	}
	p.static[selector] = out
}

// On makes selector resolve to whatever fn returns at lookup time.
func (p *Page) On(selector string, fn func() []browser.Element) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dynamic[selector] = fn
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	p.navigated = append(p.navigated, url)
	return nil
}

func (p *Page) Elements(ctx context.Context, selector string) ([]browser.Element, error) {
	p.mu.Lock()
	p.lookups[selector]++
	if p.ElementsErr != nil {
		err := p.ElementsErr
		p.mu.Unlock()
		return nil, err
	}
	fn, dynamic := p.dynamic[selector]
	els := p.static[selector]
	p.mu.Unlock()

	if dynamic {
		return fn(), nil
	}
	return els, nil
}

func (p *Page) PressEnter(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.EnterErr != nil {
		return p.EnterErr
	}
	p.enter++
	return nil
}

func (p *Page) Cookies(ctx context.Context) ([]browser.Cookie, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CookiesErr != nil {
		return nil, p.CookiesErr
	}
	return append([]browser.Cookie(nil), p.jar...), nil
}

func (p *Page) SetCookies(ctx context.Context, cookies []browser.Cookie) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SetCookiesErr != nil {
		return p.SetCookiesErr
	}
	p.jar = append(p.jar, cookies...)
	return nil
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	return p.screenshot, nil
}

func (p *Page) Activate(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activated++
	return nil
}

// Navigated returns every URL passed to Navigate.
func (p *Page) Navigated() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigated...)
}

// EnterPresses reports how many Enter keystrokes were sent.
func (p *Page) EnterPresses() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enter
}

// Activated reports how many times the page was brought to front.
func (p *Page) Activated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activated
}

// Lookups reports how many times selector was queried.
func (p *Page) Lookups(selector string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lookups[selector]
}

// Jar returns the cookies currently on the page.
func (p *Page) Jar() []browser.Cookie {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]browser.Cookie(nil), p.jar...)
}

// SetJar replaces the page cookies.
func (p *Page) SetJar(cookies []browser.Cookie) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jar = append([]browser.Cookie(nil), cookies...)
}

// Browser is a fake browser owning one Page.
type Browser struct {
	mu       sync.Mutex
	FakePage *Page
	PageErr  error
	CloseErr error
	closed   int
}

func (b *Browser) Page(ctx context.Context) (browser.Page, error) {
	if b.PageErr != nil {
		return nil, b.PageErr
	}
	return b.FakePage, nil
}

func (b *Browser) ControlURL() string {
	return "ws://127.0.0.1:9222/devtools/browser/fake"
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed++
	return b.CloseErr
}

// Closed reports how many times Close was called.
func (b *Browser) Closed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Launcher hands out the same fake Browser on every launch.
type Launcher struct {
	mu          sync.Mutex
	FakeBrowser *Browser
	Err         error
	// Hold, when set, blocks Launch until it is closed or ctx ends.
	Hold        chan struct{}
	launches    int
	last        browser.LaunchOptions
}

// NewLauncher returns a launcher whose browser owns page.
func NewLauncher(page *Page) *Launcher {
	return &Launcher{FakeBrowser: &Browser{FakePage: page}}
}

func (l *Launcher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Browser, error) {
	l.mu.Lock()
	hold := l.Hold
	l.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches++
	l.last = opts
	if l.Err != nil {
		return nil, l.Err
	}
	return l.FakeBrowser, nil
}

// Launches reports how many times Launch was called.
func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

// LastOptions returns the options of the most recent launch.
func (l *Launcher) LastOptions() browser.LaunchOptions {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}
