// Package browser abstracts the single chat page the bridge drives. The rest of
// the bridge only talks to the Page, Element, Browser and Launcher interfaces;
// go-rod and the docker pool provide the real implementations.
package browser

import (
	"context"
	"time"
)

// Element is a DOM node found on the page.
type Element interface {
	Focus(ctx context.Context) error
	Input(ctx context.Context, text string) error
	Click(ctx context.Context) error
	Text(ctx context.Context) (string, error)
}

// Page is one open browser tab.
type Page interface {
	// Navigate loads url and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// Elements returns every element currently matching selector without waiting.
	Elements(ctx context.Context, selector string) ([]Element, error)
	PressEnter(ctx context.Context) error
	Cookies(ctx context.Context) ([]Cookie, error)
	SetCookies(ctx context.Context, cookies []Cookie) error
	Screenshot(ctx context.Context) ([]byte, error)
	// Activate brings the tab to the foreground.
	Activate(ctx context.Context) error
}

// Browser is a running browser process, local or remote.
type Browser interface {
	// Page returns the first open tab, creating one if none exist.
	Page(ctx context.Context) (Page, error)
	// ControlURL is the DevTools websocket address of the browser.
	ControlURL() string
	Close() error
}

// Launcher starts browsers.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
}

// LaunchOptions configures a browser launch.
type LaunchOptions struct {
	Headless          bool
	BinPath           string
	NavigationTimeout time.Duration
}

// Cookie is a browser cookie in a backend-neutral form.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}
