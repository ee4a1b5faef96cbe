package models

import "time"

// Status is the body of GET /status.
type Status struct {
	Connected     bool      `json:"connected"`
	State         string    `json:"state"`
	LastError     string    `json:"lastError,omitempty"`
	// LoginRequired is set when the open page shows a login button.
	LoginRequired bool      `json:"loginRequired"`
	ChatURL       string    `json:"chatUrl"`
	Headless      bool      `json:"headless"`
	CookieCount   int       `json:"cookieCount"`
	StartedAt     time.Time `json:"startedAt"`
	Screenshots   bool      `json:"screenshots"`
	DebuggerPath  string    `json:"debuggerPath,omitempty"`
}

// Health is the body of GET /health.
type Health struct {
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
}
