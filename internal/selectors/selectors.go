// Package selectors holds the ordered CSS selector lists used to find elements
// on the chat page. Within each role the first selector that matches wins, so
// site-version-specific selectors come before generic fallbacks.
package selectors

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Role names a semantic element on the chat page.
type Role string

const (
	LoginButton       Role = "login_button"
	ChatInput         Role = "chat_input"
	SubmitButton      Role = "submit_button"
	ResponseContainer Role = "response_container"
	CompletionMarker  Role = "completion_marker"
)

// Roles lists every role in a stable order.
var Roles = []Role{LoginButton, ChatInput, SubmitButton, ResponseContainer, CompletionMarker}

// Table maps each role to its prioritized selector list.
type Table struct {
	LoginButton       []string `yaml:"login_button"`
	ChatInput         []string `yaml:"chat_input"`
	SubmitButton      []string `yaml:"submit_button"`
	ResponseContainer []string `yaml:"response_container"`
	CompletionMarker  []string `yaml:"completion_marker"`
}

// Default returns the built-in table for chat.qwen.ai.
func Default() Table {
	return Table{
		LoginButton: []string{
			`button[data-testid="login-button"]`,
			`a[href*="/auth"]`,
			`a[href*="login"]`,
		},
		ChatInput: []string{
			`textarea#chat-input`,
			`textarea[placeholder*="How can I help"]`,
			`textarea[placeholder*="Message"]`,
			`div[contenteditable="true"]`,
			`textarea`,
		},
		SubmitButton: []string{
			`button#send-message-button`,
			`button[data-testid="send-button"]`,
			`button[aria-label*="Send"]`,
			`button[type="submit"]`,
		},
		ResponseContainer: []string{
			`.chat-response-message .markdown-content-container`,
			`div[data-role="assistant"] .markdown`,
			`.response-message-content`,
			`.markdown-body`,
		},
		CompletionMarker: []string{
			`.chat-response-message .response-message-footer`,
			`div[data-role="assistant"] button[aria-label="Copy"]`,
			`.message-actions`,
			`[data-status="finished"]`,
		},
	}
}

// For returns the selector list for a role. The returned slice must not be modified.
func (t Table) For(r Role) []string {
	switch r {
	case LoginButton:
		return t.LoginButton
	case ChatInput:
		return t.ChatInput
	case SubmitButton:
		return t.SubmitButton
	case ResponseContainer:
		return t.ResponseContainer
	case CompletionMarker:
		return t.CompletionMarker
	}
	return nil
}

// Merge returns t with every non-empty list in override replacing its counterpart.
func (t Table) Merge(override Table) Table {
	pick := func(base, o []string) []string {
		if len(o) > 0 {
			return o
		}
		return base
	}
	return Table{
		LoginButton:       pick(t.LoginButton, override.LoginButton),
		ChatInput:         pick(t.ChatInput, override.ChatInput),
		SubmitButton:      pick(t.SubmitButton, override.SubmitButton),
		ResponseContainer: pick(t.ResponseContainer, override.ResponseContainer),
		CompletionMarker:  pick(t.CompletionMarker, override.CompletionMarker),
	}
}

// Load reads a YAML override file and merges it over the default table.
// An empty path returns the defaults.
func Load(path string) (Table, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("failed to read selectors file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML and merges it over the default table.
func Parse(data []byte) (Table, error) {
	var override Table
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Table{}, fmt.Errorf("failed to parse selectors: %w", err)
	}
	return Default().Merge(override), nil
}
