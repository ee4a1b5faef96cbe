// Package driver types the prompt into the chat page and submits it.
package driver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/browser"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/logging"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/selectors"
)

// ErrInputNotFound is returned when no chat-input selector matches.
var ErrInputNotFound = errors.New("could not find chat input")

// SubmitMethod records how a prompt was submitted.
type SubmitMethod string

const (
	SubmitClick SubmitMethod = "click"
	SubmitEnter SubmitMethod = "enter"
)

// Driver fills the chat input and triggers submission using the selector table.
type Driver struct {
	table  selectors.Table
	logger *zap.Logger
}

// New returns a driver using table.
func New(table selectors.Table, logger *zap.Logger) *Driver {
	return &Driver{table: table, logger: logging.OrNop(logger)}
}

// first returns the first element matched by the first selector of role that
// matches anything.
func (d *Driver) first(ctx context.Context, page browser.Page, role selectors.Role) (browser.Element, string, error) {
	for _, sel := range d.table.For(role) {
		els, err := page.Elements(ctx, sel)
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			d.logger.Debug("selector lookup failed", zap.String("selector", sel), zap.Error(err))
			continue
		}
		if len(els) > 0 {
			return els[0], sel, nil
		}
	}
	return nil, "", nil
}

// FillInput focuses the first matching chat input and types text into it. It
// reports false when no selector matched. The typed text is not read back.
func (d *Driver) FillInput(ctx context.Context, page browser.Page, text string) (bool, error) {
	el, sel, err := d.first(ctx, page, selectors.ChatInput)
	if err != nil {
		return false, err
	}
	if el == nil {
		d.logger.Warn("no chat input matched", zap.Strings("selectors", d.table.For(selectors.ChatInput)))
		return false, nil
	}

	if err := el.Focus(ctx); err != nil {
		return true, fmt.Errorf("failed to focus chat input %q: %w", sel, err)
	}
	if err := el.Input(ctx, text); err != nil {
		return true, fmt.Errorf("failed to type into chat input %q: %w", sel, err)
	}
	d.logger.Debug("prompt typed", zap.String("selector", sel), zap.Int("chars", len(text)))
	return true, nil
}

// Submit clicks the first matching submit button. When none matches it sends
// a single Enter keystroke instead.
func (d *Driver) Submit(ctx context.Context, page browser.Page) (SubmitMethod, error) {
	el, sel, err := d.first(ctx, page, selectors.SubmitButton)
	if err != nil {
		return "", err
	}
	if el != nil {
		if err := el.Click(ctx); err != nil {
			return "", fmt.Errorf("failed to click submit %q: %w", sel, err)
		}
		d.logger.Debug("prompt submitted", zap.String("selector", sel))
		return SubmitClick, nil
	}

	d.logger.Debug("no submit button matched, pressing Enter")
	if err := page.PressEnter(ctx); err != nil {
		return "", fmt.Errorf("failed to press Enter: %w", err)
	}
	return SubmitEnter, nil
}

// LoginRequired reports whether a login button is showing, which means the
// saved session has expired and someone has to sign in by hand.
func (d *Driver) LoginRequired(ctx context.Context, page browser.Page) (bool, error) {
	el, sel, err := d.first(ctx, page, selectors.LoginButton)
	if err != nil {
		return false, err
	}
	if el != nil {
		d.logger.Debug("login button present", zap.String("selector", sel))
	}
	return el != nil, nil
}

// Send fills the input then submits. Submission is never attempted when the
// input is missing.
func (d *Driver) Send(ctx context.Context, page browser.Page, text string) (SubmitMethod, error) {
	found, err := d.FillInput(ctx, page, text)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrInputNotFound
	}
	return d.Submit(ctx, page)
}
