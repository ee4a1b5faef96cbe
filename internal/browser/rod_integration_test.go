//go:build integration

package browser_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/browser"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/driver"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/poller"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/selectors"
)

// chatPage echoes the submitted text after a short delay and then marks the
// answer as finished.
const chatPage = `<!doctype html>
<html><body>
<div id="log"></div>
<textarea id="chat-input"></textarea>
<button id="send-message-button">Send</button>
<script>
document.getElementById('send-message-button').onclick = function () {
  var text = document.getElementById('chat-input').value;
  var msg = document.createElement('div');
  msg.className = 'markdown-body';
  document.getElementById('log').appendChild(msg);
  setTimeout(function () { msg.textContent = 'echo: '; }, 100);
  setTimeout(function () {
    msg.textContent = 'echo: ' + text;
    var done = document.createElement('div');
    done.className = 'message-done';
    document.getElementById('log').appendChild(done);
  }, 400);
};
</script>
</body></html>`

func TestRodChatRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc", Path: "/"})
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(chatPage))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	b, err := browser.NewRodLauncher(nil).Launch(ctx, browser.LaunchOptions{Headless: true})
	require.NoError(t, err)
	defer b.Close()
	assert.NotEmpty(t, b.ControlURL())

	page, err := b.Page(ctx)
	require.NoError(t, err)
	require.NoError(t, page.Navigate(ctx, srv.URL))

	table := selectors.Table{
		ChatInput:         []string{"#chat-input"},
		SubmitButton:      []string{"#send-message-button"},
		ResponseContainer: []string{".markdown-body"},
		CompletionMarker:  []string{".message-done"},
	}
	pol := poller.New(table, poller.Options{Interval: 50 * time.Millisecond, Timeout: 10 * time.Second}, nil)

	since := pol.Snapshot(ctx, page)
	method, err := driver.New(table, nil).Send(ctx, page, "user: hi")
	require.NoError(t, err)
	assert.Equal(t, driver.SubmitClick, method)

	res, err := pol.Wait(ctx, page, since)
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Equal(t, "echo: user: hi", res.Text)

	cookies, err := page.Cookies(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, cookies)
	assert.Equal(t, "sid", cookies[0].Name)

	shot, err := page.Screenshot(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, shot)
}
