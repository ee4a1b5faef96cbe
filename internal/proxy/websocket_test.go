package proxy

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTarget string

func (s staticTarget) ControlURL() string { return string(s) }

// echoBrowser stands in for the DevTools endpoint and echoes every frame.
func echoBrowser(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestProxyRelaysFrames(t *testing.T) {
	browserSrv := echoBrowser(t)
	defer browserSrv.Close()

	proxySrv := httptest.NewServer(NewServer(staticTarget(wsURL(browserSrv.URL)), nil))
	defer proxySrv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(proxySrv.URL), nil)
	require.NoError(t, err)
	defer conn.Close()

	payload := `{"id":1,"method":"Browser.getVersion"}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))
	_, got, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, payload, string(got))
}

func TestProxyWithoutBrowser(t *testing.T) {
	rec := httptest.NewRecorder()
	NewServer(staticTarget(""), nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/ws", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
