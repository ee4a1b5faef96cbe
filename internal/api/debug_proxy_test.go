package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/metrics"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/proxy"
)

type devtoolsTarget string

func (d devtoolsTarget) ControlURL() string { return string(d) }

func toWS(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestDebugProxyThroughRouter(t *testing.T) {
	up := websocket.Upgrader{}
	devtools := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
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
	defer devtools.Close()

	m := metrics.New()
	h := NewHandler(&fakeChat{}, &fakeSession{}, Info{Model: "qwen-web"}, nil)
	srv := httptest.NewServer(h.SetupRoutes(proxy.NewServer(devtoolsTarget(toWS(devtools.URL)), nil), nil, m))
	defer srv.Close()

	conn, resp, err := websocket.DefaultDialer.Dial(toWS(srv.URL)+"/debug/ws", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	payload := `{"id":1,"method":"Target.getTargets"}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))
	_, got, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, payload, string(got))
	conn.Close()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/debug/ws", "101")) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestDebugProxyWithoutBrowser(t *testing.T) {
	h := NewHandler(&fakeChat{}, &fakeSession{}, Info{}, nil)
	router := h.SetupRoutes(proxy.NewServer(devtoolsTarget(""), nil), nil, metrics.New())

	rec := do(t, router, http.MethodGet, "/debug/ws", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
