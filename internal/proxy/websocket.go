// Package proxy exposes the live browser's DevTools websocket through the
// bridge, so the page can be inspected (or logged into) from a remote DevTools
// client.
package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/logging"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Target resolves the DevTools URL of the current browser, "" when none runs.
type Target interface {
	ControlURL() string
}

// Server proxies websocket frames between a client and the browser.
type Server struct {
	target Target
	dialer *websocket.Dialer
	logger *zap.Logger
}

// NewServer returns a proxy for target.
func NewServer(target Target, logger *zap.Logger) *Server {
	return &Server{target: target, dialer: websocket.DefaultDialer, logger: logging.OrNop(logger)}
}

// ServeHTTP upgrades the request and relays frames until either side closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	browserURL := s.target.ControlURL()
	if browserURL == "" {
		http.Error(w, "browser session is not open", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	browserConn, _, err := s.dialer.DialContext(ctx, browserURL, nil)
	if err != nil {
		s.logger.Warn("failed to connect to browser devtools", zap.Error(err))
		http.Error(w, "failed to connect to browser: "+err.Error(), http.StatusBadGateway)
		return
	}
	defer browserConn.Close()

	clientConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade debug connection", zap.Error(err))
		return
	}
	defer clientConn.Close()

	s.logger.Info("debug client connected", zap.String("remote", r.RemoteAddr))

	errChan := make(chan error, 2)
	go func() {
		errChan <- s.relay(clientConn, browserConn, "client->browser")
	}()
	go func() {
		errChan <- s.relay(browserConn, clientConn, "browser->client")
	}()

	err = <-errChan
	if err != nil && !errors.Is(err, io.EOF) && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.logger.Debug("debug proxy stopped", zap.Error(err))
	}
	s.logger.Info("debug client disconnected", zap.String("remote", r.RemoteAddr))
}

func (s *Server) relay(src, dst *websocket.Conn, direction string) error {
	for {
		messageType, message, err := src.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read error", zap.String("direction", direction), zap.Error(err))
			}
			return err
		}
		if err := dst.WriteMessage(messageType, message); err != nil {
			s.logger.Debug("websocket write error", zap.String("direction", direction), zap.Error(err))
			return err
		}
	}
}
