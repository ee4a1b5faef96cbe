package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/api"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/browser"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/chat"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/driver"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/metrics"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/poller"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/proxy"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/ratelimit"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/screenshot"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/selectors"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP bridge",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var openOnStart bool

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&openOnStart, "open", false, "open the browser session at startup instead of on first request")
}

func serve(ctx context.Context) error {
	setupCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	rt, err := setup(setupCtx)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	cfg, logger := rt.cfg, rt.logger
	logger.Info("starting qwen web bridge",
		zap.String("chat_url", cfg.Browser.ChatURL),
		zap.Bool("headless", cfg.Browser.Headless),
		zap.Bool("docker_browser", cfg.Browser.Docker))

	table, err := selectors.Load(cfg.Browser.SelectorsFile)
	if err != nil {
		return err
	}

	for _, role := range selectors.Roles {
		logger.Debug("selectors loaded", zap.String("role", string(role)), zap.Int("count", len(table.For(role))))
	}

	m := metrics.New()
	m.WatchReady(rt.session.IsReady)

	opts := []chat.Option{chat.WithMetrics(m), chat.WithLogger(logger)}
	if cfg.Screenshot.Enabled {
		sink, err := screenshot.NewSink(cfg.Screenshot.Dir, cfg.Screenshot.Limit, logger)
		if err != nil {
			return err
		}
		opts = append(opts, chat.WithScreenshots(sink))
		logger.Info("debug screenshots enabled", zap.String("dir", cfg.Screenshot.Dir))
	}

	client := chat.NewClient(
		rt.session,
		driver.New(table, logger),
		poller.New(table, poller.Options{Interval: cfg.Poll.Interval, Timeout: cfg.Poll.Timeout}, logger),
		opts...,
	)

	if openOnStart {
		if err := rt.session.Open(setupCtx); err != nil {
			// Requests retry the open, so a failed start is not fatal.
			logger.Warn("initial session open failed", zap.Error(err))
		}
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewLimiter(cfg.RateLimit.PerHour, cfg.RateLimit.Burst)
		logger.Info("rate limiter initialized",
			zap.Int("per_hour", cfg.RateLimit.PerHour),
			zap.Int("burst", cfg.RateLimit.Burst))
	}

	handler := api.NewHandler(client, sessionControl{Client: client, manager: rt.session}, api.Info{
		Model:       cfg.Server.Model,
		ChatURL:     cfg.Browser.ChatURL,
		Headless:    cfg.Browser.Headless,
		Screenshots: cfg.Screenshot.Enabled,
	}, logger)
	router := handler.SetupRoutes(proxy.NewServer(rt.session, logger), limiter, m)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Completions hold the connection while queued and while the page
		// answers; the poll ceiling bounds them instead.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	// Through the client so a completion still running is not cut off.
	return runServer(srv, quit, client.Close, logger)
}

// runServer serves until a signal arrives or the listener fails, then shuts
// the server down and closes the session on either path.
func runServer(srv *http.Server, quit <-chan os.Signal, closeSession func(context.Context) error, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err, ok := <-errCh:
		if ok {
			logger.Error("server error", zap.Error(err))
			serveErr = err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if err := closeSession(ctx); err != nil {
		logger.Warn("session close failed", zap.Error(err))
	}

	if serveErr != nil {
		return serveErr
	}
	logger.Info("server stopped")
	return nil
}

// sessionControl serves the lifecycle endpoints. Reopen and Close go through
// the chat client so they queue behind a completion in progress; state reads
// go straight to the manager.
type sessionControl struct {
	*chat.Client
	manager *session.Manager
}

func (s sessionControl) State() (session.State, error) {
	return s.manager.State()
}

func (s sessionControl) Cookies() []browser.Cookie {
	return s.manager.Cookies()
}
