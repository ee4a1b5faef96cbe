package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/browser"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/config"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/logging"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/session"
	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Qwen Web Bridge - OpenAI-compatible API over the Qwen chat web UI",
	Long: `Qwen Web Bridge drives the Qwen chat web page in a real browser and exposes
it as an OpenAI-compatible chat completions endpoint.

Configuration is read from BRIDGE_* environment variables and an optional .env file.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds what both subcommands need: config, logger and a session
// wired to its launcher and cookie store.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	session *session.Manager
	closers []io.Closer
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return nil, err
	}

	rt := &app{cfg: cfg, logger: logger}

	st, err := store.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if c, ok := st.(io.Closer); ok {
		rt.closers = append(rt.closers, c)
	}
	logger.Info("cookie store ready",
		zap.String("backend", cfg.Storage.Backend),
		zap.String("path", cfg.Storage.Path))

	launcher, err := rt.launcher(ctx)
	if err != nil {
		rt.shutdown()
		return nil, err
	}

	rt.session = session.NewManager(session.Options{
		ChatURL:           cfg.Browser.ChatURL,
		Headless:          cfg.Browser.Headless,
		BinPath:           cfg.Browser.BinPath,
		NavigationTimeout: cfg.Browser.NavigationTimeout,
	}, launcher, st, logger)

	return rt, nil
}

func (rt *app) launcher(ctx context.Context) (browser.Launcher, error) {
	if !rt.cfg.Browser.Docker {
		return browser.NewRodLauncher(rt.logger), nil
	}

	pool, err := browser.NewPool(rt.logger)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, pool)

	rt.logger.Info("ensuring browser image is available", zap.String("image", browser.ChromeImage))
	if err := pool.EnsureImage(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure browser image: %w", err)
	}
	return browser.NewDockerLauncher(pool, rt.logger), nil
}

func (rt *app) shutdown() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			rt.logger.Warn("cleanup failed", zap.Error(err))
		}
	}
	_ = rt.logger.Sync()
}
