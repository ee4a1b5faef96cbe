package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Open a visible browser to sign in to the chat site",
	Long: `Opens the chat page in a visible browser window. Sign in by hand, then press
Enter in this terminal; the session cookies are saved for later headless runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return login(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
}

func login(ctx context.Context) error {
	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	if rt.cfg.Browser.Docker {
		rt.logger.Warn("docker browsers cannot be shown; use /debug/ws from a DevTools client to sign in")
	}

	if err := rt.session.Reopen(ctx, true); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Sign in at %s, then press Enter to save the session...", rt.cfg.Browser.ChatURL)
	if _, err := bufio.NewReader(os.Stdin).ReadString('\n'); err != nil {
		rt.logger.Warn("failed to read from stdin", zap.Error(err))
	}

	if err := rt.session.Close(ctx); err != nil {
		return err
	}
	rt.logger.Info("login session saved", zap.Int("cookies", len(rt.session.Cookies())))
	return nil
}
