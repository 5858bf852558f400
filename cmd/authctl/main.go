package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pribylovaa/go-shop-auth/pkg/authclient"
)

// Версия проставляется при сборке.
var (
	version = "dev"
	commit  = "none"
)

// globalFlags — общие флаги всех команд.
type globalFlags struct {
	baseURL  string
	email    string
	password string
	bearer   bool
	timeout  time.Duration
	verbose  bool
}

func main() {
	var g globalFlags

	rootCmd := &cobra.Command{
		Use:   "authctl",
		Short: "Smoke tool for the shop auth service",
		Long: `authctl talks to a running auth-service over HTTP.

Every command that needs a session logs in first with --email/--password,
so each invocation is self-contained.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.baseURL, "base-url", envOr("AUTHCTL_BASE_URL", "http://localhost:4000"), "auth service base URL")
	pf.StringVar(&g.email, "email", os.Getenv("AUTHCTL_EMAIL"), "account email")
	pf.StringVar(&g.password, "password", os.Getenv("AUTHCTL_PASSWORD"), "account password")
	pf.BoolVar(&g.bearer, "bearer", false, "send access token in Authorization header instead of cookie")
	pf.DurationVar(&g.timeout, "timeout", 30*time.Second, "overall command timeout")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "debug logging of refresh cycles")

	rootCmd.AddCommand(
		loginCmd(&g),
		meCmd(&g),
		probeCmd(&g),
		logoutCmd(&g),
		versionCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

// newClient собирает клиента по глобальным флагам.
func (g *globalFlags) newClient() (*authclient.Client, error) {
	lvl := slog.LevelWarn
	if g.verbose {
		lvl = slog.LevelDebug
	}

	return authclient.New(authclient.Options{
		BaseURL:   g.baseURL,
		UseBearer: g.bearer,
		Logger:    slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})),
		OnSessionExpired: func() {
			fmt.Fprintln(os.Stderr, "session expired: please login again")
		},
	})
}

func (g *globalFlags) requireCredentials() error {
	if g.email == "" || g.password == "" {
		return fmt.Errorf("--email and --password are required")
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
