package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/pribylovaa/go-shop-auth/pkg/authclient"
)

// session логинится и возвращает готового клиента.
func (g *globalFlags) session(ctx context.Context) (*authclient.Client, error) {
	if err := g.requireCredentials(); err != nil {
		return nil, err
	}

	c, err := g.newClient()
	if err != nil {
		return nil, err
	}

	if _, err := c.Login(ctx, g.email, g.password); err != nil {
		return nil, err
	}

	return c, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func loginCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in and print the sanitized user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()

			c, err := g.session(ctx)
			if err != nil {
				return err
			}

			return printJSON(c.CurrentUser())
		},
	}
}

func meCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Log in and fetch the current identity from /me",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()

			c, err := g.session(ctx)
			if err != nil {
				return err
			}

			u, err := c.Me(ctx)
			if err != nil {
				return err
			}

			return printJSON(u)
		},
	}
}

func probeCmd(g *globalFlags) *cobra.Command {
	var (
		calls  int
		rounds int
		pause  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Fire concurrent authenticated calls to exercise silent refresh",
		Long: `probe logs in once and then runs --rounds rounds of --calls concurrent
/me requests, sleeping --pause between rounds. With a pause longer than the
access token TTL every round after the first starts with an expired token,
so all concurrent 401s must be served by a single refresh.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if calls <= 0 || rounds <= 0 {
				return fmt.Errorf("--calls and --rounds must be positive")
			}

			ctx := cmd.Context()
			loginCtx, cancel := context.WithTimeout(ctx, g.timeout)
			c, err := g.session(loginCtx)
			cancel()
			if err != nil {
				return err
			}

			for r := 1; r <= rounds; r++ {
				if r > 1 && pause > 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(pause):
					}
				}

				ok, failed := probeRound(ctx, c, calls, g.timeout)
				fmt.Printf("round %d: %d ok, %d failed\n", r, ok, len(failed))
				for _, err := range failed {
					fmt.Printf("  %s\n", err)
				}
				if len(failed) > 0 {
					return fmt.Errorf("round %d: %d calls failed", r, len(failed))
				}
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&calls, "calls", 5, "concurrent calls per round")
	cmd.Flags().IntVar(&rounds, "rounds", 1, "number of rounds")
	cmd.Flags().DurationVar(&pause, "pause", 0, "pause between rounds")

	return cmd
}

func probeRound(ctx context.Context, c *authclient.Client, calls int, timeout time.Duration) (int, []error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		ok     int
		failed []error
	)

	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := c.Me(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, err)
				return
			}
			ok++
		}()
	}
	wg.Wait()

	return ok, failed
}

func logoutCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log in, then log out and verify the session is gone",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()

			c, err := g.session(ctx)
			if err != nil {
				return err
			}

			if err := c.Logout(ctx); err != nil {
				return err
			}

			if _, err := c.Me(ctx); err == nil {
				return fmt.Errorf("session still valid after logout")
			}

			fmt.Println("logged out")
			return nil
		},
	}
}
