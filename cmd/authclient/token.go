package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dvcrn/authclient/internal/app"
	"github.com/dvcrn/authclient/internal/auth"
	"github.com/dvcrn/authclient/internal/credentials"
	"github.com/spf13/cobra"
)

func (c *cli) tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Inspect or change the stored token pair",
	}
	cmd.AddCommand(c.tokenGetCmd(), c.tokenSetCmd(), c.tokenClearCmd(), c.tokenStatusCmd())
	return cmd
}

// withStore opens the configured token store for the duration of fn.
func (c *cli) withStore(fn func(store credentials.TokenStore) error) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	store, closer, err := app.OpenTokenStore(cfg.TokenStore, &c.log)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer()
	}
	return fn(store)
}

func (c *cli) tokenGetCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print the stored access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(func(store credentials.TokenStore) error {
				get := store.GetAccessToken
				if refresh {
					get = store.GetRefreshToken
				}
				token, err := get(cmd.Context())
				if err != nil {
					return err
				}
				if token == "" {
					return errors.New("no token stored")
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Print the refresh token instead")
	return cmd
}

func (c *cli) tokenSetCmd() *cobra.Command {
	var pair credentials.TokenPair
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store an access token and optionally a refresh token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if pair.AccessToken == "" {
				return errors.New("--access is required")
			}
			return c.withStore(func(store credentials.TokenStore) error {
				ctx := cmd.Context()
				if pair.RefreshToken == "" {
					return store.SetAccessToken(ctx, pair.AccessToken)
				}
				return credentials.StoreTokens(ctx, store, pair)
			})
		},
	}
	cmd.Flags().StringVar(&pair.AccessToken, "access", "", "Access token")
	cmd.Flags().StringVar(&pair.RefreshToken, "refresh", "", "Refresh token")
	return cmd
}

func (c *cli) tokenClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove both stored tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(func(store credentials.TokenStore) error {
				return store.ClearTokens(cmd.Context())
			})
		},
	}
}

func (c *cli) tokenStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether tokens are stored and when the access token expires",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withStore(func(store credentials.TokenStore) error {
				ctx := cmd.Context()
				access, err := store.GetAccessToken(ctx)
				if err != nil {
					return err
				}
				refresh, err := store.GetRefreshToken(ctx)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), tokenStatus(access, refresh, time.Now()))
				return nil
			})
		},
	}
}

func tokenStatus(access, refresh string, now time.Time) string {
	if access == "" {
		return "access token: none\n" + refreshStatus(refresh)
	}

	line := fmt.Sprintf("access token: %s", auth.TokenPreview(access))
	if exp, ok := auth.TokenExpiry(access); ok {
		minutes := int64(exp.Sub(now) / time.Minute)
		switch {
		case minutes <= 0:
			line += fmt.Sprintf(" (expired %d minutes ago)", -minutes)
		case minutes <= 60:
			line += fmt.Sprintf(" (expires in %d minutes, refresh soon)", minutes)
		default:
			line += fmt.Sprintf(" (valid for %d minutes)", minutes)
		}
	}
	return line + "\n" + refreshStatus(refresh)
}

func refreshStatus(refresh string) string {
	if refresh == "" {
		return "refresh token: none\n"
	}
	return "refresh token: present\n"
}
