package cli

import (
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/g1mliii/anchored/internal/common"
	"github.com/g1mliii/anchored/internal/cryptox"
	"github.com/g1mliii/anchored/internal/kv"
	"github.com/g1mliii/anchored/internal/models"
)

const sessionTTL = 30 * 24 * time.Hour

func newLoginCmd(appOf func() *App) *cobra.Command {
	var (
		email string
		token string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the session token and derive the note encryption key",
		Long: "Login stores the access token issued by the auth provider and the\n" +
			"passphrase-derived key material the crypto engine needs. The token can be\n" +
			"passed with --token or the ANCHORED_TOKEN environment variable.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appOf()
			ctx := cmd.Context()

			if token == "" {
				token = os.Getenv("ANCHORED_TOKEN")
			}
			if token == "" {
				return fmt.Errorf("an access token is required (--token or ANCHORED_TOKEN)")
			}

			fmt.Fprint(cmd.OutOrStdout(), "Passphrase: ")
			passphrase, err := term.ReadPassword(int(syscall.Stdin))
			fmt.Fprintln(cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("reading passphrase: %w", err)
			}
			if len(passphrase) == 0 {
				return fmt.Errorf("passphrase must not be empty")
			}

			// Keep the existing salt so previously synced notes stay
			// decryptable; only first login mints one.
			salt, err := app.Store.Get(ctx, kv.KeySalt)
			if errors.Is(err, common.ErrNotFound) {
				if salt, err = cryptox.NewSalt(); err != nil {
					return err
				}
			} else if err != nil {
				return err
			}
			if err := app.Session.StoreKeyMaterial(ctx, passphrase, salt); err != nil {
				return err
			}

			now := time.Now()
			err = app.Session.Save(ctx, &models.Session{
				AccessToken: token,
				User:        email,
				ExpiresAt:   now.Add(sessionTTL),
				CreatedAt:   now,
			})
			if err != nil {
				return err
			}

			if err := app.Backend.WaitReady(ctx); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Signed in (backend unreachable, working offline).")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed in.")
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&token, "token", "", "access token from the auth provider")
	return cmd
}

func newLogoutCmd(appOf func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return appOf().Session.Clear(cmd.Context())
		},
	}
}
