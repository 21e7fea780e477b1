package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/g1mliii/anchored/internal/common"
	"github.com/g1mliii/anchored/internal/models"
)

func newSyncCmd(appOf func() *App) *cobra.Command {
	var cleanup bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Flush queued changes and refresh the local cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appOf()
			ctx := cmd.Context()

			if err := app.Queue.Flush(ctx); err != nil {
				return err
			}
			if err := app.Cache.Refresh(ctx); err != nil {
				return err
			}
			if cleanup {
				purged, err := app.Backend.Cleanup(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d tombstones\n", purged)
			}
			if ts := app.Queue.LastSync(ctx); ts != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "synced at %s\n", ts.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "also purge expired tombstones on the server")
	return cmd
}

func newResolveCmd(appOf func() *App) *cobra.Command {
	var strategy string

	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Resolve a sync conflict for one note",
		Long: "Resolve reconciles a note that diverged between this device and the\n" +
			"backend. Strategies: keep_local (this device wins), use_server (backend\n" +
			"wins), merge (this device's content wins with a fresh timestamp).",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appOf()
			ctx := cmd.Context()
			id := args[0]

			req := &models.ResolveRequest{
				NoteID:     id,
				Resolution: models.Resolution(strategy),
			}

			// keep_local and merge carry the client's encrypted version;
			// use_server needs nothing from us.
			if req.Resolution != models.ResolutionUseServer {
				local, err := app.Cache.GetNote(ctx, id)
				if err != nil {
					return fmt.Errorf("loading local version: %w", err)
				}
				key, err := app.Session.Key(ctx)
				if err != nil {
					return err
				}
				if req.NoteData, err = local.EncryptForCloud(key); err != nil {
					return err
				}
			}

			resp, err := app.Backend.ResolveConflict(ctx, req)
			if err != nil {
				if errors.Is(err, common.ErrInvalidResolution) {
					return fmt.Errorf("unknown strategy %q (want keep_local, use_server, or merge)", strategy)
				}
				return err
			}

			if err := app.Cache.Refresh(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resolved %s with %s\n", id, resp.Resolution)
			return nil
		},
	}

	cmd.Flags().StringVar(&strategy, "strategy", string(models.ResolutionKeepLocal),
		"keep_local, use_server, or merge")
	return cmd
}
