package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/g1mliii/anchored/internal/models"
	"github.com/g1mliii/anchored/internal/transfer"
)

func newExportCmd(appOf func() *App) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all notes as a plaintext JSON backup",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appOf()
			ctx := cmd.Context()

			notes, err := app.Cache.GetAllNotes(ctx)
			if err != nil {
				return err
			}
			data, err := transfer.NewExporter().Export(notes, "cli")
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d notes to %s\n", len(notes), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func newImportCmd(appOf func() *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import notes from a JSON backup",
		Long: "Import validates the whole file before touching the cache: one bad\n" +
			"note rejects the import with its location, and nothing is written.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appOf()
			ctx := cmd.Context()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			notes, err := transfer.NewImporter().Import(data)
			if err != nil {
				return err
			}

			// Writes go through the cache first, then the queue, so an
			// interrupted import still leaves every imported note readable.
			for _, note := range notes {
				saved, err := app.Cache.SaveNoteWithoutSync(ctx, note)
				if err != nil {
					return err
				}
				if err := app.Queue.Enqueue(ctx, saved, models.OperationUpdate); err != nil {
					app.Log.Warn(ctx, "failed to queue imported note", "id", saved.ID, "err", err)
				}
			}
			if err := app.Queue.Flush(ctx); err != nil {
				app.Log.Warn(ctx, "import sync deferred", "err", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "imported %d notes\n", len(notes))
			return nil
		},
	}
	return cmd
}
