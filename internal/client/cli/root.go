package cli

import (
	"github.com/spf13/cobra"

	"github.com/g1mliii/anchored/internal/client/config"
)

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

func NewRootCmd() *cobra.Command {
	var (
		configPath string
		app        *App
	)

	root := &cobra.Command{
		Use:           "anchored",
		Short:         "Anchored note client",
		Long:          "Anchored keeps encrypted notes cached locally and synced to the backend in the background.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to JSON config file")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		app, err = NewApp(cmd.Context(), cfg)
		return err
	}
	root.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if app == nil {
			return nil
		}
		return app.Close()
	}

	appOf := func() *App { return app }

	root.AddCommand(
		newLoginCmd(appOf),
		newLogoutCmd(appOf),
		newListCmd(appOf),
		newShowCmd(appOf),
		newSaveCmd(appOf),
		newDeleteCmd(appOf),
		newSearchCmd(appOf),
		newSyncCmd(appOf),
		newResolveCmd(appOf),
		newExportCmd(appOf),
		newImportCmd(appOf),
	)
	return root
}
