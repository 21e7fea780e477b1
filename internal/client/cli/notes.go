package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/g1mliii/anchored/internal/models"
)

func newListCmd(appOf func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List notes (cache-first; stale caches refresh in the background)",
		RunE: func(cmd *cobra.Command, args []string) error {
			notes, err := appOf().Cache.GetAllNotes(cmd.Context())
			if err != nil {
				return err
			}
			printNotes(cmd, notes)
			return nil
		},
	}
}

func newShowCmd(appOf func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			note, err := appOf().Cache.GetNote(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", note.Title)
			if len(note.Tags) > 0 {
				fmt.Fprintf(out, "tags: %s\n", strings.Join(note.Tags, ", "))
			}
			if note.URL != "" {
				fmt.Fprintf(out, "url: %s\n", note.URL)
			}
			fmt.Fprintf(out, "updated: %s\n\n%s\n", note.UpdatedAt.Format("2006-01-02 15:04"), note.Content)
			return nil
		},
	}
}

func newSaveCmd(appOf func() *App) *cobra.Command {
	var (
		id      string
		title   string
		content string
		noteURL string
		tags    []string
	)

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Create or update a note (local write; synced in the background)",
		RunE: func(cmd *cobra.Command, args []string) error {
			note := &models.Note{
				ID:      id,
				Title:   title,
				Content: content,
				URL:     noteURL,
				Tags:    tags,
			}
			saved, err := appOf().Cache.SaveNote(cmd.Context(), note)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), saved.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "note id (omit to create)")
	cmd.Flags().StringVar(&title, "title", "", "note title")
	cmd.Flags().StringVar(&content, "content", "", "note content")
	cmd.Flags().StringVar(&noteURL, "url", "", "source page URL")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag (repeatable)")
	return cmd
}

func newDeleteCmd(appOf func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return appOf().Cache.DeleteNote(cmd.Context(), args[0])
		},
	}
}

func newSearchCmd(appOf func() *App) *cobra.Command {
	var domain string

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search cached notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			notes, err := appOf().Cache.SearchNotes(cmd.Context(), args[0], domain)
			if err != nil {
				return err
			}
			printNotes(cmd, notes)
			return nil
		},
	}

	cmd.Flags().StringVar(&domain, "domain", "", "restrict to one domain")
	return cmd
}

func printNotes(cmd *cobra.Command, notes []*models.Note) {
	out := cmd.OutOrStdout()
	if len(notes) == 0 {
		fmt.Fprintln(out, "no notes")
		return
	}
	for _, n := range notes {
		title := n.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(out, "%s  %-30s  %s\n", n.ID, title, n.Domain)
	}
}
