// File: cmd/history.go
// Description: Lists past simplifications and saves a pending highlight for
// one of them. The saved highlight is applied when the page is next opened
// (via `highlight --pending`), within the TTL.

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
)

var historyPage int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse past simplifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		token, err := a.session.GetToken(ctx, false)
		if err != nil {
			return fmt.Errorf("sign in first: %w", err)
		}

		page, err := a.backend.History(ctx, token, historyPage)
		if err != nil {
			if cached, ok := a.cache.History(); ok {
				fmt.Fprintln(cmd.OutOrStdout(), "(backend unavailable, showing cached page)")
				page = cached
			} else {
				return err
			}
		} else {
			a.cache.SetHistory(page)
		}

		out := cmd.OutOrStdout()
		if len(page.Entries) == 0 {
			fmt.Fprintln(out, "History is empty.")
			return nil
		}
		for i, e := range page.Entries {
			fmt.Fprintf(out, "%2d. [%s] %s\n    %s\n", i+1, e.Mode, e.SourceURL, preview(e.OriginalText))
		}
		fmt.Fprintf(out, "Page %d, %d total\n", historyPage, page.Total)
		return nil
	},
}

var historyOpenCmd = &cobra.Command{
	Use:   "open <number>",
	Short: "Save a highlight for a history entry's source page",
	Long: `Save the original text of the numbered entry (from the current page of
'textlens history') as a pending highlight for its source page. Opening that
page within the TTL applies the highlight; only one pending highlight exists
at a time.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("entry number must be a positive integer")
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		token, err := a.session.GetToken(ctx, false)
		if err != nil {
			return fmt.Errorf("sign in first: %w", err)
		}

		page, err := a.backend.History(ctx, token, historyPage)
		if err != nil {
			return err
		}
		if n > len(page.Entries) {
			return fmt.Errorf("entry %d not on this page (%d entries)", n, len(page.Entries))
		}

		entry := page.Entries[n-1]
		if err := a.slot.Put(entry.SourceURL, entry.OriginalText); err != nil {
			return fmt.Errorf("failed to save pending highlight: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved. Run: textlens highlight --pending --url %q\n", entry.SourceURL)
		return nil
	},
}

// preview shortens a history entry for the list view.
func preview(text string) string {
	limit := appCfg.Overlay.PreviewLength
	if limit <= 0 {
		limit = 100
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}

func init() {
	historyCmd.PersistentFlags().IntVarP(&historyPage, "page", "p", 1, "history page to fetch")
	historyCmd.AddCommand(historyOpenCmd)
	rootCmd.AddCommand(historyCmd)
}
