// File: cmd/highlight.go
// Description: Opens a page in the browser and highlights the given text
// in the rendered document, or consumes the pending highlight saved by
// `history open`.

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/avelichko7/textlens/internal/locator/live"
)

var (
	highlightURL     string
	highlightText    string
	highlightPending bool
)

var highlightCmd = &cobra.Command{
	Use:   "highlight",
	Short: "Highlight text on a live page",
	Long: `Navigate to the page and highlight the first occurrence of the text,
tolerating whitespace and case differences. With --pending the text comes from
the highlight saved by 'history open'; absence of the text on the page is not
an error.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		text := highlightText
		if highlightPending {
			pending, ok := a.slot.Peek(highlightURL)
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "No pending highlight for this page.")
				return nil
			}
			text = pending.Text
			defer a.slot.Clear()
		}
		if text == "" {
			return fmt.Errorf("nothing to highlight: pass --text or --pending")
		}

		highlighter := live.New(appCfg.Browser, appCfg.Locator, a.log)
		return highlighter.Run(ctx, highlightURL, text)
	},
}

func init() {
	highlightCmd.Flags().StringVarP(&highlightURL, "url", "u", "", "page to open")
	highlightCmd.Flags().StringVarP(&highlightText, "text", "t", "", "text to locate and highlight")
	highlightCmd.Flags().BoolVar(&highlightPending, "pending", false, "use the highlight saved by 'history open'")
	highlightCmd.MarkFlagRequired("url") //nolint:errcheck
	rootCmd.AddCommand(highlightCmd)
}
