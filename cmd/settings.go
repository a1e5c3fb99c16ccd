// File: cmd/settings.go
// Description: Shows and updates the per-account AI tuning values. The show
// path serves the cached snapshot immediately when the backend is slow.

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/avelichko7/textlens/api/schemas"
)

var (
	settingsSimpleLevel   int
	settingsShortLevel    int
	settingsPointsCount   int
	settingsExamplesCount int
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect or change simplification settings",
}

func printSettings(cmd *cobra.Command, s schemas.AISettings) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "simple level:   %d\n", s.SimpleLevel)
	fmt.Fprintf(out, "short level:    %d\n", s.ShortLevel)
	fmt.Fprintf(out, "key points:     %d\n", s.PointsCount)
	fmt.Fprintf(out, "examples count: %d\n", s.ExamplesCount)
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current settings",
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
			// Signed out: the cached snapshot is all there is.
			if cached, ok := a.cache.AISettings(); ok {
				printSettings(cmd, cached)
				return nil
			}
			return fmt.Errorf("sign in first: %w", err)
		}

		s, err := a.backend.Settings(ctx, token)
		if err != nil {
			if cached, ok := a.cache.AISettings(); ok {
				fmt.Fprintln(cmd.OutOrStdout(), "(backend unavailable, showing cached settings)")
				printSettings(cmd, cached)
				return nil
			}
			return err
		}
		a.cache.SetAISettings(s)
		printSettings(cmd, s)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update settings",
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

		// Start from the server's current values so unset flags keep them.
		s, err := a.backend.Settings(ctx, token)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("simple-level") {
			s.SimpleLevel = settingsSimpleLevel
		}
		if cmd.Flags().Changed("short-level") {
			s.ShortLevel = settingsShortLevel
		}
		if cmd.Flags().Changed("points") {
			s.PointsCount = settingsPointsCount
		}
		if cmd.Flags().Changed("examples") {
			s.ExamplesCount = settingsExamplesCount
		}

		if err := a.backend.SaveSettings(ctx, token, s); err != nil {
			return fmt.Errorf("failed to save settings: %w", err)
		}
		a.cache.SetAISettings(s)
		printSettings(cmd, s)
		return nil
	},
}

func init() {
	settingsSetCmd.Flags().IntVar(&settingsSimpleLevel, "simple-level", 0, "simplicity level for 'simple' mode")
	settingsSetCmd.Flags().IntVar(&settingsShortLevel, "short-level", 0, "compression level for 'short' mode")
	settingsSetCmd.Flags().IntVar(&settingsPointsCount, "points", 0, "bullet count for 'key_points' mode")
	settingsSetCmd.Flags().IntVar(&settingsExamplesCount, "examples", 0, "example count for 'examples' mode")
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}
