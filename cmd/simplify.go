// File: cmd/simplify.go
// Description: Streams a simplification of the given text to stdout, running
// the same overlay/background pipeline the in-page surfaces use.

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/avelichko7/textlens/api/schemas"
	"github.com/avelichko7/textlens/internal/overlay"
	"github.com/avelichko7/textlens/internal/runtime"
	"github.com/avelichko7/textlens/internal/stream"
)

var (
	simplifyMode string
	simplifyURL  string
)

// signalingView decorates the text view with a completion signal so the
// command knows when the stream is over.
type signalingView struct {
	*overlay.TextView
	done chan struct{}
}

func (v *signalingView) RenderComplete(text string) {
	v.TextView.RenderComplete(text)
	close(v.done)
}

func (v *signalingView) RenderError(code schemas.ErrorCode, message string) {
	v.TextView.RenderError(code, message)
	close(v.done)
}

var simplifyCmd = &cobra.Command{
	Use:   "simplify [text]",
	Short: "Simplify text and stream the result to stdout",
	Long: `Simplify the given text (or stdin when no argument is passed) in the
selected mode. Premium modes require a paid plan.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := selectionText(args)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		orchestrator := stream.New(a.session, a.backend, a.router, a.log)
		bg := runtime.NewBackground(a.router, a.session, orchestrator, runtime.NopOpener{}, a.log)
		bg.Start(ctx)
		defer bg.Stop()

		view := &signalingView{TextView: overlay.NewTextView(cmd.OutOrStdout()), done: make(chan struct{})}
		content := runtime.NewContent(a.router, a.cache, a.slot, a.replayer,
			func() overlay.View { return view }, appCfg.Overlay, a.log)
		content.Start(ctx)
		defer content.Stop()

		// Warm the plan cache so the overlay opens with a known auth state
		// instead of racing the first poll tick.
		status := a.session.CheckAuth(ctx)
		mode := schemas.Mode(simplifyMode)
		if status.Authenticated && !mode.Unlocked(status.PlanID) {
			return fmt.Errorf("mode %q is not available on the %q plan", simplifyMode, status.PlanID)
		}

		session := content.OpenOverlay(ctx, text, simplifyURL)
		defer session.Close()
		session.PickMode(ctx, mode)

		select {
		case <-view.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	},
}

// selectionText takes the selection from the argument or stdin.
func selectionText(args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read selection from stdin: %w", err)
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "", fmt.Errorf("no selection text given")
	}
	return text, nil
}

func init() {
	simplifyCmd.Flags().StringVarP(&simplifyMode, "mode", "m", string(schemas.ModeSimple),
		"simplification mode (simple, short, key_points, examples)")
	simplifyCmd.Flags().StringVarP(&simplifyURL, "url", "u", "", "source page URL recorded with the request")
	rootCmd.AddCommand(simplifyCmd)
}
