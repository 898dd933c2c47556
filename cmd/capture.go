package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/veyralabs/fitlens/api/schemas"
	"github.com/veyralabs/fitlens/internal/observability"
)

func newCaptureCmd() *cobra.Command {
	var timeout time.Duration

	captureCmd := &cobra.Command{
		Use:   "capture",
		Short: "Start a one-shot capture session on the active tab",
		Long: `Attaches to the active tab, highlights product images under the cursor,
and waits for a click (or Escape) before exiting. The captured product is
persisted and printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			logger := observability.GetLogger()

			parts, cleanup, err := buildRuntime(ctx, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			finished := make(chan schemas.CaptureFinishedPayload, 1)
			selected := make(chan schemas.ProductSelectedPayload, 1)
			parts.router.Handle(schemas.MsgProductCaptureFinished, func(ctx context.Context, msg schemas.Envelope) (*schemas.Envelope, error) {
				var p schemas.CaptureFinishedPayload
				if err := msg.DecodePayload(&p); err != nil {
					return nil, err
				}
				select {
				case finished <- p:
				default:
				}
				return nil, nil
			})
			parts.router.Handle(schemas.MsgProductSelected, func(ctx context.Context, msg schemas.Envelope) (*schemas.Envelope, error) {
				var p schemas.ProductSelectedPayload
				if err := msg.DecodePayload(&p); err != nil {
					return nil, err
				}
				select {
				case selected <- p:
				default:
				}
				return nil, nil
			})

			if err := parts.browser.StartCapture(ctx); err != nil {
				return err
			}
			logger.Info("Capture active; hover a product image and click, or press Escape")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case result := <-finished:
				switch result.Reason {
				case schemas.CaptureCompleted:
					select {
					case p := <-selected:
						fmt.Fprintf(cmd.OutOrStdout(), "captured %s (%s)\n", p.ProductName, p.ProductID)
					default:
						fmt.Fprintln(cmd.OutOrStdout(), "captured")
					}
					return nil
				case schemas.CaptureCancelled:
					fmt.Fprintln(cmd.OutOrStdout(), "capture cancelled")
					return nil
				default:
					return fmt.Errorf("capture failed: %s", result.Message)
				}
			}
		},
	}

	captureCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "give up if nothing is captured in this window")
	return captureCmd
}
