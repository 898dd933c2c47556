package cmd

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/veyralabs/fitlens/api/schemas"
	"github.com/veyralabs/fitlens/internal/materialize"
	"github.com/veyralabs/fitlens/internal/observability"
	"github.com/veyralabs/fitlens/internal/store"
)

func newTryOnCmd() *cobra.Command {
	var (
		productID string
		output    string
	)

	tryOnCmd := &cobra.Command{
		Use:   "tryon",
		Short: "Generate a try-on image from the stored photo and a captured product",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			st, err := store.Open(ctx, cfg.Store.Path, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			profile, err := st.UserProfile(ctx)
			if err != nil {
				return fmt.Errorf("no user photo stored; POST one to /api/user-photo first: %w", err)
			}
			user, err := materialize.ParseDataURI(profile.PhotoDataURL)
			if err != nil {
				return fmt.Errorf("stored user photo is not a data URI: %w", err)
			}

			products, err := st.Products(ctx)
			if err != nil {
				return err
			}
			if len(products) == 0 {
				return fmt.Errorf("no captured products; run `fitlens capture` first")
			}
			target := products[0]
			if productID != "" {
				found := false
				for _, p := range products {
					if p.ID == productID {
						target, found = p, true
						break
					}
				}
				if !found {
					return fmt.Errorf("no stored product with id %q", productID)
				}
			}

			mat := materialize.New(http.DefaultClient, cfg.Capture.FetchTimeout, logger)
			product, err := mat.Materialize(ctx, target.ImageURL)
			if err != nil {
				return fmt.Errorf("product image unavailable: %w", err)
			}

			gen := &lazyGenerator{store: st, logger: logger}
			logger.Info("Generating try-on", zap.String("product", target.Name))
			generated, err := gen.GenerateTryOn(ctx, user, product)
			if err != nil {
				return err
			}

			result := schemas.TryOnResult{
				RequestID:         uuid.New().String(),
				GeneratedImageURL: generated.DataURI(),
				Confidence:        1,
				GeneratedAt:       time.Now().UTC().Format(time.RFC3339),
			}
			if err := st.SaveTryOnResult(ctx, result); err != nil {
				logger.Warn("Failed to persist try-on result", zap.Error(err))
			}

			if output != "" {
				raw, err := base64.StdEncoding.DecodeString(generated.Data)
				if err != nil {
					return fmt.Errorf("decode generated image: %w", err)
				}
				if err := os.WriteFile(output, raw, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s, %d bytes)\n", output, generated.MimeType, len(raw))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.GeneratedImageURL)
			return nil
		},
	}

	tryOnCmd.Flags().StringVar(&productID, "product", "", "stored product id (default: most recent capture)")
	tryOnCmd.Flags().StringVarP(&output, "output", "o", "", "write the generated image to this file instead of stdout")
	return tryOnCmd
}
