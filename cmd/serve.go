package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/veyralabs/fitlens/api/schemas"
	"github.com/veyralabs/fitlens/internal/browser"
	"github.com/veyralabs/fitlens/internal/coordinator"
	"github.com/veyralabs/fitlens/internal/genclient"
	"github.com/veyralabs/fitlens/internal/materialize"
	"github.com/veyralabs/fitlens/internal/messaging"
	"github.com/veyralabs/fitlens/internal/observability"
	"github.com/veyralabs/fitlens/internal/store"
	"github.com/veyralabs/fitlens/internal/ui"
)

// runtimeParts is the wired service graph serve and the one-shot commands
// share.
type runtimeParts struct {
	router  *messaging.Router
	store   *store.Store
	browser *browser.Browser
}

// buildRuntime opens the store, connects the browser, and registers the
// coordinator. The caller owns shutdown via the returned cleanup func.
func buildRuntime(ctx context.Context, logger *zap.Logger) (*runtimeParts, func(), error) {
	st, err := store.Open(ctx, cfg.Store.Path, logger)
	if err != nil {
		return nil, nil, err
	}

	router := messaging.NewRouter(logger)
	fallback := materialize.New(http.DefaultClient, cfg.Capture.FetchTimeout, logger)
	br := browser.New(cfg.Browser, cfg.Capture, router, fallback, logger)

	gen := &lazyGenerator{store: st, logger: logger}
	coordinator.New(router, st, br, gen, fallback, logger).Register()

	cleanup := func() {
		br.Close()
		router.Shutdown()
		_ = st.Close()
	}

	if err := br.Connect(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}
	return &runtimeParts{router: router, store: st, browser: br}, cleanup, nil
}

// lazyGenerator defers API key resolution to the first generation call, so
// capture-only runs never demand a credential.
type lazyGenerator struct {
	store  *store.Store
	logger *zap.Logger
}

func (g *lazyGenerator) GenerateTryOn(ctx context.Context, userPhoto, product schemas.InlineImage) (schemas.InlineImage, error) {
	tryOnCfg := cfg.TryOn
	key, err := coordinator.ResolveAPIKey(ctx, g.store, tryOnCfg.APIKey, g.logger)
	if err != nil {
		return schemas.InlineImage{}, fmt.Errorf("set GEMINI_API_KEY: %w", err)
	}
	tryOnCfg.APIKey = key

	client, err := genclient.NewGeminiClient(tryOnCfg, g.logger)
	if err != nil {
		return schemas.InlineImage{}, err
	}
	return client.GenerateTryOn(ctx, userPhoto, product)
}

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coordinator, browser agent, and local UI",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			logger := observability.GetLogger()

			// Flags were bound in PreRunE; re-unmarshal so they override the
			// file and env values.
			if err := viper.Unmarshal(&cfg); err != nil {
				return fmt.Errorf("failed to re-unmarshal config with flag overrides: %w", err)
			}

			parts, cleanup, err := buildRuntime(ctx, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			server := ui.NewServer(cfg.UI.ListenAddr, parts.router, parts.store, logger)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return server.Run(gctx)
			})

			logger.Info("fitlens ready",
				zap.String("ui", cfg.UI.ListenAddr),
				zap.String("store", cfg.Store.Path),
			)
			return g.Wait()
		},
	}

	serveCmd.Flags().String("ui.listen_addr", "", "UI listen address (host:port)")
	serveCmd.Flags().String("browser.remote_url", "", "DevTools endpoint of a running Chrome")
	return serveCmd
}
