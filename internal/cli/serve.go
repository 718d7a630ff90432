package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/refset/account-health/internal/api"
	"github.com/refset/account-health/internal/store"
)

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the latest portfolio snapshot over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.signalContext(cmd.Context())
			defer cancel()

			s, err := store.Open(ctx, a.cfg.Database.DSN)
			if err != nil {
				return err
			}
			defer s.Close()

			c, closeCache := a.openCache(ctx)
			defer closeCache()

			h := api.NewHandlers(a.cfg, api.NewCachedSource(c, s, a.logger), a.logger)
			srv := &http.Server{
				Addr:              a.cfg.Server.Addr,
				Handler:           api.SetupRoutes(h),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("starting API server", zap.String("addr", srv.Addr))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			a.logger.Info("shutting down API server")
			shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			return srv.Shutdown(shutdownCtx)
		},
	}
}
