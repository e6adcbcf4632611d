package commands

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	webAdapter "ledger-core/internal/adapters/web"
)

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			deps, err := buildServices(ctx, *configPath)
			if err != nil {
				return err
			}
			defer deps.Close()

			handler := webAdapter.NewHandler(deps.svc, os.Getenv("ALLOWED_ORIGINS"))
			server := &http.Server{Addr: deps.cfg.Server.Addr, Handler: handler}

			errCh := make(chan error, 1)
			go func() {
				log.Printf("server starting on %s", deps.cfg.Server.Addr)
				errCh <- server.ListenAndServe()
			}()

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case sig := <-stop:
				log.Printf("received %s, shutting down", sig)
				shutdownCtx, cancel := context.WithTimeout(context.Background(), deps.cfg.Server.ShutdownTimeout)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
