package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/robalobadob/numguess/internal/auth"
	"github.com/robalobadob/numguess/internal/config"
	"github.com/robalobadob/numguess/internal/httpserver"
	"github.com/robalobadob/numguess/internal/match"
	"github.com/robalobadob/numguess/internal/store"
)

var (
	portFlag  string
	storeFlag string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the game server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if portFlag != "" {
			cfg.Port = portFlag
		}
		if storeFlag != "" {
			cfg.StoreDriver = storeFlag
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		cfg.SetupLogging()
		if cfg.RequireRoleToken && cfg.UsesDevTokenSecret() {
			log.Warn().Msg("TOKEN_SECRET is the public development default; role tokens can be forged")
		}
		return serve(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&portFlag, "port", "p", "", "Port to listen on (overrides PORT)")
	serveCmd.Flags().StringVar(&storeFlag, "store", "", "Session store: memory, sqlite or bolt (overrides STORE_DRIVER)")
}

// openStore builds the configured session store.
func openStore(cfg config.Config) (store.Store, error) {
	opts := []store.Option{store.WithTTL(cfg.SessionTTL), store.WithMaxAttempts(cfg.IDAttempts)}
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		return store.OpenSQLite(cfg.DatabasePath, opts...)
	case config.DriverBolt:
		return store.OpenBolt(cfg.BoltPath, opts...)
	default:
		return store.NewMemoryStore(opts...), nil
	}
}

func serve(cfg config.Config) error {
	st, err := openStore(cfg)
	if err != nil {
		return errors.Wrap(err, "open session store")
	}
	defer st.Close()

	svc := match.New(st, cfg.SessionTTL)
	srv := httpserver.New(svc, auth.NewIssuer(cfg.TokenSecret, cfg.SessionTTL), httpserver.Options{
		ClientOrigin:     cfg.ClientOrigin,
		RequireRoleToken: cfg.RequireRoleToken,
		RequestTimeout:   cfg.RequestTimeout,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	done := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			done <- errors.Wrap(err, "server failed")
			return
		}
		done <- nil
	}()

	log.Info().Str("port", cfg.Port).Str("store", cfg.StoreDriver).Msg("starting numguess server")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return errors.Wrap(err, "server shutdown failed")
		}
		return nil
	case err := <-done:
		return err
	}
}
