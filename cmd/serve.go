package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medibridge/telecall/internal/config"
	"github.com/medibridge/telecall/internal/logging"
	"github.com/medibridge/telecall/internal/session"
	"github.com/medibridge/telecall/internal/signaling"
)

var (
	flagServeHTTPListen string
	flagServeWSListen   string
	flagServeRedisAddr  string
	flagServeMemStore   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling broker and session registry",
	Long: `Run the server side of TeleCall: the websocket signaling broker that
relays offers, answers and ICE candidates between call endpoints, and the
HTTP session registry that tracks call sessions per encounter.

Examples:
  telecall serve
  telecall serve --mem-store
  telecall serve --http-listen :9090 --ws-listen :9091 --redis localhost:6379`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(parent context.Context) error {
	cfg, err := LoadConfig(config.Options{
		HTTPListenAddr: flagServeHTTPListen,
		WSListenAddr:   flagServeWSListen,
		RedisAddr:      flagServeRedisAddr,
		MemStore:       flagServeMemStore,
	})
	if err != nil {
		return err
	}

	logger := logging.NewServer(os.Stderr)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := newStore(ctx, cfg, &logger)
	if err != nil {
		return err
	}

	// registry HTTP API
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	api := session.NewAPI(session.APIConfig{
		Store:     store,
		JWTSecret: cfg.JWTSecret,
		Logger:    &logger,
	})
	api.Register(router)

	registrySrv := &http.Server{
		Addr:    cfg.HTTPListenAddr,
		Handler: router,
	}

	// signaling broker
	hub := signaling.NewHub(&logger)
	go hub.Run()

	wsMux := http.NewServeMux()
	wsMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Signaling broker is healthy."))
	})
	wsMux.HandleFunc("/ws", signaling.ServeWs(hub, &logger))

	brokerSrv := &http.Server{
		Addr:    cfg.WSListenAddr,
		Handler: wsMux,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("session registry listening")
		errCh <- registrySrv.ListenAndServe()
	}()
	go func() {
		logger.Info().Str("addr", cfg.WSListenAddr).Msg("signaling broker listening")
		errCh <- brokerSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server failed")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := registrySrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("registry shutdown")
	}
	if err := brokerSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("broker shutdown")
	}
	hub.Stop()
	return nil
}

// newStore selects the session store backend: redis for real deployments,
// in-memory for development and single-node setups.
func newStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (session.Store, error) {
	if cfg.MemStore {
		logger.Info().Msg("using in-memory session store")
		return session.NewMemStore(), nil
	}
	store, err := session.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("addr", cfg.RedisAddr).Msg("using redis session store")
	return store, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&flagServeHTTPListen, "http-listen", "", "Registry HTTP listen address")
	serveCmd.Flags().StringVar(&flagServeWSListen, "ws-listen", "", "Signaling broker listen address")
	serveCmd.Flags().StringVar(&flagServeRedisAddr, "redis", "", "Redis address for the session store")
	serveCmd.Flags().BoolVar(&flagServeMemStore, "mem-store", false, "Keep sessions in memory instead of redis")
}
