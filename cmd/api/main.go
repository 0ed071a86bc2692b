package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"addressd/internal/adapter/repo"
	"addressd/internal/credit"
	"addressd/internal/http/handlers"
	"addressd/internal/http/httpapi"
	"addressd/internal/infra"
	"addressd/internal/infra/geoip"
	"addressd/internal/providers/normalize"
	"addressd/internal/providers/postal"
	"addressd/internal/session"
	"addressd/internal/token"
	"addressd/internal/verify"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	if !cfg.SkipMigrations {
		if err := infra.RunMigrations(ctx, cfg); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
	}

	clients := repo.NewClientRepository(dbpool)
	messages := repo.NewMessageRepository(dbpool)
	runner := infra.NewSQLRunner(dbpool, logger)

	issuer := token.NewIssuer(cfg.JWTSecret, cfg.SessionTokenTTL, cfg.ActionTokenTTL)
	sessions := session.NewManager(clients, issuer, logger)
	ledger := credit.NewLedger(clients, logger)

	normalizer, err := normalize.NewGeminiNormalizer(normalize.GeminiOptions{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		BaseURL: cfg.GeminiBaseURL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure address normalizer")
	}
	directory := postal.NewClient(cfg.PostalBaseURL, nil)
	verifier := verify.NewService(ledger, normalizer, directory, cfg.NormalizeTimeout, logger)

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip database unavailable, login origin logging disabled")
	}

	app := &handlers.App{
		Config:   cfg,
		Logger:   logger,
		SQL:      runner,
		Clients:  clients,
		Messages: messages,
		Sessions: sessions,
		Ledger:   ledger,
		Verifier: verifier,
		Tokens:   issuer,
		Postal:   directory,
		GeoIP:    resolver,
	}

	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app))

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
