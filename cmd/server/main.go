// Command server runs the device-linking pairing backend: it wires the OTP
// store, the session registry, the pairing orchestrator, the durable metadata
// database, and the HTTP surface, then serves until interrupted.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ADDICT-HUB/X-guru-pair/internal/config"
	httpapi "github.com/ADDICT-HUB/X-guru-pair/internal/http"
	"github.com/ADDICT-HUB/X-guru-pair/internal/observability"
	"github.com/ADDICT-HUB/X-guru-pair/internal/otp"
	"github.com/ADDICT-HUB/X-guru-pair/internal/registry"
	"github.com/ADDICT-HUB/X-guru-pair/internal/repo"
	"github.com/ADDICT-HUB/X-guru-pair/internal/services"
	"github.com/ADDICT-HUB/X-guru-pair/internal/sms"
	"github.com/ADDICT-HUB/X-guru-pair/internal/sweeper"
	"github.com/ADDICT-HUB/X-guru-pair/internal/sysutil"
	"github.com/ADDICT-HUB/X-guru-pair/internal/wa"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// Local development convenience; absent .env is fine.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}

	var sender sms.Sender
	if cfg.Twilio.Enabled() {
		sender = sms.NewTwilio(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber)
		log.Info().Str("from", cfg.Twilio.FromNumber).Msg("twilio sms delivery enabled")
	} else {
		sender = sms.Simulated{}
		log.Warn().Msg("no sms provider configured, codes are logged only")
	}

	// The real protocol client is an external collaborator; the in-process
	// simulator stands in for it until one is wired.
	var client wa.Client = &wa.Simulator{}
	if !cfg.Pairing.SimulateWA {
		log.Warn().Msg("WA_SIMULATE=false but no external protocol client is configured, using the simulator")
	}

	store := otp.NewStore(sender, cfg.OTP.TTL)
	reg := registry.New()
	svc := services.NewPairingService(db, reg, store, sender, client)
	svc.RespondTimeout = cfg.Pairing.RespondTimeout

	sw, err := sweeper.New(store, cfg.OTP.SweepInterval)
	if err != nil {
		log.Fatal().Err(err).Msg("sweeper setup failed")
	}
	sw.Start()
	defer sw.Stop()

	r := gin.New()
	httpapi.RegisterRoutes(r, svc, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("pairing server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server exited with error")
	}

	otelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownOTel(otelCtx); err != nil {
		log.Warn().Err(err).Msg("otel shutdown failed")
	}
}
