// Command filegate runs the Telegram file relay bot and its HTTP sidecar.
//
// The bot long-polls Telegram for updates. The sidecar serves health,
// Prometheus metrics, the verification callback (callback admission mode)
// and the operator API. Both stop on SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/filegate-bot/internal/bot"
	"github.com/tbourn/filegate-bot/internal/config"
	httpapi "github.com/tbourn/filegate-bot/internal/http"
	"github.com/tbourn/filegate-bot/internal/observability"
	"github.com/tbourn/filegate-bot/internal/repo"
	"github.com/tbourn/filegate-bot/internal/services"
	"github.com/tbourn/filegate-bot/internal/shortener"
	"github.com/tbourn/filegate-bot/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("filegate exited")
	}
}

func run() error {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, os.Stderr)
	ver := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if err := db.Use(tracing.NewPlugin()); err != nil {
		return fmt.Errorf("db tracing: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	api, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	api.Debug = cfg.LogLevel == "debug"
	log.Info().Str("bot", api.Self.UserName).Str("version", ver).Str("admission", cfg.Admission.Mode).Msg("telegram authorized")

	referrals := services.NewReferralService(cfg.Admission.ReferralCredit)
	ledger := services.NewLedgerService(db, referrals, cfg.Admission.TTL)
	links := &services.LinkIssuer{
		BaseURL:         cfg.Admission.VerifyBaseURL,
		Shortener:       shortener.New(cfg.Shortener.URL, cfg.Shortener.APIKey, cfg.Shortener.Timeout),
		Timeout:         cfg.Shortener.Timeout,
		IncludeReferral: !cfg.Admission.Optimistic(),
	}
	relay := bot.NewChannelRelay(api, cfg.Bot.ChannelID)
	registry := services.NewRegistryService(db, relay, cfg.Admission.MaxIDAttempts)

	gw := bot.NewGateway(api, ledger, links, registry, relay, bot.Options{
		BotUsername:    cfg.Bot.Username,
		Optimistic:     cfg.Admission.Optimistic(),
		TTL:            cfg.Admission.TTL,
		Workers:        cfg.Bot.Workers,
		RequestTimeout: cfg.Bot.RequestTimeout,
	})
	if err := gw.RegisterCommands(); err != nil {
		log.Warn().Err(err).Msg("set bot commands")
	}

	var srv *http.Server
	if cfg.HTTPEnabled {
		gin.SetMode(cfg.GinMode)
		r := gin.New()
		httpapi.RegisterRoutes(r, httpapi.Deps{
			Ledger:   ledger,
			Registry: registry,
			DeepLink: gw.DeepLink,
		}, cfg)

		srv = &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           r,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			MaxHeaderBytes:    cfg.MaxHeaderBytes,
		}
		go func() {
			log.Info().Str("addr", srv.Addr).Msg("http listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("http server failed")
				stop()
			}
		}()
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = cfg.Bot.PollTimeout
	updates := api.GetUpdatesChan(u)

	done := make(chan struct{})
	go func() {
		defer close(done)
		gw.Run(ctx, updates)
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	api.StopReceivingUpdates()

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if srv != nil {
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("http shutdown")
		}
	}

	select {
	case <-done:
	case <-sctx.Done():
		log.Warn().Msg("in-flight updates did not finish before the shutdown deadline")
	}
	return nil
}
