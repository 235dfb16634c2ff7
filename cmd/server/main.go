package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/tablemaster-pos/engine/internal/config"
	"github.com/tablemaster-pos/engine/internal/handler"
	"github.com/tablemaster-pos/engine/internal/integration"
	"github.com/tablemaster-pos/engine/internal/kot"
	"github.com/tablemaster-pos/engine/internal/model"
	"github.com/tablemaster-pos/engine/internal/notify"
	"github.com/tablemaster-pos/engine/internal/order"
	"github.com/tablemaster-pos/engine/internal/printer"
	"github.com/tablemaster-pos/engine/internal/router"
	"github.com/tablemaster-pos/engine/internal/store"
	"github.com/tablemaster-pos/engine/internal/ws"
)

// stores groups the persistence interfaces the services consume; both
// backends implement all of them.
type stores interface {
	store.OrderStore
	store.StockStore
	store.UserStore
	store.RoomStockStore
	store.PrinterStore
	store.SettingsStore
}

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var db stores
	if cfg.DatabaseURL != "" {
		if err := store.Migrate(cfg.DatabaseURL); err != nil {
			log.Fatal().Err(err).Msg("database migration failed")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("database connection failed")
		}
		defer pool.Close()
		db = store.NewPostgres(pool)
		log.Info().Msg("using postgres store")
	} else {
		mem := store.NewMemory()
		mem.SetSettings(model.Settings{
			BaseCurrency:      "INR",
			OverridePIN:       cfg.OverridePIN,
			KOTMode:           cfg.KOTMode,
			KOTBatchThreshold: cfg.KOTBatchThreshold,
		})
		db = mem
		log.Warn().Msg("no DATABASE_URL set, using in-memory store")
	}

	renderer := printer.NewRenderer()
	printClient := printer.NewClient(log)
	kotQueue := kot.NewQueue(kot.Config{
		Mode:      cfg.KOTMode,
		Threshold: cfg.KOTBatchThreshold,
	}, db, printClient, renderer, log)

	var mailer notify.Mailer
	if cfg.SMTPAddr != "" {
		mailer = notify.NewSMTPMailer(cfg.SMTPAddr, cfg.SMTPFrom)
	} else {
		mailer = notify.LogMailer{Log: log}
	}

	var platform order.PlatformNotifier
	if cfg.KafkaBrokers != "" {
		publisher := integration.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		defer publisher.Close()
		platform = publisher
	}

	hub := ws.NewHub()
	go hub.Run()

	orderSvc := order.NewService(order.Deps{
		Orders:    db,
		Stock:     db,
		Users:     db,
		RoomStock: db,
		Settings:  db,
		KOT:       kotQueue,
		Mailer:    mailer,
		Platform:  platform,
		Events:    hub,
		Log:       log,
	})

	h := &handler.Handler{
		Orders:   orderSvc,
		Store:    db,
		Printers: db,
		Settings: db,
		KOT:      kotQueue,
		Client:   printClient,
		Renderer: renderer,
		Log:      log,
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router.New(h, hub),
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	// Flush any tickets still queued in batch mode before exiting.
	if err := kotQueue.Drain(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("KOT drain failed")
	}
}
