package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Skotchmaster/inventory/internal/httpserver"
	"github.com/Skotchmaster/inventory/internal/notify"
	"github.com/Skotchmaster/inventory/internal/repo"
	"github.com/Skotchmaster/inventory/internal/search"
	"github.com/Skotchmaster/inventory/internal/service"
	"github.com/Skotchmaster/inventory/pkg/cache"
	"github.com/Skotchmaster/inventory/pkg/config"
	pkgdb "github.com/Skotchmaster/inventory/pkg/db"
	"github.com/Skotchmaster/inventory/pkg/events"
	"github.com/Skotchmaster/inventory/pkg/logging"
	"github.com/Skotchmaster/inventory/pkg/tokens"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: could not load .env: %v", err)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := pkgdb.Open(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		cancel()
		log.Fatalf("db open: %v", err)
	}
	store := repo.New(db)
	if err := store.Migrate(ctx); err != nil {
		cancel()
		log.Fatalf("db migrate: %v", err)
	}
	cancel()

	kv := newCache(cfg, logger)
	publisher := newPublisher(cfg, logger)
	index := newSearchIndex(cfg, store, logger)

	tok, err := tokens.NewService(cfg.JWTSecret, tokens.WithIssuer(cfg.ServiceName))
	if err != nil {
		log.Fatalf("tokens: %v", err)
	}

	otp := service.NewOTPService(kv, newSender(cfg, logger), cfg.OTPTTL, cfg.OTPResendInterval)

	e := httpserver.New(logger, &httpserver.Deps{
		AuthHandler: &httpserver.AuthHTTP{
			Svc:          &service.AuthService{Users: store, Tokens: tok, OTP: otp, Events: publisher},
			SecureCookie: cfg.CookieSecure,
		},
		CatalogHandler: &httpserver.CatalogHTTP{
			Svc: &service.CatalogService{Store: store, Cache: kv, Search: index, Events: publisher},
		},
		Verifier:      tok,
		SecureCookie:  cfg.CookieSecure,
		AdminRole:     cfg.AdminRole,
		AuthRateLimit: cfg.AuthRateLimit,
		Ready: []httpserver.Check{
			{Name: "db", Probe: func(ctx context.Context) error { return pkgdb.Ping(ctx, db) }},
			{Name: "cache", Probe: kv.Ping},
		},
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.ServerPort),
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
	}

	go func() {
		logger.Info("server_started", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_failed", "error", err)
	}
	if err := publisher.Close(); err != nil {
		logger.Warn("publisher_close_failed", "error", err)
	}
	if err := kv.Close(); err != nil {
		logger.Warn("cache_close_failed", "error", err)
	}
	if err := pkgdb.Close(db); err != nil {
		logger.Warn("db_close_failed", "error", err)
	}

	logger.Info("server_stopped")
}

func newCache(cfg config.Config, logger *slog.Logger) cache.Cache {
	if cfg.RedisURL == "" {
		logger.Warn("REDIS_URL is empty, using in-process cache")
		return cache.NewMemory()
	}
	r, err := cache.NewRedis(cfg.RedisURL, cfg.ServiceName)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := r.Ping(ctx); err != nil {
		logger.Warn("redis_ping_failed", "error", err)
	}
	return r
}

func newPublisher(cfg config.Config, logger *slog.Logger) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("KAFKA_BROKERS is empty, events are dropped")
		return events.Nop{}
	}
	p, err := events.NewKafkaProducer(cfg.KafkaBrokers)
	if err != nil {
		log.Fatalf("kafka: %v", err)
	}
	return p
}

func newSearchIndex(cfg config.Config, store *repo.GormRepo, logger *slog.Logger) search.Index {
	if cfg.ESURL == "" {
		return search.StoreIndex{Store: store}
	}
	es, err := search.NewElastic(search.ElasticConfig{
		URL:      cfg.ESURL,
		Username: cfg.ESUser,
		Password: cfg.ESPassword,
		Index:    cfg.ESIndex,
	})
	if err != nil {
		logger.Error("search_index_unavailable", "fallback", "store", "error", err)
		return search.StoreIndex{Store: store}
	}
	return es
}

func newSender(cfg config.Config, logger *slog.Logger) notify.Sender {
	return notify.NewFromSettings(notify.Settings{
		SMTPHost:          cfg.SMTPHost,
		SMTPPort:          cfg.SMTPPort,
		SMTPUser:          cfg.SMTPUser,
		SMTPPass:          cfg.SMTPPass,
		SMTPFrom:          cfg.SMTPFrom,
		TwilioBaseURL:     cfg.TwilioBaseURL,
		TwilioAccountSID:  cfg.TwilioAccountSID,
		TwilioAuthToken:   cfg.TwilioAuthToken,
		TwilioPhoneNumber: cfg.TwilioPhoneNumber,
		DevLog:            cfg.OTPDevLog,
	}, logger)
}
