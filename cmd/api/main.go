package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/punchamoorthee/promoledger/internal/api"
	"github.com/punchamoorthee/promoledger/internal/auth"
	"github.com/punchamoorthee/promoledger/internal/cache"
	"github.com/punchamoorthee/promoledger/internal/config"
	"github.com/punchamoorthee/promoledger/internal/events"
	"github.com/punchamoorthee/promoledger/internal/notify"
	"github.com/punchamoorthee/promoledger/internal/paypal"
	"github.com/punchamoorthee/promoledger/internal/service"
	"github.com/punchamoorthee/promoledger/internal/store"
	log "github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}
	config.SetupLogging(cfg)
	log.WithField("environment", cfg.Env).Info("Starting promoledger API")

	if err := store.Migrate(cfg.DBSource, cfg.MigrationsPath); err != nil {
		log.WithError(err).Fatal("Could not migrate database")
	}

	ctx := context.Background()
	db, err := store.NewStore(ctx, cfg.DBSource)
	if err != nil {
		log.WithError(err).Fatal("Unable to connect to database")
	}
	defer db.Close()

	publisher := newPublisher(cfg)
	defer publisher.Close()

	// Initialize Layers
	tokens := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	ledgerSvc := service.NewLedgerService(service.LedgerDeps{
		Store:         db,
		Accounts:      db,
		Events:        publisher,
		Leaderboard:   newLeaderboard(cfg),
		Mailer:        newMailer(cfg),
		Commission:    cfg.Commission,
		PublicBaseURL: cfg.PublicBaseURL,
	})
	accountSvc := service.NewAccountService(db, db, tokens)
	paymentSvc := service.NewPaymentService(db, db, newGateway(cfg), ledgerSvc)

	handler := api.NewHandler(ledgerSvc, accountSvc, paymentSvc, tokens)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(handler),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	log.Infof("Caught signal %v: shutting down", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
}

func newPublisher(cfg *config.Config) events.Publisher {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Warn("KAFKA_BROKERS not set, ledger events go to the log only")
		return events.LogPublisher{}
	}
	p, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		log.WithError(err).Fatal("Failed to create Kafka publisher")
	}
	log.WithFields(log.Fields{"brokers": cfg.Kafka.Brokers, "topic": cfg.Kafka.Topic}).Info("Publishing ledger events to Kafka")
	return p
}

func newLeaderboard(cfg *config.Config) cache.Leaderboard {
	if cfg.Redis.URL == "" {
		return cache.NewMemoryLeaderboard(cfg.Redis.LeaderboardTTL)
	}
	client, err := cache.Connect(cfg.Redis.URL)
	if err != nil {
		log.WithError(err).Fatal("Failed to configure Redis")
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.WithError(err).Warn("Redis is unreachable, leaderboard cache will miss until it recovers")
	}
	return cache.NewRedisLeaderboard(client, cfg.Redis.LeaderboardTTL)
}

func newMailer(cfg *config.Config) notify.Mailer {
	if !cfg.SMTP.Enabled() {
		log.Warn("SMTP not configured, influencer credentials will not be mailed")
		return notify.NopMailer{}
	}
	return notify.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From)
}

func newGateway(cfg *config.Config) paypal.Gateway {
	if !cfg.PayPal.Enabled() {
		log.Warn("PayPal credentials not set, payment endpoints are disabled")
		return nil
	}
	return paypal.NewClient(cfg.PayPal.APIBase, cfg.PayPal.ClientID, cfg.PayPal.ClientSecret)
}
