package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/citaflow/citaflow/cmd/mainconfig"
	"github.com/citaflow/citaflow/internal/api/router"
	"github.com/citaflow/citaflow/internal/booking"
	"github.com/citaflow/citaflow/internal/booking/simplybook"
	"github.com/citaflow/citaflow/internal/bookingaudit"
	"github.com/citaflow/citaflow/internal/channels"
	"github.com/citaflow/citaflow/internal/channels/instagram"
	"github.com/citaflow/citaflow/internal/channels/whatsapp"
	appconfig "github.com/citaflow/citaflow/internal/config"
	"github.com/citaflow/citaflow/internal/dispatch"
	"github.com/citaflow/citaflow/internal/engine"
	"github.com/citaflow/citaflow/internal/gateway"
	"github.com/citaflow/citaflow/internal/http/handlers"
	"github.com/citaflow/citaflow/internal/intent"
	"github.com/citaflow/citaflow/internal/jobs"
	"github.com/citaflow/citaflow/internal/knowledge"
	"github.com/citaflow/citaflow/internal/notify"
	"github.com/citaflow/citaflow/internal/observability/metrics"
	"github.com/citaflow/citaflow/internal/store"
	"github.com/citaflow/citaflow/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting citaflow API server", "env", cfg.Env, "port", cfg.Port)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Postgres: conversation store via database/sql, knowledge base and
	// booking audit via pgx pools.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	conversationStore := store.New(db)
	knowledgeRepo := knowledge.NewRepository(pool)
	auditRepo := bookingaudit.NewRepository(pool)

	// Redis backs the webhook dedup window.
	redisOpts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	deduper := gateway.NewDeduper(rdb, cfg.DedupTTL)

	msgMetrics := metrics.NewMessageMetrics(prometheus.DefaultRegisterer)

	adapter := newBookingAdapter(cfg, logger)
	logger.Info("scheduling authority configured", "adapter", adapter.Name())

	registry := channels.NewRegistry(
		whatsapp.NewClient(cfg.WhatsAppToken, cfg.WhatsAppPhoneNumberID, logger),
		instagram.NewClient(cfg.InstagramPageToken, logger),
	)

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	engineOpts := []engine.Option{
		engine.WithKnowledge(knowledgeRepo),
		engine.WithAuditLog(auditRepo),
		engine.WithLockTimeout(cfg.LockTimeout),
	}
	if cfg.OperatorEmail != "" {
		notifier := notify.NewService(newEmailSender(cfg, awsCfg, logger), cfg.OperatorEmail, logger)
		engineOpts = append(engineOpts, engine.WithNotifier(notifier))
	}
	eng := engine.New(conversationStore, intent.NewClassifier(), adapter, logger, engineOpts...)

	var (
		queue   dispatch.Queue
		tracker dispatch.JobTracker
	)
	if cfg.UseMemoryQueue {
		logger.Warn("using in-memory queue; messages are lost on restart")
		queue = dispatch.NewMemoryQueue(256)
	} else {
		queue = dispatch.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.MessageQueueURL)
		tracker = jobs.NewStore(dynamodb.NewFromConfig(awsCfg), cfg.MessageJobsTable, logger)
	}

	publisher := dispatch.NewPublisher(queue, tracker, logger)
	gw := gateway.New(cfg.MetaAppSecret, cfg.WebhookVerifyToken, deduper, publisher, logger)

	// With the memory queue there is no separate worker binary, so the
	// API process consumes its own queue.
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	var inlineWorker *dispatch.Worker
	if cfg.UseMemoryQueue {
		inlineWorker = dispatch.NewWorker(eng, queue, registry, logger,
			dispatch.WithWorkerCount(cfg.WorkerCount),
			dispatch.WithMetrics(msgMetrics),
		)
		inlineWorker.Start(workerCtx)
	}

	webhookHandler := handlers.NewMetaWebhookHandler(gw, msgMetrics, logger)
	adminCfg := handlers.AdminConfig{
		Store:     conversationStore,
		Knowledge: knowledgeRepo,
		Audit:     auditRepo,
		Logger:    logger,
	}
	if js, ok := tracker.(*jobs.Store); ok {
		adminCfg.Jobs = js
	}
	adminHandler := handlers.NewAdminHandler(adminCfg)

	r := router.New(router.Config{
		Webhooks:       webhookHandler,
		Admin:          adminHandler,
		AdminJWTSecret: cfg.AdminJWTSecret,
		AllowedOrigins: []string{"*"},
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stopWorker()
	if inlineWorker != nil {
		inlineWorker.Wait()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// newBookingAdapter picks the real SimplyBook client or the deterministic
// simulator. Config validation already refuses the simulator in production.
func newBookingAdapter(cfg *appconfig.Config, logger *logging.Logger) booking.Adapter {
	if cfg.SimplyBookMockMode {
		return simplybook.NewSimulator(logger)
	}
	return simplybook.NewClient(cfg.SimplyBookBaseURL, cfg.SimplyBookCompanyLogin, cfg.SimplyBookAPIKey, logger).
		WithTimeout(cfg.BookingTimeout)
}

func newEmailSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "sendgrid":
		return notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	case "ses":
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
		}, logger)
	default:
		return notify.NewStubEmailSender(logger)
	}
}
