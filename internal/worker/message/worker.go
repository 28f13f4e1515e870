// Package messageworker boots the asynchronous message consumer: it wires
// the conversation engine to the SQS queue and drains jobs until stopped.
package messageworker

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/citaflow/citaflow/cmd/mainconfig"
	"github.com/citaflow/citaflow/internal/booking"
	"github.com/citaflow/citaflow/internal/booking/simplybook"
	"github.com/citaflow/citaflow/internal/bookingaudit"
	"github.com/citaflow/citaflow/internal/channels"
	"github.com/citaflow/citaflow/internal/channels/instagram"
	"github.com/citaflow/citaflow/internal/channels/whatsapp"
	appconfig "github.com/citaflow/citaflow/internal/config"
	"github.com/citaflow/citaflow/internal/dispatch"
	"github.com/citaflow/citaflow/internal/engine"
	"github.com/citaflow/citaflow/internal/intent"
	"github.com/citaflow/citaflow/internal/jobs"
	"github.com/citaflow/citaflow/internal/knowledge"
	"github.com/citaflow/citaflow/internal/notify"
	"github.com/citaflow/citaflow/internal/observability/metrics"
	"github.com/citaflow/citaflow/internal/store"
	"github.com/citaflow/citaflow/pkg/logging"

	_ "github.com/lib/pq"
)

// Run starts the message worker and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	if cfg == nil {
		return fmt.Errorf("message worker requires config")
	}
	if logger == nil {
		logger = logging.Default()
	}

	if cfg.UseMemoryQueue {
		return fmt.Errorf("message worker cannot run when USE_MEMORY_QUEUE=true; run inline workers via the API process instead")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("message worker requires DATABASE_URL")
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("worker failed to open postgres: %w", err)
	}
	defer db.Close()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("worker failed to connect to postgres: %w", err)
	}
	defer pool.Close()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	queue := dispatch.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.MessageQueueURL)
	jobStore := jobs.NewStore(dynamodb.NewFromConfig(awsCfg), cfg.MessageJobsTable, logger)

	adapter := newBookingAdapter(cfg, logger)
	logger.Info("scheduling authority configured", "adapter", adapter.Name())

	engineOpts := []engine.Option{
		engine.WithKnowledge(knowledge.NewRepository(pool)),
		engine.WithAuditLog(bookingaudit.NewRepository(pool)),
		engine.WithLockTimeout(cfg.LockTimeout),
	}
	if cfg.OperatorEmail != "" {
		engineOpts = append(engineOpts,
			engine.WithNotifier(notify.NewService(newEmailSender(cfg, awsCfg, logger), cfg.OperatorEmail, logger)))
	}
	eng := engine.New(store.New(db), intent.NewClassifier(), adapter, logger, engineOpts...)

	registry := channels.NewRegistry(
		whatsapp.NewClient(cfg.WhatsAppToken, cfg.WhatsAppPhoneNumberID, logger),
		instagram.NewClient(cfg.InstagramPageToken, logger),
	)

	worker := dispatch.NewWorker(eng, queue, registry, logger,
		dispatch.WithWorkerCount(cfg.WorkerCount),
		dispatch.WithJobTracker(jobStore),
		dispatch.WithMetrics(metrics.NewMessageMetrics(prometheus.DefaultRegisterer)),
	)

	worker.Start(ctx)
	logger.Info("message worker started", "workers", cfg.WorkerCount, "queue_url", cfg.MessageQueueURL)

	<-ctx.Done()
	worker.Wait()
	return nil
}

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
