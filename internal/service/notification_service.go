package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-docs-api/internal/models"
	"github.com/noah-isme/sma-docs-api/pkg/jobs"
)

// NotificationPublisher pushes serialized events to the delivery channel.
type NotificationPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// NotificationServiceConfig tunes the dispatch workers.
type NotificationServiceConfig struct {
	Enabled           bool
	Channel           string
	WorkerConcurrency int
	WorkerRetries     int
}

// NotificationService delivers governance events to the push
// collaborator, fire-and-forget: a failed delivery is logged and retried
// by the queue, never surfaced to the operation that produced it.
type NotificationService struct {
	publisher NotificationPublisher
	queue     *jobs.Queue
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       NotificationServiceConfig
}

// NewNotificationService constructs the service and its worker queue.
func NewNotificationService(publisher NotificationPublisher, metrics *MetricsService, logger *zap.Logger, cfg NotificationServiceConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Channel == "" {
		cfg.Channel = "sma-docs:events"
	}
	svc := &NotificationService{publisher: publisher, metrics: metrics, logger: logger, cfg: cfg}
	svc.queue = jobs.NewQueue("notifications", svc.deliver, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		Logger:     logger,
	})
	return svc
}

// Start launches the dispatch workers.
func (s *NotificationService) Start(ctx context.Context) {
	if !s.enabled() {
		return
	}
	s.queue.Start(ctx)
}

// Stop drains the dispatch workers.
func (s *NotificationService) Stop() {
	if !s.enabled() {
		return
	}
	s.queue.Stop()
}

// Notify enqueues an event for delivery. Errors are logged only.
func (s *NotificationService) Notify(event models.NotificationEvent) {
	if !s.enabled() {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    event.Type,
		Payload: event,
	})
	if err != nil {
		s.logger.Warn("failed to enqueue notification", zap.String("type", event.Type), zap.Error(err))
	}
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.NotificationEvent)
	if !ok {
		s.logger.Warn("dropping notification with unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("failed to encode notification", zap.String("type", event.Type), zap.Error(err))
		return nil
	}
	if err := s.publisher.Publish(ctx, s.cfg.Channel, payload).Err(); err != nil {
		return err
	}
	s.metrics.RecordEventPublished()
	return nil
}

func (s *NotificationService) enabled() bool {
	return s.cfg.Enabled && s.publisher != nil
}
