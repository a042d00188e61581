package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-krs-api/pkg/jobs"
	"github.com/noah-isme/uni-krs-api/pkg/notify"
)

type cohortRoster interface {
	ListIDsByCohort(ctx context.Context, cohort string) ([]string, error)
}

type notifyPayload struct {
	Topic   string
	UserID  string
	Cohort  string
	Message string
	Count   int
}

// NotificationService dispatches fire-and-forget notification triggers on a
// background worker queue so cohort-wide broadcasts never block the request
// that raised them. Delivery failures are logged and dropped after retries.
type NotificationService struct {
	queue    *jobs.Queue
	notifier notify.Notifier
	roster   cohortRoster
	logger   *zap.Logger
}

// NewNotificationService constructs the service and its queue.
func NewNotificationService(notifier notify.Notifier, roster cohortRoster, workers, bufferSize int, logger *zap.Logger) *NotificationService {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{notifier: notifier, roster: roster, logger: logger}
	s.queue = jobs.NewQueue("notifications", s.handle, jobs.QueueConfig{
		Workers:    workers,
		BufferSize: bufferSize,
		Logger:     logger,
	})
	return s
}

// Start launches the dispatch workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// NotifyStudent queues a trigger addressed to one student.
func (s *NotificationService) NotifyStudent(topic, studentID, message string, count int) {
	s.enqueue(notifyPayload{Topic: topic, UserID: studentID, Message: message, Count: count})
}

// BroadcastCohort queues a trigger for every active student in a cohort.
func (s *NotificationService) BroadcastCohort(topic, cohort, message string, count int) {
	s.enqueue(notifyPayload{Topic: topic, Cohort: cohort, Message: message, Count: count})
}

func (s *NotificationService) enqueue(payload notifyPayload) {
	err := s.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    payload.Topic,
		Payload: payload,
	})
	if err != nil {
		s.logger.Warn("notification dropped", zap.String("topic", payload.Topic), zap.Error(err))
	}
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(notifyPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}

	if payload.Cohort == "" {
		return s.notifier.Notify(ctx, payload.Topic, payload.UserID, payload.Message, payload.Count)
	}

	ids, err := s.roster.ListIDsByCohort(ctx, payload.Cohort)
	if err != nil {
		return fmt.Errorf("resolve cohort %s: %w", payload.Cohort, err)
	}
	for _, id := range ids {
		if err := s.notifier.Notify(ctx, payload.Topic, id, payload.Message, payload.Count); err != nil {
			s.logger.Warn("notification delivery failed",
				zap.String("topic", payload.Topic),
				zap.String("student_id", id),
				zap.Error(err))
		}
	}
	return nil
}
