package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jpmendieta/taskflow-api/internal/models"
	"github.com/jpmendieta/taskflow-api/pkg/config"
	"github.com/jpmendieta/taskflow-api/pkg/jobs"
	"github.com/jpmendieta/taskflow-api/pkg/mailer"
)

// NotificationEvent identifies a task lifecycle change worth a mail.
type NotificationEvent string

const (
	EventTaskAssigned  NotificationEvent = "task_assigned"
	EventTaskUpdated   NotificationEvent = "task_updated"
	EventTaskCreated   NotificationEvent = "task_created"
	EventTaskCompleted NotificationEvent = "task_completed"
	EventTaskDeleted   NotificationEvent = "task_deleted"
)

type notificationPayload struct {
	Event   NotificationEvent
	Message mailer.Message
}

// NotificationService formats task lifecycle mails and hands them to the
// transport through a background queue. Dispatch is fire-and-forget: a
// failed delivery is retried a bounded number of times and then dropped
// with a log line, it never fails the mutation that triggered it.
type NotificationService struct {
	sender  mailer.Sender
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
	enabled bool
}

// NewNotificationService wires the dispatcher from its config section.
// All transport configuration arrives here at construction time.
func NewNotificationService(sender mailer.Sender, metrics *MetricsService, cfg config.NotificationsConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{
		sender:  sender,
		metrics: metrics,
		logger:  logger,
		enabled: cfg.Enabled && sender != nil,
	}
	s.queue = jobs.NewQueue("notifications", s.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the dispatch workers.
func (s *NotificationService) Start(ctx context.Context) {
	if s == nil || !s.enabled {
		return
	}
	s.queue.Start(ctx)
}

// Stop drains the dispatch workers.
func (s *NotificationService) Stop() {
	if s == nil || !s.enabled {
		return
	}
	s.queue.Stop()
}

// Notify enqueues a mail for the event. Never returns an error: the
// request that caused the event must succeed regardless of mail fate.
func (s *NotificationService) Notify(event NotificationEvent, task models.Task, owner models.User) {
	if s == nil || !s.enabled {
		return
	}
	if owner.Email == "" {
		s.logger.Warn("notification skipped, owner has no email",
			zap.String("event", string(event)), zap.String("task_id", task.ID))
		return
	}

	payload := notificationPayload{Event: event, Message: s.compose(event, task, owner)}
	job := jobs.Job{ID: uuid.NewString(), Type: string(event), Payload: payload}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Error("failed to enqueue notification",
			zap.String("event", string(event)), zap.String("task_id", task.ID), zap.Error(err))
		if s.metrics != nil {
			s.metrics.RecordNotification(string(event), false)
		}
	}
}

func (s *NotificationService) compose(event NotificationEvent, task models.Task, owner models.User) mailer.Message {
	msg := mailer.Message{To: []string{owner.Email}}

	switch event {
	case EventTaskAssigned:
		msg.Subject = "New task assigned"
		msg.Body = fmt.Sprintf("Hi %s, you have been assigned a new task: %s", owner.Name, task.Title)
	case EventTaskUpdated:
		msg.Subject = fmt.Sprintf("The task '%s' has been updated", task.Title)
		msg.Body = fmt.Sprintf("Hi %s,\nThe task '%s' has been updated.\nThanks,\nThe Taskflow Team", owner.FullName(), task.Title)
	case EventTaskCreated:
		msg.Subject = "Task created"
		msg.Body = fmt.Sprintf("The task %s has been created.", task.Title)
	case EventTaskCompleted:
		msg.Subject = "Task completed"
		msg.Body = fmt.Sprintf("The task %s has been completed.", task.Title)
	case EventTaskDeleted:
		msg.Subject = "Task deleted"
		msg.Body = fmt.Sprintf("The task %s has been deleted.", task.Title)
	default:
		msg.Subject = "Task notification"
		msg.Body = fmt.Sprintf("The task %s has changed.", task.Title)
	}

	return msg
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(notificationPayload)
	if !ok {
		s.logger.Error("dropping notification with unexpected payload", zap.String("job_id", job.ID))
		return nil
	}

	if err := s.sender.Send(ctx, payload.Message); err != nil {
		if s.metrics != nil {
			s.metrics.RecordNotification(string(payload.Event), false)
		}
		return fmt.Errorf("send %s mail: %w", payload.Event, err)
	}

	if s.metrics != nil {
		s.metrics.RecordNotification(string(payload.Event), true)
	}
	return nil
}
