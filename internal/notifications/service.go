package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"setgen/internal/config"
	"setgen/internal/logging"
)

const userAgent = "setgen/1.0"

// Event identifies a notice type.
type Event string

const (
	EventTaskFailed        Event = "task_failed"
	EventRunCompleted      Event = "run_completed"
	EventRunFailed         Event = "run_failed"
	EventSanityCheckFailed Event = "sanity_check_failed"
	EventSanityCheckPassed Event = "sanity_check_passed"
	EventRecoveryTriggered Event = "recovery_triggered"
	EventTest              Event = "test"
)

// Payload is the content of one notice.
type Payload struct {
	Title string
	Body  string
}

// Service publishes notices.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

type sink interface {
	name() string
	deliver(ctx context.Context, subject, body string) error
}

// NewService builds a service from cfg. Without any configured sink a no-op
// service is returned.
func NewService(cfg *config.Config, logger *slog.Logger) Service {
	if cfg == nil {
		return noopService{}
	}
	var sinks []sink
	if url := strings.TrimSpace(cfg.Notifications.WebhookURL); url != "" {
		timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		sinks = append(sinks, &webhookSink{
			url:        url,
			client:     &http.Client{Timeout: timeout},
			chunkDelay: time.Second,
		})
	}
	if cfg.Notifications.MailEnabled && strings.TrimSpace(cfg.Paths.MailDir) != "" {
		sinks = append(sinks, newMailSink(cfg.Paths.MailDir, cfg.Paths.StateDir, cfg.Notifications.MailDailyQuota, logger))
	}
	if len(sinks) == 0 {
		return noopService{}
	}
	return &fanoutService{
		sinks:   sinks,
		enabled: enabledEvents(cfg.Notifications),
		logger:  logging.NewComponentLogger(logger, "notifications"),
	}
}

func enabledEvents(n config.Notifications) map[Event]bool {
	return map[Event]bool{
		EventTaskFailed:        n.TaskFailures,
		EventRunFailed:         true,
		EventRunCompleted:      n.RunSummary,
		EventSanityCheckFailed: n.SanityCheck,
		EventSanityCheckPassed: n.SanityCheck,
		EventRecoveryTriggered: n.Recovery,
		EventTest:              true,
	}
}

type fanoutService struct {
	sinks   []sink
	enabled map[Event]bool
	logger  *slog.Logger
}

func (s *fanoutService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !s.enabled[event] {
		return nil
	}
	subject := Subject(event, payload.Title)
	var errs []error
	for _, target := range s.sinks {
		if err := target.deliver(ctx, subject, payload.Body); err != nil {
			logging.WithContext(ctx, s.logger).Warn("notification delivery failed",
				logging.String("sink", target.name()),
				logging.String(logging.FieldEventType, string(event)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "operator was not notified through this sink"),
			)
			errs = append(errs, fmt.Errorf("%s: %w", target.name(), err))
		}
	}
	return errors.Join(errs...)
}

// Subject builds the notice subject line for event.
func Subject(event Event, title string) string {
	title = strings.TrimSpace(title)
	switch event {
	case EventTaskFailed, EventRunFailed:
		return "setgen ERROR: " + title
	case EventSanityCheckFailed, EventSanityCheckPassed:
		return "setgen CHECK: " + title
	case EventRecoveryTriggered:
		return "setgen RECOVERY: " + title
	case EventTest:
		return "setgen TEST: " + title
	default:
		return "setgen: " + title
	}
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

// NewNoop returns a service that drops every notice.
func NewNoop() Service {
	return noopService{}
}
