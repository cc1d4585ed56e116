// Package notify delivers alerts to the external notification system.
// Delivery is best-effort: callers log failures and move on.
package notify

import (
	"context"
	"log/slog"
)

// Severity of an alert.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Alert is the payload handed to a Dispatcher.
type Alert struct {
	Severity        Severity `json:"severity"`
	Title           string   `json:"title"`
	Message         string   `json:"message"`
	Recipients      []string `json:"recipients"`
	RelatedEntityID string   `json:"relatedEntityId"`
}

// Dispatcher sends alerts.
type Dispatcher interface {
	Dispatch(ctx context.Context, a Alert) error
}

// LogDispatcher writes alerts to the logger. It is used when no broker is
// configured.
type LogDispatcher struct {
	Logger *slog.Logger
}

func (d LogDispatcher) Dispatch(ctx context.Context, a Alert) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.WarnContext(ctx, "notification_dispatched",
		"severity", string(a.Severity),
		"title", a.Title,
		"recipients", len(a.Recipients),
		"related_entity_id", a.RelatedEntityID,
	)
	return nil
}
