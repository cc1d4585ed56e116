// Package audit records who did what to which resource.
//
// Entries are append-only. Writes are awaited: a guarded mutation is not
// reported as successful before its entry is stored, unless the log runs
// with PolicyFailOpen.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"payrollhub.org/internal/auth"
	"payrollhub.org/internal/fault"
	"payrollhub.org/internal/ids"
	"payrollhub.org/internal/obs"
)

// Action is the audited verb.
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionView    Action = "view"
	ActionExecute Action = "execute"
)

func (a Action) valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionView, ActionExecute:
		return true
	}
	return false
}

// Entry is one stored audit row.
type Entry struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	ActorID      string         `json:"actor_id"`
	Action       Action         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	ClientIP     string         `json:"client_ip,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
}

// Event is what callers hand to Record. Client fields left empty are taken
// from the request attached with WithRequest.
type Event struct {
	ActorID      string
	Action       Action
	ResourceType string
	ResourceID   string
	Metadata     map[string]any
	ClientIP     string
	UserAgent    string
}

// Filter narrows Query. Zero fields do not filter.
type Filter struct {
	ActorID      string
	Action       Action
	ResourceType string
	ResourceID   string
	From         time.Time
	To           time.Time
	Limit        int
}

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

// Appender stores entries.
type Appender interface {
	Append(ctx context.Context, e *Entry) error
}

// Reader lists entries newest first.
type Reader interface {
	Query(ctx context.Context, f Filter) ([]Entry, error)
}

// Policy decides what a failed append means for the mutation.
type Policy int

const (
	// PolicyFailClosed returns the append error, aborting the mutation.
	PolicyFailClosed Policy = iota
	// PolicyFailOpen logs the failure and lets the mutation through.
	PolicyFailOpen
)

// Log is the audit facade used by services and the route layer.
type Log struct {
	appender Appender
	reader   Reader
	policy   Policy
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures Log.
type Option func(*Log)

func WithPolicy(p Policy) Option { return func(l *Log) { l.policy = p } }

func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New builds a Log. reader may be nil when queries are not served.
func New(appender Appender, reader Reader, opts ...Option) *Log {
	l := &Log{
		appender: appender,
		reader:   reader,
		policy:   PolicyFailClosed,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends ev through the default appender.
func (l *Log) Record(ctx context.Context, ev Event) (Entry, error) {
	return l.RecordWith(ctx, l.appender, ev)
}

// RecordWith appends ev through app, typically an appender bound to the
// mutation's transaction.
func (l *Log) RecordWith(ctx context.Context, app Appender, ev Event) (Entry, error) {
	entry, err := l.build(ctx, ev)
	if err != nil {
		return Entry{}, err
	}
	if err := app.Append(ctx, &entry); err != nil {
		obs.AuditWriteFailures.Inc()
		if l.policy == PolicyFailOpen {
			l.logger.ErrorContext(ctx, "audit_write_failed",
				"fail_open", true, "action", string(entry.Action),
				"resource_type", entry.ResourceType, "resource_id", entry.ResourceID, "error", err)
			return entry, nil
		}
		l.logger.ErrorContext(ctx, "audit_write_failed",
			"fail_open", false, "action", string(entry.Action),
			"resource_type", entry.ResourceType, "resource_id", entry.ResourceID, "error", err)
		return Entry{}, fault.Internal("append audit entry", err)
	}
	obs.AuditEntries.WithLabelValues(string(entry.Action)).Inc()
	l.logger.InfoContext(ctx, "audit_recorded",
		"audit_id", entry.ID,
		"user_id", entry.ActorID,
		"action", string(entry.Action),
		"resource_type", entry.ResourceType,
		"resource_id", entry.ResourceID,
		"request_id", RequestIDFromContext(ctx),
	)
	return entry, nil
}

func (l *Log) build(ctx context.Context, ev Event) (Entry, error) {
	ev.ActorID = strings.TrimSpace(ev.ActorID)
	ev.ResourceType = strings.TrimSpace(ev.ResourceType)
	ev.ResourceID = strings.TrimSpace(ev.ResourceID)
	switch {
	case !ev.Action.valid():
		return Entry{}, fault.Validation("action", "unknown audit action "+string(ev.Action))
	case ev.ActorID == "":
		return Entry{}, fault.Validation("actor_id", "actor is required")
	case ev.ResourceType == "":
		return Entry{}, fault.Validation("resource_type", "resource type is required")
	case ev.ResourceID == "":
		return Entry{}, fault.Validation("resource_id", "resource id is required")
	}

	ts := l.now().UTC()
	meta := make(map[string]any, len(ev.Metadata)+1)
	for k, v := range ev.Metadata {
		meta[k] = v
	}
	req := requestFromContext(ctx)
	if req.id != "" {
		meta["request_id"] = req.id
	}
	if ev.ClientIP == "" {
		ev.ClientIP = req.clientIP
	}
	if ev.UserAgent == "" {
		ev.UserAgent = req.userAgent
	}
	return Entry{
		ID:           ids.NewAt(ts),
		Timestamp:    ts,
		ActorID:      ev.ActorID,
		Action:       ev.Action,
		ResourceType: ev.ResourceType,
		ResourceID:   ev.ResourceID,
		Metadata:     meta,
		ClientIP:     ev.ClientIP,
		UserAgent:    ev.UserAgent,
	}, nil
}

// Query lists entries. Only holders of the audit capability may read.
func (l *Log) Query(ctx context.Context, actx auth.AuthContext, f Filter) ([]Entry, error) {
	if !actx.Can(auth.CanViewAudit) {
		return nil, fault.Forbidden("audit query requires "+string(auth.CanViewAudit), auth.ErrMissingCapability)
	}
	if l.reader == nil {
		return nil, fault.Internal("audit reader not configured", errors.New("nil reader"))
	}
	if f.Action != "" && !f.Action.valid() {
		return nil, fault.Validation("action", "unknown audit action "+string(f.Action))
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return nil, fault.Validation("to", "to must not be before from")
	}
	switch {
	case f.Limit <= 0:
		f.Limit = defaultQueryLimit
	case f.Limit > maxQueryLimit:
		f.Limit = maxQueryLimit
	}
	entries, err := l.reader.Query(ctx, f)
	if err != nil {
		return nil, fault.Internal("query audit log", err)
	}
	return entries, nil
}
