package consistency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"payrollhub.org/internal/audit"
	"payrollhub.org/internal/auth"
	"payrollhub.org/internal/fault"
	"payrollhub.org/internal/ids"
	"payrollhub.org/internal/notify"
	"payrollhub.org/internal/obs"
)

// ErrRevenueNotFound is returned by RevenueReader.Revenue.
var ErrRevenueNotFound = errors.New("consistency: revenue not found")

const (
	listLimit              = 500
	defaultDispatchTimeout = 5 * time.Second
)

// Service records and lists branch revenue.
type Service struct {
	uow        UnitOfWork
	reader     RevenueReader
	recipients RecipientFinder
	dispatcher notify.Dispatcher
	audit      *audit.Log
	now        func() time.Time
	timeout    time.Duration
	logger     *slog.Logger
}

// Option configures Service.
type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDispatchTimeout bounds the best-effort alert dispatch.
func WithDispatchTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewService(uow UnitOfWork, reader RevenueReader, recipients RecipientFinder, dispatcher notify.Dispatcher, auditLog *audit.Log, opts ...Option) *Service {
	s := &Service{
		uow:        uow,
		reader:     reader,
		recipients: recipients,
		dispatcher: dispatcher,
		audit:      auditLog,
		now:        time.Now,
		timeout:    defaultDispatchTimeout,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func validateInput(in RevenueInput) error {
	if strings.TrimSpace(in.BranchID) == "" {
		return fault.Validation("branch_id", "branch is required")
	}
	if in.Date.IsZero() {
		return fault.Validation("date", "date is required")
	}
	for field, v := range map[string]decimal.Decimal{
		"cash": in.Cash, "network": in.Network, "budget": in.Budget, "total": in.Total,
	} {
		if v.IsNegative() {
			return fault.Validation(field, field+" must not be negative")
		}
		if !v.Equal(v.Round(2)) {
			return fault.Validation(field, field+" has more than two decimal places")
		}
	}
	return nil
}

// RecordRevenue stores the record, its mismatch notification and its audit
// entry in one transaction, then dispatches the alert best-effort.
func (s *Service) RecordRevenue(ctx context.Context, actx auth.AuthContext, in RevenueInput) (Revenue, error) {
	if !actx.Can(auth.CanAddRevenue) {
		return Revenue{}, fault.Forbidden("record revenue requires "+string(auth.CanAddRevenue), auth.ErrMissingCapability)
	}
	in.BranchID = strings.TrimSpace(in.BranchID)
	if err := validateInput(in); err != nil {
		return Revenue{}, err
	}
	if err := auth.ValidateBranchAccess(actx, in.BranchID); err != nil {
		return Revenue{}, err
	}

	res := Reconcile(Amounts{Cash: in.Cash, Network: in.Network, Budget: in.Budget, Total: in.Total})
	now := s.now().UTC()
	rev := Revenue{
		ID:              ids.NewAt(now),
		BranchID:        in.BranchID,
		Date:            time.Date(in.Date.Year(), in.Date.Month(), in.Date.Day(), 0, 0, 0, 0, time.UTC),
		Cash:            in.Cash,
		Network:         in.Network,
		Budget:          in.Budget,
		ReportedTotal:   in.Total,
		CalculatedTotal: res.CalculatedTotal,
		IsMatched:       res.IsMatched,
		CreatedBy:       actx.UserID,
		CreatedAt:       now,
	}

	err := s.uow.InTx(ctx, func(tx Tx) error {
		if err := tx.InsertRevenue(ctx, &rev); err != nil {
			return err
		}
		if !res.IsMatched {
			alert := ComposeAlert(rev, res, nil)
			if err := tx.InsertNotification(ctx, &Notification{
				ID:              ids.NewAt(now),
				BranchID:        rev.BranchID,
				Severity:        alert.Severity,
				Title:           alert.Title,
				Message:         alert.Message,
				RelatedEntityID: rev.ID,
				CreatedAt:       now,
			}); err != nil {
				return err
			}
		}
		_, err := s.audit.RecordWith(ctx, tx, audit.Event{
			ActorID:      actx.UserID,
			Action:       audit.ActionCreate,
			ResourceType: "revenues",
			ResourceID:   rev.ID,
			Metadata: map[string]any{
				"branch_id":        rev.BranchID,
				"date":             rev.Date.Format(dateLayout),
				"total":            rev.ReportedTotal.StringFixed(2),
				"calculated_total": rev.CalculatedTotal.StringFixed(2),
				"is_matched":       rev.IsMatched,
			},
		})
		return err
	})
	if err != nil {
		if k := fault.KindOf(err); k != fault.KindInternal {
			return Revenue{}, err
		}
		return Revenue{}, fault.Internal("record revenue", err)
	}

	s.logger.InfoContext(ctx, "revenue_recorded",
		"revenue_id", rev.ID, "branch_id", rev.BranchID, "user_id", actx.UserID, "is_matched", rev.IsMatched)
	if !res.IsMatched {
		obs.ConsistencyMismatches.Inc()
		s.dispatchMismatch(ctx, rev, res)
	}
	return rev, nil
}

// dispatchMismatch never fails the caller; the record and its notification
// row are already committed.
func (s *Service) dispatchMismatch(ctx context.Context, rev Revenue, res Result) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	var recipients []string
	if s.recipients != nil {
		found, err := s.recipients.AlertRecipients(dctx, rev.BranchID)
		if err != nil {
			s.logger.WarnContext(ctx, "alert_recipients_failed", "revenue_id", rev.ID, "error", err)
		}
		recipients = found
	}
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Dispatch(dctx, ComposeAlert(rev, res, recipients)); err != nil {
		obs.NotificationDispatchFailures.Inc()
		s.logger.WarnContext(ctx, "notification_dispatch_failed", "revenue_id", rev.ID, "error", err)
	}
}

// GetRevenue loads one record, enforcing branch isolation.
func (s *Service) GetRevenue(ctx context.Context, actx auth.AuthContext, id string) (Revenue, error) {
	if !actx.Can(auth.CanViewRevenue) {
		return Revenue{}, fault.Forbidden("view revenue requires "+string(auth.CanViewRevenue), auth.ErrMissingCapability)
	}
	rev, err := s.reader.Revenue(ctx, id)
	if errors.Is(err, ErrRevenueNotFound) {
		return Revenue{}, fault.NotFound("revenue " + id)
	}
	if err != nil {
		return Revenue{}, fault.Internal("load revenue", err)
	}
	if err := auth.ValidateBranchAccess(actx, rev.BranchID); err != nil {
		return Revenue{}, err
	}
	return rev, nil
}

// ListFilter narrows ListRevenues. From is inclusive, To exclusive.
type ListFilter struct {
	BranchID string
	From     time.Time
	To       time.Time
}

// ListRevenues returns records visible to actx, newest first.
func (s *Service) ListRevenues(ctx context.Context, actx auth.AuthContext, f ListFilter) ([]Revenue, error) {
	if !actx.Can(auth.CanViewRevenue) {
		return nil, fault.Forbidden("view revenue requires "+string(auth.CanViewRevenue), auth.ErrMissingCapability)
	}
	var (
		conds []string
		args  []any
	)
	if !f.From.IsZero() {
		args = append(args, f.From)
		conds = append(conds, fmt.Sprintf("revenue_date >= $%d", len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		conds = append(conds, fmt.Sprintf("revenue_date < $%d", len(args)))
	}
	base := "select " + revenueColumns + " from revenues"
	if len(conds) > 0 {
		base += " where " + strings.Join(conds, " and ")
	}
	q, args, err := auth.ScopeQuery(base, actx, f.BranchID, args...)
	if err != nil {
		return nil, err
	}
	q += fmt.Sprintf(" order by revenue_date desc, id desc limit %d", listLimit)

	out, err := s.reader.ListScoped(ctx, q, args)
	if err != nil {
		return nil, fault.Internal("list revenues", err)
	}
	return out, nil
}
