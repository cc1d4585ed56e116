package consistency

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"payrollhub.org/internal/audit"
	"payrollhub.org/internal/notify"
)

const dateLayout = "2006-01-02"

// Revenue is one branch's reported takings for a day.
type Revenue struct {
	ID              string          `json:"id"`
	BranchID        string          `json:"branch_id"`
	Date            time.Time       `json:"date"`
	Cash            decimal.Decimal `json:"cash"`
	Network         decimal.Decimal `json:"network"`
	Budget          decimal.Decimal `json:"budget"`
	ReportedTotal   decimal.Decimal `json:"total"`
	CalculatedTotal decimal.Decimal `json:"calculated_total"`
	IsMatched       bool            `json:"is_matched"`
	CreatedBy       string          `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Notification is the stored record of a raised alert.
type Notification struct {
	ID              string
	BranchID        string
	Severity        notify.Severity
	Title           string
	Message         string
	RelatedEntityID string
	CreatedAt       time.Time
}

// RevenueInput is a request to record revenue.
type RevenueInput struct {
	BranchID string
	Date     time.Time
	Cash     decimal.Decimal
	Network  decimal.Decimal
	Budget   decimal.Decimal
	Total    decimal.Decimal
}

// Tx is the transactional write surface of one RecordRevenue call.
type Tx interface {
	audit.Appender
	InsertRevenue(ctx context.Context, r *Revenue) error
	InsertNotification(ctx context.Context, n *Notification) error
}

// UnitOfWork runs fn atomically.
type UnitOfWork interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// RevenueReader loads revenue rows. ListScoped receives a query already
// restricted by auth.ScopeQuery.
type RevenueReader interface {
	Revenue(ctx context.Context, id string) (Revenue, error)
	ListScoped(ctx context.Context, query string, args []any) ([]Revenue, error)
}

// RecipientFinder returns the user ids to alert about a branch: the
// branch's supervisors and every all-branches administrator.
type RecipientFinder interface {
	AlertRecipients(ctx context.Context, branchID string) ([]string, error)
}
