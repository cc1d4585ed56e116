package consistency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"payrollhub.org/internal/audit"
	"payrollhub.org/internal/fault"
	"payrollhub.org/internal/store/pg"
)

const revenueColumns = `id, branch_id, revenue_date, cash, network, budget, total, calculated_total, is_matched, created_by, created_at`

// revenueDateConstraint is the unique index on (branch_id, revenue_date).
const revenueDateConstraint = "revenues_branch_date_key"

var (
	_ UnitOfWork      = (*PGStore)(nil)
	_ RevenueReader   = (*PGStore)(nil)
	_ RecipientFinder = (*PGStore)(nil)
	_ Tx              = (*pgTx)(nil)
)

// PGStore is the PostgreSQL adapter for revenues and notifications.
type PGStore struct {
	store *pg.Store
}

func NewPGStore(store *pg.Store) *PGStore {
	return &PGStore{store: store}
}

func (s *PGStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.store.InTx(ctx, func(q pg.Querier) error {
		return fn(&pgTx{q: q, audit: audit.NewPGTxStore(q)})
	})
}

type pgTx struct {
	q     pg.Querier
	audit *audit.PGStore
}

func (t *pgTx) Append(ctx context.Context, e *audit.Entry) error {
	return t.audit.Append(ctx, e)
}

func (t *pgTx) InsertRevenue(ctx context.Context, r *Revenue) error {
	_, err := t.q.ExecContext(ctx, `
		insert into revenues(id, branch_id, revenue_date, cash, network, budget, total, calculated_total, is_matched, created_by, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, r.ID, r.BranchID, r.Date, r.Cash, r.Network, r.Budget, r.ReportedTotal, r.CalculatedTotal, r.IsMatched, r.CreatedBy, r.CreatedAt)
	if pg.IsUniqueViolation(err, revenueDateConstraint) {
		return fault.Conflict(fmt.Sprintf("revenue for branch %s on %s exists", r.BranchID, r.Date.Format(dateLayout)), err)
	}
	if err != nil {
		return fmt.Errorf("insert revenue: %w", err)
	}
	return nil
}

func (t *pgTx) InsertNotification(ctx context.Context, n *Notification) error {
	_, err := t.q.ExecContext(ctx, `
		insert into notifications(id, branch_id, severity, title, message, related_entity_id, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, n.ID, pg.NullIfEmpty(n.BranchID), string(n.Severity), n.Title, n.Message, n.RelatedEntityID, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRevenue(row rowScanner) (Revenue, error) {
	var r Revenue
	err := row.Scan(&r.ID, &r.BranchID, &r.Date, &r.Cash, &r.Network, &r.Budget,
		&r.ReportedTotal, &r.CalculatedTotal, &r.IsMatched, &r.CreatedBy, &r.CreatedAt)
	return r, err
}

func (s *PGStore) Revenue(ctx context.Context, id string) (Revenue, error) {
	r, err := scanRevenue(s.store.DB().QueryRowContext(ctx,
		`select `+revenueColumns+` from revenues where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Revenue{}, ErrRevenueNotFound
	}
	return r, err
}

func (s *PGStore) ListScoped(ctx context.Context, query string, args []any) ([]Revenue, error) {
	rows, err := s.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Revenue
	for rows.Next() {
		r, err := scanRevenue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) AlertRecipients(ctx context.Context, branchID string) ([]string, error) {
	rows, err := s.store.DB().QueryContext(ctx, `
		select distinct u.id
		from users u
		join role_capabilities rc on rc.role_id = u.role_id and rc.granted
		where u.is_active
		  and (rc.capability = 'canViewAllBranches'
		       or (rc.capability = 'canEditRevenue' and u.branch_id = $1))
		order by u.id
	`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
