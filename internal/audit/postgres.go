package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"payrollhub.org/internal/store/pg"
)

var (
	_ Appender = (*PGStore)(nil)
	_ Reader   = (*PGStore)(nil)
)

// PGStore persists entries in audit_log. There is no update or delete path.
type PGStore struct {
	q         pg.Querier
	savepoint bool
}

// NewPGStore binds the store to a pool.
func NewPGStore(q pg.Querier) *PGStore {
	return &PGStore{q: q}
}

// NewPGTxStore binds the store to an open transaction. Each append runs
// under a savepoint so a failed insert leaves the transaction usable, which
// PolicyFailOpen relies on.
func NewPGTxStore(tx pg.Querier) *PGStore {
	return &PGStore{q: tx, savepoint: true}
}

const auditSavepoint = "audit_entry"

func (s *PGStore) Append(ctx context.Context, e *Entry) error {
	if !s.savepoint {
		return s.insert(ctx, e)
	}
	if _, err := s.q.ExecContext(ctx, "savepoint "+auditSavepoint); err != nil {
		return err
	}
	if err := s.insert(ctx, e); err != nil {
		if _, rbErr := s.q.ExecContext(ctx, "rollback to savepoint "+auditSavepoint); rbErr != nil {
			return fmt.Errorf("%w (savepoint rollback: %v)", err, rbErr)
		}
		return err
	}
	_, err := s.q.ExecContext(ctx, "release savepoint "+auditSavepoint)
	return err
}

func (s *PGStore) insert(ctx context.Context, e *Entry) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}
	_, err = s.q.ExecContext(ctx, `
		insert into audit_log(id, "timestamp", actor_id, action, resource_type, resource_id, metadata, client_ip, user_agent)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.Timestamp, e.ActorID, string(e.Action), e.ResourceType, e.ResourceID, meta,
		pg.NullIfEmpty(e.ClientIP), pg.NullIfEmpty(e.UserAgent))
	return err
}

func (s *PGStore) Query(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.ActorID != "" {
		add("actor_id = $%d", f.ActorID)
	}
	if f.Action != "" {
		add("action = $%d", string(f.Action))
	}
	if f.ResourceType != "" {
		add("resource_type = $%d", f.ResourceType)
	}
	if f.ResourceID != "" {
		add("resource_id = $%d", f.ResourceID)
	}
	if !f.From.IsZero() {
		add(`"timestamp" >= $%d`, f.From.UTC())
	}
	if !f.To.IsZero() {
		add(`"timestamp" < $%d`, f.To.UTC())
	}

	query := `select id, "timestamp", actor_id, action, resource_type, resource_id, metadata,
		coalesce(client_ip, ''), coalesce(user_agent, '') from audit_log`
	if len(conds) > 0 {
		query += " where " + strings.Join(conds, " and ")
	}
	args = append(args, f.Limit)
	query += fmt.Sprintf(` order by "timestamp" desc, id desc limit $%d`, len(args))

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e      Entry
			action string
			meta   []byte
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.ActorID, &action, &e.ResourceType, &e.ResourceID, &meta, &e.ClientIP, &e.UserAgent); err != nil {
			return nil, err
		}
		e.Action = Action(action)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata %s: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
