package users

import (
	"context"

	"payrollhub.org/internal/audit"
	"payrollhub.org/internal/auth"
	"payrollhub.org/internal/store/pg"
)

var _ UnitOfWork = (*PGStore)(nil)

// PGStore runs user creation in a PostgreSQL transaction.
type PGStore struct {
	store *pg.Store
}

func NewPGStore(store *pg.Store) *PGStore { return &PGStore{store: store} }

func (s *PGStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.store.InTx(ctx, func(q pg.Querier) error {
		return fn(pgTx{PGDirectory: auth.NewPGDirectory(q), audit: audit.NewPGTxStore(q)})
	})
}

type pgTx struct {
	*auth.PGDirectory
	audit *audit.PGStore
}

func (t pgTx) Append(ctx context.Context, e *audit.Entry) error {
	return t.audit.Append(ctx, e)
}
