// Package store is the transactional relational projection described in
// spec.md §4.3/§3/§6: chains, sync_state, campaigns, contributions,
// events, accessed through a unit-of-work that commits atomically on
// success and rolls back on any error.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Store owns the pooled database connection.
type Store struct {
	db *sql.DB
}

// Open connects to dbURL (a postgres:// DSN) via lib/pq.
func Open(dbURL string) (*Store, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Store{db: db}, nil
}

// NewForTest builds a Store around an already-open *sql.DB — the seam
// other packages' tests use to inject a go-sqlmock connection without
// reaching into Store's unexported fields.
func NewForTest(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the pool for read-only paths that don't need a unit of
// work. The CLI status commands do not use it.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// UnitOfWork wraps a *sql.Tx: commits atomically on success, rolls back
// on any returned error, and always releases its connection.
type UnitOfWork struct {
	Tx *sql.Tx

	Chains        *ChainRepo
	SyncStates    *SyncStateRepo
	Campaigns     *CampaignRepo
	Contributions *ContributionRepo
	Events        *EventRepo
}

// Begin opens a new unit of work. Callers must defer uow.Rollback() and
// explicitly call uow.Commit() on the success path — Rollback after a
// successful Commit is a documented no-op, mirroring database/sql's own
// *Tx contract.
func (s *Store) Begin(ctx context.Context) (*UnitOfWork, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin: %w", err)
	}
	return &UnitOfWork{
		Tx:            tx,
		Chains:        &ChainRepo{tx: tx},
		SyncStates:    &SyncStateRepo{tx: tx},
		Campaigns:     &CampaignRepo{tx: tx},
		Contributions: &ContributionRepo{tx: tx},
		Events:        &EventRepo{tx: tx},
	}, nil
}

func (u *UnitOfWork) Commit() error   { return u.Tx.Commit() }
func (u *UnitOfWork) Rollback() error {
	err := u.Tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

// WithUnitOfWork runs fn inside a unit of work, committing on a nil
// return and rolling back otherwise. This is the shape every consumer
// message handler and the rollback/reconciliation handlers use.
func (s *Store) WithUnitOfWork(ctx context.Context, fn func(*UnitOfWork) error) error {
	uow, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback()

	if err := fn(uow); err != nil {
		return err
	}
	return uow.Commit()
}
