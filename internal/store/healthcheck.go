package store

import (
	"context"
	"fmt"
)

// requiredTables mirrors
// original_source/indexer/db/healthcheck.py's REQUIRED_TABLES: the
// schema this indexer depends on but, per spec.md §1, never owns.
var requiredTables = []string{"chains", "sync_state", "campaigns", "contributions", "events"}

// CheckTablesExist verifies every table this indexer reads and writes
// is present, the same startup guard as check_tables_exist() — a
// missing table means the backend's own migrations haven't run yet,
// not something this process should attempt to fix by itself.
func (s *Store) CheckTablesExist(ctx context.Context) error {
	for _, table := range requiredTables {
		var exists bool
		err := s.db.QueryRowContext(ctx, `SELECT to_regclass($1) IS NOT NULL`, "public."+table).Scan(&exists)
		if err != nil {
			return fmt.Errorf("store: check table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("store: required table %q does not exist; run migrations first", table)
		}
	}
	return nil
}
