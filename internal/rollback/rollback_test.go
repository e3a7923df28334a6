package rollback

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/cfchain/indexer/internal/stateupdate"
	"github.com/cfchain/indexer/internal/store"
	"github.com/cfchain/indexer/internal/xlog"
)

func newTestStore(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store.NewForTest(db), mock
}

// TestHandleNoAffectedAddressesSkipsResets covers the common case: a
// rollback range with no non-removed events touches nothing, so the
// campaign/contribution resets are skipped entirely (ResetForRollback
// no-ops on an empty address slice) and the survivor scan runs against
// an already-empty range.
func TestHandleNoAffectedAddressesSkipsResets(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE events").WillReturnRows(sqlmock.NewRows([]string{"address"}))
	mock.ExpectQuery("SELECT (.+) FROM events").
		WillReturnRows(sqlmock.NewRows([]string{"id", "chain_id", "tx_hash", "log_index",
			"block_number", "block_hash", "address", "event_name", "event_data", "removed", "created_at"}))
	mock.ExpectCommit()

	u := stateupdate.New(xlog.New("error"))
	h := New(u, xlog.New("error"))

	err := s.WithUnitOfWork(context.Background(), func(uow *store.UnitOfWork) error {
		return h.Handle(context.Background(), uow, 31337, 100, 110)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestHandleMarksRemovedResetsAggregatesThenSurvivorScanIsEmpty exercises
// the full five-step sequence against a range where MarkRemoved
// actually finds rows: every event it touches is, by construction,
// excluded from the immediately-following survivor scan over the same
// range (spec.md §9 scenario 3 expects a *subsequent*, distinct event
// to land afterward, not an in-transaction replay of what was just
// removed).
func TestHandleMarksRemovedResetsAggregatesThenSurvivorScanIsEmpty(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE events").
		WillReturnRows(sqlmock.NewRows([]string{"address"}).AddRow("0xcamp"))
	mock.ExpectExec("UPDATE campaigns").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE contributions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM events").
		WillReturnRows(sqlmock.NewRows([]string{"id", "chain_id", "tx_hash", "log_index",
			"block_number", "block_hash", "address", "event_name", "event_data", "removed", "created_at"}))
	mock.ExpectCommit()

	u := stateupdate.New(xlog.New("error"))
	h := New(u, xlog.New("error"))

	err := s.WithUnitOfWork(context.Background(), func(uow *store.UnitOfWork) error {
		return h.Handle(context.Background(), uow, 31337, 100, 100)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestHandleSkipsUnparsableEventDataDuringReplay covers
// a survivor whose event_data fails to unmarshal: Handle logs and
// skips it rather than aborting the whole rollback.
func TestHandleSkipsUnparsableEventDataDuringReplay(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE events").WillReturnRows(sqlmock.NewRows([]string{"address"}))
	mock.ExpectQuery("SELECT (.+) FROM events").
		WillReturnRows(sqlmock.NewRows([]string{"id", "chain_id", "tx_hash", "log_index",
			"block_number", "block_hash", "address", "event_name", "event_data", "removed", "created_at"}).
			AddRow(int64(1), int64(31337), "0xtx", int64(0), uint64(200), "0xblock",
				"0xcamp", "DonationReceived", []byte("not-json"), false, time.Now()))
	mock.ExpectCommit()

	u := stateupdate.New(xlog.New("error"))
	h := New(u, xlog.New("error"))

	err := s.WithUnitOfWork(context.Background(), func(uow *store.UnitOfWork) error {
		return h.Handle(context.Background(), uow, 31337, 150, 250)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
