package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

var (
	errFake = errors.New("store_test: forced failure")
	nowVal  = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Store{db: db}, mock
}

func TestWithUnitOfWorkCommitsOnSuccess(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO chains").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := s.WithUnitOfWork(context.Background(), func(uow *UnitOfWork) error {
		return uow.Chains.EnsureSeeded(context.Background(), 31337, "chain-31337", "http://localhost:8545")
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithUnitOfWorkRollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := s.WithUnitOfWork(context.Background(), func(uow *UnitOfWork) error {
		return errFake
	})
	require.ErrorIs(t, err, errFake)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepoGetReturnsNilNilWhenMissing(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM campaigns WHERE address = \\$1").
		WithArgs("0xdead").
		WillReturnRows(sqlmock.NewRows([]string{"address"}))
	mock.ExpectCommit()

	var got *Campaign
	err := s.WithUnitOfWork(context.Background(), func(uow *UnitOfWork) error {
		c, err := uow.Campaigns.Get(context.Background(), "0xdead")
		got = c
		return err
	})
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestCampaignRepoGetFound(t *testing.T) {
	s, mock := newMockStore(t)
	cols := []string{"address", "factory_address", "creator_address", "goal_wei", "deadline_ts",
		"cid", "status", "total_raised_wei", "withdrawn", "withdrawn_amount_wei", "created_at", "updated_at"}
	rows := sqlmock.NewRows(cols).AddRow("0xcamp", "0xfactory", "0xcreator", "1000", int64(1999999999),
		nil, "ACTIVE", "500", false, nil, nowVal, nowVal)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM campaigns WHERE address = \\$1").
		WithArgs("0xcamp").
		WillReturnRows(rows)
	mock.ExpectCommit()

	var got *Campaign
	err := s.WithUnitOfWork(context.Background(), func(uow *UnitOfWork) error {
		c, err := uow.Campaigns.Get(context.Background(), "0xcamp")
		got = c
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "500", got.TotalRaisedWei)
	require.Equal(t, StatusActive, got.Status)
}

func TestSyncStateRepoReadDefaultsWhenMissing(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM sync_state WHERE chain_id = \\$1").
		WithArgs(int64(31337)).
		WillReturnRows(sqlmock.NewRows([]string{"chain_id"}))
	mock.ExpectCommit()

	var got *SyncState
	err := s.WithUnitOfWork(context.Background(), func(uow *UnitOfWork) error {
		st, err := uow.SyncStates.Read(context.Background(), 31337)
		got = st
		return err
	})
	require.NoError(t, err)
	require.Equal(t, uint64(0), got.LastBlock)
	require.Nil(t, got.LastBlockHash)
}

func TestContributionRepoAddRefundNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE contributions").
		WithArgs("0xcamp", "0xdonor", "100").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.WithUnitOfWork(context.Background(), func(uow *UnitOfWork) error {
		return uow.Contributions.AddRefund(context.Background(), "0xcamp", "0xdonor", "100")
	})
	require.ErrorIs(t, err, ErrContributionNotFound)
}

func TestCheckTablesExistReportsFirstMissingTable(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT to_regclass").WillReturnRows(
		sqlmock.NewRows([]string{"to_regclass"}).AddRow(true))
	mock.ExpectQuery("SELECT to_regclass").WillReturnRows(
		sqlmock.NewRows([]string{"to_regclass"}).AddRow(false))

	err := s.CheckTablesExist(context.Background())
	require.ErrorContains(t, err, requiredTables[1])
	require.ErrorContains(t, err, "run migrations")
}
