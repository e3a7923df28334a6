package stateupdate

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/cfchain/indexer/internal/bus"
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

func TestApplyCampaignCreatedUpserts(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO campaigns").
		WithArgs("0xcamp", "0xfactory", "0xcreator", "1000", int64(1999999999), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	u := New(xlog.New("error"))
	data := map[string]interface{}{
		"factory": "0xfactory", "campaign": "0xcamp", "creator": "0xcreator",
		"goal": "1000", "deadline": "1999999999", "cid": "",
	}
	err := s.WithUnitOfWork(context.Background(), func(uow *store.UnitOfWork) error {
		return u.Apply(context.Background(), uow, bus.EventCampaignCreated, data)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyCampaignCreatedRejectsUnparsableDeadline(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	u := New(xlog.New("error"))
	data := map[string]interface{}{"deadline": "not-a-number"}
	err := s.WithUnitOfWork(context.Background(), func(uow *store.UnitOfWork) error {
		return u.Apply(context.Background(), uow, bus.EventCampaignCreated, data)
	})
	require.Error(t, err)
}

func TestApplyDonationReceivedDropsWhenCampaignUnknown(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM campaigns WHERE address = \\$1").
		WithArgs("0xcamp").
		WillReturnRows(sqlmock.NewRows([]string{"address"}))
	mock.ExpectCommit()

	u := New(xlog.New("error"))
	data := map[string]interface{}{"campaign": "0xcamp", "donor": "0xdonor", "amount": "100", "newTotalRaised": "100"}
	err := s.WithUnitOfWork(context.Background(), func(uow *store.UnitOfWork) error {
		return u.Apply(context.Background(), uow, bus.EventDonationReceived, data)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyRefundedDropsWhenContributionUnknown(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE contributions").
		WithArgs("0xcamp", "0xdonor", "50").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	u := New(xlog.New("error"))
	data := map[string]interface{}{"campaign": "0xcamp", "donor": "0xdonor", "amount": "50"}
	err := s.WithUnitOfWork(context.Background(), func(uow *store.UnitOfWork) error {
		return u.Apply(context.Background(), uow, bus.EventRefunded, data)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyUnknownEventTypeIsNoop(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	u := New(xlog.New("error"))
	err := s.WithUnitOfWork(context.Background(), func(uow *store.UnitOfWork) error {
		return u.Apply(context.Background(), uow, bus.EventType("Bogus"), nil)
	})
	require.NoError(t, err)
}
