package reconcile

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/cfchain/indexer/internal/store"
	"github.com/cfchain/indexer/internal/xlog"
)

func TestHandleMarksExpiredCampaignsFailed(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	s := store.NewForTest(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE campaigns").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	h := New(xlog.New("error"))
	err = s.WithUnitOfWork(context.Background(), func(uow *store.UnitOfWork) error {
		return h.Handle(context.Background(), uow)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleIsIdempotentWhenNothingExpired(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	s := store.NewForTest(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE campaigns").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	h := New(xlog.New("error"))
	err = s.WithUnitOfWork(context.Background(), func(uow *store.UnitOfWork) error {
		return h.Handle(context.Background(), uow)
	})
	require.NoError(t, err)
}
