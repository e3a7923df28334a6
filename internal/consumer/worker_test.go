package consumer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/cfchain/indexer/internal/bus"
	"github.com/cfchain/indexer/internal/reconcile"
	"github.com/cfchain/indexer/internal/rollback"
	"github.com/cfchain/indexer/internal/stateupdate"
	"github.com/cfchain/indexer/internal/store"
	"github.com/cfchain/indexer/internal/xlog"
)

func newTestWorker(t *testing.T) (*Worker, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := store.NewForTest(db)
	log := xlog.New("error")
	updater := stateupdate.New(log)
	w := New(s, updater, rollback.New(updater, log), reconcile.New(log), log)
	return w, mock
}

func eventMessage() *bus.EventMessage {
	return bus.NewEventMessage(bus.EventDonationReceived, 31337, 100, "0xblockhash", "0xtxhash", 2,
		"0xcampaign", 1700000000, map[string]interface{}{
			"campaign": "0xcampaign", "donor": "0xdonor", "amount": "10", "newTotalRaised": "10",
		}, time.Now())
}

func marshalEvent(t *testing.T, m *bus.EventMessage) ([]byte, error) {
	t.Helper()
	return json.Marshal(m)
}

func TestHandleEventAcksOnDuplicateInsert(t *testing.T) {
	w, mock := newTestWorker(t)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO events").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	body, err := marshalEvent(t, eventMessage())
	require.NoError(t, err)

	outcome := w.Handle(context.Background(), body)
	require.Equal(t, bus.OutcomeAck, outcome)
}

func TestHandleEventRetriesOnCampaignGap(t *testing.T) {
	w, mock := newTestWorker(t)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO events").WillReturnError(&pq.Error{Code: "23503", Constraint: "events_address_fkey"})
	mock.ExpectRollback()

	body, err := marshalEvent(t, eventMessage())
	require.NoError(t, err)

	outcome := w.Handle(context.Background(), body)
	require.Equal(t, bus.OutcomeRetryable, outcome)
}

func TestHandleEventFatalWhenChainNotSeeded(t *testing.T) {
	w, mock := newTestWorker(t)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO events").WillReturnError(&pq.Error{Code: "23503", Constraint: "events_chain_id_fkey"})
	mock.ExpectRollback()

	body, err := marshalEvent(t, eventMessage())
	require.NoError(t, err)

	outcome := w.Handle(context.Background(), body)
	require.Equal(t, bus.OutcomeFatal, outcome)
}

func TestHandleMalformedBodyIsFatal(t *testing.T) {
	w, _ := newTestWorker(t)
	outcome := w.Handle(context.Background(), []byte("not json"))
	require.Equal(t, bus.OutcomeFatal, outcome)
}
