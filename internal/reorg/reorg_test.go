package reorg

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/cfchain/indexer/internal/chain"
	"github.com/cfchain/indexer/internal/cursor"
	"github.com/cfchain/indexer/internal/store"
	"github.com/cfchain/indexer/internal/xlog"
)

type fakeChain struct {
	hashes map[uint64]common.Hash
}

func (f *fakeChain) LatestConfirmedBlock(ctx context.Context) (uint64, error) { return 0, nil }
func (f *fakeChain) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	return 0, nil
}
func (f *fakeChain) GetLogs(ctx context.Context, filter chain.LogFilter) ([]types.Log, error) {
	return nil, nil
}
func (f *fakeChain) Close() {}
func (f *fakeChain) BlockHash(ctx context.Context, number uint64) (common.Hash, error) {
	return f.hashes[number], nil
}

func newMockCursor(t *testing.T) (*cursor.Cursor, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return cursor.New(store.NewForTest(db), 31337), mock
}

func TestCheckAndHandleNoopWhenCursorUnset(t *testing.T) {
	cur, mock := newMockCursor(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM sync_state").
		WillReturnRows(sqlmock.NewRows([]string{"chain_id"}))
	mock.ExpectCommit()

	d := New(&fakeChain{}, cur, nil, 31337, 50, xlog.New("error"))
	handled, err := d.CheckAndHandle(context.Background())
	require.NoError(t, err)
	require.False(t, handled)
}

func TestCheckAndHandleNoopWhenHashMatches(t *testing.T) {
	cur, mock := newMockCursor(t)
	hash100 := common.HexToHash("0xaa11")
	storedHash := strings.ToUpper(hash100.Hex())

	mock.ExpectBegin()
	rows := sqlmock.NewRows([]string{"chain_id", "last_block", "last_block_hash", "updated_at"}).
		AddRow(int64(31337), uint64(100), storedHash, time.Now())
	mock.ExpectQuery("SELECT (.+) FROM sync_state").WillReturnRows(rows)
	mock.ExpectCommit()

	fc := &fakeChain{hashes: map[uint64]common.Hash{100: hash100}}
	d := New(fc, cur, nil, 31337, 50, xlog.New("error"))
	handled, err := d.CheckAndHandle(context.Background())
	require.NoError(t, err)
	require.False(t, handled)
}
