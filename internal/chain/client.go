// Package chain wraps go-ethereum's ethclient/rpc JSON-RPC client with
// the four chain operations the indexer needs, retrying transient transport
// errors with exponential backoff while surfacing application-level
// errors (bad block number, filter too large) untouched, per spec.md §4.1.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/cfchain/indexer/internal/xlog"
)

// ErrChainUnavailable wraps a transport failure that survived all retries.
var ErrChainUnavailable = errors.New("chain: unavailable after retries")

// LogFilter mirrors spec.md's {fromBlock, toBlock, address, topics:[topic0]}
// filter shape. Address is nil to scan every address in range (see the
// producer's same-batch discovery strategy in SPEC_FULL.md §3.6).
type LogFilter struct {
	Address   *common.Address
	FromBlock uint64
	ToBlock   uint64
	Topic0    *common.Hash
}

// Client is the chain access surface the rest of the indexer depends on.
type Client interface {
	LatestConfirmedBlock(ctx context.Context) (uint64, error)
	BlockHash(ctx context.Context, number uint64) (common.Hash, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	GetLogs(ctx context.Context, f LogFilter) ([]types.Log, error)
	Close()
}

type client struct {
	eth           *ethclient.Client
	confirmations uint64
	maxRetries    uint64
	log           xlog.Logger
}

// Dial connects to rpcURL and returns a retrying Client.
func Dial(ctx context.Context, rpcURL string, confirmations uint64, maxRetries uint64, log xlog.Logger) (Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}
	return &client{eth: eth, confirmations: confirmations, maxRetries: maxRetries, log: log}, nil
}

func (c *client) Close() { c.eth.Close() }

func (c *client) LatestConfirmedBlock(ctx context.Context) (uint64, error) {
	var tip uint64
	err := c.withRetry(ctx, "eth_blockNumber", func() error {
		n, err := c.eth.BlockNumber(ctx)
		if err != nil {
			return err
		}
		tip = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	if tip < c.confirmations {
		return 0, nil
	}
	return tip - c.confirmations, nil
}

func (c *client) BlockHash(ctx context.Context, number uint64) (common.Hash, error) {
	var hash common.Hash
	err := c.withRetry(ctx, "eth_getBlockByNumber", func() error {
		hdr, err := c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		if err != nil {
			return err
		}
		hash = hdr.Hash()
		return nil
	})
	return hash, err
}

func (c *client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	var ts uint64
	err := c.withRetry(ctx, "eth_getBlockByNumber", func() error {
		hdr, err := c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		if err != nil {
			return err
		}
		ts = hdr.Time
		return nil
	})
	return ts, err
}

func (c *client) GetLogs(ctx context.Context, f LogFilter) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(f.FromBlock),
		ToBlock:   new(big.Int).SetUint64(f.ToBlock),
	}
	if f.Address != nil {
		query.Addresses = []common.Address{*f.Address}
	}
	if f.Topic0 != nil {
		query.Topics = [][]common.Hash{{*f.Topic0}}
	}

	var logs []types.Log
	err := c.withRetry(ctx, "eth_getLogs", func() error {
		ls, err := c.eth.FilterLogs(ctx, query)
		if err != nil {
			if isApplicationError(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		logs = ls
		return nil
	})
	return logs, err
}

// withRetry retries transient transport errors with exponential backoff,
// up to maxRetries retries after the first attempt. Application-level errors (wrapped in
// backoff.Permanent by callers, or already detected as such) are
// returned immediately without retrying.
func (c *client) withRetry(ctx context.Context, op string, fn func() error) error {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries)
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return err
		}
		if isApplicationError(err) {
			return backoff.Permanent(err)
		}
		c.log.Warn("rpc call failed, retrying", "op", op, "attempt", attempt, "err", err)
		return err
	}, backoff.WithContext(b, ctx))

	if err == nil {
		return nil
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return fmt.Errorf("chain: %s: %w", op, errors.Unwrap(perm))
	}
	return fmt.Errorf("%w: %s: %v", ErrChainUnavailable, op, err)
}

// isApplicationError distinguishes application-level RPC errors (bad
// block number, filter too large — not worth retrying) from transient
// transport failures (connection refused, timeouts, 5xx).
func isApplicationError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return false
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode >= 500 {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, transient := range []string{"connection refused", "timeout", "eof", "broken pipe", "reset by peer", "no such host", "temporarily unavailable"} {
		if strings.Contains(msg, transient) {
			return false
		}
	}
	// Anything else (e.g. "query returned more than X results", "invalid
	// block range", JSON-RPC -32000 class errors) is treated as an
	// application error: the same request would fail again identically.
	return true
}

// BatchRanges splits [from, to] into contiguous batches of at most size
// blocks, ascending.
func BatchRanges(from, to, size uint64) [][2]uint64 {
	if size == 0 {
		size = 1
	}
	var out [][2]uint64
	for start := from; start <= to; start += size {
		end := start + size - 1
		if end > to {
			end = to
		}
		out = append(out, [2]uint64{start, end})
		if end == to {
			break
		}
	}
	return out
}
