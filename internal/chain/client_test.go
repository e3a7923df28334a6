package chain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBatchRanges(t *testing.T) {
	cases := []struct {
		name           string
		from, to, size uint64
		want           [][2]uint64
	}{
		{"exact multiple", 0, 9, 5, [][2]uint64{{0, 4}, {5, 9}}},
		{"remainder", 0, 7, 5, [][2]uint64{{0, 4}, {5, 7}}},
		{"single block", 10, 10, 5, [][2]uint64{{10, 10}}},
		{"size larger than range", 0, 3, 100, [][2]uint64{{0, 3}}},
		{"zero size treated as one", 0, 2, 0, [][2]uint64{{0, 0}, {1, 1}, {2, 2}}},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, BatchRanges(tt.from, tt.to, tt.size))
		})
	}
}

func TestIsApplicationError(t *testing.T) {
	require.False(t, isApplicationError(nil))
	require.False(t, isApplicationError(errors.New("connection refused")))
	require.False(t, isApplicationError(errors.New("i/o timeout")))
	require.True(t, isApplicationError(errors.New("query returned more than 10000 results")))
	require.True(t, isApplicationError(errors.New("invalid block range params")))
}
