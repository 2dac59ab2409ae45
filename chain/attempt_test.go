package chain

import (
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestBufferedGasLimit(t *testing.T) {
	tests := []struct {
		name     string
		estimate uint64
		buffer   int64
		want     uint64
	}{
		{name: "twenty percent buffer", estimate: 50_000, buffer: 20, want: 60_000},
		{name: "zero buffer passes estimate through", estimate: 21_000, buffer: 0, want: 21_000},
		{name: "floors fractional results", estimate: 99_999, buffer: 20, want: 119_998}, // 119998.8 floored
		{name: "small estimate", estimate: 1, buffer: 20, want: 1}, // 1.2 floored
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, bufferedGasLimit(tt.estimate, tt.buffer))
		})
	}
}

func TestTransferAttemptHasHandle(t *testing.T) {
	attempt := &TransferAttempt{Outcome: OutcomePending}
	assert.False(t, attempt.HasHandle())

	attempt.TxHash = ethcommon.HexToHash("0xabcdef")
	assert.True(t, attempt.HasHandle())
}
