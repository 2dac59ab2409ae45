package listener

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karollnt/goldstory-backend/db"
	"github.com/karollnt/goldstory-backend/engine"
	"github.com/karollnt/goldstory-backend/store"
)

var (
	testAsset    = ethcommon.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	testReceiver = ethcommon.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	testSender   = ethcommon.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
)

type fakeReader struct {
	latest    uint64
	logs      []types.Log
	lastQuery ethereum.FilterQuery
}

func (f *fakeReader) LatestBlock(ctx context.Context) (uint64, error) {
	return f.latest, nil
}

func (f *fakeReader) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	f.lastQuery = query
	return f.logs, nil
}

type fakeSink struct {
	mu       sync.Mutex
	payments []engine.IncomingPayment
}

func (f *fakeSink) Submit(ctx context.Context, payment engine.IncomingPayment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments = append(f.payments, payment)
}

func transferLog(from ethcommon.Address, amount *big.Int, block uint64) types.Log {
	return types.Log{
		Address: testAsset,
		Topics: []ethcommon.Hash{
			transferTopic,
			addressTopic(from),
			addressTopic(testReceiver),
		},
		Data:        ethcommon.LeftPadBytes(amount.Bytes(), 32),
		BlockNumber: block,
		TxHash:      ethcommon.HexToHash("0x01"),
	}
}

func TestPollDetectsIncomingPayment(t *testing.T) {
	reader := &fakeReader{
		latest: 110,
		logs:   []types.Log{transferLog(testSender, big.NewInt(1_000_000_000), 105)},
	}
	sink := &fakeSink{}

	l := New(reader, sink, nil, testAsset, testReceiver, time.Second, zerolog.Nop())
	next, err := l.poll(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(110), next)

	require.Len(t, sink.payments, 1)
	payment := sink.payments[0]
	assert.Equal(t, testSender, payment.Payer)
	assert.Equal(t, big.NewInt(1_000_000_000), payment.AmountRaw)
	assert.Equal(t, uint64(105), payment.BlockNumber)

	// The filter matches Transfer events of the watched asset whose
	// recipient topic is the receiving account.
	assert.Equal(t, []ethcommon.Address{testAsset}, reader.lastQuery.Addresses)
	require.Len(t, reader.lastQuery.Topics, 3)
	assert.Equal(t, transferTopic, reader.lastQuery.Topics[0][0])
	assert.Nil(t, reader.lastQuery.Topics[1])
	assert.Equal(t, addressTopic(testReceiver), reader.lastQuery.Topics[2][0])
	assert.Equal(t, big.NewInt(101), reader.lastQuery.FromBlock)
}

func TestPollIgnoresZeroValueAndRemovedLogs(t *testing.T) {
	removed := transferLog(testSender, big.NewInt(5), 105)
	removed.Removed = true

	reader := &fakeReader{
		latest: 110,
		logs: []types.Log{
			transferLog(testSender, big.NewInt(0), 104),
			removed,
		},
	}
	sink := &fakeSink{}

	l := New(reader, sink, nil, testAsset, testReceiver, time.Second, zerolog.Nop())
	_, err := l.poll(context.Background(), 100)
	require.NoError(t, err)
	assert.Empty(t, sink.payments)
}

func TestPollNoNewBlocks(t *testing.T) {
	reader := &fakeReader{latest: 100}
	sink := &fakeSink{}

	l := New(reader, sink, nil, testAsset, testReceiver, time.Second, zerolog.Nop())
	next, err := l.poll(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), next)
	assert.Empty(t, sink.payments)
}

func TestPollCapsBlockSpan(t *testing.T) {
	reader := &fakeReader{latest: 10_000}
	sink := &fakeSink{}

	l := New(reader, sink, nil, testAsset, testReceiver, time.Second, zerolog.Nop())
	next, err := l.poll(context.Background(), 100)
	require.NoError(t, err)

	assert.Equal(t, uint64(100+maxBlockSpan), next)
	assert.Equal(t, big.NewInt(101), reader.lastQuery.FromBlock)
	assert.Equal(t, big.NewInt(int64(100+maxBlockSpan)), reader.lastQuery.ToBlock)
}

func TestLoadCursorFailsOnDatabaseError(t *testing.T) {
	database, err := db.OpenInMemoryDB(true)
	require.NoError(t, err)
	require.NoError(t, database.Close())

	reader := &fakeReader{latest: 500}
	l := New(reader, &fakeSink{}, database, testAsset, testReceiver, time.Second, zerolog.Nop())

	// A broken cursor store must stop startup, not silently reseed at the
	// chain head and skip the blocks since the last run.
	_, err = l.loadCursor(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listener cursor")
}

func TestCursorPersistsAcrossRestarts(t *testing.T) {
	database, err := db.OpenInMemoryDB(true)
	require.NoError(t, err)
	defer database.Close()

	reader := &fakeReader{latest: 500}
	sink := &fakeSink{}

	l := New(reader, sink, database, testAsset, testReceiver, time.Second, zerolog.Nop())

	// First start seeds the cursor at the chain head.
	cursor, err := l.loadCursor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(500), cursor)

	reader.latest = 510
	next, err := l.poll(context.Background(), cursor)
	require.NoError(t, err)
	assert.Equal(t, uint64(510), next)

	// A fresh listener over the same database resumes from the saved block.
	restarted := New(reader, sink, database, testAsset, testReceiver, time.Second, zerolog.Nop())
	cursor, err = restarted.loadCursor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(510), cursor)

	var row store.ListenerCursor
	require.NoError(t, database.Client().Where("asset = ?", testAsset.Hex()).First(&row).Error)
	assert.Equal(t, uint64(510), row.LastBlock)
}
