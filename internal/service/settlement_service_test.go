package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlabs-tech/cryptarena-svm/internal/domain"
)

// threePlayerClosing drives three single-asset entries through to the closing
// phase with the given start and end prices.
func threePlayerClosing(t *testing.T, start, end map[domain.AssetIndex]uint64) *engine {
	t.Helper()
	seed := testSeed()
	seed.MaxPlayers = 3
	seed.MaxPerAsset = 1
	e := newEngine(t, seed)

	e.enter(t, "alice", 0, 1_000_000)
	e.enter(t, "bob", 1, 1_000_000)
	e.enter(t, "carol", 2, 1_000_000)

	e.activate(t, 1, start)
	e.closeOut(t, 1, end)
	return e
}

func TestSettlePicksStrictMaxMovement(t *testing.T) {
	e := threePlayerClosing(t,
		map[domain.AssetIndex]uint64{0: 100_000, 1: 100_000, 2: 100_000},
		map[domain.AssetIndex]uint64{0: 105_000, 1: 110_000, 2: 95_000},
	)

	arena := e.settle(t, 1)
	assert.Equal(t, domain.StatusSettled, arena.Status)
	assert.Equal(t, domain.AssetIndex(1), arena.WinningAsset)
	assert.False(t, arena.SettledAt.IsZero())

	stats, err := e.arenas.ListAssetStats(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, stats, 3)
	assert.Equal(t, int64(500), stats[0].Movement) // +5% in basis points
	assert.Equal(t, int64(1000), stats[1].Movement)
	assert.Equal(t, int64(-500), stats[2].Movement)
	for _, st := range stats {
		assert.True(t, st.MovementSet)
	}
}

func TestSettleLeastNegativeWins(t *testing.T) {
	// All assets fall; the smallest loss is still the strict maximum.
	e := threePlayerClosing(t,
		map[domain.AssetIndex]uint64{0: 100_000, 1: 100_000, 2: 100_000},
		map[domain.AssetIndex]uint64{0: 90_000, 1: 95_000, 2: 80_000},
	)

	arena := e.settle(t, 1)
	assert.Equal(t, domain.StatusSettled, arena.Status)
	assert.Equal(t, domain.AssetIndex(1), arena.WinningAsset)
}

func TestSettleTieCancels(t *testing.T) {
	// Assets 0 and 1 both move +10% exactly.
	e := threePlayerClosing(t,
		map[domain.AssetIndex]uint64{0: 100_000, 1: 200_000, 2: 100_000},
		map[domain.AssetIndex]uint64{0: 110_000, 1: 220_000, 2: 95_000},
	)

	arena := e.settle(t, 1)
	assert.Equal(t, domain.StatusCancelled, arena.Status)
	assert.Equal(t, domain.AssetNone, arena.WinningAsset)
	assert.False(t, arena.SettledAt.IsZero())
}

func TestSettleThreeWayTieCancels(t *testing.T) {
	// Identical relative movement on every asset.
	e := threePlayerClosing(t,
		map[domain.AssetIndex]uint64{0: 100_000, 1: 200_000, 2: 400_000},
		map[domain.AssetIndex]uint64{0: 101_000, 1: 202_000, 2: 404_000},
	)

	arena := e.settle(t, 1)
	assert.Equal(t, domain.StatusCancelled, arena.Status)
	assert.Equal(t, domain.AssetNone, arena.WinningAsset)
}

func TestSettleRequiresClosing(t *testing.T) {
	e := newEngine(t, testSeed())
	e.enter(t, "alice", 0, 1_000_000)
	e.enter(t, "bob", 1, 1_000_000)
	require.NoError(t, e.roundSvc.Start(context.Background(), "admin", 1))
	e.activate(t, 1, map[domain.AssetIndex]uint64{0: 100_000, 1: 200_000})

	_, err := e.settleSvc.Settle(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrArenaNotClosing)
}

func TestSettleMissingEndPrice(t *testing.T) {
	e := newEngine(t, testSeed())
	e.enter(t, "alice", 0, 1_000_000)
	e.enter(t, "bob", 1, 1_000_000)
	require.NoError(t, e.roundSvc.Start(context.Background(), "admin", 1))
	e.activate(t, 1, map[domain.AssetIndex]uint64{0: 100_000, 1: 200_000})

	// One feed goes dark: the end capture is partial and settlement must
	// refuse until the price arrives.
	e.expire(t, 1)
	e.oracle.quotes = map[string]domain.PriceQuote{}
	e.oracle.setPrice(testFeed(0), 110_000)
	require.NoError(t, e.roundSvc.CaptureEndPrices(context.Background(), 1))

	_, err := e.settleSvc.Settle(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrMissingPriceData)

	arena, err := e.arenas.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosing, arena.Status)

	// The feed recovers; settlement then succeeds.
	e.oracle.setPrice(testFeed(1), 190_000)
	require.NoError(t, e.roundSvc.CaptureEndPrices(context.Background(), 1))
	arena = e.settle(t, 1)
	assert.Equal(t, domain.StatusSettled, arena.Status)
	assert.Equal(t, domain.AssetIndex(0), arena.WinningAsset)
}

func TestSettleTerminalIsIdempotent(t *testing.T) {
	e := threePlayerClosing(t,
		map[domain.AssetIndex]uint64{0: 100_000, 1: 100_000, 2: 100_000},
		map[domain.AssetIndex]uint64{0: 105_000, 1: 110_000, 2: 95_000},
	)

	first := e.settle(t, 1)
	second := e.settle(t, 1)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.WinningAsset, second.WinningAsset)
}

func TestSettleMovesNoFunds(t *testing.T) {
	e := threePlayerClosing(t,
		map[domain.AssetIndex]uint64{0: 100_000, 1: 100_000, 2: 100_000},
		map[domain.AssetIndex]uint64{0: 105_000, 1: 110_000, 2: 95_000},
	)

	before := e.balance(t, domain.EscrowAccount(1))
	e.settle(t, 1)
	assert.Equal(t, before, e.balance(t, domain.EscrowAccount(1)))
	assert.Equal(t, uint64(0), e.balance(t, domain.TreasuryAccount))
}
