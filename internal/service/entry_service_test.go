package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlabs-tech/cryptarena-svm/internal/domain"
)

func TestEnterCreatesArenaAndEscrowsValue(t *testing.T) {
	e := newEngine(t, testSeed())

	entry := e.enter(t, "alice", 0, 1_000_000)

	assert.Equal(t, uint64(1), entry.ArenaID)
	assert.Equal(t, uint8(0), entry.Slot)
	assert.Equal(t, uint64(1_000_000), entry.Value)

	arena, err := e.arenas.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, arena.Status)
	assert.Equal(t, uint8(1), arena.PlayerCount)
	assert.Equal(t, uint8(1), arena.AssetCount)
	assert.Equal(t, uint64(1_000_000), arena.TotalPool)

	assert.Equal(t, uint64(0), e.balance(t, "alice"))
	assert.Equal(t, uint64(1_000_000), e.balance(t, domain.EscrowAccount(1)))
}

func TestEnterPoolEqualsSumOfValues(t *testing.T) {
	e := newEngine(t, testSeed())

	e.enter(t, "alice", 0, 1_000_000)
	e.enter(t, "bob", 1, 2_500_000)
	e.enter(t, "carol", 2, 750_000)

	arena, err := e.arenas.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(4_250_000), arena.TotalPool)
	assert.Equal(t, arena.TotalPool, e.balance(t, domain.EscrowAccount(1)))

	entries, err := e.entries.ListByArena(context.Background(), 1)
	require.NoError(t, err)
	var sum uint64
	for _, en := range entries {
		sum += en.Value
	}
	assert.Equal(t, arena.TotalPool, sum)
}

func TestEnterRejectsUnlistedAsset(t *testing.T) {
	e := newEngine(t, testSeed())
	e.fund(t, "alice", 1_000_000)

	_, err := e.entrySvc.Enter(context.Background(), "alice", 9, 1_000_000, 1_000_000)
	assert.ErrorIs(t, err, domain.ErrAssetNotWhitelisted)

	// Nothing mutated: no arena was opened and the stake stayed put.
	_, err = e.arenas.Get(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, uint64(1_000_000), e.balance(t, "alice"))
}

func TestEnterRejectsInactiveAsset(t *testing.T) {
	e := newEngine(t, testSeed())
	require.NoError(t, e.whitelist.Deactivate(context.Background(), 0))
	e.fund(t, "alice", 1_000_000)

	_, err := e.entrySvc.Enter(context.Background(), "alice", 0, 1_000_000, 1_000_000)
	assert.ErrorIs(t, err, domain.ErrAssetNotWhitelisted)
}

func TestEnterRejectsWhenPaused(t *testing.T) {
	e := newEngine(t, testSeed())
	require.NoError(t, e.protocolSvc.Pause(context.Background(), "admin"))
	e.fund(t, "alice", 1_000_000)

	_, err := e.entrySvc.Enter(context.Background(), "alice", 0, 1_000_000, 1_000_000)
	assert.ErrorIs(t, err, domain.ErrProtocolPaused)
}

func TestEnterDuplicateRefundsStake(t *testing.T) {
	e := newEngine(t, testSeed())
	e.enter(t, "alice", 0, 1_000_000)

	e.fund(t, "alice", 500_000)
	_, err := e.entrySvc.Enter(context.Background(), "alice", 1, 500_000, 500_000)
	assert.ErrorIs(t, err, domain.ErrDuplicateEntry)

	// The second stake bounced back and the pool kept only the first value.
	assert.Equal(t, uint64(500_000), e.balance(t, "alice"))
	assert.Equal(t, uint64(1_000_000), e.balance(t, domain.EscrowAccount(1)))
}

func TestEnterAssetExclusive(t *testing.T) {
	seed := testSeed()
	seed.MaxPerAsset = 1
	e := newEngine(t, seed)

	e.enter(t, "alice", 0, 1_000_000)
	e.fund(t, "bob", 1_000_000)

	_, err := e.entrySvc.Enter(context.Background(), "bob", 0, 1_000_000, 1_000_000)
	assert.ErrorIs(t, err, domain.ErrAssetAlreadyTaken)
	assert.Equal(t, uint64(1_000_000), e.balance(t, "bob"))
}

func TestEnterAssetCapReached(t *testing.T) {
	e := newEngine(t, testSeed()) // MaxPerAsset 2

	e.enter(t, "alice", 0, 1_000_000)
	e.enter(t, "bob", 0, 1_000_000)
	e.fund(t, "carol", 1_000_000)

	_, err := e.entrySvc.Enter(context.Background(), "carol", 0, 1_000_000, 1_000_000)
	assert.ErrorIs(t, err, domain.ErrAssetCapReached)
}

func TestEnterInsufficientFunds(t *testing.T) {
	e := newEngine(t, testSeed())
	e.fund(t, "alice", 100)

	_, err := e.entrySvc.Enter(context.Background(), "alice", 0, 1_000_000, 1_000_000)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestEnterFillRotatesArena(t *testing.T) {
	seed := testSeed()
	seed.MaxPlayers = 2
	e := newEngine(t, seed)

	e.enter(t, "alice", 0, 1_000_000)
	e.enter(t, "bob", 1, 1_000_000)

	arena, err := e.arenas.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, arena.Status)

	st, err := e.protocol.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), st.CurrentArenaID)

	// The next entrant opens a fresh arena at slot zero.
	entry := e.enter(t, "carol", 0, 1_000_000)
	assert.Equal(t, uint64(2), entry.ArenaID)
	assert.Equal(t, uint8(0), entry.Slot)
}

func TestEnterFullArenaRejected(t *testing.T) {
	seed := testSeed()
	seed.MaxPlayers = 2
	e := newEngine(t, seed)

	e.enter(t, "alice", 0, 1_000_000)
	e.enter(t, "bob", 1, 1_000_000)

	// Force the counter back so the filled arena is addressed directly.
	st, err := e.protocol.Get(context.Background())
	require.NoError(t, err)
	st.CurrentArenaID = 1
	require.NoError(t, e.protocol.Update(context.Background(), st))

	e.fund(t, "carol", 1_000_000)
	_, err = e.entrySvc.Enter(context.Background(), "carol", 2, 1_000_000, 1_000_000)
	assert.ErrorIs(t, err, domain.ErrArenaNotAcceptingEntries)
}

func TestEnterUnwindsOnStatsFailure(t *testing.T) {
	e := newEngine(t, testSeed())
	e.enter(t, "alice", 0, 1_000_000)

	e.fund(t, "bob", 500_000)
	e.arenas.failUpsert = errStorage
	_, err := e.entrySvc.Enter(context.Background(), "bob", 1, 500_000, 500_000)
	require.ErrorIs(t, err, errStorage)

	// The stake bounced back and the half-written entry row is gone.
	assert.Equal(t, uint64(500_000), e.balance(t, "bob"))
	assert.Equal(t, uint64(1_000_000), e.balance(t, domain.EscrowAccount(1)))
	_, err = e.entries.Get(context.Background(), 1, "bob")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	arena, err := e.arenas.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), arena.PlayerCount)
	assert.Equal(t, uint64(1_000_000), arena.TotalPool)

	// A retry goes through cleanly.
	entry, err := e.entrySvc.Enter(context.Background(), "bob", 1, 500_000, 500_000)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), entry.Slot)
}

func TestEnterUnwindsOnArenaUpdateFailure(t *testing.T) {
	e := newEngine(t, testSeed())
	e.enter(t, "alice", 0, 1_000_000)

	e.fund(t, "bob", 500_000)
	e.arenas.failUpdate = errStorage
	_, err := e.entrySvc.Enter(context.Background(), "bob", 1, 500_000, 500_000)
	require.ErrorIs(t, err, errStorage)

	assert.Equal(t, uint64(500_000), e.balance(t, "bob"))
	assert.Equal(t, uint64(1_000_000), e.balance(t, domain.EscrowAccount(1)))
	_, err = e.entries.Get(context.Background(), 1, "bob")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// The per-asset counter rolled back with the rest.
	stats, err := e.arenas.GetAssetStats(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), stats.PlayerCount)

	entry, err := e.entrySvc.Enter(context.Background(), "bob", 1, 500_000, 500_000)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), entry.Slot)

	// The retry still counts as the asset's first representation.
	arena, err := e.arenas.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), arena.AssetCount)
}

func TestEnterChasesRotatedArena(t *testing.T) {
	seed := testSeed()
	seed.MaxPlayers = 2
	e := newEngine(t, seed)

	e.enter(t, "alice", 0, 1_000_000)
	e.fund(t, "carol", 1_000_000)

	// Between carol's protocol read and her lock acquisition, bob fills the
	// arena: it turns Ready and the counter rotates to the next one.
	e.locks.afterAcquire = func(string) {
		st, err := e.protocol.Get(context.Background())
		require.NoError(t, err)
		arena, err := e.arenas.Get(context.Background(), st.CurrentArenaID)
		require.NoError(t, err)
		arena.PlayerCount = 2
		arena.Status = domain.StatusReady
		require.NoError(t, e.arenas.Update(context.Background(), arena))
		st.CurrentArenaID++
		require.NoError(t, e.protocol.Update(context.Background(), st))
	}

	entry, err := e.entrySvc.Enter(context.Background(), "carol", 0, 1_000_000, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), entry.ArenaID)
	assert.Equal(t, uint8(0), entry.Slot)
}

func TestEnterBandValuation(t *testing.T) {
	seed := testSeed()
	seed.EntryMinValue = 10_000_000 // 10 units of account
	seed.EntryMaxValue = 20_000_000 // 20 units
	e := newEngine(t, seed)

	// Mantissa 50_000 * 1e8 at expo -8: one whole token is worth 50_000
	// units, so an amount of 300 (6-decimal) quotes to 15 units.
	e.oracle.setPrice(testFeed(0), 5_000_000_000_000)

	e.fund(t, "alice", 20_000_000)
	entry, err := e.entrySvc.Enter(context.Background(), "alice", 0, 300, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(15_000_000), entry.Value)
	assert.Equal(t, uint64(15_000_000), e.balance(t, domain.EscrowAccount(1)))
}

func TestEnterBandRejectsOutOfBounds(t *testing.T) {
	seed := testSeed()
	seed.EntryMinValue = 10_000_000
	seed.EntryMaxValue = 20_000_000
	e := newEngine(t, seed)

	e.oracle.setPrice(testFeed(0), 5_000_000_000_000)
	e.fund(t, "alice", 20_000_000)

	_, err := e.entrySvc.Enter(context.Background(), "alice", 0, 100, 0)
	assert.ErrorIs(t, err, domain.ErrEntryValueOutOfBounds)

	_, err = e.entrySvc.Enter(context.Background(), "alice", 0, 500, 0)
	assert.ErrorIs(t, err, domain.ErrEntryValueOutOfBounds)
}

func TestEnterRejectsZeroAmount(t *testing.T) {
	e := newEngine(t, testSeed())

	_, err := e.entrySvc.Enter(context.Background(), "alice", 0, 0, 1_000_000)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestEnterRejectsZeroDeclaredValue(t *testing.T) {
	e := newEngine(t, testSeed())
	e.fund(t, "alice", 1_000_000)

	_, err := e.entrySvc.Enter(context.Background(), "alice", 0, 1_000_000, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}
