package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlabs-tech/cryptarena-svm/internal/domain"
)

func TestStartRequiresAdmin(t *testing.T) {
	e := newEngine(t, testSeed())
	e.enter(t, "alice", 0, 1_000_000)
	e.enter(t, "bob", 1, 1_000_000)

	err := e.roundSvc.Start(context.Background(), "mallory", 1)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestStartRequiresMinPlayers(t *testing.T) {
	e := newEngine(t, testSeed()) // MinPlayers 2
	e.enter(t, "alice", 0, 1_000_000)

	err := e.roundSvc.Start(context.Background(), "admin", 1)
	assert.ErrorIs(t, err, domain.ErrNotEnoughPlayers)
}

func TestStartRotatesCounter(t *testing.T) {
	e := newEngine(t, testSeed())
	e.enter(t, "alice", 0, 1_000_000)
	e.enter(t, "bob", 1, 1_000_000)

	require.NoError(t, e.roundSvc.Start(context.Background(), "admin", 1))

	arena, err := e.arenas.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, arena.Status)

	st, err := e.protocol.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), st.CurrentArenaID)
}

func TestCaptureStartActivatesArena(t *testing.T) {
	e := newEngine(t, testSeed())
	e.enter(t, "alice", 0, 1_000_000)
	e.enter(t, "bob", 1, 1_000_000)
	require.NoError(t, e.roundSvc.Start(context.Background(), "admin", 1))

	e.oracle.setPrice(testFeed(0), 100_000)
	e.oracle.setPrice(testFeed(1), 200_000)
	require.NoError(t, e.roundSvc.CaptureStartPrices(context.Background(), 1))

	arena, err := e.arenas.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, arena.Status)
	assert.Equal(t, uint8(2), arena.StartPrices)
	assert.False(t, arena.StartedAt.IsZero())
	assert.Equal(t, arena.StartedAt.Add(time.Hour), arena.EndsAt)

	stats, err := e.arenas.ListAssetStats(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, uint64(100_000), stats[0].StartPrice)
	assert.Equal(t, uint64(200_000), stats[1].StartPrice)
}

func TestCaptureStartCompletionEventOnSingleCall(t *testing.T) {
	e := newEngine(t, testSeed())
	e.enter(t, "alice", 0, 1_000_000)
	e.enter(t, "bob", 1, 1_000_000)
	require.NoError(t, e.roundSvc.Start(context.Background(), "admin", 1))

	e.oracle.setPrice(testFeed(0), 100_000)
	e.oracle.setPrice(testFeed(1), 200_000)
	require.NoError(t, e.roundSvc.CaptureStartPrices(context.Background(), 1))

	// The call that captures the last missing price must itself report the
	// side complete, not a later no-op repeat.
	var events []map[string]any
	for _, raw := range e.bus.messages["arenas"] {
		var evt map[string]any
		require.NoError(t, json.Unmarshal(raw, &evt))
		if evt["event"] == "start_prices_captured" {
			events = append(events, evt)
		}
	}
	require.Len(t, events, 1)
	assert.Equal(t, true, events[0]["complete"])
	assert.Equal(t, float64(2), events[0]["captured"])
}

func TestCaptureStartPartialKeepsStarting(t *testing.T) {
	e := newEngine(t, testSeed())
	e.enter(t, "alice", 0, 1_000_000)
	e.enter(t, "bob", 1, 1_000_000)
	require.NoError(t, e.roundSvc.Start(context.Background(), "admin", 1))

	// Only one of the two feeds answers; the arena must not activate.
	e.oracle.setPrice(testFeed(0), 100_000)
	require.NoError(t, e.roundSvc.CaptureStartPrices(context.Background(), 1))

	arena, err := e.arenas.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStarting, arena.Status)
	assert.Equal(t, uint8(1), arena.StartPrices)

	// The missing feed recovers and a repeat completes the capture.
	e.oracle.setPrice(testFeed(1), 200_000)
	require.NoError(t, e.roundSvc.CaptureStartPrices(context.Background(), 1))

	arena, err = e.arenas.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, arena.Status)
}

func TestCaptureStartRejectsOpenArena(t *testing.T) {
	e := newEngine(t, testSeed())
	e.enter(t, "alice", 0, 1_000_000)

	err := e.roundSvc.CaptureStartPrices(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrArenaNotReady)
}

func TestSetStartPriceAdminOnly(t *testing.T) {
	e := newEngine(t, testSeed())
	e.enter(t, "alice", 0, 1_000_000)
	e.enter(t, "bob", 1, 1_000_000)
	require.NoError(t, e.roundSvc.Start(context.Background(), "admin", 1))

	err := e.roundSvc.SetStartPrice(context.Background(), "mallory", 1, 0, 100_000)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, e.roundSvc.SetStartPrice(context.Background(), "admin", 1, 0, 100_000))
	require.NoError(t, e.roundSvc.SetStartPrice(context.Background(), "admin", 1, 1, 200_000))

	arena, err := e.arenas.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, arena.Status)
}

func TestSetStartPriceUnknownAsset(t *testing.T) {
	e := newEngine(t, testSeed())
	e.enter(t, "alice", 0, 1_000_000)
	e.enter(t, "bob", 1, 1_000_000)
	require.NoError(t, e.roundSvc.Start(context.Background(), "admin", 1))

	err := e.roundSvc.SetStartPrice(context.Background(), "admin", 1, 2, 100_000)
	assert.ErrorIs(t, err, domain.ErrAssetNotInArena)
}

func TestCaptureEndBeforeDeadline(t *testing.T) {
	e := newEngine(t, testSeed())
	e.enter(t, "alice", 0, 1_000_000)
	e.enter(t, "bob", 1, 1_000_000)
	require.NoError(t, e.roundSvc.Start(context.Background(), "admin", 1))
	e.activate(t, 1, map[domain.AssetIndex]uint64{0: 100_000, 1: 200_000})

	err := e.roundSvc.CaptureEndPrices(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrDurationNotComplete)
}

func TestCaptureEndRequiresActiveWindow(t *testing.T) {
	e := newEngine(t, testSeed())
	e.enter(t, "alice", 0, 1_000_000)
	e.enter(t, "bob", 1, 1_000_000)
	require.NoError(t, e.roundSvc.Start(context.Background(), "admin", 1))

	err := e.roundSvc.CaptureEndPrices(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrArenaNotActive)
}

func TestCaptureEndClosesArena(t *testing.T) {
	e := newEngine(t, testSeed())
	e.enter(t, "alice", 0, 1_000_000)
	e.enter(t, "bob", 1, 1_000_000)
	require.NoError(t, e.roundSvc.Start(context.Background(), "admin", 1))
	e.activate(t, 1, map[domain.AssetIndex]uint64{0: 100_000, 1: 200_000})

	e.closeOut(t, 1, map[domain.AssetIndex]uint64{0: 110_000, 1: 190_000})

	arena, err := e.arenas.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosing, arena.Status)
	assert.Equal(t, uint8(2), arena.EndPrices)
}
