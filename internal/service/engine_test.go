package service

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mlabs-tech/cryptarena-svm/internal/domain"
)

// engine bundles the full service stack over in-memory stores for tests.
type engine struct {
	protocol  *memProtocol
	arenas    *memArenas
	entries   *memEntries
	whitelist *memWhitelist
	ledger    *memLedger
	audit     *memAudit
	locks     *memLocks
	bus       *memBus
	oracle    *fakeOracle

	protocolSvc *ProtocolService
	entrySvc    *EntryService
	roundSvc    *RoundService
	settleSvc   *SettlementService
}

func testSeed() domain.ProtocolState {
	return domain.ProtocolState{
		Admin:          "admin",
		FeeBps:         1000,
		Duration:       time.Hour,
		MinPlayers:     2,
		MaxPlayers:     4,
		MaxPerAsset:    2,
		CurrentArenaID: 1,
	}
}

func newEngine(t *testing.T, seed domain.ProtocolState) *engine {
	t.Helper()

	e := &engine{
		protocol:  &memProtocol{},
		arenas:    newMemArenas(),
		entries:   newMemEntries(),
		whitelist: newMemWhitelist(),
		ledger:    newMemLedger(),
		audit:     &memAudit{},
		locks:     newMemLocks(),
		bus:       newMemBus(),
		oracle:    newFakeOracle(),
	}
	logger := slog.New(slog.DiscardHandler)

	require.NoError(t, e.protocol.Init(context.Background(), seed))

	e.protocolSvc = NewProtocolService(e.protocol, e.whitelist, e.ledger, e.audit, logger)
	e.entrySvc = NewEntryService(
		e.protocol, e.arenas, e.entries, e.whitelist, e.oracle, e.ledger,
		e.locks, e.bus, e.audit, logger,
		EntryOptions{OracleMaxAge: time.Minute},
	)
	e.roundSvc = NewRoundService(
		e.protocol, e.arenas, e.whitelist, e.oracle,
		e.locks, e.bus, e.audit, logger,
		RoundOptions{OracleMaxAge: time.Minute},
	)
	e.settleSvc = NewSettlementService(
		e.arenas, e.locks, e.bus, e.audit, logger, domain.PrecisionBps,
	)

	// Three whitelisted assets with distinct oracle feeds.
	for i := range 3 {
		idx := domain.AssetIndex(i)
		require.NoError(t, e.whitelist.Upsert(context.Background(), domain.WhitelistedAsset{
			Index:  idx,
			Symbol: fmt.Sprintf("TOK%d", i),
			FeedID: testFeed(idx),
			Active: true,
		}))
	}
	return e
}

func testFeed(asset domain.AssetIndex) string {
	return fmt.Sprintf("feed-%d", asset)
}

// payouts builds a PayoutService bound to the given scheme over the engine's
// stores.
func (e *engine) payouts(scheme domain.RewardScheme) *PayoutService {
	return NewPayoutService(
		e.protocol, e.arenas, e.entries, e.ledger,
		e.locks, e.bus, e.audit, slog.New(slog.DiscardHandler), scheme,
	)
}

// fund credits a participant's ledger balance.
func (e *engine) fund(t *testing.T, participant string, amount uint64) {
	t.Helper()
	require.NoError(t, e.ledger.Deposit(context.Background(), participant, amount))
}

// enter funds and admits a participant with a declared value (band disabled).
func (e *engine) enter(t *testing.T, participant string, asset domain.AssetIndex, value uint64) domain.Entry {
	t.Helper()
	e.fund(t, participant, value)
	entry, err := e.entrySvc.Enter(context.Background(), participant, asset, value, value)
	require.NoError(t, err)
	return entry
}

// activate drives an arena from ready to active by capturing start prices.
func (e *engine) activate(t *testing.T, arenaID uint64, startPrices map[domain.AssetIndex]uint64) {
	t.Helper()
	for asset, price := range startPrices {
		e.oracle.setPrice(testFeed(asset), price)
	}
	require.NoError(t, e.roundSvc.CaptureStartPrices(context.Background(), arenaID))

	arena, err := e.arenas.Get(context.Background(), arenaID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, arena.Status)
}

// expire rewinds an active arena's window so end prices become capturable.
func (e *engine) expire(t *testing.T, arenaID uint64) {
	t.Helper()
	arena, err := e.arenas.Get(context.Background(), arenaID)
	require.NoError(t, err)
	arena.EndsAt = time.Now().UTC().Add(-time.Second)
	require.NoError(t, e.arenas.Update(context.Background(), arena))
}

// closeOut expires the window and captures end prices.
func (e *engine) closeOut(t *testing.T, arenaID uint64, endPrices map[domain.AssetIndex]uint64) {
	t.Helper()
	e.expire(t, arenaID)
	for asset, price := range endPrices {
		e.oracle.setPrice(testFeed(asset), price)
	}
	require.NoError(t, e.roundSvc.CaptureEndPrices(context.Background(), arenaID))
}

// settle runs settlement and returns the terminal arena.
func (e *engine) settle(t *testing.T, arenaID uint64) domain.Arena {
	t.Helper()
	arena, err := e.settleSvc.Settle(context.Background(), arenaID)
	require.NoError(t, err)
	return arena
}

func (e *engine) balance(t *testing.T, account string) uint64 {
	t.Helper()
	bal, err := e.ledger.Balance(context.Background(), account)
	require.NoError(t, err)
	return bal
}
