package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mlabs-tech/cryptarena-svm/internal/domain"
)

// entryLockTTL bounds how long an arena's admission lock may be held by a
// crashed process before it expires.
const entryLockTTL = 10 * time.Second

// EntryOptions carries the deployment parameters the entry path needs beyond
// the mutable protocol state.
type EntryOptions struct {
	// OracleMaxAge is the freshness bound applied to entry-valuation quotes.
	OracleMaxAge time.Duration
	// FixedAmount is the required stake when the protocol's entry value band
	// is disabled; zero accepts any positive caller-supplied value.
	FixedAmount uint64
}

// EntryService admits participants into the current open arena. Admission
// for one arena is serialized behind a distributed lock so counter updates
// and capacity checks are read-modify-write atomic; entries into different
// arenas never contend.
type EntryService struct {
	protocol  domain.ProtocolStore
	arenas    domain.ArenaStore
	entries   domain.EntryStore
	whitelist domain.WhitelistStore
	oracle    domain.Oracle
	ledger    domain.Ledger
	locks     domain.LockManager
	bus       domain.SignalBus
	audit     domain.AuditStore
	logger    *slog.Logger
	opts      EntryOptions
}

// NewEntryService creates an EntryService with all required dependencies.
func NewEntryService(
	protocol domain.ProtocolStore,
	arenas domain.ArenaStore,
	entries domain.EntryStore,
	whitelist domain.WhitelistStore,
	oracle domain.Oracle,
	ledger domain.Ledger,
	locks domain.LockManager,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
	opts EntryOptions,
) *EntryService {
	return &EntryService{
		protocol:  protocol,
		arenas:    arenas,
		entries:   entries,
		whitelist: whitelist,
		oracle:    oracle,
		ledger:    ledger,
		locks:     locks,
		bus:       bus,
		audit:     audit,
		logger:    logger,
		opts:      opts,
	}
}

// Enter stakes amount on asset in the current open arena for participant.
// declaredValue is the stake's worth in the pool's unit of account; it is
// ignored when the protocol's entry value band is enabled, in which case the
// oracle quotes the value instead. If this entry fills the arena, the arena
// leaves the entry-open phase and the next entrant starts a fresh one.
func (s *EntryService) Enter(ctx context.Context, participant string, asset domain.AssetIndex, amount, declaredValue uint64) (domain.Entry, error) {
	if amount == 0 {
		return domain.Entry{}, fmt.Errorf("entry_service: enter: %w", domain.ErrInvalidAmount)
	}

	st, err := s.protocol.Get(ctx)
	if err != nil {
		return domain.Entry{}, fmt.Errorf("entry_service: get protocol: %w", err)
	}
	if st.Paused {
		return domain.Entry{}, fmt.Errorf("entry_service: enter: %w", domain.ErrProtocolPaused)
	}

	w, err := s.whitelist.Get(ctx, asset)
	if err != nil {
		return domain.Entry{}, fmt.Errorf("entry_service: lookup asset %d: %w", asset, err)
	}
	if !w.Active {
		return domain.Entry{}, fmt.Errorf("entry_service: asset %s inactive: %w", w.Symbol, domain.ErrAssetNotWhitelisted)
	}

	value, err := s.valueOf(ctx, st, w, amount, declaredValue)
	if err != nil {
		return domain.Entry{}, err
	}

	// A concurrent fill can rotate the arena counter between the protocol
	// read and the lock acquisition, so re-read the counter under the lock
	// and chase the fresh arena when it moved.
	var unlock func()
	for {
		unlock, err = s.locks.Acquire(ctx, arenaLockKey(st.CurrentArenaID), entryLockTTL)
		if err != nil {
			return domain.Entry{}, fmt.Errorf("entry_service: lock arena %d: %w", st.CurrentArenaID, err)
		}
		cur, err := s.protocol.Get(ctx)
		if err != nil {
			unlock()
			return domain.Entry{}, fmt.Errorf("entry_service: get protocol: %w", err)
		}
		if cur.CurrentArenaID == st.CurrentArenaID {
			st = cur
			break
		}
		unlock()
		st = cur
	}
	defer unlock()
	if st.Paused {
		return domain.Entry{}, fmt.Errorf("entry_service: enter: %w", domain.ErrProtocolPaused)
	}

	arena, err := s.ensureCurrent(ctx, &st)
	if err != nil {
		return domain.Entry{}, err
	}
	if !arena.Status.AcceptsEntries() {
		return domain.Entry{}, fmt.Errorf("entry_service: arena %d is %s: %w",
			arena.ID, arena.Status, domain.ErrArenaNotAcceptingEntries)
	}
	if arena.PlayerCount >= st.MaxPlayers {
		return domain.Entry{}, fmt.Errorf("entry_service: arena %d: %w", arena.ID, domain.ErrArenaFull)
	}

	stats, err := s.arenas.GetAssetStats(ctx, arena.ID, asset)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		stats = domain.AssetStats{ArenaID: arena.ID, Asset: asset}
	default:
		return domain.Entry{}, fmt.Errorf("entry_service: asset stats %d/%d: %w", arena.ID, asset, err)
	}
	// An unwound admission can leave a zero-player row behind, so first
	// representation is judged by the count, not by row existence.
	newAsset := stats.PlayerCount == 0
	if stats.PlayerCount >= st.MaxPerAsset {
		if st.MaxPerAsset == 1 {
			return domain.Entry{}, fmt.Errorf("entry_service: asset %s: %w", w.Symbol, domain.ErrAssetAlreadyTaken)
		}
		return domain.Entry{}, fmt.Errorf("entry_service: asset %s: %w", w.Symbol, domain.ErrAssetCapReached)
	}

	// Stake moves into escrow before any counter mutates; every write that
	// fails afterwards unwinds what came before it so the pool equals the
	// sum of recorded entry values at all times.
	escrow := domain.EscrowAccount(arena.ID)
	if err := s.ledger.Transfer(ctx, participant, escrow, value); err != nil {
		return domain.Entry{}, fmt.Errorf("entry_service: collect stake: %w", err)
	}

	entry := domain.Entry{
		ArenaID:     arena.ID,
		Participant: participant,
		Asset:       asset,
		Amount:      amount,
		Value:       value,
		Slot:        arena.PlayerCount,
		EnteredAt:   time.Now().UTC(),
	}
	if err := s.entries.Create(ctx, entry); err != nil {
		s.unwindAdmission(ctx, arena.ID, participant, escrow, value, false)
		return domain.Entry{}, fmt.Errorf("entry_service: create entry: %w", err)
	}

	stats.PlayerCount++
	if err := s.arenas.UpsertAssetStats(ctx, stats); err != nil {
		s.unwindAdmission(ctx, arena.ID, participant, escrow, value, true)
		return domain.Entry{}, fmt.Errorf("entry_service: update asset stats: %w", err)
	}

	arena.PlayerCount++
	if newAsset {
		arena.AssetCount++
	}
	arena.TotalPool += value

	filled := arena.PlayerCount >= st.MaxPlayers
	if filled {
		arena.Status = domain.StatusReady
	}
	if err := s.arenas.Update(ctx, arena); err != nil {
		stats.PlayerCount--
		if statsErr := s.arenas.UpsertAssetStats(ctx, stats); statsErr != nil {
			s.logger.ErrorContext(ctx, "entry_service: asset stats rollback failed",
				slog.Uint64("arena_id", arena.ID),
				slog.Int("asset", int(asset)),
				slog.String("error", statsErr.Error()),
			)
		}
		s.unwindAdmission(ctx, arena.ID, participant, escrow, value, true)
		return domain.Entry{}, fmt.Errorf("entry_service: update arena: %w", err)
	}

	if filled {
		// Capacity reached: rotate the counter so the next entrant opens a
		// fresh arena.
		st.CurrentArenaID++
		if err := s.protocol.Update(ctx, st); err != nil {
			return domain.Entry{}, fmt.Errorf("entry_service: advance arena counter: %w", err)
		}
	}

	s.publish(ctx, "arenas", map[string]any{
		"event":        "entry_accepted",
		"arena_id":     arena.ID,
		"participant":  participant,
		"asset":        asset,
		"value":        value,
		"slot":         entry.Slot,
		"player_count": arena.PlayerCount,
		"filled":       filled,
	})
	s.auditLog(ctx, "entry_accepted", map[string]any{
		"arena_id":    arena.ID,
		"participant": participant,
		"asset":       asset,
		"amount":      amount,
		"value":       value,
		"slot":        entry.Slot,
	})

	s.logger.InfoContext(ctx, "entry_service: entry accepted",
		slog.Uint64("arena_id", arena.ID),
		slog.String("participant", participant),
		slog.Int("asset", int(asset)),
		slog.Uint64("value", value),
		slog.Bool("filled", filled),
	)

	return entry, nil
}

// Get returns a participant's entry in an arena.
func (s *EntryService) Get(ctx context.Context, arenaID uint64, participant string) (domain.Entry, error) {
	return s.entries.Get(ctx, arenaID, participant)
}

// List returns all entries in an arena ordered by slot.
func (s *EntryService) List(ctx context.Context, arenaID uint64) ([]domain.Entry, error) {
	return s.entries.ListByArena(ctx, arenaID)
}

// valueOf resolves the entry's worth in the pool's unit of account.
func (s *EntryService) valueOf(ctx context.Context, st domain.ProtocolState, w domain.WhitelistedAsset, amount, declaredValue uint64) (uint64, error) {
	bandEnabled := st.EntryMinValue != 0 || st.EntryMaxValue != 0
	if !bandEnabled {
		if s.opts.FixedAmount != 0 && amount != s.opts.FixedAmount {
			return 0, fmt.Errorf("entry_service: stake %d != required %d: %w",
				amount, s.opts.FixedAmount, domain.ErrInvalidAmount)
		}
		if declaredValue == 0 {
			return 0, fmt.Errorf("entry_service: declared value: %w", domain.ErrInvalidAmount)
		}
		return declaredValue, nil
	}

	q, err := s.oracle.GetPrice(ctx, w, s.opts.OracleMaxAge)
	if err != nil {
		return 0, fmt.Errorf("entry_service: quote %s: %w", w.Symbol, err)
	}

	value := domain.QuoteValue(amount, 6, q.Price, q.Expo)
	if value < st.EntryMinValue || value > st.EntryMaxValue {
		return 0, fmt.Errorf("entry_service: value %d outside [%d, %d]: %w",
			value, st.EntryMinValue, st.EntryMaxValue, domain.ErrEntryValueOutOfBounds)
	}
	return value, nil
}

// ensureCurrent loads the arena named by the protocol counter, creating it
// lazily on first entry.
func (s *EntryService) ensureCurrent(ctx context.Context, st *domain.ProtocolState) (domain.Arena, error) {
	arena, err := s.arenas.Get(ctx, st.CurrentArenaID)
	if err == nil {
		return arena, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Arena{}, fmt.Errorf("entry_service: get arena %d: %w", st.CurrentArenaID, err)
	}

	arena = domain.Arena{
		ID:           st.CurrentArenaID,
		Status:       domain.StatusOpen,
		WinningAsset: domain.AssetNone,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.arenas.Create(ctx, arena); err != nil {
		return domain.Arena{}, fmt.Errorf("entry_service: create arena %d: %w", st.CurrentArenaID, err)
	}

	s.logger.InfoContext(ctx, "entry_service: arena opened",
		slog.Uint64("arena_id", arena.ID),
	)
	return arena, nil
}

// unwindAdmission reverses a partially recorded admission: the entry row (if
// it was written) and the escrowed stake. Failures here are logged rather
// than returned; the audit trail plus the escrow balance identify the row
// for manual repair.
func (s *EntryService) unwindAdmission(ctx context.Context, arenaID uint64, participant, escrow string, value uint64, dropEntry bool) {
	if dropEntry {
		if err := s.entries.Delete(ctx, arenaID, participant); err != nil {
			s.logger.ErrorContext(ctx, "entry_service: entry rollback failed",
				slog.Uint64("arena_id", arenaID),
				slog.String("participant", participant),
				slog.String("error", err.Error()),
			)
		}
	}
	if err := s.ledger.Transfer(ctx, escrow, participant, value); err != nil {
		s.logger.ErrorContext(ctx, "entry_service: stake refund failed",
			slog.Uint64("arena_id", arenaID),
			slog.String("participant", participant),
			slog.Uint64("value", value),
			slog.String("error", err.Error()),
		)
	}
}

func (s *EntryService) publish(ctx context.Context, channel string, payload map[string]any) {
	evt, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, channel, evt); err != nil {
		s.logger.WarnContext(ctx, "entry_service: publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

func (s *EntryService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "entry_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func arenaLockKey(arenaID uint64) string {
	return fmt.Sprintf("arena:%d", arenaID)
}
