package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mlabs-tech/cryptarena-svm/internal/domain"
)

const roundLockTTL = 15 * time.Second

// RoundOptions carries the deployment parameters for the round lifecycle.
type RoundOptions struct {
	// OracleMaxAge is the freshness bound applied to start and end price
	// captures.
	OracleMaxAge time.Duration
}

// RoundService drives an arena through its lifecycle after entries close:
// forced starts, start-price capture into the active window, and end-price
// capture once the window elapses. Settlement itself is a separate concern.
type RoundService struct {
	protocol  domain.ProtocolStore
	arenas    domain.ArenaStore
	whitelist domain.WhitelistStore
	oracle    domain.Oracle
	locks     domain.LockManager
	bus       domain.SignalBus
	audit     domain.AuditStore
	logger    *slog.Logger
	opts      RoundOptions
}

// NewRoundService creates a RoundService with all required dependencies.
func NewRoundService(
	protocol domain.ProtocolStore,
	arenas domain.ArenaStore,
	whitelist domain.WhitelistStore,
	oracle domain.Oracle,
	locks domain.LockManager,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
	opts RoundOptions,
) *RoundService {
	return &RoundService{
		protocol:  protocol,
		arenas:    arenas,
		whitelist: whitelist,
		oracle:    oracle,
		locks:     locks,
		bus:       bus,
		audit:     audit,
		logger:    logger,
		opts:      opts,
	}
}

// Start forces an open arena into the ready phase before it fills. Only the
// administrator may force a start, and the arena must hold at least the
// configured minimum of players.
func (s *RoundService) Start(ctx context.Context, actor string, arenaID uint64) error {
	st, err := s.protocol.Get(ctx)
	if err != nil {
		return fmt.Errorf("round_service: get protocol: %w", err)
	}
	if actor != st.Admin {
		return fmt.Errorf("round_service: actor %q: %w", actor, domain.ErrUnauthorized)
	}

	unlock, err := s.locks.Acquire(ctx, arenaLockKey(arenaID), roundLockTTL)
	if err != nil {
		return fmt.Errorf("round_service: lock arena %d: %w", arenaID, err)
	}
	defer unlock()

	arena, err := s.arenas.Get(ctx, arenaID)
	if err != nil {
		return fmt.Errorf("round_service: get arena %d: %w", arenaID, err)
	}
	if arena.Status != domain.StatusOpen {
		return fmt.Errorf("round_service: arena %d is %s: %w",
			arenaID, arena.Status, domain.ErrArenaNotAcceptingEntries)
	}
	if arena.PlayerCount < st.MinPlayers {
		return fmt.Errorf("round_service: arena %d has %d of %d players: %w",
			arenaID, arena.PlayerCount, st.MinPlayers, domain.ErrNotEnoughPlayers)
	}

	arena.Status = domain.StatusReady
	if err := s.arenas.Update(ctx, arena); err != nil {
		return fmt.Errorf("round_service: update arena %d: %w", arenaID, err)
	}

	// A forced start closes the current entry window, so the counter rotates
	// exactly as a capacity fill would.
	if st.CurrentArenaID == arenaID {
		st.CurrentArenaID++
		if err := s.protocol.Update(ctx, st); err != nil {
			return fmt.Errorf("round_service: advance arena counter: %w", err)
		}
	}

	s.publish(ctx, "arenas", map[string]any{
		"event":    "arena_started",
		"arena_id": arenaID,
	})
	s.auditLog(ctx, "arena_started", map[string]any{
		"arena_id": arenaID,
		"players":  arena.PlayerCount,
	})
	s.logger.InfoContext(ctx, "round_service: arena force-started",
		slog.Uint64("arena_id", arenaID),
		slog.Int("players", int(arena.PlayerCount)),
	)
	return nil
}

// CaptureStartPrices records the oracle's current price for every represented
// asset that still lacks a start price. Once all assets have one, the contest
// window opens and the arena turns active. Partial captures leave the arena in
// the starting phase and the call is safe to repeat.
func (s *RoundService) CaptureStartPrices(ctx context.Context, arenaID uint64) error {
	unlock, err := s.locks.Acquire(ctx, arenaLockKey(arenaID), roundLockTTL)
	if err != nil {
		return fmt.Errorf("round_service: lock arena %d: %w", arenaID, err)
	}
	defer unlock()

	arena, err := s.arenas.Get(ctx, arenaID)
	if err != nil {
		return fmt.Errorf("round_service: get arena %d: %w", arenaID, err)
	}
	if arena.Status != domain.StatusReady && arena.Status != domain.StatusStarting {
		return fmt.Errorf("round_service: arena %d is %s: %w",
			arenaID, arena.Status, domain.ErrArenaNotReady)
	}

	return s.capture(ctx, arena, captureStart)
}

// SetStartPrice records a start price supplied by the administrator, for
// assets whose oracle feed is unavailable.
func (s *RoundService) SetStartPrice(ctx context.Context, actor string, arenaID uint64, asset domain.AssetIndex, price uint64) error {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return err
	}

	unlock, err := s.locks.Acquire(ctx, arenaLockKey(arenaID), roundLockTTL)
	if err != nil {
		return fmt.Errorf("round_service: lock arena %d: %w", arenaID, err)
	}
	defer unlock()

	arena, err := s.arenas.Get(ctx, arenaID)
	if err != nil {
		return fmt.Errorf("round_service: get arena %d: %w", arenaID, err)
	}
	if arena.Status != domain.StatusReady && arena.Status != domain.StatusStarting {
		return fmt.Errorf("round_service: arena %d is %s: %w",
			arenaID, arena.Status, domain.ErrArenaNotReady)
	}

	return s.setOne(ctx, arena, asset, price, captureStart)
}

// CaptureEndPrices records the oracle's current price for every represented
// asset that still lacks an end price. Callable only once the contest window
// has elapsed; an active arena transitions to closing on the first call.
func (s *RoundService) CaptureEndPrices(ctx context.Context, arenaID uint64) error {
	unlock, err := s.locks.Acquire(ctx, arenaLockKey(arenaID), roundLockTTL)
	if err != nil {
		return fmt.Errorf("round_service: lock arena %d: %w", arenaID, err)
	}
	defer unlock()

	arena, err := s.arenas.Get(ctx, arenaID)
	if err != nil {
		return fmt.Errorf("round_service: get arena %d: %w", arenaID, err)
	}

	switch arena.Status {
	case domain.StatusActive:
		if time.Now().UTC().Before(arena.EndsAt) {
			return fmt.Errorf("round_service: arena %d ends at %s: %w",
				arenaID, arena.EndsAt.Format(time.RFC3339), domain.ErrDurationNotComplete)
		}
		arena.Status = domain.StatusClosing
	case domain.StatusClosing:
	default:
		return fmt.Errorf("round_service: arena %d is %s: %w",
			arenaID, arena.Status, domain.ErrArenaNotActive)
	}

	return s.capture(ctx, arena, captureEnd)
}

// SetEndPrice records an end price supplied by the administrator.
func (s *RoundService) SetEndPrice(ctx context.Context, actor string, arenaID uint64, asset domain.AssetIndex, price uint64) error {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return err
	}

	unlock, err := s.locks.Acquire(ctx, arenaLockKey(arenaID), roundLockTTL)
	if err != nil {
		return fmt.Errorf("round_service: lock arena %d: %w", arenaID, err)
	}
	defer unlock()

	arena, err := s.arenas.Get(ctx, arenaID)
	if err != nil {
		return fmt.Errorf("round_service: get arena %d: %w", arenaID, err)
	}

	switch arena.Status {
	case domain.StatusActive:
		if time.Now().UTC().Before(arena.EndsAt) {
			return fmt.Errorf("round_service: arena %d ends at %s: %w",
				arenaID, arena.EndsAt.Format(time.RFC3339), domain.ErrDurationNotComplete)
		}
		arena.Status = domain.StatusClosing
	case domain.StatusClosing:
	default:
		return fmt.Errorf("round_service: arena %d is %s: %w",
			arenaID, arena.Status, domain.ErrArenaNotActive)
	}

	return s.setOne(ctx, arena, asset, price, captureEnd)
}

// Get returns a single arena.
func (s *RoundService) Get(ctx context.Context, arenaID uint64) (domain.Arena, error) {
	return s.arenas.Get(ctx, arenaID)
}

// List returns arenas, newest first.
func (s *RoundService) List(ctx context.Context, opts domain.ListOpts) ([]domain.Arena, error) {
	return s.arenas.List(ctx, opts)
}

// ListByStatus returns arenas in a given lifecycle state.
func (s *RoundService) ListByStatus(ctx context.Context, status domain.ArenaStatus, opts domain.ListOpts) ([]domain.Arena, error) {
	return s.arenas.ListByStatus(ctx, status, opts)
}

// AssetStats returns the per-asset rows for an arena.
func (s *RoundService) AssetStats(ctx context.Context, arenaID uint64) ([]domain.AssetStats, error) {
	return s.arenas.ListAssetStats(ctx, arenaID)
}

type captureSide int

const (
	captureStart captureSide = iota
	captureEnd
)

// capture fetches oracle prices for all represented assets missing one on the
// given side and advances the arena's phase bookkeeping. Oracle failures for
// individual assets are logged and skipped; the remaining assets are retried
// on the next call.
func (s *RoundService) capture(ctx context.Context, arena domain.Arena, side captureSide) error {
	stats, err := s.arenas.ListAssetStats(ctx, arena.ID)
	if err != nil {
		return fmt.Errorf("round_service: list asset stats %d: %w", arena.ID, err)
	}

	captured := 0
	// Writes go through the slice index so advance recounts the updated rows.
	for i := range stats {
		if hasPrice(stats[i], side) {
			continue
		}

		w, err := s.whitelist.Get(ctx, stats[i].Asset)
		if err != nil {
			return fmt.Errorf("round_service: lookup asset %d: %w", stats[i].Asset, err)
		}
		q, err := s.oracle.GetPrice(ctx, w, s.opts.OracleMaxAge)
		if err != nil {
			s.logger.WarnContext(ctx, "round_service: price capture failed",
				slog.Uint64("arena_id", arena.ID),
				slog.String("symbol", w.Symbol),
				slog.String("error", err.Error()),
			)
			continue
		}

		setPrice(&stats[i], side, q.Price)
		if err := s.arenas.UpsertAssetStats(ctx, stats[i]); err != nil {
			return fmt.Errorf("round_service: upsert asset stats %d/%d: %w", arena.ID, stats[i].Asset, err)
		}
		captured++
	}

	return s.advance(ctx, arena, stats, side, captured)
}

// setOne records one admin-supplied price and advances the arena's phase
// bookkeeping.
func (s *RoundService) setOne(ctx context.Context, arena domain.Arena, asset domain.AssetIndex, price uint64, side captureSide) error {
	st, err := s.arenas.GetAssetStats(ctx, arena.ID, asset)
	if err != nil {
		return fmt.Errorf("round_service: asset %d: %w", asset, domain.ErrAssetNotInArena)
	}
	if hasPrice(st, side) {
		return nil
	}

	setPrice(&st, side, price)
	if err := s.arenas.UpsertAssetStats(ctx, st); err != nil {
		return fmt.Errorf("round_service: upsert asset stats %d/%d: %w", arena.ID, asset, err)
	}

	stats, err := s.arenas.ListAssetStats(ctx, arena.ID)
	if err != nil {
		return fmt.Errorf("round_service: list asset stats %d: %w", arena.ID, err)
	}
	return s.advance(ctx, arena, stats, side, 1)
}

// advance recomputes the captured-price counters and moves the arena forward
// when a side completes: all start prices open the contest window, all end
// prices leave the arena closing and ready to settle.
func (s *RoundService) advance(ctx context.Context, arena domain.Arena, stats []domain.AssetStats, side captureSide, captured int) error {
	done := 0
	for _, st := range stats {
		if hasPrice(st, side) {
			done++
		}
	}
	complete := done == len(stats) && len(stats) > 0

	if side == captureStart {
		arena.StartPrices = uint8(done)
		if complete {
			st, err := s.protocol.Get(ctx)
			if err != nil {
				return fmt.Errorf("round_service: get protocol: %w", err)
			}
			now := time.Now().UTC()
			arena.Status = domain.StatusActive
			arena.StartedAt = now
			arena.EndsAt = now.Add(st.Duration)
		} else if captured > 0 && arena.Status == domain.StatusReady {
			arena.Status = domain.StatusStarting
		}
	} else {
		arena.EndPrices = uint8(done)
	}

	if err := s.arenas.Update(ctx, arena); err != nil {
		return fmt.Errorf("round_service: update arena %d: %w", arena.ID, err)
	}

	if captured == 0 {
		return nil
	}

	event := "start_prices_captured"
	if side == captureEnd {
		event = "end_prices_captured"
	}
	s.publish(ctx, "arenas", map[string]any{
		"event":    event,
		"arena_id": arena.ID,
		"captured": done,
		"assets":   len(stats),
		"complete": complete,
	})
	s.auditLog(ctx, event, map[string]any{
		"arena_id": arena.ID,
		"captured": done,
		"assets":   len(stats),
	})
	if complete {
		s.logger.InfoContext(ctx, "round_service: price capture complete",
			slog.Uint64("arena_id", arena.ID),
			slog.String("side", event),
			slog.String("status", arena.Status.String()),
		)
	}
	return nil
}

func hasPrice(st domain.AssetStats, side captureSide) bool {
	if side == captureStart {
		return st.StartPrice != 0
	}
	return st.EndPrice != 0
}

func setPrice(st *domain.AssetStats, side captureSide, price uint64) {
	if side == captureStart {
		st.StartPrice = price
	} else {
		st.EndPrice = price
	}
}

func (s *RoundService) requireAdmin(ctx context.Context, actor string) error {
	st, err := s.protocol.Get(ctx)
	if err != nil {
		return fmt.Errorf("round_service: get protocol: %w", err)
	}
	if actor != st.Admin {
		return fmt.Errorf("round_service: actor %q: %w", actor, domain.ErrUnauthorized)
	}
	return nil
}

func (s *RoundService) publish(ctx context.Context, channel string, payload map[string]any) {
	evt, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, channel, evt); err != nil {
		s.logger.WarnContext(ctx, "round_service: publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

func (s *RoundService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "round_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
