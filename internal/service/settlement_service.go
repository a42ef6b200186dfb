package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mlabs-tech/cryptarena-svm/internal/domain"
)

// SettlementService fixes the outcome of a closing arena: it computes each
// represented asset's price movement, picks the strict maximum as the winner,
// and cancels the arena when no single winner exists. Settlement mutates no
// balances; payouts are claimed afterwards.
type SettlementService struct {
	arenas    domain.ArenaStore
	locks     domain.LockManager
	bus       domain.SignalBus
	audit     domain.AuditStore
	logger    *slog.Logger
	precision int64
}

// NewSettlementService creates a SettlementService. precision is the
// fixed-point multiplier used for movement comparison.
func NewSettlementService(
	arenas domain.ArenaStore,
	locks domain.LockManager,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
	precision int64,
) *SettlementService {
	return &SettlementService{
		arenas:    arenas,
		locks:     locks,
		bus:       bus,
		audit:     audit,
		logger:    logger,
		precision: precision,
	}
}

// Settle computes movements and fixes the arena's terminal state. The arena
// must be closing with every represented asset holding both prices; anything
// less is a phase or missing-data error and nothing mutates. A unique maximum
// movement settles the arena on that asset; a tie at the maximum, or no
// eligible asset at all, cancels it and makes every entry refundable.
func (s *SettlementService) Settle(ctx context.Context, arenaID uint64) (domain.Arena, error) {
	unlock, err := s.locks.Acquire(ctx, arenaLockKey(arenaID), roundLockTTL)
	if err != nil {
		return domain.Arena{}, fmt.Errorf("settlement_service: lock arena %d: %w", arenaID, err)
	}
	defer unlock()

	arena, err := s.arenas.Get(ctx, arenaID)
	if err != nil {
		return domain.Arena{}, fmt.Errorf("settlement_service: get arena %d: %w", arenaID, err)
	}
	if arena.Status.Terminal() {
		return arena, nil
	}
	if arena.Status != domain.StatusClosing {
		return domain.Arena{}, fmt.Errorf("settlement_service: arena %d is %s: %w",
			arenaID, arena.Status, domain.ErrArenaNotClosing)
	}

	stats, err := s.arenas.ListAssetStats(ctx, arenaID)
	if err != nil {
		return domain.Arena{}, fmt.Errorf("settlement_service: list asset stats %d: %w", arenaID, err)
	}
	for _, st := range stats {
		if st.StartPrice == 0 || st.EndPrice == 0 {
			return domain.Arena{}, fmt.Errorf("settlement_service: asset %d of arena %d: %w",
				st.Asset, arenaID, domain.ErrMissingPriceData)
		}
	}

	winner, tie := s.pickWinner(ctx, stats)

	now := time.Now().UTC()
	arena.SettledAt = now
	if tie || winner == nil {
		arena.Status = domain.StatusCancelled
		arena.WinningAsset = domain.AssetNone
	} else {
		arena.Status = domain.StatusSettled
		arena.WinningAsset = winner.Asset
	}

	// Persist movements before the terminal flip so a crash in between leaves
	// the arena still closing and the call repeatable.
	for i := range stats {
		if err := s.arenas.UpsertAssetStats(ctx, stats[i]); err != nil {
			return domain.Arena{}, fmt.Errorf("settlement_service: persist movement %d/%d: %w",
				arenaID, stats[i].Asset, err)
		}
	}
	if err := s.arenas.Update(ctx, arena); err != nil {
		return domain.Arena{}, fmt.Errorf("settlement_service: update arena %d: %w", arenaID, err)
	}

	detail := map[string]any{
		"arena_id": arenaID,
		"status":   arena.Status.String(),
	}
	if arena.Status == domain.StatusSettled {
		detail["winning_asset"] = arena.WinningAsset
		detail["movement"] = winner.Movement
	}
	s.publish(ctx, "arenas", mergeEvent("arena_settled", detail))
	s.auditLog(ctx, "arena_settled", detail)

	s.logger.InfoContext(ctx, "settlement_service: arena settled",
		slog.Uint64("arena_id", arenaID),
		slog.String("status", arena.Status.String()),
		slog.Int("winning_asset", int(arena.WinningAsset)),
	)
	return arena, nil
}

// pickWinner fills in each asset's movement and returns the strict-maximum
// asset, or tie=true when two or more eligible assets share the maximum.
// Assets with an undefined movement are ineligible and never win.
func (s *SettlementService) pickWinner(ctx context.Context, stats []domain.AssetStats) (winner *domain.AssetStats, tie bool) {
	for i := range stats {
		mv, ok := domain.Movement(stats[i].StartPrice, stats[i].EndPrice, s.precision)
		stats[i].Movement = mv
		stats[i].MovementSet = ok
		if !ok {
			s.logger.WarnContext(ctx, "settlement_service: asset ineligible",
				slog.Uint64("arena_id", stats[i].ArenaID),
				slog.Int("asset", int(stats[i].Asset)),
			)
			continue
		}

		switch {
		case winner == nil || mv > winner.Movement:
			winner = &stats[i]
			tie = false
		case mv == winner.Movement:
			tie = true
		}
	}
	return winner, tie
}

func mergeEvent(event string, detail map[string]any) map[string]any {
	out := make(map[string]any, len(detail)+1)
	out["event"] = event
	for k, v := range detail {
		out[k] = v
	}
	return out
}

func (s *SettlementService) publish(ctx context.Context, channel string, payload map[string]any) {
	evt, _ := json.Marshal(payload)
	if err := s.bus.Publish(ctx, channel, evt); err != nil {
		s.logger.WarnContext(ctx, "settlement_service: publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

func (s *SettlementService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "settlement_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
