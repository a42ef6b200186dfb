package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mlabs-tech/cryptarena-svm/internal/domain"
)

// PayoutService pays settled and cancelled arenas out of escrow. Every payout
// is pull-based and guarded by a single-use marker, so repeated claims fail
// without moving funds and total outflow can never exceed the pool.
//
// The service is bound to one reward scheme at construction; operations
// belonging to the other scheme fail with ErrSchemeDisabled.
type PayoutService struct {
	protocol domain.ProtocolStore
	arenas   domain.ArenaStore
	entries  domain.EntryStore
	ledger   domain.Ledger
	locks    domain.LockManager
	bus      domain.SignalBus
	audit    domain.AuditStore
	logger   *slog.Logger
	scheme   domain.RewardScheme
}

// NewPayoutService creates a PayoutService bound to the given reward scheme.
func NewPayoutService(
	protocol domain.ProtocolStore,
	arenas domain.ArenaStore,
	entries domain.EntryStore,
	ledger domain.Ledger,
	locks domain.LockManager,
	bus domain.SignalBus,
	audit domain.AuditStore,
	logger *slog.Logger,
	scheme domain.RewardScheme,
) *PayoutService {
	return &PayoutService{
		protocol: protocol,
		arenas:   arenas,
		entries:  entries,
		ledger:   ledger,
		locks:    locks,
		bus:      bus,
		audit:    audit,
		logger:   logger,
		scheme:   scheme,
	}
}

// Scheme returns the reward scheme the service pays under.
func (s *PayoutService) Scheme() domain.RewardScheme {
	return s.scheme
}

// ClaimReward pays a winning entry its flat share of the pool under the
// shared-pool scheme: (pool - fee) / winner_count, where every winner gets the
// same share regardless of stake. A single-participant arena gets the full
// pool back and the fee is waived.
func (s *PayoutService) ClaimReward(ctx context.Context, arenaID uint64, participant string) (uint64, error) {
	if s.scheme != domain.RewardSchemeSharedPool {
		return 0, fmt.Errorf("payout_service: claim reward: %w", domain.ErrSchemeDisabled)
	}

	arena, _, err := s.settledWinner(ctx, arenaID, participant)
	if err != nil {
		return 0, err
	}

	st, err := s.protocol.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("payout_service: get protocol: %w", err)
	}
	winners, err := s.winnerCount(ctx, arena)
	if err != nil {
		return 0, err
	}

	var payout uint64
	if arena.PlayerCount == 1 {
		payout = arena.TotalPool
	} else {
		payout = (arena.TotalPool - domain.FeeOn(arena.TotalPool, st.FeeBps)) / uint64(winners)
	}

	// The claim marker flips before funds move; a replay stops here.
	if err := s.entries.MarkStakeClaimed(ctx, arenaID, participant); err != nil {
		return 0, fmt.Errorf("payout_service: claim reward: %w", err)
	}
	if err := s.ledger.Transfer(ctx, domain.EscrowAccount(arenaID), participant, payout); err != nil {
		return 0, fmt.Errorf("payout_service: pay reward: %w", err)
	}

	s.emit(ctx, "reward_claimed", map[string]any{
		"arena_id":    arenaID,
		"participant": participant,
		"amount":      payout,
	})
	s.logger.InfoContext(ctx, "payout_service: reward claimed",
		slog.Uint64("arena_id", arenaID),
		slog.String("participant", participant),
		slog.Uint64("amount", payout),
	)
	return payout, nil
}

// CollectFee sweeps the shared-pool platform fee to the treasury. Admin-only,
// once per arena; a single-participant arena owes no fee.
func (s *PayoutService) CollectFee(ctx context.Context, actor string, arenaID uint64) (uint64, error) {
	if s.scheme != domain.RewardSchemeSharedPool {
		return 0, fmt.Errorf("payout_service: collect fee: %w", domain.ErrSchemeDisabled)
	}

	st, err := s.protocol.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("payout_service: get protocol: %w", err)
	}
	if actor != st.Admin {
		return 0, fmt.Errorf("payout_service: actor %q: %w", actor, domain.ErrUnauthorized)
	}

	unlock, err := s.locks.Acquire(ctx, arenaLockKey(arenaID), roundLockTTL)
	if err != nil {
		return 0, fmt.Errorf("payout_service: lock arena %d: %w", arenaID, err)
	}
	defer unlock()

	arena, err := s.arenas.Get(ctx, arenaID)
	if err != nil {
		return 0, fmt.Errorf("payout_service: get arena %d: %w", arenaID, err)
	}
	if arena.Status != domain.StatusSettled {
		return 0, fmt.Errorf("payout_service: arena %d is %s: %w",
			arenaID, arena.Status, domain.ErrArenaNotSettled)
	}
	if arena.FeeCollected {
		return 0, fmt.Errorf("payout_service: arena %d: %w", arenaID, domain.ErrFeeAlreadyCollected)
	}

	var fee uint64
	if arena.PlayerCount > 1 {
		fee = domain.FeeOn(arena.TotalPool, st.FeeBps)
	}

	arena.FeeCollected = true
	if err := s.arenas.Update(ctx, arena); err != nil {
		return 0, fmt.Errorf("payout_service: mark fee collected: %w", err)
	}
	if err := s.ledger.Transfer(ctx, domain.EscrowAccount(arenaID), domain.TreasuryAccount, fee); err != nil {
		return 0, fmt.Errorf("payout_service: sweep fee: %w", err)
	}

	s.emit(ctx, "fee_collected", map[string]any{
		"arena_id": arenaID,
		"amount":   fee,
	})
	return fee, nil
}

// ClaimOwnStake returns a pairwise winner's own stake value. Single use,
// fee-free; loser shares are claimed separately per loser.
func (s *PayoutService) ClaimOwnStake(ctx context.Context, arenaID uint64, participant string) (uint64, error) {
	if s.scheme != domain.RewardSchemePairwise {
		return 0, fmt.Errorf("payout_service: claim own stake: %w", domain.ErrSchemeDisabled)
	}

	_, entry, err := s.settledWinner(ctx, arenaID, participant)
	if err != nil {
		return 0, err
	}

	if err := s.entries.MarkStakeClaimed(ctx, arenaID, participant); err != nil {
		return 0, fmt.Errorf("payout_service: claim own stake: %w", err)
	}
	if err := s.ledger.Transfer(ctx, domain.EscrowAccount(arenaID), participant, entry.Value); err != nil {
		return 0, fmt.Errorf("payout_service: return stake: %w", err)
	}

	s.emit(ctx, "stake_reclaimed", map[string]any{
		"arena_id":    arenaID,
		"participant": participant,
		"amount":      entry.Value,
	})
	return entry.Value, nil
}

// ClaimFromLoser pays a pairwise winner its share of one losing entry:
// loser_value / winner_count, minus the fee on that slice. The winner's claim
// bitmap keys the guard by loser slot, so each loser can be claimed exactly
// once per winner.
func (s *PayoutService) ClaimFromLoser(ctx context.Context, arenaID uint64, participant string, loserSlot uint8) (uint64, error) {
	if s.scheme != domain.RewardSchemePairwise {
		return 0, fmt.Errorf("payout_service: claim from loser: %w", domain.ErrSchemeDisabled)
	}

	arena, _, err := s.settledWinner(ctx, arenaID, participant)
	if err != nil {
		return 0, err
	}

	loser, err := s.entries.GetBySlot(ctx, arenaID, loserSlot)
	if err != nil {
		return 0, fmt.Errorf("payout_service: loser slot %d: %w", loserSlot, err)
	}
	if loser.Asset == arena.WinningAsset {
		return 0, fmt.Errorf("payout_service: slot %d: %w", loserSlot, domain.ErrCannotClaimFromWinner)
	}

	st, err := s.protocol.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("payout_service: get protocol: %w", err)
	}
	winners, err := s.winnerCount(ctx, arena)
	if err != nil {
		return 0, err
	}

	slice := loser.Value / uint64(winners)
	payout := slice - domain.FeeOn(slice, st.FeeBps)

	if err := s.entries.ClaimLoserBit(ctx, arenaID, participant, loserSlot); err != nil {
		return 0, fmt.Errorf("payout_service: claim from loser: %w", err)
	}
	if err := s.ledger.Transfer(ctx, domain.EscrowAccount(arenaID), participant, payout); err != nil {
		return 0, fmt.Errorf("payout_service: pay loser share: %w", err)
	}

	s.emit(ctx, "loser_share_claimed", map[string]any{
		"arena_id":    arenaID,
		"participant": participant,
		"loser_slot":  loserSlot,
		"amount":      payout,
	})
	return payout, nil
}

// CollectLoserFee sweeps the platform fee carved out of one losing entry to
// the treasury under the pairwise scheme. Admin-only, once per loser. The fee
// is the per-winner slice fee times the winner count, so escrow drains exactly
// when every winner has claimed and every loser fee is swept.
func (s *PayoutService) CollectLoserFee(ctx context.Context, actor string, arenaID uint64, loserSlot uint8) (uint64, error) {
	if s.scheme != domain.RewardSchemePairwise {
		return 0, fmt.Errorf("payout_service: collect loser fee: %w", domain.ErrSchemeDisabled)
	}

	st, err := s.protocol.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("payout_service: get protocol: %w", err)
	}
	if actor != st.Admin {
		return 0, fmt.Errorf("payout_service: actor %q: %w", actor, domain.ErrUnauthorized)
	}

	arena, err := s.arenas.Get(ctx, arenaID)
	if err != nil {
		return 0, fmt.Errorf("payout_service: get arena %d: %w", arenaID, err)
	}
	if arena.Status != domain.StatusSettled {
		return 0, fmt.Errorf("payout_service: arena %d is %s: %w",
			arenaID, arena.Status, domain.ErrArenaNotSettled)
	}

	loser, err := s.entries.GetBySlot(ctx, arenaID, loserSlot)
	if err != nil {
		return 0, fmt.Errorf("payout_service: loser slot %d: %w", loserSlot, err)
	}
	if loser.Asset == arena.WinningAsset {
		return 0, fmt.Errorf("payout_service: slot %d: %w", loserSlot, domain.ErrCannotClaimFromWinner)
	}

	winners, err := s.winnerCount(ctx, arena)
	if err != nil {
		return 0, err
	}
	fee := domain.FeeOn(loser.Value/uint64(winners), st.FeeBps) * uint64(winners)

	if err := s.entries.MarkFeeCollected(ctx, arenaID, loser.Participant); err != nil {
		return 0, fmt.Errorf("payout_service: collect loser fee: %w", err)
	}
	if err := s.ledger.Transfer(ctx, domain.EscrowAccount(arenaID), domain.TreasuryAccount, fee); err != nil {
		return 0, fmt.Errorf("payout_service: sweep loser fee: %w", err)
	}

	s.emit(ctx, "loser_fee_collected", map[string]any{
		"arena_id":   arenaID,
		"loser_slot": loserSlot,
		"amount":     fee,
	})
	return fee, nil
}

// ClaimRefund returns an entry's full value from a cancelled arena. Available
// under either scheme, single use per entry.
func (s *PayoutService) ClaimRefund(ctx context.Context, arenaID uint64, participant string) (uint64, error) {
	arena, err := s.arenas.Get(ctx, arenaID)
	if err != nil {
		return 0, fmt.Errorf("payout_service: get arena %d: %w", arenaID, err)
	}
	if arena.Status != domain.StatusCancelled {
		return 0, fmt.Errorf("payout_service: arena %d is %s: %w",
			arenaID, arena.Status, domain.ErrArenaNotCancelled)
	}

	entry, err := s.entries.Get(ctx, arenaID, participant)
	if err != nil {
		return 0, fmt.Errorf("payout_service: get entry: %w", err)
	}

	if err := s.entries.MarkStakeClaimed(ctx, arenaID, participant); err != nil {
		return 0, fmt.Errorf("payout_service: claim refund: %w", err)
	}
	if err := s.ledger.Transfer(ctx, domain.EscrowAccount(arenaID), participant, entry.Value); err != nil {
		return 0, fmt.Errorf("payout_service: pay refund: %w", err)
	}

	s.emit(ctx, "refund_claimed", map[string]any{
		"arena_id":    arenaID,
		"participant": participant,
		"amount":      entry.Value,
	})
	s.logger.InfoContext(ctx, "payout_service: refund claimed",
		slog.Uint64("arena_id", arenaID),
		slog.String("participant", participant),
		slog.Uint64("amount", entry.Value),
	)
	return entry.Value, nil
}

// settledWinner loads a settled arena and the caller's entry, verifying the
// entry picked the winning asset.
func (s *PayoutService) settledWinner(ctx context.Context, arenaID uint64, participant string) (domain.Arena, domain.Entry, error) {
	arena, err := s.arenas.Get(ctx, arenaID)
	if err != nil {
		return domain.Arena{}, domain.Entry{}, fmt.Errorf("payout_service: get arena %d: %w", arenaID, err)
	}
	if arena.Status != domain.StatusSettled {
		return domain.Arena{}, domain.Entry{}, fmt.Errorf("payout_service: arena %d is %s: %w",
			arenaID, arena.Status, domain.ErrArenaNotSettled)
	}

	entry, err := s.entries.Get(ctx, arenaID, participant)
	if err != nil {
		return domain.Arena{}, domain.Entry{}, fmt.Errorf("payout_service: get entry: %w", err)
	}
	if entry.Asset != arena.WinningAsset {
		return domain.Arena{}, domain.Entry{}, fmt.Errorf("payout_service: participant %s: %w",
			participant, domain.ErrNotAWinner)
	}
	return arena, entry, nil
}

// winnerCount returns how many entries picked the winning asset.
func (s *PayoutService) winnerCount(ctx context.Context, arena domain.Arena) (uint8, error) {
	st, err := s.arenas.GetAssetStats(ctx, arena.ID, arena.WinningAsset)
	if err != nil {
		return 0, fmt.Errorf("payout_service: winner stats %d/%d: %w", arena.ID, arena.WinningAsset, err)
	}
	if st.PlayerCount == 0 {
		return 0, fmt.Errorf("payout_service: arena %d winner has no entries: %w", arena.ID, domain.ErrAssetNotInArena)
	}
	return st.PlayerCount, nil
}

func (s *PayoutService) emit(ctx context.Context, event string, detail map[string]any) {
	evt, _ := json.Marshal(mergeEvent(event, detail))
	if err := s.bus.Publish(ctx, "payouts", evt); err != nil {
		s.logger.WarnContext(ctx, "payout_service: publish event failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "payout_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
