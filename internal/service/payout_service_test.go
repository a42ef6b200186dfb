package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlabs-tech/cryptarena-svm/internal/domain"
)

// settledFourPlayer sets up a settled arena with two winners on asset 0 and
// two losers on assets 1 and 2. Pool 4_000_000, fee rate 10%.
func settledFourPlayer(t *testing.T) *engine {
	t.Helper()
	e := newEngine(t, testSeed()) // MaxPlayers 4, MaxPerAsset 2, fee 1000 bps

	e.enter(t, "alice", 0, 1_000_000) // slot 0, winner
	e.enter(t, "bob", 0, 1_000_000)   // slot 1, winner
	e.enter(t, "carol", 1, 1_000_000) // slot 2, loser
	e.enter(t, "dave", 2, 1_000_000)  // slot 3, loser

	e.activate(t, 1, map[domain.AssetIndex]uint64{0: 100_000, 1: 100_000, 2: 100_000})
	e.closeOut(t, 1, map[domain.AssetIndex]uint64{0: 120_000, 1: 105_000, 2: 95_000})

	arena := e.settle(t, 1)
	require.Equal(t, domain.StatusSettled, arena.Status)
	require.Equal(t, domain.AssetIndex(0), arena.WinningAsset)
	return e
}

func TestSharedPoolClaimReward(t *testing.T) {
	e := settledFourPlayer(t)
	payouts := e.payouts(domain.RewardSchemeSharedPool)

	// (4_000_000 - 400_000) / 2 winners.
	got, err := payouts.ClaimReward(context.Background(), 1, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_800_000), got)
	assert.Equal(t, uint64(1_800_000), e.balance(t, "alice"))

	got, err = payouts.ClaimReward(context.Background(), 1, "bob")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_800_000), got)

	// Exactly the fee remains in escrow.
	assert.Equal(t, uint64(400_000), e.balance(t, domain.EscrowAccount(1)))
}

func TestSharedPoolClaimRewardOnce(t *testing.T) {
	e := settledFourPlayer(t)
	payouts := e.payouts(domain.RewardSchemeSharedPool)

	_, err := payouts.ClaimReward(context.Background(), 1, "alice")
	require.NoError(t, err)

	_, err = payouts.ClaimReward(context.Background(), 1, "alice")
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
	assert.Equal(t, uint64(1_800_000), e.balance(t, "alice"))
}

func TestSharedPoolLoserCannotClaim(t *testing.T) {
	e := settledFourPlayer(t)
	payouts := e.payouts(domain.RewardSchemeSharedPool)

	_, err := payouts.ClaimReward(context.Background(), 1, "carol")
	assert.ErrorIs(t, err, domain.ErrNotAWinner)
	assert.Equal(t, uint64(0), e.balance(t, "carol"))
}

func TestSharedPoolCollectFee(t *testing.T) {
	e := settledFourPlayer(t)
	payouts := e.payouts(domain.RewardSchemeSharedPool)

	_, err := payouts.CollectFee(context.Background(), "mallory", 1)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	fee, err := payouts.CollectFee(context.Background(), "admin", 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(400_000), fee)
	assert.Equal(t, uint64(400_000), e.balance(t, domain.TreasuryAccount))

	_, err = payouts.CollectFee(context.Background(), "admin", 1)
	assert.ErrorIs(t, err, domain.ErrFeeAlreadyCollected)
}

func TestSharedPoolOutflowDrainsEscrow(t *testing.T) {
	e := settledFourPlayer(t)
	payouts := e.payouts(domain.RewardSchemeSharedPool)

	for _, winner := range []string{"alice", "bob"} {
		_, err := payouts.ClaimReward(context.Background(), 1, winner)
		require.NoError(t, err)
	}
	_, err := payouts.CollectFee(context.Background(), "admin", 1)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), e.balance(t, domain.EscrowAccount(1)))
}

func TestSharedPoolSingleParticipantFullRefund(t *testing.T) {
	seed := testSeed()
	seed.MinPlayers = 1
	e := newEngine(t, seed)

	e.enter(t, "alice", 0, 1_000_000)
	require.NoError(t, e.roundSvc.Start(context.Background(), "admin", 1))
	e.activate(t, 1, map[domain.AssetIndex]uint64{0: 100_000})
	e.closeOut(t, 1, map[domain.AssetIndex]uint64{0: 90_000})
	arena := e.settle(t, 1)
	require.Equal(t, domain.StatusSettled, arena.Status)

	payouts := e.payouts(domain.RewardSchemeSharedPool)
	got, err := payouts.ClaimReward(context.Background(), 1, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), got)
	assert.Equal(t, uint64(1_000_000), e.balance(t, "alice"))

	// No fee is owed on a solo arena.
	fee, err := payouts.CollectFee(context.Background(), "admin", 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), fee)
	assert.Equal(t, uint64(0), e.balance(t, domain.EscrowAccount(1)))
}

func TestSchemeGating(t *testing.T) {
	e := settledFourPlayer(t)

	shared := e.payouts(domain.RewardSchemeSharedPool)
	pairwise := e.payouts(domain.RewardSchemePairwise)

	_, err := pairwise.ClaimReward(context.Background(), 1, "alice")
	assert.ErrorIs(t, err, domain.ErrSchemeDisabled)
	_, err = pairwise.CollectFee(context.Background(), "admin", 1)
	assert.ErrorIs(t, err, domain.ErrSchemeDisabled)

	_, err = shared.ClaimOwnStake(context.Background(), 1, "alice")
	assert.ErrorIs(t, err, domain.ErrSchemeDisabled)
	_, err = shared.ClaimFromLoser(context.Background(), 1, "alice", 2)
	assert.ErrorIs(t, err, domain.ErrSchemeDisabled)
	_, err = shared.CollectLoserFee(context.Background(), "admin", 1, 2)
	assert.ErrorIs(t, err, domain.ErrSchemeDisabled)
}

func TestPairwiseClaims(t *testing.T) {
	e := settledFourPlayer(t)
	payouts := e.payouts(domain.RewardSchemePairwise)

	// Own stake comes back fee-free.
	got, err := payouts.ClaimOwnStake(context.Background(), 1, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), got)

	_, err = payouts.ClaimOwnStake(context.Background(), 1, "alice")
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	// Each loser is split across the two winners, minus 10% fee per slice:
	// 1_000_000 / 2 = 500_000, fee 50_000, payout 450_000.
	got, err = payouts.ClaimFromLoser(context.Background(), 1, "alice", 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(450_000), got)

	// The slot-2 bit is now set for alice; bob claims the same loser fine.
	_, err = payouts.ClaimFromLoser(context.Background(), 1, "alice", 2)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	got, err = payouts.ClaimFromLoser(context.Background(), 1, "bob", 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(450_000), got)

	// Claiming from a fellow winner is rejected.
	_, err = payouts.ClaimFromLoser(context.Background(), 1, "alice", 1)
	assert.ErrorIs(t, err, domain.ErrCannotClaimFromWinner)

	// A loser has no pairwise claims at all.
	_, err = payouts.ClaimFromLoser(context.Background(), 1, "carol", 3)
	assert.ErrorIs(t, err, domain.ErrNotAWinner)
}

func TestPairwiseCollectLoserFee(t *testing.T) {
	e := settledFourPlayer(t)
	payouts := e.payouts(domain.RewardSchemePairwise)

	_, err := payouts.CollectLoserFee(context.Background(), "mallory", 1, 2)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	// Fee on each 500_000 slice is 50_000, times two winners.
	fee, err := payouts.CollectLoserFee(context.Background(), "admin", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000), fee)

	_, err = payouts.CollectLoserFee(context.Background(), "admin", 1, 2)
	assert.ErrorIs(t, err, domain.ErrFeeAlreadyCollected)

	_, err = payouts.CollectLoserFee(context.Background(), "admin", 1, 1)
	assert.ErrorIs(t, err, domain.ErrCannotClaimFromWinner)
}

func TestPairwiseFullDrainMatchesPool(t *testing.T) {
	e := settledFourPlayer(t)
	payouts := e.payouts(domain.RewardSchemePairwise)

	for _, winner := range []string{"alice", "bob"} {
		_, err := payouts.ClaimOwnStake(context.Background(), 1, winner)
		require.NoError(t, err)
		for _, loserSlot := range []uint8{2, 3} {
			_, err := payouts.ClaimFromLoser(context.Background(), 1, winner, loserSlot)
			require.NoError(t, err)
		}
	}
	for _, loserSlot := range []uint8{2, 3} {
		_, err := payouts.CollectLoserFee(context.Background(), "admin", 1, loserSlot)
		require.NoError(t, err)
	}

	// Every claim path exhausted: escrow drains to exactly zero.
	assert.Equal(t, uint64(0), e.balance(t, domain.EscrowAccount(1)))
	assert.Equal(t, uint64(200_000), e.balance(t, domain.TreasuryAccount))
	assert.Equal(t, uint64(1_900_000), e.balance(t, "alice"))
	assert.Equal(t, uint64(1_900_000), e.balance(t, "bob"))
}

func TestCancelledArenaRefunds(t *testing.T) {
	e := threePlayerClosing(t,
		map[domain.AssetIndex]uint64{0: 100_000, 1: 200_000, 2: 400_000},
		map[domain.AssetIndex]uint64{0: 101_000, 1: 202_000, 2: 404_000},
	)
	arena := e.settle(t, 1)
	require.Equal(t, domain.StatusCancelled, arena.Status)

	payouts := e.payouts(domain.RewardSchemeSharedPool)
	for _, p := range []string{"alice", "bob", "carol"} {
		got, err := payouts.ClaimRefund(context.Background(), 1, p)
		require.NoError(t, err)
		assert.Equal(t, uint64(1_000_000), got)
		assert.Equal(t, uint64(1_000_000), e.balance(t, p))
	}
	assert.Equal(t, uint64(0), e.balance(t, domain.EscrowAccount(1)))

	_, err := payouts.ClaimRefund(context.Background(), 1, "alice")
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
}

func TestRefundRequiresCancelled(t *testing.T) {
	e := settledFourPlayer(t)
	payouts := e.payouts(domain.RewardSchemeSharedPool)

	_, err := payouts.ClaimRefund(context.Background(), 1, "carol")
	assert.ErrorIs(t, err, domain.ErrArenaNotCancelled)
}

func TestClaimRewardRequiresSettled(t *testing.T) {
	e := newEngine(t, testSeed())
	e.enter(t, "alice", 0, 1_000_000)
	e.enter(t, "bob", 1, 1_000_000)
	payouts := e.payouts(domain.RewardSchemeSharedPool)

	_, err := payouts.ClaimReward(context.Background(), 1, "alice")
	assert.ErrorIs(t, err, domain.ErrArenaNotSettled)
}
