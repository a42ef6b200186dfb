package domain

import "fmt"

// RewardScheme selects how a settled arena's pool is divided.
type RewardScheme string

const (
	// RewardSchemeSharedPool pays each winning entry a flat share of the
	// whole pool minus the platform fee. The flat split (rather than a
	// stake-proportional one) is deliberate.
	RewardSchemeSharedPool RewardScheme = "shared_pool"

	// RewardSchemePairwise pays winners out of each losing entry
	// individually: a winner claims loser_value / winner_count per loser,
	// minus the fee on that slice, and reclaims its own stake separately.
	RewardSchemePairwise RewardScheme = "pairwise"
)

// ParseRewardScheme validates a scheme name from configuration.
func ParseRewardScheme(s string) (RewardScheme, error) {
	switch RewardScheme(s) {
	case RewardSchemeSharedPool, RewardSchemePairwise:
		return RewardScheme(s), nil
	}
	return "", fmt.Errorf("domain: unknown reward scheme %q", s)
}

// FeeOn returns the platform fee on value at the given basis-point rate.
func FeeOn(value, feeBps uint64) uint64 {
	return value * feeBps / 10_000
}
