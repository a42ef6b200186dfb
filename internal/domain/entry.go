package domain

import (
	"math/bits"
	"time"
)

// Entry is a single participant's stake-and-asset-choice record within one
// arena. At most one entry exists per (arena, participant) pair. Claim flags
// and the bitmap are set at most once each; an entry with both claim flags set
// is immutable.
type Entry struct {
	ArenaID     uint64
	Participant string
	Asset       AssetIndex
	// Amount is the raw staked amount; Value is its worth in the pool's unit
	// of account at entry time.
	Amount uint64
	Value  uint64
	// Slot is the entry's 0-based position within the arena, used to address
	// claim-bitmap bits.
	Slot      uint8
	EnteredAt time.Time

	// StakeClaimed guards the single-use own-stake claim (winner stake
	// return, shared-pool reward, or cancelled-arena refund).
	StakeClaimed bool
	// FeeCollected is set on a losing entry once the platform fee slice has
	// been collected from it (pairwise scheme).
	FeeCollected bool
	// Claimed marks, per loser slot, whether this entry (as a winner) has
	// already taken its share of that loser's stake. Bits are never cleared.
	Claimed Bitmap128
}

// Bitmap128 is a fixed-width claim bitmap. Bit i corresponds to the entry at
// slot i; MaxArenaCapacity matches the bitmap width so every slot is
// addressable.
type Bitmap128 struct {
	Hi, Lo uint64
}

// Bit reports whether bit i is set.
func (b Bitmap128) Bit(i uint8) bool {
	if i < 64 {
		return b.Lo&(1<<i) != 0
	}
	return b.Hi&(1<<(i-64)) != 0
}

// Set returns a copy of the bitmap with bit i set.
func (b Bitmap128) Set(i uint8) Bitmap128 {
	if i < 64 {
		b.Lo |= 1 << i
	} else {
		b.Hi |= 1 << (i - 64)
	}
	return b
}

// Count returns the number of set bits.
func (b Bitmap128) Count() int {
	return bits.OnesCount64(b.Lo) + bits.OnesCount64(b.Hi)
}

// IsZero reports whether no bit is set.
func (b Bitmap128) IsZero() bool {
	return b.Hi == 0 && b.Lo == 0
}
