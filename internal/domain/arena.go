// Package domain defines the core types, interfaces, and pure functions of the
// cryptarena settlement engine: arenas, entries, asset whitelisting, price
// movement math, and the store/cache/oracle/ledger contracts implemented by
// the infrastructure packages.
package domain

import (
	"strconv"
	"time"
)

// AssetIndex identifies a whitelisted asset within the protocol. Indexes are
// assigned by the administrator when the asset is whitelisted.
type AssetIndex = uint8

// AssetNone is the winning-asset sentinel for arenas that have not settled
// (or settled as cancelled).
const AssetNone AssetIndex = 255

// MaxArenaCapacity is the hard upper bound on participants per arena. The
// claim bitmap on each entry is 128 bits wide and addresses losers by slot
// index, so capacity must never exceed the bitmap width.
const MaxArenaCapacity = 128

// ArenaStatus is the lifecycle state of an arena.
type ArenaStatus uint8

const (
	StatusUninitialized ArenaStatus = iota
	// StatusOpen accepts entries until capacity or an explicit admin start.
	StatusOpen
	// StatusReady is reached when the arena fills; it awaits start prices.
	StatusReady
	// StatusStarting means at least one, but not all, start prices are set.
	StatusStarting
	// StatusActive means the contest window is running.
	StatusActive
	// StatusClosing means the window elapsed and end prices are being set.
	StatusClosing
	// StatusSettled is terminal: a winning asset was fixed.
	StatusSettled
	// StatusCancelled is terminal: a movement tie voided the arena and every
	// entry is refundable.
	StatusCancelled
)

// String returns the lowercase name used in storage, logs, and the API.
func (s ArenaStatus) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusOpen:
		return "open"
	case StatusReady:
		return "ready"
	case StatusStarting:
		return "starting"
	case StatusActive:
		return "active"
	case StatusClosing:
		return "closing"
	case StatusSettled:
		return "settled"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseArenaStatus maps a stored status name back to its enum value.
func ParseArenaStatus(s string) ArenaStatus {
	for st := StatusUninitialized; st <= StatusCancelled; st++ {
		if st.String() == s {
			return st
		}
	}
	return StatusUninitialized
}

// Terminal reports whether the status is permanent for the arena.
func (s ArenaStatus) Terminal() bool {
	return s == StatusSettled || s == StatusCancelled
}

// AcceptsEntries reports whether new entries may join an arena in this status.
func (s ArenaStatus) AcceptsEntries() bool {
	return s == StatusOpen
}

// Arena is one instance of the timed contest, from entry-open to a terminal
// settled or cancelled outcome. It is the unit of serialization: operations on
// different arenas never contend.
type Arena struct {
	ID           uint64
	Status       ArenaStatus
	PlayerCount  uint8
	AssetCount   uint8
	StartPrices  uint8 // represented assets with a start price captured
	EndPrices    uint8 // represented assets with an end price captured
	WinningAsset AssetIndex
	// TotalPool is the sum of entry values in the unit of account. It equals
	// that sum at all times before settlement payouts begin.
	TotalPool    uint64
	FeeCollected bool // pooled fee swept (shared-pool scheme only)
	StartedAt    time.Time
	EndsAt       time.Time
	CreatedAt    time.Time
	SettledAt    time.Time
}

// AssetStats tracks one distinct asset actually entered in an arena: its
// participant count and captured prices. Its lifecycle mirrors the owning
// arena.
type AssetStats struct {
	ArenaID     uint64
	Asset       AssetIndex
	PlayerCount uint8
	StartPrice  uint64
	EndPrice    uint64
	// Movement is the signed fixed-point percentage change between the
	// captured prices at the configured precision. Valid only when
	// MovementSet is true; a zero start price leaves it unset and the asset
	// ineligible for winner comparison.
	Movement    int64
	MovementSet bool
}

// EscrowAccount returns the ledger account holding an arena's pool.
func EscrowAccount(arenaID uint64) string {
	return "escrow:" + strconv.FormatUint(arenaID, 10)
}

// TreasuryAccount accrues platform fees across all arenas.
const TreasuryAccount = "treasury"
