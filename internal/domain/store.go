package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ProtocolState is the process-wide protocol configuration singleton. It is
// created once at initialization and mutated only by administrator actions.
type ProtocolState struct {
	Admin          string
	FeeBps         uint64
	Duration       time.Duration
	MinPlayers     uint8
	MaxPlayers     uint8
	MaxPerAsset    uint8
	EntryMinValue  uint64 // 6-decimal unit of account; 0 disables the band
	EntryMaxValue  uint64
	CurrentArenaID uint64
	Paused         bool
	UpdatedAt      time.Time
}

// ProtocolStore persists the protocol singleton.
type ProtocolStore interface {
	// Init creates the singleton. It returns ErrAlreadyExists if the
	// protocol was initialized before.
	Init(ctx context.Context, st ProtocolState) error
	Get(ctx context.Context) (ProtocolState, error)
	Update(ctx context.Context, st ProtocolState) error
}

// ArenaStore persists arenas and their per-asset participation rows.
type ArenaStore interface {
	Create(ctx context.Context, a Arena) error
	Get(ctx context.Context, id uint64) (Arena, error)
	Update(ctx context.Context, a Arena) error
	List(ctx context.Context, opts ListOpts) ([]Arena, error)
	ListByStatus(ctx context.Context, status ArenaStatus, opts ListOpts) ([]Arena, error)
	// ListTerminalBefore returns settled/cancelled arenas that reached their
	// terminal state before the cutoff, for archival.
	ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]Arena, error)
	Delete(ctx context.Context, id uint64) error

	UpsertAssetStats(ctx context.Context, st AssetStats) error
	GetAssetStats(ctx context.Context, arenaID uint64, asset AssetIndex) (AssetStats, error)
	ListAssetStats(ctx context.Context, arenaID uint64) ([]AssetStats, error)
}

// EntryStore persists entries. The claim mutators are conditional updates:
// they succeed at most once per claim cell and return the idempotency error
// on any repeat, regardless of interleaving.
type EntryStore interface {
	// Create inserts a new entry. It returns ErrDuplicateEntry when the
	// participant already has an entry in the arena.
	Create(ctx context.Context, e Entry) error
	Get(ctx context.Context, arenaID uint64, participant string) (Entry, error)
	GetBySlot(ctx context.Context, arenaID uint64, slot uint8) (Entry, error)
	ListByArena(ctx context.Context, arenaID uint64) ([]Entry, error)
	// Delete removes one entry; the admission path uses it to unwind a
	// partially recorded entry.
	Delete(ctx context.Context, arenaID uint64, participant string) error
	DeleteByArena(ctx context.Context, arenaID uint64) error

	// MarkStakeClaimed sets the single-use stake-claim flag. It returns
	// ErrAlreadyClaimed if the flag was already set.
	MarkStakeClaimed(ctx context.Context, arenaID uint64, participant string) error
	// MarkFeeCollected sets the per-loser fee flag. It returns
	// ErrFeeAlreadyCollected if the fee was already taken.
	MarkFeeCollected(ctx context.Context, arenaID uint64, participant string) error
	// ClaimLoserBit sets bit loserSlot in the winner's claim bitmap. It
	// returns ErrAlreadyClaimed if that bit was already set.
	ClaimLoserBit(ctx context.Context, arenaID uint64, winner string, loserSlot uint8) error
}

// WhitelistStore persists the asset whitelist.
type WhitelistStore interface {
	Upsert(ctx context.Context, w WhitelistedAsset) error
	Get(ctx context.Context, index AssetIndex) (WhitelistedAsset, error)
	List(ctx context.Context, activeOnly bool) ([]WhitelistedAsset, error)
	// Deactivate marks the asset inactive; the row is retained.
	Deactivate(ctx context.Context, index AssetIndex) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]AuditEntry, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
