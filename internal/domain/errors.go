package domain

import "errors"

// Validation errors. Rejected before any state mutation; the caller may retry
// with corrected input.
var (
	ErrAssetNotWhitelisted   = errors.New("asset not whitelisted")
	ErrAssetAlreadyTaken     = errors.New("asset already taken in this arena")
	ErrAssetCapReached       = errors.New("max entries for this asset reached")
	ErrAssetNotInArena       = errors.New("asset not represented in arena")
	ErrEntryValueOutOfBounds = errors.New("entry value outside configured bounds")
	ErrInvalidAsset          = errors.New("invalid asset index")
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrInvalidDuration       = errors.New("invalid arena duration")
	ErrDuplicateEntry        = errors.New("participant already entered this arena")
	ErrSchemeDisabled        = errors.New("operation not available under the configured reward scheme")
)

// Phase errors. The caller must wait or invoke the correct predecessor
// operation first.
var (
	ErrArenaNotAcceptingEntries = errors.New("arena not accepting entries")
	ErrArenaFull                = errors.New("arena is full")
	ErrArenaNotReady            = errors.New("arena not ready for price capture")
	ErrArenaNotActive           = errors.New("arena not active")
	ErrArenaNotClosing          = errors.New("arena not in closing state")
	ErrArenaNotSettled          = errors.New("arena not settled")
	ErrArenaNotCancelled        = errors.New("arena not cancelled")
	ErrNotEnoughPlayers         = errors.New("not enough players to start")
	ErrDurationNotComplete      = errors.New("arena duration not complete")
	ErrProtocolPaused           = errors.New("protocol is paused")
)

// Authorization and idempotency errors.
var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrNotAWinner            = errors.New("entry did not pick the winning asset")
	ErrCannotClaimFromWinner = errors.New("cannot claim from a winning entry")
	ErrAlreadyClaimed        = errors.New("already claimed")
	ErrFeeAlreadyCollected   = errors.New("fee already collected")
)

// Invariant and infrastructure errors.
var (
	ErrMissingPriceData  = errors.New("missing price data for represented asset")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrStalePrice        = errors.New("oracle price too old")
	ErrFeedMismatch      = errors.New("oracle feed id mismatch")
	ErrLockHeld          = errors.New("lock already held")
	ErrRateLimited       = errors.New("rate limited")
)
