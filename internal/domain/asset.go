package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ChainType identifies which chain a whitelisted token lives on.
type ChainType uint8

const (
	ChainNative ChainType = 0 // settlement-chain token, 32-byte address
	ChainEVM    ChainType = 1 // EVM token, 20-byte hex address
)

// WhitelistedAsset is an asset eligible for arena entry. Removal deactivates
// the row rather than deleting it so historical arenas keep resolving the
// symbol.
type WhitelistedAsset struct {
	Index     AssetIndex
	ChainType ChainType
	// Address is the token address on its chain: a base58 string for native
	// tokens, a 0x-prefixed hex address for EVM tokens.
	Address string
	Symbol  string
	// FeedID is the 32-byte oracle price feed identifier, hex encoded. Price
	// reads are rejected when the feed serving the quote does not match.
	FeedID string
	Active bool
}

// Validate checks the whitelist row for structural problems before it is
// persisted.
func (w WhitelistedAsset) Validate() error {
	if w.Index == AssetNone {
		return fmt.Errorf("asset index %d is reserved: %w", w.Index, ErrInvalidAsset)
	}
	if w.Symbol == "" || len(w.Symbol) > 10 {
		return fmt.Errorf("symbol %q must be 1-10 characters: %w", w.Symbol, ErrInvalidAsset)
	}
	switch w.ChainType {
	case ChainNative:
		if w.Address == "" {
			return fmt.Errorf("native token address must not be empty: %w", ErrInvalidAsset)
		}
	case ChainEVM:
		if !common.IsHexAddress(w.Address) {
			return fmt.Errorf("invalid EVM token address %q: %w", w.Address, ErrInvalidAsset)
		}
	default:
		return fmt.Errorf("unknown chain type %d: %w", w.ChainType, ErrInvalidAsset)
	}
	if len(strings.TrimPrefix(w.FeedID, "0x")) != 64 {
		return fmt.Errorf("feed id %q must be 32 bytes hex: %w", w.FeedID, ErrInvalidAsset)
	}
	return nil
}

// NormalizedAddress returns the canonical form of the token address: EVM
// addresses are checksummed, native addresses returned as-is.
func (w WhitelistedAsset) NormalizedAddress() string {
	if w.ChainType == ChainEVM {
		return common.HexToAddress(w.Address).Hex()
	}
	return w.Address
}

// NormalizedFeedID returns the feed id without a 0x prefix, lowercased.
func (w WhitelistedAsset) NormalizedFeedID() string {
	return strings.ToLower(strings.TrimPrefix(w.FeedID, "0x"))
}
