// Package service implements the arena engine's business operations on top of
// the domain store and cache interfaces.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mlabs-tech/cryptarena-svm/internal/domain"
)

// ProtocolService manages the protocol singleton and the asset whitelist:
// initialization, administrator-gated parameter changes, pause control, and
// treasury withdrawal.
type ProtocolService struct {
	protocol  domain.ProtocolStore
	whitelist domain.WhitelistStore
	ledger    domain.Ledger
	audit     domain.AuditStore
	logger    *slog.Logger
}

// NewProtocolService creates a ProtocolService with all required dependencies.
func NewProtocolService(
	protocol domain.ProtocolStore,
	whitelist domain.WhitelistStore,
	ledger domain.Ledger,
	audit domain.AuditStore,
	logger *slog.Logger,
) *ProtocolService {
	return &ProtocolService{
		protocol:  protocol,
		whitelist: whitelist,
		ledger:    ledger,
		audit:     audit,
		logger:    logger,
	}
}

// Init creates the protocol singleton from the seed state. If the protocol
// was initialized before, the persisted state wins and the seed is ignored.
func (s *ProtocolService) Init(ctx context.Context, seed domain.ProtocolState) (domain.ProtocolState, error) {
	if seed.Admin == "" {
		return domain.ProtocolState{}, fmt.Errorf("protocol_service: init: %w", domain.ErrUnauthorized)
	}
	if seed.Duration <= 0 {
		return domain.ProtocolState{}, fmt.Errorf("protocol_service: init: %w", domain.ErrInvalidDuration)
	}
	if seed.MaxPlayers > domain.MaxArenaCapacity {
		return domain.ProtocolState{}, fmt.Errorf("protocol_service: init: capacity %d exceeds %d",
			seed.MaxPlayers, domain.MaxArenaCapacity)
	}
	if seed.CurrentArenaID == 0 {
		seed.CurrentArenaID = 1
	}

	err := s.protocol.Init(ctx, seed)
	switch {
	case err == nil:
		s.logger.InfoContext(ctx, "protocol_service: protocol initialized",
			slog.String("admin", seed.Admin),
			slog.Uint64("fee_bps", seed.FeeBps),
			slog.Duration("duration", seed.Duration),
		)
		return seed, nil
	case err == domain.ErrAlreadyExists:
		return s.protocol.Get(ctx)
	default:
		return domain.ProtocolState{}, fmt.Errorf("protocol_service: init: %w", err)
	}
}

// Get returns the current protocol state.
func (s *ProtocolService) Get(ctx context.Context) (domain.ProtocolState, error) {
	return s.protocol.Get(ctx)
}

// SetFee updates the platform fee rate.
func (s *ProtocolService) SetFee(ctx context.Context, actor string, feeBps uint64) error {
	if feeBps >= 10_000 {
		return fmt.Errorf("protocol_service: set fee: rate %d out of range: %w", feeBps, domain.ErrInvalidAmount)
	}
	return s.mutate(ctx, actor, "fee_updated", map[string]any{"fee_bps": feeBps},
		func(st *domain.ProtocolState) error {
			st.FeeBps = feeBps
			return nil
		})
}

// SetDuration updates the round duration applied to arenas activated after
// the change.
func (s *ProtocolService) SetDuration(ctx context.Context, actor string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("protocol_service: set duration: %w", domain.ErrInvalidDuration)
	}
	return s.mutate(ctx, actor, "duration_updated", map[string]any{"duration": d.String()},
		func(st *domain.ProtocolState) error {
			st.Duration = d
			return nil
		})
}

// SetCaps updates the player capacity limits.
func (s *ProtocolService) SetCaps(ctx context.Context, actor string, minPlayers, maxPlayers, maxPerAsset uint8) error {
	if minPlayers < 1 || maxPlayers < minPlayers || maxPerAsset < 1 {
		return fmt.Errorf("protocol_service: set caps: %w", domain.ErrInvalidAmount)
	}
	if maxPlayers > domain.MaxArenaCapacity {
		return fmt.Errorf("protocol_service: set caps: capacity %d exceeds %d: %w",
			maxPlayers, domain.MaxArenaCapacity, domain.ErrInvalidAmount)
	}
	return s.mutate(ctx, actor, "caps_updated", map[string]any{
		"min_players":   minPlayers,
		"max_players":   maxPlayers,
		"max_per_asset": maxPerAsset,
	}, func(st *domain.ProtocolState) error {
		st.MinPlayers = minPlayers
		st.MaxPlayers = maxPlayers
		st.MaxPerAsset = maxPerAsset
		return nil
	})
}

// SetEntryBand updates the oracle-quoted entry value band. Zero on both
// bounds disables the band.
func (s *ProtocolService) SetEntryBand(ctx context.Context, actor string, minValue, maxValue uint64) error {
	if (minValue == 0) != (maxValue == 0) || maxValue < minValue {
		return fmt.Errorf("protocol_service: set entry band: %w", domain.ErrInvalidAmount)
	}
	return s.mutate(ctx, actor, "entry_band_updated", map[string]any{
		"min_value": minValue,
		"max_value": maxValue,
	}, func(st *domain.ProtocolState) error {
		st.EntryMinValue = minValue
		st.EntryMaxValue = maxValue
		return nil
	})
}

// Pause stops new entries protocol-wide. In-flight arenas continue their
// lifecycle and claims remain available.
func (s *ProtocolService) Pause(ctx context.Context, actor string) error {
	return s.mutate(ctx, actor, "protocol_paused", nil,
		func(st *domain.ProtocolState) error {
			st.Paused = true
			return nil
		})
}

// Resume re-enables entries.
func (s *ProtocolService) Resume(ctx context.Context, actor string) error {
	return s.mutate(ctx, actor, "protocol_resumed", nil,
		func(st *domain.ProtocolState) error {
			st.Paused = false
			return nil
		})
}

// TransferAdmin hands the administrator role to another account.
func (s *ProtocolService) TransferAdmin(ctx context.Context, actor, newAdmin string) error {
	if newAdmin == "" {
		return fmt.Errorf("protocol_service: transfer admin: empty account: %w", domain.ErrInvalidAmount)
	}
	return s.mutate(ctx, actor, "admin_transferred", map[string]any{"new_admin": newAdmin},
		func(st *domain.ProtocolState) error {
			st.Admin = newAdmin
			return nil
		})
}

// WhitelistAsset adds or replaces a whitelisted asset.
func (s *ProtocolService) WhitelistAsset(ctx context.Context, actor string, w domain.WhitelistedAsset) error {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return err
	}
	if err := w.Validate(); err != nil {
		return fmt.Errorf("protocol_service: whitelist asset: %w", err)
	}

	if err := s.whitelist.Upsert(ctx, w); err != nil {
		return fmt.Errorf("protocol_service: whitelist asset: %w", err)
	}

	s.auditLog(ctx, "asset_whitelisted", map[string]any{
		"asset":  w.Index,
		"symbol": w.Symbol,
	})
	return nil
}

// DeactivateAsset removes an asset from new-entry eligibility. Existing
// entries and arenas are unaffected.
func (s *ProtocolService) DeactivateAsset(ctx context.Context, actor string, index domain.AssetIndex) error {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return err
	}

	if err := s.whitelist.Deactivate(ctx, index); err != nil {
		return fmt.Errorf("protocol_service: deactivate asset: %w", err)
	}

	s.auditLog(ctx, "asset_deactivated", map[string]any{"asset": index})
	return nil
}

// ListAssets returns the whitelist.
func (s *ProtocolService) ListAssets(ctx context.Context, activeOnly bool) ([]domain.WhitelistedAsset, error) {
	return s.whitelist.List(ctx, activeOnly)
}

// WithdrawTreasury moves collected fees out of the treasury account.
func (s *ProtocolService) WithdrawTreasury(ctx context.Context, actor, to string, amount uint64) error {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return err
	}
	if amount == 0 {
		return fmt.Errorf("protocol_service: withdraw treasury: %w", domain.ErrInvalidAmount)
	}

	if err := s.ledger.Transfer(ctx, domain.TreasuryAccount, to, amount); err != nil {
		return fmt.Errorf("protocol_service: withdraw treasury: %w", err)
	}

	s.auditLog(ctx, "treasury_withdrawn", map[string]any{
		"to":     to,
		"amount": amount,
	})
	s.logger.InfoContext(ctx, "protocol_service: treasury withdrawn",
		slog.String("to", to),
		slog.Uint64("amount", amount),
	)
	return nil
}

// requireAdmin rejects callers other than the configured administrator.
func (s *ProtocolService) requireAdmin(ctx context.Context, actor string) error {
	st, err := s.protocol.Get(ctx)
	if err != nil {
		return fmt.Errorf("protocol_service: get state: %w", err)
	}
	if actor != st.Admin {
		return fmt.Errorf("protocol_service: actor %q: %w", actor, domain.ErrUnauthorized)
	}
	return nil
}

// mutate applies an admin-gated read-modify-write on the protocol singleton.
func (s *ProtocolService) mutate(ctx context.Context, actor, event string, detail map[string]any, fn func(*domain.ProtocolState) error) error {
	st, err := s.protocol.Get(ctx)
	if err != nil {
		return fmt.Errorf("protocol_service: get state: %w", err)
	}
	if actor != st.Admin {
		return fmt.Errorf("protocol_service: actor %q: %w", actor, domain.ErrUnauthorized)
	}

	if err := fn(&st); err != nil {
		return err
	}

	if err := s.protocol.Update(ctx, st); err != nil {
		return fmt.Errorf("protocol_service: update state: %w", err)
	}

	s.auditLog(ctx, event, detail)
	return nil
}

func (s *ProtocolService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "protocol_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
