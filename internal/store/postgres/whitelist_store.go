package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mlabs-tech/cryptarena-svm/internal/domain"
)

// WhitelistStore implements domain.WhitelistStore using PostgreSQL.
type WhitelistStore struct {
	pool *pgxpool.Pool
}

// NewWhitelistStore creates a new WhitelistStore backed by the given connection pool.
func NewWhitelistStore(pool *pgxpool.Pool) *WhitelistStore {
	return &WhitelistStore{pool: pool}
}

// Upsert inserts or replaces a whitelisted asset.
func (s *WhitelistStore) Upsert(ctx context.Context, w domain.WhitelistedAsset) error {
	const query = `
		INSERT INTO whitelist (asset_index, chain_type, address, symbol, feed_id, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (asset_index) DO UPDATE SET
			chain_type = EXCLUDED.chain_type,
			address    = EXCLUDED.address,
			symbol     = EXCLUDED.symbol,
			feed_id    = EXCLUDED.feed_id,
			active     = EXCLUDED.active`

	_, err := s.pool.Exec(ctx, query,
		int16(w.Index), int16(w.ChainType), w.Address, w.Symbol, w.FeedID, w.Active,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert whitelist %d: %w", w.Index, err)
	}
	return nil
}

// Get retrieves a whitelisted asset by index.
func (s *WhitelistStore) Get(ctx context.Context, index domain.AssetIndex) (domain.WhitelistedAsset, error) {
	const query = `
		SELECT asset_index, chain_type, address, symbol, feed_id, active
		FROM whitelist WHERE asset_index = $1`

	var w domain.WhitelistedAsset
	var idx, chainType int16

	err := s.pool.QueryRow(ctx, query, int16(index)).Scan(
		&idx, &chainType, &w.Address, &w.Symbol, &w.FeedID, &w.Active,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.WhitelistedAsset{}, domain.ErrAssetNotWhitelisted
		}
		return domain.WhitelistedAsset{}, fmt.Errorf("postgres: get whitelist %d: %w", index, err)
	}

	w.Index = domain.AssetIndex(idx)
	w.ChainType = domain.ChainType(chainType)
	return w, nil
}

// List returns whitelisted assets ordered by index, optionally filtering to
// active rows.
func (s *WhitelistStore) List(ctx context.Context, activeOnly bool) ([]domain.WhitelistedAsset, error) {
	query := `SELECT asset_index, chain_type, address, symbol, feed_id, active FROM whitelist`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY asset_index ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list whitelist: %w", err)
	}
	defer rows.Close()

	var assets []domain.WhitelistedAsset
	for rows.Next() {
		var w domain.WhitelistedAsset
		var idx, chainType int16

		if err := rows.Scan(&idx, &chainType, &w.Address, &w.Symbol, &w.FeedID, &w.Active); err != nil {
			return nil, fmt.Errorf("postgres: scan whitelist: %w", err)
		}
		w.Index = domain.AssetIndex(idx)
		w.ChainType = domain.ChainType(chainType)
		assets = append(assets, w)
	}
	return assets, rows.Err()
}

// Deactivate marks an asset inactive so no new entries can use it.
func (s *WhitelistStore) Deactivate(ctx context.Context, index domain.AssetIndex) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE whitelist SET active = FALSE WHERE asset_index = $1`, int16(index))
	if err != nil {
		return fmt.Errorf("postgres: deactivate whitelist %d: %w", index, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAssetNotWhitelisted
	}
	return nil
}
