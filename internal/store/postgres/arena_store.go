package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mlabs-tech/cryptarena-svm/internal/domain"
)

// ArenaStore implements domain.ArenaStore using PostgreSQL.
type ArenaStore struct {
	pool *pgxpool.Pool
}

// NewArenaStore creates a new ArenaStore backed by the given connection pool.
func NewArenaStore(pool *pgxpool.Pool) *ArenaStore {
	return &ArenaStore{pool: pool}
}

const arenaSelectCols = `id, status, player_count, asset_count,
	start_prices, end_prices, winning_asset, total_pool, fee_collected,
	started_at, ends_at, created_at, settled_at`

func scanArenaRow(row pgx.Row) (domain.Arena, error) {
	var a domain.Arena
	var id, totalPool int64
	var status string
	var playerCount, assetCount, startPrices, endPrices, winningAsset int16

	err := row.Scan(
		&id, &status, &playerCount, &assetCount,
		&startPrices, &endPrices, &winningAsset, &totalPool, &a.FeeCollected,
		&a.StartedAt, &a.EndsAt, &a.CreatedAt, &a.SettledAt,
	)
	if err != nil {
		return domain.Arena{}, err
	}

	a.ID = uint64(id)
	a.Status = domain.ParseArenaStatus(status)
	a.PlayerCount = uint8(playerCount)
	a.AssetCount = uint8(assetCount)
	a.StartPrices = uint8(startPrices)
	a.EndPrices = uint8(endPrices)
	a.WinningAsset = domain.AssetIndex(winningAsset)
	a.TotalPool = uint64(totalPool)
	return a, nil
}

func scanArenaRows(rows pgx.Rows) ([]domain.Arena, error) {
	var arenas []domain.Arena
	for rows.Next() {
		a, err := scanArenaRow(rows)
		if err != nil {
			return nil, err
		}
		arenas = append(arenas, a)
	}
	return arenas, rows.Err()
}

// Create inserts a new arena.
func (s *ArenaStore) Create(ctx context.Context, a domain.Arena) error {
	const query = `
		INSERT INTO arenas (
			id, status, player_count, asset_count,
			start_prices, end_prices, winning_asset, total_pool, fee_collected,
			started_at, ends_at, created_at, settled_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9,
			$10, $11, $12, $13
		)`

	_, err := s.pool.Exec(ctx, query,
		int64(a.ID), a.Status.String(), int16(a.PlayerCount), int16(a.AssetCount),
		int16(a.StartPrices), int16(a.EndPrices), int16(a.WinningAsset),
		int64(a.TotalPool), a.FeeCollected,
		a.StartedAt, a.EndsAt, a.CreatedAt, a.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create arena %d: %w", a.ID, err)
	}
	return nil
}

// Get retrieves a single arena by its ID.
func (s *ArenaStore) Get(ctx context.Context, id uint64) (domain.Arena, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+arenaSelectCols+` FROM arenas WHERE id = $1`, int64(id))

	a, err := scanArenaRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Arena{}, domain.ErrNotFound
		}
		return domain.Arena{}, fmt.Errorf("postgres: get arena %d: %w", id, err)
	}
	return a, nil
}

// Update replaces all mutable fields of an arena.
func (s *ArenaStore) Update(ctx context.Context, a domain.Arena) error {
	const query = `
		UPDATE arenas SET
			status        = $2,
			player_count  = $3,
			asset_count   = $4,
			start_prices  = $5,
			end_prices    = $6,
			winning_asset = $7,
			total_pool    = $8,
			fee_collected = $9,
			started_at    = $10,
			ends_at       = $11,
			settled_at    = $12
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		int64(a.ID), a.Status.String(), int16(a.PlayerCount), int16(a.AssetCount),
		int16(a.StartPrices), int16(a.EndPrices), int16(a.WinningAsset),
		int64(a.TotalPool), a.FeeCollected,
		a.StartedAt, a.EndsAt, a.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update arena %d: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns arenas ordered by creation time, newest first.
func (s *ArenaStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Arena, error) {
	query := `SELECT ` + arenaSelectCols + ` FROM arenas`
	var args []any
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" WHERE created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list arenas: %w", err)
	}
	defer rows.Close()

	arenas, err := scanArenaRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan arenas: %w", err)
	}
	return arenas, nil
}

// ListByStatus returns arenas in the given status, newest first.
func (s *ArenaStore) ListByStatus(ctx context.Context, status domain.ArenaStatus, opts domain.ListOpts) ([]domain.Arena, error) {
	query := `SELECT ` + arenaSelectCols + ` FROM arenas WHERE status = $1 ORDER BY created_at DESC`
	args := []any{status.String()}

	if opts.Limit > 0 {
		query += " LIMIT $2"
		args = append(args, opts.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list arenas by status: %w", err)
	}
	defer rows.Close()

	arenas, err := scanArenaRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan arenas by status: %w", err)
	}
	return arenas, nil
}

// ListTerminalBefore returns settled or cancelled arenas whose terminal
// timestamp is older than the cutoff, oldest first.
func (s *ArenaStore) ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Arena, error) {
	const query = `
		SELECT ` + arenaSelectCols + ` FROM arenas
		WHERE status IN ('settled', 'cancelled') AND settled_at < $1 AND settled_at > 'epoch'
		ORDER BY settled_at ASC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal arenas: %w", err)
	}
	defer rows.Close()

	arenas, err := scanArenaRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan terminal arenas: %w", err)
	}
	return arenas, nil
}

// Delete removes an arena and, via cascade, its asset rows and entries.
func (s *ArenaStore) Delete(ctx context.Context, id uint64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM arenas WHERE id = $1`, int64(id))
	if err != nil {
		return fmt.Errorf("postgres: delete arena %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpsertAssetStats inserts or replaces the per-asset row for an arena.
func (s *ArenaStore) UpsertAssetStats(ctx context.Context, st domain.AssetStats) error {
	const query = `
		INSERT INTO arena_assets (
			arena_id, asset, player_count, start_price, end_price, movement, movement_set
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (arena_id, asset) DO UPDATE SET
			player_count = EXCLUDED.player_count,
			start_price  = EXCLUDED.start_price,
			end_price    = EXCLUDED.end_price,
			movement     = EXCLUDED.movement,
			movement_set = EXCLUDED.movement_set`

	_, err := s.pool.Exec(ctx, query,
		int64(st.ArenaID), int16(st.Asset), int16(st.PlayerCount),
		int64(st.StartPrice), int64(st.EndPrice), st.Movement, st.MovementSet,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert asset stats %d/%d: %w", st.ArenaID, st.Asset, err)
	}
	return nil
}

// GetAssetStats retrieves the per-asset row for an arena.
func (s *ArenaStore) GetAssetStats(ctx context.Context, arenaID uint64, asset domain.AssetIndex) (domain.AssetStats, error) {
	const query = `
		SELECT arena_id, asset, player_count, start_price, end_price, movement, movement_set
		FROM arena_assets WHERE arena_id = $1 AND asset = $2`

	st, err := scanAssetStatsRow(s.pool.QueryRow(ctx, query, int64(arenaID), int16(asset)))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.AssetStats{}, domain.ErrNotFound
		}
		return domain.AssetStats{}, fmt.Errorf("postgres: get asset stats %d/%d: %w", arenaID, asset, err)
	}
	return st, nil
}

// ListAssetStats returns all per-asset rows for an arena ordered by asset index.
func (s *ArenaStore) ListAssetStats(ctx context.Context, arenaID uint64) ([]domain.AssetStats, error) {
	const query = `
		SELECT arena_id, asset, player_count, start_price, end_price, movement, movement_set
		FROM arena_assets WHERE arena_id = $1 ORDER BY asset ASC`

	rows, err := s.pool.Query(ctx, query, int64(arenaID))
	if err != nil {
		return nil, fmt.Errorf("postgres: list asset stats %d: %w", arenaID, err)
	}
	defer rows.Close()

	var stats []domain.AssetStats
	for rows.Next() {
		st, err := scanAssetStatsRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan asset stats %d: %w", arenaID, err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func scanAssetStatsRow(row pgx.Row) (domain.AssetStats, error) {
	var st domain.AssetStats
	var arenaID, startPrice, endPrice int64
	var asset, playerCount int16

	err := row.Scan(&arenaID, &asset, &playerCount, &startPrice, &endPrice, &st.Movement, &st.MovementSet)
	if err != nil {
		return domain.AssetStats{}, err
	}

	st.ArenaID = uint64(arenaID)
	st.Asset = domain.AssetIndex(asset)
	st.PlayerCount = uint8(playerCount)
	st.StartPrice = uint64(startPrice)
	st.EndPrice = uint64(endPrice)
	return st, nil
}
