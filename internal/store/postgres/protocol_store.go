package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mlabs-tech/cryptarena-svm/internal/domain"
)

// ProtocolStore implements domain.ProtocolStore using PostgreSQL. The table
// holds a single row guarded by a constant primary key.
type ProtocolStore struct {
	pool *pgxpool.Pool
}

// NewProtocolStore creates a new ProtocolStore backed by the given connection pool.
func NewProtocolStore(pool *pgxpool.Pool) *ProtocolStore {
	return &ProtocolStore{pool: pool}
}

// Init creates the protocol singleton.
func (s *ProtocolStore) Init(ctx context.Context, st domain.ProtocolState) error {
	const query = `
		INSERT INTO protocol_state (
			singleton, admin, fee_bps, duration_secs,
			min_players, max_players, max_per_asset,
			entry_min_value, entry_max_value,
			current_arena_id, paused, updated_at
		) VALUES (
			TRUE, $1, $2, $3,
			$4, $5, $6,
			$7, $8,
			$9, $10, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		st.Admin, int64(st.FeeBps), int64(st.Duration/time.Second),
		int16(st.MinPlayers), int16(st.MaxPlayers), int16(st.MaxPerAsset),
		int64(st.EntryMinValue), int64(st.EntryMaxValue),
		int64(st.CurrentArenaID), st.Paused,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: init protocol: %w", err)
	}
	return nil
}

// Get returns the protocol singleton.
func (s *ProtocolStore) Get(ctx context.Context) (domain.ProtocolState, error) {
	const query = `
		SELECT admin, fee_bps, duration_secs,
		       min_players, max_players, max_per_asset,
		       entry_min_value, entry_max_value,
		       current_arena_id, paused, updated_at
		FROM protocol_state WHERE singleton`

	var st domain.ProtocolState
	var feeBps, durationSecs, entryMin, entryMax, arenaID int64
	var minPlayers, maxPlayers, maxPerAsset int16

	err := s.pool.QueryRow(ctx, query).Scan(
		&st.Admin, &feeBps, &durationSecs,
		&minPlayers, &maxPlayers, &maxPerAsset,
		&entryMin, &entryMax,
		&arenaID, &st.Paused, &st.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.ProtocolState{}, domain.ErrNotFound
		}
		return domain.ProtocolState{}, fmt.Errorf("postgres: get protocol: %w", err)
	}

	st.FeeBps = uint64(feeBps)
	st.Duration = time.Duration(durationSecs) * time.Second
	st.MinPlayers = uint8(minPlayers)
	st.MaxPlayers = uint8(maxPlayers)
	st.MaxPerAsset = uint8(maxPerAsset)
	st.EntryMinValue = uint64(entryMin)
	st.EntryMaxValue = uint64(entryMax)
	st.CurrentArenaID = uint64(arenaID)
	return st, nil
}

// Update replaces all mutable fields of the protocol singleton.
func (s *ProtocolStore) Update(ctx context.Context, st domain.ProtocolState) error {
	const query = `
		UPDATE protocol_state SET
			admin            = $1,
			fee_bps          = $2,
			duration_secs    = $3,
			min_players      = $4,
			max_players      = $5,
			max_per_asset    = $6,
			entry_min_value  = $7,
			entry_max_value  = $8,
			current_arena_id = $9,
			paused           = $10,
			updated_at       = NOW()
		WHERE singleton`

	tag, err := s.pool.Exec(ctx, query,
		st.Admin, int64(st.FeeBps), int64(st.Duration/time.Second),
		int16(st.MinPlayers), int16(st.MaxPlayers), int16(st.MaxPerAsset),
		int64(st.EntryMinValue), int64(st.EntryMaxValue),
		int64(st.CurrentArenaID), st.Paused,
	)
	if err != nil {
		return fmt.Errorf("postgres: update protocol: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
