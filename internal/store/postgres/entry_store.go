package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mlabs-tech/cryptarena-svm/internal/domain"
)

// EntryStore implements domain.EntryStore using PostgreSQL. Claim flags and
// bitmap bits are flipped with conditional UPDATEs, so each claim cell can be
// consumed exactly once no matter how requests interleave.
type EntryStore struct {
	pool *pgxpool.Pool
}

// NewEntryStore creates a new EntryStore backed by the given connection pool.
func NewEntryStore(pool *pgxpool.Pool) *EntryStore {
	return &EntryStore{pool: pool}
}

const entrySelectCols = `arena_id, participant, asset, amount, value, slot,
	entered_at, stake_claimed, fee_collected, claimed_hi, claimed_lo`

func scanEntryRow(row pgx.Row) (domain.Entry, error) {
	var e domain.Entry
	var arenaID, amount, value, claimedHi, claimedLo int64
	var asset, slot int16

	err := row.Scan(
		&arenaID, &e.Participant, &asset, &amount, &value, &slot,
		&e.EnteredAt, &e.StakeClaimed, &e.FeeCollected, &claimedHi, &claimedLo,
	)
	if err != nil {
		return domain.Entry{}, err
	}

	e.ArenaID = uint64(arenaID)
	e.Asset = domain.AssetIndex(asset)
	e.Amount = uint64(amount)
	e.Value = uint64(value)
	e.Slot = uint8(slot)
	e.Claimed = domain.Bitmap128{Hi: uint64(claimedHi), Lo: uint64(claimedLo)}
	return e, nil
}

// Create inserts a new entry.
func (s *EntryStore) Create(ctx context.Context, e domain.Entry) error {
	const query = `
		INSERT INTO entries (
			arena_id, participant, asset, amount, value, slot,
			entered_at, stake_claimed, fee_collected, claimed_hi, claimed_lo
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11
		)`

	_, err := s.pool.Exec(ctx, query,
		int64(e.ArenaID), e.Participant, int16(e.Asset),
		int64(e.Amount), int64(e.Value), int16(e.Slot),
		e.EnteredAt, e.StakeClaimed, e.FeeCollected,
		int64(e.Claimed.Hi), int64(e.Claimed.Lo),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrDuplicateEntry
		}
		return fmt.Errorf("postgres: create entry %d/%s: %w", e.ArenaID, e.Participant, err)
	}
	return nil
}

// Get retrieves a single entry by arena and participant.
func (s *EntryStore) Get(ctx context.Context, arenaID uint64, participant string) (domain.Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entrySelectCols+` FROM entries WHERE arena_id = $1 AND participant = $2`,
		int64(arenaID), participant)

	e, err := scanEntryRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Entry{}, domain.ErrNotFound
		}
		return domain.Entry{}, fmt.Errorf("postgres: get entry %d/%s: %w", arenaID, participant, err)
	}
	return e, nil
}

// GetBySlot retrieves the entry occupying a slot in an arena.
func (s *EntryStore) GetBySlot(ctx context.Context, arenaID uint64, slot uint8) (domain.Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entrySelectCols+` FROM entries WHERE arena_id = $1 AND slot = $2`,
		int64(arenaID), int16(slot))

	e, err := scanEntryRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Entry{}, domain.ErrNotFound
		}
		return domain.Entry{}, fmt.Errorf("postgres: get entry %d slot %d: %w", arenaID, slot, err)
	}
	return e, nil
}

// ListByArena returns all entries for an arena ordered by slot.
func (s *EntryStore) ListByArena(ctx context.Context, arenaID uint64) ([]domain.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entrySelectCols+` FROM entries WHERE arena_id = $1 ORDER BY slot ASC`,
		int64(arenaID))
	if err != nil {
		return nil, fmt.Errorf("postgres: list entries %d: %w", arenaID, err)
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		e, err := scanEntryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan entries %d: %w", arenaID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes one entry.
func (s *EntryStore) Delete(ctx context.Context, arenaID uint64, participant string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM entries WHERE arena_id = $1 AND participant = $2`,
		int64(arenaID), participant)
	if err != nil {
		return fmt.Errorf("postgres: delete entry %d/%s: %w", arenaID, participant, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteByArena removes every entry for an arena.
func (s *EntryStore) DeleteByArena(ctx context.Context, arenaID uint64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM entries WHERE arena_id = $1`, int64(arenaID))
	if err != nil {
		return fmt.Errorf("postgres: delete entries %d: %w", arenaID, err)
	}
	return nil
}

// MarkStakeClaimed sets the single-use stake-claim flag.
func (s *EntryStore) MarkStakeClaimed(ctx context.Context, arenaID uint64, participant string) error {
	const query = `
		UPDATE entries SET stake_claimed = TRUE
		WHERE arena_id = $1 AND participant = $2 AND NOT stake_claimed`

	tag, err := s.pool.Exec(ctx, query, int64(arenaID), participant)
	if err != nil {
		return fmt.Errorf("postgres: mark stake claimed %d/%s: %w", arenaID, participant, err)
	}
	if tag.RowsAffected() == 0 {
		return s.zeroRowsErr(ctx, arenaID, participant, domain.ErrAlreadyClaimed)
	}
	return nil
}

// MarkFeeCollected sets the per-loser fee flag.
func (s *EntryStore) MarkFeeCollected(ctx context.Context, arenaID uint64, participant string) error {
	const query = `
		UPDATE entries SET fee_collected = TRUE
		WHERE arena_id = $1 AND participant = $2 AND NOT fee_collected`

	tag, err := s.pool.Exec(ctx, query, int64(arenaID), participant)
	if err != nil {
		return fmt.Errorf("postgres: mark fee collected %d/%s: %w", arenaID, participant, err)
	}
	if tag.RowsAffected() == 0 {
		return s.zeroRowsErr(ctx, arenaID, participant, domain.ErrFeeAlreadyCollected)
	}
	return nil
}

// ClaimLoserBit sets bit loserSlot in the winner's claim bitmap. BIGINT
// bitwise operations act on the same 64-bit patterns as the in-memory
// bitmap, so the two's-complement conversion is lossless.
func (s *EntryStore) ClaimLoserBit(ctx context.Context, arenaID uint64, winner string, loserSlot uint8) error {
	col := "claimed_lo"
	shift := loserSlot
	if loserSlot >= 64 {
		col = "claimed_hi"
		shift = loserSlot - 64
	}
	bit := int64(uint64(1) << shift)

	query := fmt.Sprintf(`
		UPDATE entries SET %[1]s = %[1]s | $3
		WHERE arena_id = $1 AND participant = $2 AND (%[1]s & $3) = 0`, col)

	tag, err := s.pool.Exec(ctx, query, int64(arenaID), winner, bit)
	if err != nil {
		return fmt.Errorf("postgres: claim loser bit %d/%s/%d: %w", arenaID, winner, loserSlot, err)
	}
	if tag.RowsAffected() == 0 {
		return s.zeroRowsErr(ctx, arenaID, winner, domain.ErrAlreadyClaimed)
	}
	return nil
}

// zeroRowsErr distinguishes a missing entry from an already-consumed claim
// cell after a conditional UPDATE touched no rows.
func (s *EntryStore) zeroRowsErr(ctx context.Context, arenaID uint64, participant string, claimed error) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM entries WHERE arena_id = $1 AND participant = $2)`,
		int64(arenaID), participant,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("postgres: check entry %d/%s: %w", arenaID, participant, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return claimed
}
