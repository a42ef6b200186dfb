package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mlabs-tech/cryptarena-svm/internal/domain"
)

// ArenaArchiveStore is the slice of the arena store the archiver needs.
type ArenaArchiveStore interface {
	ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Arena, error)
	ListAssetStats(ctx context.Context, arenaID uint64) ([]domain.AssetStats, error)
	Delete(ctx context.Context, id uint64) error
}

// EntryArchiveStore is the slice of the entry store the archiver needs.
type EntryArchiveStore interface {
	ListByArena(ctx context.Context, arenaID uint64) ([]domain.Entry, error)
}

// arenaExport is the cold-storage document for one archived arena: the arena
// row with its entries and per-asset stats, self-contained so historical
// results resolve without the database.
type arenaExport struct {
	Arena      domain.Arena        `json:"arena"`
	Entries    []domain.Entry      `json:"entries"`
	AssetStats []domain.AssetStats `json:"asset_stats"`
	ArchivedAt time.Time           `json:"archived_at"`
}

// ArchiveImpl implements domain.Archiver: terminal arenas past the retention
// cutoff are exported to object storage as JSON documents and then removed
// from the primary store. Deletion happens per arena only after its upload
// succeeded, so a failed upload leaves the arena queryable and retryable.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	arenas  ArenaArchiveStore
	entries EntryArchiveStore
	audit   domain.AuditStore
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	arenas ArenaArchiveStore,
	entries EntryArchiveStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:  writer,
		arenas:  arenas,
		entries: entries,
		audit:   audit,
	}
}

// ArchiveArenas exports up to limit terminal arenas older than the cutoff and
// deletes each from the primary store after its upload. It returns the number
// of arenas archived.
func (a *ArchiveImpl) ArchiveArenas(ctx context.Context, before time.Time, limit int) (int64, error) {
	arenas, err := a.arenas.ListTerminalBefore(ctx, before, limit)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive arenas query: %w", err)
	}

	var count int64
	for _, arena := range arenas {
		if err := a.archiveOne(ctx, arena); err != nil {
			return count, err
		}
		count++
	}

	if count > 0 {
		if err := a.audit.Log(ctx, "archive.arenas", map[string]any{
			"count":  count,
			"before": before.Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive arenas audit log: %w", err)
		}
	}
	return count, nil
}

func (a *ArchiveImpl) archiveOne(ctx context.Context, arena domain.Arena) error {
	entries, err := a.entries.ListByArena(ctx, arena.ID)
	if err != nil {
		return fmt.Errorf("s3blob: archive arena %d entries: %w", arena.ID, err)
	}
	stats, err := a.arenas.ListAssetStats(ctx, arena.ID)
	if err != nil {
		return fmt.Errorf("s3blob: archive arena %d stats: %w", arena.ID, err)
	}

	doc, err := json.Marshal(arenaExport{
		Arena:      arena,
		Entries:    entries,
		AssetStats: stats,
		ArchivedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("s3blob: archive arena %d marshal: %w", arena.ID, err)
	}

	path := arenaArchivePath(arena)
	if err := a.writer.Put(ctx, path, bytes.NewReader(doc), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive arena %d upload: %w", arena.ID, err)
	}

	// Cascade removes the arena's entries and asset rows with it.
	if err := a.arenas.Delete(ctx, arena.ID); err != nil {
		return fmt.Errorf("s3blob: archive arena %d prune: %w", arena.ID, err)
	}
	return nil
}

// ArchiveAudit exports audit rows older than the cutoff as JSONL and prunes
// them from the primary store. It returns the number of rows pruned.
func (a *ArchiveImpl) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	rows, err := a.audit.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(rows)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	path := fmt.Sprintf("archive/audit/%s.jsonl", before.Format("2006-01"))
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}

	removed, err := a.audit.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit prune: %w", err)
	}
	return removed, nil
}

// arenaArchivePath builds the S3 key for one archived arena, partitioned by
// the year-month it reached its terminal state.
//
//	archive/arenas/2026-08/42.json
func arenaArchivePath(arena domain.Arena) string {
	return fmt.Sprintf("archive/arenas/%s/%d.json", arena.SettledAt.Format("2006-01"), arena.ID)
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
