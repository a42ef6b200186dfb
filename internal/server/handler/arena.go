package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mlabs-tech/cryptarena-svm/internal/domain"
)

// ArenaReader defines the read methods the arena handler requires.
type ArenaReader interface {
	Get(ctx context.Context, arenaID uint64) (domain.Arena, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.Arena, error)
	ListByStatus(ctx context.Context, status domain.ArenaStatus, opts domain.ListOpts) ([]domain.Arena, error)
	AssetStats(ctx context.Context, arenaID uint64) ([]domain.AssetStats, error)
}

// EntryReader defines the entry read methods the arena handler requires.
type EntryReader interface {
	Get(ctx context.Context, arenaID uint64, participant string) (domain.Entry, error)
	List(ctx context.Context, arenaID uint64) ([]domain.Entry, error)
}

// ArenaHandler serves arena read endpoints.
type ArenaHandler struct {
	arenas  ArenaReader
	entries EntryReader
	logger  *slog.Logger
}

// NewArenaHandler creates an ArenaHandler with the given services and logger.
func NewArenaHandler(arenas ArenaReader, entries EntryReader, logger *slog.Logger) *ArenaHandler {
	return &ArenaHandler{arenas: arenas, entries: entries, logger: logger}
}

// listArenasResponse wraps the list endpoint output with pagination metadata.
type listArenasResponse struct {
	Arenas []domain.Arena `json:"arenas"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// ListArenas returns arenas, optionally filtered by lifecycle status.
// GET /api/arenas?status=active&limit=50&offset=0
func (h *ArenaHandler) ListArenas(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	var (
		arenas []domain.Arena
		err    error
	)
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.ParseArenaStatus(raw)
		if status == domain.StatusUninitialized && raw != status.String() {
			writeError(w, http.StatusBadRequest, "unknown arena status: "+raw)
			return
		}
		arenas, err = h.arenas.ListByStatus(r.Context(), status, opts)
	} else {
		arenas, err = h.arenas.List(r.Context(), opts)
	}
	if err != nil {
		writeServiceError(w, r, h.logger, "list arenas", err)
		return
	}

	if arenas == nil {
		arenas = []domain.Arena{}
	}
	writeJSON(w, http.StatusOK, listArenasResponse{
		Arenas: arenas,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// GetArena returns a single arena by its ID.
// GET /api/arenas/{id}
func (h *ArenaHandler) GetArena(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid arena id")
		return
	}

	arena, err := h.arenas.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get arena", err)
		return
	}
	writeJSON(w, http.StatusOK, arena)
}

// listAssetStatsResponse wraps the per-asset participation rows of an arena.
type listAssetStatsResponse struct {
	ArenaID uint64              `json:"arena_id"`
	Assets  []domain.AssetStats `json:"assets"`
}

// ListAssetStats returns the per-asset participation rows of an arena,
// including captured prices and settlement movements.
// GET /api/arenas/{id}/assets
func (h *ArenaHandler) ListAssetStats(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid arena id")
		return
	}

	stats, err := h.arenas.AssetStats(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "list asset stats", err)
		return
	}
	if stats == nil {
		stats = []domain.AssetStats{}
	}
	writeJSON(w, http.StatusOK, listAssetStatsResponse{ArenaID: id, Assets: stats})
}

// listEntriesResponse wraps the entry list of an arena.
type listEntriesResponse struct {
	ArenaID uint64         `json:"arena_id"`
	Entries []domain.Entry `json:"entries"`
}

// ListEntries returns all entries of an arena ordered by slot.
// GET /api/arenas/{id}/entries
func (h *ArenaHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid arena id")
		return
	}

	entries, err := h.entries.List(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "list entries", err)
		return
	}
	if entries == nil {
		entries = []domain.Entry{}
	}
	writeJSON(w, http.StatusOK, listEntriesResponse{ArenaID: id, Entries: entries})
}

// GetEntry returns one participant's entry in an arena.
// GET /api/arenas/{id}/entries/{participant}
func (h *ArenaHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid arena id")
		return
	}
	participant := pathParam(r, "participant")
	if participant == "" {
		writeError(w, http.StatusBadRequest, "missing participant")
		return
	}

	entry, err := h.entries.Get(r.Context(), id, participant)
	if err != nil {
		writeServiceError(w, r, h.logger, "get entry", err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
