package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mlabs-tech/cryptarena-svm/internal/domain"
)

// ProtocolReader defines the read methods the protocol handler requires.
type ProtocolReader interface {
	Get(ctx context.Context) (domain.ProtocolState, error)
	ListAssets(ctx context.Context, activeOnly bool) ([]domain.WhitelistedAsset, error)
}

// ProtocolHandler serves the protocol state and asset whitelist endpoints.
type ProtocolHandler struct {
	protocol ProtocolReader
	logger   *slog.Logger
}

// NewProtocolHandler creates a ProtocolHandler with the given service and
// logger.
func NewProtocolHandler(protocol ProtocolReader, logger *slog.Logger) *ProtocolHandler {
	return &ProtocolHandler{protocol: protocol, logger: logger}
}

// GetState returns the protocol singleton.
// GET /api/protocol
func (h *ProtocolHandler) GetState(w http.ResponseWriter, r *http.Request) {
	st, err := h.protocol.Get(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "get protocol state", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// listAssetsResponse wraps the whitelist output.
type listAssetsResponse struct {
	Assets []domain.WhitelistedAsset `json:"assets"`
}

// ListAssets returns the asset whitelist. With ?active=true only assets that
// are currently enterable are returned.
// GET /api/assets?active=true
func (h *ProtocolHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	assets, err := h.protocol.ListAssets(r.Context(), activeOnly)
	if err != nil {
		writeServiceError(w, r, h.logger, "list assets", err)
		return
	}
	if assets == nil {
		assets = []domain.WhitelistedAsset{}
	}
	writeJSON(w, http.StatusOK, listAssetsResponse{Assets: assets})
}
