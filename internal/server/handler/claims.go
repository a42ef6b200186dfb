package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mlabs-tech/cryptarena-svm/internal/domain"
)

// ClaimService defines the payout methods the claims handler requires.
type ClaimService interface {
	Scheme() domain.RewardScheme
	ClaimReward(ctx context.Context, arenaID uint64, participant string) (uint64, error)
	ClaimOwnStake(ctx context.Context, arenaID uint64, participant string) (uint64, error)
	ClaimFromLoser(ctx context.Context, arenaID uint64, participant string, loserSlot uint8) (uint64, error)
	ClaimRefund(ctx context.Context, arenaID uint64, participant string) (uint64, error)
}

// ClaimsHandler serves the participant payout endpoints.
type ClaimsHandler struct {
	payouts ClaimService
	logger  *slog.Logger
}

// NewClaimsHandler creates a ClaimsHandler with the given service and logger.
func NewClaimsHandler(payouts ClaimService, logger *slog.Logger) *ClaimsHandler {
	return &ClaimsHandler{payouts: payouts, logger: logger}
}

// claimRequest identifies the claiming participant.
type claimRequest struct {
	Participant string `json:"participant"`
}

// claimResponse reports the amount paid out by a claim.
type claimResponse struct {
	ArenaID     uint64 `json:"arena_id"`
	Participant string `json:"participant"`
	Amount      uint64 `json:"amount"`
}

// ClaimReward pays a winner their share of the pool under the shared-pool
// scheme.
// POST /api/arenas/{id}/claims/reward
func (h *ClaimsHandler) ClaimReward(w http.ResponseWriter, r *http.Request) {
	h.claim(w, r, "claim reward", h.payouts.ClaimReward)
}

// ClaimStake returns a winner's own stake under the pairwise scheme.
// POST /api/arenas/{id}/claims/stake
func (h *ClaimsHandler) ClaimStake(w http.ResponseWriter, r *http.Request) {
	h.claim(w, r, "claim stake", h.payouts.ClaimOwnStake)
}

// ClaimRefund returns a participant's stake from a cancelled arena.
// POST /api/arenas/{id}/claims/refund
func (h *ClaimsHandler) ClaimRefund(w http.ResponseWriter, r *http.Request) {
	h.claim(w, r, "claim refund", h.payouts.ClaimRefund)
}

// ClaimFromLoser pays a winner their slice of one losing entry under the
// pairwise scheme.
// POST /api/arenas/{id}/claims/losers/{slot}
func (h *ClaimsHandler) ClaimFromLoser(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid arena id")
		return
	}
	slot, err := pathUint(r, "slot")
	if err != nil || slot >= domain.MaxArenaCapacity {
		writeError(w, http.StatusBadRequest, "invalid loser slot")
		return
	}

	var req claimRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Participant == "" {
		writeError(w, http.StatusBadRequest, "participant is required")
		return
	}
	if !requireParticipant(w, r, req.Participant) {
		return
	}

	amount, err := h.payouts.ClaimFromLoser(r.Context(), id, req.Participant, uint8(slot))
	if err != nil {
		writeServiceError(w, r, h.logger, "claim from loser", err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{ArenaID: id, Participant: req.Participant, Amount: amount})
}

// claim runs the shared decode/validate/respond path for single-argument
// claim operations.
func (h *ClaimsHandler) claim(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	fn func(ctx context.Context, arenaID uint64, participant string) (uint64, error),
) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid arena id")
		return
	}

	var req claimRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Participant == "" {
		writeError(w, http.StatusBadRequest, "participant is required")
		return
	}
	if !requireParticipant(w, r, req.Participant) {
		return
	}

	amount, err := fn(r.Context(), id, req.Participant)
	if err != nil {
		writeServiceError(w, r, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{ArenaID: id, Participant: req.Participant, Amount: amount})
}
