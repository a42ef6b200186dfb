package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mlabs-tech/cryptarena-svm/internal/domain"
)

// Enterer defines the method the entry handler requires from the entry
// service.
type Enterer interface {
	Enter(ctx context.Context, participant string, asset domain.AssetIndex, amount, declaredValue uint64) (domain.Entry, error)
}

// EntryHandler serves the entry submission and account balance endpoints.
type EntryHandler struct {
	entries Enterer
	ledger  domain.Ledger
	logger  *slog.Logger
}

// NewEntryHandler creates an EntryHandler with the given service, ledger, and
// logger.
func NewEntryHandler(entries Enterer, ledger domain.Ledger, logger *slog.Logger) *EntryHandler {
	return &EntryHandler{entries: entries, ledger: ledger, logger: logger}
}

// enterRequest is the body of the entry submission endpoint. Value is the
// caller-declared stake value; it is ignored when the entry value band is
// configured, in which case the oracle prices the staked amount instead.
type enterRequest struct {
	Participant string `json:"participant"`
	Asset       uint8  `json:"asset"`
	Amount      uint64 `json:"amount"`
	Value       uint64 `json:"value"`
}

// Enter submits an entry into the currently open arena.
// POST /api/entries
func (h *EntryHandler) Enter(w http.ResponseWriter, r *http.Request) {
	var req enterRequest
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

	entry, err := h.entries.Enter(r.Context(), req.Participant, domain.AssetIndex(req.Asset), req.Amount, req.Value)
	if err != nil {
		writeServiceError(w, r, h.logger, "enter arena", err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// balanceResponse reports one ledger account balance.
type balanceResponse struct {
	Account string `json:"account"`
	Balance uint64 `json:"balance"`
}

// GetBalance returns the ledger balance of an account.
// GET /api/accounts/{account}/balance
func (h *EntryHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account := pathParam(r, "account")
	if account == "" {
		writeError(w, http.StatusBadRequest, "missing account")
		return
	}

	balance, err := h.ledger.Balance(r.Context(), account)
	if err != nil {
		writeServiceError(w, r, h.logger, "get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Account: account, Balance: balance})
}

// withdrawRequest is the body of the balance withdrawal endpoint.
type withdrawRequest struct {
	Amount uint64 `json:"amount"`
}

// Withdraw debits an account balance, taking the value out of circulation.
// POST /api/accounts/{account}/withdraw
func (h *EntryHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	account := pathParam(r, "account")
	if account == "" {
		writeError(w, http.StatusBadRequest, "missing account")
		return
	}
	if !requireParticipant(w, r, account) {
		return
	}

	var req withdrawRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Amount == 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	if err := h.ledger.Withdraw(r.Context(), account, req.Amount); err != nil {
		writeServiceError(w, r, h.logger, "withdraw balance", err)
		return
	}

	balance, err := h.ledger.Balance(r.Context(), account)
	if err != nil {
		writeServiceError(w, r, h.logger, "get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Account: account, Balance: balance})
}
