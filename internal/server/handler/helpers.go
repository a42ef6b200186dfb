// Package handler contains the HTTP handlers for the public and admin API.
// Each handler declares the narrow service interface it needs so the package
// never depends on concrete service types.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/mlabs-tech/cryptarena-svm/internal/domain"
	"github.com/mlabs-tech/cryptarena-svm/internal/server/middleware"
)

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body with the given status code.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps a service error to an HTTP status and writes it.
// Unexpected errors are logged and reported as a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.String("error", err.Error()),
		)
		writeError(w, status, op+" failed")
		return
	}
	writeError(w, status, err.Error())
}

// statusFor maps domain sentinel errors onto HTTP status codes. Validation
// failures are 400, state conflicts that may resolve later are 422, and
// idempotency violations are 409.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidAsset),
		errors.Is(err, domain.ErrInvalidDuration),
		errors.Is(err, domain.ErrEntryValueOutOfBounds):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDuplicateEntry),
		errors.Is(err, domain.ErrAlreadyClaimed),
		errors.Is(err, domain.ErrFeeAlreadyCollected),
		errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrLockHeld):
		return http.StatusConflict
	case errors.Is(err, domain.ErrProtocolPaused),
		errors.Is(err, domain.ErrAssetNotWhitelisted),
		errors.Is(err, domain.ErrAssetAlreadyTaken),
		errors.Is(err, domain.ErrAssetCapReached),
		errors.Is(err, domain.ErrAssetNotInArena),
		errors.Is(err, domain.ErrArenaNotAcceptingEntries),
		errors.Is(err, domain.ErrArenaFull),
		errors.Is(err, domain.ErrArenaNotReady),
		errors.Is(err, domain.ErrArenaNotActive),
		errors.Is(err, domain.ErrArenaNotClosing),
		errors.Is(err, domain.ErrArenaNotSettled),
		errors.Is(err, domain.ErrArenaNotCancelled),
		errors.Is(err, domain.ErrNotEnoughPlayers),
		errors.Is(err, domain.ErrDurationNotComplete),
		errors.Is(err, domain.ErrMissingPriceData),
		errors.Is(err, domain.ErrSchemeDisabled),
		errors.Is(err, domain.ErrNotAWinner),
		errors.Is(err, domain.ErrCannotClaimFromWinner),
		errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// parseListOpts extracts pagination parameters from the query string, with a
// default limit of 50 and a maximum of 500.
func parseListOpts(r *http.Request) domain.ListOpts {
	opts := domain.ListOpts{Limit: 50}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			if v > 500 {
				v = 500
			}
			opts.Limit = v
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			opts.Offset = v
		}
	}
	return opts
}

// pathParam returns the named Go 1.22 route pattern value.
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// pathUint parses a numeric path parameter.
func pathUint(r *http.Request, name string) (uint64, error) {
	return strconv.ParseUint(pathParam(r, name), 10, 64)
}

// requireParticipant rejects a request whose authenticated account does not
// match the participant it acts for. Anonymous requests pass; that happens
// when participant authentication is disabled.
func requireParticipant(w http.ResponseWriter, r *http.Request, participant string) bool {
	if acct := middleware.AccountFrom(r.Context()); acct != "" && acct != participant {
		writeError(w, http.StatusForbidden, "token account does not match participant")
		return false
	}
	return true
}

// decodeBody decodes a JSON request body into v, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
