package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/mlabs-tech/cryptarena-svm/internal/crypto"
	"github.com/mlabs-tech/cryptarena-svm/internal/domain"
)

// ProtocolAdmin defines the protocol mutation methods the admin handler
// requires.
type ProtocolAdmin interface {
	Init(ctx context.Context, seed domain.ProtocolState) (domain.ProtocolState, error)
	SetFee(ctx context.Context, actor string, feeBps uint64) error
	SetDuration(ctx context.Context, actor string, d time.Duration) error
	SetCaps(ctx context.Context, actor string, minPlayers, maxPlayers, maxPerAsset uint8) error
	SetEntryBand(ctx context.Context, actor string, minValue, maxValue uint64) error
	Pause(ctx context.Context, actor string) error
	Resume(ctx context.Context, actor string) error
	TransferAdmin(ctx context.Context, actor, newAdmin string) error
	WhitelistAsset(ctx context.Context, actor string, w domain.WhitelistedAsset) error
	DeactivateAsset(ctx context.Context, actor string, index domain.AssetIndex) error
	WithdrawTreasury(ctx context.Context, actor, to string, amount uint64) error
}

// RoundAdmin defines the arena lifecycle methods the admin handler requires.
type RoundAdmin interface {
	Start(ctx context.Context, actor string, arenaID uint64) error
	CaptureStartPrices(ctx context.Context, arenaID uint64) error
	CaptureEndPrices(ctx context.Context, arenaID uint64) error
	SetStartPrice(ctx context.Context, actor string, arenaID uint64, asset domain.AssetIndex, price uint64) error
	SetEndPrice(ctx context.Context, actor string, arenaID uint64, asset domain.AssetIndex, price uint64) error
}

// Settler defines the settlement method the admin handler requires.
type Settler interface {
	Settle(ctx context.Context, arenaID uint64) (domain.Arena, error)
}

// FeeCollector defines the fee collection methods the admin handler requires.
type FeeCollector interface {
	Scheme() domain.RewardScheme
	CollectFee(ctx context.Context, actor string, arenaID uint64) (uint64, error)
	CollectLoserFee(ctx context.Context, actor string, arenaID uint64, loserSlot uint8) (uint64, error)
}

// ArchiveRunner triggers a cold-storage archive pass.
type ArchiveRunner interface {
	RunArchive(ctx context.Context) error
}

// AdminHandler serves the operator API. Routes using it sit behind the API
// token middleware; the configured administrator account is used as the actor
// for every protocol mutation.
type AdminHandler struct {
	actor    string
	protocol ProtocolAdmin
	rounds   RoundAdmin
	settle   Settler
	fees     FeeCollector
	ledger   domain.Ledger
	archiver ArchiveRunner
	tokens   *crypto.TokenIssuer
	logger   *slog.Logger
}

// NewAdminHandler creates an AdminHandler. archiver may be nil when archival
// is not configured; tokens may be nil when participant authentication is
// disabled.
func NewAdminHandler(
	actor string,
	protocol ProtocolAdmin,
	rounds RoundAdmin,
	settle Settler,
	fees FeeCollector,
	ledger domain.Ledger,
	archiver ArchiveRunner,
	tokens *crypto.TokenIssuer,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		actor:    actor,
		protocol: protocol,
		rounds:   rounds,
		settle:   settle,
		fees:     fees,
		ledger:   ledger,
		archiver: archiver,
		tokens:   tokens,
		logger:   logger,
	}
}

// initRequest seeds the protocol singleton.
type initRequest struct {
	FeeBps        uint64 `json:"fee_bps"`
	Duration      string `json:"duration"`
	MinPlayers    uint8  `json:"min_players"`
	MaxPlayers    uint8  `json:"max_players"`
	MaxPerAsset   uint8  `json:"max_per_asset"`
	EntryMinValue uint64 `json:"entry_min_value"`
	EntryMaxValue uint64 `json:"entry_max_value"`
}

// Init creates the protocol singleton with the configured admin as owner.
// Calling it against an initialized protocol returns the existing state.
// POST /api/admin/init
func (h *AdminHandler) Init(w http.ResponseWriter, r *http.Request) {
	var req initRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	d, err := time.ParseDuration(req.Duration)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid duration: "+err.Error())
		return
	}

	st, err := h.protocol.Init(r.Context(), domain.ProtocolState{
		Admin:          h.actor,
		FeeBps:         req.FeeBps,
		Duration:       d,
		MinPlayers:     req.MinPlayers,
		MaxPlayers:     req.MaxPlayers,
		MaxPerAsset:    req.MaxPerAsset,
		EntryMinValue:  req.EntryMinValue,
		EntryMaxValue:  req.EntryMaxValue,
		CurrentArenaID: 1,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "init protocol", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// SetFee updates the protocol fee.
// PUT /api/admin/fee
func (h *AdminHandler) SetFee(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FeeBps uint64 `json:"fee_bps"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.protocol.SetFee(r.Context(), h.actor, req.FeeBps); err != nil {
		writeServiceError(w, r, h.logger, "set fee", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "updated", "fee_bps": req.FeeBps})
}

// SetDuration updates the arena duration applied at the next activation.
// PUT /api/admin/duration
func (h *AdminHandler) SetDuration(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Duration string `json:"duration"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	d, err := time.ParseDuration(req.Duration)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid duration: "+err.Error())
		return
	}

	if err := h.protocol.SetDuration(r.Context(), h.actor, d); err != nil {
		writeServiceError(w, r, h.logger, "set duration", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated", "duration": d.String()})
}

// SetCaps updates the player and per-asset capacity bounds.
// PUT /api/admin/caps
func (h *AdminHandler) SetCaps(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MinPlayers  uint8 `json:"min_players"`
		MaxPlayers  uint8 `json:"max_players"`
		MaxPerAsset uint8 `json:"max_per_asset"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.protocol.SetCaps(r.Context(), h.actor, req.MinPlayers, req.MaxPlayers, req.MaxPerAsset); err != nil {
		writeServiceError(w, r, h.logger, "set caps", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// SetEntryBand updates the oracle-priced entry value band. Setting both
// bounds to zero disables band pricing.
// PUT /api/admin/entry-band
func (h *AdminHandler) SetEntryBand(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MinValue uint64 `json:"min_value"`
		MaxValue uint64 `json:"max_value"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.protocol.SetEntryBand(r.Context(), h.actor, req.MinValue, req.MaxValue); err != nil {
		writeServiceError(w, r, h.logger, "set entry band", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// Pause stops new entries protocol-wide.
// POST /api/admin/pause
func (h *AdminHandler) Pause(w http.ResponseWriter, r *http.Request) {
	if err := h.protocol.Pause(r.Context(), h.actor); err != nil {
		writeServiceError(w, r, h.logger, "pause protocol", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

// Resume reopens the protocol for entries.
// POST /api/admin/resume
func (h *AdminHandler) Resume(w http.ResponseWriter, r *http.Request) {
	if err := h.protocol.Resume(r.Context(), h.actor); err != nil {
		writeServiceError(w, r, h.logger, "resume protocol", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

// TransferAdmin hands protocol ownership to a new account. The server keeps
// acting as the configured account, so after a transfer away from it the
// admin API can read but no longer mutate.
// POST /api/admin/transfer
func (h *AdminHandler) TransferAdmin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewAdmin string `json:"new_admin"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.NewAdmin == "" {
		writeError(w, http.StatusBadRequest, "new_admin is required")
		return
	}

	if err := h.protocol.TransferAdmin(r.Context(), h.actor, req.NewAdmin); err != nil {
		writeServiceError(w, r, h.logger, "transfer admin", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "transferred", "admin": req.NewAdmin})
}

// whitelistRequest describes an asset to whitelist.
type whitelistRequest struct {
	Index     uint8  `json:"index"`
	ChainType uint8  `json:"chain_type"`
	Address   string `json:"address"`
	Symbol    string `json:"symbol"`
	FeedID    string `json:"feed_id"`
}

// WhitelistAsset adds or reactivates an enterable asset.
// POST /api/admin/assets
func (h *AdminHandler) WhitelistAsset(w http.ResponseWriter, r *http.Request) {
	var req whitelistRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	err := h.protocol.WhitelistAsset(r.Context(), h.actor, domain.WhitelistedAsset{
		Index:     domain.AssetIndex(req.Index),
		ChainType: domain.ChainType(req.ChainType),
		Address:   req.Address,
		Symbol:    req.Symbol,
		FeedID:    req.FeedID,
		Active:    true,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "whitelist asset", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "whitelisted", "index": req.Index})
}

// DeactivateAsset removes an asset from the enterable set. Arenas already
// holding entries on it are unaffected.
// DELETE /api/admin/assets/{index}
func (h *AdminHandler) DeactivateAsset(w http.ResponseWriter, r *http.Request) {
	index, err := pathUint(r, "index")
	if err != nil || index >= domain.MaxArenaCapacity {
		writeError(w, http.StatusBadRequest, "invalid asset index")
		return
	}

	if err := h.protocol.DeactivateAsset(r.Context(), h.actor, domain.AssetIndex(index)); err != nil {
		writeServiceError(w, r, h.logger, "deactivate asset", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deactivated", "index": index})
}

// StartArena forces an under-capacity arena into the ready state.
// POST /api/admin/arenas/{id}/start
func (h *AdminHandler) StartArena(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid arena id")
		return
	}

	if err := h.rounds.Start(r.Context(), h.actor, id); err != nil {
		writeServiceError(w, r, h.logger, "start arena", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "started", "arena_id": id})
}

// CaptureStartPrices pulls start prices from the oracle for every asset in
// the arena.
// POST /api/admin/arenas/{id}/capture-start
func (h *AdminHandler) CaptureStartPrices(w http.ResponseWriter, r *http.Request) {
	h.capture(w, r, "capture start prices", h.rounds.CaptureStartPrices)
}

// CaptureEndPrices pulls end prices from the oracle for every asset in the
// arena.
// POST /api/admin/arenas/{id}/capture-end
func (h *AdminHandler) CaptureEndPrices(w http.ResponseWriter, r *http.Request) {
	h.capture(w, r, "capture end prices", h.rounds.CaptureEndPrices)
}

func (h *AdminHandler) capture(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, uint64) error) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid arena id")
		return
	}

	if err := fn(r.Context(), id); err != nil {
		writeServiceError(w, r, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "captured", "arena_id": id})
}

// priceRequest sets one asset's price manually, bypassing the oracle.
type priceRequest struct {
	Asset uint8  `json:"asset"`
	Price uint64 `json:"price"`
}

// SetStartPrice records a start price for one asset manually.
// PUT /api/admin/arenas/{id}/prices/start
func (h *AdminHandler) SetStartPrice(w http.ResponseWriter, r *http.Request) {
	h.setPrice(w, r, "set start price", h.rounds.SetStartPrice)
}

// SetEndPrice records an end price for one asset manually.
// PUT /api/admin/arenas/{id}/prices/end
func (h *AdminHandler) SetEndPrice(w http.ResponseWriter, r *http.Request) {
	h.setPrice(w, r, "set end price", h.rounds.SetEndPrice)
}

func (h *AdminHandler) setPrice(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	fn func(ctx context.Context, actor string, arenaID uint64, asset domain.AssetIndex, price uint64) error,
) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid arena id")
		return
	}

	var req priceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := fn(r.Context(), h.actor, id, domain.AssetIndex(req.Asset), req.Price); err != nil {
		writeServiceError(w, r, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "updated", "arena_id": id, "asset": req.Asset})
}

// Settle settles a closing arena once all prices are in. Settling an already
// terminal arena is a no-op that returns its final state.
// POST /api/admin/arenas/{id}/settle
func (h *AdminHandler) Settle(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid arena id")
		return
	}

	arena, err := h.settle.Settle(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "settle arena", err)
		return
	}
	writeJSON(w, http.StatusOK, arena)
}

// collectResponse reports a fee collection amount.
type collectResponse struct {
	ArenaID uint64 `json:"arena_id"`
	Amount  uint64 `json:"amount"`
}

// CollectFee moves the protocol fee of a settled shared-pool arena to the
// treasury.
// POST /api/admin/arenas/{id}/fees/collect
func (h *AdminHandler) CollectFee(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid arena id")
		return
	}

	amount, err := h.fees.CollectFee(r.Context(), h.actor, id)
	if err != nil {
		writeServiceError(w, r, h.logger, "collect fee", err)
		return
	}
	writeJSON(w, http.StatusOK, collectResponse{ArenaID: id, Amount: amount})
}

// CollectLoserFee moves the fee carved from one losing entry of a settled
// pairwise arena to the treasury.
// POST /api/admin/arenas/{id}/fees/losers/{slot}
func (h *AdminHandler) CollectLoserFee(w http.ResponseWriter, r *http.Request) {
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

	amount, err := h.fees.CollectLoserFee(r.Context(), h.actor, id, uint8(slot))
	if err != nil {
		writeServiceError(w, r, h.logger, "collect loser fee", err)
		return
	}
	writeJSON(w, http.StatusOK, collectResponse{ArenaID: id, Amount: amount})
}

// WithdrawTreasury moves collected fees out of the treasury account.
// POST /api/admin/treasury/withdraw
func (h *AdminHandler) WithdrawTreasury(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To     string `json:"to"`
		Amount uint64 `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.To == "" {
		writeError(w, http.StatusBadRequest, "to is required")
		return
	}

	if err := h.protocol.WithdrawTreasury(r.Context(), h.actor, req.To, req.Amount); err != nil {
		writeServiceError(w, r, h.logger, "withdraw treasury", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "withdrawn", "to": req.To, "amount": req.Amount})
}

// Deposit credits a ledger account. Faucet-style funding for test and staging
// environments.
// POST /api/admin/accounts/{account}/deposit
func (h *AdminHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	account := pathParam(r, "account")
	if account == "" {
		writeError(w, http.StatusBadRequest, "missing account")
		return
	}

	var req struct {
		Amount uint64 `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Amount == 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	if err := h.ledger.Deposit(r.Context(), account, req.Amount); err != nil {
		writeServiceError(w, r, h.logger, "deposit", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deposited", "account": account, "amount": req.Amount})
}

// MintToken issues a participant identity token bound to a ledger account.
// POST /api/admin/tokens
func (h *AdminHandler) MintToken(w http.ResponseWriter, r *http.Request) {
	if h.tokens == nil {
		writeError(w, http.StatusUnprocessableEntity, "participant authentication is not configured")
		return
	}

	var req struct {
		Participant string `json:"participant"`
		TTL         string `json:"ttl"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Participant == "" {
		writeError(w, http.StatusBadRequest, "participant is required")
		return
	}

	ttl := 24 * time.Hour
	if req.TTL != "" {
		parsed, err := time.ParseDuration(req.TTL)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid ttl")
			return
		}
		ttl = parsed
	}

	expiresAt := time.Now().UTC().Add(ttl)
	writeJSON(w, http.StatusCreated, map[string]any{
		"participant": req.Participant,
		"token":       h.tokens.Mint(req.Participant, ttl),
		"expires_at":  expiresAt.Format(time.RFC3339),
	})
}

// RunArchive triggers an immediate archive pass outside the cron schedule.
// POST /api/admin/archive
func (h *AdminHandler) RunArchive(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		writeError(w, http.StatusUnprocessableEntity, "archival is not configured")
		return
	}

	if err := h.archiver.RunArchive(r.Context()); err != nil {
		writeServiceError(w, r, h.logger, "archive run", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "archived"})
}
