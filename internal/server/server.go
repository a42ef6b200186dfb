// Package server wires the HTTP API: public read endpoints, participant
// entry and claim endpoints, the token-guarded admin surface, and the
// WebSocket event stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mlabs-tech/cryptarena-svm/internal/crypto"
	"github.com/mlabs-tech/cryptarena-svm/internal/domain"
	"github.com/mlabs-tech/cryptarena-svm/internal/server/handler"
	"github.com/mlabs-tech/cryptarena-svm/internal/server/middleware"
	"github.com/mlabs-tech/cryptarena-svm/internal/server/ws"
)

// Config holds the HTTP server settings.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIToken guards the /api/admin routes.
	APIToken string
	// RatePerMinute caps requests per client IP; 0 disables throttling.
	RatePerMinute int
	// Limiter backs the rate limit check. Ignored when RatePerMinute is 0.
	Limiter domain.RateLimiter
	// Tokens verifies participant identity tokens on entry and claim routes.
	// Nil disables participant authentication.
	Tokens *crypto.TokenIssuer
}

// Handlers bundles the HTTP handlers mounted by the server.
type Handlers struct {
	Health   *handler.HealthHandler
	Protocol *handler.ProtocolHandler
	Arenas   *handler.ArenaHandler
	Entries  *handler.EntryHandler
	Claims   *handler.ClaimsHandler
	Admin    *handler.AdminHandler
	Hub      *ws.Hub
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds the route table and middleware chain.
func NewServer(cfg Config, h Handlers, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Public reads.
	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	mux.HandleFunc("GET /api/protocol", h.Protocol.GetState)
	mux.HandleFunc("GET /api/assets", h.Protocol.ListAssets)
	mux.HandleFunc("GET /api/arenas", h.Arenas.ListArenas)
	mux.HandleFunc("GET /api/arenas/{id}", h.Arenas.GetArena)
	mux.HandleFunc("GET /api/arenas/{id}/assets", h.Arenas.ListAssetStats)
	mux.HandleFunc("GET /api/arenas/{id}/entries", h.Arenas.ListEntries)
	mux.HandleFunc("GET /api/arenas/{id}/entries/{participant}", h.Arenas.GetEntry)
	mux.HandleFunc("GET /api/accounts/{account}/balance", h.Entries.GetBalance)

	// Participant writes.
	identity := middleware.Identity(cfg.Tokens)
	participantRoute := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, identity(fn))
	}
	participantRoute("POST /api/entries", h.Entries.Enter)
	participantRoute("POST /api/accounts/{account}/withdraw", h.Entries.Withdraw)
	participantRoute("POST /api/arenas/{id}/claims/reward", h.Claims.ClaimReward)
	participantRoute("POST /api/arenas/{id}/claims/stake", h.Claims.ClaimStake)
	participantRoute("POST /api/arenas/{id}/claims/refund", h.Claims.ClaimRefund)
	participantRoute("POST /api/arenas/{id}/claims/losers/{slot}", h.Claims.ClaimFromLoser)

	// Admin surface behind the API token.
	admin := middleware.Auth(cfg.APIToken)
	adminRoute := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, admin(fn))
	}
	adminRoute("POST /api/admin/init", h.Admin.Init)
	adminRoute("PUT /api/admin/fee", h.Admin.SetFee)
	adminRoute("PUT /api/admin/duration", h.Admin.SetDuration)
	adminRoute("PUT /api/admin/caps", h.Admin.SetCaps)
	adminRoute("PUT /api/admin/entry-band", h.Admin.SetEntryBand)
	adminRoute("POST /api/admin/pause", h.Admin.Pause)
	adminRoute("POST /api/admin/resume", h.Admin.Resume)
	adminRoute("POST /api/admin/transfer", h.Admin.TransferAdmin)
	adminRoute("POST /api/admin/assets", h.Admin.WhitelistAsset)
	adminRoute("DELETE /api/admin/assets/{index}", h.Admin.DeactivateAsset)
	adminRoute("POST /api/admin/arenas/{id}/start", h.Admin.StartArena)
	adminRoute("POST /api/admin/arenas/{id}/capture-start", h.Admin.CaptureStartPrices)
	adminRoute("POST /api/admin/arenas/{id}/capture-end", h.Admin.CaptureEndPrices)
	adminRoute("PUT /api/admin/arenas/{id}/prices/start", h.Admin.SetStartPrice)
	adminRoute("PUT /api/admin/arenas/{id}/prices/end", h.Admin.SetEndPrice)
	adminRoute("POST /api/admin/arenas/{id}/settle", h.Admin.Settle)
	adminRoute("POST /api/admin/arenas/{id}/fees/collect", h.Admin.CollectFee)
	adminRoute("POST /api/admin/arenas/{id}/fees/losers/{slot}", h.Admin.CollectLoserFee)
	adminRoute("POST /api/admin/treasury/withdraw", h.Admin.WithdrawTreasury)
	adminRoute("POST /api/admin/accounts/{account}/deposit", h.Admin.Deposit)
	adminRoute("POST /api/admin/tokens", h.Admin.MintToken)
	adminRoute("POST /api/admin/archive", h.Admin.RunArchive)

	// Live event stream.
	if h.Hub != nil {
		mux.HandleFunc("GET /ws", h.Hub.HandleWS)
	}

	var root http.Handler = mux
	if cfg.RatePerMinute > 0 && cfg.Limiter != nil {
		root = middleware.RateLimit(cfg.Limiter, cfg.RatePerMinute, time.Minute, logger)(root)
	}
	root = middleware.Logging(logger)(middleware.CORS(cfg.CORSOrigins)(root))

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      root,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Start runs the server until it is shut down.
func (s *Server) Start() error {
	s.logger.Info("http server starting", slog.String("addr", s.httpServer.Addr))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
