package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mlabs-tech/cryptarena-svm/internal/crypto"
	"github.com/mlabs-tech/cryptarena-svm/internal/domain"
	"github.com/mlabs-tech/cryptarena-svm/internal/keeper"
	"github.com/mlabs-tech/cryptarena-svm/internal/server"
	"github.com/mlabs-tech/cryptarena-svm/internal/server/handler"
	"github.com/mlabs-tech/cryptarena-svm/internal/server/ws"
	"github.com/mlabs-tech/cryptarena-svm/internal/service"
)

// services bundles the constructed service layer shared by all modes.
type services struct {
	protocol *service.ProtocolService
	entries  *service.EntryService
	rounds   *service.RoundService
	settle   *service.SettlementService
	payouts  *service.PayoutService
}

// ServeMode runs the HTTP API and WebSocket hub without the keeper loops.
// Phase transitions rely on an external keeper instance or the admin API.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	svcs := a.buildServices(deps)
	if err := a.initProtocol(ctx, svcs); err != nil {
		return fmt.Errorf("serve mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	a.startOracleStream(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps, svcs, nil)

	return g.Wait()
}

// KeeperMode runs only the background automation: price capture, settlement,
// and archival. Entries and claims arrive through a separate serve instance.
func (a *App) KeeperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting keeper mode")

	svcs := a.buildServices(deps)
	if err := a.initProtocol(ctx, svcs); err != nil {
		return fmt.Errorf("keeper mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	a.startOracleStream(ctx, g, deps)
	a.startKeeper(ctx, g, deps, svcs)

	return g.Wait()
}

// FullMode runs every subsystem in one process: the HTTP API, the WebSocket
// hub, and the keeper loops.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	svcs := a.buildServices(deps)
	if err := a.initProtocol(ctx, svcs); err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	a.startOracleStream(ctx, g, deps)

	var k *keeper.Keeper
	if a.cfg.Keeper.Enabled {
		k = a.startKeeper(ctx, g, deps, svcs)
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svcs, k)
	}

	return g.Wait()
}

// buildServices constructs the service layer over the wired dependencies.
func (a *App) buildServices(deps *Dependencies) *services {
	p := a.cfg.Protocol
	oracleMaxAge := a.cfg.Oracle.MaxAge.Duration

	return &services{
		protocol: service.NewProtocolService(
			deps.ProtocolStore, deps.WhitelistStore, deps.Ledger, deps.AuditStore, a.logger,
		),
		entries: service.NewEntryService(
			deps.ProtocolStore, deps.ArenaStore, deps.EntryStore, deps.WhitelistStore,
			deps.Oracle, deps.Ledger, deps.LockManager, deps.SignalBus, deps.AuditStore,
			a.logger,
			service.EntryOptions{
				OracleMaxAge: oracleMaxAge,
				FixedAmount:  p.FixedEntryAmount,
			},
		),
		rounds: service.NewRoundService(
			deps.ProtocolStore, deps.ArenaStore, deps.WhitelistStore, deps.Oracle,
			deps.LockManager, deps.SignalBus, deps.AuditStore, a.logger,
			service.RoundOptions{OracleMaxAge: oracleMaxAge},
		),
		settle: service.NewSettlementService(
			deps.ArenaStore, deps.LockManager, deps.SignalBus, deps.AuditStore,
			a.logger, p.MovementPrecision(),
		),
		payouts: service.NewPayoutService(
			deps.ProtocolStore, deps.ArenaStore, deps.EntryStore, deps.Ledger,
			deps.LockManager, deps.SignalBus, deps.AuditStore, a.logger,
			domain.RewardScheme(p.PayoutScheme),
		),
	}
}

// initProtocol seeds the protocol singleton from configuration on first
// start. Once initialized the persisted state is authoritative and the seed
// is ignored.
func (a *App) initProtocol(ctx context.Context, svcs *services) error {
	p := a.cfg.Protocol

	st, err := svcs.protocol.Init(ctx, domain.ProtocolState{
		Admin:       a.cfg.Admin.Account,
		FeeBps:      p.FeeBps,
		Duration:    p.Duration.Duration,
		MinPlayers:  uint8(p.MinPlayers),
		MaxPlayers:  uint8(p.MaxPlayers),
		MaxPerAsset: uint8(p.MaxPerAsset),
		// Band bounds are configured in whole dollars; the unit of account
		// carries six decimals.
		EntryMinValue:  p.EntryMinValueUSD * 1_000_000,
		EntryMaxValue:  p.EntryMaxValueUSD * 1_000_000,
		CurrentArenaID: 1,
	})
	if err != nil {
		return fmt.Errorf("init protocol: %w", err)
	}

	a.logger.InfoContext(ctx, "protocol state loaded",
		slog.String("admin", st.Admin),
		slog.Uint64("current_arena_id", st.CurrentArenaID),
		slog.Bool("paused", st.Paused),
	)
	return nil
}

// startKeeper adds the keeper loops to the errgroup and returns the keeper
// for on-demand archive runs from the admin API.
func (a *App) startKeeper(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) *keeper.Keeper {
	k := keeper.New(svcs.rounds, svcs.settle, deps.Archiver, deps.Notifier, a.logger, keeper.Options{
		TickInterval: a.cfg.Keeper.TickInterval.Duration,
		AutoStart:    a.cfg.Protocol.AutoStart,
		ArchiveAfter: a.cfg.Keeper.ArchiveAfter.Duration,
		ArchiveCron:  a.cfg.Keeper.ArchiveCron,
	})

	g.Go(func() error {
		return k.Run(ctx)
	})
	return k
}

// startOracleStream connects the oracle WebSocket feed and pushes live quotes
// into the price cache so captures and entry valuation hit fresh data without
// an HTTP round trip. A missing stream host disables streaming; reads then
// fall through to the HTTP oracle.
func (a *App) startOracleStream(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.OracleStream == nil {
		return
	}

	assets, err := deps.WhitelistStore.List(ctx, true)
	if err != nil {
		a.logger.WarnContext(ctx, "oracle stream disabled: listing whitelist failed",
			slog.String("error", err.Error()),
		)
		return
	}
	if len(assets) == 0 {
		a.logger.InfoContext(ctx, "oracle stream idle: no whitelisted assets")
		return
	}

	feedIDs := make([]string, 0, len(assets))
	byFeed := make(map[string]domain.AssetIndex, len(assets))
	for _, asset := range assets {
		feedIDs = append(feedIDs, asset.FeedID)
		byFeed[asset.NormalizedFeedID()] = asset.Index
	}

	deps.OracleStream.OnQuote(func(q domain.PriceQuote) {
		index, ok := byFeed[strings.ToLower(strings.TrimPrefix(q.FeedID, "0x"))]
		if !ok {
			return
		}
		cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := deps.PriceCache.SetQuote(cacheCtx, index, q); err != nil {
			a.logger.Warn("oracle stream: cache quote failed",
				slog.String("feed_id", q.FeedID),
				slog.String("error", err.Error()),
			)
		}
	})

	g.Go(func() error {
		if err := deps.OracleStream.Connect(ctx); err != nil {
			a.logger.WarnContext(ctx, "oracle stream connect failed, falling back to http oracle",
				slog.String("error", err.Error()),
			)
			return nil
		}
		if err := deps.OracleStream.Subscribe(ctx, feedIDs); err != nil {
			a.logger.WarnContext(ctx, "oracle stream subscribe failed, falling back to http oracle",
				slog.String("error", err.Error()),
			)
			return nil
		}

		a.logger.InfoContext(ctx, "oracle stream connected",
			slog.Int("feeds", len(feedIDs)),
		)

		<-ctx.Done()
		return nil
	})
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// errgroup. archiveRunner is optional; when nil the archive trigger endpoint
// reports archival as unconfigured.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	svcs *services,
	archiveRunner *keeper.Keeper,
) {
	apiToken, err := crypto.LoadSecret(crypto.SecretConfig{
		RawSecret:     a.cfg.Admin.APIToken,
		EncryptedPath: a.cfg.Admin.EncryptedKeyPath,
		Password:      a.cfg.Admin.KeyPassword,
	})
	if err != nil {
		g.Go(func() error {
			return fmt.Errorf("http server: resolve admin credential: %w", err)
		})
		return
	}

	// The admin credential doubles as the signing secret for participant
	// identity tokens.
	var issuer *crypto.TokenIssuer
	if apiToken != "" {
		issuer = crypto.NewTokenIssuer(apiToken)
	}

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		err := hub.Run(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("ws hub: %w", err)
	})

	var runner handler.ArchiveRunner
	if archiveRunner != nil {
		runner = archiveRunner
	}

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(a.logger),
		Protocol: handler.NewProtocolHandler(svcs.protocol, a.logger),
		Arenas:   handler.NewArenaHandler(svcs.rounds, svcs.entries, a.logger),
		Entries:  handler.NewEntryHandler(svcs.entries, deps.Ledger, a.logger),
		Claims:   handler.NewClaimsHandler(svcs.payouts, a.logger),
		Admin: handler.NewAdminHandler(
			a.cfg.Admin.Account,
			svcs.protocol, svcs.rounds, svcs.settle, svcs.payouts,
			deps.Ledger, runner, issuer, a.logger,
		),
		Hub: hub,
	}

	srv := server.NewServer(server.Config{
		Port:          a.cfg.Server.Port,
		CORSOrigins:   a.cfg.Server.CORSOrigins,
		APIToken:      apiToken,
		RatePerMinute: a.cfg.Server.RatePerMinute,
		Limiter:       deps.RateLimiter,
		Tokens:        issuer,
	}, handlers, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
