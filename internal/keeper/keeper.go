// Package keeper runs the background automation that moves arenas through
// their lifecycle without operator intervention: start and end price capture,
// settlement, and cold-storage archival.
package keeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mlabs-tech/cryptarena-svm/internal/domain"
	"github.com/mlabs-tech/cryptarena-svm/internal/notify"
	"github.com/mlabs-tech/cryptarena-svm/internal/service"
)

// Options configures the keeper loops.
type Options struct {
	// TickInterval is how often arenas are scanned for a due phase
	// transition.
	TickInterval time.Duration
	// AutoStart drives ready arenas into price capture automatically; when
	// false a ready arena waits for the administrator to begin the capture.
	AutoStart bool
	// ArchiveAfter is how long a terminal arena stays queryable before the
	// archiver ships it to object storage.
	ArchiveAfter time.Duration
	// ArchiveCron schedules archive runs ("minute hour dom month dow").
	ArchiveCron string
	// ArchiveBatch caps arenas archived per run.
	ArchiveBatch int
}

// Keeper owns the periodic lifecycle and archival loops.
type Keeper struct {
	rounds   *service.RoundService
	settle   *service.SettlementService
	archiver domain.Archiver
	notifier *notify.Notifier
	logger   *slog.Logger
	opts     Options
}

// New creates a Keeper. archiver and notifier may be nil, disabling archival
// and notifications respectively.
func New(
	rounds *service.RoundService,
	settle *service.SettlementService,
	archiver domain.Archiver,
	notifier *notify.Notifier,
	logger *slog.Logger,
	opts Options,
) *Keeper {
	if opts.ArchiveBatch <= 0 {
		opts.ArchiveBatch = 50
	}
	return &Keeper{
		rounds:   rounds,
		settle:   settle,
		archiver: archiver,
		notifier: notifier,
		logger:   logger,
		opts:     opts,
	}
}

// Run starts the keeper loops and blocks until the context is cancelled. A
// non-context error from any loop cancels the others and is returned.
func (k *Keeper) Run(ctx context.Context) error {
	k.logger.Info("keeper starting",
		slog.Duration("tick_interval", k.opts.TickInterval),
		slog.Bool("auto_start", k.opts.AutoStart),
		slog.String("archive_cron", k.opts.ArchiveCron),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := k.runPhaseLoop(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("phase loop: %w", err)
	})

	if k.archiver != nil && k.opts.ArchiveCron != "" {
		g.Go(func() error {
			err := k.runArchiveCron(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("archive cron: %w", err)
		})
	}

	err := g.Wait()
	if err != nil {
		k.logger.Error("keeper stopped with error", slog.String("error", err.Error()))
		return err
	}
	k.logger.Info("keeper stopped cleanly")
	return nil
}

// runPhaseLoop scans for arenas due a transition on every tick.
func (k *Keeper) runPhaseLoop(ctx context.Context) error {
	ticker := time.NewTicker(k.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			k.Tick(ctx)
		}
	}
}

// Tick runs one pass over all in-flight arenas. Failures on one arena are
// logged and never block progress on the others.
func (k *Keeper) Tick(ctx context.Context) {
	if k.opts.AutoStart {
		k.captureStarts(ctx, domain.StatusReady)
	}
	k.captureStarts(ctx, domain.StatusStarting)
	k.captureEnds(ctx)
}

func (k *Keeper) captureStarts(ctx context.Context, status domain.ArenaStatus) {
	arenas, err := k.rounds.ListByStatus(ctx, status, domain.ListOpts{})
	if err != nil {
		k.logger.Error("keeper: list arenas", slog.String("status", status.String()), slog.String("error", err.Error()))
		return
	}
	for _, arena := range arenas {
		if err := k.rounds.CaptureStartPrices(ctx, arena.ID); err != nil {
			k.logger.Warn("keeper: start price capture",
				slog.Uint64("arena_id", arena.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (k *Keeper) captureEnds(ctx context.Context) {
	now := time.Now().UTC()

	active, err := k.rounds.ListByStatus(ctx, domain.StatusActive, domain.ListOpts{})
	if err != nil {
		k.logger.Error("keeper: list active arenas", slog.String("error", err.Error()))
		return
	}
	closing, err := k.rounds.ListByStatus(ctx, domain.StatusClosing, domain.ListOpts{})
	if err != nil {
		k.logger.Error("keeper: list closing arenas", slog.String("error", err.Error()))
		return
	}

	for _, arena := range active {
		if now.Before(arena.EndsAt) {
			continue
		}
		closing = append(closing, arena)
	}

	for _, arena := range closing {
		if err := k.rounds.CaptureEndPrices(ctx, arena.ID); err != nil {
			k.logger.Warn("keeper: end price capture",
				slog.Uint64("arena_id", arena.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		refreshed, err := k.rounds.Get(ctx, arena.ID)
		if err != nil || refreshed.Status != domain.StatusClosing {
			continue
		}
		if refreshed.EndPrices < refreshed.AssetCount {
			continue
		}

		settled, err := k.settle.Settle(ctx, arena.ID)
		if err != nil {
			k.logger.Warn("keeper: settlement",
				slog.Uint64("arena_id", arena.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		k.notifySettled(ctx, settled)
	}
}

func (k *Keeper) notifySettled(ctx context.Context, arena domain.Arena) {
	if k.notifier == nil {
		return
	}

	event := "arena_settled"
	title := fmt.Sprintf("Arena %d settled", arena.ID)
	body := fmt.Sprintf("Winning asset: %d, pool: %d", arena.WinningAsset, arena.TotalPool)
	if arena.Status == domain.StatusCancelled {
		event = "arena_cancelled"
		title = fmt.Sprintf("Arena %d cancelled", arena.ID)
		body = fmt.Sprintf("Movement tie, %d entries refundable, pool: %d", arena.PlayerCount, arena.TotalPool)
	}

	if err := k.notifier.Notify(ctx, event, title, body); err != nil {
		k.logger.Warn("keeper: notify", slog.String("error", err.Error()))
	}
}

// runArchiveCron triggers an archive run on the configured schedule.
func (k *Keeper) runArchiveCron(ctx context.Context) error {
	k.logger.Info("keeper archiver cron started", slog.String("cron", k.opts.ArchiveCron))

	for {
		next, err := nextCronTime(k.opts.ArchiveCron, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("parsing cron expression %q: %w", k.opts.ArchiveCron, err)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			if err := k.RunArchive(ctx); err != nil {
				k.logger.Error("keeper: archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunArchive executes a single archive pass over terminal arenas and old
// audit rows.
func (k *Keeper) RunArchive(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-k.opts.ArchiveAfter)
	k.logger.Info("keeper: archive run starting", slog.Time("cutoff", cutoff))

	arenas, err := k.archiver.ArchiveArenas(ctx, cutoff, k.opts.ArchiveBatch)
	if err != nil {
		return fmt.Errorf("archiving arenas before %v: %w", cutoff, err)
	}

	audit, err := k.archiver.ArchiveAudit(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving audit before %v: %w", cutoff, err)
	}

	k.logger.Info("keeper: archive run complete",
		slog.Int64("arenas_archived", arenas),
		slog.Int64("audit_pruned", audit),
	)
	return nil
}
