// Package resolver drives round resolution. It polls the task store for due
// RESOLVE_ROUND tasks, reads the oracle price, and settles each round and its
// task in a single transaction.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/alanyoungcy/predictd/internal/domain"
	"github.com/alanyoungcy/predictd/internal/notify"
)

// lockKey serializes resolver cycles across instances.
const lockKey = "resolver"

// Config holds the resolver's runtime parameters.
type Config struct {
	// PollInterval is how often the resolver checks for due tasks.
	PollInterval time.Duration
	// AssetID is the oracle asset whose price settles rounds.
	AssetID string
	// LockTTL bounds how long a crashed instance can hold the cycle lock.
	LockTTL time.Duration
}

// Resolver polls for due tasks and resolves their rounds. A distributed lock
// ensures a single instance processes each cycle; a task that fails stays
// PENDING and is retried next cycle, which the transactional store makes safe.
type Resolver struct {
	cfg      Config
	tasks    domain.TaskStore
	resolver domain.RoundResolver
	feed     domain.PriceFeed
	cache    domain.RoundCache
	bus      domain.SignalBus
	locks    domain.LockManager
	notifier *notify.Notifier
	clock    clockwork.Clock
	logger   *slog.Logger
}

// New creates a Resolver. The clock is injected so tests control time.
func New(
	cfg Config,
	tasks domain.TaskStore,
	roundResolver domain.RoundResolver,
	feed domain.PriceFeed,
	cache domain.RoundCache,
	bus domain.SignalBus,
	locks domain.LockManager,
	notifier *notify.Notifier,
	clock clockwork.Clock,
	logger *slog.Logger,
) *Resolver {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &Resolver{
		cfg:      cfg,
		tasks:    tasks,
		resolver: roundResolver,
		feed:     feed,
		cache:    cache,
		bus:      bus,
		locks:    locks,
		notifier: notifier,
		clock:    clock,
		logger:   logger.With(slog.String("component", "resolver")),
	}
}

// Run polls for due tasks until the context is cancelled.
func (r *Resolver) Run(ctx context.Context) error {
	r.logger.Info("resolver: starting",
		slog.Duration("poll_interval", r.cfg.PollInterval),
		slog.String("asset_id", r.cfg.AssetID),
	)

	ticker := r.clock.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("resolver: stopping")
			return ctx.Err()
		case <-ticker.Chan():
			if err := r.Cycle(ctx); err != nil {
				r.logger.ErrorContext(ctx, "resolver: cycle failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Cycle runs one resolution pass: take the lock, list due tasks, resolve each.
// A held lock means another instance is processing and is not an error.
func (r *Resolver) Cycle(ctx context.Context) error {
	unlock, err := r.locks.Acquire(ctx, lockKey, r.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			r.logger.DebugContext(ctx, "resolver: cycle skipped, lock held")
			return nil
		}
		return fmt.Errorf("resolver: acquire lock: %w", err)
	}
	defer unlock()

	now := r.clock.Now().UTC()
	due, err := r.tasks.ListDue(ctx, now)
	if err != nil {
		return fmt.Errorf("resolver: list due tasks: %w", err)
	}

	for _, task := range due {
		if err := r.resolveTask(ctx, task, now); err != nil {
			r.logger.ErrorContext(ctx, "resolver: task failed",
				slog.String("task_id", task.ID),
				slog.String("round_id", task.RoundID),
				slog.String("error", err.Error()),
			)
			r.alert(ctx, task, err)
			// Leave the task PENDING; it is retried next cycle.
			continue
		}
	}

	return nil
}

// resolveTask settles one round. The resolve and the task completion commit
// together, so a crash in between cannot strand a RESOLVED round behind a
// PENDING task.
func (r *Resolver) resolveTask(ctx context.Context, task domain.ScheduledTask, now time.Time) error {
	if task.Type != domain.TaskTypeResolveRound {
		return fmt.Errorf("resolver: unknown task type %q", task.Type)
	}

	price, priceAt, err := r.feed.GetPrice(ctx, r.cfg.AssetID)
	if err != nil {
		return fmt.Errorf("resolver: oracle price: %w", err)
	}

	round, err := r.resolver.ResolveRoundTask(ctx, task.RoundID, task.ID, price, now)
	if err != nil {
		return fmt.Errorf("resolver: resolve round %s: %w", task.RoundID, err)
	}

	r.logger.InfoContext(ctx, "resolver: round resolved",
		slog.String("round_id", round.ID),
		slog.String("task_id", task.ID),
		slog.Float64("final_price", price),
		slog.Time("price_at", priceAt),
	)

	// Drop the cached snapshot so point lookups see the RESOLVED round
	// immediately instead of waiting out the TTL. Best-effort: the entry
	// expires on its own.
	if err := r.cache.Invalidate(ctx, round.ID); err != nil {
		r.logger.WarnContext(ctx, "resolver: cache invalidate failed",
			slog.String("round_id", round.ID),
			slog.String("error", err.Error()),
		)
	}

	event, err := domain.NewRoundUpdateEvent(round)
	if err != nil {
		return fmt.Errorf("resolver: encode round update: %w", err)
	}
	if err := r.bus.Publish(ctx, domain.RoundChannel(round.ID), event); err != nil {
		// The round is settled; subscribers fall back to polling.
		r.logger.WarnContext(ctx, "resolver: publish round update failed",
			slog.String("round_id", round.ID),
			slog.String("error", err.Error()),
		)
	}

	return nil
}

// alert notifies operators about a failed task. Best-effort.
func (r *Resolver) alert(ctx context.Context, task domain.ScheduledTask, cause error) {
	if r.notifier == nil {
		return
	}
	_ = r.notifier.Notify(ctx, notify.EventResolveFailed,
		"Round resolution failed",
		fmt.Sprintf("task %s round %s: %v", task.ID, task.RoundID, cause),
	)
}
