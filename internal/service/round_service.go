// Package service implements the application services over the domain stores.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/predictd/internal/domain"
)

// RoundService owns the round lifecycle: create, fetch, resolve, find-active.
type RoundService struct {
	rounds domain.RoundStore
	tasks  domain.TaskStore
	cache  domain.RoundCache
	bus    domain.SignalBus
	logger *slog.Logger

	// resolveAfter is how long after creation a round is scheduled for
	// resolution (bet window + run window). Zero disables auto-scheduling.
	resolveAfter time.Duration
}

// NewRoundService creates a RoundService with all required dependencies.
func NewRoundService(
	rounds domain.RoundStore,
	tasks domain.TaskStore,
	cache domain.RoundCache,
	bus domain.SignalBus,
	resolveAfter time.Duration,
	logger *slog.Logger,
) *RoundService {
	return &RoundService{
		rounds:       rounds,
		tasks:        tasks,
		cache:        cache,
		bus:          bus,
		resolveAfter: resolveAfter,
		logger:       logger,
	}
}

// Create opens a new ACTIVE round at the given start price and schedules its
// resolution task. Only one round may be ACTIVE at a time; a second create
// fails with domain.ErrActiveRound.
func (s *RoundService) Create(ctx context.Context, startPrice float64, mode int) (domain.Round, error) {
	if !domain.ValidRoundMode(mode) {
		return domain.Round{}, domain.ErrInvalidMode
	}

	now := time.Now().UTC()
	round := domain.Round{
		ID:         uuid.New().String(),
		StartPrice: startPrice,
		Mode:       mode,
		Status:     domain.RoundStatusActive,
		CreatedAt:  now,
	}

	if err := s.rounds.Create(ctx, round); err != nil {
		return domain.Round{}, fmt.Errorf("round_service: create: %w", err)
	}

	if s.resolveAfter > 0 {
		if _, err := s.scheduleResolution(ctx, round.ID, now.Add(s.resolveAfter)); err != nil {
			// The round exists; the resolver cannot pick it up without a task,
			// so surface the failure to the caller.
			return domain.Round{}, err
		}
	}

	s.logger.InfoContext(ctx, "round_service: round created",
		slog.String("round_id", round.ID),
		slog.Float64("start_price", startPrice),
		slog.Int("mode", mode),
	)

	return round, nil
}

// ScheduleResolution inserts a PENDING resolution task for the round at the
// given time.
func (s *RoundService) ScheduleResolution(ctx context.Context, roundID string, executeAt time.Time) (domain.ScheduledTask, error) {
	if _, err := s.rounds.GetByID(ctx, roundID); err != nil {
		return domain.ScheduledTask{}, fmt.Errorf("round_service: schedule resolution: %w", err)
	}
	return s.scheduleResolution(ctx, roundID, executeAt)
}

func (s *RoundService) scheduleResolution(ctx context.Context, roundID string, executeAt time.Time) (domain.ScheduledTask, error) {
	task := domain.ScheduledTask{
		ID:        uuid.New().String(),
		RoundID:   roundID,
		Type:      domain.TaskTypeResolveRound,
		ExecuteAt: executeAt,
		Status:    domain.TaskStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return domain.ScheduledTask{}, fmt.Errorf("round_service: schedule resolution: %w", err)
	}
	return task, nil
}

// Get retrieves a round by ID, checking the cache first and falling back to
// the persistent store on a cache miss.
func (s *RoundService) Get(ctx context.Context, id string) (domain.Round, error) {
	r, err := s.cache.Get(ctx, id)
	if err == nil {
		return r, nil
	}

	r, err = s.rounds.GetByID(ctx, id)
	if err != nil {
		return domain.Round{}, fmt.Errorf("round_service: get %q: %w", id, err)
	}

	// Back-fill cache; log but do not fail on cache write errors.
	if cacheErr := s.cache.Set(ctx, r); cacheErr != nil {
		s.logger.WarnContext(ctx, "round_service: cache set failed",
			slog.String("round_id", id),
			slog.String("error", cacheErr.Error()),
		)
	}

	return r, nil
}

// Resolve closes the round at the given final price. The transition is
// guarded: a missing round yields ErrNotFound, a round that is no longer
// ACTIVE yields ErrAlreadyResolved. On success the cache entry is dropped and
// a round:update event is published to the round's room.
func (s *RoundService) Resolve(ctx context.Context, id string, finalPrice float64) (domain.Round, error) {
	round, err := s.rounds.Resolve(ctx, id, finalPrice, time.Now().UTC())
	if err != nil {
		return domain.Round{}, fmt.Errorf("round_service: resolve %q: %w", id, err)
	}

	s.publishUpdate(ctx, round)

	s.logger.InfoContext(ctx, "round_service: round resolved",
		slog.String("round_id", id),
		slog.Float64("final_price", finalPrice),
	)

	return round, nil
}

// Active returns the current ACTIVE round, or ErrNotFound when none is open.
func (s *RoundService) Active(ctx context.Context) (domain.Round, error) {
	r, err := s.rounds.GetActive(ctx)
	if err != nil {
		return domain.Round{}, fmt.Errorf("round_service: active: %w", err)
	}
	return r, nil
}

// publishUpdate invalidates the cached snapshot and pushes the round to its
// room. Both are best-effort: subscribers fall back to polling and the cache
// expires on its own.
func (s *RoundService) publishUpdate(ctx context.Context, round domain.Round) {
	if err := s.cache.Invalidate(ctx, round.ID); err != nil {
		s.logger.WarnContext(ctx, "round_service: cache invalidate failed",
			slog.String("round_id", round.ID),
			slog.String("error", err.Error()),
		)
	}

	event, err := domain.NewRoundUpdateEvent(round)
	if err != nil {
		s.logger.ErrorContext(ctx, "round_service: encode round update failed",
			slog.String("round_id", round.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.bus.Publish(ctx, domain.RoundChannel(round.ID), event); err != nil {
		s.logger.WarnContext(ctx, "round_service: publish round update failed",
			slog.String("round_id", round.ID),
			slog.String("error", err.Error()),
		)
	}
}
