package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/predictd/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memRoundStore is an in-memory RoundStore that enforces the same invariants
// as the PostgreSQL implementation: at most one ACTIVE round, and a guarded
// ACTIVE -> RESOLVED transition.
type memRoundStore struct {
	mu     sync.Mutex
	rounds map[string]domain.Round
}

func newMemRoundStore() *memRoundStore {
	return &memRoundStore{rounds: make(map[string]domain.Round)}
}

func (s *memRoundStore) Create(ctx context.Context, round domain.Round) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if round.Status == domain.RoundStatusActive {
		for _, r := range s.rounds {
			if r.Status == domain.RoundStatusActive {
				return domain.ErrActiveRound
			}
		}
	}
	s.rounds[round.ID] = round
	return nil
}

func (s *memRoundStore) GetByID(ctx context.Context, id string) (domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok {
		return domain.Round{}, domain.ErrNotFound
	}
	return r, nil
}

func (s *memRoundStore) Resolve(ctx context.Context, id string, finalPrice float64, at time.Time) (domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok {
		return domain.Round{}, domain.ErrNotFound
	}
	if r.Status != domain.RoundStatusActive {
		return domain.Round{}, domain.ErrAlreadyResolved
	}
	r.Status = domain.RoundStatusResolved
	r.FinalPrice = &finalPrice
	r.ResolvedAt = &at
	s.rounds[id] = r
	return r, nil
}

func (s *memRoundStore) GetActive(ctx context.Context) (domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rounds {
		if r.Status == domain.RoundStatusActive {
			return r, nil
		}
	}
	return domain.Round{}, domain.ErrNotFound
}

func (s *memRoundStore) ListResolvedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Round
	for _, r := range s.rounds {
		if r.Status == domain.RoundStatusResolved && r.ResolvedAt != nil && r.ResolvedAt.Before(cutoff) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResolvedAt.Before(*out[j].ResolvedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memRoundStore) DeleteByIDs(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.rounds, id)
	}
	return nil
}

// memTaskStore is an in-memory TaskStore.
type memTaskStore struct {
	mu        sync.Mutex
	tasks     map[string]domain.ScheduledTask
	createErr error
}

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{tasks: make(map[string]domain.ScheduledTask)}
}

func (s *memTaskStore) Create(ctx context.Context, task domain.ScheduledTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.tasks[task.ID] = task
	return nil
}

func (s *memTaskStore) GetByID(ctx context.Context, id string) (domain.ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return domain.ScheduledTask{}, domain.ErrNotFound
	}
	return t, nil
}

func (s *memTaskStore) ListDue(ctx context.Context, now time.Time) ([]domain.ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ScheduledTask
	for _, t := range s.tasks {
		if t.Due(now) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecuteAt.Before(out[j].ExecuteAt) })
	return out, nil
}

func (s *memTaskStore) Complete(ctx context.Context, id string, at time.Time) (domain.ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return domain.ScheduledTask{}, domain.ErrNotFound
	}
	t.Status = domain.TaskStatusCompleted
	if t.CompletedAt == nil {
		t.CompletedAt = &at
	}
	s.tasks[id] = t
	return t, nil
}

func (s *memTaskStore) ListCompletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.ScheduledTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ScheduledTask
	for _, t := range s.tasks {
		if t.Status == domain.TaskStatusCompleted && t.CompletedAt != nil && t.CompletedAt.Before(cutoff) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.Before(*out[j].CompletedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memTaskStore) DeleteByIDs(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.tasks, id)
	}
	return nil
}

// memNotificationStore is an in-memory NotificationStore that lists newest
// first, matching the SQL implementation's ordering.
type memNotificationStore struct {
	mu            sync.Mutex
	notifications []domain.Notification
}

func newMemNotificationStore() *memNotificationStore {
	return &memNotificationStore{}
}

func (s *memNotificationStore) Create(ctx context.Context, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
	return nil
}

func (s *memNotificationStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *memNotificationStore) MarkRead(ctx context.Context, id string) (domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notifications {
		if n.ID == id {
			s.notifications[i].Read = true
			return s.notifications[i], nil
		}
	}
	return domain.Notification{}, domain.ErrNotFound
}

// memCache is an in-memory RoundCache. Get misses report ErrNotFound.
type memCache struct {
	mu     sync.Mutex
	rounds map[string]domain.Round
	sets   int
}

func newMemCache() *memCache {
	return &memCache{rounds: make(map[string]domain.Round)}
}

func (c *memCache) Get(ctx context.Context, id string) (domain.Round, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rounds[id]
	if !ok {
		return domain.Round{}, domain.ErrNotFound
	}
	return r, nil
}

func (c *memCache) Set(ctx context.Context, round domain.Round) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rounds[round.ID] = round
	c.sets++
	return nil
}

func (c *memCache) Invalidate(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rounds, id)
	return nil
}

// recordingBus records published messages so tests can assert on channel and
// payload.
type recordingBus struct {
	mu        sync.Mutex
	published []busRecord
}

type busRecord struct {
	channel string
	payload []byte
}

func (b *recordingBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, busRecord{channel: channel, payload: payload})
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *recordingBus) records() []busRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]busRecord, len(b.published))
	copy(out, b.published)
	return out
}
