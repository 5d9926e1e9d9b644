package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/alanyoungcy/predictd/internal/domain"
)

// batchLimit caps how many rows one archive pass moves per entity.
const batchLimit = 1000

// BlobWriter is the upload surface the archiver needs. Satisfied by *Writer.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver moves settled history out of PostgreSQL into object storage:
// resolved rounds and completed tasks older than the retention window are
// serialized to JSONL, uploaded, and then pruned from the primary store.
// Pruning happens only after a successful upload.
type Archiver struct {
	writer    BlobWriter
	rounds    domain.RoundStore
	tasks     domain.TaskStore
	retention time.Duration
	logger    *slog.Logger
}

// NewArchiver creates an Archiver that retains rows for the given duration.
func NewArchiver(
	writer BlobWriter,
	rounds domain.RoundStore,
	tasks domain.TaskStore,
	retention time.Duration,
	logger *slog.Logger,
) *Archiver {
	return &Archiver{
		writer:    writer,
		rounds:    rounds,
		tasks:     tasks,
		retention: retention,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// Run archives on the given interval until the context is cancelled.
func (a *Archiver) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.ArchiveOnce(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archive pass failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// ArchiveOnce performs a single archive pass. Tasks are archived before
// rounds because scheduled_tasks references rounds.
func (a *Archiver) ArchiveOnce(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-a.retention)

	tasksMoved, err := a.archiveTasks(ctx, cutoff)
	if err != nil {
		return err
	}

	roundsMoved, err := a.archiveRounds(ctx, cutoff)
	if err != nil {
		return err
	}

	if tasksMoved > 0 || roundsMoved > 0 {
		a.logger.InfoContext(ctx, "archive pass complete",
			slog.Int("tasks", tasksMoved),
			slog.Int("rounds", roundsMoved),
			slog.Time("cutoff", cutoff),
		)
	}
	return nil
}

func (a *Archiver) archiveRounds(ctx context.Context, cutoff time.Time) (int, error) {
	rounds, err := a.rounds.ListResolvedBefore(ctx, cutoff, batchLimit)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive rounds query: %w", err)
	}
	if len(rounds) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(rounds)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive rounds marshal: %w", err)
	}

	path := archivePath("rounds", cutoff)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive rounds upload: %w", err)
	}

	ids := make([]string, len(rounds))
	for i, r := range rounds {
		ids[i] = r.ID
	}
	if err := a.rounds.DeleteByIDs(ctx, ids); err != nil {
		return 0, fmt.Errorf("s3blob: archive rounds prune: %w", err)
	}

	return len(rounds), nil
}

func (a *Archiver) archiveTasks(ctx context.Context, cutoff time.Time) (int, error) {
	tasks, err := a.tasks.ListCompletedBefore(ctx, cutoff, batchLimit)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive tasks query: %w", err)
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(tasks)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive tasks marshal: %w", err)
	}

	path := archivePath("tasks", cutoff)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive tasks upload: %w", err)
	}

	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	if err := a.tasks.DeleteByIDs(ctx, ids); err != nil {
		return 0, fmt.Errorf("s3blob: archive tasks prune: %w", err)
	}

	return len(tasks), nil
}

// marshalJSONL serializes a slice to newline-delimited JSON.
func marshalJSONL[T any](items []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// archivePath builds the object key for an archive batch, bucketed by month
// with a timestamp suffix so repeated passes never collide.
func archivePath(entity string, cutoff time.Time) string {
	return fmt.Sprintf("archive/%s/%s/%d.jsonl",
		entity, cutoff.Format("2006-01"), time.Now().UnixNano())
}
