package conversation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/m3rciful/synobot/core/dispatch"
	"github.com/m3rciful/synobot/core/logger"
	"github.com/m3rciful/synobot/core/stats"
)

// Enqueuer schedules background jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, action string, run dispatch.Job) error
}

// Journal writes turns to a stats.Recorder off the request path.
type Journal struct {
	rec   stats.Recorder
	queue Enqueuer
}

// NewJournal returns a Journal that records through rec on queue.
func NewJournal(rec stats.Recorder, queue Enqueuer) *Journal {
	return &Journal{rec: rec, queue: queue}
}

// Record schedules the request, category and response writes of t as one job.
// A full or closed queue drops the turn with a warning.
func (j *Journal) Record(ctx context.Context, t Turn) {
	if err := j.queue.Enqueue(ctx, "stats.turn", j.job(t)); err != nil {
		status := "fail"
		if errors.Is(err, dispatch.ErrQueueFull) || errors.Is(err, dispatch.ErrQueueClosed) {
			status = "dropped"
		}
		logger.STATS.LogAttrs(ctx, slog.LevelWarn, "stats.enqueue",
			slog.String("status", status),
			slog.String("user_id", t.UserID),
			slog.String("category", t.Category),
			slog.String("err", err.Error()),
		)
	}
}

// job resumes from the first step that has not succeeded yet, so a retry never
// inserts the request twice. Error turns keep their request unlabelled.
func (j *Journal) job(t Turn) dispatch.Job {
	var (
		requestID    int64
		recorded     bool
		categoryDone = t.Category == CategoryError
	)
	return func(ctx context.Context) error {
		if !recorded {
			id, err := j.rec.RecordRequest(ctx, t.UserID, t.Username, t.Question, nil)
			if err != nil {
				return err
			}
			requestID, recorded = id, true
		}
		if !categoryDone {
			if err := j.rec.UpdateRequestCategory(ctx, requestID, t.Category); err != nil {
				return err
			}
			categoryDone = true
		}
		if err := j.rec.RecordResponse(ctx, requestID, t.Response, t.Category, false); err != nil {
			return err
		}
		logger.STATS.LogAttrs(ctx, slog.LevelDebug, "stats.turn",
			slog.String("status", "ok"),
			slog.Int64("request_id", requestID),
			slog.String("category", t.Category),
		)
		return nil
	}
}
