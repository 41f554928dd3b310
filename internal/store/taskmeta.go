package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/GIScience/climatoology-go/internal/model"
)

// WriteTaskMeta upserts the broker's outcome mirror row for one task.
// This is written by the broker framework after the task handler
// returns, never by the handler itself, so it must never be relied on
// as the source of computation status.
func (s *Store) WriteTaskMeta(ctx context.Context, meta model.TaskMeta) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ca_base.celery_taskmeta (task_id, status, result, date_done, traceback, name, worker, retries, queue)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (task_id) DO UPDATE SET
			status = EXCLUDED.status, result = EXCLUDED.result, date_done = EXCLUDED.date_done,
			traceback = EXCLUDED.traceback, retries = ca_base.celery_taskmeta.retries + 1
	`, meta.TaskID, string(meta.Status), meta.Result, meta.DateDone, meta.Traceback, meta.Name, meta.Worker, meta.Retries, meta.Queue)
	if err != nil {
		return fmt.Errorf("write task meta: %w", err)
	}
	return nil
}

// ReadTaskMeta returns the broker outcome row for taskID, if any.
func (s *Store) ReadTaskMeta(ctx context.Context, taskID uuid.UUID) (model.TaskMeta, error) {
	var (
		meta      model.TaskMeta
		status    string
		result    *string
		traceback *string
		worker    *string
		dateDone  *time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, task_id, status, result, date_done, traceback, name, worker, retries, queue
		FROM ca_base.celery_taskmeta WHERE task_id = $1
	`, taskID).Scan(&meta.ID, &meta.TaskID, &status, &result, &dateDone, &traceback, &meta.Name, &worker, &meta.Retries, &meta.Queue)
	if err != nil {
		return model.TaskMeta{}, fmt.Errorf("read task meta: %w", err)
	}
	meta.Status = model.TaskStatus(status)
	if result != nil {
		meta.Result = *result
	}
	if traceback != nil {
		meta.Traceback = *traceback
	}
	if worker != nil {
		meta.Worker = *worker
	}
	if dateDone != nil {
		meta.DateDone = *dateDone
	}
	return meta, nil
}
