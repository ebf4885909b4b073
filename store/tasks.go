package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/blockloop/scan"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/dataplane-io/datashare/share"
)

const taskIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Task actions.
const (
	TaskActionApprove = "approve"
	TaskActionReject  = "reject"
)

// Task statuses.
const (
	TaskStatusPending   = "pending"
	TaskStatusRunning   = "running"
	TaskStatusSucceeded = "succeeded"
	TaskStatusFailed    = "failed"
)

// Task is one queued unit of share processing work.
type Task struct {
	ID      string `db:"id"`
	ShareID string `db:"share_id"`
	Action  string `db:"action"`
	Status  string `db:"status"`
	Error   string `db:"error"`
}

// EnqueueTask queues an approve or reject run for a share and returns the
// task id.
func (s *Store) EnqueueTask(ctx context.Context, shareID string, action string) (string, error) {
	if action != TaskActionApprove && action != TaskActionReject {
		return "", fmt.Errorf("unknown task action %q", action)
	}

	taskID := gonanoid.MustGenerate(taskIDAlphabet, 12)

	_, err := s.write.ExecContext(ctx,
		`INSERT INTO share_tasks (id, share_id, action, status) VALUES (?, ?, ?, ?)`,
		taskID, shareID, action, TaskStatusPending)
	if err != nil {
		return "", fmt.Errorf("enqueueing %s task for share %s: %w", action, shareID, err)
	}

	return taskID, nil
}

// DequeueTasks claims up to limit pending tasks in enqueue order, marking
// them running. The claim happens in a single immediate transaction so
// concurrent workers never pick up the same task.
func (s *Store) DequeueTasks(ctx context.Context, limit int) ([]*Task, error) {
	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning dequeue transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, share_id, action, status, error
		 FROM share_tasks WHERE status = ? ORDER BY created_at LIMIT ?`, TaskStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("querying pending tasks: %w", err)
	}

	var taskRows []Task
	if err = scan.Rows(&taskRows, rows); err != nil {
		return nil, fmt.Errorf("scanning pending tasks: %w", err)
	}

	tasks := make([]*Task, 0, len(taskRows))

	for i := range taskRows {
		task := taskRows[i]

		_, err = tx.ExecContext(ctx,
			`UPDATE share_tasks SET status = ?, started_at = CURRENT_TIMESTAMP WHERE id = ?`,
			TaskStatusRunning, task.ID)
		if err != nil {
			return nil, fmt.Errorf("claiming task %s: %w", task.ID, err)
		}

		task.Status = TaskStatusRunning
		tasks = append(tasks, &task)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing dequeue transaction: %w", err)
	}

	return tasks, nil
}

// RequeueStaleTasks returns running tasks older than age to the pending
// state so another worker can pick them up. Tasks stay running when their
// owner dies mid-run, so workers call this on startup.
func (s *Store) RequeueStaleTasks(ctx context.Context, age time.Duration) (int, error) {
	cutoff := fmt.Sprintf("-%d seconds", int(age.Seconds()))

	res, err := s.write.ExecContext(ctx,
		`UPDATE share_tasks SET status = ?, started_at = NULL
		 WHERE status = ? AND started_at <= datetime('now', ?)`,
		TaskStatusPending, TaskStatusRunning, cutoff)
	if err != nil {
		return 0, fmt.Errorf("requeueing stale tasks: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("requeueing stale tasks: %w", err)
	}

	return int(affected), nil
}

// CompleteTask records a task's outcome.
func (s *Store) CompleteTask(ctx context.Context, taskID string, taskErr error) error {
	status := TaskStatusSucceeded
	message := ""

	if taskErr != nil {
		status = TaskStatusFailed
		message = taskErr.Error()
	}

	res, err := s.write.ExecContext(ctx,
		`UPDATE share_tasks SET status = ?, error = ?, completed_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, message, taskID)
	if err != nil {
		return fmt.Errorf("completing task %s: %w", taskID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("completing task %s: %w", taskID, err)
	}

	if affected == 0 {
		return share.NewNotFoundError("task", taskID)
	}

	return nil
}

// GetTask returns one task by id.
func (s *Store) GetTask(ctx context.Context, taskID string) (*Task, error) {
	rows, err := s.read.QueryContext(ctx,
		`SELECT id, share_id, action, status, error FROM share_tasks WHERE id = ?`, taskID)
	if err != nil {
		return nil, fmt.Errorf("querying task %s: %w", taskID, err)
	}

	var task Task
	if err = scan.Row(&task, rows); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, share.NewNotFoundError("task", taskID)
		}

		return nil, fmt.Errorf("scanning task %s: %w", taskID, err)
	}

	return &task, nil
}
