package db

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Task status values
const (
	TaskStatusPending   = "pending"
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusFailed    = "failed"
)

// Task is a unit of deferred work in the tasks table
type Task struct {
	ID        string  `json:"id"`
	TaskType  string  `json:"taskType"`
	Payload   string  `json:"payload"`
	Status    string  `json:"status"`
	Attempts  int     `json:"attempts"`
	Error     *string `json:"error,omitempty"`
	CreatedAt int64   `json:"createdAt"`
	UpdatedAt int64   `json:"updatedAt"`
}

// EnqueueTask inserts a pending task and returns its id
func EnqueueTask(taskType, payload string) (string, error) {
	id := uuid.NewString()
	now := NowMs()
	_, err := GetDB().Exec(`
		INSERT INTO tasks (id, task_type, payload, status, attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
	`, id, taskType, payload, TaskStatusPending, now, now)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue %s task: %w", taskType, err)
	}
	return id, nil
}

// ClaimNextTask atomically moves the oldest pending task to running and
// returns it. Returns nil when the queue is empty.
func ClaimNextTask() (*Task, error) {
	var task *Task
	err := Transaction(func(tx *sql.Tx) error {
		row := tx.QueryRow(`
			SELECT id, task_type, payload, status, attempts, error, created_at, updated_at
			FROM tasks WHERE status = ? ORDER BY created_at ASC LIMIT 1
		`, TaskStatusPending)

		var t Task
		var errMsg sql.NullString
		err := row.Scan(&t.ID, &t.TaskType, &t.Payload, &t.Status, &t.Attempts, &errMsg, &t.CreatedAt, &t.UpdatedAt)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to scan task: %w", err)
		}
		t.Error = StringPtr(errMsg)

		_, err = tx.Exec(
			"UPDATE tasks SET status = ?, attempts = attempts + 1, updated_at = ? WHERE id = ?",
			TaskStatusRunning, NowMs(), t.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to claim task %s: %w", t.ID, err)
		}
		t.Status = TaskStatusRunning
		t.Attempts++
		task = &t
		return nil
	})
	return task, err
}

// CompleteTask marks a task completed
func CompleteTask(id string) error {
	_, err := GetDB().Exec(
		"UPDATE tasks SET status = ?, error = NULL, updated_at = ? WHERE id = ?",
		TaskStatusCompleted, NowMs(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete task %s: %w", id, err)
	}
	return nil
}

// FailTask records a task failure. Tasks under the attempt cap go back to
// pending for another try.
func FailTask(id, errMsg string, maxAttempts int) error {
	_, err := GetDB().Exec(`
		UPDATE tasks SET
			status = CASE WHEN attempts >= ? THEN ? ELSE ? END,
			error = ?, updated_at = ?
		WHERE id = ?
	`, maxAttempts, TaskStatusFailed, TaskStatusPending, errMsg, NowMs(), id)
	if err != nil {
		return fmt.Errorf("failed to fail task %s: %w", id, err)
	}
	return nil
}

// ResetRunningTasks moves running tasks back to pending, used at startup
// to recover work interrupted by a crash
func ResetRunningTasks() (int64, error) {
	res, err := GetDB().Exec(
		"UPDATE tasks SET status = ?, updated_at = ? WHERE status = ?",
		TaskStatusPending, NowMs(), TaskStatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset running tasks: %w", err)
	}
	return res.RowsAffected()
}
