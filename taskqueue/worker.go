package taskqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mnemo-app/mnemo/config"
	"github.com/mnemo-app/mnemo/db"
	"github.com/mnemo-app/mnemo/log"
)

var logger = log.GetLogger("taskqueue")

// MaxTaskAttempts bounds retries of a failing task
const MaxTaskAttempts = 4

// Handler processes one task payload
type Handler func(ctx context.Context, payload string) error

// Worker polls the tasks table and dispatches claimed tasks to their
// registered handlers. Tasks survive restarts; running tasks left behind
// by a crash are re-queued at startup.
type Worker struct {
	mu       sync.RWMutex
	handlers map[string]Handler

	pollInterval time.Duration
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// NewWorker creates a task queue worker
func NewWorker() *Worker {
	return &Worker{
		handlers:     make(map[string]Handler),
		pollInterval: time.Duration(config.Get().TaskPollIntervalMs) * time.Millisecond,
	}
}

// Register binds a handler to a task type. Claimed tasks with no
// handler are failed.
func (w *Worker) Register(taskType string, handler Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[taskType] = handler
}

// Enqueue adds a task and returns its id
func Enqueue(taskType, payload string) (string, error) {
	return db.EnqueueTask(taskType, payload)
}

// Start launches the polling loop
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	if n, err := db.ResetRunningTasks(); err != nil {
		logger.Error().Err(err).Msg("failed to reset running tasks")
	} else if n > 0 {
		logger.Info().Int64("tasks", n).Msg("re-queued interrupted tasks")
	}

	w.wg.Add(1)
	go w.run(ctx)
	logger.Info().Dur("pollInterval", w.pollInterval).Msg("task queue worker started")
}

// Stop cancels the loop and waits for the in-flight task
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	logger.Info().Msg("task queue worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain processes tasks until the queue is empty or the context ends
func (w *Worker) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := db.ClaimNextTask()
		if err != nil {
			logger.Error().Err(err).Msg("failed to claim task")
			return
		}
		if task == nil {
			return
		}

		w.process(ctx, task)
	}
}

func (w *Worker) process(ctx context.Context, task *db.Task) {
	w.mu.RLock()
	handler, ok := w.handlers[task.TaskType]
	w.mu.RUnlock()

	if !ok {
		err := fmt.Sprintf("no handler for task type %q", task.TaskType)
		logger.Warn().Str("id", task.ID).Str("type", task.TaskType).Msg(err)
		if ferr := db.FailTask(task.ID, err, MaxTaskAttempts); ferr != nil {
			logger.Error().Err(ferr).Str("id", task.ID).Msg("failed to record task failure")
		}
		return
	}

	if err := handler(ctx, task.Payload); err != nil {
		logger.Error().Err(err).Str("id", task.ID).Str("type", task.TaskType).Msg("task failed")
		if ferr := db.FailTask(task.ID, err.Error(), MaxTaskAttempts); ferr != nil {
			logger.Error().Err(ferr).Str("id", task.ID).Msg("failed to record task failure")
		}
		return
	}

	if err := db.CompleteTask(task.ID); err != nil {
		logger.Error().Err(err).Str("id", task.ID).Msg("failed to complete task")
		return
	}
	logger.Debug().Str("id", task.ID).Str("type", task.TaskType).Msg("task completed")
}
