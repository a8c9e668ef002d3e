package digest

import "encoding/json"

// Task types emitted by the search digesters
const (
	TaskKeywordIndex  = "search-keyword-index"
	TaskSemanticIndex = "search-semantic-index"
)

// IndexTaskPayload is the payload of both index task types
type IndexTaskPayload struct {
	FilePath string `json:"filePath"`
}

// TaskEnqueuer schedules deferred work on the task queue
type TaskEnqueuer func(taskType, payload string) (string, error)

var enqueueTask TaskEnqueuer

// SetTaskEnqueuer wires the task queue in. Without it the search digesters
// still persist documents but nothing pushes them to the indexes.
func SetTaskEnqueuer(fn TaskEnqueuer) {
	enqueueTask = fn
}

// enqueueIndexTask schedules one index push and returns the queued task
// id, or "" when no queue is wired or the enqueue failed
func enqueueIndexTask(taskType, filePath string) string {
	if enqueueTask == nil {
		return ""
	}
	payload, _ := json.Marshal(IndexTaskPayload{FilePath: filePath})
	id, err := enqueueTask(taskType, string(payload))
	if err != nil {
		logger.Error().Err(err).Str("type", taskType).Str("path", filePath).Msg("failed to enqueue index task")
		return ""
	}
	return id
}
