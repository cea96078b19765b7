// Package jobs defines the asynq task surface shared by the API and the
// worker: task types, payloads, and the queue client.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSnapshotProcess generates the report payload for a pending snapshot.
	TaskSnapshotProcess = "report:snapshot"
	// TaskTreeRefresh rebuilds the actor tree from the remote listing.
	TaskTreeRefresh = "tree:refresh"
)

// SnapshotPayload identifies the snapshot row to process.
type SnapshotPayload struct {
	SnapshotID int64 `json:"snapshot_id"`
}

// NewSnapshotTask constructs the snapshot processing task.
func NewSnapshotTask(payload SnapshotPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSnapshotProcess, data), nil
}

// NewTreeRefreshTask constructs the tree refresh task. It carries no
// payload; the worker always refreshes the full listing.
func NewTreeRefreshTask() *asynq.Task {
	return asynq.NewTask(TaskTreeRefresh, nil)
}
