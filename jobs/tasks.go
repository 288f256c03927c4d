package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskMediaReap removes unreferenced product images and stale staged uploads.
	TaskMediaReap = "media:reap"
)

// MediaReapPayload tunes a reap run. A zero GraceSeconds uses the worker default.
type MediaReapPayload struct {
	GraceSeconds int64 `json:"grace_seconds,omitempty"`
}

// Grace returns the payload grace period or fallback when unset.
func (p MediaReapPayload) Grace(fallback time.Duration) time.Duration {
	if p.GraceSeconds <= 0 {
		return fallback
	}
	return time.Duration(p.GraceSeconds) * time.Second
}

// NewMediaReapTask builds a media reap task. A zero grace uses the worker default.
func NewMediaReapTask(grace time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(MediaReapPayload{GraceSeconds: int64(grace / time.Second)})
	if err != nil {
		return nil, err
	}
	// Overlapping sweeps would only race each other on the same files.
	return asynq.NewTask(TaskMediaReap, body, asynq.Queue(QueueDefault), asynq.Unique(time.Minute)), nil
}
