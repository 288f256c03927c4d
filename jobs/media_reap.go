package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/bensupplier/catalog/internal/jobs"
	"github.com/bensupplier/catalog/internal/media"
)

// DefaultOrphanGrace is used when neither the job nor the payload set a grace.
const DefaultOrphanGrace = 24 * time.Hour

// ImageLister reports every image name still referenced by a product.
type ImageLister interface {
	ReferencedImages(ctx context.Context) (map[string]struct{}, error)
}

// MediaReaper deletes unreferenced media files.
type MediaReaper interface {
	Reap(ctx context.Context, referenced map[string]struct{}, grace time.Duration) (media.ReapResult, error)
}

// ReapRecorder receives reap counts.
type ReapRecorder interface {
	MediaReaped(orphans, staged int)
}

// MediaReapJob sweeps the media root for files left behind by deletes and
// failed creates.
type MediaReapJob struct {
	Images   ImageLister
	Store    MediaReaper
	Grace    time.Duration
	Logger   *slog.Logger
	Recorder ReapRecorder
	Metrics  *jobmetrics.Metrics
}

// NewMediaReapJob initialises the reap handler.
func NewMediaReapJob(images ImageLister, store MediaReaper, grace time.Duration, logger *slog.Logger) *MediaReapJob {
	if grace <= 0 {
		grace = DefaultOrphanGrace
	}
	return &MediaReapJob{Images: images, Store: store, Grace: grace, Logger: logger}
}

// Handle executes one sweep.
func (j *MediaReapJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Images == nil || j.Store == nil {
		return errors.New("media reap: handler not configured")
	}
	var payload MediaReapPayload
	if body := t.Payload(); len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			return fmt.Errorf("media reap: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	grace := payload.Grace(j.Grace)

	tracker := j.Metrics.Track(TaskMediaReap)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(slog.Duration("grace", grace))

	// Without a complete reference set every image would look orphaned.
	referenced, err := j.Images.ReferencedImages(ctx)
	if err != nil {
		logger.Error("list referenced images", slog.Any("error", err))
		return fmt.Errorf("media reap: list referenced images: %w", err)
	}

	result, err := j.Store.Reap(ctx, referenced, grace)
	if j.Recorder != nil {
		j.Recorder.MediaReaped(result.Orphans, result.StaleStaged)
	}
	if err != nil {
		logger.Error("reap media", slog.Int("orphans", result.Orphans), slog.Any("error", err))
		return fmt.Errorf("media reap: %w", err)
	}

	logger.Info("media reaped",
		slog.Int("referenced", len(referenced)),
		slog.Int("orphans", result.Orphans),
		slog.Int("stale_staged", result.StaleStaged),
		slog.Int64("bytes", result.BytesRemoved),
	)
	return nil
}

func (j *MediaReapJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
