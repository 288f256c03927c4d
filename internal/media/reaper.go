package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ReapResult summarises one sweep of the media directories.
type ReapResult struct {
	Orphans      int
	StaleStaged  int
	BytesRemoved int64
}

// Reap deletes committed images that no product references and staged
// uploads abandoned by failed creates. Only files whose modification time is
// older than grace are touched, so in-flight creates are never raced.
func (s *Store) Reap(ctx context.Context, referenced map[string]struct{}, grace time.Duration) (ReapResult, error) {
	var result ReapResult
	cutoff := s.now().Add(-grace)

	orphans, bytes, err := s.sweep(ctx, s.root, cutoff, func(name string) bool {
		if !strings.HasPrefix(name, namePrefix) {
			return false
		}
		_, inUse := referenced[name]
		return !inUse
	})
	result.Orphans = orphans
	result.BytesRemoved += bytes
	if err != nil {
		return result, err
	}

	stale, bytes, err := s.sweep(ctx, s.staging, cutoff, func(string) bool { return true })
	result.StaleStaged = stale
	result.BytesRemoved += bytes
	return result, err
}

func (s *Store) sweep(ctx context.Context, dir string, cutoff time.Time, match func(string) bool) (int, int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("media: read %s: %w", dir, err)
	}

	var (
		removed int
		bytes   int64
	)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, bytes, err
		}
		if !entry.Type().IsRegular() || !match(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, bytes, fmt.Errorf("media: remove %s: %w", entry.Name(), err)
		}
		removed++
		bytes += info.Size()
	}
	return removed, bytes, nil
}
