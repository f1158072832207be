package jobs

import (
	"context"
	"fmt"
	"log"
	"time"
)

// ExportLogPruner deletes audit entries older than a cutoff and reports the
// archive objects they referenced.
type ExportLogPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]string, error)
}

// ObjectDeleter removes archived export documents.
type ObjectDeleter interface {
	DeleteObject(ctx context.Context, key string) error
}

// RetentionSweeper drops export history past the retention window together
// with its archived documents.
type RetentionSweeper struct {
	logs      ExportLogPruner
	objects   ObjectDeleter
	retention time.Duration
	now       func() time.Time
}

// NewRetentionSweeper creates a sweeper. objects may be nil when archival
// is disabled.
func NewRetentionSweeper(logs ExportLogPruner, objects ObjectDeleter, retention time.Duration) *RetentionSweeper {
	return &RetentionSweeper{
		logs:      logs,
		objects:   objects,
		retention: retention,
		now:       time.Now,
	}
}

// ProcessJobs implements JobProcessor.
func (s *RetentionSweeper) ProcessJobs(ctx context.Context) error {
	if s.retention <= 0 {
		return nil
	}

	cutoff := s.now().Add(-s.retention)
	keys, err := s.logs.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune export logs: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	log.Printf("retention: pruned export logs before %s, %d archived documents to remove", cutoff.Format(time.RFC3339), len(keys))
	if s.objects == nil {
		return nil
	}

	failed := 0
	for _, key := range keys {
		if err := s.objects.DeleteObject(ctx, key); err != nil {
			log.Printf("retention: failed to delete %s: %v", key, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to delete %d of %d archived documents", failed, len(keys))
	}
	return nil
}
