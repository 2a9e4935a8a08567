package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryInterval = 10 * time.Millisecond

// lockWrites takes the in-process mutex and the cross-process file lock
// guarding revision checks. The returned func releases both.
func (r *Repository) lockWrites(ctx context.Context) (func(), error) {
	r.writeMu.Lock()

	dir := filepath.Join(r.Path, r.config.SystemDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		r.writeMu.Unlock()
		return nil, fmt.Errorf("failed to create system directory: %w", err)
	}

	fl := flock.New(filepath.Join(dir, "write.lock"))
	locked, err := fl.TryLockContext(ctx, lockRetryInterval)
	if err != nil {
		r.writeMu.Unlock()
		return nil, fmt.Errorf("failed to acquire write lock: %w", err)
	}
	if !locked {
		r.writeMu.Unlock()
		return nil, fmt.Errorf("failed to acquire write lock")
	}

	return func() {
		_ = fl.Unlock()
		r.writeMu.Unlock()
	}, nil
}
