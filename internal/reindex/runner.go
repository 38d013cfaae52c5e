// Package reindex drives the search indexing pipeline: a minute-cadence
// task that decides, from two watermark blobs, whether new resource
// content needs an indexer run, guarded by a blob-existence lock so only
// one instance runs at a time.
package reindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/projectbrain/backend/internal/search"
	"github.com/projectbrain/backend/internal/storage"
)

// Blob names inside the storage container.
const (
	LockBlob                = "reindex.lock"
	ReindexWatermarkBlob    = "last_reindex_timestamp.txt"
	FileChangeWatermarkBlob = "last_filechange_timestamp.txt"
)

// Runner executes one reindex decision cycle per Run call.
type Runner struct {
	store       storage.BlobStore
	indexer     search.IndexerClient
	indexerName string
	debounce    time.Duration
	lockMaxHold time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

func NewRunner(store storage.BlobStore, indexer search.IndexerClient, indexerName string, debounce, lockMaxHold time.Duration, logger *slog.Logger) *Runner {
	return &Runner{
		store:       store,
		indexer:     indexer,
		indexerName: indexerName,
		debounce:    debounce,
		lockMaxHold: lockMaxHold,
		logger:      logger,
		now:         time.Now,
	}
}

// Run acquires the lock, consults the watermarks and triggers the indexer
// when there is unindexed content. Holding instances elsewhere, missing
// file-change watermark, stale content or a recent run all end the cycle
// without error. The lock is released on every path, including indexer
// failure.
func (r *Runner) Run(ctx context.Context) error {
	if r.indexer == nil {
		r.logger.Debug("no search indexer configured, skipping reindex cycle")
		return nil
	}

	acquired, err := r.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		r.logger.Debug("reindex lock held by another instance, skipping")
		return nil
	}
	defer r.releaseLock(ctx)

	fileChange, err := r.readWatermark(ctx, FileChangeWatermarkBlob)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			r.logger.Debug("no file-change watermark, nothing to index")
			return nil
		}
		return err
	}

	lastReindex, err := r.readWatermark(ctx, ReindexWatermarkBlob)
	if err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
		return err
	}

	now := r.now()
	if !fileChange.After(lastReindex) {
		r.logger.Debug("no content changes since last reindex",
			"file_change", fileChange, "last_reindex", lastReindex)
		return nil
	}
	if now.Sub(lastReindex) < r.debounce {
		r.logger.Debug("last reindex within debounce window",
			"last_reindex", lastReindex, "debounce", r.debounce)
		return nil
	}

	r.logger.Info("triggering search indexer run",
		"indexer", r.indexerName,
		"file_change", fileChange,
		"last_reindex", lastReindex,
	)

	if err := r.indexer.RunIndexer(ctx, r.indexerName); err != nil {
		r.logger.Error("indexer run failed", "indexer", r.indexerName, "error", err)
		return err
	}

	if err := r.writeWatermark(ctx, ReindexWatermarkBlob, now); err != nil {
		return fmt.Errorf("persisting reindex watermark: %w", err)
	}

	r.logger.Info("reindex completed", "indexer", r.indexerName, "reindexed_at", now)
	return nil
}

// acquireLock creates the lock blob with a non-overwrite write. A held
// lock whose recorded acquisition time exceeds the max hold duration is
// treated as abandoned by a crashed instance and reclaimed once.
func (r *Runner) acquireLock(ctx context.Context) (bool, error) {
	body := []byte(formatTimestamp(r.now()))

	err := r.store.CreateIfAbsent(ctx, LockBlob, body)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, storage.ErrBlobExists) {
		return false, fmt.Errorf("acquiring reindex lock: %w", err)
	}

	heldSince, readErr := r.readWatermark(ctx, LockBlob)
	if readErr == nil && r.now().Sub(heldSince) <= r.lockMaxHold {
		return false, nil
	}
	if readErr != nil && !errors.Is(readErr, storage.ErrBlobNotFound) {
		// Unreadable lock content counts as abandoned; a live holder
		// always writes a parseable timestamp.
		r.logger.Warn("reindex lock unreadable, reclaiming", "error", readErr)
	} else if readErr == nil {
		r.logger.Warn("reclaiming abandoned reindex lock",
			"held_since", heldSince, "max_hold", r.lockMaxHold)
	}

	if err := r.store.Delete(ctx, LockBlob); err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
		return false, fmt.Errorf("reclaiming reindex lock: %w", err)
	}

	if err := r.store.CreateIfAbsent(ctx, LockBlob, body); err != nil {
		if errors.Is(err, storage.ErrBlobExists) {
			// Another instance won the reclaim race.
			return false, nil
		}
		return false, fmt.Errorf("acquiring reindex lock: %w", err)
	}
	return true, nil
}

// releaseLock always runs, even when the surrounding context is already
// cancelled. Delete failures are logged and swallowed: the stale lock
// will be reclaimed by a later cycle once it exceeds the max hold.
func (r *Runner) releaseLock(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := r.store.Delete(cleanupCtx, LockBlob); err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
		r.logger.Error("failed to release reindex lock", "error", err)
	}
}

func (r *Runner) readWatermark(ctx context.Context, name string) (time.Time, error) {
	data, err := r.store.Download(ctx, name)
	if err != nil {
		return time.Time{}, err
	}
	return parseTimestamp(string(data))
}

func (r *Runner) writeWatermark(ctx context.Context, name string, t time.Time) error {
	return r.store.Upload(ctx, name, []byte(formatTimestamp(t)), "text/plain")
}

// MarkFileChange bumps the file-change watermark. Called by the resource
// service after every successful upload or delete.
func MarkFileChange(ctx context.Context, store storage.BlobStore, t time.Time) error {
	return store.Upload(ctx, FileChangeWatermarkBlob, []byte(formatTimestamp(t)), "text/plain")
}

// Watermarks are ISO-8601 round-trip strings; RFC3339Nano both emits and
// parses that shape.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing watermark %q: %w", s, err)
	}
	return t, nil
}
