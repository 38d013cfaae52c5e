package reindex

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/projectbrain/backend/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIndexer struct {
	mu   sync.Mutex
	runs int
	err  error
}

func (f *fakeIndexer) RunIndexer(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	return f.err
}

func (f *fakeIndexer) Runs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

// countingStore wraps a MemoryStore and counts downloads per blob name.
type countingStore struct {
	*storage.MemoryStore
	mu        sync.Mutex
	downloads map[string]int
}

func newCountingStore() *countingStore {
	return &countingStore{
		MemoryStore: storage.NewMemoryStore(),
		downloads:   make(map[string]int),
	}
}

func (s *countingStore) Download(ctx context.Context, name string) ([]byte, error) {
	s.mu.Lock()
	s.downloads[name]++
	s.mu.Unlock()
	return s.MemoryStore.Download(ctx, name)
}

func newTestRunner(store storage.BlobStore, indexer *fakeIndexer, now time.Time) *Runner {
	r := NewRunner(store, indexer, "resources-indexer", 181*time.Second, 10*time.Minute, slog.Default())
	r.now = func() time.Time { return now }
	return r
}

func setWatermark(t *testing.T, store storage.BlobStore, name, value string) {
	t.Helper()
	require.NoError(t, store.Upload(context.Background(), name, []byte(value), "text/plain"))
}

func TestRunner_TriggersIndexerAndAdvancesWatermark(t *testing.T) {
	store := newCountingStore()
	indexer := &fakeIndexer{}
	now := time.Date(2024, 1, 1, 0, 15, 0, 0, time.UTC)
	runner := newTestRunner(store, indexer, now)

	setWatermark(t, store, FileChangeWatermarkBlob, "2024-01-01T00:10:00Z")
	setWatermark(t, store, ReindexWatermarkBlob, "2024-01-01T00:00:00Z")

	require.NoError(t, runner.Run(context.Background()))

	assert.Equal(t, 1, indexer.Runs())

	data, err := store.Download(context.Background(), ReindexWatermarkBlob)
	require.NoError(t, err)
	got, err := parseTimestamp(string(data))
	require.NoError(t, err)
	assert.True(t, got.Equal(now), "watermark should equal invocation time, got %s", got)

	assert.False(t, store.Exists(LockBlob), "lock must be released after a run")
}

func TestRunner_SkipsWithinDebounceWindow(t *testing.T) {
	store := newCountingStore()
	indexer := &fakeIndexer{}
	now := time.Date(2024, 1, 1, 0, 1, 30, 0, time.UTC)
	runner := newTestRunner(store, indexer, now)

	setWatermark(t, store, FileChangeWatermarkBlob, "2024-01-01T00:10:00Z")
	setWatermark(t, store, ReindexWatermarkBlob, "2024-01-01T00:00:00Z")

	require.NoError(t, runner.Run(context.Background()))

	assert.Equal(t, 0, indexer.Runs())

	data, err := store.Download(context.Background(), ReindexWatermarkBlob)
	require.NoError(t, err)
	got, err := parseTimestamp(string(data))
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)), "watermark must be unchanged")
	assert.False(t, store.Exists(LockBlob))
}

func TestRunner_SkipsWhenNoNewContent(t *testing.T) {
	store := newCountingStore()
	indexer := &fakeIndexer{}
	now := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)
	runner := newTestRunner(store, indexer, now)

	setWatermark(t, store, FileChangeWatermarkBlob, "2024-01-01T00:10:00Z")
	setWatermark(t, store, ReindexWatermarkBlob, "2024-01-01T00:30:00Z")

	require.NoError(t, runner.Run(context.Background()))
	assert.Equal(t, 0, indexer.Runs())
}

func TestRunner_NoFileChangeWatermark(t *testing.T) {
	store := newCountingStore()
	indexer := &fakeIndexer{}
	runner := newTestRunner(store, indexer, time.Now())

	require.NoError(t, runner.Run(context.Background()))

	assert.Equal(t, 0, indexer.Runs())
	assert.False(t, store.Exists(LockBlob))
}

func TestRunner_LockHeldSkipsWatermarkReads(t *testing.T) {
	store := newCountingStore()
	indexer := &fakeIndexer{}
	now := time.Date(2024, 1, 1, 0, 15, 0, 0, time.UTC)
	runner := newTestRunner(store, indexer, now)

	// A live holder acquired the lock one minute ago.
	held := now.Add(-time.Minute)
	require.NoError(t, store.CreateIfAbsent(context.Background(), LockBlob, []byte(formatTimestamp(held))))
	setWatermark(t, store, FileChangeWatermarkBlob, "2024-01-01T00:10:00Z")

	require.NoError(t, runner.Run(context.Background()))

	assert.Equal(t, 0, indexer.Runs())
	assert.Zero(t, store.downloads[FileChangeWatermarkBlob], "watermarks must not be read while lock is held")
	assert.Zero(t, store.downloads[ReindexWatermarkBlob])
	assert.True(t, store.Exists(LockBlob), "foreign lock must not be released")
}

func TestRunner_ReclaimsAbandonedLock(t *testing.T) {
	store := newCountingStore()
	indexer := &fakeIndexer{}
	now := time.Date(2024, 1, 1, 0, 15, 0, 0, time.UTC)
	runner := newTestRunner(store, indexer, now)

	// Lock left behind by a crashed instance, older than the max hold.
	held := now.Add(-time.Hour)
	require.NoError(t, store.CreateIfAbsent(context.Background(), LockBlob, []byte(formatTimestamp(held))))
	setWatermark(t, store, FileChangeWatermarkBlob, "2024-01-01T00:10:00Z")
	setWatermark(t, store, ReindexWatermarkBlob, "2024-01-01T00:00:00Z")

	require.NoError(t, runner.Run(context.Background()))

	assert.Equal(t, 1, indexer.Runs())
	assert.False(t, store.Exists(LockBlob))
}

func TestRunner_IndexerFailureReleasesLockAndKeepsWatermark(t *testing.T) {
	store := newCountingStore()
	indexer := &fakeIndexer{err: errors.New("indexer unavailable")}
	now := time.Date(2024, 1, 1, 0, 15, 0, 0, time.UTC)
	runner := newTestRunner(store, indexer, now)

	setWatermark(t, store, FileChangeWatermarkBlob, "2024-01-01T00:10:00Z")
	setWatermark(t, store, ReindexWatermarkBlob, "2024-01-01T00:00:00Z")

	err := runner.Run(context.Background())
	require.Error(t, err)

	data, derr := store.Download(context.Background(), ReindexWatermarkBlob)
	require.NoError(t, derr)
	got, perr := parseTimestamp(string(data))
	require.NoError(t, perr)
	assert.True(t, got.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)), "watermark must not advance on failure")
	assert.False(t, store.Exists(LockBlob), "lock must be released on failure")
}

func TestRunner_Idempotent(t *testing.T) {
	store := newCountingStore()
	indexer := &fakeIndexer{}
	now := time.Date(2024, 1, 1, 0, 15, 0, 0, time.UTC)
	runner := newTestRunner(store, indexer, now)

	setWatermark(t, store, FileChangeWatermarkBlob, "2024-01-01T00:10:00Z")
	setWatermark(t, store, ReindexWatermarkBlob, "2024-01-01T00:00:00Z")

	require.NoError(t, runner.Run(context.Background()))
	// Second cycle at the same instant sees file change <= last reindex.
	require.NoError(t, runner.Run(context.Background()))

	assert.Equal(t, 1, indexer.Runs())
}

func TestParseTimestamp_RoundTripFormats(t *testing.T) {
	cases := []string{
		"2024-01-01T00:10:00Z",
		"2024-01-01T00:10:00.0000000Z",
		"2024-01-01T00:10:00.123456789Z",
		" 2024-01-01T00:10:00Z\n",
	}
	for _, c := range cases {
		got, err := parseTimestamp(c)
		require.NoError(t, err, "input %q", c)
		assert.Equal(t, 2024, got.Year())
	}

	_, err := parseTimestamp("not-a-time")
	assert.Error(t, err)
}
