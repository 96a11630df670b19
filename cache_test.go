package apidb

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()

	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	r, err := NewRegistry(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRegistryGet(t *testing.T) {
	dir := t.TempDir()
	xml := writeFixture(t, dir, "platform.txtar", XMLFileName)
	r := newTestRegistry(t)

	l, err := r.Get(context.Background(), xml)
	require.NoError(t, err)
	assert.True(t, l.Packed())
	assert.Equal(t, 9, l.MethodVersion("android/os/StrictMode", "enableDefaults", "()V"))

	cachePath := filepath.Join(dir, CacheFileName(XMLFileName, ""))
	assert.Equal(t, cachePath, r.CachePath(xml))
	info, err := os.Stat(cachePath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	again, err := r.Get(context.Background(), xml)
	require.NoError(t, err)
	assert.Same(t, l, again)

	stats := r.Stats()
	assert.Equal(t, int64(1), stats["hits"])
	assert.Equal(t, int64(1), stats["misses"])
	assert.Equal(t, int64(1), stats["entries"])
}

func TestRegistryCacheDirAndPlatform(t *testing.T) {
	dir := t.TempDir()
	cacheDir := filepath.Join(t.TempDir(), "caches")
	xml := writeFixture(t, dir, "platform.txtar", XMLFileName)
	r := newTestRegistry(t, WithCacheDir(cacheDir), WithPlatformVersion("35.0.2"))

	_, err := r.Get(context.Background(), xml)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(cacheDir, "api-versions-15-35.0.2.bin"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, CacheFileName(XMLFileName, "")))
	assert.True(t, os.IsNotExist(err))
}

func TestRegistryRegenerate(t *testing.T) {
	tests := []struct {
		name   string
		reason string
		opts   []Option
		setup  func(t *testing.T, xml, cache string)
	}{
		{
			name:   "Missing",
			reason: reasonMissing,
			setup:  func(t *testing.T, xml, cache string) {},
		},
		{
			name:   "Empty",
			reason: reasonEmpty,
			setup: func(t *testing.T, xml, cache string) {
				require.NoError(t, os.WriteFile(cache, nil, 0600))
			},
		},
		{
			name:   "Stale",
			reason: reasonStale,
			setup: func(t *testing.T, xml, cache string) {
				writeCache(t, cache)
				old := time.Now().Add(-time.Hour)
				require.NoError(t, os.Chtimes(cache, old, old))
			},
		},
		{
			name:   "Newer than descriptor",
			reason: reasonStale,
			setup: func(t *testing.T, xml, cache string) {
				writeCache(t, cache)
				future := time.Now().Add(time.Hour)
				require.NoError(t, os.Chtimes(cache, future, future))
			},
		},
		{
			name:   "Corrupt",
			reason: reasonCorrupt,
			setup: func(t *testing.T, xml, cache string) {
				require.NoError(t, os.WriteFile(cache, []byte("not a packed database"), 0600))
				stampCache(t, xml, cache)
			},
		},
		{
			name:   "Other format version",
			reason: reasonVersion,
			setup: func(t *testing.T, xml, cache string) {
				data := writeCache(t, cache)
				data[len(fileHeader)]++
				require.NoError(t, os.WriteFile(cache, data, 0600))
				stampCache(t, xml, cache)
			},
		},
		{
			name:   "Forced",
			reason: reasonForced,
			opts:   []Option{WithForceRegenerate(true)},
			setup: func(t *testing.T, xml, cache string) {
				writeCache(t, cache)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			xml := writeFixture(t, dir, "platform.txtar", XMLFileName)
			cache := filepath.Join(dir, CacheFileName(XMLFileName, ""))
			tt.setup(t, xml, cache)

			counter := cacheRegenerations.WithLabelValues(tt.reason)
			before := testutil.ToFloat64(counter)

			r := newTestRegistry(t, tt.opts...)
			l, err := r.Get(context.Background(), xml)
			require.NoError(t, err)
			assert.Equal(t, 21, l.MethodVersion("android/view/View", "setElevation", "(F)V"))
			assert.Equal(t, before+1, testutil.ToFloat64(counter))

			data, err := os.ReadFile(cache)
			require.NoError(t, err)
			assert.True(t, bytes.HasPrefix(data, []byte(fileHeader)))
			assert.Equal(t, byte(FormatVersion()), data[len(fileHeader)])
		})
	}
}

// stampCache gives cache the descriptor's modification time, which marks
// it as built from the current descriptor
func stampCache(t *testing.T, xml, cache string) {
	t.Helper()

	info, err := os.Stat(xml)
	require.NoError(t, err)
	require.NoError(t, os.Chtimes(cache, info.ModTime(), info.ModTime()))
}

// writeCache writes a valid packed cache for the platform fixture
func writeCache(t *testing.T, path string) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, WriteBinary(&buf, platformDB(t)))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0600))
	return buf.Bytes()
}

func TestRegistryUsesFreshCache(t *testing.T) {
	dir := t.TempDir()
	xml := writeFixture(t, dir, "platform.txtar", XMLFileName)
	r := newTestRegistry(t)

	_, err := r.Get(context.Background(), xml)
	require.NoError(t, err)
	r.Invalidate(xml)

	before := 0.0
	for _, reason := range []string{reasonForced, reasonMissing, reasonEmpty, reasonStale, reasonVersion, reasonCorrupt} {
		before += testutil.ToFloat64(cacheRegenerations.WithLabelValues(reason))
	}

	_, err = r.Get(context.Background(), xml)
	require.NoError(t, err)

	after := 0.0
	for _, reason := range []string{reasonForced, reasonMissing, reasonEmpty, reasonStale, reasonVersion, reasonCorrupt} {
		after += testutil.ToFloat64(cacheRegenerations.WithLabelValues(reason))
	}
	assert.Equal(t, before, after)
}

func TestRegistryUnwritableCacheDir(t *testing.T) {
	dir := t.TempDir()
	xml := writeFixture(t, dir, "platform.txtar", XMLFileName)

	// A regular file where the cache directory should be.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))

	r := newTestRegistry(t, WithCacheDir(filepath.Join(blocker, "cache")))
	l, err := r.Get(context.Background(), xml)
	require.NoError(t, err)
	assert.False(t, l.Packed())
	assert.Equal(t, 21, l.MethodVersion("android/view/View", "setElevation", "(F)V"))
}

func TestRegistryErrors(t *testing.T) {
	dir := t.TempDir()
	r := newTestRegistry(t)

	errCounter := registryRequests.WithLabelValues("error")
	before := testutil.ToFloat64(errCounter)

	_, err := r.Get(context.Background(), filepath.Join(dir, "missing.xml"))
	assert.ErrorIs(t, err, ErrNotFound)

	bad := filepath.Join(dir, "bad.xml")
	require.NoError(t, os.WriteFile(bad, archiveFile(t, "invalid.txtar", "duplicate.xml"), 0600))
	_, err = r.Get(context.Background(), bad)
	assert.ErrorIs(t, err, ErrDuplicateClass)

	assert.Equal(t, before+2, testutil.ToFloat64(errCounter))
	assert.Equal(t, int64(0), r.Stats()["entries"])
}

func TestRegistryConcurrentGet(t *testing.T) {
	dir := t.TempDir()
	xml := writeFixture(t, dir, "platform.txtar", XMLFileName)
	r := newTestRegistry(t)

	const workers = 16
	results := make([]*Lookup, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l, err := r.Get(context.Background(), xml)
			assert.NoError(t, err)
			results[i] = l
		}(i)
	}
	wg.Wait()

	for _, l := range results {
		assert.Same(t, results[0], l)
	}
	assert.Equal(t, int64(1), r.Stats()["entries"])
}

func TestRegistryInvalidate(t *testing.T) {
	dir := t.TempDir()
	xml := writeFixture(t, dir, "platform.txtar", XMLFileName)
	r := newTestRegistry(t)

	first, err := r.Get(context.Background(), xml)
	require.NoError(t, err)

	r.Invalidate(xml)
	assert.Equal(t, int64(0), r.Stats()["entries"])

	second, err := r.Get(context.Background(), xml)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

// pauseHandler blocks the first log record with the given message until
// release is closed
type pauseHandler struct {
	message string
	reached chan struct{}
	release chan struct{}
	once    sync.Once
}

func newPauseHandler(message string) *pauseHandler {
	return &pauseHandler{
		message: message,
		reached: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (h *pauseHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *pauseHandler) Handle(_ context.Context, rec slog.Record) error {
	if rec.Message == h.message {
		h.once.Do(func() {
			close(h.reached)
			<-h.release
		})
	}
	return nil
}

func (h *pauseHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *pauseHandler) WithGroup(string) slog.Handler      { return h }

func TestRegistryInvalidateDuringLoad(t *testing.T) {
	dir := t.TempDir()
	xml := filepath.Join(dir, XMLFileName)
	require.NoError(t, os.WriteFile(xml, []byte(`<api version="3"><class name="a/B" since="1"/></api>`), 0600))

	h := newPauseHandler("Parsed API descriptor")
	r := newTestRegistry(t, WithLogger(slog.New(h)))

	type result struct {
		l   *Lookup
		err error
	}
	done := make(chan result, 1)
	go func() {
		l, err := r.Get(context.Background(), xml)
		done <- result{l, err}
	}()

	select {
	case <-h.reached:
	case <-time.After(5 * time.Second):
		t.Fatal("load never reached the parse")
	}

	require.NoError(t, os.WriteFile(xml, []byte(`<api version="3"><class name="a/B" since="7"/></api>`), 0600))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(xml, future, future))
	r.Invalidate(xml)
	close(h.release)

	first := <-done
	require.NoError(t, first.err)
	assert.Equal(t, 7, first.l.ClassVersion("a/B"))

	again, err := r.Get(context.Background(), xml)
	require.NoError(t, err)
	assert.Equal(t, 7, again.ClassVersion("a/B"))

	fresh := newTestRegistry(t)
	l, err := fresh.Get(context.Background(), xml)
	require.NoError(t, err)
	assert.True(t, l.Packed())
	assert.Equal(t, 7, l.ClassVersion("a/B"))
}

func TestRegistryCacheStampedWithDescriptorTime(t *testing.T) {
	dir := t.TempDir()
	xml := writeFixture(t, dir, "platform.txtar", XMLFileName)
	past := time.Now().Add(-24 * time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(xml, past, past))

	r := newTestRegistry(t)
	_, err := r.Get(context.Background(), xml)
	require.NoError(t, err)

	info, err := os.Stat(r.CachePath(xml))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(past), "cache mtime %v, descriptor %v", info.ModTime(), past)
}

func TestRegistryNilContext(t *testing.T) {
	r := newTestRegistry(t)
	//nolint:staticcheck // nil context is the input under test
	_, err := r.Get(nil, "api-versions.xml")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRegistryClose(t *testing.T) {
	dir := t.TempDir()
	xml := writeFixture(t, dir, "platform.txtar", XMLFileName)
	r := newTestRegistry(t, WithWatch(true))

	_, err := r.Get(context.Background(), xml)
	require.NoError(t, err)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err = r.Get(context.Background(), xml)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, int64(0), r.Stats()["entries"])
}

func TestRegistryWatch(t *testing.T) {
	dir := t.TempDir()
	xml := writeFixture(t, dir, "platform.txtar", XMLFileName)
	r := newTestRegistry(t, WithWatch(true))

	first, err := r.Get(context.Background(), xml)
	require.NoError(t, err)
	assert.Equal(t, 1, first.ClassVersion("android/app/Activity"))

	updated := bytes.Replace(archiveFile(t, "platform.txtar", XMLFileName),
		[]byte(`<class name="android/app/Activity" since="1">`),
		[]byte(`<class name="android/app/Activity" since="2">`), 1)
	require.NoError(t, os.WriteFile(xml, updated, 0600))
	future := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(xml, future, future))

	require.Eventually(t, func() bool {
		return r.Stats()["entries"] == int64(0)
	}, 5*time.Second, 10*time.Millisecond)

	second, err := r.Get(context.Background(), xml)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, 2, second.ClassVersion("android/app/Activity"))
}

func TestRegistryStatsNil(t *testing.T) {
	var r *Registry
	stats := r.Stats()
	assert.Equal(t, int64(0), stats["hits"])
	assert.Equal(t, int64(0), stats["entries"])
}
