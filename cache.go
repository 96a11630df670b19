package apidb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

// Cache regeneration reasons, used as metric labels and in logs
const (
	reasonForced  = "forced"
	reasonMissing = "missing"
	reasonEmpty   = "empty"
	reasonStale   = "stale"
	reasonVersion = "version"
	reasonCorrupt = "corrupt"
)

// Registry shares one Lookup per descriptor file. Lookups are backed by a
// packed binary cache that is rebuilt from the descriptor whenever it is
// missing or out of date.
type Registry struct {
	opts *Options

	mu      sync.RWMutex
	entries map[string]*Lookup
	// generations is bumped by Invalidate; a load that started under an
	// older generation is not stored
	generations map[string]uint64
	hits        int64
	misses      int64
	closed      bool

	flight  singleflight.Group
	watcher *descriptorWatcher
}

// NewRegistry creates a registry with the given options
func NewRegistry(opts ...Option) (*Registry, error) {
	r := &Registry{
		opts:        applyOptions(opts),
		entries:     make(map[string]*Lookup),
		generations: make(map[string]uint64),
	}
	if r.opts.Watch {
		w, err := newDescriptorWatcher(r.opts.Logger, r.Invalidate)
		if err != nil {
			return nil, err
		}
		r.watcher = w
	}
	return r, nil
}

// CachePath returns where the packed cache for a descriptor is stored
func (r *Registry) CachePath(descriptorPath string) string {
	dir := r.opts.CacheDir
	if dir == "" {
		dir = filepath.Dir(descriptorPath)
	}
	return filepath.Join(dir, CacheFileName(filepath.Base(descriptorPath), r.opts.PlatformVersion))
}

// Get returns the shared Lookup for the descriptor at path, loading it on
// first use. Concurrent first calls for one descriptor share a single load.
func (r *Registry) Get(ctx context.Context, descriptorPath string) (*Lookup, error) {
	if ctx == nil {
		return nil, &ParseError{Op: "open", Path: descriptorPath, Wrapped: fmt.Errorf("nil context: %w", ErrInvalidInput)}
	}
	ctx, span := tracer.Start(ctx, "apidb.Registry.Get")
	defer span.End()

	key, err := filepath.Abs(descriptorPath)
	if err != nil {
		return nil, &ParseError{Op: "open", Path: descriptorPath, Wrapped: err}
	}
	span.SetAttributes(attribute.String("descriptor", key))

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	if l, ok := r.entries[key]; ok {
		r.hits++
		r.mu.Unlock()
		registryRequests.WithLabelValues("hit").Inc()
		r.opts.Logger.Debug("Registry hit", slog.String("descriptor", key))
		return l, nil
	}
	r.misses++
	r.mu.Unlock()
	registryRequests.WithLabelValues("miss").Inc()
	r.opts.Logger.Debug("Registry miss", slog.String("descriptor", key))

	v, err, _ := r.flight.Do(key, func() (interface{}, error) {
		for {
			r.mu.RLock()
			l, ok := r.entries[key]
			gen := r.generations[key]
			r.mu.RUnlock()
			if ok {
				return l, nil
			}

			l, err := r.load(ctx, key)
			if err != nil {
				return nil, err
			}

			r.mu.Lock()
			if r.closed {
				r.mu.Unlock()
				return nil, ErrClosed
			}
			if r.generations[key] == gen {
				r.entries[key] = l
				r.mu.Unlock()
				return l, nil
			}
			r.mu.Unlock()

			r.opts.Logger.Debug("Descriptor invalidated during load, reloading", slog.String("descriptor", key))
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	})
	if err != nil {
		registryRequests.WithLabelValues("error").Inc()
		span.RecordError(err)
		return nil, err
	}

	if r.watcher != nil {
		if err := r.watcher.add(key); err != nil {
			r.opts.Logger.Warn("Cannot watch descriptor",
				slog.String("descriptor", key),
				slog.String("error", err.Error()))
		}
	}
	return v.(*Lookup), nil
}

// load opens the packed cache for descriptor, regenerating it first when
// needed. A cache that fails to open is regenerated once.
func (r *Registry) load(ctx context.Context, descriptor string) (*Lookup, error) {
	cachePath := r.CachePath(descriptor)
	reason, err := r.regenerateReason(descriptor, cachePath)
	if err != nil {
		return nil, err
	}

	if reason == "" {
		l, err := OpenLookup(ctx, cachePath)
		switch {
		case err == nil:
			return l, nil
		case errors.Is(err, ErrFormatVersion):
			reason = reasonVersion
		case errors.Is(err, ErrCorruptCache):
			reason = reasonCorrupt
		default:
			return nil, err
		}
	}

	db, err := r.regenerate(ctx, descriptor, cachePath, reason)
	if err != nil {
		return nil, err
	}
	if db != nil {
		return NewLookup(db), nil
	}
	return OpenLookup(ctx, cachePath)
}

// regenerateReason returns why the cache must be rebuilt, or "" if the
// existing cache file can be used. A usable cache carries the exact
// modification time of the descriptor it was built from.
func (r *Registry) regenerateReason(descriptor, cachePath string) (string, error) {
	xmlInfo, err := statDescriptor(descriptor)
	if err != nil {
		return "", err
	}
	if r.opts.ForceRegenerate {
		return reasonForced, nil
	}

	info, err := os.Stat(cachePath)
	switch {
	case err != nil:
		return reasonMissing, nil
	case info.Size() == 0:
		return reasonEmpty, nil
	case !info.ModTime().Equal(xmlInfo.ModTime()):
		return reasonStale, nil
	}
	return "", nil
}

// regenerate parses descriptor and writes its packed cache. When the cache
// cannot be written the parsed database is returned so lookups still work.
func (r *Registry) regenerate(ctx context.Context, descriptor, cachePath, reason string) (*Database, error) {
	logger := r.opts.Logger.With(
		slog.String("descriptor", descriptor),
		slog.String("cache", cachePath),
		slog.String("reason", reason))
	logger.Info("Regenerating API database cache")
	cacheRegenerations.WithLabelValues(reason).Inc()

	// Stat before parsing: if the descriptor changes mid-parse, the cache
	// is stamped with the older time and the next load rebuilds it.
	xmlInfo, err := statDescriptor(descriptor)
	if err != nil {
		return nil, err
	}
	db, err := ParseFile(ctx, descriptor, WithLogger(r.opts.Logger))
	if err != nil {
		return nil, err
	}
	if err := WriteBinaryFile(ctx, cachePath, db); err != nil {
		logger.Warn("Cannot write API database cache, using parsed descriptor",
			slog.String("error", err.Error()))
		return db, nil
	}
	if err := os.Chtimes(cachePath, xmlInfo.ModTime(), xmlInfo.ModTime()); err != nil {
		logger.Warn("Cannot stamp API database cache, it will be rebuilt on next load",
			slog.String("error", err.Error()))
	}
	logger.Debug("Wrote API database cache")
	return nil, nil
}

// Invalidate drops the loaded Lookup for a descriptor. The next Get
// reloads it, rebuilding the cache if the descriptor changed. A load
// already in progress is not stored and is repeated.
func (r *Registry) Invalidate(descriptorPath string) {
	key, err := filepath.Abs(descriptorPath)
	if err != nil {
		return
	}
	r.mu.Lock()
	_, ok := r.entries[key]
	delete(r.entries, key)
	r.generations[key]++
	r.mu.Unlock()
	r.flight.Forget(key)

	if ok {
		r.opts.Logger.Debug("Invalidated descriptor", slog.String("descriptor", key))
	}
}

// Close stops watching descriptors and drops all loaded lookups
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.entries = make(map[string]*Lookup)
	r.mu.Unlock()

	if r.watcher != nil {
		return r.watcher.close()
	}
	return nil
}

// Stats returns registry statistics
func (r *Registry) Stats() map[string]interface{} {
	if r == nil {
		return map[string]interface{}{
			"hits":    int64(0),
			"misses":  int64(0),
			"entries": int64(0),
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]interface{}{
		"hits":    r.hits,
		"misses":  r.misses,
		"entries": int64(len(r.entries)),
	}
}
