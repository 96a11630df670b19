package apidb

import "log/slog"

// Options configures how descriptors are loaded and cached
type Options struct {
	// CacheDir is where packed binary caches are written.
	// If empty, the descriptor's own directory is used.
	CacheDir string

	// PlatformVersion is folded into cache file names so that caches
	// built from different platform tool versions never collide
	PlatformVersion string

	// ForceRegenerate rebuilds the binary cache on every load
	ForceRegenerate bool

	// Watch invalidates loaded databases when their descriptor changes
	Watch bool

	// Logger receives load and cache events. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the default options
func DefaultOptions() *Options {
	return &Options{
		Logger: slog.Default(),
	}
}

// Option is a function that configures Options
type Option func(*Options)

// WithCacheDir sets the binary cache directory
func WithCacheDir(dir string) Option {
	return func(o *Options) {
		o.CacheDir = dir
	}
}

// WithPlatformVersion sets the platform version used in cache file names
func WithPlatformVersion(version string) Option {
	return func(o *Options) {
		o.PlatformVersion = version
	}
}

// WithForceRegenerate rebuilds binary caches unconditionally
func WithForceRegenerate(force bool) Option {
	return func(o *Options) {
		o.ForceRegenerate = force
	}
}

// WithWatch enables or disables descriptor change watching
func WithWatch(enable bool) Option {
	return func(o *Options) {
		o.Watch = enable
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

func applyOptions(opts []Option) *Options {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	return options
}
