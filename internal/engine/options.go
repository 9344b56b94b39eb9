package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/russellyou/nadel/internal/transform"
)

// Options configure an Engine.
type Options struct {
	Logger *zap.Logger

	// Hooks customize hydration. Optional.
	Hooks transform.Hooks

	// Transforms replaces the default rewrite rules when set.
	Transforms []transform.Transform

	// GracePeriod bounds how long Close waits for requests in flight before
	// cancelling them.
	GracePeriod time.Duration

	// DocumentCacheSize is the number of validated query documents kept. 0
	// disables the cache.
	DocumentCacheSize int
}

type Option func(*Options)

func WithLogger(l *zap.Logger) Option                 { return func(o *Options) { o.Logger = l } }
func WithHooks(h transform.Hooks) Option              { return func(o *Options) { o.Hooks = h } }
func WithGracePeriod(d time.Duration) Option          { return func(o *Options) { o.GracePeriod = d } }
func WithDocumentCacheSize(n int) Option              { return func(o *Options) { o.DocumentCacheSize = n } }
func WithTransforms(ts ...transform.Transform) Option { return func(o *Options) { o.Transforms = ts } }

func defaultOptions() Options {
	return Options{
		Logger:            zap.NewNop(),
		GracePeriod:       60 * time.Second,
		DocumentCacheSize: 1024,
	}
}
