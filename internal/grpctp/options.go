package grpctp

import (
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Options configures the gRPC transport behavior.
//
// Defaults:
// - MaxConnsPerEndpoint: 2
// - RPCTimeout:          3s (used only if incoming context has no deadline)
// - DialOptions:         insecure credentials
// - Logger:              no-op
//
// Provider must be set (use StaticEndpoints or a custom implementation);
// calls fail without one.
type Options struct {
	Provider EndpointProvider

	MaxConnsPerEndpoint int
	RPCTimeout          time.Duration

	// ForwardMetadata copies the incoming gRPC metadata of the call context
	// onto the outgoing call.
	ForwardMetadata bool

	DialOptions []grpc.DialOption
	Logger      *zap.Logger
}

// Option mutates Options
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		MaxConnsPerEndpoint: 2,
		RPCTimeout:          3 * time.Second,
		Logger:              zap.NewNop(),
	}
}

func WithProvider(p EndpointProvider) Option { return func(o *Options) { o.Provider = p } }
func WithMaxConnsPerEndpoint(n int) Option   { return func(o *Options) { o.MaxConnsPerEndpoint = n } }
func WithRPCTimeout(d time.Duration) Option  { return func(o *Options) { o.RPCTimeout = d } }
func WithForwardMetadata() Option            { return func(o *Options) { o.ForwardMetadata = true } }
func WithLogger(l *zap.Logger) Option        { return func(o *Options) { o.Logger = l } }
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *Options) { o.DialOptions = opts }
}
