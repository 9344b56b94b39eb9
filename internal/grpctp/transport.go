package grpctp

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	eventbus "github.com/russellyou/nadel/internal/eventbus"
	events "github.com/russellyou/nadel/internal/events"
	reqid "github.com/russellyou/nadel/internal/reqid"
	"github.com/russellyou/nadel/internal/result"
	"github.com/russellyou/nadel/internal/service"
)

var (
	// ErrNoEndpoints indicates the provider returned no endpoints for a service.
	ErrNoEndpoints = errors.New("grpctp: no endpoints available")
	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("grpctp: closed")
)

// Metadata keys set on every outgoing call.
const (
	MetadataExecutionID = "nadel-execution-id"
	MetadataService     = "nadel-service"
	MetadataHydration   = "nadel-hydration"
)

// Transport calls services over gRPC with connection pooling and deadline
// propagation. It integrates with an EndpointProvider for service discovery.
type Transport struct {
	opts *Options

	mu     sync.RWMutex
	pools  map[string]*connPool // key: endpoint
	closed atomic.Bool
}

func New(opts ...Option) *Transport {
	o := defaultOptions()
	for _, f := range opts {
		f(o)
	}
	if len(o.DialOptions) == 0 {
		o.DialOptions = []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig}),
		}
	}
	return &Transport{
		opts:  o,
		pools: make(map[string]*connPool),
	}
}

// Execution returns the service.Execution that sends calls for the named
// service through t.
func (t *Transport) Execution(serviceName string) service.Execution {
	return &execution{t: t, service: serviceName}
}

type execution struct {
	t       *Transport
	service string
}

func (e *execution) Execute(ctx context.Context, params *service.Params) (*result.Response, error) {
	return e.t.Call(ctx, e.service, params)
}

// Call sends params to one endpoint of the named service.
func (t *Transport) Call(ctx context.Context, serviceName string, params *service.Params) (resp *result.Response, err error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	if t.opts.Provider == nil {
		return nil, fmt.Errorf("grpctp: provider not configured")
	}

	if _, ok := ctx.Deadline(); !ok && t.opts.RPCTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.RPCTimeout)
		defer cancel()
	}
	ctx = t.outgoingContext(ctx, serviceName, params)

	endpoints, err := t.opts.Provider.Endpoints(ctx, serviceName)
	if err != nil {
		return nil, fmt.Errorf("grpctp: %s: %w", serviceName, err)
	}
	endpoint := endpoints[rand.Intn(len(endpoints))]

	req, err := encodeParams(params)
	if err != nil {
		return nil, err
	}
	cc, err := t.getConn(endpoint)
	if err != nil {
		return nil, err
	}
	defer t.returnConn(endpoint, cc)

	callID, _ := reqid.CallIDFromContext(ctx)
	start := time.Now()
	eventbus.Publish(ctx, events.GRPCClientStart{CallID: callID, Service: serviceName, Method: MethodName, Target: endpoint})
	out := &structpb.Struct{}
	err = cc.Invoke(ctx, fullMethod, req, out)
	eventbus.Publish(ctx, events.GRPCClientFinish{
		CallID:   callID,
		Service:  serviceName,
		Method:   MethodName,
		Target:   endpoint,
		Code:     status.Code(err),
		Err:      err,
		Duration: time.Since(start),
	})
	if err != nil {
		t.opts.Logger.Debug("grpc call failed",
			zap.String("service", serviceName),
			zap.String("target", endpoint),
			zap.Stringer("code", status.Code(err)),
			zap.Error(err))
		return nil, err
	}
	resp, err := decodeResponse(out)
	if err != nil {
		return nil, fmt.Errorf("grpctp: %s: decode response: %w", serviceName, err)
	}
	return resp, nil
}

func (t *Transport) outgoingContext(ctx context.Context, serviceName string, params *service.Params) context.Context {
	md := metadata.MD{}
	if t.opts.ForwardMetadata {
		if in, ok := metadata.FromIncomingContext(ctx); ok {
			md = in.Copy()
		}
	}
	if out, ok := metadata.FromOutgoingContext(ctx); ok {
		md = metadata.Join(md, out)
	}
	md.Set(MetadataService, serviceName)
	if params.ExecutionID != "" {
		md.Set(MetadataExecutionID, params.ExecutionID)
	}
	if params.Hydration != nil {
		md.Set(MetadataHydration, params.Hydration.SourceField)
	}
	return metadata.NewOutgoingContext(ctx, md)
}

func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.pools {
		p.close()
	}
	t.pools = map[string]*connPool{}
	return nil
}

// ---------------- internals ----------------

type connPool struct {
	endpoint string
	opts     *Options
	conns    chan *grpc.ClientConn
	closed   atomic.Bool
}

func newConnPool(endpoint string, opts *Options) *connPool {
	n := opts.MaxConnsPerEndpoint
	if n <= 0 {
		n = 2
	}
	return &connPool{
		endpoint: endpoint,
		opts:     opts,
		conns:    make(chan *grpc.ClientConn, n),
	}
}

func (p *connPool) get() (*grpc.ClientConn, error) {
	if p.closed.Load() {
		return nil, fmt.Errorf("grpctp: pool closed")
	}
	select {
	case cc := <-p.conns:
		return cc, nil
	default:
		return grpc.NewClient(p.endpoint, p.opts.DialOptions...)
	}
}

func (p *connPool) put(cc *grpc.ClientConn) {
	if cc == nil || p.closed.Load() {
		if cc != nil {
			_ = cc.Close()
		}
		return
	}
	select {
	case p.conns <- cc:
	default:
		_ = cc.Close()
	}
}

func (p *connPool) close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.conns)
	for cc := range p.conns {
		_ = cc.Close()
	}
}

func (t *Transport) getConn(endpoint string) (*grpc.ClientConn, error) {
	t.mu.RLock()
	pool := t.pools[endpoint]
	t.mu.RUnlock()
	if pool == nil {
		t.mu.Lock()
		pool = t.pools[endpoint]
		if pool == nil {
			pool = newConnPool(endpoint, t.opts)
			t.pools[endpoint] = pool
		}
		t.mu.Unlock()
	}
	return pool.get()
}

func (t *Transport) returnConn(endpoint string, cc *grpc.ClientConn) {
	t.mu.RLock()
	pool := t.pools[endpoint]
	t.mu.RUnlock()
	if pool != nil {
		pool.put(cc)
		return
	}
	_ = cc.Close()
}
