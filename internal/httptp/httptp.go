// Package httptp calls services that speak GraphQL over HTTP.
package httptp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/metadata"

	"github.com/russellyou/nadel/internal/result"
	"github.com/russellyou/nadel/internal/service"
)

// ErrNoEndpoint is returned for services without a configured URL.
var ErrNoEndpoint = errors.New("httptp: no endpoint configured")

// Headers set on every request.
const (
	HeaderExecutionID = "Nadel-Execution-Id"
	HeaderHydration   = "Nadel-Hydration"
)

// Options configures the HTTP transport.
//
// Defaults:
// - Client:           http.DefaultClient
// - Timeout:          3s (used only if incoming context has no deadline)
// - MaxResponseBytes: 10 MiB
type Options struct {
	Client           *http.Client
	Timeout          time.Duration
	MaxResponseBytes int64
	// Header is added to every request.
	Header http.Header
	// ForwardMetadata copies outgoing gRPC metadata of the call context,
	// where the server puts forwarded request headers, onto the request.
	ForwardMetadata bool
	Logger          *zap.Logger
}

type Option func(*Options)

func WithClient(c *http.Client) Option    { return func(o *Options) { o.Client = c } }
func WithTimeout(d time.Duration) Option  { return func(o *Options) { o.Timeout = d } }
func WithMaxResponseBytes(n int64) Option { return func(o *Options) { o.MaxResponseBytes = n } }
func WithHeader(key, value string) Option { return func(o *Options) { o.Header.Add(key, value) } }
func WithForwardMetadata() Option         { return func(o *Options) { o.ForwardMetadata = true } }
func WithLogger(l *zap.Logger) Option     { return func(o *Options) { o.Logger = l } }

// Transport posts operations to per-service URLs.
type Transport struct {
	opts Options

	mu        sync.RWMutex
	endpoints map[string]string
}

func New(endpoints map[string]string, opts ...Option) *Transport {
	o := Options{
		Client:           http.DefaultClient,
		Timeout:          3 * time.Second,
		MaxResponseBytes: 10 << 20,
		Header:           http.Header{},
		Logger:           zap.NewNop(),
	}
	for _, f := range opts {
		f(&o)
	}
	cp := make(map[string]string, len(endpoints))
	for k, v := range endpoints {
		cp[k] = v
	}
	return &Transport{opts: o, endpoints: cp}
}

// SetEndpoint replaces the URL of one service.
func (t *Transport) SetEndpoint(serviceName, url string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endpoints[serviceName] = url
}

// Execution returns the service.Execution that sends calls for the named
// service through t.
func (t *Transport) Execution(serviceName string) service.Execution {
	return service.ExecutionFunc(func(ctx context.Context, params *service.Params) (*result.Response, error) {
		return t.Call(ctx, serviceName, params)
	})
}

type requestBody struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// Call posts params to the URL of the named service.
func (t *Transport) Call(ctx context.Context, serviceName string, params *service.Params) (*result.Response, error) {
	t.mu.RLock()
	url := t.endpoints[serviceName]
	t.mu.RUnlock()
	if url == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoEndpoint, serviceName)
	}
	if _, ok := ctx.Deadline(); !ok && t.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(requestBody{
		Query:         params.QueryString(),
		OperationName: params.OperationName,
		Variables:     params.Variables,
	})
	if err != nil {
		return nil, fmt.Errorf("httptp: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	t.setHeaders(ctx, req, params)

	res, err := t.opts.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, t.opts.MaxResponseBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > t.opts.MaxResponseBytes {
		return nil, fmt.Errorf("httptp: %s: response larger than %d bytes", serviceName, t.opts.MaxResponseBytes)
	}

	out, err := result.ParseResponse(raw)
	if err != nil {
		if res.StatusCode/100 != 2 {
			return nil, fmt.Errorf("httptp: %s: status %d", serviceName, res.StatusCode)
		}
		return nil, fmt.Errorf("httptp: %s: decode response: %w", serviceName, err)
	}
	if res.StatusCode/100 != 2 && out.Data == nil && len(out.Errors) == 0 {
		return nil, fmt.Errorf("httptp: %s: status %d", serviceName, res.StatusCode)
	}
	t.opts.Logger.Debug("service responded",
		zap.String("service", serviceName),
		zap.Int("status", res.StatusCode),
		zap.Int("errors", len(out.Errors)))
	return out, nil
}

func (t *Transport) setHeaders(ctx context.Context, req *http.Request, params *service.Params) {
	if t.opts.ForwardMetadata {
		if md, ok := metadata.FromOutgoingContext(ctx); ok {
			for k, vs := range md {
				if strings.HasPrefix(k, ":") {
					continue
				}
				for _, v := range vs {
					req.Header.Add(k, v)
				}
			}
		}
	}
	for k, vs := range t.opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if params.ExecutionID != "" {
		req.Header.Set(HeaderExecutionID, params.ExecutionID)
	}
	if params.Hydration != nil {
		req.Header.Set(HeaderHydration, params.Hydration.SourceField)
	}
}
