// Package engine executes gateway requests: it splits an operation by
// owning service, runs one transform pipeline per top-level field and
// merges the results into one overall response.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/russellyou/nadel/internal/blueprint"
	"github.com/russellyou/nadel/internal/eventbus"
	"github.com/russellyou/nadel/internal/events"
	"github.com/russellyou/nadel/internal/introspection"
	language "github.com/russellyou/nadel/internal/language"
	"github.com/russellyou/nadel/internal/normalized"
	"github.com/russellyou/nadel/internal/reqid"
	"github.com/russellyou/nadel/internal/result"
	"github.com/russellyou/nadel/internal/service"
	"github.com/russellyou/nadel/internal/transform"
)

// ErrClosed is returned by Execute once Close has been called.
var ErrClosed = errors.New("engine: closed")

// Engine executes operations against the overall schema of a blueprint.
// It is safe for concurrent use.
type Engine struct {
	bp            *blueprint.Blueprint
	services      map[string]*service.Service
	opts          Options
	logger        *zap.Logger
	docs          *documentCache
	queries       *transform.QueryTransformer
	introspection *introspection.Resolver

	// ctx is cancelled when the grace period of Close ran out; every
	// request context is tied to it.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// New returns an Engine calling services. Every service of the blueprint
// needs an execution.
func New(bp *blueprint.Blueprint, services []*service.Service, opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, f := range opts {
		f(&o)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	byName := make(map[string]*service.Service, len(services))
	for _, s := range services {
		if s.Execution == nil {
			return nil, fmt.Errorf("engine: service %q has no execution", s.Name)
		}
		byName[s.Name] = s
	}
	for _, name := range bp.Services() {
		if byName[name] == nil {
			return nil, fmt.Errorf("engine: no execution for service %q", name)
		}
	}

	docs, err := newDocumentCache(bp.Overall(), o.DocumentCacheSize)
	if err != nil {
		return nil, fmt.Errorf("engine: document cache: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		bp:            bp,
		services:      byName,
		opts:          o,
		logger:        o.Logger,
		docs:          docs,
		queries:       transform.NewQueryTransformer(o.Transforms...),
		introspection: introspection.New(bp.Overall()),
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// Blueprint returns the blueprint the engine executes with.
func (e *Engine) Blueprint() *blueprint.Blueprint { return e.bp }

// Request is one operation sent to the gateway.
type Request struct {
	Query         string
	OperationName string
	Variables     map[string]any
	// ExecutionID identifies the request in service calls and errors. A
	// new one is generated when empty and the context carries none.
	ExecutionID string
	// ServiceContext is handed to every service call.
	ServiceContext any
}

// Execute runs req. Parse and validation failures are reported in the
// response. The returned error is ErrClosed, or a failure that aborts the
// whole request such as transform.ErrAmbiguousHydration.
func (e *Engine) Execute(ctx context.Context, req *Request) (*result.Response, error) {
	if !e.begin() {
		return nil, ErrClosed
	}
	defer e.inflight.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(e.ctx, cancel)
	defer stop()

	executionID := req.ExecutionID
	if executionID == "" {
		if id, ok := reqid.FromContext(ctx); ok {
			executionID = id
		} else {
			ctx, executionID = reqid.NewContext(ctx)
		}
	}
	ctx = reqid.WithID(ctx, executionID)

	start := time.Now()
	opType := ""
	eventbus.Publish(ctx, events.GraphQLStart{ExecutionID: executionID, Query: req.Query, OperationName: req.OperationName})
	resp, err := e.execute(ctx, req, executionID, &opType)

	var errs []error
	if err != nil {
		errs = append(errs, err)
	} else {
		for _, ge := range resp.Errors {
			errs = append(errs, ge)
		}
	}
	eventbus.Publish(ctx, events.GraphQLFinish{
		ExecutionID:   executionID,
		Query:         req.Query,
		OperationName: req.OperationName,
		OperationType: opType,
		Errors:        errs,
		Duration:      time.Since(start),
	})
	return resp, err
}

func (e *Engine) execute(ctx context.Context, req *Request, executionID string, opType *string) (*result.Response, error) {
	doc, errs := e.docs.load(req.Query)
	if len(errs) > 0 {
		return requestErrors(errs), nil
	}
	op := doc.Operations.ForName(req.OperationName)
	if op == nil {
		if req.OperationName == "" {
			return result.ErrorResponse(result.NewError("operation name is required when the document has several operations", nil, nil)), nil
		}
		return result.ErrorResponse(result.NewError(fmt.Sprintf("unknown operation %q", req.OperationName), nil, nil)), nil
	}
	*opType = string(op.Operation)

	vars, err := language.CoerceVariables(e.bp.Overall(), op, req.Variables)
	if err != nil {
		var ge *language.Error
		if errors.As(err, &ge) {
			return requestErrors(language.ErrorList{ge}), nil
		}
		return result.ErrorResponse(result.NewError(err.Error(), nil, nil)), nil
	}
	norm, err := normalized.Normalize(e.bp.Overall(), doc, req.OperationName, vars)
	if err != nil {
		return result.ErrorResponse(result.NewError(err.Error(), nil, nil)), nil
	}

	ex := &execution{
		engine:         e,
		op:             norm,
		executionID:    executionID,
		serviceContext: req.ServiceContext,
	}
	return ex.run(ctx)
}

// Close stops accepting requests and waits for the ones in flight, at
// most for the grace period or until ctx is done. Requests still running
// afterwards are cancelled.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()
	defer e.cancel()

	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	timer := time.NewTimer(e.opts.GracePeriod)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		e.logger.Warn("grace period expired, cancelling requests in flight", zap.Duration("gracePeriod", e.opts.GracePeriod))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) begin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.inflight.Add(1)
	return true
}

// requestErrors converts parser and validator errors into a response.
func requestErrors(errs language.ErrorList) *result.Response {
	out := make([]*result.Error, len(errs))
	for i, ge := range errs {
		re := &result.Error{Message: ge.Message, Extensions: ge.Extensions}
		for _, loc := range ge.Locations {
			re.Locations = append(re.Locations, result.Location{Line: loc.Line, Column: loc.Column})
		}
		out[i] = re
	}
	return result.ErrorResponse(out...)
}
