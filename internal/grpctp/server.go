package grpctp

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	reqid "github.com/russellyou/nadel/internal/reqid"
	"github.com/russellyou/nadel/internal/service"
)

// executionServer is the handler type registered with grpc.
type executionServer interface {
	service.Execution
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*executionServer)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: MethodName,
		Handler:    executeHandler,
	}},
	Metadata: "nadel/graphql.proto",
}

// RegisterServer exposes exec on s so that a Transport can call it. It is
// the server half of the envelope the transport speaks, for services
// written in Go and for tests.
func RegisterServer(s grpc.ServiceRegistrar, exec service.Execution) {
	s.RegisterService(&serviceDesc, exec)
}

func executeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := &structpb.Struct{}
	if err := dec(in); err != nil {
		return nil, err
	}
	handle := func(ctx context.Context, req any) (any, error) {
		return serve(ctx, srv.(executionServer), req.(*structpb.Struct))
	}
	if interceptor == nil {
		return handle(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
	return interceptor(ctx, in, info, handle)
}

func serve(ctx context.Context, exec service.Execution, in *structpb.Struct) (*structpb.Struct, error) {
	params, err := decodeParams(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if params.ExecutionID == "" {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get(MetadataExecutionID); len(v) > 0 {
				params.ExecutionID = v[0]
			}
		}
	}
	if params.ExecutionID != "" {
		ctx = reqid.WithID(ctx, params.ExecutionID)
	}
	resp, err := exec.Execute(ctx, params)
	if err != nil {
		if _, ok := status.FromError(err); ok {
			return nil, err
		}
		return nil, status.Error(codes.Unknown, err.Error())
	}
	if resp == nil {
		return nil, status.Error(codes.Internal, "no response")
	}
	out, err := encodeResponse(resp)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}
