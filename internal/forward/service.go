package forward

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName         = "tracker.Forwarder"
	sendTelemetryMethod = "/tracker.Forwarder/SendTelemetry"
)

// ForwarderServer es el lado servidor de tracker.Forwarder. La respuesta
// lleva "success" (bool) y opcionalmente "message".
type ForwarderServer interface {
	SendTelemetry(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func RegisterServer(s grpc.ServiceRegistrar, srv ForwarderServer) {
	s.RegisterService(&serviceDesc, srv)
}

// Reply arma la respuesta estándar del forwarder.
func Reply(success bool, message string) *structpb.Struct {
	fields := map[string]*structpb.Value{"success": structpb.NewBoolValue(success)}
	if message != "" {
		fields["message"] = structpb.NewStringValue(message)
	}
	return &structpb.Struct{Fields: fields}
}

func sendTelemetryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ForwarderServer).SendTelemetry(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: sendTelemetryMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ForwarderServer).SendTelemetry(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ForwarderServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SendTelemetry",
			Handler:    sendTelemetryHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tracker/forwarder.proto",
}
