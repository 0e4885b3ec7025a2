package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "medslot.v1.SchedulingService"

// SchedulingServiceServer is served with google.protobuf.Struct request and response
// documents, so any gRPC client can call it without generated stubs.
type SchedulingServiceServer interface {
	Book(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Cancel(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	MarkDone(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Rate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	AddTimeSlot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	RemoveTimeSlot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	RefreshAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetAvailability(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListBookings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Statistics(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var SchedulingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SchedulingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Book", SchedulingServiceServer.Book),
		unaryMethod("Cancel", SchedulingServiceServer.Cancel),
		unaryMethod("MarkDone", SchedulingServiceServer.MarkDone),
		unaryMethod("Rate", SchedulingServiceServer.Rate),
		unaryMethod("AddTimeSlot", SchedulingServiceServer.AddTimeSlot),
		unaryMethod("RemoveTimeSlot", SchedulingServiceServer.RemoveTimeSlot),
		unaryMethod("RefreshAvailability", SchedulingServiceServer.RefreshAvailability),
		unaryMethod("GetAvailability", SchedulingServiceServer.GetAvailability),
		unaryMethod("ListBookings", SchedulingServiceServer.ListBookings),
		unaryMethod("Statistics", SchedulingServiceServer.Statistics),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "medslot/v1/scheduling.proto",
}

func RegisterSchedulingServiceServer(s grpc.ServiceRegistrar, srv SchedulingServiceServer) {
	s.RegisterService(&SchedulingServiceDesc, srv)
}

func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

type unaryCall func(srv SchedulingServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call unaryCall) grpc.MethodDesc {
	fullMethod := FullMethod(name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(SchedulingServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(SchedulingServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// SchedulingClient calls the scheduling service over any client connection.
type SchedulingClient struct {
	cc grpc.ClientConnInterface
}

func NewSchedulingClient(cc grpc.ClientConnInterface) *SchedulingClient {
	return &SchedulingClient{cc: cc}
}

func (c *SchedulingClient) Call(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if req == nil {
		req = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
