package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	IntakeServiceName  = "cardlead.intake.v1.Intake"
	IntakeSubmitMethod = "/" + IntakeServiceName + "/Submit"
)

// IntakeServer accepts submissions. The request is a google.protobuf.Struct so
// the web layer can post the form as JSON without generated stubs.
type IntakeServer interface {
	Submit(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error)
}

func intakeSubmitHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IntakeServer).Submit(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: IntakeSubmitMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(IntakeServer).Submit(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// IntakeServiceDesc describes the intake service for grpc.Server.RegisterService.
var IntakeServiceDesc = grpc.ServiceDesc{
	ServiceName: IntakeServiceName,
	HandlerType: (*IntakeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: intakeSubmitHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cardlead/intake/v1/intake.proto",
}

func RegisterIntakeServer(s grpc.ServiceRegistrar, srv IntakeServer) {
	s.RegisterService(&IntakeServiceDesc, srv)
}

// IntakeClient calls a remote intake service.
type IntakeClient struct {
	cc grpc.ClientConnInterface
}

func NewIntakeClient(cc grpc.ClientConnInterface) *IntakeClient {
	return &IntakeClient{cc: cc}
}

func (c *IntakeClient) Submit(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, IntakeSubmitMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
