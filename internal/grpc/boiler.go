package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "nbeconnect.v1.Boiler"

// BoilerServer is the server API of the Boiler service. Messages are
// protobuf well-known types so no generated code is needed.
type BoilerServer interface {
	// GetValue returns the raw value of a key
	GetValue(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	// GetPrefix returns every key/value pair under a prefix
	GetPrefix(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ListKeys(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	Classify(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ReconstructSeries(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	// SetValue takes {key | sensor_id, value}
	SetValue(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	RunCommand(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	// QueryHistory takes {key, start, end, window, aggregation} with RFC 3339 times
	QueryHistory(context.Context, *structpb.Struct) (*structpb.ListValue, error)
}

func unaryHandler[Req any, Resp any](
	method string,
	call func(BoilerServer, context.Context, *Req) (Resp, error),
) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BoilerServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(BoilerServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// BoilerServiceDesc describes the Boiler service for grpc.Server.RegisterService
var BoilerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BoilerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetValue", Handler: unaryHandler("GetValue", BoilerServer.GetValue)},
		{MethodName: "GetPrefix", Handler: unaryHandler("GetPrefix", BoilerServer.GetPrefix)},
		{MethodName: "ListKeys", Handler: unaryHandler("ListKeys", BoilerServer.ListKeys)},
		{MethodName: "Classify", Handler: unaryHandler("Classify", BoilerServer.Classify)},
		{MethodName: "ReconstructSeries", Handler: unaryHandler("ReconstructSeries", BoilerServer.ReconstructSeries)},
		{MethodName: "SetValue", Handler: unaryHandler("SetValue", BoilerServer.SetValue)},
		{MethodName: "RunCommand", Handler: unaryHandler("RunCommand", BoilerServer.RunCommand)},
		{MethodName: "QueryHistory", Handler: unaryHandler("QueryHistory", BoilerServer.QueryHistory)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "nbeconnect/v1/boiler.proto",
}

// RegisterBoilerServer registers srv on s
func RegisterBoilerServer(s grpc.ServiceRegistrar, srv BoilerServer) {
	s.RegisterService(&BoilerServiceDesc, srv)
}

// BoilerClient calls the Boiler service
type BoilerClient struct {
	cc grpc.ClientConnInterface
}

func NewBoilerClient(cc grpc.ClientConnInterface) *BoilerClient {
	return &BoilerClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in interface{}, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BoilerClient) GetValue(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	return invoke[wrapperspb.StringValue](ctx, c.cc, "GetValue", in, opts...)
}

func (c *BoilerClient) GetPrefix(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, "GetPrefix", in, opts...)
}

func (c *BoilerClient) ListKeys(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	return invoke[structpb.ListValue](ctx, c.cc, "ListKeys", in, opts...)
}

func (c *BoilerClient) Classify(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, "Classify", in, opts...)
}

func (c *BoilerClient) ReconstructSeries(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke[structpb.Struct](ctx, c.cc, "ReconstructSeries", in, opts...)
}

func (c *BoilerClient) SetValue(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, "SetValue", in, opts...)
}

func (c *BoilerClient) RunCommand(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	return invoke[emptypb.Empty](ctx, c.cc, "RunCommand", in, opts...)
}

func (c *BoilerClient) QueryHistory(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	return invoke[structpb.ListValue](ctx, c.cc, "QueryHistory", in, opts...)
}
