// Package modelGrpc exposes a read only gRPC query service over the graph of a session.
//
// The service is described by hand with protobuf well-known types so no generated stubs are needed:
//
//	service ModelQuery {
//	    rpc StateOf(google.protobuf.StringValue) returns (google.protobuf.Struct);
//	    rpc ListStates(google.protobuf.Empty) returns (google.protobuf.ListValue);
//	    rpc Transitions(google.protobuf.StringValue) returns (google.protobuf.ListValue);
//	}
package modelGrpc

import (
	"context"

	"github.com/golang/protobuf/ptypes/empty"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ServiceName = "dstg.ModelQuery"

const (
	stateOfMethod     = "/" + ServiceName + "/StateOf"
	listStatesMethod  = "/" + ServiceName + "/ListStates"
	transitionsMethod = "/" + ServiceName + "/Transitions"
)

type ModelQueryServer interface {
	// Returns the abstract state with the id, or the state a snapshot with the id belongs to.
	StateOf(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	// Returns every abstract state, virtual states included.
	ListStates(context.Context, *empty.Empty) (*structpb.ListValue, error)
	// Returns the transitions leaving the abstract state with the id.
	Transitions(context.Context, *wrapperspb.StringValue) (*structpb.ListValue, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ModelQueryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StateOf", Handler: stateOfHandler},
		{MethodName: "ListStates", Handler: listStatesHandler},
		{MethodName: "Transitions", Handler: transitionsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "dstg/model_query.proto",
}

func stateOfHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ModelQueryServer).StateOf(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: stateOfMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ModelQueryServer).StateOf(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func listStatesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(empty.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ModelQueryServer).ListStates(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listStatesMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ModelQueryServer).ListStates(ctx, req.(*empty.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func transitionsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ModelQueryServer).Transitions(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: transitionsMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ModelQueryServer).Transitions(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Client of the query service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) StateOf(ctx context.Context, id string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, stateOfMethod, wrapperspb.String(id), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListStates(ctx context.Context, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, listStatesMethod, &empty.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Transitions(ctx context.Context, id string, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, transitionsMethod, wrapperspb.String(id), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
