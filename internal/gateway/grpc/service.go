// Package grpc carries the gateway API over gRPC. Requests and responses are
// google.protobuf.Struct messages holding the same JSON documents the HTTP
// API exchanges, so no generated code is needed.
package grpc

import (
	"context"

	grpcgo "google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "missioncontrol.gateway.v1.Gateway"

const (
	methodHealth       = "Health"
	methodListSessions = "ListSessions"
	methodSpawn        = "Spawn"
	methodSendMessage  = "SendMessage"
	methodHistory      = "History"
	methodStop         = "Stop"
	streamSubscribe    = "Subscribe"
)

func fullMethod(name string) string { return "/" + ServiceName + "/" + name }

// gatewayService is implemented by *Server; RegisterService checks it.
type gatewayService interface {
	unary(ctx context.Context, method string, in *structpb.Struct) (*structpb.Struct, error)
	subscribe(in *structpb.Struct, stream grpcgo.ServerStream) error
}

func unaryDesc(name string) grpcgo.MethodDesc {
	return grpcgo.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpcgo.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			svc := srv.(gatewayService)
			if interceptor == nil {
				return svc.unary(ctx, name, in)
			}
			info := &grpcgo.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return svc.unary(ctx, name, req.(*structpb.Struct))
			})
		},
	}
}

// ServiceDesc describes the gateway service for grpc.Server.RegisterService.
var ServiceDesc = grpcgo.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*gatewayService)(nil),
	Methods: []grpcgo.MethodDesc{
		unaryDesc(methodHealth),
		unaryDesc(methodListSessions),
		unaryDesc(methodSpawn),
		unaryDesc(methodSendMessage),
		unaryDesc(methodHistory),
		unaryDesc(methodStop),
	},
	Streams: []grpcgo.StreamDesc{
		{
			StreamName:    streamSubscribe,
			ServerStreams: true,
			Handler: func(srv any, stream grpcgo.ServerStream) error {
				in := new(structpb.Struct)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(gatewayService).subscribe(in, stream)
			},
		},
	},
	Metadata: "missioncontrol/gateway/v1/gateway.proto",
}
