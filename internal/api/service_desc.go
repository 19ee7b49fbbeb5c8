// Package api exposes playback sessions over gRPC. Messages are
// google.protobuf.Struct values carrying JSON-shaped requests and views, so
// the service needs no generated code.
package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "displacement.playback.v1.PlaybackService"

const (
	MethodOpenSession  = "OpenSession"
	MethodGetView      = "GetView"
	MethodPlay         = "Play"
	MethodPause        = "Pause"
	MethodScrub        = "Scrub"
	MethodRetry        = "Retry"
	MethodSwitchResult = "SwitchResult"
	MethodCloseSession = "CloseSession"
	MethodListWarnings = "ListWarnings"
	MethodListSessions = "ListSessions"
	MethodWatchView    = "WatchView"
)

// FullMethod returns the gRPC path of method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// PlaybackServer is the server API of the playback service.
type PlaybackServer interface {
	OpenSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetView(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Play(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Pause(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Scrub(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Retry(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SwitchResult(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CloseSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListWarnings(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListSessions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchView(*structpb.Struct, ViewStream) error
}

// ViewStream is the server side of WatchView.
type ViewStream interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type unaryFunc func(PlaybackServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, fn unaryFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return fn(srv.(PlaybackServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return fn(srv.(PlaybackServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

type viewStream struct {
	grpc.ServerStream
}

func (s *viewStream) Send(m *structpb.Struct) error {
	return s.ServerStream.SendMsg(m)
}

func watchViewHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(PlaybackServer).WatchView(in, &viewStream{stream})
}

// ServiceDesc describes PlaybackService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PlaybackServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(MethodOpenSession, PlaybackServer.OpenSession),
		unaryMethod(MethodGetView, PlaybackServer.GetView),
		unaryMethod(MethodPlay, PlaybackServer.Play),
		unaryMethod(MethodPause, PlaybackServer.Pause),
		unaryMethod(MethodScrub, PlaybackServer.Scrub),
		unaryMethod(MethodRetry, PlaybackServer.Retry),
		unaryMethod(MethodSwitchResult, PlaybackServer.SwitchResult),
		unaryMethod(MethodCloseSession, PlaybackServer.CloseSession),
		unaryMethod(MethodListWarnings, PlaybackServer.ListWarnings),
		unaryMethod(MethodListSessions, PlaybackServer.ListSessions),
	},
	Streams: []grpc.StreamDesc{{
		StreamName:    MethodWatchView,
		Handler:       watchViewHandler,
		ServerStreams: true,
	}},
	Metadata: "displacement/playback/v1/playback.proto",
}

// RegisterPlaybackServer registers srv on s.
func RegisterPlaybackServer(s grpc.ServiceRegistrar, srv PlaybackServer) {
	s.RegisterService(&ServiceDesc, srv)
}
