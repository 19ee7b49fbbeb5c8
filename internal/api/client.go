package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// PlaybackClient calls PlaybackService over a client connection.
type PlaybackClient struct {
	cc grpc.ClientConnInterface
}

func NewPlaybackClient(cc grpc.ClientConnInterface) *PlaybackClient {
	return &PlaybackClient{cc: cc}
}

// Call invokes a unary method with a JSON-shaped request.
func (c *PlaybackClient) Call(ctx context.Context, method string, req map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PlaybackClient) OpenSession(ctx context.Context, resultID string) (*structpb.Struct, error) {
	return c.Call(ctx, MethodOpenSession, map[string]any{"result_id": resultID})
}

func (c *PlaybackClient) Scrub(ctx context.Context, sessionID string, index int) (*structpb.Struct, error) {
	return c.Call(ctx, MethodScrub, map[string]any{"session_id": sessionID, "index": index})
}

// WatchView opens the view stream for sessionID.
func (c *PlaybackClient) WatchView(ctx context.Context, sessionID string, opts ...grpc.CallOption) (*ViewWatcher, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], FullMethod(MethodWatchView), opts...)
	if err != nil {
		return nil, err
	}
	in, err := structpb.NewStruct(map[string]any{"session_id": sessionID})
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &ViewWatcher{stream: stream}, nil
}

// ViewWatcher receives views from WatchView.
type ViewWatcher struct {
	stream grpc.ClientStream
}

// Recv blocks for the next view; it returns io.EOF when the session closes.
func (w *ViewWatcher) Recv() (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := w.stream.RecvMsg(out); err != nil {
		return nil, err
	}
	return out, nil
}
