package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/signalsfoundry/displacement-playback/internal/backend"
	"github.com/signalsfoundry/displacement-playback/internal/logging"
	"github.com/signalsfoundry/displacement-playback/internal/session"
	"github.com/signalsfoundry/displacement-playback/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type memoryFetcher struct {
	results map[string]*model.Result
	configs map[string]*model.Configuration
}

func (f memoryFetcher) FetchResult(_ context.Context, id string) (*model.Result, error) {
	if r, ok := f.results[id]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("result %s: %w", id, backend.ErrNotFound)
}

func (f memoryFetcher) FetchConfiguration(_ context.Context, id string) (*model.Configuration, error) {
	if c, ok := f.configs[id]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("configuration %s: %w", id, backend.ErrNotFound)
}

func testFetcher() memoryFetcher {
	cfg := &model.Configuration{
		ID:        "cfg-1",
		Region:    "Ethiopia",
		SimPeriod: model.SimPeriod{Date: "2023-01-01", Length: 3},
		Locations: []model.Location{
			{Name: "A", Latitude: 9, Longitude: 38.7, Type: model.LocationConflictZone},
			{Name: "C", Latitude: 13.5, Longitude: 39.5, Type: model.LocationCamp},
		},
		Routes:    []model.Route{{From: "A", To: "C", Distance: 500}},
		Conflicts: []model.ConflictDay{{"A": 1}, {"A": 1}, {"A": 0}},
	}
	rows := []model.DailyRow{
		{Date: "2023-01-01", Values: map[string]float64{"A": 100, "C": 0}},
		{Date: "2023-01-02", Values: map[string]float64{"A": 70, "C": 30}},
		{Date: "2023-01-03", Values: map[string]float64{"A": 40, "C": 60}},
	}
	return memoryFetcher{
		results: map[string]*model.Result{
			"res-1":    {ID: "res-1", SimulationID: "cfg-1", Data: rows},
			"res-2":    {ID: "res-2", SimulationID: "cfg-1", Data: rows[:2]},
			"orphaned": {ID: "orphaned", SimulationID: "cfg-missing", Data: rows},
		},
		configs: map[string]*model.Configuration{"cfg-1": cfg},
	}
}

type testEnv struct {
	manager *session.Manager
	client  *PlaybackClient
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logging.Noop()
	manager := session.NewManager(testFetcher(), log, session.WithTickInterval(time.Millisecond))

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RequestIDUnaryServerInterceptor(log),
			TracingUnaryServerInterceptor(),
		),
		grpc.ChainStreamInterceptor(RequestIDStreamServerInterceptor(log)),
	)
	RegisterPlaybackServer(srv, NewServer(manager, log))
	go func() { _ = srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
		srv.Stop()
		manager.CloseAll()
	})
	return &testEnv{manager: manager, client: NewPlaybackClient(conn)}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return metadata.AppendToOutgoingContext(ctx, "x-request-id", "test-request")
}

func field(msg *structpb.Struct, path ...string) *structpb.Value {
	v := structpb.NewStructValue(msg)
	for _, p := range path {
		v = v.GetStructValue().GetFields()[p]
	}
	return v
}

func openSession(t *testing.T, env *testEnv, resultID string) string {
	t.Helper()
	view, err := env.client.OpenSession(testContext(t), resultID)
	if err != nil {
		t.Fatalf("OpenSession(%s): %v", resultID, err)
	}
	id := field(view, "session_id").GetStringValue()
	if id == "" {
		t.Fatalf("OpenSession returned no session id: %v", view)
	}
	return id
}

func TestOpenScrubAndInspectView(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	id := openSession(t, env, "res-1")
	view, err := env.client.Call(ctx, MethodGetView, map[string]any{"session_id": id})
	if err != nil {
		t.Fatalf("GetView: %v", err)
	}
	if got := field(view, "status").GetStringValue(); got != "ready" {
		t.Fatalf("status = %q", got)
	}
	if got := field(view, "scrubber", "max").GetNumberValue(); got != 2 {
		t.Fatalf("scrubber max = %v, want 2", got)
	}

	view, err = env.client.Scrub(ctx, id, 2)
	if err != nil {
		t.Fatalf("Scrub: %v", err)
	}
	if got := field(view, "day_label").GetStringValue(); got != "Day 2: 2023-01-03" {
		t.Fatalf("day label = %q", got)
	}
	locations := field(view, "frame", "locations").GetListValue().GetValues()
	if len(locations) != 2 {
		t.Fatalf("frame locations = %d, want 2", len(locations))
	}
	a := locations[0].GetStructValue().GetFields()
	if a["location_type"].GetStringValue() != "town" || a["observed_count"].GetNumberValue() != 40 {
		t.Fatalf("day 2 A = %v", a)
	}
	markers := field(view, "map", "markers").GetListValue().GetValues()
	if r := markers[1].GetStructValue().GetFields()["radius"].GetNumberValue(); r != 5060 {
		t.Fatalf("camp radius = %v, want 5060", r)
	}

	warnings, err := env.client.Call(ctx, MethodListWarnings, map[string]any{"session_id": id})
	if err != nil {
		t.Fatalf("ListWarnings: %v", err)
	}
	if n := len(field(warnings, "warnings").GetListValue().GetValues()); n != 0 {
		t.Fatalf("warnings = %v", warnings)
	}
}

func TestRPCErrorsCarryCodes(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	cases := []struct {
		method string
		req    map[string]any
		code   codes.Code
	}{
		{MethodGetView, map[string]any{}, codes.InvalidArgument},
		{MethodGetView, map[string]any{"session_id": "nope"}, codes.NotFound},
		{MethodOpenSession, map[string]any{"result_id": ""}, codes.InvalidArgument},
		{MethodScrub, map[string]any{"session_id": "nope", "index": 1.5}, codes.InvalidArgument},
		{MethodCloseSession, map[string]any{"session_id": "nope"}, codes.NotFound},
	}
	for _, tc := range cases {
		_, err := env.client.Call(ctx, tc.method, tc.req)
		if status.Code(err) != tc.code {
			t.Fatalf("%s(%v) code = %v (%v), want %v", tc.method, tc.req, status.Code(err), err, tc.code)
		}
	}
}

func TestFailedSessionRetryAndSwitch(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	view, err := env.client.OpenSession(ctx, "orphaned")
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	id := field(view, "session_id").GetStringValue()
	if got := field(view, "status").GetStringValue(); got != "failed" {
		t.Fatalf("status = %q, want failed", got)
	}
	if field(view, "error").GetStringValue() == "" {
		t.Fatalf("failed view lacks error")
	}

	_, err = env.client.Call(ctx, MethodPlay, map[string]any{"session_id": id})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("Play on failed session code = %v", status.Code(err))
	}

	view, err = env.client.Call(ctx, MethodRetry, map[string]any{"session_id": id})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if got := field(view, "status").GetStringValue(); got != "failed" {
		t.Fatalf("status after retry = %q, want failed", got)
	}

	view, err = env.client.Call(ctx, MethodSwitchResult, map[string]any{"session_id": id, "result_id": "res-2"})
	if err != nil {
		t.Fatalf("SwitchResult: %v", err)
	}
	if field(view, "status").GetStringValue() != "ready" || field(view, "scrubber", "max").GetNumberValue() != 1 {
		t.Fatalf("view after switch = %v", view)
	}

	_, err = env.client.Call(ctx, MethodRetry, map[string]any{"session_id": id})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("Retry on ready session code = %v", status.Code(err))
	}
}

func TestWatchViewFollowsPlaybackUntilClose(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)
	id := openSession(t, env, "res-1")

	watcher, err := env.client.WatchView(ctx, id)
	if err != nil {
		t.Fatalf("WatchView: %v", err)
	}
	first, err := watcher.Recv()
	if err != nil {
		t.Fatalf("first Recv: %v", err)
	}
	if field(first, "scrubber", "value").GetNumberValue() != 0 {
		t.Fatalf("first view = %v", first)
	}

	if _, err := env.client.Call(ctx, MethodPlay, map[string]any{"session_id": id}); err != nil {
		t.Fatalf("Play: %v", err)
	}
	for {
		view, err := watcher.Recv()
		if err != nil {
			t.Fatalf("Recv while playing: %v", err)
		}
		if field(view, "scrubber", "value").GetNumberValue() == 2 && !field(view, "playing").GetBoolValue() {
			break
		}
	}

	if _, err := env.client.Call(ctx, MethodCloseSession, map[string]any{"session_id": id}); err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	for {
		view, err := watcher.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv after close: %v", err)
		}
		if got := field(view, "status").GetStringValue(); got != "closed" && got != "ready" {
			t.Fatalf("unexpected status after close: %q", got)
		}
	}

	sessions, err := env.client.Call(ctx, MethodListSessions, map[string]any{})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if n := len(field(sessions, "session_ids").GetListValue().GetValues()); n != 0 {
		t.Fatalf("sessions after close = %d", n)
	}
}

func TestWatchViewUnknownSession(t *testing.T) {
	env := newTestEnv(t)
	watcher, err := env.client.WatchView(testContext(t), "nope")
	if err != nil {
		t.Fatalf("WatchView: %v", err)
	}
	if _, err := watcher.Recv(); status.Code(err) != codes.NotFound {
		t.Fatalf("Recv code = %v, want NotFound", status.Code(err))
	}
}

func TestLatestViewOrdersByGenerationThenSeq(t *testing.T) {
	latest := newLatestView()
	offers := []struct {
		view session.View
		want session.View
	}{
		{
			view: session.View{Status: "ready", Generation: 1, Seq: 9},
			want: session.View{Status: "ready", Generation: 1, Seq: 9},
		},
		{
			// A switched session restarts its playback sequence.
			view: session.View{Status: "ready", Generation: 2, Seq: 1},
			want: session.View{Status: "ready", Generation: 2, Seq: 1},
		},
		{
			// Late view from the replaced playback.
			view: session.View{Status: "ready", Generation: 1, Seq: 12},
			want: session.View{Status: "ready", Generation: 2, Seq: 1},
		},
		{
			view: session.View{Status: "ready", Generation: 2, Seq: 0},
			want: session.View{Status: "ready", Generation: 2, Seq: 1},
		},
		{
			view: session.View{Status: "ready", Generation: 2, Seq: 3},
			want: session.View{Status: "ready", Generation: 2, Seq: 3},
		},
		{
			view: session.View{Status: "closed", Generation: 3},
			want: session.View{Status: "closed", Generation: 3},
		},
	}
	for i, tc := range offers {
		latest.offer(tc.view)
		got := latest.take()
		if got.Status != tc.want.Status || got.Generation != tc.want.Generation || got.Seq != tc.want.Seq {
			t.Fatalf("offer #%d: held %s gen=%d seq=%d, want %s gen=%d seq=%d",
				i, got.Status, got.Generation, got.Seq, tc.want.Status, tc.want.Generation, tc.want.Seq)
		}
	}
}
