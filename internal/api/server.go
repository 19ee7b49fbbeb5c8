package api

import (
	"context"
	"sync"

	"github.com/signalsfoundry/displacement-playback/core"
	"github.com/signalsfoundry/displacement-playback/internal/logging"
	"github.com/signalsfoundry/displacement-playback/internal/session"
	"google.golang.org/protobuf/types/known/structpb"
)

// Server implements PlaybackServer over a session.Manager.
type Server struct {
	sessions *session.Manager
	log      logging.Logger
}

var _ PlaybackServer = (*Server)(nil)

func NewServer(sessions *session.Manager, log logging.Logger) *Server {
	if log == nil {
		log = logging.Noop()
	}
	return &Server{sessions: sessions, log: log}
}

func (s *Server) OpenSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	resultID, err := stringField(req, "result_id")
	if err != nil {
		return nil, ToStatusError(err)
	}
	sess, err := s.sessions.Open(ctx, resultID)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return viewResponse(sess.View())
}

func (s *Server) GetView(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	return viewResponse(sess.View())
}

func (s *Server) Play(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.control(req, (*session.Session).Play)
}

func (s *Server) Pause(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return s.control(req, (*session.Session).Pause)
}

func (s *Server) Scrub(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	index, err := intField(req, "index")
	if err != nil {
		return nil, ToStatusError(err)
	}
	return s.control(req, func(sess *session.Session) (session.View, error) {
		return sess.Scrub(index)
	})
}

// Retry reloads a failed session. A load that fails again is reported in
// the returned view, not as an RPC error.
func (s *Server) Retry(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	if err := sess.Retry(ctx); err != nil && sess.Status() != session.StatusFailed {
		return nil, ToStatusError(err)
	}
	return viewResponse(sess.View())
}

func (s *Server) SwitchResult(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	resultID, err := stringField(req, "result_id")
	if err != nil {
		return nil, ToStatusError(err)
	}
	if err := sess.SwitchResult(ctx, resultID); err != nil && sess.Status() != session.StatusFailed {
		return nil, ToStatusError(err)
	}
	return viewResponse(sess.View())
}

func (s *Server) CloseSession(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := stringField(req, "session_id")
	if err != nil {
		return nil, ToStatusError(err)
	}
	if err := s.sessions.Close(id); err != nil {
		return nil, ToStatusError(err)
	}
	return toResponse(map[string]any{"session_id": id, "closed": true})
}

func (s *Server) ListWarnings(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	warnings := sess.Warnings()
	if warnings == nil {
		warnings = []core.DataWarning{}
	}
	return toResponse(map[string]any{"session_id": sess.ID(), "warnings": warnings})
}

func (s *Server) ListSessions(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return toResponse(map[string]any{"session_ids": s.sessions.IDs()})
}

// WatchView sends the current view, then a view after every change, until
// the client goes away or the session closes. Slow clients skip
// intermediate views.
func (s *Server) WatchView(req *structpb.Struct, stream ViewStream) error {
	sess, err := s.session(req)
	if err != nil {
		return err
	}
	ctx := stream.Context()
	log := logging.FromContext(ctx, s.log).With(logging.String("session_id", sess.ID()))

	latest := newLatestView()
	unsubscribe := sess.Subscribe(latest.offer)
	defer unsubscribe()
	latest.offer(sess.View())

	log.Debug(ctx, "view stream opened")
	for {
		select {
		case <-ctx.Done():
			log.Debug(ctx, "view stream cancelled")
			return ToStatusError(ctx.Err())
		case <-sess.Done():
			return sendView(stream, sess.View())
		case <-latest.ready:
			if err := sendView(stream, latest.take()); err != nil {
				return err
			}
		}
	}
}

func (s *Server) session(req *structpb.Struct) (*session.Session, error) {
	id, err := stringField(req, "session_id")
	if err != nil {
		return nil, ToStatusError(err)
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return sess, nil
}

func (s *Server) control(req *structpb.Struct, op func(*session.Session) (session.View, error)) (*structpb.Struct, error) {
	sess, err := s.session(req)
	if err != nil {
		return nil, err
	}
	view, err := op(sess)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return viewResponse(view)
}

func viewResponse(v session.View) (*structpb.Struct, error) {
	return toResponse(v)
}

func toResponse(v any) (*structpb.Struct, error) {
	out, err := toStruct(v)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

func sendView(stream ViewStream, v session.View) error {
	msg, err := toResponse(v)
	if err != nil {
		return err
	}
	return stream.Send(msg)
}

func sessionIDOf(req any) string {
	msg, ok := req.(*structpb.Struct)
	if !ok {
		return ""
	}
	return msg.GetFields()["session_id"].GetStringValue()
}

// latestView holds the newest view offered; older unsent views are
// replaced. A view from an earlier load generation, or from the same
// generation and status with a lower playback sequence, is stale and dropped.
type latestView struct {
	mu    sync.Mutex
	view  *session.View
	ready chan struct{}
}

func newLatestView() *latestView {
	return &latestView{ready: make(chan struct{}, 1)}
}

func (l *latestView) offer(v session.View) {
	l.mu.Lock()
	if l.view != nil && stale(v, *l.view) {
		l.mu.Unlock()
		return
	}
	l.view = &v
	l.mu.Unlock()

	select {
	case l.ready <- struct{}{}:
	default:
	}
}

func stale(v, held session.View) bool {
	if v.Generation != held.Generation {
		return v.Generation < held.Generation
	}
	return v.Status == held.Status && v.Seq < held.Seq
}

func (l *latestView) take() session.View {
	l.mu.Lock()
	defer l.mu.Unlock()
	v := *l.view
	return v
}
