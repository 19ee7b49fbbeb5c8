package api

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/signalsfoundry/displacement-playback/internal/backend"
	"github.com/signalsfoundry/displacement-playback/internal/session"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestToStatusError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		code    codes.Code
		wantNil bool
	}{
		{name: "nil", err: nil, wantNil: true},
		{name: "status passthrough", err: status.Error(codes.PermissionDenied, "denied"), code: codes.PermissionDenied},
		{name: "unknown session", err: fmt.Errorf("session %q: %w", "x", session.ErrSessionNotFound), code: codes.NotFound},
		{name: "unknown result", err: fmt.Errorf("load result: %w", backend.ErrNotFound), code: codes.NotFound},
		{name: "bad request", err: fmt.Errorf("%w: session_id is required", ErrInvalidArgument), code: codes.InvalidArgument},
		{name: "empty result id", err: session.ErrInvalidResultID, code: codes.InvalidArgument},
		{name: "not ready", err: session.ErrNotReady, code: codes.FailedPrecondition},
		{name: "not failed", err: session.ErrNotFailed, code: codes.FailedPrecondition},
		{name: "closed", err: session.ErrClosed, code: codes.FailedPrecondition},
		{name: "upstream", err: fmt.Errorf("fetch: %w", backend.ErrUpstream), code: codes.Unavailable},
		{name: "cancelled", err: context.Canceled, code: codes.Canceled},
		{name: "deadline", err: context.DeadlineExceeded, code: codes.DeadlineExceeded},
		{name: "fallback", err: errors.New("boom"), code: codes.Internal},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := ToStatusError(tc.err)
			if tc.wantNil {
				if got != nil {
					t.Fatalf("ToStatusError(nil) = %v, want nil", got)
				}
				return
			}
			if code := status.Code(got); code != tc.code {
				t.Fatalf("ToStatusError(%v) code = %v, want %v", tc.err, code, tc.code)
			}
		})
	}
}
