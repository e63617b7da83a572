package errors

import (
	"context"
	stderrors "errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrConflict is a commit rejected because its snapshot is stale.
	// Absorbed by the transaction executor, never surfaced to callers.
	ErrConflict          = fmt.Errorf("write conflict")
	ErrNotFound          = fmt.Errorf("room not found")
	ErrValidation        = fmt.Errorf("validation error")
	ErrTimeout           = fmt.Errorf("join attempt timed out")
	ErrTransactionFailed = fmt.Errorf("transaction failed after retries")

	ErrVoteThrottled   = fmt.Errorf("vote dropped: submitted too soon after the previous one")
	ErrSessionClosed   = fmt.Errorf("session closed")
	ErrListenerLagging = fmt.Errorf("listener too slow, snapshot dropped")
	ErrNotifierStopped = fmt.Errorf("notifier stopped")
	ErrWorkerPanic     = fmt.Errorf("worker panic")
)

// Is re-exports the standard helper so callers importing this package
// under the name errors keep access to it.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// MapToGRPCError translates the engine taxonomy into gRPC status errors.
func MapToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case Is(err, ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case Is(err, ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case Is(err, ErrTimeout), Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case Is(err, ErrTransactionFailed):
		return status.Error(codes.Aborted, err.Error())
	case Is(err, ErrVoteThrottled):
		return status.Error(codes.ResourceExhausted, err.Error())
	case Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// FromGRPCError is the client-side inverse of MapToGRPCError, so remote
// callers can branch on the same sentinels as in-process ones.
func FromGRPCError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	var sentinel error
	switch st.Code() {
	case codes.NotFound:
		sentinel = ErrNotFound
	case codes.InvalidArgument:
		sentinel = ErrValidation
	case codes.DeadlineExceeded:
		sentinel = ErrTimeout
	case codes.Aborted:
		sentinel = ErrTransactionFailed
	case codes.ResourceExhausted:
		sentinel = ErrVoteThrottled
	case codes.Canceled:
		sentinel = context.Canceled
	default:
		return err
	}
	return fmt.Errorf("%w: %s", sentinel, st.Message())
}
