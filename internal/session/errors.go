package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/vdavid/tauri-mcp/internal/protocol"
)

var (
	// ErrNotConnected means no attempt was made: the session was never opened,
	// was torn down, or gave up reconnecting.
	ErrNotConnected = errors.New("not connected")

	// ErrConnectionClosed fails in-flight requests on unplanned loss.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrDisconnected fails in-flight requests on a caller-initiated teardown.
	ErrDisconnected = errors.New("disconnected")

	// ErrTimeout matches any *TimeoutError.
	ErrTimeout = errors.New("request timed out")

	// ErrTargetNotFound matches a *CommandError for an unresolvable target.
	ErrTargetNotFound = errors.New("target not found")

	// ErrRemoteExecution matches a *CommandError raised by the command itself.
	ErrRemoteExecution = errors.New("remote execution failed")

	// ErrKeepAliveTimeout is the loss reason when a ping goes unanswered.
	ErrKeepAliveTimeout = errors.New("keep-alive not acknowledged")

	// ErrVersionMismatch is returned by Connect when the host's protocol
	// version does not satisfy Config.RequireVersion.
	ErrVersionMismatch = errors.New("protocol version mismatch")

	// ErrDuplicateID is returned by Correlator.Register for an id already pending.
	ErrDuplicateID = errors.New("duplicate request id")
)

// TimeoutError is reported when no matching response arrived in time.
type TimeoutError struct {
	ID      string
	Command string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command %q (%s) timed out after %s", e.Command, e.ID, e.Elapsed)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// CommandError is a success:false response from the host. Message is the
// remote text verbatim.
type CommandError struct {
	ID      string
	Command string
	Code    protocol.ErrorCode
	Message string
}

func (e *CommandError) Error() string { return e.Message }

func (e *CommandError) Is(target error) bool {
	switch target {
	case ErrTargetNotFound:
		return e.Code == protocol.ErrTargetNotFound || e.Code == protocol.ErrNoTargets
	case ErrRemoteExecution:
		return e.Code != protocol.ErrTargetNotFound && e.Code != protocol.ErrNoTargets
	}
	return false
}
