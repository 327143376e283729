// Package session owns the registry of active per-camera stream sessions.
//
// A session is the bound pairing of a server-side stream and a local
// recording process for one camera. The manager sequences
// "start on server" → "start local recorder" → register, and the reverse for
// stop, with compensation so a start either completes fully or rolls back
// fully; no partially-started session is ever left registered.
package session

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kontex-neuro/thorvision-go/pkg/recorder"
	"github.com/kontex-neuro/thorvision-go/pkg/streamapi"
)

// Status is the lifecycle state of one stream session. A camera with no
// registered session has no Status; absence from the registry is the
// "no session" state.
type Status int32

const (
	StatusStarting Status = iota
	StatusActive
	StatusStopping
	StatusStopped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusActive:
		return "active"
	case StatusStopping:
		return "stopping"
	case StatusStopped:
		return "stopped"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// ErrAlreadyStreaming rejects a start for a camera that already has an
// active (or starting) session. There is no silent replace.
var ErrAlreadyStreaming = errors.New("camera already has an active stream session")

// RollbackError reports that after a failed recorder launch the compensating
// server-side stop also failed: the server may still be emitting a stream
// nobody consumes. The original failure is not masked: both errors are
// reachable via errors.Is/As.
type RollbackError struct {
	CameraID int
	Cause    error // the failure that triggered the rollback
	StopErr  error // the failed compensating stop
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("camera %d: %v (compensating server stop also failed: %v)",
		e.CameraID, e.Cause, e.StopErr)
}

func (e *RollbackError) Unwrap() []error { return []error{e.Cause, e.StopErr} }

// Options configures one recording session.
type Options struct {
	// OutputDir receives segment files; default "./recordings".
	OutputDir string
	// CameraName is the display name used in file prefixes (sanitized);
	// default "camera<id>".
	CameraName string
	// Rotation bounds individual segments; zero ceilings are unbounded.
	Rotation recorder.RotationPolicy
	// LogMode selects pipeline log routing; default per-session file.
	LogMode recorder.LogMode
	// LatencyMS overrides the SRT receive latency.
	LatencyMS int
}

// StreamSession is one active camera→recording binding. Created by the
// manager on a fully successful start sequence and mutated only by it.
type StreamSession struct {
	ID         uuid.UUID
	CameraID   int
	Endpoint   streamapi.Endpoint
	OutputDir  string
	OutputPath string // segment file pattern
	LogPath    string // empty unless file logging selected
	Rotation   recorder.RotationPolicy
	LogMode    recorder.LogMode
	StartedAt  time.Time

	handle *recorder.Handle
	status atomic.Int32
}

// Status returns the session's current lifecycle state.
func (s *StreamSession) Status() Status { return Status(s.status.Load()) }

func (s *StreamSession) setStatus(st Status) { s.status.Store(int32(st)) }

// StreamInfo is a read-only snapshot entry of the active-session registry.
type StreamInfo struct {
	Endpoint   streamapi.Endpoint
	Status     Status
	OutputPath string
}
