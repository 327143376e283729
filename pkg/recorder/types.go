// Package recorder launches, monitors and terminates the local GStreamer
// recording pipeline for one stream.
//
// Lifecycle:
//
//	h → Start() confirms launch → Poll()/Tail() while recording → Stop()
//
// Stop() is deterministic teardown: SIGINT to the process group (the
// launcher's -e flag turns it into an EOS so the open segment is flushed and
// finalized), a bounded grace period, then SIGKILL. Stop always waits for the
// process to be reaped before returning, so no orphan pipeline survives it.
package recorder

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// LogMode selects where pipeline output goes.
type LogMode string

const (
	// LogDiscard drops all pipeline output (the in-memory tail is still kept).
	LogDiscard LogMode = "discard"
	// LogConsole inherits the parent's stdout/stderr.
	LogConsole LogMode = "console"
	// LogFile writes a per-session log file next to the recordings.
	LogFile LogMode = "file"
)

// ParseLogMode maps a config string onto a LogMode. "none" is accepted as an
// alias for discard.
func ParseLogMode(s string) (LogMode, error) {
	switch LogMode(strings.ToLower(s)) {
	case LogDiscard, LogConsole, LogFile:
		return LogMode(strings.ToLower(s)), nil
	case "none":
		return LogDiscard, nil
	case "":
		return LogFile, nil
	default:
		return "", fmt.Errorf("invalid log mode %q (want discard, console or file)", s)
	}
}

// RotationPolicy bounds individual recording segments. Each ceiling is
// independent; zero means unbounded in that dimension. Reaching a ceiling
// rotates to a new output file, it never stops the recording.
type RotationPolicy struct {
	MaxDuration time.Duration // max wall time per segment
	MaxBytes    int64         // max bytes per segment
	MaxFiles    int           // max retained segment files
}

// Spec describes one recording pipeline to launch.
type Spec struct {
	// SRT endpoint the server emits the stream on.
	Host      string
	Port      int
	LatencyMS int // 0 → gstcmd.DefaultSRTLatencyMS

	// OutputDir receives the segment files (created if missing).
	OutputDir string
	// FilePrefix names this session's files, e.g. "0_XDAQ_Cam_20260823_120000".
	FilePrefix string

	Rotation RotationPolicy
	LogMode  LogMode
}

// Location is the splitmuxsink output pattern for this spec.
func (s Spec) Location() string {
	return filepath.Join(s.OutputDir, s.FilePrefix+"-%02d.mkv")
}

// LogPath is the per-session log file path used when LogMode is LogFile.
func (s Spec) LogPath() string {
	return filepath.Join(s.OutputDir, s.FilePrefix+".log")
}

// LaunchError reports that the pipeline failed to start. Two distinguishable
// situations map onto it:
//
//   - the binary could not be spawned at all (Err wraps exec.ErrNotFound when
//     it is missing from PATH), an environment/setup problem;
//   - the process exited within the launch grace window (Err nil, ExitCode
//     set), usually a bad capability/endpoint pairing rejected by the
//     pipeline; Tail carries its final output lines.
type LaunchError struct {
	Binary   string
	Err      error
	ExitCode int
	Tail     []string // newest → oldest
}

func (e *LaunchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("launch %s: %v", e.Binary, e.Err)
	}
	msg := fmt.Sprintf("%s exited during launch with status %d", e.Binary, e.ExitCode)
	if len(e.Tail) > 0 {
		msg += ": " + e.Tail[0]
	}
	return msg
}

func (e *LaunchError) Unwrap() error { return e.Err }
