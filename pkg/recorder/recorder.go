//go:build linux

package recorder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kontex-neuro/thorvision-go/pkg/gstcmd"
)

const (
	defaultLaunchGrace = 1 * time.Second
	defaultStopGrace   = 5 * time.Second
	launchTailLines    = 20
)

// Handle references one running (or exited) recording pipeline.
type Handle struct {
	OutputPath string // splitmuxsink location pattern
	LogPath    string // per-session log file, empty unless LogMode is file

	cmd     *exec.Cmd
	pid     int
	tail    *tailBuffer
	logFile *os.File

	// closed after the process is fully reaped; exitErr is set before close.
	done    chan struct{}
	exitErr error
}

// PID returns the pipeline's process ID.
func (h *Handle) PID() int { return h.pid }

// Running reports liveness without blocking.
func (h *Handle) Running() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Tail returns the pipeline's most recent output lines, newest → oldest.
func (h *Handle) Tail(lines int) []string {
	if h.tail == nil {
		return nil
	}
	return h.tail.Tail(lines)
}

func (h *Handle) exitCode() int {
	var eerr *exec.ExitError
	if errors.As(h.exitErr, &eerr) {
		return eerr.ExitCode()
	}
	return 0
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithBinary overrides the pipeline launcher binary (default gst-launch-1.0).
func WithBinary(path string) Option { return func(s *Supervisor) { s.binary = path } }

// WithLaunchGrace overrides how long Start watches for an immediate exit.
func WithLaunchGrace(d time.Duration) Option { return func(s *Supervisor) { s.launchGrace = d } }

// WithStopGrace overrides the SIGINT→SIGKILL escalation window.
func WithStopGrace(d time.Duration) Option { return func(s *Supervisor) { s.stopGrace = d } }

// Supervisor launches and tears down recording pipelines. Safe for
// concurrent use; each Start returns an independent Handle.
type Supervisor struct {
	log         *zap.Logger
	binary      string
	launchGrace time.Duration
	stopGrace   time.Duration
}

// New returns a Supervisor. A nil logger disables logging.
func New(log *zap.Logger, opts ...Option) *Supervisor {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Supervisor{
		log:         log.Named("recorder"),
		binary:      gstcmd.Binary,
		launchGrace: defaultLaunchGrace,
		stopGrace:   defaultStopGrace,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the pipeline for spec and returns once the process is
// confirmed launched: spawned, and still alive after the launch grace window.
// It does NOT wait for recording output. Failures surface as *LaunchError.
func (s *Supervisor) Start(ctx context.Context, spec Spec) (*Handle, error) {
	if err := os.MkdirAll(spec.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	argv := gstcmd.BuildArgs(gstcmd.Pipeline{
		Host:         spec.Host,
		Port:         spec.Port,
		LatencyMS:    spec.LatencyMS,
		MaxSizeTime:  spec.Rotation.MaxDuration,
		MaxSizeBytes: spec.Rotation.MaxBytes,
		MaxFiles:     spec.Rotation.MaxFiles,
		Location:     spec.Location(),
	})
	argv[0] = s.binary

	log := s.log.With(zap.String("location", spec.Location()))
	log.Info("launching pipeline", zap.Strings("argv", argv))

	h := &Handle{
		OutputPath: spec.Location(),
		tail:       new(tailBuffer),
		done:       make(chan struct{}),
	}

	// Pipeline output sinks per log policy. The tail ring is fed regardless
	// so launch failures can report the pipeline's last words.
	var stdoutSink, stderrSink io.Writer
	switch spec.LogMode {
	case LogConsole:
		stdoutSink, stderrSink = os.Stdout, os.Stderr
	case LogDiscard:
		stdoutSink, stderrSink = io.Discard, io.Discard
	default: // LogFile and unset
		f, err := os.Create(spec.LogPath())
		if err != nil {
			return nil, fmt.Errorf("create pipeline log file: %w", err)
		}
		h.logFile = f
		h.LogPath = spec.LogPath()
		stdoutSink, stderrSink = f, f
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), "GST_DEBUG=3")
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,            // own process group so we can signal the group
		Pdeathsig: syscall.SIGKILL, // child dies with us
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		h.closeLogFile()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdout.Close()
		h.closeLogFile()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		h.closeLogFile()
		return nil, &LaunchError{Binary: s.binary, Err: err}
	}

	h.cmd = cmd
	h.pid = cmd.Process.Pid
	log = log.With(zap.Int("pid", h.pid))
	log.Info("pipeline process started")

	go s.supervise(h, stdout, stderr, stdoutSink, stderrSink, log)

	// Confirm launch: a pipeline that dies within the grace window never
	// recorded anything and is treated as a failed start.
	timer := time.NewTimer(s.launchGrace)
	defer timer.Stop()

	select {
	case <-h.done:
		lerr := &LaunchError{Binary: s.binary, ExitCode: h.exitCode(), Tail: h.Tail(launchTailLines)}
		log.Warn("pipeline exited during launch", zap.Int("exit_code", lerr.ExitCode))
		return nil, lerr

	case <-ctx.Done():
		s.kill(h, log)
		<-h.done
		return nil, ctx.Err()

	case <-timer.C:
		return h, nil
	}
}

// supervise drains both pipes into the tail ring and the configured sinks,
// reaps the child exactly once, then fires Done.
func (s *Supervisor) supervise(h *Handle, stdout, stderr io.ReadCloser, stdoutSink, stderrSink io.Writer, log *zap.Logger) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.drain(stdout, stdoutSink, log.Named("stdout"))
	}()
	go func() {
		defer wg.Done()
		h.drain(stderr, stderrSink, log.Named("stderr"))
	}()
	wg.Wait()

	err := h.cmd.Wait()
	if err != nil {
		var eerr *exec.ExitError
		if errors.As(err, &eerr) {
			status := eerr.ProcessState.Sys().(syscall.WaitStatus)
			log.Info("pipeline exited with error status",
				zap.Int("exit_code", status.ExitStatus()),
				zap.Bool("signaled", status.Signaled()))
		} else {
			log.Error("failed to wait for pipeline", zap.Error(err))
		}
	} else {
		log.Info("pipeline exited cleanly")
	}

	h.closeLogFile()
	h.exitErr = err
	close(h.done)
}

func (h *Handle) drain(r io.Reader, sink io.Writer, log *zap.Logger) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	for sc.Scan() {
		line := sc.Text()
		h.tail.Append(line)
		fmt.Fprintln(sink, line)
	}
	if err := sc.Err(); err != nil {
		log.Debug("pipe scanner failure", zap.Error(err))
	}
}

func (h *Handle) closeLogFile() {
	if h.logFile != nil {
		_ = h.logFile.Close()
	}
}

// Poll reports whether the pipeline is still running. Non-blocking.
func (s *Supervisor) Poll(h *Handle) bool {
	if h == nil {
		return false
	}
	return h.Running()
}

// Stop requests graceful termination and always waits for the process to be
// reaped before returning.
//
// SIGINT goes to the process group first: with -e the launcher converts it
// into EOS, flushing and closing the current segment file. If the process is
// still alive after the grace window it is SIGKILLed.
func (s *Supervisor) Stop(h *Handle) error {
	if h == nil {
		return nil
	}

	log := s.log.With(zap.Int("pid", h.pid))

	select {
	case <-h.done:
		log.Debug("pipeline already exited")
		return nil
	default:
	}

	log.Info("sending SIGINT for EOS flush")
	if err := syscall.Kill(-h.pid, syscall.SIGINT); err != nil {
		log.Warn("SIGINT failed", zap.Error(err))
	}

	timer := time.NewTimer(s.stopGrace)
	defer timer.Stop()

	select {
	case <-h.done:
		log.Info("pipeline exited gracefully")
		return nil

	case <-timer.C:
		log.Warn("grace timeout expired, sending SIGKILL")
		s.kill(h, log)
		<-h.done
		return nil
	}
}

func (s *Supervisor) kill(h *Handle, log *zap.Logger) {
	if err := syscall.Kill(-h.pid, syscall.SIGKILL); err != nil {
		log.Error("SIGKILL failed", zap.Error(err))
	}
}
