package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kontex-neuro/thorvision-go/internal/observability"
	"github.com/kontex-neuro/thorvision-go/pkg/capability"
	"github.com/kontex-neuro/thorvision-go/pkg/recorder"
	"github.com/kontex-neuro/thorvision-go/pkg/streamapi"
)

// ServerProxy is the server-side half of a session: start/stop stream
// requests against the remote server.
type ServerProxy interface {
	RequestStartStream(ctx context.Context, cameraID int, cap capability.Capability) (streamapi.Endpoint, error)
	RequestStopStream(ctx context.Context, cameraID int) error
}

// RecorderSupervisor is the local half: the supervised pipeline process.
type RecorderSupervisor interface {
	Start(ctx context.Context, spec recorder.Spec) (*recorder.Handle, error)
	Stop(h *recorder.Handle) error
	Poll(h *recorder.Handle) bool
}

const (
	// DefaultOutputDir receives recordings when Options leaves it empty.
	DefaultOutputDir = "./recordings"

	defaultWatchInterval = 2 * time.Second
	filePrefixTimeLayout = "20060102_150405"
)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithWatchInterval overrides how often the crash monitor polls active
// sessions. Zero disables the monitor.
func WithWatchInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.watchInterval = d }
}

// Manager owns the active-session registry and sequences session lifecycle
// transitions. Safe for concurrent use; mutating operations on the same
// camera ID are serialized via a per-ID gate, distinct cameras never block
// each other.
type Manager struct {
	log   *zap.Logger
	proxy ServerProxy
	rec   RecorderSupervisor

	mu       sync.RWMutex
	sessions map[int]*StreamSession

	gates sync.Map // map[int]*gate

	watchInterval time.Duration
	stopWatch     chan struct{}
	watchDone     sync.WaitGroup
	closeOnce     sync.Once

	now func() time.Time // stubbed in tests for stable file prefixes
}

// NewManager wires the session manager. A nil logger disables logging.
func NewManager(log *zap.Logger, proxy ServerProxy, rec RecorderSupervisor, opts ...ManagerOption) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		log:           log.Named("session"),
		proxy:         proxy,
		rec:           rec,
		sessions:      make(map[int]*StreamSession),
		watchInterval: defaultWatchInterval,
		stopWatch:     make(chan struct{}),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.watchInterval > 0 {
		m.watchDone.Add(1)
		go m.watch()
	}
	return m
}

// gate returns the per-camera gate, creating it on first use.
func (m *Manager) gate(cameraID int) *gate {
	v, _ := m.gates.LoadOrStore(cameraID, newGate())
	return v.(*gate)
}

// StartStreamWithRecording starts a server-side stream for the camera, then
// a local recording pipeline against the returned endpoint, and registers
// the session. The sequence either completes fully or rolls back fully:
//
//   - server start fails → error propagates, nothing was launched locally;
//   - recorder launch fails → a compensating server stop is issued before
//     the error propagates, so the server is never left emitting a stream
//     with no local consumer. If the compensation itself fails the returned
//     error is a *RollbackError wrapping both failures.
//
// A camera with a registered (or currently starting) session is rejected
// with ErrAlreadyStreaming.
func (m *Manager) StartStreamWithRecording(ctx context.Context, cameraID int, cap capability.Capability, opts Options) (*StreamSession, error) {
	g := m.gate(cameraID)
	if !g.TryLock() {
		// A start or stop for this camera is already in flight.
		return nil, fmt.Errorf("camera %d: %w", cameraID, ErrAlreadyStreaming)
	}
	defer g.Unlock()

	m.mu.RLock()
	_, exists := m.sessions[cameraID]
	m.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("camera %d: %w", cameraID, ErrAlreadyStreaming)
	}

	log := m.log.With(zap.Int("camera_id", cameraID))

	if cap.MediaType != capability.MediaTypeJPEG {
		// The recording pipeline parses JPEG; anything else likely stalls it.
		log.Warn("capability is not image/jpeg", zap.String("capability", cap.String()))
	}

	endpoint, err := m.proxy.RequestStartStream(ctx, cameraID, cap)
	if err != nil {
		observability.SessionStartFailures.WithLabelValues("server").Inc()
		return nil, err
	}

	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = DefaultOutputDir
	}
	name := opts.CameraName
	if name == "" {
		name = fmt.Sprintf("camera%d", cameraID)
	}
	prefix := fmt.Sprintf("%d_%s_%s",
		cameraID, capability.SanitizeName(name), m.now().Format(filePrefixTimeLayout))

	spec := recorder.Spec{
		Host:       endpoint.Host,
		Port:       endpoint.Port,
		LatencyMS:  opts.LatencyMS,
		OutputDir:  outputDir,
		FilePrefix: prefix,
		Rotation:   opts.Rotation,
		LogMode:    opts.LogMode,
	}

	handle, err := m.rec.Start(ctx, spec)
	if err != nil {
		observability.SessionStartFailures.WithLabelValues("recorder").Inc()
		log.Warn("recorder launch failed, rolling back server stream", zap.Error(err))

		// Compensation runs on a fresh context: the caller's ctx may already
		// be cancelled, but the server-side stream must still be stopped.
		if stopErr := m.proxy.RequestStopStream(context.Background(), cameraID); stopErr != nil {
			observability.SessionStartFailures.WithLabelValues("rollback").Inc()
			return nil, &RollbackError{CameraID: cameraID, Cause: err, StopErr: stopErr}
		}
		return nil, err
	}

	sess := &StreamSession{
		ID:         uuid.New(),
		CameraID:   cameraID,
		Endpoint:   endpoint,
		OutputDir:  outputDir,
		OutputPath: handle.OutputPath,
		LogPath:    handle.LogPath,
		Rotation:   opts.Rotation,
		LogMode:    opts.LogMode,
		StartedAt:  m.now(),
		handle:     handle,
	}
	sess.setStatus(StatusActive)

	m.mu.Lock()
	m.sessions[cameraID] = sess
	m.mu.Unlock()

	observability.SessionsStarted.Inc()
	observability.ActiveSessions.Inc()
	log.Info("session active",
		zap.String("session_id", sess.ID.String()),
		zap.String("endpoint", endpoint.String()),
		zap.String("output", sess.OutputPath))
	return sess, nil
}

// StopStream tears down the camera's session: local recorder first (no
// further writes), then the server-side stream, then unconditional removal
// from the registry. Partial failures are joined into the returned error but
// never block removal, since a stuck registry entry would block future starts.
//
// Idempotent: a camera with no session is a no-op success.
func (m *Manager) StopStream(ctx context.Context, cameraID int) error {
	g := m.gate(cameraID)
	g.Lock()
	defer g.Unlock()

	m.mu.RLock()
	sess, ok := m.sessions[cameraID]
	m.mu.RUnlock()
	if !ok {
		m.log.Debug("stop for camera with no session", zap.Int("camera_id", cameraID))
		return nil
	}

	log := m.log.With(zap.Int("camera_id", cameraID), zap.String("session_id", sess.ID.String()))
	sess.setStatus(StatusStopping)

	var errs []error
	if err := m.rec.Stop(sess.handle); err != nil {
		log.Warn("recorder stop failed", zap.Error(err))
		errs = append(errs, fmt.Errorf("stop recorder: %w", err))
	}
	if err := m.proxy.RequestStopStream(ctx, cameraID); err != nil {
		log.Warn("server stream stop failed", zap.Error(err))
		errs = append(errs, err)
	}

	m.mu.Lock()
	delete(m.sessions, cameraID)
	m.mu.Unlock()

	sess.setStatus(StatusStopped)
	observability.SessionsStopped.Inc()
	observability.ActiveSessions.Dec()
	log.Info("session stopped", zap.String("output", sess.OutputPath))

	return errors.Join(errs...)
}

// ListActiveStreams returns a read-only snapshot of the registry.
func (m *Manager) ListActiveStreams() map[int]StreamInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[int]StreamInfo, len(m.sessions))
	for id, sess := range m.sessions {
		out[id] = StreamInfo{
			Endpoint:   sess.Endpoint,
			Status:     sess.Status(),
			OutputPath: sess.OutputPath,
		}
	}
	return out
}

// Cleanup stops every registered session, best-effort and total: each stop
// is attempted regardless of how many others fail, and the registry is
// empty afterwards. Individual failures are joined into the returned error.
// Safe to call repeatedly.
func (m *Manager) Cleanup(ctx context.Context) error {
	m.mu.RLock()
	ids := make([]int, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	if len(ids) == 0 {
		return nil
	}
	m.log.Info("cleaning up sessions", zap.Int("count", len(ids)))

	var (
		errMu sync.Mutex
		errs  []error
	)
	g, ctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := m.StopStream(ctx, id); err != nil {
				errMu.Lock()
				errs = append(errs, fmt.Errorf("camera %d: %w", id, err))
				errMu.Unlock()
			}
			return nil // never cancel sibling stops
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// Close stops the crash monitor and cleans up all sessions. Used for scoped
// acquisition: acquire the manager at construction, release via Close on all
// exit paths.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.stopWatch)
		m.watchDone.Wait()
		err = m.Cleanup(context.Background())
	})
	return err
}

// watch periodically polls active sessions for recorder liveness.
func (m *Manager) watch() {
	defer m.watchDone.Done()

	ticker := time.NewTicker(m.watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopWatch:
			return
		case <-ticker.C:
			m.reapCrashed()
		}
	}
}

// reapCrashed transitions sessions whose recorder exited unexpectedly to
// Failed and stops their server-side stream so the server is not left
// emitting to a dead consumer. The entry stays registered until StopStream
// so callers observe the failure via ListActiveStreams. No auto-restart.
func (m *Manager) reapCrashed() {
	m.mu.RLock()
	var crashed []*StreamSession
	for _, sess := range m.sessions {
		if sess.Status() == StatusActive && !m.rec.Poll(sess.handle) {
			crashed = append(crashed, sess)
		}
	}
	m.mu.RUnlock()

	for _, sess := range crashed {
		sess.setStatus(StatusFailed)
		observability.RecorderCrashes.Inc()

		log := m.log.With(zap.Int("camera_id", sess.CameraID), zap.String("session_id", sess.ID.String()))
		log.Warn("recorder exited unexpectedly", zap.Strings("tail", sess.handle.Tail(5)))

		if err := m.proxy.RequestStopStream(context.Background(), sess.CameraID); err != nil {
			log.Warn("server stream stop after crash failed", zap.Error(err))
		}
	}
}
