// Package thorvision is the client entry point: it wires the capability
// catalog, the server stream API and the local recording session manager
// into one handle.
//
// Intended usage is scoped acquisition: acquire at construction, release on
// every exit path.
//
//	client, err := thorvision.New("http://192.168.177.100:8000")
//	if err != nil { ... }
//	defer client.Close()
//
// Close tears down every active session: the local recorders are stopped
// (flushing open segment files) and the server-side streams are released.
// For non-scoped usage WithSignalCleanup installs a best-effort backstop
// that runs the same teardown when the process receives a termination
// signal.
package thorvision

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kontex-neuro/thorvision-go/pkg/capability"
	"github.com/kontex-neuro/thorvision-go/pkg/catalog"
	"github.com/kontex-neuro/thorvision-go/pkg/recorder"
	"github.com/kontex-neuro/thorvision-go/pkg/session"
	"github.com/kontex-neuro/thorvision-go/pkg/streamapi"
)

// Option configures a Client.
type Option func(*config)

type config struct {
	log           *zap.Logger
	httpClient    *http.Client
	recorderOpts  []recorder.Option
	watchInterval *time.Duration
	signalCleanup bool
}

// WithLogger routes library logs through the given zap logger.
func WithLogger(log *zap.Logger) Option { return func(c *config) { c.log = log } }

// WithHTTPClient overrides the HTTP client used for all server calls.
func WithHTTPClient(hc *http.Client) Option { return func(c *config) { c.httpClient = hc } }

// WithRecorderOptions passes options through to the recording supervisor.
func WithRecorderOptions(opts ...recorder.Option) Option {
	return func(c *config) { c.recorderOpts = append(c.recorderOpts, opts...) }
}

// WithWatchInterval overrides the recorder crash-monitor interval
// (zero disables it).
func WithWatchInterval(d time.Duration) Option {
	return func(c *config) { c.watchInterval = &d }
}

// WithSignalCleanup installs a handler that runs Close when the process
// receives SIGINT, SIGTERM or SIGHUP, then re-delivers the signal so the
// default disposition still applies. Best-effort backstop only; scoped
// Close remains the primary mechanism.
func WithSignalCleanup() Option { return func(c *config) { c.signalCleanup = true } }

// Client talks to one ThorVision server.
type Client struct {
	log     *zap.Logger
	catalog *catalog.Catalog
	manager *session.Manager

	sigCh     chan os.Signal
	closeOnce sync.Once
	closeErr  error
}

// New returns a client bound to the given server base URL,
// e.g. "http://192.168.177.100:8000".
func New(baseURL string, opts ...Option) (*Client, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = zap.NewNop()
	}
	log := cfg.log.Named("thorvision")

	proxy, err := streamapi.New(baseURL, cfg.httpClient, log)
	if err != nil {
		return nil, err
	}

	var mgrOpts []session.ManagerOption
	if cfg.watchInterval != nil {
		mgrOpts = append(mgrOpts, session.WithWatchInterval(*cfg.watchInterval))
	}

	c := &Client{
		log:     log,
		catalog: catalog.New(baseURL, cfg.httpClient, log),
		manager: session.NewManager(log, proxy, recorder.New(log, cfg.recorderOpts...), mgrOpts...),
	}

	if cfg.signalCleanup {
		c.sigCh = make(chan os.Signal, 1)
		signal.Notify(c.sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
		go c.handleSignal()
	}
	return c, nil
}

// ListCameras returns the server's current camera set.
func (c *Client) ListCameras(ctx context.Context) ([]capability.Camera, error) {
	return c.catalog.ListCameras(ctx)
}

// FormatCapabilities returns each camera's recordable capabilities in a
// stable, positionally-addressable order. Nil cameras fetches the current
// set first.
func (c *Client) FormatCapabilities(ctx context.Context, cameras []capability.Camera) (map[int][]capability.Capability, error) {
	return c.catalog.FormatCapabilities(ctx, cameras)
}

// StartStreamWithRecording starts a server-side stream for the camera with
// the chosen capability and records it locally. The camera's display name
// feeds the recording file prefix unless Options overrides it.
func (c *Client) StartStreamWithRecording(ctx context.Context, cam capability.Camera, cap capability.Capability, opts session.Options) (*session.StreamSession, error) {
	if opts.CameraName == "" {
		opts.CameraName = cam.Name
	}
	return c.manager.StartStreamWithRecording(ctx, cam.ID, cap, opts)
}

// StopStream tears down the camera's session. No-op success if the camera
// has no session.
func (c *Client) StopStream(ctx context.Context, cameraID int) error {
	return c.manager.StopStream(ctx, cameraID)
}

// ListActiveStreams returns a read-only snapshot of the active sessions.
func (c *Client) ListActiveStreams() map[int]session.StreamInfo {
	return c.manager.ListActiveStreams()
}

// Close stops every active session and releases the client. Idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.sigCh != nil {
			signal.Stop(c.sigCh)
		}
		c.closeErr = c.manager.Close()
	})
	return c.closeErr
}

func (c *Client) handleSignal() {
	sig, ok := <-c.sigCh
	if !ok {
		return
	}
	c.log.Warn("termination signal received, cleaning up sessions", zap.String("signal", sig.String()))
	if err := c.Close(); err != nil {
		c.log.Warn("cleanup reported errors", zap.Error(err))
	}

	// Re-deliver so the process's default disposition still applies.
	if s, isSyscall := sig.(syscall.Signal); isSyscall {
		signal.Reset(s)
		_ = syscall.Kill(os.Getpid(), s)
	}
}
