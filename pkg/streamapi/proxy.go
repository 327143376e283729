// Package streamapi issues start/stop stream requests against a ThorVision
// server and tracks the SRT transport endpoints allocated per camera.
//
// Contract notes:
//   - Start failures (rejection or unreachable server) surface as *StartError
//     so a caller can tell server-side failures apart from local recorder
//     failures and decide whether a rollback is needed.
//   - Stop is idempotent at the protocol level: a "stream not found" answer
//     counts as success, which keeps teardown robust.
package streamapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"github.com/kontex-neuro/thorvision-go/internal/rest"
	"github.com/kontex-neuro/thorvision-go/pkg/capability"
)

// Default SRT port range offered to the server, one port per active stream.
const (
	DefaultPortMin = 9001
	DefaultPortMax = 9099
)

// Endpoint is the transport address at which the server emits a started
// stream's data.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string { return fmt.Sprintf("%s:%d", e.Host, e.Port) }

// StartError reports that a server-side stream could not be started for a
// camera: the server rejected the camera/capability pair or was unreachable.
type StartError struct {
	CameraID int
	Err      error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start stream for camera %d: %v", e.CameraID, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// StopError reports that the server rejected or failed a stop request.
type StopError struct {
	CameraID int
	Err      error
}

func (e *StopError) Error() string {
	return fmt.Sprintf("stop stream for camera %d: %v", e.CameraID, e.Err)
}

func (e *StopError) Unwrap() error { return e.Err }

// startStreamReq mirrors the server's POST /jpeg payload.
type startStreamReq struct {
	ID         int    `json:"id"`
	Port       int    `json:"port"`
	Capability string `json:"capability"`
}

// stopStreamReq mirrors the server's POST /stop payload.
type stopStreamReq struct {
	ID int `json:"id"`
}

// Proxy is the client-side face of the server's stream session API.
// Safe for concurrent use.
type Proxy struct {
	rest  *rest.Client
	host  string // host the server emits SRT streams on
	ports *portAllocator
	log   *zap.Logger

	mu       sync.Mutex
	byCamera map[int]int // camera ID → allocated port
}

// New returns a proxy bound to the given server base URL. The stream host is
// derived from the base URL. httpClient and log may be nil.
func New(baseURL string, httpClient *http.Client, log *zap.Logger) (*Proxy, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("invalid server base URL %q", baseURL)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Proxy{
		rest:     rest.New(baseURL, httpClient, log),
		host:     u.Hostname(),
		ports:    newPortAllocator(DefaultPortMin, DefaultPortMax),
		log:      log.Named("streamapi"),
		byCamera: make(map[int]int),
	}, nil
}

// RequestStartStream asks the server to start emitting the given capability
// for the camera and returns the endpoint the stream will appear on. The
// allocated port is released again if the server refuses.
func (p *Proxy) RequestStartStream(ctx context.Context, cameraID int, cap capability.Capability) (Endpoint, error) {
	port, err := p.ports.alloc()
	if err != nil {
		return Endpoint{}, &StartError{CameraID: cameraID, Err: err}
	}

	req := startStreamReq{ID: cameraID, Port: port, Capability: cap.String()}
	if err := p.rest.PostJSON(ctx, "/jpeg", req, nil); err != nil {
		p.ports.release(port)
		return Endpoint{}, &StartError{CameraID: cameraID, Err: err}
	}

	p.mu.Lock()
	p.byCamera[cameraID] = port
	p.mu.Unlock()

	ep := Endpoint{Host: p.host, Port: port}
	p.log.Info("server stream started",
		zap.Int("camera_id", cameraID),
		zap.String("endpoint", ep.String()),
		zap.String("capability", cap.String()))
	return ep, nil
}

// RequestStopStream asks the server to stop the camera's stream. A "stream
// not found" answer is success: the end state (no stream) is what was asked
// for. The camera's port is returned to the pool regardless of outcome so a
// wedged server entry cannot exhaust the local port space.
func (p *Proxy) RequestStopStream(ctx context.Context, cameraID int) error {
	p.mu.Lock()
	port, tracked := p.byCamera[cameraID]
	delete(p.byCamera, cameraID)
	p.mu.Unlock()
	if tracked {
		p.ports.release(port)
	}

	if err := p.rest.PostJSON(ctx, "/stop", stopStreamReq{ID: cameraID}, nil); err != nil {
		var serr *rest.StatusError
		if errors.As(err, &serr) && serr.NotFound() {
			p.log.Debug("stop for unknown stream treated as success", zap.Int("camera_id", cameraID))
			return nil
		}
		return &StopError{CameraID: cameraID, Err: err}
	}

	p.log.Info("server stream stopped", zap.Int("camera_id", cameraID))
	return nil
}
