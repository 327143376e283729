//go:build linux

package thorvision

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kontex-neuro/thorvision-go/pkg/capability"
	"github.com/kontex-neuro/thorvision-go/pkg/recorder"
	"github.com/kontex-neuro/thorvision-go/pkg/session"
)

// recorderStub parses the splitmuxsink location pattern out of its argv and
// fakes two rotated segment files, then idles until SIGINT like a pipeline
// flushing on EOS.
const recorderStub = `#!/bin/sh
loc=""
for a in "$@"; do
  case "$a" in location=*) loc="${a#location=}" ;; esac
done
if [ -n "$loc" ]; then
  : > "$(printf "$loc" 0)"
  : > "$(printf "$loc" 1)"
fi
trap 'exit 0' INT
while true; do sleep 0.1; done
`

type fakeThorVision struct {
	mu      sync.Mutex
	stopped []int
}

func (f *fakeThorVision) serve(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/cameras", func(c *gin.Context) {
		c.JSON(http.StatusOK, []capability.Camera{{
			ID:   1,
			Name: "XDAQ Cam 1",
			Caps: []capability.Capability{
				{MediaType: capability.MediaTypeJPEG, Width: 1280, Height: 720, Framerate: "30/1"},
				{MediaType: "video/x-h264", Width: 1920, Height: 1080, Framerate: "30/1"},
			},
		}})
	})
	r.POST("/jpeg", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
	r.POST("/stop", func(c *gin.Context) {
		var req struct {
			ID int `json:"id"`
		}
		require.NoError(t, c.BindJSON(&req))
		f.mu.Lock()
		f.stopped = append(f.stopped, req.ID)
		f.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{"message": "stopped"})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	stub := filepath.Join(t.TempDir(), "gst-stub.sh")
	require.NoError(t, os.WriteFile(stub, []byte(recorderStub), 0o755))

	c, err := New(baseURL,
		WithWatchInterval(0),
		WithRecorderOptions(
			recorder.WithBinary(stub),
			recorder.WithLaunchGrace(100*time.Millisecond),
			recorder.WithStopGrace(2*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientRecordingLifecycle(t *testing.T) {
	fake := &fakeThorVision{}
	srv := fake.serve(t)
	client := newTestClient(t, srv.URL)
	ctx := context.Background()

	cams, err := client.ListCameras(ctx)
	require.NoError(t, err)
	require.Len(t, cams, 1)

	caps, err := client.FormatCapabilities(ctx, cams)
	require.NoError(t, err)
	require.Len(t, caps[1], 1) // h264 filtered out
	jpeg := caps[1][0]

	outDir := t.TempDir()
	sess, err := client.StartStreamWithRecording(ctx, cams[0], jpeg, session.Options{
		OutputDir: outDir,
		Rotation:  recorder.RotationPolicy{MaxDuration: 10 * time.Second},
		LogMode:   recorder.LogDiscard,
	})
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, sess.Status())

	active := client.ListActiveStreams()
	require.Len(t, active, 1)
	assert.Equal(t, session.StatusActive, active[1].Status)

	// The pipeline rotated at least once: two segment files exist.
	require.Eventually(t, func() bool {
		segs, globErr := filepath.Glob(filepath.Join(outDir, "*.mkv"))
		return globErr == nil && len(segs) >= 2
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, client.StopStream(ctx, 1))
	assert.Empty(t, client.ListActiveStreams())
	assert.Equal(t, []int{1}, fake.stopped)

	// Stopping again is a no-op.
	require.NoError(t, client.StopStream(ctx, 1))
	assert.Equal(t, []int{1}, fake.stopped)
}

func TestClientCloseCleansUpSessions(t *testing.T) {
	fake := &fakeThorVision{}
	srv := fake.serve(t)
	client := newTestClient(t, srv.URL)
	ctx := context.Background()

	cams, err := client.ListCameras(ctx)
	require.NoError(t, err)
	caps, err := client.FormatCapabilities(ctx, cams)
	require.NoError(t, err)

	_, err = client.StartStreamWithRecording(ctx, cams[0], caps[1][0], session.Options{
		OutputDir: t.TempDir(),
		LogMode:   recorder.LogDiscard,
	})
	require.NoError(t, err)

	require.NoError(t, client.Close())
	assert.Empty(t, client.ListActiveStreams())
	assert.Equal(t, []int{1}, fake.stopped)

	// Idempotent.
	require.NoError(t, client.Close())
}
