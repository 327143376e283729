package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kontex-neuro/thorvision-go/internal/rest"
	"github.com/kontex-neuro/thorvision-go/pkg/capability"
)

func fakeServer(t *testing.T, cameras []capability.Camera) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/cameras", func(c *gin.Context) {
		c.JSON(http.StatusOK, cameras)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func twoCameras() []capability.Camera {
	shared := []capability.Capability{
		{MediaType: "video/x-h264", Width: 1920, Height: 1080, Framerate: "30/1"},
		{MediaType: capability.MediaTypeJPEG, Width: 1280, Height: 720, Framerate: "60/1"},
		{MediaType: capability.MediaTypeJPEG, Width: 1280, Height: 720, Framerate: "30/1"},
	}
	return []capability.Camera{
		{ID: 0, Name: "XDAQ Cam 0", Caps: shared},
		{ID: 1, Name: "XDAQ Cam 1", Caps: append([]capability.Capability{
			{MediaType: capability.MediaTypeRaw, Format: "YUY2", Width: 640, Height: 480, Framerate: "30/1"},
		}, shared...)},
	}
}

func TestListCameras(t *testing.T) {
	srv := fakeServer(t, twoCameras())
	cat := New(srv.URL, nil, nil)

	cams, err := cat.ListCameras(context.Background())
	require.NoError(t, err)
	require.Len(t, cams, 2)
	assert.Equal(t, 0, cams[0].ID)
	assert.Equal(t, "XDAQ Cam 1", cams[1].Name)
	assert.Len(t, cams[1].Caps, 4)
}

func TestListCamerasUnreachable(t *testing.T) {
	srv := fakeServer(t, nil)
	srv.Close() // connection refused from here on

	cat := New(srv.URL, nil, nil)
	_, err := cat.ListCameras(context.Background())

	var cerr *rest.ConnectivityError
	require.ErrorAs(t, err, &cerr)
}

func TestListCamerasMalformedPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/cameras", func(c *gin.Context) {
		c.String(http.StatusOK, "this is not json")
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	cat := New(srv.URL, nil, nil)
	_, err := cat.ListCameras(context.Background())

	var cerr *rest.ConnectivityError
	require.ErrorAs(t, err, &cerr)
}

func TestListCamerasServerError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/cameras", func(c *gin.Context) {
		c.String(http.StatusInternalServerError, "boom")
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	cat := New(srv.URL, nil, nil)
	_, err := cat.ListCameras(context.Background())

	var cerr *rest.ConnectivityError
	require.ErrorAs(t, err, &cerr)
}

func TestFormatCapabilitiesFiltersAndIsDeterministic(t *testing.T) {
	srv := fakeServer(t, twoCameras())
	cat := New(srv.URL, nil, nil)
	ctx := context.Background()

	first, err := cat.FormatCapabilities(ctx, nil)
	require.NoError(t, err)
	second, err := cat.FormatCapabilities(ctx, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	// h264 filtered out everywhere.
	for _, caps := range first {
		for _, c := range caps {
			assert.True(t, c.Recordable())
		}
	}

	// Camera 0: two jpeg entries, framerate ascending.
	require.Len(t, first[0], 2)
	assert.Equal(t, "30/1", first[0][0].Framerate)
	assert.Equal(t, "60/1", first[0][1].Framerate)

	// Camera 1 also keeps its raw capability.
	require.Len(t, first[1], 3)
	assert.Equal(t, capability.MediaTypeRaw, first[1][2].MediaType)
}

func TestFormatCapabilitiesWithProvidedCameras(t *testing.T) {
	cat := New("http://unused.invalid", nil, nil)

	got, err := cat.FormatCapabilities(context.Background(), twoCameras())
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
