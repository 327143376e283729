// Package catalog fetches and normalizes camera capability descriptions from
// a ThorVision server. It never mutates server state; all operations are
// idempotent and safe to call repeatedly.
package catalog

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kontex-neuro/thorvision-go/internal/rest"
	"github.com/kontex-neuro/thorvision-go/pkg/capability"
)

// Catalog queries the server's camera inventory.
type Catalog struct {
	rest *rest.Client
	log  *zap.Logger
}

// New returns a catalog bound to the given server base URL.
// httpClient and log may be nil.
func New(baseURL string, httpClient *http.Client, log *zap.Logger) *Catalog {
	if log == nil {
		log = zap.NewNop()
	}
	return &Catalog{
		rest: rest.New(baseURL, httpClient, log),
		log:  log.Named("catalog"),
	}
}

// ListCameras returns the server's current camera set. Any failure to obtain
// it, including a non-2xx answer or a malformed payload, surfaces as
// *rest.ConnectivityError.
func (c *Catalog) ListCameras(ctx context.Context) ([]capability.Camera, error) {
	var cameras []capability.Camera
	if err := c.rest.GetJSON(ctx, "/cameras", &cameras); err != nil {
		var serr *rest.StatusError
		if errors.As(err, &serr) {
			// The catalog endpoint has no rejection semantics; a non-2xx
			// answer means the server is not in a usable state.
			return nil, &rest.ConnectivityError{URL: serr.URL, Err: serr}
		}
		return nil, err
	}

	c.log.Debug("listed cameras", zap.Int("count", len(cameras)))
	return cameras, nil
}

// FormatCapabilities groups each camera's capabilities by media type, format
// and resolution, filtered to the media types the recorder supports, in a
// stable deterministic order. Entries can therefore be referenced
// positionally across calls.
//
// When cameras is nil the current set is fetched first.
func (c *Catalog) FormatCapabilities(ctx context.Context, cameras []capability.Camera) (map[int][]capability.Capability, error) {
	if cameras == nil {
		var err error
		if cameras, err = c.ListCameras(ctx); err != nil {
			return nil, err
		}
	}

	out := make(map[int][]capability.Capability, len(cameras))
	for _, cam := range cameras {
		out[cam.ID] = capability.SortedRecordable(cam.Caps)
	}
	return out, nil
}
