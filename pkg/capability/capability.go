// Package capability models cameras and their stream capabilities as reported
// by a ThorVision server.
//
// A Capability is an opaque handle: callers pick one from the catalog listing
// and hand it back to the session manager unchanged. The wire representation
// (String) is an implementation detail of the server protocol and should not
// be assembled by hand.
package capability

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Media types the local recorder pipeline can consume. Capabilities with any
// other media type are filtered out of catalog listings.
const (
	MediaTypeJPEG = "image/jpeg"
	MediaTypeRaw  = "video/x-raw"
)

// Capability is one media type/format/resolution/framerate combination a
// camera can stream.
type Capability struct {
	MediaType string `json:"media_type"`
	Format    string `json:"format,omitempty"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Framerate string `json:"framerate"` // fraction, e.g. "30/1"
}

// Camera is a single camera as enumerated by the server. The ID is
// server-assigned and stable for the lifetime of the server session.
// Cameras are immutable once fetched; refresh by re-querying the catalog.
type Camera struct {
	ID   int          `json:"id"`
	Name string       `json:"name"`
	Caps []Capability `json:"caps"`
}

// String renders the capability in the server's wire form:
//
//	media/type[,format=F],width=W,height=H,framerate=N/D
func (c Capability) String() string {
	var b strings.Builder
	b.WriteString(c.MediaType)
	if c.Format != "" {
		b.WriteString(",format=")
		b.WriteString(c.Format)
	}
	fmt.Fprintf(&b, ",width=%d,height=%d,framerate=%s", c.Width, c.Height, c.Framerate)
	return b.String()
}

// Recordable reports whether the local pipeline can record this capability.
func (c Capability) Recordable() bool {
	return c.MediaType == MediaTypeJPEG || c.MediaType == MediaTypeRaw
}

// Numerator returns the numerator of the framerate fraction, or 0 if the
// framerate is malformed. Used only for ordering.
func (c Capability) Numerator() int {
	num, _, _ := strings.Cut(c.Framerate, "/")
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil {
		return 0
	}
	return n
}

// SortedRecordable filters caps down to recordable media types and returns
// them in a stable order: grouped by (media type, format, width, height),
// framerates ascending by numerator within a group. The result is
// deterministic across calls so entries can be referenced positionally.
func SortedRecordable(caps []Capability) []Capability {
	out := make([]Capability, 0, len(caps))
	for _, c := range caps {
		if c.Recordable() {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.MediaType != b.MediaType {
			return a.MediaType < b.MediaType
		}
		if a.Format != b.Format {
			return a.Format < b.Format
		}
		if a.Width != b.Width {
			return a.Width < b.Width
		}
		if a.Height != b.Height {
			return a.Height < b.Height
		}
		return a.Numerator() < b.Numerator()
	})
	return out
}

// Describe renders a human-readable listing of a camera's recordable
// capabilities, grouped the same way SortedRecordable orders them. Intended
// for "pick from a displayed list" CLI workflows.
func Describe(cam Camera) string {
	caps := SortedRecordable(cam.Caps)

	var b strings.Builder
	fmt.Fprintf(&b, "Camera %d: %s\n", cam.ID, cam.Name)

	var group string
	for i, c := range caps {
		header := c.MediaType
		if c.Format != "" {
			header += ", format=" + c.Format
		}
		header += fmt.Sprintf(", resolution=%dx%d", c.Width, c.Height)

		if header != group {
			group = header
			b.WriteString(header)
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "    %d: %s\n", i, c.String())
	}
	return b.String()
}

// SanitizeName maps a camera display name to a file-system-safe token:
// every non-alphanumeric rune becomes an underscore.
func SanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
}
