package gstcmd

import (
	"fmt"
	"time"
)

// DefaultSRTLatencyMS is the srtclientsrc receive latency applied when the
// pipeline spec leaves Latency zero. Keeps slow receivers from being dropped
// by the server prematurely.
const DefaultSRTLatencyMS = 500

// Pipeline describes one JPEG recording pipeline: pull an SRT elementary
// stream, parse JPEG frames, and mux them into segmented Matroska files.
type Pipeline struct {
	// SRT source.
	Host      string
	Port      int
	LatencyMS int // 0 → DefaultSRTLatencyMS

	// Segment rotation ceilings. Zero means unbounded for that dimension;
	// reaching a ceiling rotates to the next output file.
	MaxSizeTime  time.Duration
	MaxSizeBytes int64
	MaxFiles     int

	// Location is the splitmuxsink output pattern, e.g.
	// "/data/0_cam_20260823_120000-%02d.mkv".
	Location string
}

// BuildArgs constructs the argv slice for invoking gst-launch-1.0.
//
// Ordering matches the hand-written pipeline this replaces, to minimize
// surprises:
//
//	gst-launch-1.0 -e srtclientsrc uri=srt://H:P latency=L ! queue !
//	jpegparse ! splitmuxsink max-size-time=NS max-size-bytes=B max-files=N
//	muxer-factory=matroskamux location=PATTERN
//
// The -e flag makes the launcher translate SIGINT into an EOS event so
// splitmuxsink flushes and finalizes the open segment on graceful stop.
func BuildArgs(p Pipeline) []string {
	return fromPipeline(p).BuildArgs()
}

// BuildString constructs the canonical shell-quoted command string for logs.
func BuildString(p Pipeline) string {
	return fromPipeline(p).BuildString()
}

func fromPipeline(p Pipeline) *Builder {
	latency := p.LatencyMS
	if latency == 0 {
		latency = DefaultSRTLatencyMS
	}

	return NewBuilder().
		WithFlag("-e").
		Element("srtclientsrc").
		Prop("uri", fmt.Sprintf("srt://%s:%d", p.Host, p.Port)).
		IntProp("latency", latency).
		Element("queue").
		Element("jpegparse").
		Element("splitmuxsink").
		Uint64Prop("max-size-time", uint64(p.MaxSizeTime.Nanoseconds())).
		Int64Prop("max-size-bytes", p.MaxSizeBytes).
		IntProp("max-files", p.MaxFiles).
		Prop("muxer-factory", "matroskamux").
		Prop("location", p.Location)
}
