package gstcmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderLinksElements(t *testing.T) {
	argv := NewBuilder().
		Element("srtclientsrc").
		Prop("uri", "srt://h:1").
		Element("queue").
		Element("fakesink").
		BuildArgs()

	assert.Equal(t, []string{
		Binary, "srtclientsrc", "uri=srt://h:1", "!", "queue", "!", "fakesink",
	}, argv)
}

func TestBuilderSkipsEmptyStringProps(t *testing.T) {
	argv := NewBuilder().Element("queue").Prop("name", "").BuildArgs()
	assert.Equal(t, []string{Binary, "queue"}, argv)
}

func TestBuilderAlwaysEmitsNumericProps(t *testing.T) {
	argv := NewBuilder().Element("splitmuxsink").Uint64Prop("max-size-time", 0).BuildArgs()
	assert.Contains(t, argv, "max-size-time=0")
}

func TestBuildArgsIsDefensiveCopy(t *testing.T) {
	b := NewBuilder().Element("queue")
	first := b.BuildArgs()
	first[0] = "mutated"
	assert.Equal(t, Binary, b.BuildArgs()[0])
}

func TestBuildArgsFullPipeline(t *testing.T) {
	argv := BuildArgs(Pipeline{
		Host:         "192.168.177.100",
		Port:         9001,
		MaxSizeTime:  10 * time.Second,
		MaxSizeBytes: 2_000_000_000,
		MaxFiles:     5,
		Location:     "/data/0_cam_20260823_120000-%02d.mkv",
	})

	assert.Equal(t, []string{
		Binary, "-e",
		"srtclientsrc", "uri=srt://192.168.177.100:9001", "latency=500",
		"!", "queue",
		"!", "jpegparse",
		"!", "splitmuxsink",
		"max-size-time=10000000000", // nanoseconds
		"max-size-bytes=2000000000",
		"max-files=5",
		"muxer-factory=matroskamux",
		"location=/data/0_cam_20260823_120000-%02d.mkv",
	}, argv)
}

func TestBuildArgsUnboundedCeilings(t *testing.T) {
	argv := BuildArgs(Pipeline{Host: "h", Port: 9002, Location: "/tmp/x-%02d.mkv"})

	// Zero ceilings are still emitted; splitmuxsink reads 0 as unlimited.
	assert.Contains(t, argv, "max-size-time=0")
	assert.Contains(t, argv, "max-size-bytes=0")
	assert.Contains(t, argv, "max-files=0")
}

func TestBuildStringQuoting(t *testing.T) {
	s := NewBuilder().Element("queue").Prop("name", "a b'c").BuildString()
	require.Contains(t, s, `'queue'`)
	assert.Contains(t, s, `'name=a b'\''c'`)
}
