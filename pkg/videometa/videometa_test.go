package videometa

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ebmlSize encodes n as a minimal-length EBML data size.
func ebmlSize(n int) []byte {
	switch {
	case n < 0x7F:
		return []byte{0x80 | byte(n)}
	case n < 0x3FFF:
		return []byte{0x40 | byte(n>>8), byte(n)}
	default:
		return []byte{0x20 | byte(n>>16), byte(n >> 8), byte(n)}
	}
}

func ebmlID(id uint32) []byte {
	switch {
	case id <= 0xFF:
		return []byte{byte(id)}
	case id <= 0xFFFF:
		return []byte{byte(id >> 8), byte(id)}
	default:
		return []byte{byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id)}
	}
}

func element(id uint32, payload []byte) []byte {
	var b bytes.Buffer
	b.Write(ebmlID(id))
	b.Write(ebmlSize(len(payload)))
	b.Write(payload)
	return b.Bytes()
}

// packet builds a block payload carrying the embedded record at offset 6.
func packet(gstPTS, xdaq uint64, sample, ttlIn, ttlOut uint32) []byte {
	buf := make([]byte, minPacketLen+10) // trailing JPEG body bytes
	copy(buf[0:], []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10})
	rec := buf[recordOffset:]
	binary.LittleEndian.PutUint64(rec[0:], gstPTS)
	binary.LittleEndian.PutUint64(rec[8:], xdaq)
	binary.LittleEndian.PutUint32(rec[16:], sample)
	binary.LittleEndian.PutUint32(rec[20:], ttlIn)
	binary.LittleEndian.PutUint32(rec[24:], ttlOut)
	// spi perf counter and reserved tail, not surfaced
	binary.LittleEndian.PutUint32(rec[28:], 7)
	binary.LittleEndian.PutUint64(rec[32:], 0xDEADBEEF)
	return buf
}

// simpleBlock wraps a packet in a SimpleBlock body: track 1 vint, relative
// timecode, flags.
func simpleBlock(relTime int16, flags byte, payload []byte) []byte {
	var b bytes.Buffer
	b.WriteByte(0x81) // track 1
	var rt [2]byte
	binary.BigEndian.PutUint16(rt[:], uint16(relTime))
	b.Write(rt[:])
	b.WriteByte(flags)
	b.Write(payload)
	return b.Bytes()
}

func timecode(t uint64) []byte {
	return element(idTimecode, []byte{byte(t >> 8), byte(t)})
}

func TestExtract(t *testing.T) {
	var cluster1 bytes.Buffer
	cluster1.Write(timecode(1000))
	cluster1.Write(element(idSimpleBlock, simpleBlock(5, 0x80, packet(111, 222, 1, 0x3, 0x0))))
	cluster1.Write(element(idSimpleBlock, simpleBlock(38, 0x00, packet(333, 444, 2, 0x0, 0x1))))

	var cluster2 bytes.Buffer
	cluster2.Write(timecode(2000))
	cluster2.Write(element(idBlockGroup, element(idBlock, simpleBlock(-4, 0x00, packet(555, 666, 3, 0, 0)))))

	var seg bytes.Buffer
	seg.Write(element(idCluster, cluster1.Bytes()))
	seg.Write(element(idCluster, cluster2.Bytes()))

	var file bytes.Buffer
	file.Write(element(idEBML, []byte{0x42, 0x86, 0x81, 0x01})) // header stub
	file.Write(element(idSegment, seg.Bytes()))

	recs, err := Extract(&file)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	assert.Equal(t, FrameMetadata{
		FramePTS:      1005,
		GstreamerPTS:  111,
		XDAQTimestamp: 222,
		SampleIndex:   1,
		TTLIn:         0x3,
		TTLOut:        0x0,
	}, recs[0])

	assert.Equal(t, int64(1038), recs[1].FramePTS)
	assert.Equal(t, uint64(333), recs[1].GstreamerPTS)

	// BlockGroup/Block path, negative relative timecode.
	assert.Equal(t, int64(1996), recs[2].FramePTS)
	assert.Equal(t, uint64(666), recs[2].XDAQTimestamp)
}

func TestExtractSkipsShortAndLacedPackets(t *testing.T) {
	var cluster bytes.Buffer
	cluster.Write(timecode(0))
	cluster.Write(element(idSimpleBlock, simpleBlock(0, 0x80, []byte{0xFF, 0xD8, 0xFF}))) // too short
	cluster.Write(element(idSimpleBlock, simpleBlock(1, 0x02, packet(1, 2, 3, 0, 0))))    // laced
	cluster.Write(element(idSimpleBlock, simpleBlock(2, 0x80, packet(9, 8, 7, 0, 0))))

	var file bytes.Buffer
	file.Write(element(idSegment, element(idCluster, cluster.Bytes())))

	recs, err := Extract(&file)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, uint64(9), recs[0].GstreamerPTS)
	assert.Equal(t, int64(2), recs[0].FramePTS)
}

func TestExtractUnfinalizedSegment(t *testing.T) {
	var cluster bytes.Buffer
	cluster.Write(timecode(500))
	cluster.Write(element(idSimpleBlock, simpleBlock(0, 0x80, packet(42, 43, 44, 0, 0))))

	// Segment with unknown size, as written before the muxer finalizes.
	var file bytes.Buffer
	file.Write(ebmlID(idSegment))
	file.WriteByte(0xFF)
	file.Write(element(idCluster, cluster.Bytes()))

	recs, err := Extract(&file)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(500), recs[0].FramePTS)
	assert.Equal(t, uint64(42), recs[0].GstreamerPTS)
}

func TestExtractNoSegment(t *testing.T) {
	var file bytes.Buffer
	file.Write(element(idEBML, []byte{0x42, 0x86, 0x81, 0x01}))

	_, err := Extract(&file)
	assert.ErrorIs(t, err, ErrNoVideoData)
}

func TestExtractTruncated(t *testing.T) {
	var cluster bytes.Buffer
	cluster.Write(timecode(0))
	cluster.Write(element(idSimpleBlock, simpleBlock(0, 0x80, packet(1, 2, 3, 0, 0))))

	full := element(idSegment, element(idCluster, cluster.Bytes()))
	_, err := Extract(bytes.NewReader(full[:len(full)-10]))
	assert.Error(t, err)
}

func TestExtractFileMissing(t *testing.T) {
	_, err := ExtractFile("/nonexistent/video.mkv")
	assert.Error(t, err)
}
