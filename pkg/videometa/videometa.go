// Package videometa extracts per-frame acquisition metadata from recorded
// Matroska files.
//
// The camera server embeds a fixed 40-byte record at byte offset 6 of every
// JPEG packet it emits: the GStreamer production timestamp, the XDAQ hardware
// timestamp, the rhythm sample index and the TTL line states. This package
// walks the Matroska container directly (Segment → Cluster → SimpleBlock),
// pulls that record out of each packet and pairs it with the frame's
// presentation timestamp.
package videometa

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Matroska element IDs, stored with their length-marker bits intact.
const (
	idEBML        = 0x1A45DFA3
	idSegment     = 0x18538067
	idCluster     = 0x1F43B675
	idTimecode    = 0xE7
	idSimpleBlock = 0xA3
	idBlockGroup  = 0xA0
	idBlock       = 0xA1
)

const (
	recordOffset = 6
	recordLen    = 40
	minPacketLen = recordOffset + recordLen
)

// FrameMetadata is one frame's worth of embedded acquisition metadata.
type FrameMetadata struct {
	// FramePTS is the frame's presentation timestamp from the container, in
	// Matroska timestamp-scale ticks (milliseconds at the default scale).
	FramePTS int64
	// GstreamerPTS is the GStreamer timestamp when the frame was produced on
	// the server, in nanoseconds.
	GstreamerPTS uint64
	// XDAQTimestamp is the FPGA timestamp from the XDAQ system.
	XDAQTimestamp uint64
	// SampleIndex is the sample index from the rhythm system.
	SampleIndex uint32
	// TTLIn and TTLOut are the states of the TTL input and output lines.
	TTLIn  uint32
	TTLOut uint32
}

// ErrNoVideoData is returned when the file contains no Matroska segment.
var ErrNoVideoData = errors.New("videometa: no segment found")

// ExtractFile extracts frame metadata from the Matroska file at path.
// Packets too short to carry a metadata record are skipped, matching frames
// produced before the server starts embedding records.
func ExtractFile(path string) ([]FrameMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Extract(f)
}

// Extract extracts frame metadata from Matroska data read from r.
func Extract(r io.Reader) ([]FrameMetadata, error) {
	p := &parser{br: bufio.NewReader(r)}
	if err := p.run(); err != nil {
		return nil, err
	}
	if !p.sawSegment {
		return nil, ErrNoVideoData
	}
	return p.records, nil
}

type parser struct {
	br  *bufio.Reader
	off int64

	sawSegment bool
	records    []FrameMetadata
}

func (p *parser) run() error {
	for {
		id, size, err := p.readElement()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if id != idSegment {
			if size < 0 {
				return fmt.Errorf("videometa: element 0x%X has unknown size", id)
			}
			if err := p.discard(size); err != nil {
				return err
			}
			continue
		}

		p.sawSegment = true
		if err := p.parseSegment(size); err != nil {
			return err
		}
	}
}

// parseSegment walks the segment's children. size may be -1 for an
// unfinalized segment, in which case children run to EOF.
func (p *parser) parseSegment(size int64) error {
	end := int64(-1)
	if size >= 0 {
		end = p.off + size
	}

	for end < 0 || p.off < end {
		id, childSize, err := p.readElement()
		if err == io.EOF && end < 0 {
			return nil
		}
		if err != nil {
			return err
		}
		if childSize < 0 {
			return fmt.Errorf("videometa: element 0x%X has unknown size", id)
		}

		if id == idCluster {
			if err := p.parseCluster(childSize); err != nil {
				return err
			}
			continue
		}
		if err := p.discard(childSize); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) parseCluster(size int64) error {
	end := p.off + size
	var clusterTime uint64

	for p.off < end {
		id, childSize, err := p.readElement()
		if err != nil {
			return err
		}
		if childSize < 0 {
			return fmt.Errorf("videometa: element 0x%X has unknown size", id)
		}

		switch id {
		case idTimecode:
			clusterTime, err = p.readUint(childSize)
			if err != nil {
				return err
			}

		case idSimpleBlock:
			if err := p.parseBlock(childSize, clusterTime); err != nil {
				return err
			}

		case idBlockGroup:
			if err := p.parseBlockGroup(childSize, clusterTime); err != nil {
				return err
			}

		default:
			if err := p.discard(childSize); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *parser) parseBlockGroup(size int64, clusterTime uint64) error {
	end := p.off + size
	for p.off < end {
		id, childSize, err := p.readElement()
		if err != nil {
			return err
		}
		if childSize < 0 {
			return fmt.Errorf("videometa: element 0x%X has unknown size", id)
		}
		if id == idBlock {
			if err := p.parseBlock(childSize, clusterTime); err != nil {
				return err
			}
			continue
		}
		if err := p.discard(childSize); err != nil {
			return err
		}
	}
	return nil
}

// parseBlock reads one (Simple)Block: track vint, signed 16-bit relative
// timecode, flags byte, then the packet payload with the embedded record.
func (p *parser) parseBlock(size int64, clusterTime uint64) error {
	start := p.off

	if _, err := p.readVint(); err != nil {
		return err
	}

	var hdr [3]byte
	if err := p.readFull(hdr[:]); err != nil {
		return err
	}
	relTime := int16(binary.BigEndian.Uint16(hdr[:2]))
	flags := hdr[2]

	remaining := size - (p.off - start)

	// Laced blocks pack several frames per block; the recording pipeline
	// never produces them, so skip rather than mis-slice.
	if flags&0x06 != 0 || remaining < minPacketLen {
		return p.discard(remaining)
	}

	var packet [minPacketLen]byte
	if err := p.readFull(packet[:]); err != nil {
		return err
	}
	if err := p.discard(remaining - minPacketLen); err != nil {
		return err
	}

	rec := packet[recordOffset : recordOffset+recordLen]
	p.records = append(p.records, FrameMetadata{
		FramePTS:      int64(clusterTime) + int64(relTime),
		GstreamerPTS:  binary.LittleEndian.Uint64(rec[0:8]),
		XDAQTimestamp: binary.LittleEndian.Uint64(rec[8:16]),
		SampleIndex:   binary.LittleEndian.Uint32(rec[16:20]),
		TTLIn:         binary.LittleEndian.Uint32(rec[20:24]),
		TTLOut:        binary.LittleEndian.Uint32(rec[24:28]),
	})
	return nil
}

// readElement reads one element header: ID plus data size. A size of -1
// means the element declares an unknown size.
func (p *parser) readElement() (id uint32, size int64, err error) {
	id, err = p.readID()
	if err != nil {
		return 0, 0, err
	}
	size, err = p.readSize()
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, 0, err
	}
	return id, size, nil
}

func (p *parser) readID() (uint32, error) {
	b, err := p.readByte()
	if err != nil {
		return 0, err
	}

	var n int
	switch {
	case b&0x80 != 0:
		n = 1
	case b&0x40 != 0:
		n = 2
	case b&0x20 != 0:
		n = 3
	case b&0x10 != 0:
		n = 4
	default:
		return 0, fmt.Errorf("videometa: invalid element ID byte 0x%02X at offset %d", b, p.off-1)
	}

	id := uint32(b)
	for i := 1; i < n; i++ {
		b, err = p.readByte()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return 0, err
		}
		id = id<<8 | uint32(b)
	}
	return id, nil
}

func (p *parser) readSize() (int64, error) {
	b, err := p.readByte()
	if err != nil {
		return 0, err
	}

	var n int
	for n = 1; n <= 8; n++ {
		if b&(0x80>>(n-1)) != 0 {
			break
		}
	}
	if n > 8 {
		return 0, fmt.Errorf("videometa: invalid size byte 0x%02X at offset %d", b, p.off-1)
	}

	val := int64(b) & int64(0xFF>>n)
	allOnes := val == int64(0xFF>>n)
	for i := 1; i < n; i++ {
		b, err = p.readByte()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return 0, err
		}
		if b != 0xFF {
			allOnes = false
		}
		val = val<<8 | int64(b)
	}
	if allOnes {
		return -1, nil
	}
	return val, nil
}

// readVint consumes one variable-length integer, marker bit stripped.
func (p *parser) readVint() (uint64, error) {
	v, err := p.readSize()
	if err != nil {
		return 0, err
	}
	return uint64(v), nil
}

// readUint reads a big-endian unsigned integer element body of n bytes.
func (p *parser) readUint(n int64) (uint64, error) {
	if n > 8 {
		return 0, fmt.Errorf("videometa: integer element of %d bytes", n)
	}
	var v uint64
	for i := int64(0); i < n; i++ {
		b, err := p.readByte()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return 0, err
		}
		v = v<<8 | uint64(b)
	}
	return v, nil
}

func (p *parser) readByte() (byte, error) {
	b, err := p.br.ReadByte()
	if err == nil {
		p.off++
	}
	return b, err
}

func (p *parser) readFull(buf []byte) error {
	n, err := io.ReadFull(p.br, buf)
	p.off += int64(n)
	return err
}

func (p *parser) discard(n int64) error {
	if n <= 0 {
		return nil
	}
	m, err := p.br.Discard(int(n))
	p.off += int64(m)
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
