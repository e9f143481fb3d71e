// Package ingest turns a producer's raw byte stream into validated records
// and applies them to the session registry and log writer.
package ingest

import (
	"bytes"
	"encoding/binary"

	"github.com/sirupsen/logrus"
)

// Framing selects how a byte stream is split into frames.
type Framing int

const (
	// FramingLines splits on newlines; an incomplete trailing fragment is
	// retained until the next chunk.
	FramingLines Framing = iota
	// FramingLengthPrefix reads a 4-byte little-endian unsigned length
	// header followed by that many bytes of payload.
	FramingLengthPrefix
)

// Decoder accumulates arbitrary partial deliveries and extracts every
// complete frame present in its buffer. It performs no I/O; feed it bytes as
// they arrive.
type Decoder struct {
	framing  Framing
	maxFrame int
	logger   *logrus.Entry

	buf []byte
	// skip counts payload bytes of an oversized frame still to be discarded.
	// int64 so a maximal declared length cannot wrap on 32-bit platforms.
	skip int64

	droppedFrames uint64
}

// NewDecoder creates a Decoder. maxFrame bounds the declared length of a
// single frame; anything larger is dropped without buffering its payload.
func NewDecoder(framing Framing, maxFrame int, logger *logrus.Entry) *Decoder {
	return &Decoder{
		framing:  framing,
		maxFrame: maxFrame,
		logger:   logger,
	}
}

// Feed appends a chunk and returns all complete frames now available, in
// order. Returned slices are copies; callers may retain them.
func (d *Decoder) Feed(chunk []byte) [][]byte {
	switch d.framing {
	case FramingLengthPrefix:
		return d.feedLengthPrefix(chunk)
	default:
		return d.feedLines(chunk)
	}
}

// DroppedFrames reports how many frames were discarded for exceeding the
// frame size bound.
func (d *Decoder) DroppedFrames() uint64 {
	return d.droppedFrames
}

// Pending reports whether an incomplete frame is buffered.
func (d *Decoder) Pending() bool {
	return len(d.buf) > 0 || d.skip > 0
}

func (d *Decoder) feedLines(chunk []byte) [][]byte {
	d.buf = append(d.buf, chunk...)

	var frames [][]byte
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break
		}
		line := d.buf[:idx]
		d.buf = d.buf[idx+1:]

		line = bytes.TrimSuffix(line, []byte{'\r'})
		if len(line) == 0 {
			continue
		}
		if len(line) > d.maxFrame {
			d.droppedFrames++
			d.logger.WithField("length", len(line)).Warn("Dropping oversized line frame")
			continue
		}
		frames = append(frames, append([]byte(nil), line...))
	}

	// An unbounded fragment with no newline in sight is the line-framing
	// equivalent of an oversized frame.
	if len(d.buf) > d.maxFrame {
		d.droppedFrames++
		d.logger.WithField("length", len(d.buf)).Warn("Dropping oversized unterminated line")
		d.buf = nil
	}
	return frames
}

func (d *Decoder) feedLengthPrefix(chunk []byte) [][]byte {
	var frames [][]byte
	for len(chunk) > 0 || d.ready() {
		// Discard payload bytes of a frame already rejected for size.
		if d.skip > 0 {
			n := d.skip
			if n > int64(len(chunk)) {
				n = int64(len(chunk))
			}
			chunk = chunk[n:]
			d.skip -= n
			if d.skip > 0 {
				return frames
			}
			continue
		}

		d.buf = append(d.buf, chunk...)
		chunk = nil

		// A header is only consumed once at least 4 bytes are buffered.
		if len(d.buf) < 4 {
			return frames
		}
		declared := binary.LittleEndian.Uint32(d.buf[:4])
		if uint64(declared) > uint64(d.maxFrame) {
			d.droppedFrames++
			d.logger.WithField("declared", declared).Warn("Dropping oversized length-prefixed frame")
			remainder := d.buf[4:]
			d.buf = nil
			d.skip = int64(declared)
			chunk = remainder
			continue
		}
		length := int(declared)

		// A frame is only parsed once its full declared length is buffered.
		if len(d.buf) < 4+length {
			return frames
		}
		frame := append([]byte(nil), d.buf[4:4+length]...)
		d.buf = append([]byte(nil), d.buf[4+length:]...)
		frames = append(frames, frame)
	}
	return frames
}

// ready reports whether the buffer may still hold a complete frame, so the
// extraction loop keeps going after a frame is cut even when the incoming
// chunk is spent.
func (d *Decoder) ready() bool {
	if len(d.buf) < 4 {
		return false
	}
	declared := uint64(binary.LittleEndian.Uint32(d.buf[:4]))
	return declared > uint64(d.maxFrame) || uint64(len(d.buf)) >= 4+declared
}
