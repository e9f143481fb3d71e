package ingest

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/grovetools/devlogs/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLinesDecoder(maxFrame int) *Decoder {
	return NewDecoder(FramingLines, maxFrame, logging.NewLogger("ingest-test"))
}

func newPrefixDecoder(maxFrame int) *Decoder {
	return NewDecoder(FramingLengthPrefix, maxFrame, logging.NewLogger("ingest-test"))
}

func prefixFrame(payload string) []byte {
	buf := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)
	return buf
}

func TestDecoderLinesWholeFrames(t *testing.T) {
	d := newLinesDecoder(1024)
	frames := d.Feed([]byte("{\"a\":1}\n{\"b\":2}\n"))
	require.Len(t, frames, 2)
	assert.Equal(t, `{"a":1}`, string(frames[0]))
	assert.Equal(t, `{"b":2}`, string(frames[1]))
	assert.False(t, d.Pending())
}

func TestDecoderLinesPartialDelivery(t *testing.T) {
	d := newLinesDecoder(1024)

	frames := d.Feed([]byte("{\"a\":"))
	assert.Empty(t, frames)
	assert.True(t, d.Pending())

	frames = d.Feed([]byte("1}\n{\"b\""))
	require.Len(t, frames, 1)
	assert.Equal(t, `{"a":1}`, string(frames[0]))
	assert.True(t, d.Pending())

	frames = d.Feed([]byte(":2}\n"))
	require.Len(t, frames, 1)
	assert.Equal(t, `{"b":2}`, string(frames[0]))
	assert.False(t, d.Pending())
}

func TestDecoderLinesCRLFAndBlank(t *testing.T) {
	d := newLinesDecoder(1024)
	frames := d.Feed([]byte("{\"a\":1}\r\n\n\r\n{\"b\":2}\n"))
	require.Len(t, frames, 2)
	assert.Equal(t, `{"a":1}`, string(frames[0]))
	assert.Equal(t, `{"b":2}`, string(frames[1]))
}

func TestDecoderLinesOversizedDropped(t *testing.T) {
	d := newLinesDecoder(8)
	big := bytes.Repeat([]byte("x"), 20)

	frames := d.Feed(append(append([]byte{}, big...), []byte("\n{\"a\":1}\n")...))
	require.Len(t, frames, 1)
	assert.Equal(t, `{"a":1}`, string(frames[0]))
	assert.Equal(t, uint64(1), d.DroppedFrames())
}

func TestDecoderLinesOversizedUnterminated(t *testing.T) {
	d := newLinesDecoder(8)

	assert.Empty(t, d.Feed(bytes.Repeat([]byte("x"), 20)))
	assert.Equal(t, uint64(1), d.DroppedFrames())
	assert.False(t, d.Pending())

	// The stream recovers once a framed record arrives.
	frames := d.Feed([]byte("{\"a\":1}\n"))
	require.Len(t, frames, 1)
	assert.Equal(t, `{"a":1}`, string(frames[0]))
}

func TestDecoderLengthPrefixWholeFrames(t *testing.T) {
	d := newPrefixDecoder(1024)

	chunk := append(prefixFrame(`{"a":1}`), prefixFrame(`{"b":2}`)...)
	frames := d.Feed(chunk)
	require.Len(t, frames, 2)
	assert.Equal(t, `{"a":1}`, string(frames[0]))
	assert.Equal(t, `{"b":2}`, string(frames[1]))
	assert.False(t, d.Pending())
}

// A frame split at any byte boundary must decode identically to the frame
// delivered whole, including splits inside the 4-byte header.
func TestDecoderLengthPrefixSplitEverywhere(t *testing.T) {
	whole := prefixFrame(`{"a":1}`)
	for cut := 1; cut < len(whole); cut++ {
		d := newPrefixDecoder(1024)
		frames := d.Feed(whole[:cut])
		frames = append(frames, d.Feed(whole[cut:])...)
		require.Len(t, frames, 1, "cut=%d", cut)
		assert.Equal(t, `{"a":1}`, string(frames[0]), "cut=%d", cut)
		assert.False(t, d.Pending())
	}
}

func TestDecoderLengthPrefixTailOfChunkStartsNextFrame(t *testing.T) {
	d := newPrefixDecoder(1024)
	second := prefixFrame(`{"b":2}`)

	chunk := append(prefixFrame(`{"a":1}`), second[:3]...)
	frames := d.Feed(chunk)
	require.Len(t, frames, 1)
	assert.True(t, d.Pending())

	frames = d.Feed(second[3:])
	require.Len(t, frames, 1)
	assert.Equal(t, `{"b":2}`, string(frames[0]))
}

// Declared lengths up to the full uint32 range must be rejected by the size
// bound, never wrapped into a small or negative count on any platform.
func TestDecoderLengthPrefixMaxUint32Declared(t *testing.T) {
	d := newPrefixDecoder(16)

	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, ^uint32(0))
	assert.Empty(t, d.Feed(append(header, []byte("garbage")...)))
	assert.Equal(t, uint64(1), d.DroppedFrames())
	assert.True(t, d.Pending())
}

func TestDecoderLengthPrefixOversizedSkipsPayload(t *testing.T) {
	d := newPrefixDecoder(16)

	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, 1<<20)
	assert.Empty(t, d.Feed(header))
	assert.Equal(t, uint64(1), d.DroppedFrames())

	// Payload of the rejected frame arrives over several chunks and is
	// discarded without buffering; the following frame survives intact.
	payload := bytes.Repeat([]byte("x"), 1<<20)
	assert.Empty(t, d.Feed(payload[:1<<19]))
	frames := d.Feed(append(payload[1<<19:], prefixFrame(`{"a":1}`)...))
	require.Len(t, frames, 1)
	assert.Equal(t, `{"a":1}`, string(frames[0]))
	assert.Equal(t, uint64(1), d.DroppedFrames())
}
