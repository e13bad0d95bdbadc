package websocket

import (
	"crypto/rand"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/pkg/exception"
)

const testMaxFrame = 4 << 20

func appendServerFrame(dst []byte, opcode byte, payload []byte) []byte {
	dst = append(dst, 0x80|opcode)
	switch {
	case len(payload) <= 125:
		dst = append(dst, byte(len(payload)))
	case len(payload) <= 0xffff:
		dst = append(dst, 126)
		var ext [2]byte
		binary.BigEndian.PutUint16(ext[:], uint16(len(payload)))
		dst = append(dst, ext[:]...)
	default:
		dst = append(dst, 127)
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], uint64(len(payload)))
		dst = append(dst, ext[:]...)
	}
	return append(dst, payload...)
}

func TestMaskRoundTrip(t *testing.T) {
	for _, size := range []int{0, 1, 3, 4, 5, 125, 1000} {
		payload := make([]byte, size)
		_, err := rand.Read(payload)
		require.NoError(t, err)
		orig := append([]byte{}, payload...)

		var key [4]byte
		_, err = rand.Read(key[:])
		require.NoError(t, err)

		MaskBytes(payload, key)
		if size > 0 {
			assert.NotEqual(t, orig, payload)
		}
		MaskBytes(payload, key)
		assert.Equal(t, orig, payload)
	}
}

func TestParseFrameLengthForms(t *testing.T) {
	for _, size := range []int{0, 1, 125, 126, 65535, 65536, 70000} {
		payload := make([]byte, size)
		for i := range payload {
			payload[i] = byte(i)
		}
		buf := appendServerFrame(nil, OpText, payload)

		frame, n, err := ParseFrame(buf, testMaxFrame)
		require.NoError(t, err, "size %d", size)
		require.Equal(t, len(buf), n, "size %d", size)
		assert.True(t, frame.Fin)
		assert.Equal(t, byte(OpText), frame.Opcode)
		assert.Equal(t, payload, frame.Payload, "size %d", size)
	}
}

func TestParseFrameIncomplete(t *testing.T) {
	payload := make([]byte, 70000)
	full := appendServerFrame(nil, OpBinary, payload)

	for _, cut := range []int{0, 1, 2, 5, 9, 10, len(full) - 1} {
		_, n, err := ParseFrame(full[:cut], testMaxFrame)
		require.NoError(t, err, "cut %d", cut)
		assert.Zero(t, n, "cut %d", cut)
	}
}

func TestParseFrameBackToBack(t *testing.T) {
	buf := appendServerFrame(nil, OpText, []byte(`{"a":1}`))
	buf = appendServerFrame(buf, OpPing, []byte("hb"))
	buf = appendServerFrame(buf, OpText, []byte(`{"b":2}`))

	var got []Frame
	for len(buf) > 0 {
		frame, n, err := ParseFrame(buf, testMaxFrame)
		require.NoError(t, err)
		require.Positive(t, n)
		got = append(got, frame)
		buf = buf[n:]
	}
	require.Len(t, got, 3)
	assert.Equal(t, byte(OpPing), got[1].Opcode)
	assert.Equal(t, "hb", string(got[1].Payload))
	assert.Equal(t, `{"b":2}`, string(got[2].Payload))
}

func TestParseFrameMaskedInput(t *testing.T) {
	payload := []byte("masked payload")
	key := [4]byte{0xde, 0xad, 0xbe, 0xef}
	masked := append([]byte(nil), payload...)
	MaskBytes(masked, key)

	buf := []byte{0x80 | OpText, 0x80 | byte(len(payload))}
	buf = append(buf, key[:]...)
	buf = append(buf, masked...)

	frame, n, err := ParseFrame(buf, testMaxFrame)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	assert.Equal(t, payload, frame.Payload)
}

func TestParseFrameOversize(t *testing.T) {
	buf := appendServerFrame(nil, OpBinary, make([]byte, 2000))
	_, _, err := ParseFrame(buf, 1024)
	assert.ErrorIs(t, err, exception.ErrWebSocketFrameTooLarge)
}

func TestParseFrameControlViolations(t *testing.T) {
	// Fragmented ping: FIN=0 on a control opcode.
	buf := []byte{OpPing, 0x00}
	_, _, err := ParseFrame(buf, testMaxFrame)
	assert.ErrorIs(t, err, exception.ErrWebSocketProtocol)

	// Reserved bits set.
	buf = []byte{0x80 | 0x40 | OpText, 0x00}
	_, _, err = ParseFrame(buf, testMaxFrame)
	assert.ErrorIs(t, err, exception.ErrWebSocketProtocol)
}

func TestBuildHeaderParsesBack(t *testing.T) {
	for _, size := range []int{0, 125, 126, 65535, 65536, 70000} {
		var header [maxHeaderSize]byte
		key := [4]byte{1, 2, 3, 4}
		n := buildHeader(header[:], OpText, size, key)

		payload := make([]byte, size)
		MaskBytes(payload, key)
		buf := append(append([]byte(nil), header[:n]...), payload...)

		frame, total, err := ParseFrame(buf, testMaxFrame)
		require.NoError(t, err, "size %d", size)
		require.Equal(t, len(buf), total)
		assert.Equal(t, make([]byte, size), frame.Payload, "mask must cancel out")
	}
}
