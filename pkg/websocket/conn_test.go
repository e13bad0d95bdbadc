package websocket

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/pkg/exception"
)

// fakeServer answers the upgrade on the server half of a pipe and then hands
// the raw connection to the test.
func fakeServer(t *testing.T, conn net.Conn, status string, ready chan<- *bufio.Reader) {
	t.Helper()
	br := bufio.NewReader(conn)
	req, err := http.ReadRequest(br)
	if err != nil {
		close(ready)
		return
	}
	key := req.Header.Get("Sec-WebSocket-Key")
	resp := "HTTP/1.1 " + status + "\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + acceptKey(key) + "\r\n\r\n"
	if _, err := io.WriteString(conn, resp); err != nil {
		close(ready)
		return
	}
	ready <- br
}

func TestUpgradeHandshake(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ready := make(chan *bufio.Reader, 1)
	go fakeServer(t, server, "101 Switching Protocols", ready)

	c, err := Upgrade(context.Background(), client, "fstream.binance.com", "/ws/bnbusdt@aggTrade")
	require.NoError(t, err)
	require.NotNil(t, c)
	<-ready
}

func TestUpgradeRejectsNon101(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ready := make(chan *bufio.Reader, 1)
	go fakeServer(t, server, "403 Forbidden", ready)

	_, err := Upgrade(context.Background(), client, "fstream.binance.com", "/ws/x")
	assert.ErrorIs(t, err, exception.ErrWebSocketHandshake)
}

func TestWriteTextMasksOnWire(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ready := make(chan *bufio.Reader, 1)
	go fakeServer(t, server, "101 Switching Protocols", ready)

	c, err := Upgrade(context.Background(), client, "example.com", "/ws")
	require.NoError(t, err)
	srv := <-ready

	const msg = `{"method":"SUBSCRIBE","params":["bnbusdt@aggTrade"],"id":1}`
	done := make(chan error, 1)
	go func() {
		done <- c.WriteText([]byte(msg))
	}()

	var header [2]byte
	_, err = io.ReadFull(srv, header[:])
	require.NoError(t, err)
	assert.Equal(t, byte(0x80|OpText), header[0])
	require.Equal(t, byte(0x80), header[1]&0x80, "client frames must be masked")
	payloadLen := int(header[1] & 0x7f)
	require.Equal(t, len(msg), payloadLen)

	var key [4]byte
	_, err = io.ReadFull(srv, key[:])
	require.NoError(t, err)
	payload := make([]byte, payloadLen)
	_, err = io.ReadFull(srv, payload)
	require.NoError(t, err)
	require.NoError(t, <-done)

	assert.NotEqual(t, msg, string(payload))
	MaskBytes(payload, key)
	assert.Equal(t, msg, string(payload))
}

func TestFillDrainsHandshakeBuffer(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ready := make(chan *bufio.Reader, 1)
	frame := appendServerFrame(nil, OpText, []byte(`{"u":1}`))
	go func() {
		br := bufio.NewReader(server)
		req, err := http.ReadRequest(br)
		if err != nil {
			close(ready)
			return
		}
		// Response and first frame in one write: the client's handshake
		// reader will buffer past the headers.
		resp := "HTTP/1.1 101 Switching Protocols\r\n" +
			"Upgrade: websocket\r\n" +
			"Connection: Upgrade\r\n" +
			"Sec-WebSocket-Accept: " + acceptKey(req.Header.Get("Sec-WebSocket-Key")) + "\r\n\r\n"
		if _, err := server.Write(append([]byte(resp), frame...)); err != nil {
			close(ready)
			return
		}
		ready <- br
	}()

	c, err := Upgrade(context.Background(), client, "example.com", "/ws")
	require.NoError(t, err)
	<-ready

	buf := make([]byte, 1024)
	n, err := c.Fill(buf)
	require.NoError(t, err)

	parsed, total, err := ParseFrame(buf[:n], testMaxFrame)
	require.NoError(t, err)
	require.Equal(t, len(frame), total)
	assert.Equal(t, `{"u":1}`, string(parsed.Payload))
}
