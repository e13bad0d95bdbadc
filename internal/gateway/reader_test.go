package gateway

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/obs"
	"main/internal/shm"
	"main/pkg/websocket"
)

// wsPair upgrades the client half of a pipe and hands back the raw server
// half for scripted frames.
func wsPair(t *testing.T) (*websocket.Conn, net.Conn) {
	t.Helper()
	client, server := net.Pipe()

	connCh := make(chan *websocket.Conn, 1)
	go func() {
		c, err := websocket.Upgrade(context.Background(), client, "example.com", "/ws")
		if err != nil {
			t.Error(err)
			close(connCh)
			return
		}
		connCh <- c
	}()

	br := bufio.NewReader(server)
	_, err := http.ReadRequest(br)
	require.NoError(t, err)
	_, err = io.WriteString(server, "HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n\r\n")
	require.NoError(t, err)

	conn, ok := <-connCh
	require.True(t, ok)
	return conn, server
}

func serverFrame(opcode byte, payload []byte) []byte {
	frame := []byte{0x80 | opcode}
	switch {
	case len(payload) <= 125:
		frame = append(frame, byte(len(payload)))
	case len(payload) <= 0xffff:
		frame = append(frame, 126)
		var ext [2]byte
		binary.BigEndian.PutUint16(ext[:], uint16(len(payload)))
		frame = append(frame, ext[:]...)
	default:
		frame = append(frame, 127)
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], uint64(len(payload)))
		frame = append(frame, ext[:]...)
	}
	return append(frame, payload...)
}

func newReaderGateway() *Gateway {
	g := &Gateway{
		cfg:     Config{Symbol: "BNBUSDT"},
		bus:     &shm.Bus{},
		metrics: obs.NewMetrics(),
	}
	g.writer = NewEventWriter(&g.bus.Event, g.metrics, func(error) {})
	return g
}

func TestReaderPublishesMarketFrames(t *testing.T) {
	g := newReaderGateway()
	conn, server := wsPair(t)
	g.public = conn
	g.running.Store(true)

	g.wg.Add(1)
	go g.runReader(conn, "public stream", g.publicHandler())

	// Two data frames in a single write; a close frame follows later.
	payload := serverFrame(websocket.OpText, []byte(`{"e":"aggTrade","p":"250.10","q":"0.50","T":1700000000000,"m":false}`))
	payload = append(payload, serverFrame(websocket.OpText, []byte(`{"u":400900217,"b":"249.99","B":"3.0","a":"250.01","A":"2.5"}`))...)
	_, err := server.Write(payload)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return g.bus.Market.WriteIndex() == 2
	}, 2*time.Second, 5*time.Millisecond)

	var cur shm.MarketCursor
	var out shm.MarketFrame
	require.True(t, cur.Poll(&g.bus.Market, &out))
	assert.Equal(t, int32(shm.MarketTrade), out.Type)
	assert.Equal(t, 250.10, out.Price)
	assert.Equal(t, int32(1), out.Side)

	require.True(t, cur.Poll(&g.bus.Market, &out))
	assert.Equal(t, int32(shm.MarketBookTicker), out.Type)
	assert.Equal(t, 249.99, out.BidP)

	_, err = server.Write(serverFrame(websocket.OpClose, nil))
	require.NoError(t, err)
	g.wg.Wait()
	assert.False(t, g.running.Load())
}

func TestReaderAnswersPing(t *testing.T) {
	g := newReaderGateway()
	conn, server := wsPair(t)
	g.public = conn
	g.running.Store(true)

	g.wg.Add(1)
	go g.runReader(conn, "public stream", g.publicHandler())

	_, err := server.Write(serverFrame(websocket.OpPing, []byte("1700000000")))
	require.NoError(t, err)

	// The reader must answer with a masked PONG echoing the payload.
	var header [2]byte
	require.NoError(t, server.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = io.ReadFull(server, header[:])
	require.NoError(t, err)
	assert.Equal(t, byte(0x80|websocket.OpPong), header[0])
	require.Equal(t, byte(0x80), header[1]&0x80)

	n := int(header[1] & 0x7f)
	var key [4]byte
	_, err = io.ReadFull(server, key[:])
	require.NoError(t, err)
	echo := make([]byte, n)
	_, err = io.ReadFull(server, echo)
	require.NoError(t, err)
	websocket.MaskBytes(echo, key)
	assert.Equal(t, "1700000000", string(echo))

	g.stop("test done")
	g.wg.Wait()
}

func TestReaderHandlesPartialFrames(t *testing.T) {
	g := newReaderGateway()
	conn, server := wsPair(t)
	g.public = conn
	g.running.Store(true)

	g.wg.Add(1)
	go g.runReader(conn, "public stream", g.publicHandler())

	frame := serverFrame(websocket.OpText, []byte(`{"e":"aggTrade","p":"1.5","q":"2.0","T":5,"m":true}`))
	half := len(frame) / 2
	_, err := server.Write(frame[:half])
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, g.bus.Market.WriteIndex(), "half a frame must not publish")

	_, err = server.Write(frame[half:])
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return g.bus.Market.WriteIndex() == 1
	}, 2*time.Second, 5*time.Millisecond)

	g.stop("test done")
	g.wg.Wait()
}

func TestUserHandlerSubmitsFillEvents(t *testing.T) {
	g := newReaderGateway()
	conn, server := wsPair(t)
	g.user = conn
	g.running.Store(true)

	writerDone := make(chan struct{})
	go func() {
		g.writer.Run()
		close(writerDone)
	}()

	g.wg.Add(1)
	go g.runReader(conn, "user stream", g.userHandler())

	payload := `{"e":"ORDER_TRADE_UPDATE","o":{"c":"cid-1","X":"FILLED","L":"250.00","l":"0.10","q":"0.10","z":"0.10","T":1700000001000,"u":42,"m":true,"S":"BUY"}}`
	_, err := server.Write(serverFrame(websocket.OpText, []byte(payload)))
	require.NoError(t, err)

	var out shm.OrderEventFrame
	require.Eventually(t, func() bool {
		ok, err := g.bus.Event.Pop(&out)
		return err == nil && ok
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, int32(shm.EvtFullFill), out.EventType)
	assert.Equal(t, "cid-1", out.ClientOrderIDString())
	assert.Equal(t, 250.00, out.FillPrice)
	assert.Equal(t, uint64(42), out.LastUpdateID)
	assert.Equal(t, uint32(1), out.IsMaker)
	assert.Equal(t, int32(1), out.Side)
	assert.Equal(t, uint64(1700000001000000000), out.TimestampNs)

	g.stop("test done")
	g.wg.Wait()
	g.writer.Close()
	<-writerDone
}
