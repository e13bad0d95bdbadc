package gateway

import (
	"errors"
	"net"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/market"
	"main/internal/shm"
	"main/internal/userstream"
	"main/pkg/websocket"
)

// recvBufferSize is the fixed per-connection receive buffer. A single frame
// larger than this kills the connection.
const recvBufferSize = 4 << 20

// readPollInterval doubles as the loop's liveness check period: a blocked
// read wakes at least this often to notice the running flag dropping.
const readPollInterval = 100 * time.Millisecond

// runReader drives one connection: read at the buffer tail, parse every
// complete frame in place, slide the trailing partial frame to the front and
// keep the offset for the next readiness. handle gets each data payload.
func (g *Gateway) runReader(conn *websocket.Conn, name string, handle func(payload []byte)) {
	defer g.wg.Done()

	buf := make([]byte, recvBufferSize)
	offset := 0

	for g.running.Load() {
		_ = conn.SetReadDeadline(time.Now().Add(readPollInterval))
		n, err := conn.Fill(buf[offset:])
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			g.stop(name + " read failed: " + err.Error())
			return
		}
		offset += n

		consumed := 0
		for {
			frame, size, perr := websocket.ParseFrame(buf[consumed:offset], recvBufferSize)
			if perr != nil {
				g.stop(name + " framing failed: " + perr.Error())
				return
			}
			if size == 0 {
				break
			}
			if !g.handleFrame(conn, name, frame, handle) {
				return
			}
			consumed += size
		}
		if consumed > 0 {
			copy(buf, buf[consumed:offset])
			offset -= consumed
		}
	}
}

func (g *Gateway) handleFrame(conn *websocket.Conn, name string, frame websocket.Frame, handle func(payload []byte)) bool {
	switch frame.Opcode {
	case websocket.OpPing:
		if err := conn.WritePong(frame.Payload); err != nil {
			logs.Warnf("%s pong failed: %+v", name, err)
		}
		g.metrics.PongAnswered()
	case websocket.OpClose:
		g.stop(name + " received close frame")
		return false
	case websocket.OpText, websocket.OpBinary:
		handle(frame.Payload)
	default:
		// Continuation and reserved opcodes: the subscribed streams never
		// fragment, skip quietly.
	}
	return true
}

// publicHandler parses market payloads and publishes valid frames. The
// reader goroutine is the ring's only producer.
func (g *Gateway) publicHandler() func(payload []byte) {
	var frame shm.MarketFrame
	return func(payload []byte) {
		if !market.Parse(payload, &frame) {
			g.metrics.MarketDrop()
			return
		}
		g.bus.Market.Publish(&frame)
		g.flow.Record(&frame)
		g.metrics.MarketFrame()
	}
}

// userHandler parses order updates and funnels them through the writer.
func (g *Gateway) userHandler() func(payload []byte) {
	var event shm.OrderEventFrame
	return func(payload []byte) {
		if !userstream.Parse(payload, &event) {
			return
		}
		if err := g.writer.Submit(&event); err != nil {
			logs.Errorf("submit fill event, err: %+v", err)
		}
	}
}
