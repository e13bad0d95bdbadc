// Package websocket implements the client side of RFC 6455 directly over
// TCP+TLS: blocking handshake, masked single-fragment writes, and in-place
// frame parsing out of a caller-owned receive buffer. No message assembly,
// no compression, no server role — only what an exchange feed needs.
package websocket

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/sha1"
	"crypto/tls"
	"encoding/base64"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/yanun0323/errors"

	"main/pkg/exception"
)

const (
	// DefaultDialTimeout bounds TCP connect plus TLS handshake.
	DefaultDialTimeout = 10 * time.Second
	// DefaultKeepAlive is the TCP keep-alive probe period.
	DefaultKeepAlive = 30 * time.Second
)

// Conn is one client WebSocket connection. Reads are single-threaded (the
// owning reader goroutine); writes are serialized by an internal mutex so the
// event loop can inject PINGs while the reader echoes PONGs.
type Conn struct {
	conn net.Conn
	br   *bufio.Reader
	mask uint32

	wmu sync.Mutex
}

// Dial establishes TCP (TCP_NODELAY, SO_KEEPALIVE), runs the TLS handshake
// against the system roots with SNI and mandatory verification, then upgrades
// to WebSocket. Everything up to the upgrade is synchronous.
func Dial(ctx context.Context, host, port, path string) (*Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, DefaultDialTimeout)
	defer cancel()

	dialer := net.Dialer{KeepAlive: DefaultKeepAlive}
	raw, err := dialer.DialContext(dialCtx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, errors.Wrap(err, "dial tcp")
	}
	if tcpConn, ok := raw.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(DefaultKeepAlive)
	}

	tlsConn := tls.Client(raw, &tls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	})
	if err := tlsConn.HandshakeContext(dialCtx); err != nil {
		_ = raw.Close()
		return nil, errors.Wrap(err, "tls handshake")
	}

	c, err := Upgrade(ctx, tlsConn, host, path)
	if err != nil {
		_ = tlsConn.Close()
		return nil, err
	}
	return c, nil
}

// Upgrade performs the HTTP/1.1 upgrade handshake on an established
// connection and returns the framed Conn. Split from Dial for tests.
func Upgrade(ctx context.Context, conn net.Conn, host, path string) (*Conn, error) {
	key, err := newSecKey()
	if err != nil {
		return nil, errors.Wrap(err, "generate websocket key")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://"+host+path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build upgrade request")
	}
	req.Host = host
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Sec-WebSocket-Key", key)
	req.Header.Set("Sec-WebSocket-Version", "13")

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}
	if err := req.Write(conn); err != nil {
		return nil, errors.Wrap(err, "write upgrade request")
	}

	br := bufio.NewReaderSize(conn, 32<<10)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		return nil, errors.Wrap(err, "read upgrade response")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusSwitchingProtocols {
		return nil, exception.ErrWebSocketHandshake
	}
	if accept := resp.Header.Get("Sec-WebSocket-Accept"); accept != "" && accept != acceptKey(key) {
		return nil, exception.ErrWebSocketHandshake
	}

	return &Conn{conn: conn, br: br, mask: seedMask()}, nil
}

// Fill performs one read into buf, returning the byte count. Short reads are
// expected; the caller accumulates bytes and parses frames out of its buffer.
// Bytes the handshake reader buffered ahead are drained first.
func (c *Conn) Fill(buf []byte) (int, error) {
	return c.br.Read(buf)
}

// SetReadDeadline bounds the next Fill.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// WriteText sends a masked single-fragment text frame. The payload bytes are
// masked in place before transmission.
func (c *Conn) WriteText(payload []byte) error { return c.writeFrame(OpText, payload) }

// WritePing sends an unsolicited heartbeat ping.
func (c *Conn) WritePing(payload []byte) error { return c.writeFrame(OpPing, payload) }

// WritePong answers a server ping, echoing its payload.
func (c *Conn) WritePong(payload []byte) error { return c.writeFrame(OpPong, payload) }

// WriteClose sends a close frame with the given status code.
func (c *Conn) WriteClose(code uint16, reason string) error {
	payload := make([]byte, 2+len(reason))
	payload[0] = byte(code >> 8)
	payload[1] = byte(code)
	copy(payload[2:], reason)
	return c.writeFrame(OpClose, payload)
}

// Close tears the connection down. A best-effort close frame is attempted
// first under a short write deadline; the TCP close is what actually matters.
func (c *Conn) Close() error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(250 * time.Millisecond))
	_ = c.WriteClose(1000, "")
	return c.conn.Close()
}

func (c *Conn) writeFrame(opcode byte, payload []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	var header [maxHeaderSize]byte
	key := c.nextMaskKey()
	n := buildHeader(header[:], opcode, len(payload), key)
	if _, err := c.conn.Write(header[:n]); err != nil {
		return errors.Wrap(err, "write frame header")
	}
	if len(payload) == 0 {
		return nil
	}
	MaskBytes(payload, key)
	if _, err := c.conn.Write(payload); err != nil {
		return errors.Wrap(err, "write frame payload")
	}
	return nil
}

// nextMaskKey steps a xorshift sequence; mask keys need to vary, not to be
// cryptographically strong.
func (c *Conn) nextMaskKey() [4]byte {
	c.mask ^= c.mask << 13
	c.mask ^= c.mask >> 17
	c.mask ^= c.mask << 5
	if c.mask == 0 {
		c.mask = 0x9e3779b9
	}
	return [4]byte{byte(c.mask), byte(c.mask >> 8), byte(c.mask >> 16), byte(c.mask >> 24)}
}

func seedMask() uint32 {
	n := uint32(time.Now().UnixNano())
	if n == 0 {
		return 0x9e3779b9
	}
	return n
}

func newSecKey() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf[:]), nil
}

func acceptKey(key string) string {
	h := sha1.New()
	_, _ = io.WriteString(h, key)
	_, _ = io.WriteString(h, "258EAFA5-E914-47DA-95CA-C5AB0DC85B11")
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
