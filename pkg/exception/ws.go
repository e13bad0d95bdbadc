package exception

import "errors"

// WS errors
var (
	ErrWebSocketHandshake       = errors.New("websocket: handshake failed")
	ErrWebSocketProtocol        = errors.New("websocket: protocol error")
	ErrWebSocketFrameTooLarge   = errors.New("websocket: frame exceeds buffer")
	ErrWebSocketConnectionClose = errors.New("websocket: connection closed")
)
