package exception

import "errors"

var (
	ErrOrderUnsupportedAction = errors.New("order: unsupported action")
	ErrOrderUnsupportedType   = errors.New("order: unsupported type")
	ErrOrderInvalidRequest    = errors.New("order: invalid request")
	ErrOrderQueueFull         = errors.New("order: submission queue full")
	ErrOrderQueueClosed       = errors.New("order: submission queue closed")
	ErrOrderDecodeResponse    = errors.New("order: decode response body")
	ErrListenKeyMissing       = errors.New("order: listen key missing in response")
)
