package ws

import (
	"errors"
	"fmt"
)

// 错误定义
var (
	ErrConnectionClosed = errors.New("ws: connection closed")
	ErrChannelFull      = errors.New("ws: send channel full")
	ErrAlreadyRunning   = errors.New("ws: connection already running")
	ErrInvalidConfig    = errors.New("ws: invalid config")
	ErrPongTimeout      = errors.New("ws: pong timeout")
)

// CloseError 对端关闭连接时携带的关闭码和原因
type CloseError struct {
	Code int
	Text string
}

func (e *CloseError) Error() string {
	return "ws: closed by peer: " + e.Text
}

// HandshakeError 握手被服务端拒绝（携带 http 状态码）
type HandshakeError struct {
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("ws: handshake failed with status %d: %v", e.StatusCode, e.Err)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}
