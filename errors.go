package pusher

import (
	"context"
	"errors"
	"fmt"
	"net"

	perrors "github.com/tokmz/pusher/pkg/errors"
)

// 错误定义
var (
	ErrClientClosed     = errors.New("pusher: client closed")
	ErrAlreadyConnected = errors.New("pusher: already connected")
	ErrNotConnected     = errors.New("pusher: not connected")
	ErrInvalidConfig    = errors.New("pusher: invalid config")
	ErrEmptyChannel     = errors.New("pusher: empty channel name")
	ErrReservedEvent    = errors.New("pusher: reserved event name")
)

// AuthErrorKind 授权失败分类
type AuthErrorKind int

const (
	AuthUnclassified AuthErrorKind = iota
	AuthBadRequest
	AuthUnauthorized
	AuthForbidden
	AuthNotFound
	AuthServerError
	AuthNetworkFailure
)

func (k AuthErrorKind) String() string {
	switch k {
	case AuthBadRequest:
		return "bad_request"
	case AuthUnauthorized:
		return "unauthorized"
	case AuthForbidden:
		return "forbidden"
	case AuthNotFound:
		return "not_found"
	case AuthServerError:
		return "server_error"
	case AuthNetworkFailure:
		return "network_failure"
	default:
		return "unclassified"
	}
}

// coded 对应的业务错误码
func (k AuthErrorKind) coded() *perrors.Error {
	switch k {
	case AuthBadRequest:
		return perrors.ErrBadRequest
	case AuthUnauthorized:
		return perrors.ErrUnauthorized
	case AuthForbidden:
		return perrors.ErrForbidden
	case AuthNotFound:
		return perrors.ErrNotFound
	case AuthServerError:
		return perrors.ErrServer
	case AuthNetworkFailure:
		return perrors.ErrNetwork
	default:
		return perrors.ErrUnclassified
	}
}

// ClassifyStatus 按 http 状态码分类，未列出的状态码（含 2xx）为 AuthUnclassified
func ClassifyStatus(status int) AuthErrorKind {
	e := perrors.FromStatus(status)
	if e == nil {
		return AuthUnclassified
	}
	return kindOfCode(e.Code)
}

func kindOfCode(code int) AuthErrorKind {
	switch code {
	case perrors.ErrBadRequest.Code:
		return AuthBadRequest
	case perrors.ErrUnauthorized.Code:
		return AuthUnauthorized
	case perrors.ErrForbidden.Code:
		return AuthForbidden
	case perrors.ErrNotFound.Code:
		return AuthNotFound
	case perrors.ErrServer.Code:
		return AuthServerError
	case perrors.ErrNetwork.Code:
		return AuthNetworkFailure
	default:
		return AuthUnclassified
	}
}

// AuthError 频道授权失败
// errors.Is(err, errors.ErrUnauthorized) 等按分类匹配
type AuthError struct {
	Kind    AuthErrorKind
	Channel string
	Status  int    // http 状态码（无则为 0）
	Body    string // 授权服务响应体（可能被截断）
	Err     error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("pusher: authorize %q: %s", e.Channel, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error {
	return e.Kind.coded().WithHttpCode(e.Status).WithError(e.Err)
}

// asAuthError 将授权器返回的任意错误归一为 *AuthError
func asAuthError(channel string, err error) *AuthError {
	var ae *AuthError
	if errors.As(err, &ae) {
		if ae.Channel == "" {
			cp := *ae
			cp.Channel = channel
			return &cp
		}
		return ae
	}

	out := &AuthError{Kind: AuthUnclassified, Channel: channel, Err: err}

	var ne net.Error
	var coded *perrors.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &ne):
		out.Kind = AuthNetworkFailure
	case errors.As(err, &coded):
		out.Kind = kindOfCode(coded.Code)
		out.Status = coded.HttpCode
	}
	return out
}

// ProtocolError 无法解析的入站帧，该帧被丢弃
type ProtocolError struct {
	Reason string
	Frame  []byte
}

func (e *ProtocolError) Error() string {
	return "pusher: protocol error: " + e.Reason
}

// HandlerError 处理函数返回错误或 panic
type HandlerError struct {
	Channel string
	Event   string
	Panic   any
	Err     error
}

func (e *HandlerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("pusher: handler panic on %s/%s: %v", e.Channel, e.Event, e.Panic)
	}
	return fmt.Sprintf("pusher: handler failed on %s/%s: %v", e.Channel, e.Event, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// TransportError 连接建立或读写失败，当前连接结束
type TransportError struct {
	Op  string // dial / read / write
	Err error
}

func (e *TransportError) Error() string {
	return "pusher: transport " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
