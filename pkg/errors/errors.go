package errors

import (
	"errors"
	"net/http"
)

// Error 带业务码的错误
type Error struct {
	Code     int    `json:"code"`    // 错误码
	Message  string `json:"message"` // 错误信息
	HttpCode int    `json:"-"`       // 对应的 http 状态码（无则为 0）
	Err      error  `json:"-"`       // 原始错误
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap 实现 errors.Unwrap 接口
func (e *Error) Unwrap() error {
	return e.Err
}

// New 创建错误
// httpCode 可选，默认 0（与 http 无关）
func New(code int, message string, httpCode ...int) *Error {
	hc := 0
	if len(httpCode) > 0 {
		hc = httpCode[0]
	}
	return &Error{
		Code:     code,
		HttpCode: hc,
		Message:  message,
	}
}

// WithError 附加原始错误（返回新实例，预定义错误不会被修改）
func (e *Error) WithError(err error) *Error {
	return &Error{
		Code:     e.Code,
		HttpCode: e.HttpCode,
		Message:  e.Message,
		Err:      err,
	}
}

// WithMessage 替换错误信息（返回新实例）
func (e *Error) WithMessage(message string) *Error {
	return &Error{
		Code:     e.Code,
		HttpCode: e.HttpCode,
		Message:  message,
		Err:      e.Err,
	}
}

// WithHttpCode 替换 http 状态码（返回新实例）
func (e *Error) WithHttpCode(code int) *Error {
	return &Error{
		Code:     e.Code,
		HttpCode: code,
		Message:  e.Message,
		Err:      e.Err,
	}
}

// Is 当 target 也是 *Error 时按 Code 比较，否则比较原始错误
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return errors.Is(e.Err, target)
}

// FromStatus 按 http 状态码映射预定义错误
// 2xx 返回 nil；未列出的状态码归为 ErrUnclassified
func FromStatus(status int) *Error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusBadRequest:
		return ErrBadRequest.WithHttpCode(status)
	case status == http.StatusUnauthorized:
		return ErrUnauthorized.WithHttpCode(status)
	case status == http.StatusForbidden:
		return ErrForbidden.WithHttpCode(status)
	case status == http.StatusNotFound:
		return ErrNotFound.WithHttpCode(status)
	case status >= 500 && status < 600:
		return ErrServer.WithHttpCode(status)
	default:
		return ErrUnclassified.WithHttpCode(status)
	}
}

// CodeOf 提取错误链中的业务码，无则返回 0
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// As 标准库 errors.As 的别名
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is 标准库 errors.Is 的别名
func Is(err error, target error) bool {
	return errors.Is(err, target)
}
