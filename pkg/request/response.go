package request

import (
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// Response 已读完 body 的响应
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration // 从发出到读完 body
	Request    *http.Request
}

// IsSuccess 2xx
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsError 4xx 或 5xx
func (r *Response) IsError() bool {
	return r.StatusCode >= 400
}

// Get 按 gjson 路径读取 body 字段，body 不是 JSON 时返回空结果
func (r *Response) Get(path string) gjson.Result {
	return gjson.GetBytes(r.Body, path)
}

// String 原样返回 body
func (r *Response) String() string {
	return string(r.Body)
}

// Snippet 截取 body 前 n 字节，用于错误信息
func (r *Response) Snippet(n int) string {
	if len(r.Body) > n {
		return string(r.Body[:n])
	}
	return string(r.Body)
}
