package request

import (
	"net/http"

	"github.com/tokmz/pusher/pkg/errors"
)

// 4000 段错误码：HTTP 客户端
var (
	// ErrRequestFailed 没有拿到响应，网络错误或拦截器拒绝
	ErrRequestFailed = errors.New(4001, "请求失败")
	// ErrTimeout 超时或上下文取消
	ErrTimeout = errors.New(4002, "请求超时", http.StatusGatewayTimeout)
	// ErrMarshal 请求体无法序列化
	ErrMarshal = errors.New(4003, "序列化失败")
	// ErrInvalidURL 地址缺少 scheme 或 host
	ErrInvalidURL = errors.New(4006, "无效的URL")
)
