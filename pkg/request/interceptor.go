package request

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/tokmz/pusher/pkg/logger"
)

// Interceptor 拦截器接口
type Interceptor interface {
	// BeforeRequest 请求发送前调用，返回错误将中止请求
	BeforeRequest(ctx context.Context, req *http.Request) error
	// AfterResponse 响应返回后调用
	AfterResponse(ctx context.Context, resp *Response) error
}

// InterceptorFunc 仅关心请求发送前的拦截器
type InterceptorFunc func(ctx context.Context, req *http.Request) error

func (f InterceptorFunc) BeforeRequest(ctx context.Context, req *http.Request) error {
	return f(ctx, req)
}

func (f InterceptorFunc) AfterResponse(context.Context, *Response) error {
	return nil
}

// loggingInterceptor 日志拦截器
type loggingInterceptor struct {
	log logger.Logger
}

// NewLoggingInterceptor 创建日志拦截器
func NewLoggingInterceptor(log logger.Logger) Interceptor {
	return &loggingInterceptor{log: log}
}

func (l *loggingInterceptor) BeforeRequest(ctx context.Context, req *http.Request) error {
	l.log.DebugContext(ctx, "http request",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
	)
	return nil
}

func (l *loggingInterceptor) AfterResponse(ctx context.Context, resp *Response) error {
	l.log.DebugContext(ctx, "http response",
		zap.String("method", resp.Request.Method),
		zap.String("url", resp.Request.URL.String()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", resp.Duration),
	)
	return nil
}

// NewAuthInterceptor 创建 Bearer 认证拦截器，tokenFunc 每次请求都会调用
func NewAuthInterceptor(tokenFunc func() string) Interceptor {
	return InterceptorFunc(func(_ context.Context, req *http.Request) error {
		if token := tokenFunc(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return nil
	})
}
