package request

import (
	"net/http"
	"time"

	"github.com/tokmz/pusher/pkg/logger"
)

// Config HTTP 客户端配置
type Config struct {
	BaseURL       string            // 相对路径的前缀
	Timeout       time.Duration     // 单次请求总超时（默认 10s）
	Headers       map[string]string // 每个请求都带的头，请求级同名头覆盖
	Interceptors  []Interceptor
	Logger        logger.Logger
	EnableTracing bool              // 为每个请求创建 client span 并注入 traceparent
	Transport     http.RoundTripper // 为空时使用带代理环境变量的默认连接池
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
		Headers: map[string]string{
			"Accept":     "application/json",
			"User-Agent": "pusher-go",
		},
	}
}

func (c *Config) transport() http.RoundTripper {
	if c.Transport != nil {
		return c.Transport
	}
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
	}
}

// Option 配置项
type Option func(*Config)

// WithBaseURL 设置相对路径的前缀
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithTimeout 单次请求总超时，0 表示不限
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithHeader 追加默认请求头
func WithHeader(key, value string) Option {
	return func(c *Config) { c.Headers[key] = value }
}

// WithInterceptor 追加拦截器，按添加顺序执行
func WithInterceptor(i Interceptor) Option {
	return func(c *Config) { c.Interceptors = append(c.Interceptors, i) }
}

// WithLogger 失败请求写 Error 日志
func WithLogger(l logger.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithTracing 开启 OpenTelemetry 追踪
func WithTracing(enable bool) Option {
	return func(c *Config) { c.EnableTracing = enable }
}

// WithTransport 替换底层 RoundTripper，测试中常用
func WithTransport(t http.RoundTripper) Option {
	return func(c *Config) { c.Transport = t }
}
