package ws

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tokmz/pusher/pkg/logger"
)

// Config 连接配置
type Config struct {
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout"`  // 握手超时
	ReadBufferSize    int           `mapstructure:"read_buffer_size"`   // 读缓冲区大小
	WriteBufferSize   int           `mapstructure:"write_buffer_size"`  // 写缓冲区大小
	MaxMessageSize    int64         `mapstructure:"max_message_size"`   // 最大消息大小
	EnableCompression bool          `mapstructure:"enable_compression"` // 是否协商压缩

	// 心跳配置
	PingInterval time.Duration `mapstructure:"ping_interval"` // ping 间隔
	PongWait     time.Duration `mapstructure:"pong_wait"`     // 等待 pong 的读超时
	WriteWait    time.Duration `mapstructure:"write_wait"`    // 单次写超时

	// 队列配置
	SendQueueSize         int `mapstructure:"send_queue_size"`          // 普通发送队列大小
	HighPriorityQueueSize int `mapstructure:"high_priority_queue_size"` // 高优先级队列大小

	Header  http.Header                           `mapstructure:"-"` // 握手附加请求头
	Proxy   func(*http.Request) (*url.URL, error) `mapstructure:"-"` // 代理
	Logger  logger.Logger                         `mapstructure:"-"`
	Metrics Metrics                               `mapstructure:"-"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		HandshakeTimeout:      10 * time.Second,
		ReadBufferSize:        1024,
		WriteBufferSize:       1024,
		MaxMessageSize:        512 * 1024, // 512KB
		PingInterval:          30 * time.Second,
		PongWait:              90 * time.Second,
		WriteWait:             10 * time.Second,
		SendQueueSize:         256,
		HighPriorityQueueSize: 64,
		Proxy:                 http.ProxyFromEnvironment,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("%w: HandshakeTimeout must be positive, got %v", ErrInvalidConfig, c.HandshakeTimeout)
	}
	if c.ReadBufferSize <= 0 {
		return fmt.Errorf("%w: ReadBufferSize must be positive, got %d", ErrInvalidConfig, c.ReadBufferSize)
	}
	if c.WriteBufferSize <= 0 {
		return fmt.Errorf("%w: WriteBufferSize must be positive, got %d", ErrInvalidConfig, c.WriteBufferSize)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("%w: MaxMessageSize must be positive, got %d", ErrInvalidConfig, c.MaxMessageSize)
	}
	if c.PingInterval <= 0 {
		return fmt.Errorf("%w: PingInterval must be positive, got %v", ErrInvalidConfig, c.PingInterval)
	}
	if c.PongWait <= c.PingInterval {
		return fmt.Errorf("%w: PongWait (%v) must be greater than PingInterval (%v)",
			ErrInvalidConfig, c.PongWait, c.PingInterval)
	}
	if c.WriteWait <= 0 {
		return fmt.Errorf("%w: WriteWait must be positive, got %v", ErrInvalidConfig, c.WriteWait)
	}
	if c.SendQueueSize <= 0 {
		return fmt.Errorf("%w: SendQueueSize must be positive, got %d", ErrInvalidConfig, c.SendQueueSize)
	}
	if c.HighPriorityQueueSize <= 0 {
		return fmt.Errorf("%w: HighPriorityQueueSize must be positive, got %d", ErrInvalidConfig, c.HighPriorityQueueSize)
	}
	return nil
}

// Option 配置选项
type Option func(*Config)

// WithConfig 整体替换配置（nil 字段之外的零值会在 Validate 中报错）
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

// WithHandshakeTimeout 设置握手超时
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.HandshakeTimeout = d
	}
}

// WithPingInterval 设置心跳间隔
func WithPingInterval(d time.Duration) Option {
	return func(c *Config) {
		c.PingInterval = d
	}
}

// WithPongWait 设置心跳超时
func WithPongWait(d time.Duration) Option {
	return func(c *Config) {
		c.PongWait = d
	}
}

// WithMessageSizeLimit 设置消息大小限制
func WithMessageSizeLimit(size int64) Option {
	return func(c *Config) {
		c.MaxMessageSize = size
	}
}

// WithSendQueueSize 设置发送队列大小
func WithSendQueueSize(size int) Option {
	return func(c *Config) {
		c.SendQueueSize = size
	}
}

// WithHeader 设置握手请求头
func WithHeader(h http.Header) Option {
	return func(c *Config) {
		c.Header = h
	}
}

// WithEnableCompression 启用压缩协商
func WithEnableCompression(enable bool) Option {
	return func(c *Config) {
		c.EnableCompression = enable
	}
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithMetrics 设置监控
func WithMetrics(m Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}
