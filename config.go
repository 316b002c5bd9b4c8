package pusher

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/tokmz/pusher/pkg/logger"
	"github.com/tokmz/pusher/pkg/ws"
)

// ResumePolicy 断线重连后的频道恢复策略
type ResumePolicy string

const (
	// ResumePending 断线不改变频道状态，重连后只推进尚未 Subscribed 的频道
	ResumePending ResumePolicy = "pending"
	// ResumeAll 断线时所有在订阅流程中或已订阅的频道回到 PendingConnection，重连后全部重新订阅
	ResumeAll ResumePolicy = "all"
)

// Config 客户端配置
type Config struct {
	// Key 应用 key（必填）
	Key string `mapstructure:"key"`

	// Cluster 集群名，非空时主机为 ws-<cluster>.<host>
	Cluster string `mapstructure:"cluster"`

	// Host 服务主机（可带端口）
	Host string `mapstructure:"host"`

	// Scheme ws 或 wss
	Scheme string `mapstructure:"scheme"`

	// 客户端标识，拼接在连接 URL 的查询参数中
	ClientName string `mapstructure:"client_name"`
	Version    string `mapstructure:"version"`
	Protocol   int    `mapstructure:"protocol"`

	// ActivityTimeout 无数据时发送 ping 的间隔
	ActivityTimeout time.Duration `mapstructure:"activity_timeout"`

	// PongTimeout ping 之后等待回应的时间
	PongTimeout time.Duration `mapstructure:"pong_timeout"`

	// AuthTimeout 单次动态授权的超时
	AuthTimeout time.Duration `mapstructure:"auth_timeout"`

	// ResumePolicy 重连恢复策略，默认 ResumePending
	ResumePolicy ResumePolicy `mapstructure:"resume_policy"`

	// Transport 传输层配置（心跳参数由 ActivityTimeout/PongTimeout 覆盖）
	Transport ws.Config `mapstructure:"transport"`

	Logger  logger.Logger `mapstructure:"-"`
	Metrics Metrics       `mapstructure:"-"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Cluster:         "mt1",
		Host:            "pusher.com",
		Scheme:          "wss",
		ClientName:      "pusher-go",
		Version:         "0.1.0",
		Protocol:        7,
		ActivityTimeout: 120 * time.Second,
		PongTimeout:     30 * time.Second,
		AuthTimeout:     10 * time.Second,
		ResumePolicy:    ResumePending,
		Transport:       *ws.DefaultConfig(),
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Key == "" {
		return fmt.Errorf("%w: key is required", ErrInvalidConfig)
	}
	if c.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if c.Scheme != "ws" && c.Scheme != "wss" {
		return fmt.Errorf("%w: scheme must be ws or wss, got %q", ErrInvalidConfig, c.Scheme)
	}
	if c.Protocol <= 0 {
		return fmt.Errorf("%w: protocol must be positive, got %d", ErrInvalidConfig, c.Protocol)
	}
	if c.ActivityTimeout <= 0 {
		return fmt.Errorf("%w: activity timeout must be positive, got %v", ErrInvalidConfig, c.ActivityTimeout)
	}
	if c.PongTimeout <= 0 {
		return fmt.Errorf("%w: pong timeout must be positive, got %v", ErrInvalidConfig, c.PongTimeout)
	}
	if c.AuthTimeout <= 0 {
		return fmt.Errorf("%w: auth timeout must be positive, got %v", ErrInvalidConfig, c.AuthTimeout)
	}
	switch c.ResumePolicy {
	case ResumePending, ResumeAll:
	default:
		return fmt.Errorf("%w: unknown resume policy %q", ErrInvalidConfig, c.ResumePolicy)
	}

	transport := c.transportConfig()
	if err := transport.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// URL 连接地址 <scheme>://[ws-<cluster>.]<host>/app/<key>?client=..&protocol=..&version=..
func (c *Config) URL() string {
	host := c.Host
	if c.Cluster != "" {
		host = "ws-" + c.Cluster + "." + c.Host
	}

	q := url.Values{}
	q.Set("client", c.ClientName)
	q.Set("version", c.Version)
	q.Set("protocol", strconv.Itoa(c.Protocol))

	u := url.URL{
		Scheme:   c.Scheme,
		Host:     host,
		Path:     "/app/" + c.Key,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// transportConfig 合并心跳参数后的传输层配置
func (c *Config) transportConfig() ws.Config {
	t := c.Transport
	t.PingInterval = c.ActivityTimeout
	t.PongWait = c.ActivityTimeout + c.PongTimeout
	return t
}

// Option 配置选项
type Option func(*Config)

// WithConfig 整体替换配置，New 的 key 参数非空时仍以其为准
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

// WithCluster 设置集群
func WithCluster(cluster string) Option {
	return func(c *Config) {
		c.Cluster = cluster
	}
}

// WithHost 设置主机，不拼接集群前缀
func WithHost(host string) Option {
	return func(c *Config) {
		c.Host = host
		c.Cluster = ""
	}
}

// WithInsecure 使用 ws 而非 wss
func WithInsecure() Option {
	return func(c *Config) {
		c.Scheme = "ws"
	}
}

// WithClientInfo 设置客户端名称和版本
func WithClientInfo(name, version string) Option {
	return func(c *Config) {
		c.ClientName = name
		c.Version = version
	}
}

// WithActivityTimeout 设置心跳间隔
func WithActivityTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.ActivityTimeout = d
	}
}

// WithPongTimeout 设置心跳超时
func WithPongTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.PongTimeout = d
	}
}

// WithDynamicAuthTimeout 设置动态授权超时，作用于所有频道的 Authorizer
func WithDynamicAuthTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.AuthTimeout = d
	}
}

// WithResumePolicy 设置重连恢复策略
func WithResumePolicy(p ResumePolicy) Option {
	return func(c *Config) {
		c.ResumePolicy = p
	}
}

// WithTransport 设置传输层配置
func WithTransport(t ws.Config) Option {
	return func(c *Config) {
		c.Transport = t
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
