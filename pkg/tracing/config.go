package tracing

import (
	"fmt"
	"io"
	"time"

	"github.com/tokmz/pusher/pkg/errors"
)

// ErrInvalidConfig 追踪配置错误
var ErrInvalidConfig = errors.New(5001, "追踪配置错误")

// 导出器类型
const (
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
	ExporterNoop   = "noop"
)

// 采样策略，空值按 SamplerParentBased 处理
const (
	SamplerAlways      = "always"
	SamplerNever       = "never"
	SamplerRatio       = "ratio"
	SamplerParentBased = "parent_based"
)

// Config 链路追踪配置
type Config struct {
	ServiceName    string `mapstructure:"service_name"`    // 服务名称（必填）
	ServiceVersion string `mapstructure:"service_version"` // 服务版本
	Environment    string `mapstructure:"environment"`     // 环境（dev/staging/prod）

	ExporterType     string            `mapstructure:"exporter"` // otlp/stdout/noop
	ExporterEndpoint string            `mapstructure:"endpoint"` // OTLP Collector 地址（host:port）
	ExporterHeaders  map[string]string `mapstructure:"headers"`  // 导出器请求头（用于认证）
	Insecure         bool              `mapstructure:"insecure"` // 使用非 TLS 连接
	Output           io.Writer         `mapstructure:"-"`        // stdout 导出器的输出目标（默认 os.Stdout）

	SamplingType string  `mapstructure:"sampling_type"` // always/never/ratio/parent_based
	SamplingRate float64 `mapstructure:"sampling_rate"` // 采样率（0.0-1.0）

	Enabled bool `mapstructure:"enabled"`

	ResourceAttributes map[string]string `mapstructure:"resource_attributes"`

	BatchTimeout       time.Duration `mapstructure:"batch_timeout"`         // 批量导出超时（默认 5s）
	MaxExportBatchSize int           `mapstructure:"max_export_batch_size"` // 最大批量大小（默认 512）
	MaxQueueSize       int           `mapstructure:"max_queue_size"`        // 最大队列大小（默认 2048）
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		ServiceName:        "pusher-client",
		ServiceVersion:     "0.1.0",
		Environment:        "development",
		ExporterType:       ExporterStdout,
		SamplingType:       SamplerParentBased,
		SamplingRate:       1.0,
		Enabled:            true,
		BatchTimeout:       5 * time.Second,
		MaxExportBatchSize: 512,
		MaxQueueSize:       2048,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return ErrInvalidConfig.WithMessage("追踪配置错误: service_name 不能为空")
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return ErrInvalidConfig.WithMessage(fmt.Sprintf("追踪配置错误: sampling_rate 超出范围 %v", c.SamplingRate))
	}
	switch c.SamplingType {
	case "", SamplerAlways, SamplerNever, SamplerRatio, SamplerParentBased:
	default:
		return ErrInvalidConfig.WithMessage("追踪配置错误: 不支持的采样策略 " + c.SamplingType)
	}
	switch c.ExporterType {
	case ExporterOTLP, ExporterStdout, ExporterNoop:
	default:
		return ErrInvalidConfig.WithMessage("追踪配置错误: 不支持的导出器 " + c.ExporterType)
	}
	return nil
}
