package logger

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// Format 日志格式
type Format string

const (
	JSONFormat    Format = "json"    // 结构化输出，便于采集
	ConsoleFormat Format = "console" // 本地调试
)

func (f Format) String() string {
	return string(f)
}

// IsValid 是否为已知格式
func (f Format) IsValid() bool {
	return f == JSONFormat || f == ConsoleFormat
}

// ParseFormat 解析格式名（不区分大小写）
func ParseFormat(s string) (Format, bool) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	return f, f.IsValid()
}

// Config 日志配置
type Config struct {
	Level  Level  `mapstructure:"level"`  // 日志级别（默认 InfoLevel）
	Format Format `mapstructure:"format"` // 日志格式（json/console，默认 json）

	Console bool          `mapstructure:"console"` // 是否输出到控制台
	File    string        `mapstructure:"file"`    // 文件路径（空则不输出到文件）
	Rotate  *RotateConfig `mapstructure:"rotate"`  // 轮转配置（nil 则不轮转）

	Sampling *SamplingConfig `mapstructure:"sampling"` // 采样配置（nil 则不采样）

	EnableCaller     bool `mapstructure:"caller"`     // 是否记录调用位置
	EnableStacktrace bool `mapstructure:"stacktrace"` // 是否记录堆栈（Error 及以上）

	EncoderConfig *zapcore.EncoderConfig `mapstructure:"-"` // 自定义 Encoder 配置
	Hooks         []Hook                 `mapstructure:"-"` // Hook 列表
}

// setDefaults 设置默认值
// Level 的零值即 InfoLevel
func (c *Config) setDefaults() {
	if c.Format == "" {
		c.Format = JSONFormat
	}
	if !c.Console && c.File == "" && c.Rotate == nil {
		c.Console = true
	}
}

// RotateConfig 按大小轮转的文件输出（lumberjack）
type RotateConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`    // MB，默认 100
	MaxAge     int    `mapstructure:"max_age"`     // 天，默认 30
	MaxBackups int    `mapstructure:"max_backups"` // 默认 10
	Compress   bool   `mapstructure:"compress"`
}

func (r *RotateConfig) setDefaults() {
	if r.MaxSize <= 0 {
		r.MaxSize = 100
	}
	if r.MaxAge <= 0 {
		r.MaxAge = 30
	}
	if r.MaxBackups <= 0 {
		r.MaxBackups = 10
	}
}

// SamplingConfig 采样：每秒前 Initial 条全部记录，之后每 Thereafter 条记录 1 条
type SamplingConfig struct {
	Initial    int `mapstructure:"initial"`
	Thereafter int `mapstructure:"thereafter"`
}

func (s *SamplingConfig) setDefaults() {
	if s.Initial <= 0 {
		s.Initial = 100
	}
	if s.Thereafter <= 0 {
		s.Thereafter = 100
	}
}

// Hook 日志写入钩子，返回的错误由 zap 报告到 ErrorOutput
type Hook interface {
	OnWrite(entry zapcore.Entry, fields []zapcore.Field) error
}

// HookFunc 函数形式的 Hook
type HookFunc func(entry zapcore.Entry, fields []zapcore.Field) error

// OnWrite 实现 Hook
func (f HookFunc) OnWrite(entry zapcore.Entry, fields []zapcore.Field) error {
	return f(entry, fields)
}
