package config

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 基于 viper 的配置加载器。
// 优先级：Set > 环境变量 > 配置文件 > 默认值。读写方法可并发调用。
type Config struct {
	viper *viper.Viper
	mu    sync.RWMutex

	configFile  string
	configName  string
	configType  string
	configPaths []string

	defaults       map[string]any
	envPrefix      string
	envKeyReplacer *strings.Replacer

	onChange func(*Config)
	onError  func(error)
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// New 创建配置加载器，需调用 Load 后才能读取
func New(opts ...Option) *Config {
	c := &Config{viper: viper.New()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load 读取配置文件。
// 文件不存在时返回 ErrConfigNotFound，此时默认值与环境变量仍然可用。
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.applyDefaults()
	c.applyEnv()
	c.locateFile()

	err := c.viper.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return ErrConfigNotFound.WithError(err)
	}
	return ErrConfigReadFailed.WithError(err)
}

func (c *Config) applyDefaults() {
	for k, v := range c.defaults {
		c.viper.SetDefault(k, v)
	}
}

func (c *Config) applyEnv() {
	if c.envPrefix == "" {
		return
	}
	c.viper.SetEnvPrefix(c.envPrefix)
	if c.envKeyReplacer != nil {
		c.viper.SetEnvKeyReplacer(c.envKeyReplacer)
	}
	c.viper.AutomaticEnv()
}

func (c *Config) locateFile() {
	if c.configFile != "" {
		c.viper.SetConfigFile(c.configFile)
		return
	}
	if c.configName != "" {
		c.viper.SetConfigName(c.configName)
	}
	if c.configType != "" {
		c.viper.SetConfigType(c.configType)
	}
	for _, path := range c.configPaths {
		c.viper.AddConfigPath(path)
	}
}

// Require 检查各 key 均有非空值，返回的错误列出全部缺失项
func (c *Config) Require(keys ...string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var missing []string
	for _, k := range keys {
		if !c.viper.IsSet(k) || c.viper.GetString(k) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return ErrConfigMissing.WithMessage(ErrConfigMissing.Message + ": " + strings.Join(missing, ", "))
	}
	return nil
}

// GetString 读取字符串
func (c *Config) GetString(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.GetString(key)
}

// GetDuration 读取时长，支持 "5s" 形式
func (c *Config) GetDuration(key string) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.GetDuration(key)
}

// Set 运行时覆盖，优先级最高
func (c *Config) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viper.Set(key, value)
}

// Unmarshal 按 mapstructure 标签解码全部配置，"5s" 可解码为 time.Duration
func (c *Config) Unmarshal(rawVal any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.viper.Unmarshal(rawVal); err != nil {
		return ErrConfigDecode.WithError(err)
	}
	return nil
}

// UnmarshalKey 只解码 key 对应的子树
func (c *Config) UnmarshalKey(key string, rawVal any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.viper.UnmarshalKey(key, rawVal); err != nil {
		return ErrConfigDecode.WithError(err)
	}
	return nil
}

// ConfigFileUsed 实际读取的文件，未读到文件时为空
func (c *Config) ConfigFileUsed() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.ConfigFileUsed()
}

// Close 停止文件监控
func (c *Config) Close() error {
	return c.StopWatch()
}
