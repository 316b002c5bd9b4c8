package config

import "strings"

// Option 配置项
type Option func(*Config)

// WithConfigFile 直接指定配置文件路径，优先于名称查找
func WithConfigFile(path string) Option {
	return func(c *Config) { c.configFile = path }
}

// WithConfigName 按名称查找配置文件，如 "client" 匹配 client.yaml
func WithConfigName(name string) Option {
	return func(c *Config) { c.configName = name }
}

// WithConfigType 文件类型，名称查找时必填
func WithConfigType(typ string) Option {
	return func(c *Config) { c.configType = typ }
}

// WithConfigPaths 名称查找的目录，按顺序匹配
func WithConfigPaths(paths ...string) Option {
	return func(c *Config) { c.configPaths = append(c.configPaths, paths...) }
}

// WithDefaults 缺省值，文件与环境变量均未提供时生效
func WithDefaults(defaults map[string]any) Option {
	return func(c *Config) {
		if c.defaults == nil {
			c.defaults = make(map[string]any, len(defaults))
		}
		for k, v := range defaults {
			c.defaults[k] = v
		}
	}
}

// WithEnvPrefix 启用环境变量覆盖。
// 前缀为 PUSHER 时，pusher.cluster 对应 PUSHER_PUSHER_CLUSTER。
func WithEnvPrefix(prefix string) Option {
	return func(c *Config) {
		c.envPrefix = prefix
		c.envKeyReplacer = strings.NewReplacer(".", "_", "-", "_")
	}
}

// WithOnChange 文件变更且重新读取成功后回调
func WithOnChange(fn func(*Config)) Option {
	return func(c *Config) { c.onChange = fn }
}

// WithOnError 监控期间重新读取失败时回调，未设置则写 stderr
func WithOnError(fn func(error)) Option {
	return func(c *Config) { c.onError = fn }
}
