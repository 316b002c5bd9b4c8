package logger

// Option 修改 Config
type Option func(*Config)

// WithLevel 最低输出级别
func WithLevel(level Level) Option {
	return func(c *Config) { c.Level = level }
}

// WithFormat json 或 console
func WithFormat(format Format) Option {
	return func(c *Config) { c.Format = format }
}

// WithConsoleOutput 同时输出到 stdout
func WithConsoleOutput() Option {
	return func(c *Config) { c.Console = true }
}

// WithFileOutput 追加写入单个文件，不轮转
func WithFileOutput(filename string) Option {
	return func(c *Config) { c.File = filename }
}

// WithRotateOutput 写入按大小轮转的文件，可与 WithFileOutput 同时使用
func WithRotateOutput(rc *RotateConfig) Option {
	return func(c *Config) { c.Rotate = rc }
}

// WithHook 每条日志写出前调用，可多次添加
func WithHook(hook Hook) Option {
	return func(c *Config) { c.Hooks = append(c.Hooks, hook) }
}

// WithCaller 记录调用位置
func WithCaller(enable bool) Option {
	return func(c *Config) { c.EnableCaller = enable }
}

// WithStacktrace Error 及以上级别附带堆栈
func WithStacktrace(enable bool) Option {
	return func(c *Config) { c.EnableStacktrace = enable }
}
