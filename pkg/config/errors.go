package config

import "github.com/tokmz/pusher/pkg/errors"

// 3000 段错误码：配置加载
var (
	// ErrConfigNotFound 找不到配置文件，默认值与环境变量仍可用
	ErrConfigNotFound = errors.New(3001, "配置文件未找到")
	// ErrConfigReadFailed 文件存在但无法解析
	ErrConfigReadFailed = errors.New(3002, "配置读取失败")
	// ErrConfigDecode 解码到结构体失败
	ErrConfigDecode = errors.New(3003, "配置解析失败")
	// ErrWatchFailed 文件监控启动失败
	ErrWatchFailed = errors.New(3004, "配置监控失败")
	// ErrConfigMissing 必填项为空
	ErrConfigMissing = errors.New(3005, "缺少必填配置")
)
