package pusher

import "github.com/tokmz/pusher/pkg/ws"

// Metrics 监控接口，同时接收传输层计数
type Metrics interface {
	ws.Metrics

	IncrementConnections()                // connection_established
	IncrementDisconnections()             // 连接结束
	IncrementMessages(event string)       // 入站消息（按事件名）
	IncrementProtocolErrors()             // 无法解析而丢弃的帧
	IncrementHandlerErrors(event string)  // 处理函数失败或 panic
	IncrementAuthFailures(channel string) // 授权失败
	IncrementCommands(event string)       // 出站命令
}

// NoopMetrics 空实现（默认）
type NoopMetrics struct{}

func (NoopMetrics) IncrementReadErrors()          {}
func (NoopMetrics) IncrementWriteErrors()         {}
func (NoopMetrics) IncrementDroppedMessages()     {}
func (NoopMetrics) IncrementConnections()         {}
func (NoopMetrics) IncrementDisconnections()      {}
func (NoopMetrics) IncrementMessages(string)      {}
func (NoopMetrics) IncrementProtocolErrors()      {}
func (NoopMetrics) IncrementHandlerErrors(string) {}
func (NoopMetrics) IncrementAuthFailures(string)  {}
func (NoopMetrics) IncrementCommands(string)      {}
