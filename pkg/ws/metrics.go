package ws

// Metrics 传输层监控接口
type Metrics interface {
	IncrementReadErrors()
	IncrementWriteErrors()
	IncrementDroppedMessages()
}

// noopMetrics 空实现（默认）
type noopMetrics struct{}

func (noopMetrics) IncrementReadErrors()      {}
func (noopMetrics) IncrementWriteErrors()     {}
func (noopMetrics) IncrementDroppedMessages() {}
