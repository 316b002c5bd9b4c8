package pusher

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/tokmz/pusher/pkg/logger"
)

// EventBus 入站消息的唯一入口，按到达顺序同步转发给分发器
type EventBus struct {
	dispatcher *Dispatcher
	log        logger.Logger
	metrics    Metrics
	published  atomic.Uint64
}

// NewEventBus 创建事件总线
func NewEventBus(d *Dispatcher, log logger.Logger, metrics Metrics) *EventBus {
	if log == nil {
		log = logger.Nop()
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &EventBus{
		dispatcher: d,
		log:        log,
		metrics:    metrics,
	}
}

// Publish 投递一条消息，下游失败不影响后续投递
func (b *EventBus) Publish(msg Message) {
	b.published.Add(1)
	b.metrics.IncrementMessages(msg.Event)

	// 分发器已逐个隔离处理函数，这里兜底分发器自身的异常
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("dispatch panic",
				zap.String("channel", msg.Channel),
				zap.String("event", msg.Event),
				zap.Any("panic", r),
			)
		}
	}()

	b.dispatcher.Dispatch(msg)
}

// Published 已投递的消息数
func (b *EventBus) Published() uint64 {
	return b.published.Load()
}
