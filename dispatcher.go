package pusher

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tokmz/pusher/pkg/logger"
)

// Handler 消息处理函数，返回的错误只记录不传播
type Handler func(Message) error

// HandlerFunc 将无返回值的函数适配为 Handler
func HandlerFunc(fn func(Message)) Handler {
	return func(msg Message) error {
		fn(msg)
		return nil
	}
}

type tier uint8

const (
	tierGlobal tier = iota
	tierName
	tierChannel
	tierChannelName
)

// Binding 一次处理函数注册
// Unbind 幂等，已释放的 Binding 不再收到任何消息（包括同一轮分发中尚未轮到的）
type Binding struct {
	id       string
	tier     tier
	channel  string
	event    string
	handler  Handler
	released atomic.Bool
	d        *Dispatcher
}

// ID 注册标识
func (b *Binding) ID() string {
	return b.id
}

// Unbind 释放注册（可重复调用）
func (b *Binding) Unbind() {
	if b == nil || b.d == nil {
		return
	}
	b.d.Unbind(b)
}

// Released 是否已释放
func (b *Binding) Released() bool {
	return b.released.Load()
}

// channelTable 单个频道的处理函数
type channelTable struct {
	all    []*Binding            // BindChannel
	events map[string][]*Binding // BindByChannelAndName
}

func (t *channelTable) empty() bool {
	return len(t.all) == 0 && len(t.events) == 0
}

// Dispatcher 两级过滤分发器：频道 → 事件名
//
// 每条消息的投递顺序固定为：全局 → 按事件名 → 频道全部事件 → 频道+事件名，
// 同一集合内按注册顺序。处理函数在锁外执行，可在处理中注册或释放。
type Dispatcher struct {
	mu        sync.RWMutex
	global    []*Binding
	byName    map[string][]*Binding
	byChannel map[string]*channelTable

	log     logger.Logger
	metrics Metrics
}

// NewDispatcher 创建分发器
func NewDispatcher(log logger.Logger, metrics Metrics) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Dispatcher{
		byName:    make(map[string][]*Binding),
		byChannel: make(map[string]*channelTable),
		log:       log,
		metrics:   metrics,
	}
}

// BindGlobal 接收所有消息
func (d *Dispatcher) BindGlobal(h Handler) *Binding {
	b := d.newBinding(tierGlobal, "", "", h)
	d.mu.Lock()
	d.global = appendCopy(d.global, b)
	d.mu.Unlock()
	return b
}

// BindByName 接收所有频道中指定事件名的消息
func (d *Dispatcher) BindByName(event string, h Handler) *Binding {
	b := d.newBinding(tierName, "", event, h)
	d.mu.Lock()
	d.byName[event] = appendCopy(d.byName[event], b)
	d.mu.Unlock()
	return b
}

// BindChannel 接收指定频道的所有消息
func (d *Dispatcher) BindChannel(channel string, h Handler) *Binding {
	b := d.newBinding(tierChannel, channel, "", h)
	d.mu.Lock()
	t := d.table(channel)
	t.all = appendCopy(t.all, b)
	d.mu.Unlock()
	return b
}

// BindByChannelAndName 接收指定频道中指定事件名的消息
func (d *Dispatcher) BindByChannelAndName(channel, event string, h Handler) *Binding {
	b := d.newBinding(tierChannelName, channel, event, h)
	d.mu.Lock()
	t := d.table(channel)
	t.events[event] = appendCopy(t.events[event], b)
	d.mu.Unlock()
	return b
}

// Unbind 释放注册（幂等，nil 安全）
func (d *Dispatcher) Unbind(b *Binding) {
	if b == nil || b.d != d || b.released.Swap(true) {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch b.tier {
	case tierGlobal:
		d.global = removeCopy(d.global, b)
	case tierName:
		if s := removeCopy(d.byName[b.event], b); len(s) > 0 {
			d.byName[b.event] = s
		} else {
			delete(d.byName, b.event)
		}
	case tierChannel, tierChannelName:
		t, ok := d.byChannel[b.channel]
		if !ok {
			return
		}
		if b.tier == tierChannel {
			t.all = removeCopy(t.all, b)
		} else if s := removeCopy(t.events[b.event], b); len(s) > 0 {
			t.events[b.event] = s
		} else {
			delete(t.events, b.event)
		}
		if t.empty() {
			delete(d.byChannel, b.channel)
		}
	}
}

// HandlerCount 频道 channel 上事件 event 的消息会被投递给的处理函数数量（含全局）
func (d *Dispatcher) HandlerCount(channel, event string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	n := len(d.global) + len(d.byName[event])
	if t, ok := d.byChannel[channel]; ok {
		n += len(t.all) + len(t.events[event])
	}
	return n
}

// scopedCount 仅统计频道+事件名一级的处理函数数量
func (d *Dispatcher) scopedCount(channel, event string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if t, ok := d.byChannel[channel]; ok {
		return len(t.events[event])
	}
	return 0
}

// Dispatch 按固定顺序投递一条消息，处理函数的错误和 panic 逐个隔离
func (d *Dispatcher) Dispatch(msg Message) {
	for _, set := range d.snapshot(msg) {
		for _, b := range set {
			if b.released.Load() {
				continue
			}
			d.invoke(b, msg)
		}
	}
}

// snapshot 在读锁内取出匹配的处理函数集合
// 集合切片写时复制，锁外遍历不受并发注册影响
func (d *Dispatcher) snapshot(msg Message) [4][]*Binding {
	d.mu.RLock()
	defer d.mu.RUnlock()

	sets := [4][]*Binding{d.global, d.byName[msg.Event]}
	if t, ok := d.byChannel[msg.Channel]; ok {
		sets[2] = t.all
		sets[3] = t.events[msg.Event]
	}
	return sets
}

func (d *Dispatcher) invoke(b *Binding, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			d.handlerFailed(&HandlerError{Channel: msg.Channel, Event: msg.Event, Panic: r}, b)
		}
	}()

	if err := b.handler(msg); err != nil {
		d.handlerFailed(&HandlerError{Channel: msg.Channel, Event: msg.Event, Err: err}, b)
	}
}

func (d *Dispatcher) handlerFailed(err *HandlerError, b *Binding) {
	d.metrics.IncrementHandlerErrors(err.Event)
	d.log.Error("handler failed",
		zap.String("channel", err.Channel),
		zap.String("event", err.Event),
		zap.String("binding", b.id),
		zap.Error(err),
	)
}

func (d *Dispatcher) newBinding(t tier, channel, event string, h Handler) *Binding {
	return &Binding{
		id:      uuid.NewString(),
		tier:    t,
		channel: channel,
		event:   event,
		handler: h,
		d:       d,
	}
}

// table 获取或创建频道表（调用方持有写锁）
func (d *Dispatcher) table(channel string) *channelTable {
	t, ok := d.byChannel[channel]
	if !ok {
		t = &channelTable{events: make(map[string][]*Binding)}
		d.byChannel[channel] = t
	}
	return t
}

// appendCopy 追加并返回新切片，不修改已被快照引用的底层数组
func appendCopy(s []*Binding, b *Binding) []*Binding {
	return append(s[:len(s):len(s)], b)
}

func removeCopy(s []*Binding, b *Binding) []*Binding {
	i := slices.Index(s, b)
	if i < 0 {
		return s
	}
	return slices.Delete(slices.Clone(s), i, i+1)
}
