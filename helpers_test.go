package pusher

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeTransport 记录出站命令
type fakeTransport struct {
	mu   sync.Mutex
	sent []Command
	high []Command
	err  error

	pingIntervals []time.Duration
}

func (f *fakeTransport) SendJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, v.(Command))
	return nil
}

func (f *fakeTransport) SendJSONHigh(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.high = append(f.high, v.(Command))
	return nil
}

func (f *fakeTransport) SetPingInterval(d time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingIntervals = append(f.pingIntervals, d)
	return true
}

func (f *fakeTransport) commands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Command, len(f.sent))
	copy(out, f.sent)
	return out
}

// events 出站命令的事件名
func (f *fakeTransport) events() []string {
	var out []string
	for _, cmd := range f.commands() {
		out = append(out, cmd.Event)
	}
	return out
}

func (f *fakeTransport) failWith(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

// harness 手动驱动事件循环的引擎，动态授权由 runAuth 显式执行
type harness struct {
	t       *testing.T
	e       *engine
	q       *taskQueue
	spawned []func()
	metrics *countingMetrics
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Key = "key"
	for _, opt := range opts {
		opt(cfg)
	}
	h := &harness{t: t, q: newTaskQueue(), metrics: &countingMetrics{}}
	if cfg.Metrics == nil {
		cfg.Metrics = h.metrics
	}
	h.e = newEngine(context.Background(), cfg, h.q.push, func(fn func()) {
		h.spawned = append(h.spawned, fn)
	})
	return h
}

// channel 获取或创建频道
func (h *harness) channel(name string, auth Authorizer) *Channel {
	ch, _ := h.e.registry.GetOrCreate(name, auth)
	return ch
}

// do 投递任务并执行到队列为空
func (h *harness) do(fn func()) {
	h.e.post(fn)
	h.q.drain()
}

// attach 挂载新的传输层并完成 connection_established
func (h *harness) attach(socketID string) *fakeTransport {
	tr := &fakeTransport{}
	h.do(func() { h.e.attach(tr) })
	h.frame(`{"event":"protocol:connection_established","data":"{\"socket_id\":\"` + socketID + `\",\"activity_timeout\":120}"}`)
	return tr
}

// detach 传输层结束
func (h *harness) detach(tr *fakeTransport, cause error) {
	h.do(func() { h.e.detach(tr, cause) })
}

// frame 投递一帧入站数据
func (h *harness) frame(s string) {
	h.do(func() { h.e.handleFrame([]byte(s), time.Now()) })
}

func (h *harness) subscribe(ch *Channel) {
	require.NoError(h.t, ch.Subscribe())
	h.q.drain()
}

func (h *harness) unsubscribe(ch *Channel) {
	require.NoError(h.t, ch.Unsubscribe())
	h.q.drain()
}

// runAuth 执行所有在途的动态授权
func (h *harness) runAuth() int {
	fns := h.spawned
	h.spawned = nil
	for _, fn := range fns {
		fn()
	}
	h.q.drain()
	return len(fns)
}

// countingMetrics 记录计数
type countingMetrics struct {
	NoopMetrics
	connections    atomic.Int64
	disconnections atomic.Int64
	messages       atomic.Int64
	protocolErrors atomic.Int64
	handlerErrors  atomic.Int64
	authFailures   atomic.Int64
	commands       atomic.Int64
}

func (m *countingMetrics) IncrementConnections()         { m.connections.Add(1) }
func (m *countingMetrics) IncrementDisconnections()      { m.disconnections.Add(1) }
func (m *countingMetrics) IncrementMessages(string)      { m.messages.Add(1) }
func (m *countingMetrics) IncrementProtocolErrors()      { m.protocolErrors.Add(1) }
func (m *countingMetrics) IncrementHandlerErrors(string) { m.handlerErrors.Add(1) }
func (m *countingMetrics) IncrementAuthFailures(string)  { m.authFailures.Add(1) }
func (m *countingMetrics) IncrementCommands(string)      { m.commands.Add(1) }
