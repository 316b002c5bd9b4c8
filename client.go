package pusher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/pusher/pkg/ws"
)

// Client 实时频道客户端
//
// 每个 Client 持有一条逻辑连接和一个事件循环协程。入站帧、频道状态变更和授权结果
// 都在事件循环中按 FIFO 顺序处理；公开方法可在任意协程（包括处理函数内）调用。
type Client struct {
	cfg    *Config
	e      *engine
	q      *taskQueue
	cancel context.CancelFunc

	mu     sync.Mutex
	conn   *ws.Conn
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New 创建客户端，key 非空时覆盖配置中的 Key
func New(key string, opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if key != "" {
		cfg.Key = key
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	q := newTaskQueue()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:    cfg,
		e:      newEngine(ctx, cfg, q.push, func(fn func()) { go fn() }),
		q:      q,
		cancel: cancel,
	}
	go q.run()

	return c, nil
}

// Connect 建立连接，握手完成即返回；connection_established 到达后状态变为 Connected
// 连接结束后（收到 protocol:disconnected）可以再次调用 Connect 重连
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return ErrClientClosed
	}
	if c.conn != nil {
		return ErrAlreadyConnected
	}

	transport := c.cfg.transportConfig()
	conn, err := ws.Dial(ctx, c.cfg.URL(),
		ws.WithConfig(transport),
		ws.WithLogger(c.e.log.Named("ws")),
		ws.WithMetrics(c.e.metrics),
	)
	if err != nil {
		c.e.log.Error("dial failed", zap.String("url", c.cfg.URL()), zap.Error(err))
		return &TransportError{Op: "dial", Err: err}
	}

	if !c.e.post(func() { c.e.attach(conn) }) {
		conn.Close()
		return ErrClientClosed
	}
	c.conn = conn
	c.wg.Add(1)
	go c.run(conn)

	return nil
}

// run 驱动连接直到结束，入站帧逐个投递到事件循环
func (c *Client) run(conn *ws.Conn) {
	defer c.wg.Done()

	err := conn.Run(func(frame []byte) {
		at := time.Now()
		c.e.post(func() { c.e.handleFrame(frame, at) })
	})

	// 先投递 detach 再释放 conn，保证新连接的 attach 排在其后
	c.e.post(func() { c.e.detach(conn, err) })

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
}

// Disconnect 关闭当前连接，频道状态按 ResumePolicy 处理
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// Close 关闭连接并停止事件循环，取消在途授权（可重复调用）
// 已投递的任务（包括 disconnected 事件）仍会执行
func (c *Client) Close() error {
	c.mu.Lock()
	if !c.closed.CompareAndSwap(false, true) {
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()
	c.cancel()
	c.q.close()
	return nil
}

// Channel 获取或创建频道，auth 为 nil 表示公共频道
// 频道已存在时返回原实例
func (c *Client) Channel(name string, auth Authorizer) (*Channel, error) {
	if name == "" {
		return nil, ErrEmptyChannel
	}
	ch, created := c.e.registry.GetOrCreate(name, auth)
	if created {
		c.e.log.Debug("channel created",
			zap.String("channel", name),
			zap.Stringer("mode", ch.Mode()),
		)
	}
	return ch, nil
}

// Subscribe 订阅频道（不存在时创建为公共频道）
func (c *Client) Subscribe(name string) (*Channel, error) {
	ch, err := c.Channel(name, nil)
	if err != nil {
		return nil, err
	}
	return ch, ch.Subscribe()
}

// Send 在当前连接上发送自定义事件 {"event": event, "data": data}
//
// 返回 nil 表示命令已排队；未建立连接时返回 ErrNotConnected，
// protocol: 与 protocol_internal: 前缀保留给协议自身，返回 ErrReservedEvent。
func (c *Client) Send(event string, data any) error {
	return c.e.sendEvent(event, data)
}

// Unsubscribe 退订频道，频道不存在时为空操作
func (c *Client) Unsubscribe(name string) error {
	ch := c.e.registry.Get(name)
	if ch == nil {
		return nil
	}
	return ch.Unsubscribe()
}

// Bind 绑定所有频道中名为 event 的事件
func (c *Client) Bind(event string, h Handler) *Binding {
	return c.e.dispatcher.BindByName(event, h)
}

// BindAll 绑定所有消息（包括控制事件）
func (c *Client) BindAll(h Handler) *Binding {
	return c.e.dispatcher.BindGlobal(h)
}

// OnConnect connection_established 回调
func (c *Client) OnConnect(fn func(sessionID string)) *Binding {
	return c.Bind(EventConnectionEstablished, func(msg Message) error {
		fn(msg.Get("socket_id").String())
		return nil
	})
}

// OnDisconnect 连接结束回调
func (c *Client) OnDisconnect(fn func()) *Binding {
	return c.Bind(EventDisconnected, func(Message) error {
		fn()
		return nil
	})
}

// OnError 连接级错误回调（服务端 protocol:error 或传输层读失败）
func (c *Client) OnError(fn func(msg Message)) *Binding {
	return c.Bind(EventError, func(msg Message) error {
		if msg.Channel == "" {
			fn(msg)
		}
		return nil
	})
}

// Unbind 释放注册
func (c *Client) Unbind(b *Binding) {
	c.e.dispatcher.Unbind(b)
}

// State 连接状态
func (c *Client) State() ConnectionState {
	return c.e.connectionState()
}

// SessionID 服务端分配的 socket_id，未连接时为空
func (c *Client) SessionID() string {
	return c.e.sessionIDSnapshot()
}

// HandlerCount 频道 channel 上事件 event 的消息会被投递给的处理函数数量
func (c *Client) HandlerCount(channel, event string) int {
	return c.e.dispatcher.HandlerCount(channel, event)
}

// Channels 频道表
func (c *Client) Channels() *Registry {
	return c.e.registry
}

// Do 在事件循环中执行 fn，fn 与消息处理串行
func (c *Client) Do(fn func()) error {
	if !c.e.post(fn) {
		return ErrClientClosed
	}
	return nil
}
