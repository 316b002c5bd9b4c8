package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tokmz/pusher/pkg/logger"
)

// Conn WebSocket 客户端连接
type Conn struct {
	ID      string
	conn    *websocket.Conn
	config  *Config
	log     logger.Logger
	metrics Metrics

	// 发送队列（不关闭，避免并发发送时 panic）
	send     chan []byte
	sendHigh chan []byte // 高优先级队列（控制消息）

	// 心跳
	lastPong     atomic.Int64 // UnixNano
	pingInterval chan time.Duration

	// 生命周期
	ctx       context.Context
	cancel    context.CancelFunc
	closed    atomic.Bool
	running   atomic.Bool
	closeOnce sync.Once
}

// Dial 建立连接
func Dial(ctx context.Context, rawURL string, opts ...Option) (*Conn, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		Proxy:             config.Proxy,
		HandshakeTimeout:  config.HandshakeTimeout,
		ReadBufferSize:    config.ReadBufferSize,
		WriteBufferSize:   config.WriteBufferSize,
		EnableCompression: config.EnableCompression,
	}

	conn, resp, err := dialer.DialContext(ctx, rawURL, config.Header)
	if err != nil {
		if resp != nil {
			return nil, &HandshakeError{StatusCode: resp.StatusCode, Err: err}
		}
		return nil, fmt.Errorf("ws: dial %s: %w", rawURL, err)
	}

	return newConn(conn, config), nil
}

// newConn 包装已建立的连接
func newConn(conn *websocket.Conn, config *Config) *Conn {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Conn{
		ID:       uuid.NewString(),
		conn:     conn,
		config:   config,
		log:      config.Logger,
		metrics:  config.Metrics,
		send:     make(chan []byte, config.SendQueueSize),
		sendHigh: make(chan []byte, config.HighPriorityQueueSize),
		ctx:      ctx,
		cancel:   cancel,

		pingInterval: make(chan time.Duration, 1),
	}
	if c.log == nil {
		c.log = logger.Nop()
	}
	if c.metrics == nil {
		c.metrics = noopMetrics{}
	}
	c.log = c.log.With(zap.String("conn_id", c.ID))
	c.lastPong.Store(time.Now().UnixNano())

	return c
}

// Run 启动读写协程并阻塞到连接结束
// onMessage 在读协程中按到达顺序调用；返回值为连接结束原因，本地 Close 时为 ErrConnectionClosed
func (c *Conn) Run(onMessage func([]byte)) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	if c.closed.Load() {
		_ = c.conn.Close()
		return ErrConnectionClosed
	}

	g, ctx := errgroup.WithContext(c.ctx)
	g.Go(func() error {
		return c.readPump(onMessage)
	})
	g.Go(func() error {
		return c.writePump(ctx)
	})

	err := g.Wait()
	c.Close()
	return err
}

// readPump 读取消息
func (c *Conn) readPump(onMessage func([]byte)) error {
	c.conn.SetReadLimit(c.config.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait)); err != nil {
		c.metrics.IncrementReadErrors()
		return err
	}
	c.conn.SetPongHandler(func(string) error {
		c.lastPong.Store(time.Now().UnixNano())
		return c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	})

	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			return c.readError(err)
		}
		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}

		// 任意入站数据都视为存活
		_ = c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		onMessage(data)
	}
}

// readError 归类读错误
func (c *Conn) readError(err error) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	c.metrics.IncrementReadErrors()

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			c.log.Warn("unexpected close", zap.Int("code", ce.Code), zap.String("text", ce.Text))
		}
		return &CloseError{Code: ce.Code, Text: ce.Text}
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		c.log.Warn("read deadline exceeded", zap.Time("last_pong", c.LastPong()))
		return fmt.Errorf("%w: %w", ErrPongTimeout, err)
	}

	c.log.Error("read failed", zap.Error(err))
	return err
}

// writePump 写入消息，所有写操作都在此协程串行执行
func (c *Conn) writePump(ctx context.Context) error {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		// 优先发送高优先级消息
		select {
		case message := <-c.sendHigh:
			if err := c.writeMessage(message); err != nil {
				return err
			}
			continue
		default:
		}

		select {
		case <-ctx.Done():
			// 尝试发送关闭帧，忽略错误
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.config.WriteWait))
			return nil

		case message := <-c.sendHigh:
			if err := c.writeMessage(message); err != nil {
				return err
			}

		case message := <-c.send:
			if err := c.writeMessage(message); err != nil {
				return err
			}

		case d := <-c.pingInterval:
			ticker.Reset(d)
			c.log.Debug("ping interval changed", zap.Duration("interval", d))

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteWait)); err != nil {
				c.metrics.IncrementWriteErrors()
				return err
			}
		}
	}
}

// SetPingInterval 运行时调整心跳间隔，下一次 ping 按新间隔发送。
// d 必须为正且小于 PongWait，否则忽略并返回 false。
func (c *Conn) SetPingInterval(d time.Duration) bool {
	if d <= 0 || d >= c.config.PongWait {
		return false
	}
	for {
		select {
		case c.pingInterval <- d:
			return true
		default:
		}
		// 丢弃尚未生效的旧值
		select {
		case <-c.pingInterval:
		default:
		}
	}
}

// writeMessage 写入文本消息
func (c *Conn) writeMessage(message []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait)); err != nil {
		c.metrics.IncrementWriteErrors()
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.metrics.IncrementWriteErrors()
		c.log.Error("write failed", zap.Error(err))
		return err
	}
	return nil
}

// SendBytes 发送字节消息（非阻塞）
func (c *Conn) SendBytes(msg []byte) error {
	return c.enqueue(c.send, msg)
}

// SendBytesHigh 发送高优先级字节消息（非阻塞）
func (c *Conn) SendBytesHigh(msg []byte) error {
	return c.enqueue(c.sendHigh, msg)
}

// SendJSON 发送 JSON 消息
func (c *Conn) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.SendBytes(data)
}

// SendJSONHigh 以高优先级发送 JSON 消息
func (c *Conn) SendJSONHigh(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.SendBytesHigh(data)
}

// enqueue 写入发送队列，队列满时丢弃
func (c *Conn) enqueue(queue chan []byte, msg []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	select {
	case queue <- msg:
		return nil
	default:
		c.metrics.IncrementDroppedMessages()
		return ErrChannelFull
	}
}

// Close 关闭连接（可重复调用）
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()

		// 未运行时没有写协程负责关闭底层连接
		if !c.running.Load() {
			_ = c.conn.Close()
		}
	})
}

// IsClosed 检查是否已关闭
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// Done 连接结束时关闭
func (c *Conn) Done() <-chan struct{} {
	return c.ctx.Done()
}

// LastPong 最近一次收到 pong 的时间
func (c *Conn) LastPong() time.Time {
	return time.Unix(0, c.lastPong.Load())
}

// RemoteAddr 获取远程地址
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
