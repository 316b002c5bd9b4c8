package pusher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/pusher/pkg/logger"
	"github.com/tokmz/pusher/pkg/ws"
)

// ConnectionState 连接状态
type ConnectionState int32

const (
	Disconnected ConnectionState = iota // 无连接
	Connecting                          // 传输层已连通，等待 connection_established
	Connected                           // 已收到 connection_established
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// transport 出站通道，由 *ws.Conn 实现
type transport interface {
	SendJSON(v any) error
	SendJSONHigh(v any) error
	SetPingInterval(d time.Duration) bool
}

// engine 连接编排：持有连接状态，消费控制事件驱动频道状态机
// 除原子镜像外，所有字段只在事件循环中访问
type engine struct {
	cfg        *Config
	log        logger.Logger
	metrics    Metrics
	dispatcher *Dispatcher
	bus        *EventBus
	registry   *Registry

	ctx   context.Context   // 客户端关闭时取消，授权请求以此为父
	post  func(func()) bool // 投递到事件循环
	spawn func(func())      // 在事件循环之外执行

	state   atomic.Int32
	session atomic.Value // string

	out             transport
	gen             uint64 // 每次挂载新连接递增
	connected       bool
	sessionID       string
	activityTimeout time.Duration // 当前生效的心跳间隔
}

func newEngine(ctx context.Context, cfg *Config, post func(func()) bool, spawn func(func())) *engine {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}

	e := &engine{
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		ctx:     ctx,
		post:    post,
		spawn:   spawn,
	}
	e.dispatcher = NewDispatcher(log, metrics)
	e.bus = NewEventBus(e.dispatcher, log, metrics)
	e.registry = newRegistry(func(name string, auth Authorizer) *Channel {
		return newChannel(e, name, auth)
	})
	e.session.Store("")
	return e
}

func (e *engine) setState(s ConnectionState) {
	e.state.Store(int32(s))
}

func (e *engine) connectionState() ConnectionState {
	return ConnectionState(e.state.Load())
}

func (e *engine) sessionIDSnapshot() string {
	return e.session.Load().(string)
}

// send 发送出站命令
func (e *engine) send(cmd Command) error {
	if e.out == nil {
		return ErrNotConnected
	}
	if err := e.out.SendJSON(cmd); err != nil {
		return err
	}
	e.metrics.IncrementCommands(cmd.Event)
	e.log.Debug("command sent", zap.String("event", cmd.Event))
	return nil
}

// sendEvent 校验并编码自定义事件，随后在事件循环中发送。
// data 在调用时编码，之后修改 data 不影响已排队的命令。
func (e *engine) sendEvent(event string, data any) error {
	if event == "" || strings.HasPrefix(event, controlPrefix) || strings.HasPrefix(event, internalPrefix) {
		return fmt.Errorf("%w: %q", ErrReservedEvent, event)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("pusher: encode %s: %w", event, err)
	}
	if e.connectionState() != Connected {
		return ErrNotConnected
	}

	cmd := Command{Event: event, Data: json.RawMessage(raw)}
	if !e.post(func() {
		if err := e.send(cmd); err != nil {
			e.log.Warn("send event failed", zap.String("event", event), zap.Error(err))
		}
	}) {
		return ErrClientClosed
	}
	return nil
}

// attach 挂载新连接
func (e *engine) attach(t transport) {
	e.out = t
	e.gen++
	e.setState(Connecting)
	e.log.Debug("transport attached", zap.Uint64("gen", e.gen))
}

// detach 连接结束，合成 error（非本地关闭时）和 disconnected 事件
func (e *engine) detach(t transport, cause error) {
	if e.out != t {
		return
	}

	e.out = nil
	e.connected = false
	e.sessionID = ""
	e.session.Store("")
	e.setState(Disconnected)
	e.metrics.IncrementDisconnections()

	if e.cfg.ResumePolicy == ResumeAll {
		e.registry.Range(func(ch *Channel) bool {
			ch.suspend()
			return true
		})
	}

	if cause != nil && !errors.Is(cause, ws.ErrConnectionClosed) {
		code := 0
		var ce *ws.CloseError
		if errors.As(cause, &ce) {
			code = ce.Code
		}
		e.log.Warn("connection lost", zap.Error(cause), zap.Int("code", code))
		e.bus.Publish(controlMessage("", EventError, transportErrorData(&TransportError{Op: "read", Err: cause}, code)))
	} else {
		e.log.Info("disconnected")
	}

	e.bus.Publish(controlMessage("", EventDisconnected, "{}"))
}

// handleFrame 解析并处理一帧，无法解析的帧丢弃
// at 为读到该帧的时间，不受事件循环排队延迟影响
func (e *engine) handleFrame(frame []byte, at time.Time) {
	if e.log.Enabled(logger.DebugLevel) {
		e.log.Debug("frame received", zap.ByteString("frame", truncateFrame(frame)))
	}
	msg, err := decodeFrame(frame, at)
	if err != nil {
		e.metrics.IncrementProtocolErrors()
		e.log.Warn("frame dropped", zap.Error(err), zap.ByteString("frame", truncateFrame(frame)))
		return
	}
	e.handleMessage(msg)
}

// handleMessage 先推进状态机，再交给事件总线，处理函数看到的是更新后的状态
func (e *engine) handleMessage(msg Message) {
	if !e.applyControl(msg) {
		return
	}
	e.bus.Publish(msg)
}

// applyControl 消费控制事件，返回 false 表示该消息应丢弃
func (e *engine) applyControl(msg Message) bool {
	switch msg.Event {
	case EventConnectionEstablished:
		info, ok := parseConnectionInfo(msg.Data)
		if !ok {
			e.metrics.IncrementProtocolErrors()
			e.log.Warn("connection_established without socket_id", zap.String("data", msg.Data))
			return false
		}
		e.established(info)

	case EventSubscriptionSucceeded:
		if ch := e.registry.Get(msg.Channel); ch != nil {
			ch.subscribed(msg)
		}

	case EventSubscriptionCount:
		if ch := e.registry.Get(msg.Channel); ch != nil {
			ch.memberCount.Store(msg.Get("subscription_count").Int())
		}

	case EventPing:
		if e.out != nil {
			if err := e.out.SendJSONHigh(pongCommand()); err != nil {
				e.log.Warn("send pong failed", zap.Error(err))
			}
		}

	case EventError:
		e.log.Warn("server error",
			zap.Int64("code", msg.Get("code").Int()),
			zap.String("message", msg.Get("message").String()),
		)
	}
	return true
}

func (e *engine) established(info connectionInfo) {
	e.connected = true
	e.sessionID = info.SocketID
	e.session.Store(info.SocketID)
	e.activityTimeout = heartbeatInterval(info.ActivityTimeout, e.cfg.ActivityTimeout)
	if e.out != nil && e.activityTimeout < e.cfg.ActivityTimeout && e.out.SetPingInterval(e.activityTimeout) {
		e.log.Debug("heartbeat follows server activity timeout", zap.Duration("interval", e.activityTimeout))
	}
	e.setState(Connected)
	e.metrics.IncrementConnections()
	e.log.Info("connection established",
		zap.String("session_id", info.SocketID),
		zap.Duration("activity_timeout", info.ActivityTimeout),
	)

	e.registry.Range(func(ch *Channel) bool {
		ch.resume()
		return true
	})
}

// heartbeatInterval 取服务端 activity_timeout 与本地配置中较小者，服务端未给出时用本地值
func heartbeatInterval(server, local time.Duration) time.Duration {
	if server > 0 && server < local {
		return server
	}
	return local
}

const maxLoggedFrame = 256

func truncateFrame(frame []byte) []byte {
	if len(frame) > maxLoggedFrame {
		return frame[:maxLoggedFrame]
	}
	return frame
}
