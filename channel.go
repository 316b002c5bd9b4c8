package pusher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tokmz/pusher/pkg/ws"
)

// State 频道订阅状态
type State int32

const (
	StateUnbound           State = iota // 未订阅
	StatePendingConnection              // 等待连接建立
	StateAuthorizing                    // 等待授权结果
	StateSubscribing                    // 订阅命令已发送
	StateSubscribed                     // 服务端确认订阅
	StateUnsubscribing                  // 退订中
	StateUnsubscribed                   // 已退订
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StatePendingConnection:
		return "pending_connection"
	case StateAuthorizing:
		return "authorizing"
	case StateSubscribing:
		return "subscribing"
	case StateSubscribed:
		return "subscribed"
	case StateUnsubscribing:
		return "unsubscribing"
	case StateUnsubscribed:
		return "unsubscribed"
	default:
		return "unknown"
	}
}

// Mode 频道类型
type Mode int

const (
	ModePublic         Mode = iota // 公共频道
	ModePrivateStatic              // 私有频道，预置令牌
	ModePrivateDynamic             // 私有频道，动态授权
	ModePresence                   // presence 频道（名称以 presence- 开头）
)

func (m Mode) String() string {
	switch m {
	case ModePrivateStatic:
		return "private_static"
	case ModePrivateDynamic:
		return "private_dynamic"
	case ModePresence:
		return "presence"
	default:
		return "public"
	}
}

const presencePrefix = "presence-"

func modeOf(name string, a Authorizer) Mode {
	switch {
	case a.Kind() == AuthNone:
		return ModePublic
	case strings.HasPrefix(name, presencePrefix):
		return ModePresence
	case a.Kind() == AuthStatic:
		return ModePrivateStatic
	default:
		return ModePrivateDynamic
	}
}

// Channel 频道订阅状态机
//
// 公开方法可在任意协程调用：修改类操作投递到事件循环执行，State/Err 读取原子镜像。
// 同一频道同一时刻最多一个在途订阅命令。
type Channel struct {
	name string
	mode Mode
	auth Authorizer
	e    *engine

	state       atomic.Int32
	memberCount atomic.Int64

	errMu sync.Mutex
	err   error

	// 以下字段仅在事件循环中访问
	st          State
	pendingAuth string // 在途授权请求 id，结果到达时不匹配则丢弃
	gen         uint64 // 发起授权或订阅时的连接代数
}

func newChannel(e *engine, name string, auth Authorizer) *Channel {
	auth = authorizerOrDefault(auth)
	return &Channel{
		name: name,
		mode: modeOf(name, auth),
		auth: auth,
		e:    e,
	}
}

// Name 频道名
func (ch *Channel) Name() string {
	return ch.name
}

// Mode 频道类型
func (ch *Channel) Mode() Mode {
	return ch.mode
}

// State 当前状态
func (ch *Channel) State() State {
	return State(ch.state.Load())
}

// Err 最近一次订阅失败的原因，重新订阅时清空
func (ch *Channel) Err() error {
	ch.errMu.Lock()
	defer ch.errMu.Unlock()
	return ch.err
}

// MemberCount 服务端通告的订阅人数（未通告时为 0）
func (ch *Channel) MemberCount() int {
	return int(ch.memberCount.Load())
}

// Subscribe 请求订阅，连接未建立时延迟到 connection_established
func (ch *Channel) Subscribe() error {
	if !ch.e.post(ch.subscribe) {
		return ErrClientClosed
	}
	return nil
}

// Unsubscribe 请求退订，立即发送退订命令并使在途授权失效
func (ch *Channel) Unsubscribe() error {
	if !ch.e.post(ch.unsubscribe) {
		return ErrClientClosed
	}
	return nil
}

// Bind 绑定本频道的事件
func (ch *Channel) Bind(event string, h Handler) *Binding {
	return ch.e.dispatcher.BindByChannelAndName(ch.name, event, h)
}

// BindAll 绑定本频道的所有事件
func (ch *Channel) BindAll(h Handler) *Binding {
	return ch.e.dispatcher.BindChannel(ch.name, h)
}

// OnSubscribed 订阅成功回调
func (ch *Channel) OnSubscribed(h Handler) *Binding {
	return ch.Bind(EventSubscriptionSucceeded, h)
}

// OnMemberCountChanged 订阅人数变化回调
func (ch *Channel) OnMemberCountChanged(fn func(count int)) *Binding {
	return ch.Bind(EventSubscriptionCount, func(msg Message) error {
		fn(int(msg.Get("subscription_count").Int()))
		return nil
	})
}

// OnSubscriptionError 订阅失败回调（授权失败或命令发送失败）
func (ch *Channel) OnSubscriptionError(fn func(err error)) *Binding {
	return ch.Bind(EventSubscriptionError, func(Message) error {
		fn(ch.Err())
		return nil
	})
}

// HandlerCount 本频道上绑定到 event 的处理函数数量
func (ch *Channel) HandlerCount(event string) int {
	return ch.e.dispatcher.scopedCount(ch.name, event)
}

func (ch *Channel) setErr(err error) {
	ch.errMu.Lock()
	ch.err = err
	ch.errMu.Unlock()
}

func (ch *Channel) setState(s State) {
	if ch.st == s {
		return
	}
	prev := ch.st
	ch.st = s
	ch.state.Store(int32(s))
	ch.e.log.Debug("channel state changed",
		zap.String("channel", ch.name),
		zap.Stringer("from", prev),
		zap.Stringer("to", s),
	)
}

// 以下方法仅在事件循环中调用

func (ch *Channel) subscribe() {
	switch ch.st {
	case StateUnbound, StateUnsubscribed:
	default:
		// 已在订阅流程中
		return
	}

	ch.setErr(nil)
	if !ch.e.connected {
		ch.setState(StatePendingConnection)
		return
	}
	ch.advance()
}

// advance 进入授权或直接发送订阅命令
func (ch *Channel) advance() {
	ch.gen = ch.e.gen
	ch.pendingAuth = ""
	if ch.auth.Kind() == AuthNone {
		ch.sendSubscribe(AuthToken{})
		return
	}
	ch.authorize()
}

func (ch *Channel) authorize() {
	reqID := uuid.NewString()
	ch.pendingAuth = reqID
	ch.setState(StateAuthorizing)

	e, auth, name, sessionID := ch.e, ch.auth, ch.name, ch.e.sessionID
	if auth.Kind() != AuthDynamic {
		tok, err := safeAuthorize(e.ctx, auth, sessionID, name)
		ch.authorized(reqID, tok, err)
		return
	}

	// 动态授权不能阻塞事件循环
	e.spawn(func() {
		ctx, cancel := context.WithTimeout(e.ctx, e.cfg.AuthTimeout)
		defer cancel()

		tok, err := safeAuthorize(ctx, auth, sessionID, name)
		if !e.post(func() { ch.authorized(reqID, tok, err) }) {
			e.log.Debug("authorization result dropped: client closed", zap.String("channel", name))
		}
	})
}

func (ch *Channel) authorized(reqID string, tok AuthToken, err error) {
	if ch.st != StateAuthorizing || ch.pendingAuth != reqID {
		ch.e.log.Debug("stale authorization dropped",
			zap.String("channel", ch.name),
			zap.Stringer("state", ch.st),
		)
		return
	}
	ch.pendingAuth = ""

	if err != nil {
		ch.fail(asAuthError(ch.name, err))
		return
	}
	// 令牌与 socket_id 绑定，连接已断开时等待重连后重新授权
	if !ch.e.connected {
		ch.setState(StatePendingConnection)
		return
	}
	ch.sendSubscribe(tok)
}

func (ch *Channel) sendSubscribe(tok AuthToken) {
	ch.setState(StateSubscribing)

	err := ch.e.send(NewSubscribeCommand(ch.name, tok))
	switch {
	case err == nil:
	case errors.Is(err, ws.ErrConnectionClosed), errors.Is(err, ErrNotConnected):
		// 连接即将结束，重连后重新订阅
		ch.setState(StatePendingConnection)
	default:
		ch.fail(err)
	}
}

// fail 回到 Unbound 并发布 subscription_error，不自动重试
func (ch *Channel) fail(err error) {
	ch.setErr(err)
	ch.setState(StateUnbound)

	var ae *AuthError
	if errors.As(err, &ae) {
		ch.e.metrics.IncrementAuthFailures(ch.name)
	}
	ch.e.log.Warn("subscribe failed",
		zap.String("channel", ch.name),
		zap.Error(err),
	)
	ch.e.bus.Publish(controlMessage(ch.name, EventSubscriptionError, subscriptionErrorData(err)))
}

func (ch *Channel) subscribed(msg Message) {
	if ch.st != StateSubscribing {
		ch.e.log.Debug("unexpected subscription_succeeded",
			zap.String("channel", ch.name),
			zap.Stringer("state", ch.st),
		)
		return
	}
	if ch.mode == ModePresence {
		if count := msg.Get("presence.count"); count.Exists() {
			ch.memberCount.Store(count.Int())
		}
	}
	ch.setState(StateSubscribed)
}

func (ch *Channel) unsubscribe() {
	switch ch.st {
	case StateUnbound, StateUnsubscribing, StateUnsubscribed:
		return
	case StatePendingConnection:
		ch.setState(StateUnsubscribed)
		return
	}

	// Authorizing / Subscribing / Subscribed
	ch.pendingAuth = ""
	ch.setState(StateUnsubscribing)
	if ch.e.connected {
		if err := ch.e.send(NewUnsubscribeCommand(ch.name)); err != nil {
			ch.e.log.Warn("send unsubscribe failed", zap.String("channel", ch.name), zap.Error(err))
		}
	}
	ch.setState(StateUnsubscribed)
}

// suspend 连接断开时按 ResumeAll 策略回到 PendingConnection
func (ch *Channel) suspend() {
	switch ch.st {
	case StateAuthorizing, StateSubscribing, StateSubscribed:
		ch.pendingAuth = ""
		ch.setState(StatePendingConnection)
	}
}

// resume connection_established 后推进未完成的订阅
// 上一个连接遗留的 Authorizing/Subscribing 需要用新的 socket_id 重新走一遍
func (ch *Channel) resume() {
	switch ch.st {
	case StatePendingConnection:
	case StateAuthorizing, StateSubscribing:
		if ch.gen == ch.e.gen {
			return
		}
	default:
		return
	}
	ch.advance()
}
