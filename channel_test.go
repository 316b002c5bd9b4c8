package pusher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/tokmz/pusher/pkg/errors"
	"github.com/tokmz/pusher/pkg/ws"
)

const subscribedFrame = `{"event":"protocol_internal:subscription_succeeded","channel":"orders","data":"{}"}`

// authRecorder 记录动态授权调用
type authRecorder struct {
	sessions []string
	token    AuthToken
	err      error
}

func (r *authRecorder) provider() Authorizer {
	return DynamicProvider(func(ctx context.Context, sessionID, channel string) (AuthToken, error) {
		r.sessions = append(r.sessions, sessionID)
		return r.token, r.err
	})
}

func TestModeOf(t *testing.T) {
	dynamic := DynamicProvider(func(context.Context, string, string) (AuthToken, error) {
		return AuthToken{}, nil
	})

	tests := []struct {
		name string
		auth Authorizer
		want Mode
	}{
		{"orders", nil, ModePublic},
		{"presence-room", nil, ModePublic},
		{"private-orders", StaticToken("sig"), ModePrivateStatic},
		{"private-orders", dynamic, ModePrivateDynamic},
		{"presence-room", StaticPresenceToken("sig", "{}"), ModePresence},
		{"presence-room", dynamic, ModePresence},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, modeOf(tt.name, authorizerOrDefault(tt.auth)))
		})
	}
}

func TestChannel_PublicSubscribeBeforeConnect(t *testing.T) {
	h := newHarness(t)
	ch := h.channel("orders", nil)
	assert.Equal(t, StateUnbound, ch.State())

	h.subscribe(ch)
	assert.Equal(t, StatePendingConnection, ch.State())

	var seen State
	ch.OnSubscribed(HandlerFunc(func(Message) {
		seen = ch.State()
	}))

	tr := h.attach("1.1")
	assert.Equal(t, StateSubscribing, ch.State())
	require.Len(t, tr.commands(), 1)
	assert.JSONEq(t, `{"event":"protocol:subscribe","data":{"channel":"orders"}}`, mustJSON(t, tr.commands()[0]))

	h.frame(subscribedFrame)
	assert.Equal(t, StateSubscribed, ch.State())
	assert.Equal(t, StateSubscribed, seen, "handlers observe the updated state")
	assert.NoError(t, ch.Err())
}

func TestChannel_SubscribeIsIdempotent(t *testing.T) {
	h := newHarness(t)
	tr := h.attach("1.1")
	ch := h.channel("orders", nil)

	h.subscribe(ch)
	h.subscribe(ch)
	assert.Equal(t, StateSubscribing, ch.State())

	h.frame(subscribedFrame)
	h.subscribe(ch)

	assert.Equal(t, StateSubscribed, ch.State())
	assert.Equal(t, []string{CommandSubscribe}, tr.events())
}

func TestChannel_StaticTokenCommand(t *testing.T) {
	h := newHarness(t)
	tr := h.attach("1.1")
	ch := h.channel("private-orders", StaticToken("abc123"))

	h.subscribe(ch)

	assert.Equal(t, StateSubscribing, ch.State())
	require.Len(t, tr.commands(), 1)
	assert.Equal(t,
		`{"event":"protocol:subscribe","data":{"channel":"private-orders","auth":"abc123"}}`,
		mustJSON(t, tr.commands()[0]),
	)
}

func TestChannel_Presence(t *testing.T) {
	h := newHarness(t)
	tr := h.attach("1.1")
	ch := h.channel("presence-room", StaticPresenceToken("sig", `{"user_id":"u1"}`))
	assert.Equal(t, ModePresence, ch.Mode())

	h.subscribe(ch)
	require.Len(t, tr.commands(), 1)
	assert.JSONEq(t,
		`{"event":"protocol:subscribe","data":{"channel":"presence-room","auth":"sig","channel_data":"{\"user_id\":\"u1\"}"}}`,
		mustJSON(t, tr.commands()[0]),
	)

	h.frame(`{"event":"protocol_internal:subscription_succeeded","channel":"presence-room","data":{"presence":{"count":3,"ids":["u1","u2","u3"]}}}`)
	assert.Equal(t, StateSubscribed, ch.State())
	assert.Equal(t, 3, ch.MemberCount())
}

func TestChannel_MemberCount(t *testing.T) {
	h := newHarness(t)
	h.attach("1.1")
	ch := h.channel("orders", nil)
	h.subscribe(ch)
	h.frame(subscribedFrame)

	var counts []int
	ch.OnMemberCountChanged(func(n int) {
		counts = append(counts, n)
	})

	h.frame(`{"event":"protocol_internal:subscription_count","channel":"orders","data":"{\"subscription_count\":5}"}`)
	h.frame(`{"event":"protocol_internal:subscription_count","channel":"unknown","data":"{\"subscription_count\":9}"}`)

	assert.Equal(t, 5, ch.MemberCount())
	assert.Equal(t, []int{5}, counts)
}

func TestChannel_DynamicAuth(t *testing.T) {
	h := newHarness(t)
	tr := h.attach("1.1")
	rec := &authRecorder{token: AuthToken{Auth: "key:sig"}}
	ch := h.channel("private-orders", rec.provider())

	h.subscribe(ch)
	assert.Equal(t, StateAuthorizing, ch.State())
	assert.Empty(t, tr.commands(), "nothing is sent before the token arrives")

	require.Equal(t, 1, h.runAuth())
	assert.Equal(t, StateSubscribing, ch.State())
	assert.Equal(t, []string{"1.1"}, rec.sessions)
	require.Len(t, tr.commands(), 1)
	assert.JSONEq(t,
		`{"event":"protocol:subscribe","data":{"channel":"private-orders","auth":"key:sig"}}`,
		mustJSON(t, tr.commands()[0]),
	)
}

func TestChannel_AuthFailure(t *testing.T) {
	h := newHarness(t)
	tr := h.attach("1.1")

	sibling := h.channel("orders", nil)
	h.subscribe(sibling)
	h.frame(subscribedFrame)

	rec := &authRecorder{err: &AuthError{Kind: AuthUnauthorized, Status: 401}}
	ch := h.channel("private-orders", rec.provider())

	var notified error
	ch.OnSubscriptionError(func(err error) {
		notified = err
	})
	var payload Message
	ch.Bind(EventSubscriptionError, HandlerFunc(func(msg Message) {
		payload = msg
	}))

	h.subscribe(ch)
	h.runAuth()

	assert.Equal(t, StateUnbound, ch.State())
	err := ch.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, perrors.ErrUnauthorized)

	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "private-orders", ae.Channel)
	assert.Equal(t, err, notified)

	assert.Equal(t, "private-orders", payload.Channel)
	assert.Equal(t, "AuthError", payload.Get("type").String())
	assert.Equal(t, "unauthorized", payload.Get("kind").String())
	assert.Equal(t, int64(401), payload.Get("status").Int())

	// 没有订阅命令，也不自动重试
	assert.Equal(t, []string{CommandSubscribe}, tr.events())
	assert.Equal(t, 0, h.runAuth())
	assert.Equal(t, int64(1), h.metrics.authFailures.Load())

	assert.Equal(t, StateSubscribed, sibling.State(), "sibling channel is unaffected")

	// 再次订阅清空错误并重新授权
	rec.err = nil
	rec.token = AuthToken{Auth: "key:sig"}
	h.subscribe(ch)
	assert.NoError(t, ch.Err())
	assert.Equal(t, StateAuthorizing, ch.State())
	h.runAuth()
	assert.Equal(t, StateSubscribing, ch.State())
}

func TestChannel_AuthorizerPanic(t *testing.T) {
	h := newHarness(t)
	h.attach("1.1")
	ch := h.channel("private-orders", DynamicProvider(func(context.Context, string, string) (AuthToken, error) {
		panic("broken authorizer")
	}))

	h.subscribe(ch)
	assert.NotPanics(t, func() { h.runAuth() })

	assert.Equal(t, StateUnbound, ch.State())
	assert.ErrorIs(t, ch.Err(), perrors.ErrUnclassified)
}

func TestChannel_UnsubscribeDuringAuth(t *testing.T) {
	h := newHarness(t)
	tr := h.attach("1.1")
	rec := &authRecorder{token: AuthToken{Auth: "key:sig"}}
	ch := h.channel("private-orders", rec.provider())

	h.subscribe(ch)
	h.unsubscribe(ch)
	assert.Equal(t, StateUnsubscribed, ch.State())

	// 授权结果晚于退订到达，被丢弃
	h.runAuth()

	assert.Equal(t, StateUnsubscribed, ch.State())
	assert.Equal(t, []string{CommandUnsubscribe}, tr.events())
}

func TestChannel_ResubscribeDropsEarlierAuth(t *testing.T) {
	h := newHarness(t)
	tr := h.attach("1.1")
	rec := &authRecorder{token: AuthToken{Auth: "key:sig"}}
	ch := h.channel("private-orders", rec.provider())

	h.subscribe(ch)
	h.unsubscribe(ch)
	h.subscribe(ch)

	require.Equal(t, 2, h.runAuth())
	assert.Equal(t, StateSubscribing, ch.State())
	assert.Equal(t, []string{CommandUnsubscribe, CommandSubscribe}, tr.events())
}

func TestChannel_Unsubscribe(t *testing.T) {
	t.Run("pending", func(t *testing.T) {
		h := newHarness(t)
		ch := h.channel("orders", nil)
		h.subscribe(ch)
		h.unsubscribe(ch)
		assert.Equal(t, StateUnsubscribed, ch.State())

		tr := h.attach("1.1")
		assert.Empty(t, tr.commands())
		assert.Equal(t, StateUnsubscribed, ch.State())
	})

	t.Run("subscribed", func(t *testing.T) {
		h := newHarness(t)
		tr := h.attach("1.1")
		ch := h.channel("orders", nil)
		h.subscribe(ch)
		h.frame(subscribedFrame)

		h.unsubscribe(ch)
		h.unsubscribe(ch)

		assert.Equal(t, StateUnsubscribed, ch.State())
		require.Len(t, tr.commands(), 2)
		assert.JSONEq(t, `{"event":"protocol:unsubscribe","data":{"channel":"orders"}}`, mustJSON(t, tr.commands()[1]))

		// 退订后的确认被忽略
		h.frame(subscribedFrame)
		assert.Equal(t, StateUnsubscribed, ch.State())

		h.subscribe(ch)
		assert.Equal(t, StateSubscribing, ch.State())
	})

	t.Run("unbound", func(t *testing.T) {
		h := newHarness(t)
		tr := h.attach("1.1")
		ch := h.channel("orders", nil)

		h.unsubscribe(ch)
		assert.Equal(t, StateUnbound, ch.State())
		assert.Empty(t, tr.commands())
	})
}

func TestChannel_SendFailure(t *testing.T) {
	t.Run("connection closing", func(t *testing.T) {
		h := newHarness(t)
		tr := h.attach("1.1")
		tr.failWith(ws.ErrConnectionClosed)
		ch := h.channel("orders", nil)

		h.subscribe(ch)
		assert.Equal(t, StatePendingConnection, ch.State())
		assert.NoError(t, ch.Err())

		tr2 := h.attach("2.2")
		assert.Equal(t, StateSubscribing, ch.State())
		assert.Equal(t, []string{CommandSubscribe}, tr2.events())
	})

	t.Run("other error", func(t *testing.T) {
		h := newHarness(t)
		tr := h.attach("1.1")
		sendErr := errors.New("queue full")
		tr.failWith(sendErr)
		ch := h.channel("orders", nil)

		var payload Message
		ch.Bind(EventSubscriptionError, HandlerFunc(func(msg Message) {
			payload = msg
		}))

		h.subscribe(ch)
		assert.Equal(t, StateUnbound, ch.State())
		assert.ErrorIs(t, ch.Err(), sendErr)
		assert.Equal(t, "SendError", payload.Get("type").String())
		assert.Equal(t, int64(0), h.metrics.authFailures.Load())
	})
}

func TestChannel_AuthResultAfterDisconnect(t *testing.T) {
	h := newHarness(t)
	tr := h.attach("1.1")
	rec := &authRecorder{token: AuthToken{Auth: "key:sig"}}
	ch := h.channel("private-orders", rec.provider())

	h.subscribe(ch)
	h.detach(tr, nil)
	h.runAuth()

	// 令牌绑定旧 socket_id，等待重连后重新授权
	assert.Equal(t, StatePendingConnection, ch.State())
	assert.Empty(t, tr.commands())

	tr2 := h.attach("2.2")
	assert.Equal(t, StateAuthorizing, ch.State())
	h.runAuth()

	assert.Equal(t, []string{"1.1", "2.2"}, rec.sessions)
	assert.Equal(t, []string{CommandSubscribe}, tr2.events())
}

func TestChannel_AuthInFlightAcrossReconnect(t *testing.T) {
	h := newHarness(t)
	tr := h.attach("1.1")
	rec := &authRecorder{token: AuthToken{Auth: "key:sig"}}
	ch := h.channel("private-orders", rec.provider())

	h.subscribe(ch)
	h.detach(tr, nil)
	assert.Equal(t, StateAuthorizing, ch.State())

	tr2 := h.attach("2.2")

	// 旧连接的授权结果被丢弃，只有新连接的生效
	require.Equal(t, 2, h.runAuth())
	assert.Equal(t, StateSubscribing, ch.State())
	assert.Equal(t, []string{CommandSubscribe}, tr2.events())
	assert.Empty(t, tr.commands())
}

func TestChannel_ResumePending(t *testing.T) {
	h := newHarness(t)
	tr := h.attach("1.1")

	subscribed := h.channel("orders", nil)
	h.subscribe(subscribed)
	h.frame(subscribedFrame)

	inFlight := h.channel("invoices", nil)
	h.subscribe(inFlight)

	h.detach(tr, nil)
	assert.Equal(t, StateSubscribed, subscribed.State())
	assert.Equal(t, StateSubscribing, inFlight.State())

	tr2 := h.attach("2.2")
	require.Len(t, tr2.commands(), 1)
	assert.JSONEq(t, `{"event":"protocol:subscribe","data":{"channel":"invoices"}}`, mustJSON(t, tr2.commands()[0]))
	assert.Equal(t, StateSubscribed, subscribed.State())
}

func TestChannel_ResumeAll(t *testing.T) {
	h := newHarness(t, WithResumePolicy(ResumeAll))
	tr := h.attach("1.1")

	ch := h.channel("orders", nil)
	h.subscribe(ch)
	h.frame(subscribedFrame)

	h.detach(tr, nil)
	assert.Equal(t, StatePendingConnection, ch.State())

	tr2 := h.attach("2.2")
	assert.Equal(t, StateSubscribing, ch.State())
	assert.Equal(t, []string{CommandSubscribe}, tr2.events())

	h.frame(subscribedFrame)
	assert.Equal(t, StateSubscribed, ch.State())
}

func TestChannel_SubscribeFromHandler(t *testing.T) {
	h := newHarness(t)
	tr := h.attach("1.1")
	first := h.channel("orders", nil)
	second := h.channel("invoices", nil)

	first.OnSubscribed(func(Message) error {
		return second.Subscribe()
	})

	h.subscribe(first)
	h.frame(subscribedFrame)

	assert.Equal(t, StateSubscribing, second.State())
	assert.Equal(t, []string{CommandSubscribe, CommandSubscribe}, tr.events())
}

func TestChannel_HandlerCount(t *testing.T) {
	h := newHarness(t)
	ch := h.channel("orders", nil)
	other := h.channel("invoices", nil)

	b := ch.Bind("created", HandlerFunc(func(Message) {}))
	ch.Bind("created", HandlerFunc(func(Message) {}))
	ch.BindAll(HandlerFunc(func(Message) {}))
	other.Bind("created", HandlerFunc(func(Message) {}))

	assert.Equal(t, 2, ch.HandlerCount("created"))
	b.Unbind()
	assert.Equal(t, 1, ch.HandlerCount("created"))
	assert.Equal(t, 0, ch.HandlerCount("deleted"))
}

func TestChannel_ClosedQueue(t *testing.T) {
	h := newHarness(t)
	ch := h.channel("orders", nil)
	h.q.close()

	assert.ErrorIs(t, ch.Subscribe(), ErrClientClosed)
	assert.ErrorIs(t, ch.Unsubscribe(), ErrClientClosed)
}
