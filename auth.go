package pusher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tokmz/pusher/pkg/tracing"
)

// AuthToken 授权结果，只用于出站订阅命令
type AuthToken struct {
	Auth        string // 签名
	ChannelData string // presence 频道的成员信息（JSON 文本，可选）
}

// AuthKind 授权方式
type AuthKind int

const (
	AuthNone    AuthKind = iota // 公共频道，无需授权
	AuthStatic                  // 预置令牌，同步返回
	AuthDynamic                 // 外部调用，可能有网络 I/O，在事件循环之外执行
)

func (k AuthKind) String() string {
	switch k {
	case AuthStatic:
		return "static"
	case AuthDynamic:
		return "dynamic"
	default:
		return "none"
	}
}

// Authorizer 授权器
type Authorizer interface {
	// Authorize 为 (sessionID, channel) 生成令牌，失败时返回 *AuthError 或可分类的错误
	Authorize(ctx context.Context, sessionID, channel string) (AuthToken, error)
	// Kind 授权方式，决定是否需要在事件循环之外执行
	Kind() AuthKind
}

// AuthFunc 动态授权函数
type AuthFunc func(ctx context.Context, sessionID, channel string) (AuthToken, error)

type noAuth struct{}

// NoAuth 公共频道授权器，返回空令牌
func NoAuth() Authorizer {
	return noAuth{}
}

func (noAuth) Authorize(context.Context, string, string) (AuthToken, error) {
	return AuthToken{}, nil
}

func (noAuth) Kind() AuthKind {
	return AuthNone
}

type staticToken struct {
	token AuthToken
}

// StaticToken 预置令牌授权器
func StaticToken(auth string) Authorizer {
	return staticToken{token: AuthToken{Auth: auth}}
}

// StaticPresenceToken 带成员信息的预置令牌授权器
func StaticPresenceToken(auth, channelData string) Authorizer {
	return staticToken{token: AuthToken{Auth: auth, ChannelData: channelData}}
}

func (s staticToken) Authorize(context.Context, string, string) (AuthToken, error) {
	return s.token, nil
}

func (staticToken) Kind() AuthKind {
	return AuthStatic
}

type dynamicProvider struct {
	fn AuthFunc
}

// DynamicProvider 动态授权器，fn 在独立协程中执行
func DynamicProvider(fn AuthFunc) Authorizer {
	return dynamicProvider{fn: fn}
}

func (p dynamicProvider) Authorize(ctx context.Context, sessionID, channel string) (tok AuthToken, err error) {
	ctx, span := tracing.StartSpan(ctx, "pusher.authorize",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("pusher.channel", channel)),
	)
	defer func() {
		tracing.RecordError(span, err)
		span.End()
	}()

	return p.fn(ctx, sessionID, channel)
}

func (dynamicProvider) Kind() AuthKind {
	return AuthDynamic
}

// safeAuthorize 调用授权器，panic 转为错误
func safeAuthorize(ctx context.Context, a Authorizer, sessionID, channel string) (tok AuthToken, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("authorizer panic: %v", r)
		}
	}()
	return a.Authorize(ctx, sessionID, channel)
}

// authorizerOrDefault nil 视为公共频道
func authorizerOrDefault(a Authorizer) Authorizer {
	if a == nil {
		return NoAuth()
	}
	return a
}
