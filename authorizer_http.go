package pusher

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"github.com/tokmz/pusher/pkg/logger"
	"github.com/tokmz/pusher/pkg/request"
)

const maxAuthBodyLen = 512

// HTTPAuthorizer 通过 HTTP 接口获取频道令牌
//
// 请求：POST endpoint，默认 JSON {"socket_id": ..., "channel_name": ...}，
// WithFormEncoding 时改为表单编码。
// 响应：{"auth": "...", "channel_data": ...}，非 2xx 按状态码分类为 *AuthError。
// 每次 Authorize 只发一次请求，失败由调用方决定是否重新订阅。
type HTTPAuthorizer struct {
	client   *request.Client
	endpoint string
	form     bool
	reqOpts  []request.Option
}

// HTTPAuthOption HTTP 授权器选项
type HTTPAuthOption func(*HTTPAuthorizer)

// WithBearerToken 固定的 Authorization: Bearer 头
func WithBearerToken(token string) HTTPAuthOption {
	return WithTokenSource(func() string { return token })
}

// WithTokenSource 每次请求前取 token，返回空串时不带 Authorization
func WithTokenSource(fn func() string) HTTPAuthOption {
	return func(a *HTTPAuthorizer) {
		a.reqOpts = append(a.reqOpts, request.WithInterceptor(request.NewAuthInterceptor(fn)))
	}
}

// WithAuthHeader 添加请求头
func WithAuthHeader(key, value string) HTTPAuthOption {
	return func(a *HTTPAuthorizer) {
		a.reqOpts = append(a.reqOpts, request.WithHeader(key, value))
	}
}

// WithAuthTimeout 单次授权请求超时，默认 10s
func WithAuthTimeout(d time.Duration) HTTPAuthOption {
	return func(a *HTTPAuthorizer) {
		a.reqOpts = append(a.reqOpts, request.WithTimeout(d))
	}
}

// WithAuthLogger 记录授权请求，Debug 级别输出请求与响应
func WithAuthLogger(l logger.Logger) HTTPAuthOption {
	return func(a *HTTPAuthorizer) {
		a.reqOpts = append(a.reqOpts,
			request.WithLogger(l),
			request.WithInterceptor(request.NewLoggingInterceptor(l)),
		)
	}
}

// WithFormEncoding 以 application/x-www-form-urlencoded 提交
func WithFormEncoding() HTTPAuthOption {
	return func(a *HTTPAuthorizer) {
		a.form = true
	}
}

// WithAuthClient 使用自定义 HTTP 客户端，忽略其他请求相关选项
func WithAuthClient(c *request.Client) HTTPAuthOption {
	return func(a *HTTPAuthorizer) {
		a.client = c
	}
}

// NewHTTPAuthorizer 创建 HTTP 授权器
func NewHTTPAuthorizer(endpoint string, opts ...HTTPAuthOption) *HTTPAuthorizer {
	a := &HTTPAuthorizer{endpoint: endpoint}
	for _, opt := range opts {
		opt(a)
	}
	if a.client == nil {
		a.client = request.New(append([]request.Option{request.WithTracing(true)}, a.reqOpts...)...)
	}
	return a
}

type authRequest struct {
	SocketID    string `json:"socket_id"`
	ChannelName string `json:"channel_name"`
}

// Authorize 实现 Authorizer
func (a *HTTPAuthorizer) Authorize(ctx context.Context, sessionID, channel string) (AuthToken, error) {
	req := a.client.Post(a.endpoint).SetContext(ctx)
	if a.form {
		form := url.Values{"socket_id": {sessionID}, "channel_name": {channel}}
		req.SetRawBody("application/x-www-form-urlencoded", []byte(form.Encode()))
	} else {
		req.SetBody(authRequest{SocketID: sessionID, ChannelName: channel})
	}

	resp, err := req.Do()
	if err != nil {
		kind := AuthNetworkFailure
		if errors.Is(err, request.ErrMarshal) || errors.Is(err, request.ErrInvalidURL) {
			kind = AuthUnclassified
		}
		return AuthToken{}, &AuthError{Kind: kind, Channel: channel, Err: err}
	}

	body := resp.Snippet(maxAuthBodyLen)
	if !resp.IsSuccess() {
		return AuthToken{}, &AuthError{
			Kind:    ClassifyStatus(resp.StatusCode),
			Channel: channel,
			Status:  resp.StatusCode,
			Body:    body,
		}
	}

	auth := resp.Get("auth")
	if auth.Type != gjson.String || auth.Str == "" {
		return AuthToken{}, &AuthError{
			Kind:    AuthUnclassified,
			Channel: channel,
			Status:  resp.StatusCode,
			Body:    body,
			Err:     errors.New("response has no auth signature"),
		}
	}

	return AuthToken{
		Auth:        auth.Str,
		ChannelData: normalizeData(resp.Get("channel_data")),
	}, nil
}

// Kind 实现 Authorizer
func (a *HTTPAuthorizer) Kind() AuthKind {
	return AuthDynamic
}
