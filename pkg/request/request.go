package request

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Request 链式构建的单次请求，Do 之后不应复用
type Request struct {
	client  *Client
	method  string
	url     string
	headers map[string]string
	body    []byte
	timeout time.Duration
	ctx     context.Context
	err     error // SetBody 序列化失败时记录，Do 时返回
}

func newRequest(c *Client, method, rawURL string) *Request {
	return &Request{
		client:  c,
		method:  method,
		url:     rawURL,
		headers: make(map[string]string),
		ctx:     context.Background(),
	}
}

// SetHeader 设置请求头
func (r *Request) SetHeader(k, v string) *Request {
	r.headers[k] = v
	return r
}

// SetBody JSON 请求体，未设置 Content-Type 时补 application/json
func (r *Request) SetBody(body any) *Request {
	data, err := json.Marshal(body)
	if err != nil {
		r.err = ErrMarshal.WithError(err)
		return r
	}
	r.body = data
	if _, ok := r.headers["Content-Type"]; !ok {
		r.headers["Content-Type"] = "application/json"
	}
	return r
}

// SetRawBody 原样发送 body
func (r *Request) SetRawBody(contentType string, body []byte) *Request {
	r.body = body
	r.headers["Content-Type"] = contentType
	return r
}

// SetTimeout 本次请求的超时，与客户端超时取较短者
func (r *Request) SetTimeout(d time.Duration) *Request {
	r.timeout = d
	return r
}

// SetContext 设置上下文
func (r *Request) SetContext(ctx context.Context) *Request {
	r.ctx = ctx
	return r
}

// SetBearerToken Authorization: Bearer
func (r *Request) SetBearerToken(token string) *Request {
	r.headers["Authorization"] = "Bearer " + token
	return r
}

// Do 发送请求并读完 body。只发送一次，失败不重试。
func (r *Request) Do() (*Response, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.client.do(r)
}

func (r *Request) resolveURL(base string) (string, error) {
	raw := r.url
	if base != "" && !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = strings.TrimRight(base, "/") + "/" + strings.TrimLeft(raw, "/")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidURL.WithError(err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", ErrInvalidURL.WithMessage("无效的URL: " + raw)
	}
	return u.String(), nil
}

func (r *Request) build(ctx context.Context, base string, headers map[string]string) (*http.Request, error) {
	target, err := r.resolveURL(base)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return nil, ErrRequestFailed.WithError(err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req, nil
}
