package request

import (
	"context"
	"errors"
	"io"
	"maps"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tokmz/pusher/pkg/logger"
)

const tracerName = "github.com/tokmz/pusher/pkg/request"

// Client HTTP 客户端，可并发使用
type Client struct {
	cfg    *Config
	client *http.Client
	log    logger.Logger
}

// New 创建 HTTP 客户端
func New(opts ...Option) *Client {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig 使用配置创建 HTTP 客户端
func NewWithConfig(cfg *Config) *Client {
	rt := cfg.transport()
	if cfg.EnableTracing {
		rt = newTracingTransport(rt)
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout, Transport: rt},
		log:    log,
	}
}

// Get 创建 GET 请求
func (c *Client) Get(url string) *Request {
	return newRequest(c, http.MethodGet, url)
}

// Post 创建 POST 请求
func (c *Client) Post(url string) *Request {
	return newRequest(c, http.MethodPost, url)
}

func (c *Client) do(r *Request) (*Response, error) {
	ctx := r.ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var span trace.Span
	if c.cfg.EnableTracing {
		ctx, span = otel.Tracer(tracerName).Start(ctx, "HTTP "+r.method,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(attribute.String("http.request.method", r.method)),
		)
		defer span.End()
	}

	headers := maps.Clone(c.cfg.Headers)
	if headers == nil {
		headers = make(map[string]string, len(r.headers))
	}
	maps.Copy(headers, r.headers)

	httpReq, err := r.build(ctx, c.cfg.BaseURL, headers)
	if err != nil {
		return nil, err
	}
	if span != nil {
		span.SetAttributes(attribute.String("url.full", httpReq.URL.String()))
	}

	for _, ic := range c.cfg.Interceptors {
		if err := ic.BeforeRequest(ctx, httpReq); err != nil {
			return nil, ErrRequestFailed.WithError(err)
		}
	}

	start := time.Now()
	body, httpResp, err := c.roundTrip(httpReq)
	if err != nil {
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		c.log.ErrorContext(ctx, "http request failed",
			zap.String("method", httpReq.Method),
			zap.String("url", httpReq.URL.String()),
			zap.Error(err),
		)
		var ne net.Error
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
			(errors.As(err, &ne) && ne.Timeout()) {
			return nil, ErrTimeout.WithError(err)
		}
		return nil, ErrRequestFailed.WithError(err)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       body,
		Duration:   time.Since(start),
		Request:    httpReq,
	}
	if span != nil {
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
		if resp.IsError() {
			span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		}
	}

	for _, ic := range c.cfg.Interceptors {
		if err := ic.AfterResponse(ctx, resp); err != nil {
			return resp, ErrRequestFailed.WithError(err)
		}
	}
	return resp, nil
}

func (c *Client) roundTrip(req *http.Request) ([]byte, *http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return body, resp, nil
}
