package request

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// propagatingTransport 把当前 span 的 traceparent 写入请求头
// 授权服务据此把签名请求挂到客户端的调用链上
type propagatingTransport struct {
	next http.RoundTripper
}

func newTracingTransport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return propagatingTransport{next: next}
}

func (t propagatingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if !trace.SpanContextFromContext(ctx).IsValid() {
		return t.next.RoundTrip(req)
	}

	// 不修改调用方的请求
	out := req.Clone(ctx)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(out.Header))
	return t.next.RoundTrip(out)
}
