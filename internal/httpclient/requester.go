package httpclient

import (
	"context"
	"io"
	"net/http"

	"github.com/torosent/volley/internal/tracing"
)

// maxDrainBytes caps how much of a response body is read so connections can be reused.
const maxDrainBytes = 1024 * 1024

// Requester sends one request per call and reports the status code of the
// completed exchange. Non-2xx responses are not errors; only transport failures are.
type Requester struct {
	client    *http.Client
	builder   *RequestBuilder
	propagate bool
}

func NewRequester(client *http.Client, builder *RequestBuilder) *Requester {
	return &Requester{client: client, builder: builder}
}

// WithTracePropagation makes every request carry W3C trace context headers.
func (r *Requester) WithTracePropagation(enabled bool) *Requester {
	r.propagate = enabled
	return r
}

func (r *Requester) Do(ctx context.Context) (int, error) {
	req, err := r.builder.Build(ctx)
	if err != nil {
		return 0, err
	}
	if r.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	return resp.StatusCode, nil
}

// CloseIdleConnections releases pooled connections once a run is over.
func (r *Requester) CloseIdleConnections() {
	r.client.CloseIdleConnections()
}
