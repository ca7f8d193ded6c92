// Package httpclient builds and sends the target requests of a load test run.
//
// A [RequestBuilder] is derived once from a run's configuration; the method is POST
// when a payload is present and GET otherwise. [NewClient] returns an http.Client with
// connection pooling sized for load generation and an explicit per-request timeout.
// [Requester] ties the two together for the dispatcher:
//
//	builder, err := httpclient.NewRequestBuilder(cfg)
//	if err != nil {
//		return err
//	}
//	req := httpclient.NewRequester(httpclient.NewClient(30*time.Second), builder)
//	status, err := req.Do(ctx)
//
// Any HTTP response, including 4xx and 5xx, is a completed exchange; Do only returns
// an error when the transport failed.
package httpclient
