package pipeline

import (
	"encoding/json"
	"net/http"

	"github.com/nexuscore/nexus/reqctx"
)

// normalize turns a terminal pipeline result into a *reqctx.Response: a
// *reqctx.Response passes through unchanged; nil becomes an empty 200;
// anything else is JSON-encoded at 200 with Content-Type
// application/json.
func normalize(v any) (*reqctx.Response, error) {
	switch r := v.(type) {
	case *reqctx.Response:
		return r, nil
	case nil:
		return &reqctx.Response{StatusCode: http.StatusOK}, nil
	default:
		body, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		return &reqctx.Response{
			StatusCode: http.StatusOK,
			Headers:    http.Header{"Content-Type": []string{"application/json"}},
			Body:       body,
		}, nil
	}
}

// mustJSON marshals v, falling back to a literal null on the
// (practically unreachable) marshal error rather than propagating it
// through an already-failing validation path.
func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("null")
	}
	return b
}

// write sends resp to the client through the context's ResponseBuilder.
func write(c *reqctx.Context, resp *reqctx.Response) error {
	if c.WroteHeader() {
		return nil
	}
	for k, vals := range resp.Headers {
		for _, v := range vals {
			c.Header(k, v)
		}
	}
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	if resp.Stream != nil {
		return c.Stream(status, "", resp.Stream)
	}
	ct := resp.Headers.Get("Content-Type")
	_, err := c.Send(status, ct, resp.Body)
	return err
}
