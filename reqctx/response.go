package reqctx

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"
)

// Response is the value a middleware, hook, or handler can return to
// short-circuit the pipeline. Exactly one of Body / Stream is non-empty.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Stream     io.Reader
}

// pre-cached content-type strings for the hot path.
const (
	contentTypeJSON = "application/json; charset=utf-8"
	contentTypeText = "text/plain; charset=utf-8"
	contentTypeHTML = "text/html; charset=utf-8"
)

var jsonBufPool = sync.Pool{New: func() any { return new(bytes.Buffer) }}

// ResponseBuilder accumulates response state for one request and writes
// it to the underlying http.ResponseWriter. It is reset and reused
// across requests alongside its owning Context.
type ResponseBuilder struct {
	w           http.ResponseWriter
	status      int
	wroteHeader bool
	bytesWritten int
	jsonEscape  bool
}

func newResponseBuilder() *ResponseBuilder {
	return &ResponseBuilder{jsonEscape: true}
}

func (b *ResponseBuilder) reset() {
	b.w = nil
	b.status = 0
	b.wroteHeader = false
	b.bytesWritten = 0
	b.jsonEscape = true
}

func (b *ResponseBuilder) bind(w http.ResponseWriter) { b.w = w }

// Status stages the status code to be written; returns the builder so
// calls can chain, e.g. c.Status(201).JSON(v).
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.status = code
	return b
}

// StatusCode returns the status that will be (or was) written.
func (b *ResponseBuilder) StatusCode() int {
	if b.status != 0 {
		return b.status
	}
	if b.wroteHeader {
		return http.StatusOK
	}
	return 0
}

// WroteHeader reports whether the response header has already been sent.
func (b *ResponseBuilder) WroteHeader() bool { return b.wroteHeader }

// Header sets a response header; has no effect once the header is written.
func (b *ResponseBuilder) Header(key, value string) { b.w.Header().Set(key, value) }

func (b *ResponseBuilder) writeHeader(status int, contentType string, length int) {
	if b.wroteHeader {
		return
	}
	if contentType != "" {
		b.Header("Content-Type", contentType)
	}
	if length >= 0 {
		b.Header("Content-Length", strconv.Itoa(length))
	}
	if status == 0 {
		status = http.StatusOK
	}
	b.w.WriteHeader(status)
	b.wroteHeader = true
}

// JSON encodes v and writes it with Content-Type application/json.
func (b *ResponseBuilder) JSON(v any) error {
	buf := jsonBufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer jsonBufPool.Put(buf)

	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(b.jsonEscape)
	if err := enc.Encode(v); err != nil {
		if !b.wroteHeader {
			b.w.WriteHeader(http.StatusInternalServerError)
			b.wroteHeader = true
		}
		return err
	}
	out := buf.Bytes()
	if n := len(out); n > 0 && out[n-1] == '\n' {
		out = out[:n-1]
	}
	b.writeHeader(b.status, contentTypeJSON, len(out))
	n, err := b.w.Write(out)
	b.bytesWritten += n
	return err
}

// Text writes a text/plain response.
func (b *ResponseBuilder) Text(status int, body string) error {
	b.writeHeader(status, contentTypeText, len(body))
	n, err := io.WriteString(b.w, body)
	b.bytesWritten += n
	return err
}

// HTML writes a text/html response.
func (b *ResponseBuilder) HTML(status int, body string) error {
	b.writeHeader(status, contentTypeHTML, len(body))
	n, err := io.WriteString(b.w, body)
	b.bytesWritten += n
	return err
}

// Send writes raw bytes with an explicit content type.
func (b *ResponseBuilder) Send(status int, contentType string, data []byte) (int, error) {
	b.writeHeader(status, contentType, len(data))
	n, err := b.w.Write(data)
	b.bytesWritten += n
	return n, err
}

// Redirect writes a Location header and redirect status.
func (b *ResponseBuilder) Redirect(status int, url string) error {
	if !b.wroteHeader {
		b.Header("Location", url)
		b.w.WriteHeader(status)
		b.wroteHeader = true
	}
	return nil
}

// NoContent writes a 204 with no body.
func (b *ResponseBuilder) NoContent() error {
	if !b.wroteHeader {
		b.w.WriteHeader(http.StatusNoContent)
		b.wroteHeader = true
	}
	return nil
}

// Stream copies reader to the response with the given status and content type.
func (b *ResponseBuilder) Stream(status int, contentType string, r io.Reader) error {
	b.writeHeader(status, contentType, -1)
	n, err := io.Copy(b.w, r)
	b.bytesWritten += int(n)
	return err
}

// --- Context convenience forwarders ---

func (c *Context) Status(code int) *ResponseBuilder { return c.resp.bindAnd(c.res).Status(code) }
func (c *Context) StatusCode() int                  { return c.resp.StatusCode() }
func (c *Context) Header(key, value string)         { c.resp.bindAnd(c.res).Header(key, value) }
func (c *Context) WroteHeader() bool                { return c.resp.WroteHeader() }
func (c *Context) JSON(v any) error                 { return c.resp.bindAnd(c.res).JSON(v) }
func (c *Context) Text(status int, body string) error {
	return c.resp.bindAnd(c.res).Text(status, body)
}
func (c *Context) HTML(status int, body string) error {
	return c.resp.bindAnd(c.res).HTML(status, body)
}
func (c *Context) Send(status int, contentType string, data []byte) (int, error) {
	return c.resp.bindAnd(c.res).Send(status, contentType, data)
}
func (c *Context) Redirect(status int, url string) error {
	return c.resp.bindAnd(c.res).Redirect(status, url)
}
func (c *Context) NoContent() error { return c.resp.bindAnd(c.res).NoContent() }
func (c *Context) Stream(status int, contentType string, r io.Reader) error {
	return c.resp.bindAnd(c.res).Stream(status, contentType, r)
}

// bindAnd binds w if not already bound to the current request's writer,
// so repeated calls within a single request reuse the same builder state.
func (b *ResponseBuilder) bindAnd(w http.ResponseWriter) *ResponseBuilder {
	if b.w == nil {
		b.w = w
	}
	return b
}
