package idempotency

import (
	"bytes"
	"net/http"
	"strings"
)

// captureWriter holds the handler's response so it can be stored before the
// client sees it.
type captureWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newCaptureWriter() *captureWriter {
	return &captureWriter{header: make(http.Header)}
}

func (c *captureWriter) Header() http.Header { return c.header }

func (c *captureWriter) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
}

func (c *captureWriter) Write(p []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	return c.body.Write(p)
}

func (c *captureWriter) response() Response {
	status := c.status
	if status == 0 {
		status = http.StatusOK
	}
	var body []byte
	if c.body.Len() > 0 {
		body = bytes.Clone(c.body.Bytes())
	}
	return Response{Status: status, Headers: c.header.Clone(), Body: body}
}

func (c *captureWriter) flushTo(w http.ResponseWriter) {
	dst := w.Header()
	for name, values := range c.header {
		dst[name] = values
	}
	resp := c.response()
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

// storableHeaders drops hop-by-hop and per-response headers before persisting.
func storableHeaders(header http.Header) map[string][]string {
	out := make(map[string][]string, len(header))
	for name, values := range header {
		name = http.CanonicalHeaderKey(name)
		if _, skip := volatileHeaders[strings.ToLower(name)]; skip {
			continue
		}
		out[name] = append([]string(nil), values...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

var volatileHeaders = map[string]struct{}{
	"connection":          {},
	"content-length":      {},
	"date":                {},
	"keep-alive":          {},
	"proxy-authenticate":  {},
	"proxy-authorization": {},
	"set-cookie":          {},
	"te":                  {},
	"trailer":             {},
	"transfer-encoding":   {},
	"upgrade":             {},
	"x-request-id":        {},
}
