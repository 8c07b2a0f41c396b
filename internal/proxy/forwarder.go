// Package proxy relays requests that no specialized route handles to the
// upstream server, streaming the response back.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/playerstats-proxy/internal/metrics"
	"github.com/playerstats-proxy/internal/upstream"
)

const opForward = "Forward"

// hopByHop headers are meaningful for a single connection only.
var hopByHop = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailers":            true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// Request is the part of an incoming request that is relayed. Path is the
// escaped path exactly as the client sent it.
type Request struct {
	Method        string
	Path          string
	RawQuery      string
	Header        http.Header
	Body          io.Reader
	ContentLength int64
}

// Response is an upstream response whose body has not been read yet. The
// caller must close Body.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Forwarder relays requests to one upstream base URL.
type Forwarder struct {
	client  *http.Client
	baseURL string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewForwarder creates a forwarder. client should not have a total timeout,
// or long downloads are cut off.
func NewForwarder(client *http.Client, baseURL string, m *metrics.Metrics, logger *slog.Logger) *Forwarder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		metrics: m,
		logger:  logger,
	}
}

// TargetURL is base + path, plus "?" + rawQuery when non-empty. Neither part
// is re-encoded.
func (f *Forwarder) TargetURL(path, rawQuery string) string {
	target := f.baseURL + path
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return target
}

// Forward sends req upstream and returns the response with its body unread.
// Cancelling ctx aborts the exchange, including a body still being read.
// Errors are *upstream.Error of class transport.
func (f *Forwarder) Forward(ctx context.Context, req Request) (*Response, error) {
	body := req.Body
	if body == http.NoBody {
		body = nil
	}

	out, err := http.NewRequestWithContext(ctx, req.Method, f.TargetURL(req.Path, req.RawQuery), body)
	if err != nil {
		return nil, upstream.Transport(opForward, err)
	}
	out.Header = filterHeaders(req.Header, "Host", "Content-Length")
	if body != nil && req.ContentLength > 0 {
		out.ContentLength = req.ContentLength
	}

	resp, err := f.client.Do(out)
	if err != nil {
		return nil, upstream.Transport(opForward, err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     filterHeaders(resp.Header, "Content-Length"),
		Body:       resp.Body,
	}, nil
}

// ServeHTTP relays r and streams the upstream response to w, flushing after
// every chunk. Transport failures are answered with 502.
func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp, err := f.Forward(r.Context(), Request{
		Method:        r.Method,
		Path:          r.URL.EscapedPath(),
		RawQuery:      r.URL.RawQuery,
		Header:        r.Header,
		Body:          r.Body,
		ContentLength: r.ContentLength,
	})
	if err != nil {
		f.metrics.ProxyRequest(r.Method, 0)
		f.fail(w, r, err)
		return
	}
	defer resp.Body.Close()

	f.metrics.ProxyRequest(r.Method, resp.StatusCode)

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	if err := stream(w, resp.Body); err != nil && !errors.Is(err, context.Canceled) {
		f.logger.Debug("proxy stream aborted", "tag", "proxy", "path", r.URL.Path, "error", err)
	}
}

func (f *Forwarder) fail(w http.ResponseWriter, r *http.Request, err error) {
	category := "request"
	var ue *upstream.Error
	if errors.As(err, &ue) {
		category = ue.Category
	}
	f.logger.Warn("proxy request failed", "tag", "proxy", "method", r.Method, "path", r.URL.Path, "category", category, "error", err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Upstream proxy error: " + category})
}

// stream copies src to w, flushing after each write so the client sees data
// as soon as the upstream sends it.
func stream(w http.ResponseWriter, src io.Reader) error {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// filterHeaders copies h without hop-by-hop headers and without the extra
// names given.
func filterHeaders(h http.Header, drop ...string) http.Header {
	out := make(http.Header, len(h))
	for k, vs := range h {
		ck := http.CanonicalHeaderKey(k)
		if hopByHop[ck] || slices.Contains(drop, ck) {
			continue
		}
		out[ck] = append([]string(nil), vs...)
	}
	return out
}
