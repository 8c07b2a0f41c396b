package proxy

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playerstats-proxy/internal/upstream"
)

type echoed struct {
	Method string      `json:"method"`
	Path   string      `json:"path"`
	Raw    string      `json:"raw"`
	Query  string      `json:"query"`
	Body   string      `json:"body"`
	Header http.Header `json:"header"`
}

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Upstream", "yes")
		w.Header().Set("Keep-Alive", "timeout=5")
		w.WriteHeader(http.StatusTeapot)
		_ = json.NewEncoder(w).Encode(echoed{
			Method: r.Method,
			Path:   r.URL.Path,
			Raw:    r.URL.EscapedPath(),
			Query:  r.URL.RawQuery,
			Body:   string(body),
			Header: r.Header,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestForwarder(baseURL string) *Forwarder {
	return NewForwarder(upstream.NewStreamingClient(2*time.Second), baseURL, nil, nil)
}

func TestTargetURL(t *testing.T) {
	f := NewForwarder(http.DefaultClient, "http://up:1234//", nil, nil)

	assert.Equal(t, "http://up:1234/moss/x", f.TargetURL("/moss/x", ""))
	assert.Equal(t, "http://up:1234/a?b=1&c=%20d", f.TargetURL("/a", "b=1&c=%20d"))
}

func TestServeHTTP_RelaysRequestAndResponse(t *testing.T) {
	srv := echoServer(t)
	f := newTestForwarder(srv.URL + "/")

	req := httptest.NewRequest(http.MethodPost, "/moss/other/thing?x=1&y=%2F", strings.NewReader(`{"a":1}`))
	req.Header.Set("X-Custom", "kept")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Proxy-Authorization", "secret")
	req.Header.Set("Te", "trailers")
	rec := httptest.NewRecorder()

	f.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "yes", rec.Header().Get("X-Upstream"))
	assert.Empty(t, rec.Header().Get("Keep-Alive"))
	assert.Empty(t, rec.Header().Get("Content-Length"))

	var got echoed
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/moss/other/thing", got.Path)
	assert.Equal(t, "x=1&y=%2F", got.Query)
	assert.Equal(t, `{"a":1}`, got.Body)
	assert.Equal(t, "kept", got.Header.Get("X-Custom"))
	assert.Empty(t, got.Header.Get("Proxy-Authorization"))
	assert.Empty(t, got.Header.Get("Te"))
}

func TestServeHTTP_EscapedPathIsRelayedVerbatim(t *testing.T) {
	srv := echoServer(t)
	f := newTestForwarder(srv.URL)

	tests := []struct {
		name      string
		target    string
		wantRaw   string
		wantPath  string
		wantQuery string
	}{
		{"encoded slash", "/files/a%2Fb", "/files/a%2Fb", "/files/a/b", ""},
		{"encoded question mark", "/files/what%3Fx?y=1", "/files/what%3Fx", "/files/what?x", "y=1"},
		{"encoded colon", "/moss/items/minecraft%3Astone", "/moss/items/minecraft%3Astone", "/moss/items/minecraft:stone", ""},
		{"encoded space", "/files/a%20b?q=%20", "/files/a%20b", "/files/a b", "q=%20"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			f.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))

			require.Equal(t, http.StatusTeapot, rec.Code)
			var got echoed
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.wantRaw, got.Raw)
			assert.Equal(t, tt.wantPath, got.Path)
			assert.Equal(t, tt.wantQuery, got.Query)
		})
	}
}

func TestServeHTTP_UpstreamErrorStatusIsRelayed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rec := httptest.NewRecorder()
	newTestForwarder(srv.URL).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anything", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "nope\n", rec.Body.String())
}

func TestServeHTTP_RedirectsAreNotFollowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer srv.Close()

	rec := httptest.NewRecorder()
	newTestForwarder(srv.URL).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/start", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/elsewhere", rec.Header().Get("Location"))
}

func TestServeHTTP_ConnectionFailureIs502(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	rec := httptest.NewRecorder()
	newTestForwarder(base).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"detail":"Upstream proxy error: connection"}`, rec.Body.String())
}

func TestServeHTTP_StreamsChunks(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fl := w.(http.Flusher)
		_, _ = io.WriteString(w, "first\n")
		fl.Flush()
		<-release
		_, _ = io.WriteString(w, "second\n")
	}))
	defer srv.Close()

	front := httptest.NewServer(newTestForwarder(srv.URL))
	defer front.Close()

	resp, err := http.Get(front.URL + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "first\n", line)

	close(release)
	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(rest))
}

func TestForward_CancelAbortsExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := newTestForwarder(srv.URL).Forward(ctx, Request{Method: http.MethodGet, Path: "/slow"})
	require.Error(t, err)
	assert.True(t, upstream.IsTransport(err))
}

func TestFilterHeaders(t *testing.T) {
	h := http.Header{
		"Connection":        {"close"},
		"Transfer-Encoding": {"chunked"},
		"Upgrade":           {"websocket"},
		"Content-Length":    {"12"},
		"Host":              {"example"},
		"Accept":            {"application/json"},
	}

	out := filterHeaders(h, "Host", "Content-Length")
	assert.Equal(t, http.Header{"Accept": {"application/json"}}, out)

	out = filterHeaders(h, "Content-Length")
	assert.Equal(t, http.Header{"Accept": {"application/json"}, "Host": {"example"}}, out)
}
