// Package upstream talks to the game-server statistics plugin.
package upstream

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/playerstats-proxy/internal/stats"
)

const opFetchPlayers = "FetchPlayers"

// NewHTTPClient returns a client whose whole exchange, body included, is
// bounded by timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// NewStreamingClient returns a client for long-lived relays: connecting and
// waiting for response headers are bounded by timeout, reading the body is not.
func NewStreamingClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   timeout,
			ResponseHeaderTimeout: timeout,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
		},
		// Redirects are relayed to the caller, not followed.
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// JoinURL appends path to base, trimming base's trailing slashes.
func JoinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

// Client fetches the player list.
type Client struct {
	http        *http.Client
	baseURL     string
	playersPath string
}

// NewClient creates a client for GET {baseURL}{playersPath}.
func NewClient(httpClient *http.Client, baseURL, playersPath string) *Client {
	if !strings.HasPrefix(playersPath, "/") {
		playersPath = "/" + playersPath
	}
	return &Client{
		http:        httpClient,
		baseURL:     strings.TrimRight(baseURL, "/"),
		playersPath: playersPath,
	}
}

// PlayersURL is the full upstream URL of the player list.
func (c *Client) PlayersURL() string {
	return c.baseURL + c.playersPath
}

// FetchPlayers downloads and parses the full player list.
func (c *Client) FetchPlayers(ctx context.Context) ([]stats.PlayerRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.PlayersURL(), nil)
	if err != nil {
		return nil, Transport(opFetchPlayers, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, Transport(opFetchPlayers, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, Transport(opFetchPlayers, &StatusError{Code: resp.StatusCode, Status: resp.Status})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Transport(opFetchPlayers, err)
	}

	players, err := stats.ParsePlayers(body)
	if err != nil {
		return nil, Payload(opFetchPlayers, err)
	}
	return players, nil
}
