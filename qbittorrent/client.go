package qbittorrent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

// Client issues the fixed Web API calls this server needs outside the
// pass-through proxy: the torrent list, stop/start commands, and the
// version endpoint. Callers supply the session cookie obtained from Auth;
// an empty cookie means the instance is in skip-auth mode.
type Client struct {
	http   *http.Client
	logger zerolog.Logger
}

// NewClient creates a client sharing the package-wide HTTP client.
func NewClient(httpClient *http.Client, logger zerolog.Logger) *Client {
	return &Client{
		http:   httpClient,
		logger: logger.With().Str("component", "qbt-client").Logger(),
	}
}

// Torrents fetches the instance's full torrent list.
func (c *Client) Torrents(ctx context.Context, inst Instance, cookie string) ([]Torrent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		instanceURL(inst.URL, "/torrents/info", ""), nil)
	if err != nil {
		return nil, fmt.Errorf("build torrents request: %w", err)
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: torrents/info returned HTTP %d", ErrBadResponse, resp.StatusCode)
	}

	var torrents []Torrent
	if err := json.NewDecoder(resp.Body).Decode(&torrents); err != nil {
		return nil, fmt.Errorf("decode torrent list: %w", err)
	}

	c.logger.Debug().Int64("instance", inst.ID).Int("count", len(torrents)).Msg("Fetched torrent list")
	return torrents, nil
}

// Trackers fetches the tracker list for one torrent.
func (c *Client) Trackers(ctx context.Context, inst Instance, cookie, hash string) ([]Tracker, error) {
	query := url.Values{"hash": {hash}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		instanceURL(inst.URL, "/torrents/trackers", query.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("build trackers request: %w", err)
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: torrents/trackers returned HTTP %d", ErrBadResponse, resp.StatusCode)
	}

	var trackers []Tracker
	if err := json.NewDecoder(resp.Body).Decode(&trackers); err != nil {
		return nil, fmt.Errorf("decode tracker list: %w", err)
	}
	return trackers, nil
}

// StopTorrents pauses the given torrents. qBittorrent 5.x renamed pause to
// stop; the stop endpoint is what current instances expose.
func (c *Client) StopTorrents(ctx context.Context, inst Instance, cookie string, hashes []string) error {
	return c.hashCommand(ctx, inst, cookie, "/torrents/stop", hashes)
}

// StartTorrents resumes the given torrents.
func (c *Client) StartTorrents(ctx context.Context, inst Instance, cookie string, hashes []string) error {
	return c.hashCommand(ctx, inst, cookie, "/torrents/start", hashes)
}

// hashCommand posts a pipe-joined hash list to a torrent command endpoint.
func (c *Client) hashCommand(ctx context.Context, inst Instance, cookie, endpoint string, hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}

	body := "hashes=" + strings.Join(hashes, "|")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		instanceURL(inst.URL, endpoint, ""), strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned HTTP %d", ErrBadResponse, endpoint, resp.StatusCode)
	}
	return nil
}
