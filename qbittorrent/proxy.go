package qbittorrent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// hopByHopHeaders are connection-level headers that must not be relayed
// between the caller and the remote instance.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ForwardResult is the remote's response, fully read and ready to relay.
type ForwardResult struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Proxy forwards arbitrary Web API calls to remote instances, resolving a
// session per call and retrying exactly once after re-authenticating when a
// cached session turns out to be stale.
type Proxy struct {
	auth   *Auth
	cache  *SessionCache
	http   *http.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewProxy creates a request proxy backed by the given session cache.
// ttl <= 0 falls back to DefaultSessionTTL.
func NewProxy(auth *Auth, cache *SessionCache, httpClient *http.Client, ttl time.Duration, logger zerolog.Logger) *Proxy {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Proxy{
		auth:   auth,
		cache:  cache,
		http:   httpClient,
		ttl:    ttl,
		logger: logger.With().Str("component", "qbt-proxy").Logger(),
	}
}

// Forward relays one inbound API call to the instance.
//
// apiPath is the remainder after the routing prefix (e.g. "/v2/torrents/info")
// and rawQuery the inbound query string, appended verbatim. The body is
// passed through byte-for-byte with its Content-Type untouched, so form,
// JSON, and multipart payloads (boundary included) survive unmodified.
//
// A 401/403 from a non-skip-auth instance invalidates the cached session,
// performs one fresh login, and retries the forward once; a second 401/403
// is returned to the caller as-is. Skip-auth instances never treat 401/403
// as expiry since there is no session to refresh.
func (p *Proxy) Forward(ctx context.Context, inst Instance, apiPath, rawQuery, method string, header http.Header, body []byte) (*ForwardResult, error) {
	cookie, ok := p.cache.Get(inst.ID)
	if !ok {
		login := p.auth.Login(ctx, inst)
		if !login.Success {
			return nil, &AuthError{Result: login}
		}
		p.cache.Set(inst.ID, login.Cookie, p.ttl)
		cookie = login.Cookie
	}

	result, err := p.send(ctx, inst, apiPath, rawQuery, method, header, body, cookie)
	if err != nil {
		return nil, err
	}

	if !inst.SkipAuth && isAuthRejection(result.StatusCode) {
		p.logger.Debug().
			Int64("instance", inst.ID).
			Int("status", result.StatusCode).
			Msg("Cached session rejected, re-authenticating")

		p.cache.Invalidate(inst.ID)
		login := p.auth.Login(ctx, inst)
		if !login.Success {
			return nil, &AuthError{Result: login}
		}
		p.cache.Set(inst.ID, login.Cookie, p.ttl)

		return p.send(ctx, inst, apiPath, rawQuery, method, header, body, login.Cookie)
	}

	return result, nil
}

// send executes a single forward attempt.
func (p *Proxy) send(ctx context.Context, inst Instance, apiPath, rawQuery, method string, header http.Header, body []byte, cookie string) (*ForwardResult, error) {
	target := strings.TrimRight(inst.URL, "/") + "/api" + apiPath
	if rawQuery != "" {
		target += "?" + rawQuery
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build forward request: %w", err)
	}

	copyHeaders(req.Header, header)
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	} else {
		req.Header.Del("Cookie")
	}

	p.logger.Debug().
		Int64("instance", inst.ID).
		Str("method", method).
		Str("path", apiPath).
		Str("content", classifyContent(header.Get("Content-Type"))).
		Msg("Forwarding request")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	respHeader := http.Header{}
	copyHeaders(respHeader, resp.Header)

	return &ForwardResult{
		StatusCode: resp.StatusCode,
		Header:     respHeader,
		Body:       respBody,
	}, nil
}

func isAuthRejection(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// copyHeaders copies all headers except hop-by-hop ones and the caller's
// own Cookie header, which must never leak to the remote.
func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if isHopByHop(key) || http.CanonicalHeaderKey(key) == "Cookie" {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

func isHopByHop(key string) bool {
	canonical := http.CanonicalHeaderKey(key)
	for _, h := range hopByHopHeaders {
		if canonical == h {
			return true
		}
	}
	return false
}

// classifyContent buckets a Content-Type header for logging. The proxy
// never reinterprets payloads based on this.
func classifyContent(contentType string) string {
	switch {
	case contentType == "":
		return "none"
	case strings.Contains(contentType, "multipart/form-data"):
		return "multipart"
	case strings.Contains(contentType, "application/x-www-form-urlencoded"):
		return "form"
	case strings.Contains(contentType, "application/json"):
		return "json"
	default:
		return "binary"
	}
}
