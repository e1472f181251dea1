package qbittorrent

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProxy(t *testing.T, auth *Auth, cache *SessionCache) *Proxy {
	t.Helper()
	return NewProxy(auth, cache, NewHTTPClient(5*time.Second, false), time.Minute, zerolog.Nop())
}

func TestForwardRelaysJSONResponse(t *testing.T) {
	v := testVault(t)
	auth := newAuth(t, v)
	cache := NewSessionCache()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/auth/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "SID", Value: "tok"})
		w.Write([]byte("Ok."))
	})
	mux.HandleFunc("/api/v2/torrents/properties", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("SID"); err != nil || c.Value != "tok" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		assert.Equal(t, "hash=abc", r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"save_path":"/downloads","seeding_time":42}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	inst := Instance{ID: 1, URL: server.URL, Username: "admin", PasswordEncrypted: encrypted(t, v, "pw")}
	proxy := newProxy(t, auth, cache)

	result, err := proxy.Forward(context.Background(), inst,
		"/v2/torrents/properties", "hash=abc", http.MethodGet, http.Header{}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "application/json", result.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"save_path":"/downloads","seeding_time":42}`, string(result.Body))

	// The successful login must have been cached.
	cookie, ok := cache.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "SID=tok", cookie)
}

func TestForwardRetryBound(t *testing.T) {
	v := testVault(t)
	cache := NewSessionCache()

	var logins, forwards atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/auth/login", func(w http.ResponseWriter, r *http.Request) {
		logins.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "SID", Value: "tok"})
		w.Write([]byte("Ok."))
	})
	mux.HandleFunc("/api/v2/torrents/info", func(w http.ResponseWriter, r *http.Request) {
		forwards.Add(1)
		// The remote never accepts the session.
		w.WriteHeader(http.StatusUnauthorized)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	auth := newAuth(t, v)
	inst := Instance{ID: 1, URL: server.URL, Username: "admin", PasswordEncrypted: encrypted(t, v, "pw")}
	proxy := newProxy(t, auth, cache)

	result, err := proxy.Forward(context.Background(), inst,
		"/v2/torrents/info", "", http.MethodGet, http.Header{}, nil)
	require.NoError(t, err)

	// Exactly two logins and two forwards, then the 401 is surfaced.
	assert.Equal(t, http.StatusUnauthorized, result.StatusCode)
	assert.Equal(t, int64(2), logins.Load())
	assert.Equal(t, int64(2), forwards.Load())
}

func TestForwardSkipAuthRelays401Unchanged(t *testing.T) {
	v := testVault(t)
	cache := NewSessionCache()

	var logins atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/auth/login", func(w http.ResponseWriter, r *http.Request) {
		logins.Add(1)
		w.Write([]byte("Ok."))
	})
	mux.HandleFunc("/api/v2/torrents/info", func(w http.ResponseWriter, r *http.Request) {
		// Skip-auth must forward without any credential header.
		assert.Empty(t, r.Header.Get("Cookie"))
		w.WriteHeader(http.StatusUnauthorized)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	auth := newAuth(t, v)
	inst := Instance{ID: 2, URL: server.URL, SkipAuth: true}
	proxy := newProxy(t, auth, cache)

	result, err := proxy.Forward(context.Background(), inst,
		"/v2/torrents/info", "", http.MethodGet, http.Header{}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, result.StatusCode)
	assert.Equal(t, int64(0), logins.Load(), "skip-auth must never log in")
}

func TestForwardRetryAfterExpiredSession(t *testing.T) {
	v := testVault(t)
	cache := NewSessionCache()

	var forwards atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/auth/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "SID", Value: "fresh"})
		w.Write([]byte("Ok."))
	})
	mux.HandleFunc("/api/v2/app/preferences", func(w http.ResponseWriter, r *http.Request) {
		forwards.Add(1)
		c, err := r.Cookie("SID")
		if err != nil || c.Value != "fresh" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(`{}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	auth := newAuth(t, v)
	inst := Instance{ID: 1, URL: server.URL, Username: "admin", PasswordEncrypted: encrypted(t, v, "pw")}
	proxy := newProxy(t, auth, cache)

	// Seed a stale cookie the remote will reject.
	cache.Set(1, "SID=stale", time.Minute)

	result, err := proxy.Forward(context.Background(), inst,
		"/v2/app/preferences", "", http.MethodGet, http.Header{}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, int64(2), forwards.Load())

	cookie, ok := cache.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "SID=fresh", cookie)
}

func TestForwardLoginFailureReturnsAuthError(t *testing.T) {
	v := testVault(t)
	cache := NewSessionCache()
	auth := newAuth(t, v)

	inst := Instance{ID: 1, URL: "http://127.0.0.1:1", Username: "admin", PasswordEncrypted: encrypted(t, v, "pw")}
	proxy := newProxy(t, auth, cache)

	_, err := proxy.Forward(context.Background(), inst,
		"/v2/torrents/info", "", http.MethodGet, http.Header{}, nil)
	require.Error(t, err)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "Connection failed", authErr.Result.Reason)
}

func TestForwardMultipartBodyByteForByte(t *testing.T) {
	v := testVault(t)
	cache := NewSessionCache()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("torrents", "test.torrent")
	require.NoError(t, err)
	part.Write([]byte("d8:announce3:urle"))
	require.NoError(t, writer.WriteField("savepath", "/downloads"))
	require.NoError(t, writer.Close())
	sent := buf.Bytes()
	contentType := writer.FormDataContentType()

	var received []byte
	var receivedType string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/torrents/add", func(w http.ResponseWriter, r *http.Request) {
		receivedType = r.Header.Get("Content-Type")
		received, _ = io.ReadAll(r.Body)
		w.Write([]byte("Ok."))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	auth := newAuth(t, v)
	inst := Instance{ID: 2, URL: server.URL, SkipAuth: true}
	proxy := newProxy(t, auth, cache)

	header := http.Header{}
	header.Set("Content-Type", contentType)

	result, err := proxy.Forward(context.Background(), inst,
		"/v2/torrents/add", "", http.MethodPost, header, sent)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, contentType, receivedType, "multipart boundary must survive")
	assert.Equal(t, sent, received, "body must pass through byte-for-byte")
}

func TestForwardTransportErrorIsNotAuthError(t *testing.T) {
	v := testVault(t)
	cache := NewSessionCache()
	auth := newAuth(t, v)

	inst := Instance{ID: 2, URL: "http://127.0.0.1:1", SkipAuth: true}
	proxy := newProxy(t, auth, cache)

	_, err := proxy.Forward(context.Background(), inst,
		"/v2/torrents/info", "", http.MethodGet, http.Header{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionFailed)

	var authErr *AuthError
	assert.False(t, errors.As(err, &authErr))
}

func TestClassifyContent(t *testing.T) {
	cases := map[string]string{
		"multipart/form-data; boundary=xyz":   "multipart",
		"application/x-www-form-urlencoded":   "form",
		"application/json":                    "json",
		"application/json; charset=utf-8":     "json",
		"application/octet-stream":            "binary",
		"application/x-bittorrent":            "binary",
		"":                                    "none",
	}
	for input, want := range cases {
		assert.Equal(t, want, classifyContent(input), "content type %q", input)
	}
}

func TestCopyHeadersStripsHopByHopAndCookie(t *testing.T) {
	src := http.Header{}
	src.Set("Content-Type", "application/json")
	src.Set("Connection", "keep-alive")
	src.Set("Transfer-Encoding", "chunked")
	src.Set("Cookie", "qbitweb_session=secret")
	src.Set("X-Custom", "kept")

	dst := http.Header{}
	copyHeaders(dst, src)

	assert.Equal(t, "application/json", dst.Get("Content-Type"))
	assert.Equal(t, "kept", dst.Get("X-Custom"))
	assert.Empty(t, dst.Get("Connection"))
	assert.Empty(t, dst.Get("Transfer-Encoding"))
	assert.Empty(t, dst.Get("Cookie"))
}
