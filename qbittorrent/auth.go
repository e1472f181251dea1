package qbittorrent

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// apiPrefix is qBittorrent's fixed Web API prefix.
const apiPrefix = "/api/v2"

// loginOKSentinel is the exact body qBittorrent returns on a successful
// login; anything else on a 200 means the credentials were rejected.
const loginOKSentinel = "Ok."

// Decrypter decrypts a stored credential. Implemented by vault.Vault.
type Decrypter interface {
	Decrypt(stored string) (string, error)
}

// Auth performs the login handshake against remote instances and verifies
// stored credentials. All failures are returned as values in LoginResult;
// callers branch on Success.
type Auth struct {
	decrypter Decrypter
	http      *http.Client
	logger    zerolog.Logger
}

// NewAuth creates a login orchestrator.
func NewAuth(decrypter Decrypter, httpClient *http.Client, logger zerolog.Logger) *Auth {
	return &Auth{
		decrypter: decrypter,
		http:      httpClient,
		logger:    logger.With().Str("component", "qbt-auth").Logger(),
	}
}

// NewHTTPClient builds the HTTP client shared by the auth, proxy, and
// client layers. allowSelfSigned disables certificate verification for
// instances behind self-signed TLS.
func NewHTTPClient(timeout time.Duration, allowSelfSigned bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if allowSelfSigned {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// Login authenticates against the instance and returns the session cookie.
//
// Skip-auth instances succeed immediately with an empty cookie and no
// network call. Credentialed instances must produce a session cookie; a 200
// without one is a failure, never a silent cookieless session.
func (a *Auth) Login(ctx context.Context, inst Instance) *LoginResult {
	if inst.SkipAuth {
		return &LoginResult{Success: true}
	}

	if inst.Username == "" || inst.PasswordEncrypted == "" {
		return &LoginResult{Success: false, Reason: "Credentials required"}
	}

	password, err := a.decrypter.Decrypt(inst.PasswordEncrypted)
	if err != nil {
		// Do not echo the ciphertext or the underlying crypto error.
		a.logger.Error().Int64("instance", inst.ID).Msg("Stored password could not be decrypted")
		return &LoginResult{Success: false, Reason: "Stored credentials could not be decrypted"}
	}

	return a.loginWithPassword(ctx, inst.URL, inst.Username, password)
}

// loginWithPassword runs the form-encoded login handshake.
func (a *Auth) loginWithPassword(ctx context.Context, baseURL, username, password string) *LoginResult {
	form := url.Values{
		"username": {username},
		"password": {password},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		instanceURL(baseURL, "/auth/login", ""), strings.NewReader(form.Encode()))
	if err != nil {
		return &LoginResult{Success: false, Reason: "Connection failed"}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.http.Do(req)
	if err != nil {
		a.logger.Debug().Err(err).Str("url", baseURL).Msg("Login request failed")
		return &LoginResult{Success: false, Reason: "Connection failed"}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &LoginResult{
			Success: false,
			Reason:  fmt.Sprintf("Login failed: HTTP %d", resp.StatusCode),
			Status:  resp.StatusCode,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &LoginResult{Success: false, Reason: "Connection failed"}
	}
	if string(body) != loginOKSentinel {
		return &LoginResult{Success: false, Reason: "Invalid credentials", Status: http.StatusUnauthorized}
	}

	cookie := sessionCookie(resp.Header)
	if cookie == "" {
		return &LoginResult{Success: false, Reason: "No session cookie received"}
	}

	return &LoginResult{Success: true, Cookie: cookie}
}

// TestConnection verifies ad-hoc credentials (not yet stored) by logging in
// and fetching the remote version.
func (a *Auth) TestConnection(ctx context.Context, baseURL, username, password string, skipAuth bool) *LoginResult {
	var cookie string

	if !skipAuth {
		if username == "" || password == "" {
			return &LoginResult{Success: false, Reason: "Credentials required"}
		}
		result := a.loginWithPassword(ctx, baseURL, username, password)
		if !result.Success {
			return result
		}
		cookie = result.Cookie
	}

	return a.verify(ctx, baseURL, cookie, skipAuth)
}

// TestStored verifies an instance's stored credentials end to end: login,
// then a lightweight authenticated version call.
func (a *Auth) TestStored(ctx context.Context, inst Instance) *LoginResult {
	result := a.Login(ctx, inst)
	if !result.Success {
		return result
	}
	return a.verify(ctx, inst.URL, result.Cookie, inst.SkipAuth)
}

// verify confirms a session (or skip-auth bypass) works by fetching the
// application version.
func (a *Auth) verify(ctx context.Context, baseURL, cookie string, skipAuth bool) *LoginResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		instanceURL(baseURL, "/app/version", ""), nil)
	if err != nil {
		return &LoginResult{Success: false, Reason: "Connection failed"}
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return &LoginResult{Success: false, Reason: "Connection failed"}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := "Failed to get version"
		if skipAuth {
			reason = "Connection failed - is IP bypass enabled?"
		}
		return &LoginResult{Success: false, Reason: reason, Status: resp.StatusCode}
	}

	version, err := io.ReadAll(resp.Body)
	if err != nil {
		return &LoginResult{Success: false, Reason: "Connection failed"}
	}

	return &LoginResult{Success: true, Cookie: cookie, Version: string(version)}
}

// sessionCookie extracts the session cookie from a login response: the
// first Set-Cookie value up to its first attribute separator ("SID=abc").
func sessionCookie(header http.Header) string {
	raw := header.Get("Set-Cookie")
	if raw == "" {
		return ""
	}
	cookie, _, _ := strings.Cut(raw, ";")
	return strings.TrimSpace(cookie)
}

// instanceURL joins an instance base URL with a Web API endpoint path.
func instanceURL(baseURL, endpoint, rawQuery string) string {
	u := strings.TrimRight(baseURL, "/") + apiPrefix + endpoint
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	return u
}
