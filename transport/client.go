// Package transport is the REST client for the storefront backend. It
// resolves profiles for bearer tokens, performs the password-grant credential
// exchange, attaches the persisted token to authenticated requests, and
// broadcasts an auth-error signal whenever the backend rejects a request as
// unauthorized.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	apperrors "github.com/fxsociety/go-session-client/internal/errors"
	"github.com/fxsociety/go-session-client/session"
	"github.com/fxsociety/go-session-client/users"
)

const (
	currentUserPath = "/api/auth/me"
	tokenPath       = "/api/auth/login"
)

// APIError carries the backend's HTTP status and detail message.
type APIError struct {
	Status     int
	StatusText string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.StatusText, e.Detail)
	}
	return fmt.Sprintf("%d %s", e.Status, e.StatusText)
}

// Unwrap lets callers match unauthorized responses with errors.Is.
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return apperrors.ErrUnauthorized
	}
	return nil
}

// TokenReader gives the client read access to the persisted credential for
// attaching to outgoing requests. Only the session manager writes it.
type TokenReader interface {
	Get(key string) (string, error)
}

// Client talks to the storefront REST API. It implements session.Transport.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenReader
	log        zerolog.Logger
	authErrors *authErrorRegistry
}

var _ session.Transport = (*Client)(nil)

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTokenReader sets the credential source for authenticated requests
func WithTokenReader(tokens TokenReader) ClientOption {
	return func(c *Client) {
		c.tokens = tokens
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = logger
	}
}

// NewClient creates a Client for the backend at baseURL.
func NewClient(baseURL string, options ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		log:        zerolog.Nop(),
		authErrors: newAuthErrorRegistry(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// OnAuthError registers fn to run whenever any request made through this
// client is rejected as unauthorized. The returned unsubscribe function is
// idempotent. Implements session.Transport.
func (c *Client) OnAuthError(fn func()) (unsubscribe func()) {
	return c.authErrors.subscribe(fn)
}

// FetchCurrentUser resolves the profile belonging to a bearer token. It
// returns an error, never a nil profile, when the token is rejected. Unlike
// GetJSON it does not emit the auth-error signal: the session manager calls
// it while deciding whether a credential is usable, and a fresh login must
// survive a rejected profile fetch. Implements session.Transport.
func (c *Client) FetchCurrentUser(ctx context.Context, token string) (*users.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+currentUserPath, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.FetchCurrentUser] build request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.FetchCurrentUser] request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.apiError(resp)
	}

	var user users.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, errors.Wrap(err, "[Client.FetchCurrentUser] decode response")
	}
	return &user, nil
}

// ExchangeCredentials performs the password-grant exchange against the
// backend's token endpoint and returns the bearer token it issues.
func (c *Client) ExchangeCredentials(ctx context.Context, username, password string) (string, error) {
	conf := &oauth2.Config{
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.baseURL + tokenPath,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := conf.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		return "", errors.Wrap(err, "[Client.ExchangeCredentials] password exchange")
	}
	return tok.AccessToken, nil
}

// GetJSON performs an authenticated GET against endpoint, attaching the
// persisted bearer token, and decodes the JSON response into out. A missing
// token or an unauthorized response emits the auth-error signal.
func (c *Client) GetJSON(ctx context.Context, endpoint string, out any) error {
	if c.tokens == nil {
		return errors.New("[Client.GetJSON] no token reader configured")
	}

	token, err := c.tokens.Get(session.TokenKey)
	if err != nil {
		return errors.Wrap(err, "[Client.GetJSON] read token")
	}
	if token == "" {
		c.authErrors.emit()
		return &APIError{Status: http.StatusUnauthorized, StatusText: "Unauthorized", Detail: apperrors.ErrNoToken.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "[Client.GetJSON] build request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "[Client.GetJSON] request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.log.Debug().Str("endpoint", endpoint).Msg("Authenticated request rejected as unauthorized")
		c.authErrors.emit()
		return c.apiError(resp)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.apiError(resp)
	}

	if out == nil {
		return nil
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "[Client.GetJSON] decode response")
}

// apiError builds an APIError from a non-2xx response, pulling the backend's
// "detail" field when the body is JSON. The detail is either a plain string
// or a list of {"msg": ...} validation entries.
func (c *Client) apiError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, StatusText: resp.Status}

	var body struct {
		Detail any `json:"detail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		switch detail := body.Detail.(type) {
		case string:
			apiErr.Detail = detail
		case []any:
			msgs := make([]string, 0, len(detail))
			for _, entry := range detail {
				if m, ok := entry.(map[string]any); ok {
					if msg, ok := m["msg"].(string); ok {
						msgs = append(msgs, msg)
					}
				}
			}
			apiErr.Detail = strings.Join(msgs, ", ")
		}
	}
	return apiErr
}
