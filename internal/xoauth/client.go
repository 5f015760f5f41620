package xoauth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
)

const (
	defaultAuthorizeURL = "https://x.com/i/oauth2/authorize"
	defaultTokenURL     = "https://api.x.com/2/oauth2/token"
	defaultRevokeURL    = "https://api.x.com/2/oauth2/revoke"
	defaultAPIBaseURL   = "https://api.x.com"

	defaultTimeout = 10 * time.Second
)

// Scopes is the fixed, versioned scope list requested on every link. Changing
// this list changes what future API calls are permitted without a re-link.
var Scopes = []string{
	"tweet.read",
	"tweet.write",
	"users.read",
	"like.read",
	"like.write",
	"mute.read",
	"mute.write",
	"list.read",
	"list.write",
	"offline.access",
}

// Config carries the provider endpoints and client credentials. Zero-valued
// endpoint fields fall back to the public X API endpoints.
type Config struct {
	ClientID     string
	ClientSecret string
	AuthorizeURL string
	TokenURL     string
	RevokeURL    string
	APIBaseURL   string
	Timeout      time.Duration
}

// TokenResult is the outcome of a successful token endpoint grant. ExpiresAt
// is computed locally from the provider's expires_in; a zero ExpiresAt means
// the provider reported no expiry.
type TokenResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scope        string
}

// Profile is the subset of the X user object needed to register a linked
// account.
type Profile struct {
	ID              string
	Username        string
	Name            string
	ProfileImageURL string
}

// Client talks to the provider's token endpoint and user lookup API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient builds a Client, applying endpoint and timeout defaults.
func NewClient(cfg Config) *Client {
	if cfg.AuthorizeURL == "" {
		cfg.AuthorizeURL = defaultAuthorizeURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.RevokeURL == "" {
		cfg.RevokeURL = defaultRevokeURL
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// AuthorizeURL composes the provider authorization URL for one link attempt.
// Pure function: no side effects, no network.
func (c *Client) AuthorizeURL(redirectURI, state, challenge string) string {
	conf := &oauth2.Config{
		ClientID:    c.cfg.ClientID,
		RedirectURL: redirectURI,
		Scopes:      Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL: c.cfg.AuthorizeURL,
		},
	}
	return conf.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// Exchange performs the authorization-code grant.
func (c *Client) Exchange(ctx context.Context, code, verifier, redirectURI string) (*TokenResult, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("redirect_uri", redirectURI)
	form.Set("code_verifier", verifier)

	result, kind, payload, err := c.grant(ctx, form)
	if err != nil {
		return nil, &ExchangeError{Kind: kind, Payload: payload, Err: err}
	}
	return result, nil
}

// Refresh performs the refresh-token grant.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResult, error) {
	if refreshToken == "" {
		return nil, &RefreshError{Kind: KindNoRefreshToken}
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", c.cfg.ClientID)

	result, kind, payload, err := c.grant(ctx, form)
	if err != nil {
		return nil, &RefreshError{Kind: kind, Payload: payload, Err: err}
	}
	return result, nil
}

// grant performs a single POST to the token endpoint. A response lacking an
// access_token is a denial regardless of its transport status code.
func (c *Client) grant(ctx context.Context, form url.Values) (*TokenResult, ErrorKind, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, KindTransport, "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.applyClientAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, KindTransport, "", err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, KindTransport, "", err
	}
	completed := time.Now()

	accessToken := gjson.GetBytes(body, "access_token").String()
	if accessToken == "" {
		return nil, KindDenied, string(body), fmt.Errorf("provider denied grant: %s", providerErrorSummary(body, resp.StatusCode))
	}

	result := &TokenResult{
		AccessToken:  accessToken,
		RefreshToken: gjson.GetBytes(body, "refresh_token").String(),
		Scope:        gjson.GetBytes(body, "scope").String(),
	}
	// Never trust a provider-supplied absolute timestamp; expiry is always
	// expires_in added to the observed completion time.
	if expiresIn := gjson.GetBytes(body, "expires_in").Int(); expiresIn > 0 {
		result.ExpiresAt = completed.Add(time.Duration(expiresIn) * time.Second)
	}
	return result, "", "", nil
}

// Revoke invalidates a token at the provider. Callers treat failures as
// best-effort: the local record is deleted either way.
func (c *Client) Revoke(ctx context.Context, token string) error {
	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", "access_token")
	form.Set("client_id", c.cfg.ClientID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.applyClientAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("revoke failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// FetchProfile resolves the authenticated user's profile, used to register or
// refresh a linked account after a successful grant.
func (c *Client) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	endpoint := c.cfg.APIBaseURL + "/2/users/me?user.fields=id,name,username,profile_image_url,created_at"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read profile response: %w", err)
	}

	data := gjson.GetBytes(body, "data")
	if !data.Exists() || data.Get("id").String() == "" {
		return nil, fmt.Errorf("profile lookup failed with status %d: %s", resp.StatusCode, providerErrorSummary(body, resp.StatusCode))
	}
	return &Profile{
		ID:              data.Get("id").String(),
		Username:        data.Get("username").String(),
		Name:            data.Get("name").String(),
		ProfileImageURL: data.Get("profile_image_url").String(),
	}, nil
}

// applyClientAuth attaches HTTP Basic client authentication when a client
// secret is configured. Public clients authenticate with form fields only.
func (c *Client) applyClientAuth(req *http.Request) {
	if c.cfg.ClientSecret != "" {
		req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	}
}

func providerErrorSummary(body []byte, status int) string {
	errCode := gjson.GetBytes(body, "error").String()
	errDesc := gjson.GetBytes(body, "error_description").String()
	switch {
	case errCode != "" && errDesc != "":
		return errCode + ": " + errDesc
	case errCode != "":
		return errCode
	default:
		return fmt.Sprintf("status %d", status)
	}
}
