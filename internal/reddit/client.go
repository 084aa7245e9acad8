// Package reddit is a minimal Reddit API client: password-grant OAuth,
// sending private messages and listing new submissions.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dmbot/dmbot/internal/config"
)

const (
	defaultAuthURL = "https://www.reddit.com"
	defaultAPIURL  = "https://oauth.reddit.com"

	// tokenSkew refreshes tokens shortly before Reddit expires them.
	tokenSkew = time.Minute

	maxListingLimit = 100
)

// ErrNoCredentials is returned when a call needs a token but no credentials
// have been supplied.
var ErrNoCredentials = errors.New("reddit credentials not configured")

// Credentials authenticate a script-type Reddit app.
type Credentials struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// Complete reports whether every field is set.
func (c Credentials) Complete() bool {
	return c.Username != "" && c.Password != "" && c.ClientID != "" && c.ClientSecret != ""
}

// Client talks to the Reddit OAuth API. It is safe for concurrent use.
type Client struct {
	AuthURL    string
	APIURL     string
	UserAgent  string
	Subject    string
	HTTPClient *http.Client
	Clock      func() time.Time

	limiter *rate.Limiter

	mu     sync.Mutex
	creds  Credentials
	token  string
	expiry time.Time
}

// NewClient builds a client from the reddit config section.
func NewClient(cfg config.RedditConfig) *Client {
	rpm := cfg.RequestsPerMinute
	if rpm < 1 {
		rpm = 60
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		AuthURL:    firstNonEmpty(cfg.AuthURL, defaultAuthURL),
		APIURL:     firstNonEmpty(cfg.APIURL, defaultAPIURL),
		UserAgent:  firstNonEmpty(cfg.UserAgent, "dmbot/1.0"),
		Subject:    firstNonEmpty(cfg.MessageSubject, "Hello!"),
		HTTPClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
	}
	c.creds = Credentials{
		Username:     cfg.Username,
		Password:     cfg.Password,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	}
	return c
}

// SetCredentials replaces the credentials and drops any cached token.
func (c *Client) SetCredentials(creds Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = creds
	c.token = ""
	c.expiry = time.Time{}
}

// HasCredentials reports whether a full credential set is present.
func (c *Client) HasCredentials() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds.Complete()
}

// Authenticate fetches a token and returns the authenticated username.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()

	if _, err := c.accessToken(ctx); err != nil {
		return "", err
	}
	return c.Me(ctx)
}

// Me returns the authenticated account name.
func (c *Client) Me(ctx context.Context) (string, error) {
	var me struct {
		Name string `json:"name"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/me", nil, &me); err != nil {
		return "", err
	}
	if me.Name == "" {
		return "", errors.New("reddit: /api/v1/me returned no name")
	}
	return me.Name, nil
}

// SendDirectMessage sends a private message to recipient.
func (c *Client) SendDirectMessage(ctx context.Context, recipient, body string) error {
	recipient = strings.TrimPrefix(strings.TrimSpace(recipient), "u/")
	if recipient == "" {
		return errors.New("reddit: recipient is required")
	}

	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("to", recipient)
	form.Set("subject", c.Subject)
	form.Set("text", body)

	var resp composeResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/compose", form, &resp); err != nil {
		return err
	}
	return resp.err()
}

// NewSubmissions lists the newest submissions in subreddit.
func (c *Client) NewSubmissions(ctx context.Context, subreddit string, limit int) ([]Submission, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > maxListingLimit {
		limit = maxListingLimit
	}

	path := fmt.Sprintf("/r/%s/new?limit=%d&raw_json=1", url.PathEscape(subreddit), limit)
	var listing listingResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &listing); err != nil {
		return nil, err
	}

	out := make([]Submission, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		if child.Kind != "t3" {
			continue
		}
		out = append(out, child.Data)
	}
	return out, nil
}

// doJSON performs an authenticated API call. A 401 drops the token and is
// retried once with a fresh one.
func (c *Client) doJSON(ctx context.Context, method, path string, form url.Values, out any) error {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.accessToken(ctx)
		if err != nil {
			return err
		}

		err = c.send(ctx, method, strings.TrimRight(c.APIURL, "/")+path, form, func(req *http.Request) {
			req.Header.Set("Authorization", "bearer "+token)
		}, out)

		var apiErr *APIError
		if attempt == 0 && errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			c.mu.Lock()
			c.token = ""
			c.mu.Unlock()
			continue
		}
		return err
	}
	return nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && c.now().Before(c.expiry) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	creds := c.creds
	c.mu.Unlock()

	if !creds.Complete() {
		return "", ErrNoCredentials
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", creds.Username)
	form.Set("password", creds.Password)

	var tok tokenResponse
	err := c.send(ctx, http.MethodPost, strings.TrimRight(c.AuthURL, "/")+"/api/v1/access_token", form, func(req *http.Request) {
		req.SetBasicAuth(creds.ClientID, creds.ClientSecret)
	}, &tok)
	if err != nil {
		return "", fmt.Errorf("reddit auth: %w", err)
	}
	if tok.Error != "" {
		return "", &APIError{StatusCode: http.StatusUnauthorized, Code: tok.Error, Message: "token request rejected"}
	}
	if tok.AccessToken == "" {
		return "", errors.New("reddit auth: empty access token")
	}

	expiresIn := time.Duration(tok.ExpiresIn) * time.Second
	if expiresIn <= tokenSkew {
		expiresIn = tokenSkew * 2
	}

	c.mu.Lock()
	c.token = tok.AccessToken
	c.expiry = c.now().Add(expiresIn - tokenSkew)
	c.mu.Unlock()
	return tok.AccessToken, nil
}

func (c *Client) send(ctx context.Context, method, target string, form url.Values, decorate func(*http.Request), out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.UserAgent)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if decorate != nil {
		decorate(req)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("reddit request failed: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return newStatusError(resp, respBody)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
