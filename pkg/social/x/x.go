// Package x posts to X (formerly Twitter) through the v2 API using an
// OAuth2 user access token.
package x

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/papercomputeco/presence/pkg/credentials"
	"github.com/papercomputeco/presence/pkg/logger"
	"github.com/papercomputeco/presence/pkg/publish"
	"github.com/papercomputeco/presence/pkg/utils"
)

const (
	// DefaultAPIURL is the X API host.
	DefaultAPIURL = "https://api.x.com"

	tokenPath = "/2/oauth2/token"
	maxBody   = 4096
)

// Config configures a Client.
type Config struct {
	// APIURL defaults to DefaultAPIURL.
	APIURL string

	// Username builds public post URLs.
	Username string

	// Credential holds the access token and optional refresh material.
	Credential credentials.ProviderCredential

	// HTTPClient is the base transport. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// OnRefresh receives every renewed token. X invalidates the previous
	// refresh token on renewal, so callers persist it here.
	OnRefresh func(access, refresh string, expiry time.Time) error

	Logger *slog.Logger
}

// Client posts single updates and reply chains.
type Client struct {
	apiURL   string
	username string
	http     *http.Client
	logger   *slog.Logger
}

var _ publish.Social = (*Client)(nil)

// New returns a Client. With a refresh token and client id the access token
// is renewed automatically when it expires.
func New(c Config) (*Client, error) {
	if c.Username == "" {
		return nil, errors.New("x username is required")
	}
	if c.Credential.Empty() {
		return nil, errors.New("x credentials are required, run: presence auth x")
	}

	apiURL := strings.TrimRight(c.APIURL, "/")
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	log := c.Logger
	if log == nil {
		log = logger.Nop()
	}

	ctx := context.Background()
	if c.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.HTTPClient)
	}

	token := &oauth2.Token{AccessToken: c.Credential.APIKey, RefreshToken: c.Credential.RefreshToken}
	var ts oauth2.TokenSource
	if c.Credential.CanRefresh() {
		// Without a recorded expiry the token is treated as stale and
		// renewed on first use.
		token.Expiry = time.Unix(1, 0)
		if c.Credential.ExpiresAt != nil {
			token.Expiry = *c.Credential.ExpiresAt
		}
		oc := &oauth2.Config{
			ClientID:     c.Credential.ClientID,
			ClientSecret: c.Credential.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  apiURL + tokenPath,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		}
		ts = &renewalSource{
			src:    oc.TokenSource(ctx, token),
			last:   token.AccessToken,
			save:   c.OnRefresh,
			logger: log,
		}
	} else {
		ts = oauth2.StaticTokenSource(token)
	}

	return &Client{
		apiURL:   apiURL,
		username: c.Username,
		http:     oauth2.NewClient(ctx, ts),
		logger:   log,
	}, nil
}

// renewalSource reports renewed tokens to save exactly once each.
type renewalSource struct {
	mu     sync.Mutex
	src    oauth2.TokenSource
	last   string
	save   func(access, refresh string, expiry time.Time) error
	logger *slog.Logger
}

func (r *renewalSource) Token() (*oauth2.Token, error) {
	tok, err := r.src.Token()
	if err != nil {
		return nil, fmt.Errorf("renewing x access token: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if tok.AccessToken == r.last {
		return tok, nil
	}
	r.last = tok.AccessToken
	r.logger.Info("renewed x access token", "expires", tok.Expiry)
	if r.save != nil {
		if err := r.save(tok.AccessToken, tok.RefreshToken, tok.Expiry); err != nil {
			r.logger.Error("failed to store renewed x token, run: presence auth x", "error", err)
		}
	}
	return tok, nil
}

type tweetRequest struct {
	Text  string      `json:"text"`
	Reply *replyField `json:"reply,omitempty"`
}

type replyField struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type tweetResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Post publishes text and returns the post URL.
func (c *Client) Post(ctx context.Context, text string) (string, error) {
	id, err := c.create(ctx, tweetRequest{Text: text})
	if err != nil {
		return "", err
	}
	return c.URL(id), nil
}

// PostThread publishes texts as a reply chain and returns the URL of the
// first post. A failure part way leaves the posted prefix in place and
// returns the error.
func (c *Client) PostThread(ctx context.Context, texts []string) (string, error) {
	if len(texts) == 0 {
		return "", errors.New("empty thread")
	}

	var first, prev string
	for i, text := range texts {
		req := tweetRequest{Text: text}
		if prev != "" {
			req.Reply = &replyField{InReplyToTweetID: prev}
		}
		id, err := c.create(ctx, req)
		if err != nil {
			if first != "" {
				c.logger.Error("thread partially posted",
					"first", c.URL(first),
					"posted", i,
					"total", len(texts),
				)
			}
			return "", fmt.Errorf("thread post %d of %d: %w", i+1, len(texts), err)
		}
		if first == "" {
			first = id
		}
		prev = id
	}
	return c.URL(first), nil
}

// URL returns the public URL of a post.
func (c *Client) URL(id string) string {
	return fmt.Sprintf("https://x.com/%s/status/%s", c.username, id)
}

func (c *Client) create(ctx context.Context, body tweetRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling post: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/2/tweets", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", utils.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending post: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("x: %w: %s", publish.ErrRateLimited, strings.TrimSpace(string(raw)))
	case resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("x API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var tr tweetResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return "", fmt.Errorf("decoding post response: %w", err)
	}
	if tr.Data.ID == "" {
		return "", errors.New("x returned no post id")
	}

	c.logger.Debug("posted to x", "id", tr.Data.ID, "reply", body.Reply != nil)
	return tr.Data.ID, nil
}
