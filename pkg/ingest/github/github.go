// Package github lists the user's commits across their own repositories
// through the GitHub REST API.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/papercomputeco/presence/pkg/activity"
	"github.com/papercomputeco/presence/pkg/ingest"
	"github.com/papercomputeco/presence/pkg/logger"
	"github.com/papercomputeco/presence/pkg/utils"
)

const (
	// DefaultAPIURL is the public GitHub API.
	DefaultAPIURL = "https://api.github.com"

	perPage     = 100
	maxRepoPage = 50
	maxBody     = 4096
)

// Config configures a Client.
type Config struct {
	// APIURL defaults to DefaultAPIURL.
	APIURL string

	// Username filters commits by author.
	Username string

	// Token is a personal access token.
	Token string

	// IncludeForks also scans forked repositories.
	IncludeForks bool

	// HTTPClient is the base transport. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client reads commits from GitHub.
type Client struct {
	apiURL       string
	username     string
	includeForks bool
	http         *http.Client
	logger       *slog.Logger
}

var _ ingest.CommitSource = (*Client)(nil)

// New returns a Client.
func New(c Config) (*Client, error) {
	if c.Username == "" {
		return nil, errors.New("github username is required")
	}
	if c.Token == "" {
		return nil, errors.New("github token is required, run: presence auth github")
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

	return &Client{
		apiURL:       apiURL,
		username:     c.Username,
		includeForks: c.IncludeForks,
		http:         oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.Token})),
		logger:       log,
	}, nil
}

type repo struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Fork     bool   `json:"fork"`
}

type commitItem struct {
	SHA     string `json:"sha"`
	HTMLURL string `json:"html_url"`
	Commit  struct {
		Message string `json:"message"`
		Author  struct {
			Name string    `json:"name"`
			Date time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

// StatusError is a non-200 reply from GitHub.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("github API error (status %d): %s", e.Code, e.Body)
}

// ListCommits returns the user's commits at or after since across every
// repository they own. Empty repositories and repositories the token cannot
// read are skipped.
func (c *Client) ListCommits(ctx context.Context, since time.Time) ([]activity.CommitEvent, error) {
	repos, err := c.repos(ctx)
	if err != nil {
		return nil, err
	}

	var out []activity.CommitEvent
	for _, r := range repos {
		commits, err := c.repoCommits(ctx, r, since)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) {
				switch se.Code {
				case http.StatusConflict:
					continue
				case http.StatusForbidden, http.StatusNotFound:
					c.logger.Debug("skipping unreadable repository", "repo", r.FullName, "status", se.Code)
					continue
				}
			}
			return nil, fmt.Errorf("listing commits for %s: %w", r.FullName, err)
		}
		out = append(out, commits...)
	}

	c.logger.Debug("listed github commits", "repos", len(repos), "commits", len(out), "since", since)
	return out, nil
}

func (c *Client) repos(ctx context.Context) ([]repo, error) {
	var out []repo
	for page := 1; page <= maxRepoPage; page++ {
		q := url.Values{
			"affiliation": {"owner"},
			"sort":        {"pushed"},
			"per_page":    {strconv.Itoa(perPage)},
			"page":        {strconv.Itoa(page)},
		}
		var batch []repo
		if err := c.get(ctx, "/user/repos", q, &batch); err != nil {
			return nil, fmt.Errorf("listing repositories: %w", err)
		}
		for _, r := range batch {
			if r.Fork && !c.includeForks {
				continue
			}
			out = append(out, r)
		}
		if len(batch) < perPage {
			break
		}
	}
	return out, nil
}

func (c *Client) repoCommits(ctx context.Context, r repo, since time.Time) ([]activity.CommitEvent, error) {
	q := url.Values{
		"author":   {c.username},
		"per_page": {strconv.Itoa(perPage)},
	}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}

	var items []commitItem
	if err := c.get(ctx, "/repos/"+r.FullName+"/commits", q, &items); err != nil {
		return nil, err
	}

	commits := make([]activity.CommitEvent, 0, len(items))
	for _, it := range items {
		commits = append(commits, activity.CommitEvent{
			SHA:       it.SHA,
			Repo:      r.Name,
			Message:   it.Commit.Message,
			Timestamp: activity.Normalize(it.Commit.Author.Date),
			Author:    it.Commit.Author.Name,
			URL:       it.HTMLURL,
		})
	}
	return commits, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", utils.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
