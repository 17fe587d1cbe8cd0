// Package blog turns a generated article into a static HTML page, links it
// from the site index and commits the result to the site repository.
package blog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/papercomputeco/presence/pkg/git"
	"github.com/papercomputeco/presence/pkg/logger"
	"github.com/papercomputeco/presence/pkg/publish"
)

const (
	// IndexMarker is the list the index entry is inserted into.
	IndexMarker = `<ul class="posts">`

	maxDescription = 160
)

var (
	// ErrNoTitle is returned when the article has no TITLE: line.
	ErrNoTitle = errors.New("no title found in content")

	titleLine  = regexp.MustCompile(`(?m)^\s*TITLE:\s*(.+?)\s*$`)
	slugStrip  = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSpaces = regexp.MustCompile(`[\s_]+`)
	slugDashes = regexp.MustCompile(`-+`)
)

// Committer records site changes in version control.
type Committer interface {
	Add(ctx context.Context, paths ...string) error
	Commit(ctx context.Context, message string) error
	Push(ctx context.Context) error
}

// Config configures a Writer.
type Config struct {
	// RepoPath is the root of the static site working tree.
	RepoPath string

	// PostsDir is the directory under RepoPath holding article pages.
	PostsDir string

	// IndexFile is the page under RepoPath that lists articles.
	IndexFile string

	// BaseURL is the public site URL.
	BaseURL string

	// Author appears in the page title.
	Author string

	// Push pushes after committing.
	Push bool

	// Repo defaults to the git repository at RepoPath.
	Repo Committer

	Logger *slog.Logger
	Now    func() time.Time
}

// Post is a rendered article.
type Post struct {
	Title       string
	Slug        string
	Description string
	Date        string
	HTML        string
}

// Writer publishes articles to a static site.
type Writer struct {
	cfg    Config
	md     goldmark.Markdown
	logger *slog.Logger
}

var _ publish.Blog = (*Writer)(nil)

// New returns a Writer for the site at c.RepoPath.
func New(c Config) (*Writer, error) {
	if c.RepoPath == "" {
		return nil, errors.New("blog repo path is required")
	}
	if c.PostsDir == "" {
		c.PostsDir = "posts"
	}
	if c.IndexFile == "" {
		c.IndexFile = "index.html"
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	log := c.Logger
	if log == nil {
		log = logger.Nop()
	}
	if c.Repo == nil {
		repo, err := git.Open(context.Background(), c.RepoPath)
		if err != nil {
			return nil, fmt.Errorf("opening blog repo: %w", err)
		}
		c.Repo = repo
	}

	return &Writer{
		cfg:    c,
		md:     goldmark.New(goldmark.WithExtensions(extension.GFM)),
		logger: log,
	}, nil
}

// Render parses an article body. The first TITLE: line names the article;
// everything after it is markdown.
func (w *Writer) Render(content string) (Post, error) {
	loc := titleLine.FindStringSubmatchIndex(content)
	if loc == nil {
		return Post{}, ErrNoTitle
	}
	title := content[loc[2]:loc[3]]
	body := strings.TrimSpace(content[loc[1]:])

	var buf bytes.Buffer
	if err := w.md.Convert([]byte(body), &buf); err != nil {
		return Post{}, fmt.Errorf("rendering markdown: %w", err)
	}

	slug := Slugify(title)
	if slug == "" {
		return Post{}, fmt.Errorf("title %q has no usable characters", title)
	}

	return Post{
		Title:       title,
		Slug:        slug,
		Description: Description(body),
		Date:        w.cfg.Now().Format("January 2006"),
		HTML:        buf.String(),
	}, nil
}

// WritePost writes the page, updates the index, commits and optionally
// pushes. It returns the public URL of the page.
func (w *Writer) WritePost(ctx context.Context, content string) (string, error) {
	post, err := w.Render(content)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(w.cfg.RepoPath, w.cfg.PostsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating posts dir: %w", err)
	}
	post.Slug = uniqueSlug(dir, post.Slug)

	page, err := w.page(post)
	if err != nil {
		return "", err
	}
	pagePath := filepath.Join(w.cfg.PostsDir, post.Slug+".html")
	if err := os.WriteFile(filepath.Join(w.cfg.RepoPath, pagePath), page, 0o644); err != nil { //nolint:gosec // public site content
		return "", fmt.Errorf("writing post: %w", err)
	}

	changed := []string{pagePath}
	updated, err := w.updateIndex(post)
	if err != nil {
		return "", err
	}
	if updated {
		changed = append(changed, w.cfg.IndexFile)
	} else {
		w.logger.Warn("index has no posts list, entry not added", "index", w.cfg.IndexFile, "marker", IndexMarker)
	}

	if err := w.cfg.Repo.Add(ctx, changed...); err != nil {
		return "", err
	}
	if err := w.cfg.Repo.Commit(ctx, "Add blog post: "+post.Title); err != nil {
		return "", err
	}
	if w.cfg.Push {
		if err := w.cfg.Repo.Push(ctx); err != nil {
			return "", err
		}
	}

	url := w.URL(post.Slug)
	w.logger.Info("wrote blog post", "title", post.Title, "path", pagePath, "url", url)
	return url, nil
}

// URL returns the public URL of the page for slug.
func (w *Writer) URL(slug string) string {
	base := strings.TrimRight(w.cfg.BaseURL, "/")
	return base + "/" + w.cfg.PostsDir + "/" + slug + ".html"
}

func (w *Writer) page(p Post) ([]byte, error) {
	var buf bytes.Buffer
	err := pageTemplate.Execute(&buf, struct {
		Post
		Author  string
		Content template.HTML
	}{
		Post:    p,
		Author:  w.cfg.Author,
		Content: template.HTML(p.HTML), //nolint:gosec // rendered from our own markdown
	})
	if err != nil {
		return nil, fmt.Errorf("rendering page: %w", err)
	}
	return buf.Bytes(), nil
}

// updateIndex inserts an entry at the top of the posts list. It reports
// false when the index has no posts list.
func (w *Writer) updateIndex(p Post) (bool, error) {
	path := filepath.Join(w.cfg.RepoPath, w.cfg.IndexFile)
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("reading index: %w", err)
	}

	updated, ok := InsertIndexEntry(string(raw), IndexEntry("/"+w.cfg.PostsDir+"/"+p.Slug+".html", p.Title, p.Date))
	if !ok {
		return false, nil
	}
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil { //nolint:gosec // public site content
		return false, fmt.Errorf("writing index: %w", err)
	}
	return true, nil
}

// IndexEntry renders one list item for the site index.
func IndexEntry(href, title, date string) string {
	return fmt.Sprintf(`<li><a href="%s">%s</a><span class="date">%s</span></li>`,
		html.EscapeString(href), html.EscapeString(title), html.EscapeString(date))
}

// InsertIndexEntry places entry on its own line directly after the posts
// list marker, matching the marker line's indentation plus two spaces.
func InsertIndexEntry(index, entry string) (string, bool) {
	i := strings.Index(index, IndexMarker)
	if i < 0 {
		return index, false
	}
	lineStart := strings.LastIndexByte(index[:i], '\n') + 1
	indent := index[lineStart:i]
	if strings.TrimSpace(indent) != "" {
		indent = ""
	}

	at := i + len(IndexMarker)
	return index[:at] + "\n" + indent + "  " + entry + index[at:], true
}

// Slugify lowercases title and keeps letters, digits and single dashes.
func Slugify(title string) string {
	s := strings.ToLower(title)
	s = slugStrip.ReplaceAllString(s, "")
	s = slugSpaces.ReplaceAllString(s, "-")
	s = slugDashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Description returns the first prose line of body, cut to 160 characters.
func Description(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		if len(line) > maxDescription {
			return line[:maxDescription-3] + "..."
		}
		return line
	}
	return ""
}

func uniqueSlug(dir, slug string) string {
	candidate := slug
	for n := 2; ; n++ {
		if _, err := os.Stat(filepath.Join(dir, candidate+".html")); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d", slug, n)
	}
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>{{.Title}}{{if .Author}} - {{.Author}}{{end}}</title>
  <meta name="description" content="{{.Description}}">
  <link rel="stylesheet" href="../style.css">
</head>
<body>
  <main>
    <a href="/" class="back-link">&larr; Back</a>

    <article>
      <header class="post-header">
        <h1>{{.Title}}</h1>
        <span class="date">{{.Date}}</span>
      </header>

      <div class="post-content">
{{.Content}}
      </div>
    </article>
  </main>
</body>
</html>
`))
