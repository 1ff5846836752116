// Package post renders generated content into Jekyll-compatible Markdown
// files with YAML front matter.
package post

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"autoblog/internal/config"
	"autoblog/internal/generate"
)

const (
	maxSlugLen    = 50
	maxTags       = 5
	maxCategories = 2
)

// frontMatter is the al-folio post header. Field order is preserved in the
// rendered YAML.
type frontMatter struct {
	Layout      string   `yaml:"layout"`
	Title       string   `yaml:"title"`
	Date        string   `yaml:"date"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
	Categories  []string `yaml:"categories,omitempty"`
	Thumbnail   string   `yaml:"thumbnail,omitempty"`
}

// Renderer writes posts into the static site checkout.
type Renderer struct {
	postsDir  string
	imagesDir string // site-relative, e.g. assets/img
	pool      config.Blog
	now       func() time.Time
}

// NewRenderer creates a renderer writing into the blog's posts directory.
func NewRenderer(blog config.Blog) *Renderer {
	return &Renderer{
		postsDir:  filepath.Join(blog.RepoPath, blog.PostsDir),
		imagesDir: blog.ImagesDir,
		pool:      blog,
		now:       time.Now,
	}
}

// Write renders p into a dated Markdown file and returns its path. The
// imagePath, when non-empty, must already live inside the site checkout;
// only its basename is referenced.
func (r *Renderer) Write(p *generate.Post, imagePath string) (string, error) {
	if p.Title == "" || p.Content == "" {
		return "", fmt.Errorf("cannot create post: missing title or content")
	}

	if err := os.MkdirAll(r.postsDir, 0o755); err != nil {
		return "", fmt.Errorf("creating posts directory: %w", err)
	}

	now := r.now()
	filename := fmt.Sprintf("%s-%s.md", now.Format("2006-01-02"), Slug(p.Title))
	path := filepath.Join(r.postsDir, filename)

	description := p.MetaDescription
	if description == "" {
		description = "Summary of " + p.Title
	}

	fm := frontMatter{
		Layout:      "post",
		Title:       p.Title,
		Date:        now.Format("2006-01-02 15:04:05 -0700"),
		Description: description,
		Tags:        r.processTags(p.Tags),
		Categories:  r.selectCategories(),
	}

	content := p.Content
	if imagePath != "" {
		rel := "/" + strings.Trim(r.imagesDir, "/") + "/" + filepath.Base(imagePath)
		fm.Thumbnail = rel
		content = fmt.Sprintf("![%s](%s)\n\n%s", p.Title, rel, content)
	}

	if p.SourceURL != "" && p.SourceName != "" {
		content += fmt.Sprintf("\n\n*Source: [%s](%s)*\n", p.SourceName, p.SourceURL)
	}

	fmYAML, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("encoding front matter: %w", err)
	}

	full := fmt.Sprintf("---\n%s---\n\n%s\n", fmYAML, content)
	if err := os.WriteFile(path, []byte(full), 0o644); err != nil {
		return "", fmt.Errorf("writing post: %w", err)
	}

	return path, nil
}

var (
	slugStrip    = regexp.MustCompile(`[^\w\s-]`)
	slugCollapse = regexp.MustCompile(`[\s_-]+`)
)

// Slug converts a title into a URL-friendly filename component.
func Slug(title string) string {
	s := strings.ToLower(title)
	s = slugStrip.ReplaceAllString(s, "")
	s = slugCollapse.ReplaceAllString(strings.TrimSpace(s), "-")
	s = strings.Trim(s, "-")
	if len(s) > maxSlugLen {
		s = strings.TrimRight(s[:maxSlugLen], "-")
	}
	if s == "" {
		return "post"
	}
	return s
}

// processTags keeps suggested tags that exist in the configured pool and
// pads with random pool tags up to the limit.
func (r *Renderer) processTags(suggested []string) []string {
	poolLower := make(map[string]string, len(r.pool.Tags))
	for _, tag := range r.pool.Tags {
		poolLower[Slug(tag)] = tag
	}

	var tags []string
	chosen := make(map[string]bool)
	for _, tag := range suggested {
		clean := Slug(tag)
		if clean == "post" {
			continue
		}
		if _, ok := poolLower[clean]; ok && !chosen[clean] {
			tags = append(tags, clean)
			chosen[clean] = true
		}
	}

	if len(tags) < maxTags {
		var remaining []string
		for lower := range poolLower {
			if !chosen[lower] {
				remaining = append(remaining, lower)
			}
		}
		rand.Shuffle(len(remaining), func(i, j int) {
			remaining[i], remaining[j] = remaining[j], remaining[i]
		})
		for _, tag := range remaining {
			if len(tags) >= maxTags {
				break
			}
			tags = append(tags, tag)
		}
	}

	if len(tags) > maxTags {
		tags = tags[:maxTags]
	}
	return tags
}

// selectCategories picks a random sample from the configured category pool.
func (r *Renderer) selectCategories() []string {
	n := maxCategories
	if len(r.pool.Categories) < n {
		n = len(r.pool.Categories)
	}
	if n == 0 {
		return nil
	}

	idx := rand.Perm(len(r.pool.Categories))[:n]
	out := make([]string, n)
	for i, j := range idx {
		out[i] = r.pool.Categories[j]
	}
	return out
}
