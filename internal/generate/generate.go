// Package generate turns a candidate article into a rewritten blog post via
// an LLM provider, including the provider's judgment of topical fit.
package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"

	"autoblog/internal/feed"
)

// ErrMalformedResponse reports that the provider's output could not be
// parsed as the expected JSON structure, even after a retry.
var ErrMalformedResponse = errors.New("generator response could not be parsed")

const (
	maxSourceChars = 6000
	maxTokens      = 2048
)

const promptTemplate = `You are a professional tech blog writer with expertise in creating unique, humanized, and friendly blog posts. Rewrite the provided article information into a well-structured, SEO-first blog post in markdown format, approximately %d words. Follow these guidelines:

- Use a friendly, conversational tone while staying professional.
- Keep paragraphs short; explain concepts clearly and concisely.
- Structure the post with H2 and H3 subheadings that reflect search intent.
- Write an introduction that hooks the reader and uses the primary keywords naturally.
- Conclude with a clear takeaway or call to action.
- Write a compelling meta description (150-160 characters).
- Our niche is tech news, software, programming, AI, and emerging technologies. If the article is not relevant to this niche, return the JSON with empty strings and arrays for all fields and "relevant_to_niche": false.
- Always return only this JSON structure, no extra text:
{
    "title": "SEO-optimized title, or '' if not relevant",
    "content": "full markdown blog post, or '' if not relevant",
    "tags": ["tag1", "tag2", "tag3", "tag4", "tag5"],
    "meta_description": "150-160 char description, or '' if not relevant",
    "keywords": ["keyword1", "keyword2", "keyword3"],
    "categories": ["category1", "category2"],
    "relevant_to_niche": true
}

Article to rewrite:
Original Title: %s
Source: %s
Original URL: %s
Original Description: %s
Categories/Tags: %s
Original Content:
%s`

// Post is the generator's output for one article.
type Post struct {
	Title           string
	Content         string
	Tags            []string
	MetaDescription string
	Categories      []string
	Keywords        []string
	Relevant        bool
	SourceURL       string
	SourceName      string
}

// Generator rewrites candidate articles into blog posts.
type Generator struct {
	provider  Provider
	maxWords  int
	converter *md.Converter
}

// New creates a Generator backed by the given provider.
func New(provider Provider, maxWords int) *Generator {
	if maxWords <= 0 {
		maxWords = 1000
	}
	return &Generator{
		provider:  provider,
		maxWords:  maxWords,
		converter: md.NewConverter("", true, nil),
	}
}

// GeneratePost asks the provider to rewrite item into a post. Malformed
// provider output is retried once; a second failure returns
// ErrMalformedResponse.
func (g *Generator) GeneratePost(ctx context.Context, item feed.Item) (*Post, error) {
	prompt := g.buildPrompt(item)

	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		response, err := g.provider.Generate(ctx, prompt, maxTokens)
		if err != nil {
			return nil, err
		}

		post, err := parsePost(response)
		if err == nil {
			post.SourceURL = item.URL
			post.SourceName = item.SourceName
			return post, nil
		}
		lastErr = err
		log.Printf("Malformed generator output for %s (attempt %d/2): %v", item.URL, attempt, err)
	}

	return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, lastErr)
}

func (g *Generator) buildPrompt(item feed.Item) string {
	content := truncateUTF8(g.toMarkdown(item.Content), maxSourceChars)

	categories := "Not provided"
	if len(item.Categories) > 0 {
		categories = strings.Join(item.Categories, ", ")
	}

	return fmt.Sprintf(promptTemplate,
		g.maxWords,
		item.Title,
		item.SourceName,
		item.URL,
		g.toMarkdown(item.Description),
		categories,
		content,
	)
}

// toMarkdown converts feed HTML into Markdown so the prompt carries
// structure instead of tag soup. Non-HTML text passes through unchanged.
func (g *Generator) toMarkdown(html string) string {
	if !strings.Contains(html, "<") {
		return strings.TrimSpace(html)
	}
	converted, err := g.converter.ConvertString(html)
	if err != nil {
		return strings.TrimSpace(html)
	}
	return strings.TrimSpace(converted)
}

type postPayload struct {
	Title           string   `json:"title"`
	Content         string   `json:"content"`
	Tags            []string `json:"tags"`
	MetaDescription string   `json:"meta_description"`
	Keywords        []string `json:"keywords"`
	Categories      []string `json:"categories"`
	Relevant        *bool    `json:"relevant_to_niche"`
}

func parsePost(response string) (*Post, error) {
	raw := ExtractJSONObject(response)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var payload postPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("decoding response JSON: %w", err)
	}

	relevant := true
	if payload.Relevant != nil {
		relevant = *payload.Relevant
	}

	return &Post{
		Title:           payload.Title,
		Content:         payload.Content,
		Tags:            payload.Tags,
		MetaDescription: payload.MetaDescription,
		Categories:      payload.Categories,
		Keywords:        payload.Keywords,
		Relevant:        relevant,
	}, nil
}

// truncateUTF8 caps s at limit bytes without splitting a rune.
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
