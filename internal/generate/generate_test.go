package generate

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"autoblog/internal/feed"
)

// mockProvider implements Provider for testing.
type mockProvider struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (m *mockProvider) Generate(_ context.Context, prompt string, _ int) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if m.err != nil {
		return "", m.err
	}
	idx := m.calls
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	m.calls++
	return m.responses[idx], nil
}

func (m *mockProvider) IsConfigured() bool { return true }

func validResponse(t *testing.T, relevant bool) string {
	t.Helper()
	resp, err := json.Marshal(map[string]any{
		"title":             "Rewritten Title",
		"content":           "## Intro\n\nBody text.",
		"tags":              []string{"ai", "tech"},
		"meta_description":  "A rewritten article about tech.",
		"keywords":          []string{"ai"},
		"categories":        []string{"Technology"},
		"relevant_to_niche": relevant,
	})
	if err != nil {
		t.Fatalf("marshaling response: %v", err)
	}
	return string(resp)
}

var testItem = feed.Item{
	URL:         "https://example.com/story",
	Title:       "Original Title",
	Description: "<p>Original <b>description</b></p>",
	Content:     "<h1>Heading</h1><p>Paragraph one.</p>",
	SourceName:  "Example News",
	Categories:  []string{"Tech"},
}

func TestGeneratePost(t *testing.T) {
	mock := &mockProvider{responses: []string{validResponse(t, true)}}
	post, err := New(mock, 1000).GeneratePost(context.Background(), testItem)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if post.Title != "Rewritten Title" {
		t.Errorf("unexpected title %q", post.Title)
	}
	if !post.Relevant {
		t.Error("expected relevant post")
	}
	if post.SourceURL != testItem.URL {
		t.Errorf("expected source URL carried through, got %q", post.SourceURL)
	}
	if post.SourceName != "Example News" {
		t.Errorf("expected source name carried through, got %q", post.SourceName)
	}
}

func TestGeneratePostNotRelevant(t *testing.T) {
	resp := `{"title": "", "content": "", "tags": [], "meta_description": "", "keywords": [], "categories": [], "relevant_to_niche": false}`
	post, err := New(&mockProvider{responses: []string{resp}}, 1000).GeneratePost(context.Background(), testItem)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if post.Relevant {
		t.Error("expected post to be flagged not relevant")
	}
}

func TestGeneratePostRelevantByDefault(t *testing.T) {
	resp := `{"title": "T", "content": "C"}`
	post, err := New(&mockProvider{responses: []string{resp}}, 1000).GeneratePost(context.Background(), testItem)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !post.Relevant {
		t.Error("expected missing relevance flag to default to relevant")
	}
}

func TestGeneratePostRetriesMalformedOnce(t *testing.T) {
	mock := &mockProvider{responses: []string{"not json at all", validResponse(t, true)}}
	post, err := New(mock, 1000).GeneratePost(context.Background(), testItem)
	if err != nil {
		t.Fatalf("expected retry to recover, got: %v", err)
	}
	if mock.calls != 2 {
		t.Errorf("expected 2 provider calls, got %d", mock.calls)
	}
	if post.Title != "Rewritten Title" {
		t.Errorf("unexpected title %q", post.Title)
	}
}

func TestGeneratePostMalformedTwice(t *testing.T) {
	mock := &mockProvider{responses: []string{"garbage", "more garbage"}}
	_, err := New(mock, 1000).GeneratePost(context.Background(), testItem)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("expected ErrMalformedResponse, got %v", err)
	}
	if mock.calls != 2 {
		t.Errorf("expected exactly 2 provider calls, got %d", mock.calls)
	}
}

func TestGeneratePostProviderError(t *testing.T) {
	mock := &mockProvider{err: errors.New("rate limited")}
	_, err := New(mock, 1000).GeneratePost(context.Background(), testItem)
	if err == nil || errors.Is(err, ErrMalformedResponse) {
		t.Errorf("expected provider error passed through, got %v", err)
	}
}

func TestPromptContainsMarkdownContent(t *testing.T) {
	mock := &mockProvider{responses: []string{validResponse(t, true)}}
	_, err := New(mock, 800).GeneratePost(context.Background(), testItem)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	prompt := mock.prompts[0]
	if !strings.Contains(prompt, "approximately 800 words") {
		t.Error("expected word budget in prompt")
	}
	if !strings.Contains(prompt, "Original Title") {
		t.Error("expected article title in prompt")
	}
	if strings.Contains(prompt, "<h1>") {
		t.Error("expected HTML converted to markdown in prompt")
	}
	if !strings.Contains(prompt, "Paragraph one.") {
		t.Error("expected article text in prompt")
	}
}

func TestPromptTruncationKeepsValidUTF8(t *testing.T) {
	gen := New(&mockProvider{responses: []string{validResponse(t, true)}}, 800)

	item := testItem
	item.Content = strings.Repeat("漢", 2500) // well past the source cap

	prompt := gen.buildPrompt(item)
	if !utf8.ValidString(prompt) {
		t.Error("prompt contains invalid UTF-8 after truncation")
	}
}

func TestTruncateUTF8(t *testing.T) {
	cases := []struct {
		in    string
		limit int
		want  string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"héllo", 2, "h"},  // é is 2 bytes, must not be split
		{"漢字", 4, "漢"}, // 3-byte runes
		{"", 5, ""},
	}
	for _, c := range cases {
		got := truncateUTF8(c.in, c.limit)
		if got != c.want {
			t.Errorf("truncateUTF8(%q, %d) = %q, want %q", c.in, c.limit, got, c.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncateUTF8(%q, %d) produced invalid UTF-8", c.in, c.limit)
		}
	}
}

func TestExtractJSONObjectFenced(t *testing.T) {
	text := "```json\n{\"title\": \"x\"}\n```"
	if got := ExtractJSONObject(text); got != `{"title": "x"}` {
		t.Errorf("unexpected extraction %q", got)
	}
}

func TestExtractJSONObjectSurroundingProse(t *testing.T) {
	text := `Here is the post you asked for: {"title": "x"} Hope it helps!`
	if got := ExtractJSONObject(text); got != `{"title": "x"}` {
		t.Errorf("unexpected extraction %q", got)
	}
}

func TestExtractJSONObjectNone(t *testing.T) {
	if got := ExtractJSONObject("no braces here"); got != "" {
		t.Errorf("expected empty extraction, got %q", got)
	}
}
