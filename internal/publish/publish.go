// Package publish pushes generated posts to the blog's git repository.
package publish

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"strings"

	"autoblog/internal/config"
)

// Publisher runs git operations against the site checkout.
type Publisher struct {
	repoPath string
	branch   string
	name     string
	email    string
}

func NewPublisher(blog config.Blog) *Publisher {
	name := blog.CommitName
	if name == "" {
		name = blog.Author
	}
	return &Publisher{
		repoPath: blog.RepoPath,
		branch:   blog.Branch,
		name:     name,
		email:    blog.CommitEmail,
	}
}

// Pull updates the checkout before a run so commits apply on top of the
// remote branch. A failure is logged but not fatal since the push will
// surface real conflicts.
func (p *Publisher) Pull(ctx context.Context) {
	if out, err := p.git(ctx, "pull", "--ff-only", "origin", p.branch); err != nil {
		log.Printf("publish: pull failed (continuing): %v: %s", err, strings.TrimSpace(out))
	}
}

// CommitAndPush stages the given paths, commits them and pushes the branch.
// Nothing is pushed when paths is empty.
func (p *Publisher) CommitAndPush(ctx context.Context, message string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	args := append([]string{"add", "--"}, paths...)
	if out, err := p.git(ctx, args...); err != nil {
		return fmt.Errorf("git add: %w: %s", err, strings.TrimSpace(out))
	}

	commitArgs := []string{"commit", "-m", message}
	// git rejects an empty user.email, so only override the identity when
	// both halves are configured.
	if p.name != "" && p.email != "" {
		commitArgs = append([]string{"-c", "user.name=" + p.name, "-c", "user.email=" + p.email}, commitArgs...)
	}
	if out, err := p.git(ctx, commitArgs...); err != nil {
		return fmt.Errorf("git commit: %w: %s", err, strings.TrimSpace(out))
	}

	if out, err := p.git(ctx, "push", "origin", p.branch); err != nil {
		return fmt.Errorf("git push: %w: %s", err, strings.TrimSpace(out))
	}
	return nil
}

func (p *Publisher) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = p.repoPath
	out, err := cmd.CombinedOutput()
	return string(out), err
}
