package publish

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"autoblog/internal/config"
)

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v: %v: %s", args, err, out)
	}
	return string(out)
}

// setupRepos creates a bare origin and a working clone with an initial commit.
func setupRepos(t *testing.T) (origin, work string) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	origin = filepath.Join(t.TempDir(), "origin.git")
	runGit(t, t.TempDir(), "init", "--bare", "-b", "main", origin)

	work = filepath.Join(t.TempDir(), "work")
	runGit(t, filepath.Dir(work), "clone", origin, work)
	runGit(t, work, "config", "user.name", "seed")
	runGit(t, work, "config", "user.email", "seed@example.com")

	if err := os.WriteFile(filepath.Join(work, "README.md"), []byte("site\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	runGit(t, work, "add", "README.md")
	runGit(t, work, "commit", "-m", "initial")
	runGit(t, work, "push", "origin", "main")
	return origin, work
}

func TestCommitAndPush(t *testing.T) {
	origin, work := setupRepos(t)

	postPath := filepath.Join(work, "_posts", "2026-03-14-test.md")
	if err := os.MkdirAll(filepath.Dir(postPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(postPath, []byte("post\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	pub := NewPublisher(config.Blog{
		RepoPath:    work,
		Branch:      "main",
		CommitName:  "autoblog",
		CommitEmail: "autoblog@example.com",
	})

	err := pub.CommitAndPush(context.Background(), "Add post", []string{postPath})
	if err != nil {
		t.Fatalf("CommitAndPush: %v", err)
	}

	log := runGit(t, origin, "log", "--format=%s %an", "main")
	if !strings.Contains(log, "Add post autoblog") {
		t.Errorf("commit not pushed with configured author:\n%s", log)
	}
}

func TestCommitAndPushEmptyPathsIsNoop(t *testing.T) {
	_, work := setupRepos(t)

	pub := NewPublisher(config.Blog{RepoPath: work, Branch: "main"})
	if err := pub.CommitAndPush(context.Background(), "nothing", nil); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}

	log := runGit(t, work, "log", "--format=%s", "main")
	if strings.Contains(log, "nothing") {
		t.Errorf("empty publish created a commit:\n%s", log)
	}
}

func TestCommitAndPushReportsFailure(t *testing.T) {
	_, work := setupRepos(t)

	pub := NewPublisher(config.Blog{RepoPath: work, Branch: "main"})
	err := pub.CommitAndPush(context.Background(), "msg", []string{filepath.Join(work, "missing.md")})
	if err == nil {
		t.Fatal("expected error for nonexistent path")
	}
	if !strings.Contains(err.Error(), "git add") {
		t.Errorf("error = %v, want git add failure", err)
	}
}

func TestNewPublisherFallsBackToAuthor(t *testing.T) {
	pub := NewPublisher(config.Blog{Author: "Site Author"})
	if pub.name != "Site Author" {
		t.Errorf("name = %q, want author fallback", pub.name)
	}

	pub = NewPublisher(config.Blog{Author: "Site Author", CommitName: "bot"})
	if pub.name != "bot" {
		t.Errorf("name = %q, want explicit commit_name", pub.name)
	}
}

func TestCommitAndPushWithoutEmailUsesRepoIdentity(t *testing.T) {
	origin, work := setupRepos(t)

	postPath := filepath.Join(work, "post.md")
	if err := os.WriteFile(postPath, []byte("post\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Name configured but no email: the repo's own identity must be used
	// instead of an empty user.email, which git rejects.
	pub := NewPublisher(config.Blog{RepoPath: work, Branch: "main", CommitName: "bot"})
	if err := pub.CommitAndPush(context.Background(), "Add post", []string{postPath}); err != nil {
		t.Fatalf("CommitAndPush: %v", err)
	}

	log := runGit(t, origin, "log", "--format=%an", "main")
	if !strings.Contains(log, "seed") {
		t.Errorf("expected repo identity on commit:\n%s", log)
	}
}

func TestPullDoesNotFailRun(t *testing.T) {
	pub := NewPublisher(config.Blog{RepoPath: t.TempDir(), Branch: "main"})
	// Not a git repository; Pull should only log.
	pub.Pull(context.Background())
}
