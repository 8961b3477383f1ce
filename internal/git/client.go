package git

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// Client provides the git operations the publisher needs, bound to one
// working directory. All methods are blocking and synchronous; the caller is
// responsible for never running two of them concurrently against the same
// work tree.
type Client struct {
	dir    string
	runner Runner
}

// NewClient creates a client for the given directory using the real git
// binary.
func NewClient(dir string) *Client {
	return NewClientWithRunner(dir, NewShellRunner())
}

// NewClientWithRunner creates a client with a custom runner, for tests.
func NewClientWithRunner(dir string, runner Runner) *Client {
	return &Client{dir: dir, runner: runner}
}

// Dir returns the working directory the client operates on.
func (c *Client) Dir() string {
	return c.dir
}

// IsRepository reports whether a .git directory exists at the client's root.
// The check is deliberately re-done before every publish; an operator may
// create or remove the repository between cycles.
func (c *Client) IsRepository() bool {
	info, err := os.Stat(filepath.Join(c.dir, ".git"))
	return err == nil && info.IsDir()
}

// Init initializes a repository at the client's root.
func (c *Client) Init(ctx context.Context) Result {
	return c.runner.Run(ctx, c.dir, "init")
}

// Remotes returns the output of `git remote -v`, trimmed. An empty string
// means no remotes are configured.
func (c *Client) Remotes(ctx context.Context) (string, Result) {
	res := c.runner.Run(ctx, c.dir, "remote", "-v")
	return strings.TrimSpace(res.Stdout), res
}

// AddRemote registers url under the conventional name "origin".
func (c *Client) AddRemote(ctx context.Context, url string) Result {
	return c.runner.Run(ctx, c.dir, "remote", "add", "origin", url)
}

// SetRemoteURL repoints the origin remote at url.
func (c *Client) SetRemoteURL(ctx context.Context, url string) Result {
	return c.runner.Run(ctx, c.dir, "remote", "set-url", "origin", url)
}

// StageAll stages every change under the root (`git add .`).
func (c *Client) StageAll(ctx context.Context) Result {
	return c.runner.Run(ctx, c.dir, "add", ".")
}

// Commit creates a revision with the given message.
func (c *Client) Commit(ctx context.Context, message string) Result {
	return c.runner.Run(ctx, c.dir, "commit", "-m", message)
}

// CurrentBranch returns the checked-out branch name, or an empty string when
// it cannot be determined (detached HEAD, unborn branch on old git versions).
func (c *Client) CurrentBranch(ctx context.Context) (string, Result) {
	res := c.runner.Run(ctx, c.dir, "branch", "--show-current")
	if !res.OK() {
		return "", res
	}
	return strings.TrimSpace(res.Stdout), res
}

// Push publishes branch to origin. With setUpstream the push also records
// the upstream link (`-u`).
func (c *Client) Push(ctx context.Context, branch string, setUpstream bool) Result {
	args := []string{"push"}
	if setUpstream {
		args = append(args, "-u")
	}
	args = append(args, "origin", branch)
	return c.runner.Run(ctx, c.dir, args...)
}

// PullRebase pulls branch from origin, replaying local commits on top.
func (c *Client) PullRebase(ctx context.Context, branch string) Result {
	return c.runner.Run(ctx, c.dir, "pull", "origin", branch, "--rebase")
}
