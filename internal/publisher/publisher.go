package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/frostnova/autopushd/internal/git"
)

// Outcome is the tagged result of one publish attempt.
type Outcome int

const (
	// OutcomeSuccess means a commit was created and pushed.
	OutcomeSuccess Outcome = iota
	// OutcomeNothingToCommit means the work tree was already reconciled;
	// not an error, and the caller may advance its baseline.
	OutcomeNothingToCommit
	// OutcomeFailed means the publish did not complete; the accompanying
	// error carries the taxonomy sentinel and diagnostic detail.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeNothingToCommit:
		return "nothing-to-commit"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RepoState is a point-in-time view of the repository, re-read before every
// publish and on every status query. It is never cached: an operator can
// init, re-clone, or reconfigure the repository between cycles.
type RepoState struct {
	IsRepository bool   `json:"is_repository"`
	HasRemote    bool   `json:"has_remote"`
	Branch       string `json:"branch"`
}

// Publisher executes the stage, commit, push sequence against the external
// git backend, recovering from the common push rejection modes.
type Publisher struct {
	git            *git.Client
	remoteURL      string
	fallbackBranch string
	logger         *slog.Logger
}

// New creates a publisher for the given client. remoteURL may be empty when
// the repository is expected to have a remote already. fallbackBranch is the
// branch tried when the current branch is absent on the remote.
func New(client *git.Client, remoteURL, fallbackBranch string, logger *slog.Logger) *Publisher {
	return &Publisher{
		git:            client,
		remoteURL:      remoteURL,
		fallbackBranch: fallbackBranch,
		logger:         logger,
	}
}

// Publish runs the full sequence: ensure repository, ensure remote, stage,
// commit, push with recovery. It is idempotent: calling it again with no
// intervening file changes yields OutcomeNothingToCommit.
func (p *Publisher) Publish(ctx context.Context, message string) (Outcome, error) {
	if err := p.ensureRepository(ctx); err != nil {
		return OutcomeFailed, err
	}

	if err := p.ensureRemote(ctx); err != nil {
		return OutcomeFailed, err
	}

	// Staging is best-effort: a partial add still lets the commit step
	// reveal whether anything staged successfully.
	if res := p.git.StageAll(ctx); !res.OK() {
		p.logger.Warn("staging had issues, proceeding to commit", "detail", res.String())
	}

	res := p.git.Commit(ctx, message)
	if !res.OK() {
		if isNothingToCommit(res.Output()) {
			p.logger.Debug("nothing to commit", "dir", p.git.Dir())
			return OutcomeNothingToCommit, nil
		}
		return OutcomeFailed, fmt.Errorf("%w: %s", ErrCommitFailed, strings.TrimSpace(res.Output()))
	}

	return p.pushWithRecovery(ctx)
}

// State reads the current repository state.
func (p *Publisher) State(ctx context.Context) RepoState {
	state := RepoState{IsRepository: p.git.IsRepository()}
	if !state.IsRepository {
		return state
	}

	remotes, res := p.git.Remotes(ctx)
	state.HasRemote = res.OK() && remotes != ""
	state.Branch, _ = p.git.CurrentBranch(ctx)
	return state
}

// ensureRepository initializes a repository at the root when none exists.
func (p *Publisher) ensureRepository(ctx context.Context) error {
	if p.git.IsRepository() {
		return nil
	}

	p.logger.Info("no repository found, initializing", "dir", p.git.Dir())
	if res := p.git.Init(ctx); !res.OK() {
		return fmt.Errorf("%w: %s", ErrRepoInit, res.String())
	}
	return nil
}

// ensureRemote registers the configured remote URL as origin when the
// repository has no remotes. Without remotes and without a URL the publish
// cannot proceed.
func (p *Publisher) ensureRemote(ctx context.Context) error {
	remotes, res := p.git.Remotes(ctx)
	if !res.OK() {
		return fmt.Errorf("querying remotes: %s", res.String())
	}

	if remotes != "" {
		return nil
	}

	if p.remoteURL == "" {
		return ErrNoRemoteConfigured
	}

	p.logger.Info("registering remote", "url", p.remoteURL)
	if res := p.git.AddRemote(ctx, p.remoteURL); !res.OK() {
		return fmt.Errorf("adding remote origin: %s", res.String())
	}
	return nil
}

// pushWithRecovery attempts the push, walking a bounded recovery ladder:
// retry with upstream tracking, rebase then retry, retry against the
// fallback branch. Each rung runs at most once and only when the previous
// failure matches its signature. A forced push is never attempted.
func (p *Publisher) pushWithRecovery(ctx context.Context) (Outcome, error) {
	branch, _ := p.git.CurrentBranch(ctx)
	if branch == "" {
		// Detached HEAD or a git too old for --show-current.
		branch = "main"
	}

	res := p.git.Push(ctx, branch, false)
	if res.OK() {
		return OutcomeSuccess, nil
	}

	var triedUpstream, triedRebase, triedFallback bool

ladder:
	for res.SpawnErr == nil {
		switch classifyPushFailure(res.Output()) {
		case classNoUpstream:
			if triedUpstream {
				break ladder
			}
			triedUpstream = true
			p.logger.Info("no upstream for branch, retrying with -u", "branch", branch)
			res = p.git.Push(ctx, branch, true)

		case classNonFastForward:
			if triedRebase {
				break ladder
			}
			triedRebase = true
			p.logger.Info("push rejected as non-fast-forward, pulling with rebase", "branch", branch)
			if pull := p.git.PullRebase(ctx, branch); !pull.OK() {
				return OutcomeFailed, fmt.Errorf("%w: %s", ErrSyncConflict, strings.TrimSpace(pull.Output()))
			}
			res = p.git.Push(ctx, branch, false)

		case classBranchMissing:
			if triedFallback || branch == p.fallbackBranch {
				break ladder
			}
			triedFallback = true
			p.logger.Info("branch not found on remote, retrying fallback", "branch", branch, "fallback", p.fallbackBranch)
			branch = p.fallbackBranch
			res = p.git.Push(ctx, branch, false)

		default:
			break ladder
		}

		if res.OK() {
			return OutcomeSuccess, nil
		}
	}

	return OutcomeFailed, fmt.Errorf("%w: %s", ErrPushFailed, res.String())
}
