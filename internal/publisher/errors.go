package publisher

import "errors"

// Sentinel errors for the publish failure taxonomy. Callers classify
// failures with errors.Is; the wrapping error carries the captured git
// diagnostic.
var (
	// ErrRepoInit indicates repository initialization failed. This is fatal:
	// retrying against a directory that cannot hold a repository will never
	// succeed, so the scheduler stops instead of looping.
	ErrRepoInit = errors.New("repository initialization failed")

	// ErrNoRemoteConfigured indicates no remote exists and no URL was
	// supplied. Requires an operator configuration change, not a retry.
	ErrNoRemoteConfigured = errors.New("no remote configured and no remote URL supplied")

	// ErrCommitFailed indicates the commit step failed for a reason other
	// than "nothing to commit".
	ErrCommitFailed = errors.New("commit failed")

	// ErrSyncConflict indicates the push was rejected as non-fast-forward
	// and the automated rebase pull also failed. Never auto-resolved;
	// rewriting remote history is a human decision.
	ErrSyncConflict = errors.New("sync conflict: rebase after rejected push failed")

	// ErrPushFailed indicates every rung of the push recovery ladder was
	// exhausted.
	ErrPushFailed = errors.New("push failed")
)
