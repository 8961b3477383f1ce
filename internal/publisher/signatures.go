package publisher

import "strings"

// failureClass identifies the recovery rung a push failure maps to.
type failureClass int

const (
	classUnknown failureClass = iota
	classNoUpstream
	classNonFastForward
	classBranchMissing
)

// nothingToCommit is the commit output signature meaning the work tree is
// already reconciled. Reached legitimately when the size delta came from
// git-ignored or already-committed content.
const nothingToCommit = "nothing to commit"

// pushSignatures maps known substrings of git push diagnostics to recovery
// classes. Matching is ordered; the first hit wins. This is a best-effort
// heuristic over human-readable output, not a stable contract — it is kept
// in one table so a structured backend API could replace it without
// touching the ladder logic.
var pushSignatures = []struct {
	substr string
	class  failureClass
}{
	{"has no upstream branch", classNoUpstream},
	{"no upstream branch", classNoUpstream},
	{"set-upstream", classNoUpstream},
	{"non-fast-forward", classNonFastForward},
	{"fetch first", classNonFastForward},
	{"tip of your current branch is behind", classNonFastForward},
	{"does not match any", classBranchMissing},
	{"couldn't find remote ref", classBranchMissing},
	{"unable to push to unqualified destination", classBranchMissing},
}

// classifyPushFailure maps combined push output to a recovery class.
func classifyPushFailure(output string) failureClass {
	for _, sig := range pushSignatures {
		if strings.Contains(output, sig.substr) {
			return sig.class
		}
	}
	return classUnknown
}

// isNothingToCommit reports whether combined commit output carries the
// nothing-to-commit signature.
func isNothingToCommit(output string) bool {
	return strings.Contains(output, nothingToCommit)
}
