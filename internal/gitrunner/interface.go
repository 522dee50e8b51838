// Package gitrunner wraps the git CLI for the operations the worktree
// manager and merge manager need: branches, worktrees, merges, rebases,
// and conflict inspection.
package gitrunner

// BranchOps is the subset of git concerned with branches.
type BranchOps interface {
	CurrentBranch() (string, error)
	CreateAndCheckoutBranch(name string) error
	CheckoutBranch(name string) error
	BranchExists(name string) (bool, error)
	DeleteBranch(name string) error
	HeadSHA() (string, error)
}

// DiffOps is the subset of git concerned with status and diffs.
type DiffOps interface {
	Status() (string, error)
	HasChanges() (bool, error)
	ChangedFiles(base string) ([]string, error)
	ChangedFilesRelative(branch, relativeTo string) ([]string, error)
	ConflictedFiles() ([]string, error)
}

// CommitOps is the subset of git concerned with staging and committing.
type CommitOps interface {
	Add(paths ...string) error
	Commit(message string) error
}

// MergeOps is the subset of git concerned with merges and rebases.
type MergeOps interface {
	MergeNoFF(branch string) error
	MergeAbort() error
	HasConflicts() (bool, error)
	Rebase(base string) error
	RebaseAbort() error
	PullFFOnly() error
}

// WorktreeOps is the subset of git concerned with worktrees.
type WorktreeOps interface {
	WorktreeAddNewBranch(path, branch string) error
	WorktreeRemove(path string) error
	WorktreeRemoveOptionalForce(path string, force bool) error
	WorktreeUnlock(path string) error
	WorktreeListPorcelain() (string, error)
	WorktreePrune() error
	WorktreePruneExpireNow() error
}

// FileOps is the subset of git concerned with reading files at a ref and
// resolving conflicted files to one side.
type FileOps interface {
	CheckoutOurs(path string) error
	CheckoutTheirs(path string) error
}

// Runner is the complete git operations contract used by the worktree and
// merge managers.
type Runner interface {
	BranchOps
	DiffOps
	CommitOps
	MergeOps
	WorktreeOps
	FileOps
	Run(args ...string) (string, error)
}
