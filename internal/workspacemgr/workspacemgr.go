// Package workspacemgr maintains the managed workspace ref and the
// synthetic commit it points at, and implements apply/unapply of a
// stack to or from the workspace.
package workspacemgr

import (
	"context"
	"errors"
	"fmt"

	"go.abhg.dev/but/internal/git"
)

// ManagedCommitterName is the fixed committer/author identity used
// for synthetic workspace merge commits, so they're recognizable as
// managed rather than authored by a person.
const ManagedCommitterName = "but"

// ManagedCommitterEmail is paired with [ManagedCommitterName].
const ManagedCommitterEmail = "but@localhost"

// managedMessage is the templated marker placed in every synthetic
// workspace commit's message.
const managedMessage = "but: workspace"

func managedSignature() *git.Signature {
	return &git.Signature{Name: ManagedCommitterName, Email: ManagedCommitterEmail}
}

// Repository is the subset of [*git.Repository] the workspace
// commit manager needs.
type Repository interface {
	MergeTree(ctx context.Context, req git.MergeTreeRequest) (git.Hash, error)
	CommitTree(ctx context.Context, req git.CommitTreeRequest) (git.Hash, error)
}

// CreateWorkspaceCommit derives the commit the managed workspace ref
// should point at, per spec §4.8: the target when no stacks are
// active, the sole stack's tip when there is exactly one, and an
// octopus merge with parents in stack order when there are two or
// more, folding the others into the left-most stack's tip one at a
// time. No stack is favored on conflict: a conflicting region keeps
// Git's conflict markers in the resulting tree.
func CreateWorkspaceCommit(ctx context.Context, repo Repository, stackTips []git.Hash, target git.Hash) (git.Hash, error) {
	switch len(stackTips) {
	case 0:
		return target, nil
	case 1:
		return stackTips[0], nil
	}

	// Fold tips[1:] into tips[0] one at a time. git merge-tree needs a
	// commit-ish on each side when no explicit merge base is given, so
	// each fold's result is wrapped in a throwaway anchor commit
	// before becoming the "ours" side of the next fold. Anchors keep
	// tips[0] first in their parent list; the parent order does not
	// change how merge-tree resolves overlapping regions.
	acc := stackTips[0]
	var tree git.Hash
	for _, tip := range stackTips[1:] {
		var err error
		tree, err = mergeTolerant(ctx, repo, acc, tip)
		if err != nil {
			return "", fmt.Errorf("merge stack tips: %w", err)
		}

		acc, err = repo.CommitTree(ctx, git.CommitTreeRequest{
			Tree:    tree,
			Message: "but: workspace fold",
			Parents: []git.Hash{acc, tip},
		})
		if err != nil {
			return "", fmt.Errorf("anchor folded tree: %w", err)
		}
	}

	commit, err := repo.CommitTree(ctx, git.CommitTreeRequest{
		Tree:      tree,
		Message:   managedMessage,
		Parents:   stackTips,
		Author:    managedSignature(),
		Committer: managedSignature(),
	})
	if err != nil {
		return "", fmt.Errorf("commit workspace tree: %w", err)
	}
	return commit, nil
}

// mergeTolerant merges branch1 and branch2, returning the resulting
// tree even on conflict: a conflicted octopus fold still produces a
// usable tree with Git's conflict markers written in, and reconciling
// those is a separate, user-visible step rather than a fatal error
// here.
func mergeTolerant(ctx context.Context, repo Repository, branch1, branch2 git.Hash) (git.Hash, error) {
	tree, err := repo.MergeTree(ctx, git.MergeTreeRequest{
		Branch1: branch1.String(),
		Branch2: branch2.String(),
	})
	var conflictErr *git.MergeTreeConflictError
	if err != nil && !errors.As(err, &conflictErr) {
		return "", err
	}
	return tree, nil
}

// UnapplyRequest describes a stack leaving the workspace.
type UnapplyRequest struct {
	// WorkingTree is the current working-tree tree (CWDT).
	WorkingTree git.Hash

	// LowerBound is the workspace's lower-bound tree (BASE).
	LowerBound git.Hash

	// StackHead is the leaving stack's head tree (HEAD_S).
	StackHead git.Hash
}

// Unapply computes the tree that results from removing a stack's
// contribution from the working tree while preserving uncommitted
// changes against the remaining stacks, per spec §4.8 step 3: a
// three-way merge with base=HEAD_S, ours=CWDT, theirs=BASE. No side is
// favored: conflicting regions are written into the tree as conflict
// markers.
func Unapply(ctx context.Context, repo Repository, req UnapplyRequest) (git.Hash, error) {
	tree, err := repo.MergeTree(ctx, git.MergeTreeRequest{
		MergeBase: req.StackHead.String(),
		Branch1:   req.WorkingTree.String(),
		Branch2:   req.LowerBound.String(),
	})
	var conflictErr *git.MergeTreeConflictError
	if err != nil && !errors.As(err, &conflictErr) {
		return "", fmt.Errorf("unapply merge: %w", err)
	}
	return tree, nil
}

// ApplyRequest describes a stack rejoining the workspace.
type ApplyRequest struct {
	// WorkingTree is the current working-tree tree (CWDT).
	WorkingTree git.Hash

	// StackBase is the tree the stack rests on.
	StackBase git.Hash

	// StackTip is the tree of the stack's tip commit.
	StackTip git.Hash
}

// Apply computes the tree that results from injecting a previously
// unapplied stack back into the working tree: the symmetric operation
// to [Unapply], per spec §4.8's Apply algorithm — a three-way merge
// with base=stack-base, ours=CWDT, theirs=stack-tip.
func Apply(ctx context.Context, repo Repository, req ApplyRequest) (git.Hash, error) {
	tree, err := repo.MergeTree(ctx, git.MergeTreeRequest{
		MergeBase: req.StackBase.String(),
		Branch1:   req.WorkingTree.String(),
		Branch2:   req.StackTip.String(),
	})
	var conflictErr *git.MergeTreeConflictError
	if err != nil && !errors.As(err, &conflictErr) {
		return "", fmt.Errorf("apply merge: %w", err)
	}
	return tree, nil
}
