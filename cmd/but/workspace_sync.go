package main

import (
	"context"
	"fmt"

	"go.abhg.dev/but/internal/git"
	"go.abhg.dev/but/internal/graph"
	"go.abhg.dev/but/internal/workspacemgr"
)

// syncWorkspace recomputes the managed workspace commit from the
// current set of applied stack tips and checks it out, per spec
// §4.8's "the workspace commit is derived, never edited directly"
// rule: every mutation that changes a stack's tip ends by calling
// this rather than touching the working copy itself.
func syncWorkspace(ctx context.Context, a *app, g *graph.Graph) error {
	tips := make([]git.Hash, 0, len(g.Stacks))
	for _, stack := range g.Stacks {
		if tip := stack.Tip(); tip != git.ZeroHash {
			tips = append(tips, tip)
		}
	}

	target := g.TargetCommit
	if target == "" {
		head, err := a.Worktree.Head(ctx)
		if err != nil {
			return fmt.Errorf("resolve HEAD: %w", err)
		}
		target = head
	}

	commit, err := workspacemgr.CreateWorkspaceCommit(ctx, a.Repo, tips, target)
	if err != nil {
		return fmt.Errorf("derive workspace commit: %w", err)
	}

	if err := a.Repo.SetRef(ctx, git.SetRefRequest{
		Ref:  workspaceRefName,
		Hash: commit,
	}); err != nil {
		return fmt.Errorf("update workspace ref: %w", err)
	}

	if err := a.Worktree.Reset(ctx, commit.String(), git.ResetOptions{Mode: git.ResetHard}); err != nil {
		return fmt.Errorf("checkout workspace commit: %w", err)
	}

	return nil
}

// workspaceRefName is the managed workspace branch this CLI maintains,
// matching [graph.WorkspaceRefPrefix].
const workspaceRefName = "refs/heads/gitbutler/workspace"
