package main

import (
	"context"
	"fmt"

	"go.abhg.dev/but/internal/git"
)

type pushCmd struct {
	Branch string `arg:"" name:"branch" optional:"" help:"Segment to push; defaults to the current branch"`
	Remote string `name:"remote" help:"Remote to push to" default:"origin"`
	Force  bool   `name:"force-with-lease" help:"Force-push with a lease, for after a rebase"`
}

func (cmd *pushCmd) Run(ctx context.Context, a *app) error {
	branch := cmd.Branch
	if branch == "" {
		var err error
		branch, err = a.Worktree.CurrentBranch(ctx)
		if err != nil {
			return usageErrorf("no branch given and HEAD is not on a branch: %v", err)
		}
	}

	opts := git.PushOptions{
		Remote:  cmd.Remote,
		Refspec: branch + ":refs/heads/" + branch,
	}
	if cmd.Force {
		if existing, err := a.Repo.PeelToCommit(ctx, cmd.Remote+"/"+branch); err == nil {
			opts.ForceWithLease = branch + ":" + existing.String()
		}
	}

	if err := a.Repo.Push(ctx, opts); err != nil {
		return fmt.Errorf("push %s to %s: %w", branch, cmd.Remote, err)
	}

	a.Log.Infof("pushed %s to %s", branch, cmd.Remote)
	return nil
}
