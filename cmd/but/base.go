package main

import (
	"context"
	"fmt"

	"go.abhg.dev/but/internal/oplog"
)

type baseCmd struct {
	Check  baseCheckCmd  `cmd:"" name:"check" help:"Show the workspace's integration target and whether it has moved"`
	Update baseUpdateCmd `cmd:"" name:"update" help:"Update the workspace's integration target"`
}

type baseCheckCmd struct{}

func (cmd *baseCheckCmd) Run(ctx context.Context, a *app) error {
	ref, hash, ok := a.Store.Target()
	if !ok {
		fmt.Println("no integration target configured")
		return nil
	}

	current, err := a.Repo.PeelToCommit(ctx, ref)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", ref, err)
	}

	if current.String() == hash {
		fmt.Printf("%s is up to date at %s\n", ref, current.Short())
	} else {
		fmt.Printf("%s has moved: recorded %s, now at %s\n", ref, hash[:min(len(hash), 12)], current.Short())
	}
	return nil
}

type baseUpdateCmd struct {
	Ref string `arg:"" name:"ref" help:"New integration target ref"`
}

func (cmd *baseUpdateCmd) Run(ctx context.Context, a *app) error {
	if err := a.acquireWrite(); err != nil {
		return err
	}
	defer a.releaseWrite()

	hash, err := a.Repo.PeelToCommit(ctx, cmd.Ref)
	if err != nil {
		return usageErrorf("%s is not a valid ref: %v", cmd.Ref, err)
	}

	a.Store.SetTarget(cmd.Ref, hash.String())

	if err := syncAndSnapshot(ctx, a, oplog.UpdateWorkspaceBase, fmt.Sprintf("Update target to %s", cmd.Ref)); err != nil {
		return err
	}

	a.Log.Infof("target set to %s (%s)", cmd.Ref, hash.Short())
	return nil
}
