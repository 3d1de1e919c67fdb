package main

import (
	"context"
	"fmt"

	"go.abhg.dev/but/internal/oplog"
)

type snapshotCmd struct {
	Message string `short:"m" name:"message" help:"Title for the snapshot" default:"Manual snapshot"`
}

func (cmd *snapshotCmd) Run(ctx context.Context, a *app) error {
	if err := a.acquireWrite(); err != nil {
		return err
	}
	defer a.releaseWrite()

	tree, err := buildSnapshotTree(ctx, a)
	if err != nil {
		return err
	}

	snap, err := oplog.Create(ctx, a.Repo, oplogRef, oplog.CreateRequest{
		Kind:        oplog.FileChanges,
		Title:       cmd.Message,
		WorkingTree: tree,
	})
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}

	a.Log.Infof("snapshot %s created", snap.ID.Short())
	return nil
}
