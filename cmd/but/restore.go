package main

import (
	"context"
	"fmt"

	"go.abhg.dev/but/internal/oplog"
)

type restoreCmd struct {
	SHA string `arg:"" name:"sha" help:"Snapshot id to restore"`
}

func (cmd *restoreCmd) Run(ctx context.Context, a *app) error {
	id, err := a.Repo.PeelToCommit(ctx, cmd.SHA)
	if err != nil {
		return usageErrorf("%s is not a valid snapshot id: %v", cmd.SHA, err)
	}

	if err := a.acquireWrite(); err != nil {
		return err
	}
	defer a.releaseWrite()

	snap, err := oplog.Restore(ctx, a.Repo, oplogRef, id, checkoutSnapshot(a))
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}

	a.Log.Infof("restored to %s (recorded as %s)", cmd.SHA, snap.ID.Short())
	return nil
}
