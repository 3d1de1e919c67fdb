package main

import (
	"context"
	"fmt"

	"go.abhg.dev/but/internal/oplog"
)

type undoCmd struct{}

func (cmd *undoCmd) Run(ctx context.Context, a *app) error {
	if err := a.acquireWrite(); err != nil {
		return err
	}
	defer a.releaseWrite()

	prior, err := oplog.Undo(ctx, a.Repo, oplogRef)
	if err != nil {
		return usageErrorf("%v", err)
	}

	snap, err := oplog.Restore(ctx, a.Repo, oplogRef, prior.ID, checkoutSnapshot(a))
	if err != nil {
		return fmt.Errorf("restore prior state: %w", err)
	}

	a.Log.Infof("restored to snapshot %s (recorded as %s)", prior.ID.Short(), snap.ID.Short())
	return nil
}
