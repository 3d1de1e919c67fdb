package main

import (
	"context"
	"fmt"

	"go.abhg.dev/but/internal/git"
	"go.abhg.dev/but/internal/graph"
	"go.abhg.dev/but/internal/oplog"
	"go.abhg.dev/but/internal/state"
	"go.abhg.dev/but/internal/workspacemgr"
)

type branchCmd struct {
	New      branchNewCmd      `cmd:"" name:"new" help:"Create a new segment on top of a stack"`
	List     branchListCmd     `cmd:"" name:"list" help:"List branches known to the workspace"`
	Apply    branchApplyCmd    `cmd:"" name:"apply" help:"Apply a stack to the workspace"`
	Unapply  branchUnapplyCmd  `cmd:"" name:"unapply" help:"Remove a stack from the workspace"`
	Delete   branchDeleteCmd   `cmd:"" name:"delete" help:"Delete a branch"`
	Describe branchDescribeCmd `cmd:"" name:"describe" help:"Set a branch's description"`
}

type branchNewCmd struct {
	Name   string `arg:"" name:"name" help:"Name of the new segment"`
	Stack  string `name:"stack" help:"Stack id to add the segment to; creates a new stack if omitted"`
	Target string `name:"target" help:"Commitish the segment starts from, when creating a new stack"`
}

func (cmd *branchNewCmd) Run(ctx context.Context, a *app) error {
	if err := a.acquireWrite(); err != nil {
		return err
	}
	defer a.releaseWrite()

	base := cmd.Target
	if base == "" {
		if ref, _, ok := a.Store.Target(); ok {
			base = ref
		} else {
			base = "HEAD"
		}
	}
	head, err := a.Repo.PeelToCommit(ctx, base)
	if err != nil {
		return usageErrorf("%s is not a valid commitish: %v", base, err)
	}

	if err := a.Repo.CreateBranch(ctx, git.CreateBranchRequest{
		Name: cmd.Name,
		Head: head.String(),
	}); err != nil {
		return fmt.Errorf("create branch %s: %w", cmd.Name, err)
	}

	stackID := state.StackID(cmd.Stack)
	rec := state.StackRecord{InWorkspace: true}
	if stackID != "" {
		existing, err := a.Store.GetStack(stackID)
		if err != nil {
			return usageErrorf("%s: %v", stackID, err)
		}
		rec = existing
	} else {
		stackID = state.NewStackID()
		rec.Order = len(a.Store.ListInWorkspace())
	}

	rec.SegmentOrder = append([]string{cmd.Name}, rec.SegmentOrder...)
	if rec.Heads == nil {
		rec.Heads = make(map[string]string)
	}
	rec.Heads[cmd.Name] = head.String()
	a.Store.SetStack(stackID, rec)

	if err := syncAndSnapshot(ctx, a, oplog.ReorderBranches, fmt.Sprintf("Create branch %s", cmd.Name)); err != nil {
		return err
	}

	a.Log.Infof("created %s in stack %s", cmd.Name, stackID)
	return nil
}

type branchListCmd struct{}

func (cmd *branchListCmd) Run(ctx context.Context, a *app) error {
	g, err := graph.Project(ctx, a.Repo, a.Store, graph.Options{})
	if err != nil {
		return fmt.Errorf("project graph: %w", err)
	}
	for _, stack := range g.Stacks {
		for _, seg := range stack.Segments {
			ref := seg.Ref
			if ref == "" {
				ref = "(unnamed)"
			}
			fmt.Printf("%s\t%d commit(s)\n", ref, len(seg.Commits))
		}
	}
	return nil
}

type branchApplyCmd struct {
	Stack string `arg:"" name:"stack" help:"Stack id to apply"`
}

func (cmd *branchApplyCmd) Run(ctx context.Context, a *app) error {
	if err := a.acquireWrite(); err != nil {
		return err
	}
	defer a.releaseWrite()

	id := state.StackID(cmd.Stack)
	rec, err := a.Store.GetStack(id)
	if err != nil {
		return usageErrorf("%s: %v", id, err)
	}
	if len(rec.SegmentOrder) == 0 {
		return usageErrorf("stack %s has no segments", id)
	}

	workTree, err := a.Worktree.WriteIndexTree(ctx)
	if err != nil {
		return fmt.Errorf("write working tree: %w", err)
	}
	stackBase, err := a.Repo.PeelToTree(ctx, rec.SegmentOrder[len(rec.SegmentOrder)-1]+"^")
	if err != nil {
		return fmt.Errorf("resolve stack base: %w", err)
	}
	stackTip, err := a.Repo.PeelToTree(ctx, rec.SegmentOrder[0])
	if err != nil {
		return fmt.Errorf("resolve stack tip: %w", err)
	}

	merged, err := workspacemgr.Apply(ctx, a.Repo, workspacemgr.ApplyRequest{
		WorkingTree: workTree,
		StackBase:   stackBase,
		StackTip:    stackTip,
	})
	if err != nil {
		return fmt.Errorf("apply stack: %w", err)
	}

	rec.InWorkspace = true
	a.Store.SetStack(id, rec)

	if err := a.Worktree.CheckoutFiles(ctx, &git.CheckoutFilesRequest{
		TreeIsh:   merged.String(),
		Pathspecs: []string{"."},
	}); err != nil {
		return fmt.Errorf("checkout merged tree: %w", err)
	}

	return syncAndSnapshot(ctx, a, oplog.ApplyBranch, fmt.Sprintf("Apply stack %s", id))
}

type branchUnapplyCmd struct {
	Stack string `arg:"" name:"stack" help:"Stack id to unapply"`
}

func (cmd *branchUnapplyCmd) Run(ctx context.Context, a *app) error {
	if err := a.acquireWrite(); err != nil {
		return err
	}
	defer a.releaseWrite()

	id := state.StackID(cmd.Stack)
	rec, err := a.Store.GetStack(id)
	if err != nil {
		return usageErrorf("%s: %v", id, err)
	}
	if len(rec.SegmentOrder) == 0 {
		return usageErrorf("stack %s has no segments", id)
	}

	g, err := graph.Project(ctx, a.Repo, a.Store, graph.Options{})
	if err != nil {
		return fmt.Errorf("project graph: %w", err)
	}

	workTree, err := a.Worktree.WriteIndexTree(ctx)
	if err != nil {
		return fmt.Errorf("write working tree: %w", err)
	}
	stackTip, err := a.Repo.PeelToTree(ctx, rec.SegmentOrder[0])
	if err != nil {
		return fmt.Errorf("resolve stack tip: %w", err)
	}
	lowerBound, err := a.Repo.PeelToTree(ctx, g.LowerBound.String())
	if err != nil {
		return fmt.Errorf("resolve workspace lower bound: %w", err)
	}

	merged, err := workspacemgr.Unapply(ctx, a.Repo, workspacemgr.UnapplyRequest{
		WorkingTree: workTree,
		LowerBound:  lowerBound,
		StackHead:   stackTip,
	})
	if err != nil {
		return fmt.Errorf("unapply stack: %w", err)
	}

	rec.InWorkspace = false
	a.Store.SetStack(id, rec)

	if err := a.Worktree.CheckoutFiles(ctx, &git.CheckoutFilesRequest{
		TreeIsh:   merged.String(),
		Pathspecs: []string{"."},
	}); err != nil {
		return fmt.Errorf("checkout merged tree: %w", err)
	}

	return syncAndSnapshot(ctx, a, oplog.UnapplyBranch, fmt.Sprintf("Unapply stack %s", id))
}

type branchDeleteCmd struct {
	Name  string `arg:"" name:"name" help:"Branch to delete"`
	Force bool   `name:"force" help:"Delete even if unmerged"`
}

func (cmd *branchDeleteCmd) Run(ctx context.Context, a *app) error {
	if err := a.acquireWrite(); err != nil {
		return err
	}
	defer a.releaseWrite()

	if err := a.Repo.DeleteBranch(ctx, cmd.Name, git.BranchDeleteOptions{Force: cmd.Force}); err != nil {
		return fmt.Errorf("delete branch %s: %w", cmd.Name, err)
	}
	a.Store.DeleteBranchEntry(cmd.Name)

	return syncAndSnapshot(ctx, a, oplog.DeleteBranch, fmt.Sprintf("Delete branch %s", cmd.Name))
}

type branchDescribeCmd struct {
	Name        string `arg:"" name:"name" help:"Branch to describe"`
	Description string `arg:"" name:"description" help:"Description text"`
}

func (cmd *branchDescribeCmd) Run(ctx context.Context, a *app) error {
	if err := a.acquireWrite(); err != nil {
		return err
	}
	defer a.releaseWrite()

	rec := a.Store.Branch(cmd.Name)
	rec.Description = cmd.Description
	a.Store.SetBranch(cmd.Name, rec)

	return syncAndSnapshot(ctx, a, oplog.UpdateBranchName, fmt.Sprintf("Describe %s", cmd.Name))
}

// syncAndSnapshot recomputes the workspace commit and records an
// oplog snapshot, the common tail of every branch-management
// subcommand above.
func syncAndSnapshot(ctx context.Context, a *app, kind oplog.OperationKind, title string) error {
	g, err := graph.Project(ctx, a.Repo, a.Store, graph.Options{})
	if err != nil {
		return fmt.Errorf("project graph: %w", err)
	}
	if err := syncWorkspace(ctx, a, g); err != nil {
		return err
	}

	tree, err := buildSnapshotTree(ctx, a)
	if err != nil {
		return err
	}
	_, err = oplog.Create(ctx, a.Repo, oplogRef, oplog.CreateRequest{
		Kind:        kind,
		Title:       title,
		WorkingTree: tree,
	})
	if err != nil {
		return fmt.Errorf("record snapshot: %w", err)
	}
	return nil
}
