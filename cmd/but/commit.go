package main

import (
	"context"
	"fmt"

	"go.abhg.dev/but/internal/commitengine"
	"go.abhg.dev/but/internal/git"
	"go.abhg.dev/but/internal/graph"
	"go.abhg.dev/but/internal/oplog"
	"go.abhg.dev/but/internal/rebaseengine"
	"go.abhg.dev/but/internal/state"
)

type commitCmd struct {
	Message string `short:"m" name:"message" help:"Commit message" required:""`
	Branch  string `short:"c" name:"branch" help:"Segment to commit onto; defaults to the current branch"`
	Amend   bool   `name:"amend" help:"Amend the segment's current tip instead of creating a new commit"`
}

func (cmd *commitCmd) Run(ctx context.Context, a *app) error {
	if err := a.acquireWrite(); err != nil {
		return err
	}
	defer a.releaseWrite()

	branch := cmd.Branch
	if branch == "" {
		var err error
		branch, err = a.Worktree.CurrentBranch(ctx)
		if err != nil {
			return usageErrorf("no --branch given and HEAD is not on a branch: %v", err)
		}
	}

	head, err := a.Repo.PeelToCommit(ctx, branch)
	if err != nil {
		return usageErrorf("%s is not a valid branch: %v", branch, err)
	}

	specs, err := workingTreeSpecs(ctx, a, branch)
	if err != nil {
		return err
	}
	if len(specs) == 0 {
		return usageErrorf("nothing to commit against %s", branch)
	}

	// Amending rewrites head's hash, so any segment stacked on top of
	// it within the same stack must be rebased onto the replacement
	// before its ref is updated. Project the graph before the amend to
	// capture that topology with the original commit hashes.
	var descendants []graph.Segment
	if cmd.Amend {
		g, err := graph.Project(ctx, a.Repo, a.Store, graph.Options{})
		if err != nil {
			return fmt.Errorf("project graph: %w", err)
		}
		descendants = segmentsAbove(g, branch)
	}

	req := commitengine.CreateCommitRequest{
		Specs:   specs,
		Message: cmd.Message,
	}
	kind := oplog.CreateCommit
	if cmd.Amend {
		req.Amend = head
		kind = oplog.AmendCommit
	} else {
		req.Parent = head
	}

	result, err := commitengine.CreateCommit(ctx, a.Repo, req)
	if err != nil {
		return fmt.Errorf("create commit: %w", err)
	}
	if len(result.Rejected) > 0 {
		a.Log.Warn("some changes could not be applied", "paths", result.Rejected)
	}
	if result.NewCommit == "" {
		return usageErrorf("no changes selected for %s", branch)
	}

	if err := a.Repo.SetRef(ctx, git.SetRefRequest{
		Ref:     "refs/heads/" + branch,
		Hash:    result.NewCommit,
		OldHash: head,
	}); err != nil {
		return fmt.Errorf("update %s: %w", branch, err)
	}

	if err := updateStackHead(a, branch, result.NewCommit); err != nil {
		return err
	}

	if err := rebaseDescendants(ctx, a, descendants, result.NewCommit); err != nil {
		return err
	}

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
	snap, err := oplog.Create(ctx, a.Repo, oplogRef, oplog.CreateRequest{
		Kind:        kind,
		Title:       cmd.Message,
		WorkingTree: tree,
	})
	if err != nil {
		return fmt.Errorf("record snapshot: %w", err)
	}

	a.Log.Infof("committed %s onto %s (snapshot %s)", result.NewCommit.Short(), branch, snap.ID.Short())
	return nil
}

// workingTreeSpecs builds whole-file diff specs for every path that
// differs between branch's tip and the working tree, the default
// "commit everything changed against this segment" selection.
func workingTreeSpecs(ctx context.Context, a *app, branch string) ([]commitengine.DiffSpec, error) {
	statuses, err := a.Worktree.DiffIndex(ctx, branch)
	if err != nil {
		return nil, fmt.Errorf("diff working tree against %s: %w", branch, err)
	}
	specs := make([]commitengine.DiffSpec, 0, len(statuses))
	for _, st := range statuses {
		patch, err := a.Worktree.DiffPatch(ctx, branch, st.Path)
		if err != nil {
			return nil, err
		}
		specs = append(specs, commitengine.DiffSpec{Path: st.Path, Patch: patch})
	}
	return specs, nil
}

// segmentsAbove returns the segments stacked on top of branch within
// its own stack, nearest-to-base first, so that rebaseDescendants can
// walk them in dependency order.
func segmentsAbove(g *graph.Graph, branch string) []graph.Segment {
	for _, stack := range g.Stacks {
		for i, seg := range stack.Segments {
			if seg.Ref != branch {
				continue
			}
			above := make([]graph.Segment, i)
			for j := range above {
				// stack.Segments is tip-first; walk from the
				// segment closest to branch outward.
				above[j] = stack.Segments[i-1-j]
			}
			return above
		}
	}
	return nil
}

// rebaseDescendants replays each of descendants' commits onto newBase
// in turn, landing the rebased tip at each segment's ref and
// propagating the new tip as the base for the next one, per spec
// §4.6 step 4: an amend must carry every commit built on top of the
// amended tip along with it.
func rebaseDescendants(ctx context.Context, a *app, descendants []graph.Segment, newBase git.Hash) error {
	base := newBase
	for _, seg := range descendants {
		if seg.Empty() {
			continue
		}

		plan := make([]rebaseengine.Step, 0, len(seg.Commits))
		for i := len(seg.Commits) - 1; i >= 0; i-- {
			plan = append(plan, rebaseengine.Step{Kind: rebaseengine.Pick, Commit: seg.Commits[i].Hash})
		}

		result, err := rebaseengine.Execute(ctx, a.Repo, a.Log, base, plan)
		if err != nil {
			return fmt.Errorf("rebase %s onto amended commit: %w", seg.Ref, err)
		}

		if err := a.Repo.SetRef(ctx, git.SetRefRequest{
			Ref:     "refs/heads/" + seg.Ref,
			Hash:    result.Tip,
			OldHash: seg.Tip(),
		}); err != nil {
			return fmt.Errorf("update %s: %w", seg.Ref, err)
		}
		if err := updateStackHead(a, seg.Ref, result.Tip); err != nil {
			return err
		}

		base = result.Tip
	}
	return nil
}

// updateStackHead records a segment's new tip in the metadata store,
// locating the stack that owns the segment by its ref.
func updateStackHead(a *app, ref string, head git.Hash) error {
	for _, id := range a.Store.ListInWorkspace() {
		rec, err := a.Store.GetStack(id)
		if err != nil {
			continue
		}
		for _, seg := range rec.SegmentOrder {
			if seg != ref {
				continue
			}
			if rec.Heads == nil {
				rec.Heads = make(map[string]string)
			}
			rec.Heads[ref] = head.String()
			a.Store.SetStack(id, rec)
			return nil
		}
	}
	return fmt.Errorf("%s: %w", ref, state.ErrNotExist)
}
