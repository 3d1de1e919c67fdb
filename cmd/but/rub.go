package main

import (
	"context"
	"fmt"

	"go.abhg.dev/but/internal/commitengine"
	"go.abhg.dev/but/internal/git"
	"go.abhg.dev/but/internal/graph"
	"go.abhg.dev/but/internal/oplog"
	"go.abhg.dev/but/internal/rebaseengine"
)

type rubCmd struct {
	Source string `arg:"" name:"source" help:"Commit to move changes out of"`
	Target string `arg:"" name:"target" help:"Commit to move changes into"`
}

// Run moves every change introduced by source onto target, within the
// same stack, per spec §4.6's move-changes-between-commits algorithm:
// build replacement commits for both ends, then rebuild the stack on
// top of them.
func (cmd *rubCmd) Run(ctx context.Context, a *app) error {
	if err := a.acquireWrite(); err != nil {
		return err
	}
	defer a.releaseWrite()

	source, err := a.Repo.PeelToCommit(ctx, cmd.Source)
	if err != nil {
		return usageErrorf("%s is not a valid commit: %v", cmd.Source, err)
	}
	target, err := a.Repo.PeelToCommit(ctx, cmd.Target)
	if err != nil {
		return usageErrorf("%s is not a valid commit: %v", cmd.Target, err)
	}

	g, err := graph.Project(ctx, a.Repo, a.Store, graph.Options{})
	if err != nil {
		return fmt.Errorf("project graph: %w", err)
	}
	stack, seg := findCommitStack(g, source)
	if stack == nil {
		return usageErrorf("%s is not part of any stack in the workspace", cmd.Source)
	}
	if other, _ := findCommitStack(g, target); other != stack {
		return usageErrorf("%s and %s are not in the same stack", cmd.Source, cmd.Target)
	}

	patches, err := sourceDiffPaths(ctx, a, source)
	if err != nil {
		return err
	}

	steps, err := commitengine.PlanMoveChanges(commitengine.MoveChangesRequest{
		Source: source,
		Target: target,
		Specs:  patches,
	})
	if err != nil {
		return fmt.Errorf("plan move: %w", err)
	}
	if len(steps) == 0 {
		a.Log.Info("source and target are the same commit; nothing to move")
		return nil
	}

	replacements := make(map[git.Hash]git.Hash, len(steps))
	for _, step := range steps {
		req := step.Replacement
		if req.Message == "" {
			subject, err := a.Repo.CommitSubject(ctx, step.Original.String())
			if err != nil {
				return fmt.Errorf("read message of %s: %w", step.Original, err)
			}
			req.Message = subject
		}

		res, err := commitengine.CreateCommit(ctx, a.Repo, req)
		if err != nil {
			return fmt.Errorf("build replacement for %s: %w", step.Original, err)
		}
		replacements[step.Original] = res.NewCommit
	}

	plan := buildRebasePlan(seg, replacements)

	base := seg.Commits[len(seg.Commits)-1].Parents
	var baseCommit git.Hash
	if len(base) > 0 {
		baseCommit = base[0]
	}

	result, err := rebaseengine.Execute(ctx, a.Repo, a.Log, baseCommit, plan)
	if err != nil {
		return fmt.Errorf("execute rebase: %w", err)
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

	return syncAndSnapshot(ctx, a, oplog.MoveHunk, fmt.Sprintf("Move changes from %s to %s", source.Short(), target.Short()))
}

// findCommitStack locates the stack and segment containing hash.
func findCommitStack(g *graph.Graph, hash git.Hash) (*graph.Stack, *graph.Segment) {
	for i := range g.Stacks {
		stack := &g.Stacks[i]
		for j := range stack.Segments {
			seg := &stack.Segments[j]
			for _, c := range seg.Commits {
				if c.Hash == hash {
					return stack, seg
				}
			}
		}
	}
	return nil, nil
}

// sourceDiffPaths builds the per-path patches that make up source's
// own contribution, used as the basis for both R_minus and R_plus.
func sourceDiffPaths(ctx context.Context, a *app, source git.Hash) ([]commitengine.DiffSpec, error) {
	var paths []string
	for fs, err := range a.Repo.DiffTree(ctx, source.String()+"^", source.String()) {
		if err != nil {
			return nil, fmt.Errorf("diff %s: %w", source, err)
		}
		paths = append(paths, fs.Path)
	}

	specs := make([]commitengine.DiffSpec, 0, len(paths))
	for _, path := range paths {
		patch, err := a.Repo.DiffPatch(ctx, source.String()+"^", source.String(), path)
		if err != nil {
			return nil, err
		}
		specs = append(specs, commitengine.DiffSpec{Path: path, Patch: patch})
	}
	return specs, nil
}

// buildRebasePlan replays seg's commits base-to-tip (oldest first),
// substituting the
// replacement commit built for source and target at their original
// position in the stack.
func buildRebasePlan(seg *graph.Segment, replacements map[git.Hash]git.Hash) []rebaseengine.Step {
	plan := make([]rebaseengine.Step, 0, len(seg.Commits))
	for i := len(seg.Commits) - 1; i >= 0; i-- {
		commit := seg.Commits[i].Hash
		if replacement, ok := replacements[commit]; ok {
			commit = replacement
		}
		plan = append(plan, rebaseengine.Step{Kind: rebaseengine.Pick, Commit: commit})
	}
	return plan
}
