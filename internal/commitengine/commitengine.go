// Package commitengine implements the create-commit,
// move-changes-between-commits, and cherry-apply operations: the ways
// working-tree or committed changes are folded into a stack's
// history.
package commitengine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.abhg.dev/but/internal/git"
)

// DiffSpec selects a subset of a file's changes: Patch holds the
// unified-diff text for Path (the file's full diff, or a single hunk
// fragment), applied against the base tree. An empty Patch selects
// nothing: the path is left unchanged.
type DiffSpec struct {
	Path  string
	Patch string
}

// Repository is the subset of [*git.Repository] the commit engine
// needs.
type Repository interface {
	ApplyToTree(ctx context.Context, req git.ApplyToTreeRequest) (git.ApplyToTreeResult, error)
	CommitTree(ctx context.Context, req git.CommitTreeRequest) (git.Hash, error)
	PeelToTree(ctx context.Context, ref string) (git.Hash, error)
}

// CreateCommitRequest describes a new commit (or amend) to form from
// a selection of working-tree changes.
type CreateCommitRequest struct {
	// Parent is the new commit's parent. Required unless Amend is
	// set.
	Parent git.Hash

	// Amend, if set, is the commit being amended; its parent is used
	// as the base tree and its author is preserved.
	Amend git.Hash

	// Specs selects which changes to include.
	Specs []DiffSpec

	Message   string
	Author    *git.Signature
	Committer *git.Signature
}

// CreateCommitResult is the outcome of [CreateCommit].
type CreateCommitResult struct {
	// NewCommit is the resulting commit, or empty if no spec was
	// given or every spec was rejected, in which case nothing was
	// created.
	NewCommit git.Hash

	// Rejected lists the paths whose patch could not be applied
	// against the base tree.
	Rejected []string
}

// CreateCommit forms a new commit (or an amended replacement) from a
// selection of changes, following spec §4.6's algorithm: build the
// selected tree by applying only the chosen hunks on top of the base
// tree, then commit it.
//
// Note this only handles the tree-construction and commit-creation
// steps (1-3). Rewriting history above an amended commit (step 4) and
// updating the owning stack's head and workspace commit (step 5) are
// the caller's responsibility, typically via [rebaseengine] and the
// workspace commit manager.
func CreateCommit(ctx context.Context, repo Repository, req CreateCommitRequest) (CreateCommitResult, error) {
	base := req.Parent
	if req.Amend != "" {
		var err error
		base, err = firstParent(req.Amend)
		if err != nil {
			return CreateCommitResult{}, err
		}
	}
	if base == "" {
		return CreateCommitResult{}, errors.New("no base commit: set Parent or Amend")
	}

	baseTree, err := repo.PeelToTree(ctx, base.String())
	if err != nil {
		return CreateCommitResult{}, fmt.Errorf("resolve base tree: %w", err)
	}

	patches := make(map[string]string, len(req.Specs))
	for _, spec := range req.Specs {
		patches[spec.Path] = spec.Patch
	}

	applied, err := repo.ApplyToTree(ctx, git.ApplyToTreeRequest{
		Base:    baseTree,
		Patches: patches,
	})
	if err != nil {
		return CreateCommitResult{}, fmt.Errorf("apply selected changes: %w", err)
	}
	if len(applied.Rejected) >= len(patches) {
		return CreateCommitResult{Rejected: applied.Rejected}, nil
	}

	commit, err := repo.CommitTree(ctx, git.CommitTreeRequest{
		Tree:      applied.Tree,
		Message:   req.Message,
		Parents:   []git.Hash{base},
		Author:    req.Author,
		Committer: req.Committer,
	})
	if err != nil {
		return CreateCommitResult{}, fmt.Errorf("commit-tree: %w", err)
	}

	return CreateCommitResult{NewCommit: commit, Rejected: applied.Rejected}, nil
}

// firstParent resolves a commit-ish to its first parent using Git's
// own revision syntax, deferring actual parent-list inspection to the
// caller's graph data when one is available.
func firstParent(commit git.Hash) (git.Hash, error) {
	if commit == "" {
		return "", errors.New("empty commit")
	}
	return commit + "^", nil
}

// MoveChangesRequest moves a set of selected changes from a source
// commit to a target commit in the same stack.
type MoveChangesRequest struct {
	Source, Target git.Hash
	Specs          []DiffSpec
}

// MovePlanStep is a replacement entry in the rebase plan produced by
// [PlanMoveChanges]: the original commit at this position is replaced
// by Replacement.
type MovePlanStep struct {
	Original    git.Hash
	Replacement CreateCommitRequest
}

// PlanMoveChanges builds the two replacement commit requests described
// in spec §4.6: R_minus (source with the selected hunks removed) and
// R_plus (target with the selected hunks added). The caller is
// expected to splice these into an ordered rebase plan at Source's and
// Target's original positions and execute it via the rebase engine.
//
// If Source equals Target, the move is a no-op: PlanMoveChanges
// returns nil, nil.
func PlanMoveChanges(req MoveChangesRequest) ([]MovePlanStep, error) {
	if req.Source == "" || req.Target == "" {
		return nil, errors.New("source and target commits are required")
	}
	if req.Source == req.Target {
		return nil, nil
	}

	removal := make([]DiffSpec, len(req.Specs))
	addition := make([]DiffSpec, len(req.Specs))
	for i, spec := range req.Specs {
		removal[i] = DiffSpec{Path: spec.Path, Patch: invertPatch(spec.Patch)}
		addition[i] = spec
	}

	return []MovePlanStep{
		{
			Original: req.Source,
			Replacement: CreateCommitRequest{
				Amend: req.Source,
				Specs: removal,
			},
		},
		{
			Original: req.Target,
			Replacement: CreateCommitRequest{
				Amend: req.Target,
				Specs: addition,
			},
		},
	}, nil
}

// invertPatch swaps a unified-diff fragment's add/remove lines and
// file/hunk-range headers so that applying it reverses the original
// hunk. Used to "remove" a hunk's changes from the commit it came
// from by constructing R_minus.
func invertPatch(patch string) string {
	if patch == "" {
		return ""
	}

	lines := strings.Split(patch, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "--- "):
			lines[i] = "+++ " + line[4:]
		case strings.HasPrefix(line, "+++ "):
			lines[i] = "--- " + line[4:]
		case strings.HasPrefix(line, "@@ "):
			lines[i] = invertHunkHeader(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = "+" + line[1:]
		case strings.HasPrefix(line, "+"):
			lines[i] = "-" + line[1:]
		}
	}
	return strings.Join(lines, "\n")
}

// invertHunkHeader swaps the old and new ranges in a hunk header line
// of the form "@@ -a,b +c,d @@ ...".
func invertHunkHeader(line string) string {
	rest, ok := strings.CutPrefix(line, "@@ ")
	if !ok {
		return line
	}
	fields := strings.SplitN(rest, " @@", 2)
	if len(fields) < 1 {
		return line
	}

	ranges := strings.Fields(fields[0])
	if len(ranges) != 2 {
		return line
	}
	oldRange, newRange := ranges[0], ranges[1]
	if !strings.HasPrefix(oldRange, "-") || !strings.HasPrefix(newRange, "+") {
		return line
	}

	suffix := ""
	if len(fields) == 2 {
		suffix = " @@" + fields[1]
	}
	return "@@ -" + newRange[1:] + " +" + oldRange[1:] + suffix
}

// CherryApplyClassification is the outcome of classifying a
// cherry-apply target against the active stacks in a workspace.
type CherryApplyClassification int

const (
	// NoStacks means the workspace has no active stacks: cherry-apply
	// cannot proceed anywhere.
	NoStacks CherryApplyClassification = iota

	// ApplicableToAnyStack means no path touched by the candidate
	// commit is claimed by any active stack.
	ApplicableToAnyStack

	// LockedToStack means the candidate commit's paths only overlap
	// a single stack's claimed paths.
	LockedToStack

	// CausesWorkspaceConflict means the candidate commit's paths
	// overlap two or more stacks' claimed paths.
	CausesWorkspaceConflict
)

// ClassifyCherryApply classifies a candidate commit's paths against
// the paths claimed by each active stack, per spec §4.6's
// cherry-apply rule.
//
// claimedByStack maps each active stack's id to the set of paths it
// claims (e.g. the union of paths touched by its own commits).
// candidatePaths is the set of paths the candidate commit touches.
func ClassifyCherryApply(claimedByStack map[string]map[string]bool, candidatePaths map[string]bool) (CherryApplyClassification, string) {
	if len(claimedByStack) == 0 {
		return NoStacks, ""
	}

	touched := make(map[string]bool)
	for path := range candidatePaths {
		for stackID, claims := range claimedByStack {
			if claims[path] {
				touched[stackID] = true
			}
		}
	}

	switch len(touched) {
	case 0:
		return ApplicableToAnyStack, ""
	case 1:
		for stackID := range touched {
			return LockedToStack, stackID
		}
	}
	return CausesWorkspaceConflict, ""
}
