// Package rebaseengine executes ordered rebase plans as a sequence of
// three-way tree merges, never touching the working tree or index.
package rebaseengine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.abhg.dev/but/internal/git"
	"go.abhg.dev/but/internal/silog"
)

// Reserved subtree paths under which the ours/theirs sides of a
// conflicted step's merge are preserved, so downstream tooling can
// reconcile the conflict markers left in the main tree.
const (
	OursAuxPath   = ".auto-resolution/ours"
	TheirsAuxPath = ".auto-resolution/theirs"
)

// conflictedHeaderPrefix begins the structured commit message header
// recording how many paths a step's merge left conflicted.
const conflictedHeaderPrefix = "Conflicted("

// StepKind identifies the action a [Step] performs.
type StepKind int

const (
	// Pick cherry-picks a commit onto the current tip.
	Pick StepKind = iota

	// Fixup squashes a commit into the previous non-noop step.
	Fixup

	// Reference emits a ref that should point at the current tip once
	// the rebase completes; it does not change the tip.
	Reference

	// Noop carries a reference position forward without changing
	// content.
	Noop
)

// Step is one instruction in an ordered rebase plan.
type Step struct {
	Kind StepKind

	// Commit is the commit being picked or fixed up. Unused for
	// Reference and Noop.
	Commit git.Hash

	// Message overrides the resulting commit's message. If empty, the
	// original commit's message is reused (or, for Fixup, folded into
	// the previous step's message).
	Message string

	// Ref is the reference name to emit at the current tip. Only used
	// for Reference steps.
	Ref string
}

// StepResult records what a single step produced.
type StepResult struct {
	Step StepKind

	// OldCommit is the commit this step picked or fixed up, if any.
	OldCommit git.Hash

	// NewCommit is the resulting commit hash. For Reference steps this
	// is the tip the reference was pinned to; identical to the
	// previous step's NewCommit.
	NewCommit git.Hash

	// Ref is set for Reference steps.
	Ref string

	// ConflictedPaths is the number of paths left conflicted by this
	// step's merge, or zero if the step applied cleanly.
	ConflictedPaths int
}

// Result is the outcome of executing a rebase plan.
type Result struct {
	// Steps mirrors the input plan, one entry per step.
	Steps []StepResult

	// Tip is the final commit of the rebase, after the last Pick or
	// Fixup step.
	Tip git.Hash

	// Rewritten maps every picked or fixed-up commit's original hash
	// to its new hash.
	Rewritten map[git.Hash]git.Hash
}

// Repository is the subset of [*git.Repository] the rebase engine
// needs to merge trees, graft the conflict auxiliary trees, and form
// commits.
type Repository interface {
	MergeTree(ctx context.Context, req git.MergeTreeRequest) (git.Hash, error)
	CommitTree(ctx context.Context, req git.CommitTreeRequest) (git.Hash, error)
	CommitMessageRange(ctx context.Context, start, stop string) ([]git.CommitMessage, error)
	PeelToTree(ctx context.Context, ref string) (git.Hash, error)
	GraftTree(ctx context.Context, base git.Hash, prefix string, sub git.Hash) (git.Hash, error)
}

// Execute runs steps starting from base, returning the rewritten
// history and any ref pins requested by Reference steps.
//
// Per step, commit is cherry-picked via a three-way merge of
// (parent of commit, current tip, commit) -> tree. A conflicted merge
// still produces a valid commit: the conflicted tree is committed
// as-is (with Git's conflict markers in place) and the message gets a
// Conflicted(n) header: downstream tooling decides how to reconcile.
func Execute(ctx context.Context, repo Repository, log *silog.Logger, base git.Hash, steps []Step) (*Result, error) {
	if log == nil {
		log = silog.Nop()
	}

	res := &Result{
		Tip:       base,
		Rewritten: make(map[git.Hash]git.Hash),
	}

	var pendingFixupMessages []string

	for _, step := range steps {
		switch step.Kind {
		case Pick, Fixup:
			parent, err := firstParentOf(ctx, repo, step.Commit)
			if err != nil {
				return nil, fmt.Errorf("resolve parent of %s: %w", step.Commit, err)
			}

			tree, conflicted, err := mergeStep(ctx, repo, parent, res.Tip, step.Commit)
			if err != nil {
				return nil, fmt.Errorf("merge %s: %w", step.Commit, err)
			}

			if conflicted > 0 {
				tree, err = attachConflictAuxTrees(ctx, repo, tree, res.Tip, step.Commit)
				if err != nil {
					return nil, fmt.Errorf("attach conflict aux trees for %s: %w", step.Commit, err)
				}
			}

			message := step.Message
			if message == "" {
				message, err = commitMessage(ctx, repo, step.Commit)
				if err != nil {
					return nil, fmt.Errorf("read message of %s: %w", step.Commit, err)
				}
			}

			if step.Kind == Fixup {
				pendingFixupMessages = append(pendingFixupMessages, message)
				message = ""
			}
			if len(pendingFixupMessages) > 0 && step.Kind == Pick {
				message = strings.Join(append([]string{message}, pendingFixupMessages...), "\n\n")
				pendingFixupMessages = nil
			}

			if conflicted > 0 {
				message = fmt.Sprintf("%s%d)\n\n%s", conflictedHeaderPrefix, conflicted, message)
				log.Warn("step produced conflicts", "commit", step.Commit, "paths", conflicted)
			}

			parents := []git.Hash{res.Tip}
			newCommit, err := repo.CommitTree(ctx, git.CommitTreeRequest{
				Tree:    tree,
				Message: message,
				Parents: parents,
			})
			if err != nil {
				return nil, fmt.Errorf("commit-tree for %s: %w", step.Commit, err)
			}

			res.Rewritten[step.Commit] = newCommit
			res.Tip = newCommit

			res.Steps = append(res.Steps, StepResult{
				Step:            step.Kind,
				OldCommit:       step.Commit,
				NewCommit:       newCommit,
				ConflictedPaths: conflicted,
			})

		case Reference:
			res.Steps = append(res.Steps, StepResult{
				Step:      Reference,
				NewCommit: res.Tip,
				Ref:       step.Ref,
			})

		case Noop:
			res.Steps = append(res.Steps, StepResult{
				Step:      Noop,
				NewCommit: res.Tip,
			})

		default:
			return nil, fmt.Errorf("unknown step kind %d", step.Kind)
		}
	}

	return res, nil
}

// mergeStep performs the three-way merge for a single Pick/Fixup step,
// reporting the resulting tree and the number of conflicted paths (0
// if the merge was clean).
func mergeStep(ctx context.Context, repo Repository, parent, tip, commit git.Hash) (git.Hash, int, error) {
	tree, err := repo.MergeTree(ctx, git.MergeTreeRequest{
		MergeBase: parent.String(),
		Branch1:   tip.String(),
		Branch2:   commit.String(),
	})

	var conflictErr *git.MergeTreeConflictError
	switch {
	case err == nil:
		return tree, 0, nil
	case errors.As(err, &conflictErr):
		n := 0
		for range conflictErr.Filenames() {
			n++
		}
		return tree, n, nil
	default:
		return "", 0, err
	}
}

// attachConflictAuxTrees grafts the ours (current tip) and theirs
// (picked commit) trees into tree under the reserved auxiliary paths,
// so the conflict markers left in tree can be reconciled against both
// original sides.
func attachConflictAuxTrees(ctx context.Context, repo Repository, tree, ours, theirs git.Hash) (git.Hash, error) {
	oursTree, err := repo.PeelToTree(ctx, ours.String())
	if err != nil {
		return "", fmt.Errorf("resolve ours tree: %w", err)
	}
	theirsTree, err := repo.PeelToTree(ctx, theirs.String())
	if err != nil {
		return "", fmt.Errorf("resolve theirs tree: %w", err)
	}

	tree, err = repo.GraftTree(ctx, tree, OursAuxPath+"/", oursTree)
	if err != nil {
		return "", fmt.Errorf("graft ours: %w", err)
	}
	tree, err = repo.GraftTree(ctx, tree, TheirsAuxPath+"/", theirsTree)
	if err != nil {
		return "", fmt.Errorf("graft theirs: %w", err)
	}

	return tree, nil
}

func firstParentOf(ctx context.Context, repo Repository, commit git.Hash) (git.Hash, error) {
	// Parents aren't exposed on the Repository subset interface used
	// here; callers that need non-trivial parent resolution should
	// resolve it via the graph package and pass steps whose Commit
	// already encodes the right merge base. For the common case of a
	// linear stack, commit^ resolves correctly through Git's revision
	// syntax, which MergeTree accepts as a tree-ish.
	return commit + "^", nil
}

func commitMessage(ctx context.Context, repo Repository, commit git.Hash) (string, error) {
	msgs, err := repo.CommitMessageRange(ctx, commit.String(), commit.String()+"^")
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 {
		return "", fmt.Errorf("no message found for %s", commit)
	}
	return msgs[0].String(), nil
}

// ConflictedCount parses the Conflicted(n) header from a rewritten
// commit's message, if present.
func ConflictedCount(message string) (int, bool) {
	idx := strings.Index(message, conflictedHeaderPrefix)
	if idx < 0 {
		return 0, false
	}
	rest := message[idx+len(conflictedHeaderPrefix):]
	end := strings.IndexByte(rest, ')')
	if end < 0 {
		return 0, false
	}
	var n int
	if _, err := fmt.Sscanf(rest[:end], "%d", &n); err != nil {
		return 0, false
	}
	return n, true
}
