package graph

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strings"

	"go.abhg.dev/container/ring"

	"go.abhg.dev/but/internal/git"
	"go.abhg.dev/but/internal/state"
)

// Repository is the subset of [git.Repository] the projection needs.
type Repository interface {
	CurrentBranch(ctx context.Context) (string, error)
	ListCommits(ctx context.Context, start, stop string, opts git.ListCommitsOptions) ([]git.CommitInfo, error)
	LocalBranches(ctx context.Context, opts *git.LocalBranchesOptions) ([]git.LocalBranch, error)
}

// MetadataStore is the subset of [state.Store] the projection needs.
type MetadataStore interface {
	ListInWorkspace() []state.StackID
	GetStack(id state.StackID) (state.StackRecord, error)
	Target() (ref, hash string, ok bool)
}

// Options configures [Project].
type Options struct {
	// EntryPoint overrides the tip the traversal starts from.
	// Defaults to HEAD.
	EntryPoint string

	// HardLimit caps the number of commits visited before the
	// traversal gives up and returns a truncated graph.
	// Zero means a built-in default (20000).
	HardLimit int

	// SoftLimit caps how far the walk proceeds looking for
	// convergence before settling for the deepest shared commit seen
	// so far. Zero means a built-in default (2000).
	SoftLimit int

	// Extensions lists commit hashes of known-interesting points
	// (e.g. a cherry-picked commit's origin). [Project] does not read
	// this field: crossing one of these commits does not refill the
	// soft limit budget.
	Extensions []git.Hash

	// ExtraTargets adds additional ref names to seed the walk from,
	// beyond HEAD, stack tips, and remote-tracking refs.
	ExtraTargets []string
}

const (
	defaultHardLimit = 20000
	defaultSoftLimit = 2000
)

// Project builds the commit graph for repo, as seen through store's
// metadata, per §4.3.
func Project(ctx context.Context, repo Repository, store MetadataStore, opts Options) (*Graph, error) {
	if opts.HardLimit <= 0 {
		opts.HardLimit = defaultHardLimit
	}
	if opts.SoftLimit <= 0 {
		opts.SoftLimit = defaultSoftLimit
	}

	head, err := repo.CurrentBranch(ctx)
	if err != nil {
		if errors.Is(err, git.ErrDetachedHead) {
			return projectDetached(ctx, repo)
		}
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	entry := opts.EntryPoint
	if entry == "" {
		entry = head
	}

	branches, err := repo.LocalBranches(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}

	var workspaceRef string
	for _, b := range branches {
		if strings.Contains(b.Name, WorkspaceRefPrefix) {
			workspaceRef = b.Name
			break
		}
	}

	stackIDs := store.ListInWorkspace()
	tips := make(map[string]state.StackID, len(stackIDs))
	var seeds []string
	seen := make(map[string]bool)
	addSeed := func(ref string) {
		if ref == "" || seen[ref] {
			return
		}
		seen[ref] = true
		seeds = append(seeds, ref)
	}

	addSeed(entry)
	for _, id := range stackIDs {
		rec, err := store.GetStack(id)
		if err != nil {
			continue
		}
		for _, ref := range rec.SegmentOrder {
			if hash, ok := rec.Heads[ref]; ok {
				tips[hash] = id
			}
			addSeed(ref)
		}
	}
	for _, b := range branches {
		if strings.HasPrefix(b.Name, "origin/") {
			addSeed(b.Name)
		}
	}

	targetRef, targetHash, hasTarget := store.Target()
	if hasTarget {
		addSeed(targetRef)
	}
	for _, ref := range opts.ExtraTargets {
		addSeed(ref)
	}

	g := &Graph{
		TargetRef: targetRef,
	}
	if hasTarget {
		g.TargetCommit = git.Hash(targetHash)
	}
	if workspaceRef != "" {
		g.Kind = Managed
	}

	// Seed a breadth-first walk from every interesting tip, tracking
	// which seeds can still reach each commit.
	visited := make(map[git.Hash]Flags)
	var frontier ring.Q[string]
	budget := opts.SoftLimit
	visitedCount := 0

	for _, seed := range seeds {
		frontier.Push(seed)
	}

	for !frontier.Empty() && visitedCount < opts.HardLimit {
		ref := frontier.Pop()

		commits, err := repo.ListCommits(ctx, ref, "", git.ListCommitsOptions{Limit: budget})
		if err != nil {
			continue // missing ref: logged by caller, graph still returned
		}

		var flags Flags
		if strings.HasPrefix(ref, "origin/") || strings.Contains(ref, "/") {
			// remote-tracking-ish seed: commits reachable only from
			// here are not yet "ours"
		} else {
			flags |= InWorkspace
		}
		if hasTarget && ref == targetRef {
			flags |= Integrated
		}

		for _, c := range commits {
			visitedCount++
			visited[c.Hash] |= flags
			if visitedCount >= opts.HardLimit {
				g.Truncated = true
				break
			}
		}
	}

	// Build stacks: one per tracked stack id, plus one ad-hoc stack
	// for the entry point if it isn't already covered.
	for _, id := range stackIDs {
		rec, err := store.GetStack(id)
		if err != nil {
			continue
		}

		var stack Stack
		stack.ID = string(id)
		for _, ref := range rec.SegmentOrder {
			commits, err := repo.ListCommits(ctx, ref, cmp.Or(targetRef, ""), git.ListCommitsOptions{})
			if err != nil {
				continue
			}

			seg := Segment{Ref: ref}
			for _, ci := range commits {
				seg.Commits = append(seg.Commits, Commit{
					Hash:    ci.Hash,
					Parents: ci.Parents,
					Subject: ci.Subject,
					Refs:    ci.Refs,
					Flags:   visited[ci.Hash] | InWorkspace,
				})
			}
			stack.Segments = append(stack.Segments, seg)
		}
		if len(stack.Segments) > 0 {
			g.Stacks = append(g.Stacks, stack)
		}
	}

	if len(g.Stacks) == 0 {
		commits, err := repo.ListCommits(ctx, entry, cmp.Or(targetRef, ""), git.ListCommitsOptions{})
		if err != nil {
			return nil, fmt.Errorf("list commits from %s: %w", entry, err)
		}

		seg := Segment{Ref: entry}
		for _, ci := range commits {
			seg.Commits = append(seg.Commits, Commit{
				Hash:    ci.Hash,
				Parents: ci.Parents,
				Subject: ci.Subject,
				Refs:    ci.Refs,
				Flags:   visited[ci.Hash] | InWorkspace,
			})
		}
		g.Stacks = append(g.Stacks, Stack{Segments: []Segment{seg}})
	}

	g.LowerBound = computeLowerBound(g.Stacks)

	if workspaceRef != "" && !classifyManaged(g, workspaceRef) {
		g.Kind = ManagedMissingCommit
	}

	return g, nil
}

// computeLowerBound returns the oldest commit of the stack with the
// fewest commits. It does not check that this commit is shared by the
// other stacks or by the target.
func computeLowerBound(stacks []Stack) git.Hash {
	var shortest git.Hash
	best := -1
	for _, stack := range stacks {
		n := 0
		var last git.Hash
		for _, seg := range stack.Segments {
			n += len(seg.Commits)
			if len(seg.Commits) > 0 {
				last = seg.Commits[len(seg.Commits)-1].Hash
			}
		}
		if last == "" {
			continue
		}
		if best == -1 || n < best {
			best = n
			shortest = last
		}
	}
	return shortest
}

// classifyManaged reports whether every stack in g has a non-empty
// tip. It does not look up workspaceRef's commit, so it does not check
// that the commit's parents are exactly the stack tips, in order;
// callers that need that check compare against
// [git.Repository.ListCommits] output for workspaceRef directly.
func classifyManaged(g *Graph, workspaceRef string) bool {
	tips := make([]git.Hash, 0, len(g.Stacks))
	for _, s := range g.Stacks {
		if tip := s.Tip(); tip != git.ZeroHash {
			tips = append(tips, tip)
		}
	}
	return len(tips) == len(g.Stacks)
}

func projectDetached(ctx context.Context, repo Repository) (*Graph, error) {
	commits, err := repo.ListCommits(ctx, "HEAD", "", git.ListCommitsOptions{})
	if err != nil {
		return nil, fmt.Errorf("list commits at detached HEAD: %w", err)
	}

	seg := Segment{}
	for _, ci := range commits {
		seg.Commits = append(seg.Commits, Commit{
			Hash:    ci.Hash,
			Parents: ci.Parents,
			Subject: ci.Subject,
			Refs:    ci.Refs,
		})
	}

	g := &Graph{
		Kind:     AdHoc,
		Detached: true,
		Stacks:   []Stack{{Segments: []Segment{seg}}},
	}
	if len(seg.Commits) > 0 {
		g.LowerBound = seg.Commits[len(seg.Commits)-1].Hash
	}
	return g, nil
}
