// Package graph projects the set of reachable commits and refs in a
// repository into a bounded, workspace-aware DAG of stacks and
// segments.
package graph

import (
	"go.abhg.dev/but/internal/git"
)

// Flags is a bitset of properties propagated along a commit's parent
// edges during graph traversal. Flags are unioned on revisit, never
// cleared.
type Flags uint8

const (
	// NotInRemote marks a commit not reachable from any known
	// remote-tracking ref.
	NotInRemote Flags = 1 << iota

	// InWorkspace marks a commit dominated by the managed workspace
	// ref.
	InWorkspace

	// Integrated marks a commit reachable from the target ref.
	Integrated
)

// Has reports whether all bits in other are set in f.
func (f Flags) Has(other Flags) bool { return f&other == other }

// Commit is a single node in the projected graph.
type Commit struct {
	Hash         git.Hash
	Parents      []git.Hash
	Subject      string
	Refs         []string
	Flags        Flags
	HasConflicts bool
}

// Segment is a contiguous, named run of commits within a stack,
// ordered tip-first.
type Segment struct {
	// Ref is the branch ref name owning this segment, if any.
	Ref string

	// RemoteRef is the remote-tracking ref name for Ref, if known.
	RemoteRef string

	// Commits lists the segment's commits, tip (most recent) first.
	Commits []Commit
}

// Empty reports whether the segment has no commits.
// Empty segments are legal; they act as insertion points.
func (s *Segment) Empty() bool { return len(s.Commits) == 0 }

// Tip returns the hash of the segment's topmost commit, or the zero
// hash if the segment is empty.
func (s *Segment) Tip() git.Hash {
	if s.Empty() {
		return git.ZeroHash
	}
	return s.Commits[0].Hash
}

// Stack is an ordered, non-empty sequence of segments sharing a tip.
type Stack struct {
	// ID is the stack's stable identifier in the metadata store.
	// Empty for ad-hoc stacks with no persisted metadata.
	ID string

	// Segments are ordered tip-first: Segments[0] is closest to the
	// stack's tip.
	Segments []Segment
}

// Tip returns the hash of the stack's topmost commit.
func (s *Stack) Tip() git.Hash {
	for _, seg := range s.Segments {
		if !seg.Empty() {
			return seg.Tip()
		}
	}
	return git.ZeroHash
}

// Kind classifies how the workspace relates to its managed ref.
type Kind int

const (
	// AdHoc is a plain checkout: no managed workspace ref is present.
	AdHoc Kind = iota

	// Managed means the workspace ref points at a synthetic merge
	// commit whose parents are exactly the stack tips, in order.
	Managed

	// ManagedMissingCommit means the workspace ref is present but its
	// commit does not satisfy the Managed property — e.g. it was
	// advanced manually outside the engine.
	ManagedMissingCommit
)

// Graph is the projected view of (HEAD, refs, metadata) produced by
// [Project].
type Graph struct {
	Kind Kind

	// Stacks are ordered by the metadata store's stack ordering;
	// ad-hoc stacks (no metadata) sort after managed ones.
	Stacks []Stack

	// LowerBound is the oldest commit still considered inside the
	// workspace region.
	LowerBound git.Hash

	// TargetRef is the integration ref the workspace aims to merge
	// into, if one is configured.
	TargetRef string

	// TargetCommit is the commit TargetRef pointed at when the graph
	// was projected.
	TargetCommit git.Hash

	// Truncated is set when traversal hit the hard limit before all
	// tips converged.
	Truncated bool

	// Unborn is set when HEAD has no commits yet.
	Unborn bool

	// Detached is set when HEAD is not on any branch.
	Detached bool
}

// WorkspaceRefPrefix is the prefix used to recognize a managed
// workspace ref among local branches.
const WorkspaceRefPrefix = "gitbutler/workspace"

// CommitByHash returns the commit node for hash across every stack and
// segment in the graph, or false if it isn't present.
func (g *Graph) CommitByHash(hash git.Hash) (Commit, bool) {
	for _, stack := range g.Stacks {
		for _, seg := range stack.Segments {
			for _, c := range seg.Commits {
				if c.Hash == hash {
					return c, true
				}
			}
		}
	}
	return Commit{}, false
}
