// Package workspace derives the per-stack, per-segment push status and
// commit classification view of a projected graph.
package workspace

import (
	"go.abhg.dev/but/internal/git"
	"go.abhg.dev/but/internal/graph"
)

// PushStatus classifies how a segment's local tip relates to its
// remote-tracking ref.
type PushStatus int

const (
	// NothingToPush means the remote-tracking ref already matches
	// the local tip.
	NothingToPush PushStatus = iota

	// UnpushedCommits means the remote-tracking ref is an ancestor of
	// the local tip: a fast-forward push would suffice.
	UnpushedCommits

	// UnpushedCommitsRequiringForce means the remote-tracking ref has
	// diverged from the local tip: pushing requires a force-push.
	UnpushedCommitsRequiringForce

	// CompletelyUnpushed means there is no remote-tracking ref at
	// all.
	CompletelyUnpushed

	// Integrated means every commit in the segment is reachable from
	// the target ref.
	Integrated
)

func (s PushStatus) String() string {
	switch s {
	case NothingToPush:
		return "NothingToPush"
	case UnpushedCommits:
		return "UnpushedCommits"
	case UnpushedCommitsRequiringForce:
		return "UnpushedCommitsRequiringForce"
	case CompletelyUnpushed:
		return "CompletelyUnpushed"
	case Integrated:
		return "Integrated"
	default:
		return "Unknown"
	}
}

// CommitOrigin classifies where a local commit's counterpart, if any,
// was found on the remote-tracking ref.
type CommitOrigin int

const (
	// OriginLocalOnly means the commit has no remote counterpart.
	OriginLocalOnly CommitOrigin = iota

	// OriginIdentity means an identical object hash was found on the
	// remote-tracking ref.
	OriginIdentity

	// OriginSimilarity means the remote-tracking ref's tip commit has
	// a matching tree-diff signature but a different hash (e.g. after
	// an amend or a rebase). Only the tip's signature is compared;
	// older commits on the remote-tracking ref are not.
	OriginSimilarity
)

// SegmentView is the derived, push-status-annotated view of a single
// graph segment.
type SegmentView struct {
	Segment graph.Segment

	// Status is the segment's push status relative to its
	// remote-tracking ref.
	Status PushStatus

	// Origins maps each commit's index in Segment.Commits to how it
	// was classified against the remote.
	Origins []CommitOrigin

	// Base is the commit the segment rests on: its bottom commit's
	// first parent. It is empty if the segment has no commits or its
	// bottom commit has no parents.
	Base git.Hash
}

// StackView is the derived view of a single stack.
type StackView struct {
	Stack    graph.Stack
	Segments []SegmentView
}

// Signature is a tree-diff signature used to classify "similar"
// commits: an order-independent set of path+hunk-hash pairs.
// Computing it is the caller's responsibility (it requires walking the
// commit's diff via the object facade); View only compares signatures
// it's handed.
type Signature string

// View derives the workspace view for g.
//
// remoteTips maps a segment's ref name to its remote-tracking ref's
// current commit hash, for segments that have one.
// mergeBase reports the merge base of two commits; it decides whether a
// push is a fast-forward and whether a local commit is reachable from
// the remote-tracking ref.
// signatures provides the tree-diff signature for any commit hash the
// caller wants to use for similarity matching; commits absent from the
// map are only matched by identity.
func View(
	g *graph.Graph,
	remoteTips map[string]git.Hash,
	mergeBase func(a, b git.Hash) (git.Hash, error),
	signatures map[git.Hash]Signature,
) []StackView {
	views := make([]StackView, 0, len(g.Stacks))

	for _, stack := range g.Stacks {
		sv := StackView{Stack: stack}

		for _, seg := range stack.Segments {
			view := SegmentView{Segment: seg}

			remote, hasRemote := remoteTips[seg.Ref]
			local := seg.Tip()

			switch {
			case allIntegrated(seg):
				view.Status = Integrated
			case !hasRemote:
				view.Status = CompletelyUnpushed
			case remote == local:
				view.Status = NothingToPush
			default:
				base, err := mergeBase(local, remote)
				if err == nil && base == remote && local != remote {
					view.Status = UnpushedCommits
				} else {
					view.Status = UnpushedCommitsRequiringForce
				}
			}

			remoteHashes := make(map[git.Hash]bool)
			if hasRemote {
				remoteHashes[remote] = true
			}

			view.Origins = make([]CommitOrigin, len(seg.Commits))
			for i, c := range seg.Commits {
				onRemote := remoteHashes[c.Hash]
				if !onRemote && hasRemote {
					// c is on the remote ref if it is an ancestor of the remote tip.
					if b, err := mergeBase(c.Hash, remote); err == nil && b == c.Hash {
						onRemote = true
					}
				}
				switch {
				case onRemote:
					view.Origins[i] = OriginIdentity
				case hasSimilarSignature(c.Hash, remote, signatures):
					view.Origins[i] = OriginSimilarity
				default:
					view.Origins[i] = OriginLocalOnly
				}
			}

			if !seg.Empty() {
				last := seg.Commits[len(seg.Commits)-1]
				if len(last.Parents) > 0 {
					view.Base = last.Parents[0]
				}
			}

			sv.Segments = append(sv.Segments, view)
		}

		views = append(views, sv)
	}

	return views
}

func allIntegrated(seg graph.Segment) bool {
	if seg.Empty() {
		return false
	}
	for _, c := range seg.Commits {
		if !c.Flags.Has(graph.Integrated) {
			return false
		}
	}
	return true
}

func hasSimilarSignature(local, remote git.Hash, sigs map[git.Hash]Signature) bool {
	if remote == "" {
		return false
	}
	localSig, ok := sigs[local]
	if !ok {
		return false
	}
	remoteSig, ok := sigs[remote]
	if !ok {
		return false
	}
	return localSig == remoteSig
}
