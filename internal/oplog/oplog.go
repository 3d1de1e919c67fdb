// Package oplog implements the per-project operation log: a hidden
// ref to which each mutating core operation appends a snapshot
// commit, supporting undo and restore.
package oplog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.abhg.dev/but/internal/git"
)

// Ref is the hidden ref the oplog is kept under.
const Ref = "refs/gitbutler/oplog"

// OperationKind enumerates the kinds of mutating operation that
// append a snapshot.
type OperationKind string

// The full enumerated set of operation kinds from spec §4.9.
const (
	CreateCommit         OperationKind = "CreateCommit"
	AmendCommit          OperationKind = "AmendCommit"
	UndoCommit           OperationKind = "UndoCommit"
	SquashCommit         OperationKind = "SquashCommit"
	UpdateCommitMessage  OperationKind = "UpdateCommitMessage"
	MoveCommit           OperationKind = "MoveCommit"
	RestoreFromSnapshot  OperationKind = "RestoreFromSnapshot"
	ReorderCommit        OperationKind = "ReorderCommit"
	InsertBlankCommit    OperationKind = "InsertBlankCommit"
	MoveHunk             OperationKind = "MoveHunk"
	ReorderBranches      OperationKind = "ReorderBranches"
	UpdateWorkspaceBase  OperationKind = "UpdateWorkspaceBase"
	UpdateBranchName     OperationKind = "UpdateBranchName"
	ApplyBranch          OperationKind = "ApplyBranch"
	UnapplyBranch        OperationKind = "UnapplyBranch"
	DeleteBranch         OperationKind = "DeleteBranch"
	DiscardChanges       OperationKind = "DiscardChanges"
	FileChanges          OperationKind = "FileChanges"
)

// kindSep separates the operation kind from the title on a snapshot
// commit's subject line, so the kind survives a plain "%s" log format
// without needing the full commit body.
const kindSep = ": "

// Snapshot is a single entry in the oplog.
type Snapshot struct {
	ID        git.Hash
	Kind      OperationKind
	Title     string
	Details   string
	CreatedAt time.Time

	// Tree is the snapshot commit's tree: working tree + serialized
	// metadata store state + the marker blob, as described in §4.9.
	Tree git.Hash
}

// CreateRequest describes a snapshot to append.
type CreateRequest struct {
	Kind    OperationKind
	Title   string
	Details string

	// WorkingTree is the tree to snapshot: the current working tree
	// plus the serialized metadata store blob, already assembled by
	// the caller (the oplog package has no opinion on how the
	// metadata blob is laid out within it).
	WorkingTree git.Hash
}

// Repository is the subset of [*git.Repository] the oplog needs.
type Repository interface {
	CommitTree(ctx context.Context, req git.CommitTreeRequest) (git.Hash, error)
	PeelToCommit(ctx context.Context, ref string) (git.Hash, error)
	PeelToTree(ctx context.Context, ref string) (git.Hash, error)
	ListCommits(ctx context.Context, start, stop string, opts git.ListCommitsOptions) ([]git.CommitInfo, error)
	UpdateRefs(ctx context.Context, updates []git.RefUpdate) error
}

// Create appends a new snapshot to the oplog, parented on the current
// head of ref (if any), and advances ref to point at it.
func Create(ctx context.Context, repo Repository, ref string, req CreateRequest) (Snapshot, error) {
	var parents []git.Hash
	oldHead, err := repo.PeelToCommit(ctx, ref)
	switch {
	case err == nil:
		parents = []git.Hash{oldHead}
	case errors.Is(err, git.ErrNotExist):
		// No oplog yet; this is the first snapshot.
	default:
		return Snapshot{}, fmt.Errorf("resolve oplog head: %w", err)
	}

	message := formatMessage(req.Kind, req.Title, req.Details)
	commit, err := repo.CommitTree(ctx, git.CommitTreeRequest{
		Tree:    req.WorkingTree,
		Message: message,
		Parents: parents,
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("commit snapshot: %w", err)
	}

	update := git.RefUpdate{Ref: ref, Hash: commit}
	if len(parents) > 0 {
		update.OldHash = parents[0]
	}
	if err := repo.UpdateRefs(ctx, []git.RefUpdate{update}); err != nil {
		return Snapshot{}, fmt.Errorf("update oplog ref: %w", err)
	}

	return Snapshot{
		ID:      commit,
		Kind:    req.Kind,
		Title:   req.Title,
		Details: req.Details,
		Tree:    req.WorkingTree,
	}, nil
}

// List returns the newest limit snapshots (or all of them, if limit
// is zero), optionally only those created at or after since, walking
// first-parent from the oplog head.
func List(ctx context.Context, repo Repository, ref string, limit int, since *time.Time) ([]Snapshot, error) {
	if _, err := repo.PeelToCommit(ctx, ref); err != nil {
		if errors.Is(err, git.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve oplog head: %w", err)
	}

	commits, err := repo.ListCommits(ctx, ref, "", git.ListCommitsOptions{
		Limit:       limit,
		FirstParent: true,
	})
	if err != nil {
		return nil, fmt.Errorf("walk oplog: %w", err)
	}

	snapshots := make([]Snapshot, 0, len(commits))
	for _, c := range commits {
		kind, title := parseMessage(c.Subject)
		createdAt, _ := time.Parse(time.RFC3339, c.AuthorDate)

		if since != nil && createdAt.Before(*since) {
			continue
		}

		tree, err := repo.PeelToTree(ctx, c.Hash.String())
		if err != nil {
			return nil, fmt.Errorf("resolve tree of %s: %w", c.Hash, err)
		}

		snapshots = append(snapshots, Snapshot{
			ID:        c.Hash,
			Kind:      kind,
			Title:     title,
			CreatedAt: createdAt,
			Tree:      tree,
		})
	}

	return snapshots, nil
}

// Undo returns the second-newest snapshot: the state before the most
// recent mutating operation. It does not apply it; pass its ID to
// [Restore] for that.
func Undo(ctx context.Context, repo Repository, ref string) (Snapshot, error) {
	snaps, err := List(ctx, repo, ref, 2, nil)
	if err != nil {
		return Snapshot{}, err
	}
	if len(snaps) < 2 {
		return Snapshot{}, fmt.Errorf("nothing to undo: fewer than two snapshots on %s", ref)
	}
	return snaps[1], nil
}

// Checkout restores a snapshot's tree to the working copy and its
// metadata store state. The oplog package knows nothing about the
// worktree or the metadata store directly; the caller supplies
// whatever is needed to apply a tree to both.
type Checkout func(ctx context.Context, tree git.Hash) error

// Restore finds the snapshot named id, applies it via checkout, and
// appends a new [RestoreFromSnapshot] snapshot recording the restore
// so it, too, can be undone.
func Restore(ctx context.Context, repo Repository, ref string, id git.Hash, checkout Checkout) (Snapshot, error) {
	target, err := repo.PeelToTree(ctx, id.String())
	if err != nil {
		return Snapshot{}, fmt.Errorf("resolve snapshot %s: %w", id, err)
	}

	if err := checkout(ctx, target); err != nil {
		return Snapshot{}, fmt.Errorf("apply snapshot %s: %w", id, err)
	}

	return Create(ctx, repo, ref, CreateRequest{
		Kind:        RestoreFromSnapshot,
		Title:       fmt.Sprintf("Restore from %s", id),
		WorkingTree: target,
	})
}

// formatMessage builds a snapshot commit message: "<Kind>: <Title>" as
// the subject line, so List can recover the kind from the subject
// alone, followed by the details as the message body.
func formatMessage(kind OperationKind, title, details string) string {
	var b strings.Builder
	b.WriteString(string(kind))
	b.WriteString(kindSep)
	b.WriteString(title)
	if details != "" {
		b.WriteString("\n\n")
		b.WriteString(details)
	}
	return b.String()
}

// parseMessage recovers the operation kind and title from a snapshot
// commit's subject line. Details live in the message body, which the
// plain "%s" log format used by [git.Repository.ListCommits] does not
// surface; List leaves Details empty.
func parseMessage(subject string) (kind OperationKind, title string) {
	k, t, ok := strings.Cut(subject, kindSep)
	if !ok {
		return "", subject
	}
	return OperationKind(k), t
}
