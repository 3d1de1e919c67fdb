package main

import (
	"bytes"
	"context"
	"fmt"

	"go.abhg.dev/but/internal/git"
)

// metadataBlobPath is the reserved path within an oplog snapshot's
// tree that holds the serialized metadata store, matching spec §4.9's
// "serialized metadata store state" tree entry.
const metadataBlobPath = ".but/virtual_branches.toml"

// buildSnapshotTree assembles the tree an oplog snapshot commit points
// at: the current worktree tree with the serialized metadata store
// grafted in at a reserved path.
func buildSnapshotTree(ctx context.Context, a *app) (git.Hash, error) {
	workTree, err := a.Worktree.WriteIndexTree(ctx)
	if err != nil {
		return "", fmt.Errorf("write worktree index: %w", err)
	}

	encoded, err := a.Store.Encode()
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}

	blob, err := a.Repo.WriteObject(ctx, git.BlobType, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("write metadata blob: %w", err)
	}

	tree, err := a.Repo.UpdateTree(ctx, git.UpdateTreeRequest{
		Tree: workTree,
		Writes: func(yield func(git.BlobInfo) bool) {
			yield(git.BlobInfo{Mode: git.RegularMode, Hash: blob, Path: metadataBlobPath})
		},
	})
	if err != nil {
		return "", fmt.Errorf("graft metadata blob: %w", err)
	}

	return tree, nil
}

// checkoutSnapshot restores a snapshot's tree to the working copy and
// decodes its metadata store entry back into the store, serving as the
// oplog.Checkout callback.
func checkoutSnapshot(a *app) func(ctx context.Context, tree git.Hash) error {
	return func(ctx context.Context, tree git.Hash) error {
		var buf bytes.Buffer
		blobHash, err := a.Repo.HashAt(ctx, tree.String(), metadataBlobPath)
		if err != nil {
			return fmt.Errorf("resolve metadata blob: %w", err)
		}
		if err := a.Repo.ReadObject(ctx, git.BlobType, blobHash, &buf); err != nil {
			return fmt.Errorf("read metadata blob: %w", err)
		}

		if err := a.Worktree.CheckoutFiles(ctx, &git.CheckoutFilesRequest{
			TreeIsh:   tree.String(),
			Pathspecs: []string{".", ":(exclude)" + metadataBlobPath},
		}); err != nil {
			return fmt.Errorf("checkout snapshot tree: %w", err)
		}

		return a.reloadStateFrom(bytes.NewReader(buf.Bytes()))
	}
}
