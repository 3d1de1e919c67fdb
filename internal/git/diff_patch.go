package git

import (
	"context"
	"fmt"
)

// DiffPatch renders the unified-diff text for a single path between
// treeish and the working tree, suitable for [Repository.ApplyToTree].
func (w *Worktree) DiffPatch(ctx context.Context, treeish, path string) (string, error) {
	out, err := w.gitCmd(ctx, "diff", "--no-color", treeish, "--", path).OutputString(w.exec)
	if err != nil {
		return "", fmt.Errorf("git diff %s -- %s: %w", treeish, path, err)
	}
	return out, nil
}

// DiffPatch renders the unified-diff text for a single path between
// two commit-ish trees, suitable for [Repository.ApplyToTree].
func (r *Repository) DiffPatch(ctx context.Context, treeish1, treeish2, path string) (string, error) {
	out, err := r.gitCmd(ctx, "diff", "--no-color", treeish1, treeish2, "--", path).OutputString(r.exec)
	if err != nil {
		return "", fmt.Errorf("git diff %s %s -- %s: %w", treeish1, treeish2, path, err)
	}
	return out, nil
}
