package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"go.abhg.dev/but/internal/osutil"
)

// ApplyToTreeRequest selects, per path, a unified-diff patch fragment
// to apply on top of a base tree.
type ApplyToTreeRequest struct {
	// Base is the tree the patches apply against.
	Base Hash

	// Patches maps a path to the unified-diff text to apply for that
	// path. A path with an empty patch is left unchanged.
	Patches map[string]string
}

// ApplyToTreeResult is the outcome of [Repository.ApplyToTree].
type ApplyToTreeResult struct {
	// Tree is the resulting tree hash: Base with every patch that
	// applied cleanly folded in.
	Tree Hash

	// Rejected lists the paths whose patch failed to apply cleanly
	// against Base. Those paths are left unchanged in Tree.
	Rejected []string
}

// ApplyToTree applies a set of per-path patches to a base tree without
// touching the working tree, using a disposable index as scratch
// space.
//
// Each patch is applied independently against the same base tree: a
// patch that fails to apply is recorded in Rejected and otherwise
// ignored, so one bad hunk doesn't block the rest.
func (r *Repository) ApplyToTree(ctx context.Context, req ApplyToTreeRequest) (_ ApplyToTreeResult, err error) {
	indexFile, err := osutil.TempFilePath("", "but-index-*")
	if err != nil {
		return ApplyToTreeResult{}, fmt.Errorf("create index: %w", err)
	}
	defer func() {
		err = errors.Join(err, os.Remove(indexFile))
	}()

	env := "GIT_INDEX_FILE=" + indexFile

	if err := r.gitCmd(ctx, "read-tree", req.Base.String()).AppendEnv(env).Run(r.exec); err != nil {
		return ApplyToTreeResult{}, fmt.Errorf("read-tree: %w", err)
	}

	var rejected []string
	for path, patch := range req.Patches {
		if patch == "" {
			continue
		}

		cmd := r.gitCmd(ctx, "apply", "--cached", "--recount", "-").
			AppendEnv(env).
			StdinString(patch)
		if err := cmd.Run(r.exec); err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				rejected = append(rejected, path)
				continue
			}
			return ApplyToTreeResult{}, fmt.Errorf("apply %s: %w", path, err)
		}
	}

	out, err := r.gitCmd(ctx, "write-tree").AppendEnv(env).OutputString(r.exec)
	if err != nil {
		return ApplyToTreeResult{}, fmt.Errorf("write-tree: %w", err)
	}

	return ApplyToTreeResult{Tree: Hash(out), Rejected: rejected}, nil
}
