package git

import (
	"context"
	"fmt"
	"strings"
)

// RefUpdate is a single ref change within a [Repository.UpdateRefs] batch.
type RefUpdate struct {
	// Ref is the name of the ref to update or delete.
	// If the ref is a branch or tag, it should be fully qualified
	// (e.g., "refs/heads/main" or "refs/tags/v1.0").
	Ref string

	// Hash is the new value for the ref.
	// Set this to ZeroHash to delete the ref.
	Hash Hash

	// OldHash, if set, specifies the current value of the ref.
	// The update is rejected if the ref does not currently hold
	// this value. Leave unset to skip this check.
	OldHash Hash
}

// UpdateRefs applies a batch of ref updates atomically:
// either all of the updates are applied, or none are.
//
// This is implemented with a single invocation of git-update-ref
// reading commands from stdin, so the updates share one reflog
// transaction.
func (r *Repository) UpdateRefs(ctx context.Context, updates []RefUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	var stdin strings.Builder
	for _, u := range updates {
		if u.Hash == ZeroHash {
			fmt.Fprintf(&stdin, "delete %s", u.Ref)
			if u.OldHash != "" {
				fmt.Fprintf(&stdin, " %s", u.OldHash)
			}
			stdin.WriteByte('\n')
			continue
		}

		fmt.Fprintf(&stdin, "update %s %s", u.Ref, u.Hash)
		if u.OldHash != "" {
			fmt.Fprintf(&stdin, " %s", u.OldHash)
		}
		stdin.WriteByte('\n')
	}

	err := r.gitCmd(ctx, "update-ref", "--stdin").
		StdinString(stdin.String()).
		Run(r.exec)
	if err != nil {
		return fmt.Errorf("update-ref --stdin: %w", err)
	}
	return nil
}
