package rebaseengine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.abhg.dev/but/internal/git"
	"go.abhg.dev/but/internal/rebaseengine"
)

type fakeRepo struct {
	messages map[git.Hash]string
	conflict map[git.Hash]*git.MergeTreeConflictError
	trees    map[git.Hash]git.Hash
	nextTree int
}

func (f *fakeRepo) MergeTree(_ context.Context, req git.MergeTreeRequest) (git.Hash, error) {
	commit := git.Hash(req.Branch2)
	if err := f.conflict[commit]; err != nil {
		return "conflicted-tree", err
	}
	f.nextTree++
	return git.Hash(req.Branch1 + "+" + req.Branch2), nil
}

func (f *fakeRepo) CommitTree(_ context.Context, req git.CommitTreeRequest) (git.Hash, error) {
	f.nextTree++
	return git.Hash("commit-" + req.Tree.String()), nil
}

func (f *fakeRepo) CommitMessageRange(_ context.Context, start, _ string) ([]git.CommitMessage, error) {
	return []git.CommitMessage{{Subject: f.messages[git.Hash(start)]}}, nil
}

func (f *fakeRepo) PeelToTree(_ context.Context, ref string) (git.Hash, error) {
	return f.trees[git.Hash(ref)], nil
}

func (f *fakeRepo) GraftTree(_ context.Context, base git.Hash, prefix string, sub git.Hash) (git.Hash, error) {
	return base + "+" + git.Hash(prefix) + sub, nil
}

func TestExecute_cleanPick(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{
		messages: map[git.Hash]string{"c1": "first commit"},
		conflict: map[git.Hash]*git.MergeTreeConflictError{},
	}

	res, err := rebaseengine.Execute(t.Context(), repo, nil, "base", []rebaseengine.Step{
		{Kind: rebaseengine.Pick, Commit: "c1"},
	})
	require.NoError(t, err)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, git.Hash("commit-base+c1"), res.Rewritten["c1"])
	assert.Zero(t, res.Steps[0].ConflictedPaths)
	assert.Equal(t, res.Tip, res.Steps[0].NewCommit)
}

func TestExecute_conflictAddsHeader(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{
		messages: map[git.Hash]string{"c1": "first commit"},
		conflict: map[git.Hash]*git.MergeTreeConflictError{
			"c1": {Files: []git.MergeTreeConflictFile{{Path: "a.txt"}}},
		},
		trees: map[git.Hash]git.Hash{"base": "base-tree", "c1": "c1-tree"},
	}

	res, err := rebaseengine.Execute(t.Context(), repo, nil, "base", []rebaseengine.Step{
		{Kind: rebaseengine.Pick, Commit: "c1"},
	})
	require.NoError(t, err)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, 1, res.Steps[0].ConflictedPaths)
}

func TestExecute_referenceStep(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{
		messages: map[git.Hash]string{"c1": "first commit"},
		conflict: map[git.Hash]*git.MergeTreeConflictError{},
	}

	res, err := rebaseengine.Execute(t.Context(), repo, nil, "base", []rebaseengine.Step{
		{Kind: rebaseengine.Pick, Commit: "c1"},
		{Kind: rebaseengine.Reference, Ref: "refs/heads/feature"},
	})
	require.NoError(t, err)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, "refs/heads/feature", res.Steps[1].Ref)
	assert.Equal(t, res.Tip, res.Steps[1].NewCommit)
}

func TestConflictedCount(t *testing.T) {
	t.Parallel()

	n, ok := rebaseengine.ConflictedCount("Conflicted(3)\n\nfix stuff")
	require.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok = rebaseengine.ConflictedCount("no header here")
	assert.False(t, ok)
}
