package state_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.abhg.dev/but/internal/state"
)

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "virtual_branches.toml")

	s, err := state.Open(path, nil)
	require.NoError(t, err)

	id := state.NewStackID()
	s.SetStack(id, state.StackRecord{
		Order:       0,
		InWorkspace: true,
		Description: "my stack",
	})
	s.SetBranch("refs/heads/feature", state.BranchRecord{
		Description: "feature work",
	})
	s.SetTarget("refs/remotes/origin/main", "deadbeef")

	require.NoError(t, s.Save())

	reopened, err := state.Open(path, nil)
	require.NoError(t, err)

	rec, err := reopened.GetStack(id)
	require.NoError(t, err)
	assert.Equal(t, "my stack", rec.Description)
	assert.True(t, rec.InWorkspace)

	branch := reopened.Branch("refs/heads/feature")
	assert.Equal(t, "feature work", branch.Description)

	ref, hash, ok := reopened.Target()
	require.True(t, ok)
	assert.Equal(t, "refs/remotes/origin/main", ref)
	assert.Equal(t, "deadbeef", hash)
}

func TestStoreGetStack_notFound(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "virtual_branches.toml")
	s, err := state.Open(path, nil)
	require.NoError(t, err)

	_, err = s.GetStack(state.NewStackID())
	assert.ErrorIs(t, err, state.ErrNotExist)
}

func TestOpen_corruptFileRotatesAside(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "virtual_branches.toml")
	require.NoError(t, os.WriteFile(path, []byte("not valid toml [[["), 0o600))

	s, err := state.Open(path, nil)
	require.Error(t, err)
	require.NotNil(t, s) // caller gets a usable empty store regardless

	var corrupt *state.CorruptError
	require.ErrorAs(t, err, &corrupt)
	assert.FileExists(t, corrupt.Path)
}

func TestReconcileInWorkspace(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "virtual_branches.toml")
	s, err := state.Open(path, nil)
	require.NoError(t, err)

	reachableID := state.NewStackID()
	staleID := state.NewStackID()
	s.SetStack(reachableID, state.StackRecord{InWorkspace: false})
	s.SetStack(staleID, state.StackRecord{InWorkspace: true})

	changed := s.ReconcileInWorkspace(map[state.StackID]bool{
		reachableID: true,
	})

	assert.ElementsMatch(t, []state.StackID{reachableID, staleID}, changed)

	rec, err := s.GetStack(reachableID)
	require.NoError(t, err)
	assert.True(t, rec.InWorkspace)

	rec, err = s.GetStack(staleID)
	require.NoError(t, err)
	assert.False(t, rec.InWorkspace)
}
