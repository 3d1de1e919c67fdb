package hunkdep_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.abhg.dev/but/internal/hunkdep"
)

func TestStackAccumulator_singleCommit(t *testing.T) {
	t.Parallel()

	acc := hunkdep.NewStackAccumulator("s1")
	acc.AddCommit("a.txt", "c1", []hunkdep.Hunk{
		{CommitID: "c1", OldStart: 10, OldLines: 2, NewStart: 10, NewLines: 4},
	})

	ranges := acc.Ranges("a.txt")
	require.Len(t, ranges, 1)
	assert.Equal(t, 10, ranges[0].Start)
	assert.Equal(t, 4, ranges[0].Lines)
	assert.Equal(t, 2, ranges[0].LineShift)
}

func TestStackAccumulator_tipFirstShift(t *testing.T) {
	t.Parallel()

	acc := hunkdep.NewStackAccumulator("s1")
	// Tip commit c2 added two lines at line 1.
	acc.AddCommit("a.txt", "c2", []hunkdep.Hunk{
		{CommitID: "c2", OldStart: 1, OldLines: 0, NewStart: 1, NewLines: 2},
	})
	// Base commit c1 touches what was originally line 5,
	// now shifted down by c2's +2.
	acc.AddCommit("a.txt", "c1", []hunkdep.Hunk{
		{CommitID: "c1", OldStart: 5, OldLines: 1, NewStart: 5, NewLines: 1},
	})

	ranges := acc.Ranges("a.txt")
	require.Len(t, ranges, 2)
	assert.Equal(t, "c2", ranges[0].CommitID)
	assert.Equal(t, "c1", ranges[1].CommitID)
	assert.Equal(t, 7, ranges[1].Start) // 5 + 2 shift from c2
}

func TestMerge_overlapReportsCalculationError(t *testing.T) {
	t.Parallel()

	a := hunkdep.NewStackAccumulator("a")
	a.AddCommit("x.txt", "ca", []hunkdep.Hunk{
		{CommitID: "ca", OldStart: 1, OldLines: 1, NewStart: 1, NewLines: 1},
	})

	b := hunkdep.NewStackAccumulator("b")
	b.AddCommit("x.txt", "cb", []hunkdep.Hunk{
		{CommitID: "cb", OldStart: 1, OldLines: 1, NewStart: 1, NewLines: 1},
	})

	_, errs := hunkdep.Merge([]*hunkdep.StackAccumulator{a, b})
	require.Len(t, errs, 1)

	var calcErr *hunkdep.CalculationError
	require.ErrorAs(t, errs[0], &calcErr)
	assert.Equal(t, "x.txt", calcErr.Path)
}

func TestQuery_intersects(t *testing.T) {
	t.Parallel()

	ranges := []hunkdep.HunkRange{
		{CommitID: "c1", Start: 10, Lines: 5},
		{CommitID: "c2", Start: 20, Lines: 5},
	}

	got := hunkdep.Query(ranges, 12, 3)
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].CommitID)

	got = hunkdep.Query(ranges, 0, 9)
	assert.Empty(t, got)
}

func TestDependenciesAndInverse(t *testing.T) {
	t.Parallel()

	ranges := []hunkdep.HunkRange{
		{CommitID: "c2", Start: 1, Lines: 5},
		{CommitID: "c1", Start: 3, Lines: 5},
	}

	deps := hunkdep.Dependencies(ranges)
	assert.Equal(t, []string{"c1"}, deps["c2"])

	inv := hunkdep.Inverse(deps)
	assert.Equal(t, []string{"c2"}, inv["c1"])
}
