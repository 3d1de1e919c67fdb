package workspace_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.abhg.dev/but/internal/git"
	"go.abhg.dev/but/internal/graph"
	"go.abhg.dev/but/internal/workspace"
)

func seg(ref string, hashes ...git.Hash) graph.Segment {
	s := graph.Segment{Ref: ref}
	for _, h := range hashes {
		s.Commits = append(s.Commits, graph.Commit{Hash: h})
	}
	return s
}

func TestView_completelyUnpushed(t *testing.T) {
	t.Parallel()

	g := &graph.Graph{
		Stacks: []graph.Stack{{Segments: []graph.Segment{seg("feature", "c1")}}},
	}

	views := workspace.View(g, nil, noMergeBase, nil)
	require.Len(t, views, 1)
	require.Len(t, views[0].Segments, 1)
	assert.Equal(t, workspace.CompletelyUnpushed, views[0].Segments[0].Status)
}

func TestView_nothingToPush(t *testing.T) {
	t.Parallel()

	g := &graph.Graph{
		Stacks: []graph.Stack{{Segments: []graph.Segment{seg("feature", "c1")}}},
	}

	views := workspace.View(g, map[string]git.Hash{"feature": "c1"}, noMergeBase, nil)
	assert.Equal(t, workspace.NothingToPush, views[0].Segments[0].Status)
}

func TestView_unpushedCommits(t *testing.T) {
	t.Parallel()

	g := &graph.Graph{
		Stacks: []graph.Stack{{Segments: []graph.Segment{seg("feature", "c2", "c1")}}},
	}

	mergeBase := func(a, b git.Hash) (git.Hash, error) { return "c1", nil }
	views := workspace.View(g, map[string]git.Hash{"feature": "c1"}, mergeBase, nil)
	assert.Equal(t, workspace.UnpushedCommits, views[0].Segments[0].Status)
}

func TestView_requiresForce(t *testing.T) {
	t.Parallel()

	g := &graph.Graph{
		Stacks: []graph.Stack{{Segments: []graph.Segment{seg("feature", "c2")}}},
	}

	mergeBase := func(a, b git.Hash) (git.Hash, error) { return "other-base", nil }
	views := workspace.View(g, map[string]git.Hash{"feature": "c3"}, mergeBase, nil)
	assert.Equal(t, workspace.UnpushedCommitsRequiringForce, views[0].Segments[0].Status)
}

func noMergeBase(git.Hash, git.Hash) (git.Hash, error) { return "", nil }
