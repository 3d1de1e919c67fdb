package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"go.abhg.dev/but/internal/git"
	"go.abhg.dev/but/internal/graph"
	"go.abhg.dev/but/internal/workspace"
)

type statusCmd struct{}

func (cmd *statusCmd) Run(ctx context.Context, a *app) error {
	g, err := graph.Project(ctx, a.Repo, a.Store, graph.Options{})
	if err != nil {
		return fmt.Errorf("project graph: %w", err)
	}

	remoteTips, err := collectRemoteTips(ctx, a.Repo, g)
	if err != nil {
		return fmt.Errorf("collect remote tips: %w", err)
	}

	views := workspace.View(g, remoteTips, func(x, y git.Hash) (git.Hash, error) {
		return a.Repo.MergeBase(ctx, x.String(), y.String())
	}, nil)

	if a.JSON {
		return json.NewEncoder(os.Stdout).Encode(statusDocFromViews(g, views))
	}

	printStatus(g, views)
	return nil
}

func collectRemoteTips(ctx context.Context, repo *git.Repository, g *graph.Graph) (map[string]git.Hash, error) {
	tips := make(map[string]git.Hash)
	for _, stack := range g.Stacks {
		for _, seg := range stack.Segments {
			if seg.Ref == "" {
				continue
			}
			upstream, err := repo.BranchUpstream(ctx, seg.Ref)
			if err != nil {
				continue
			}
			hash, err := repo.PeelToCommit(ctx, upstream)
			if err != nil {
				continue
			}
			tips[seg.Ref] = hash
		}
	}
	return tips, nil
}

type statusDoc struct {
	Kind   string           `json:"kind"`
	Stacks []statusDocStack `json:"stacks"`
}

type statusDocStack struct {
	ID       string              `json:"id,omitempty"`
	Segments []statusDocSegment  `json:"segments"`
}

type statusDocSegment struct {
	Ref     string `json:"ref"`
	Status  string `json:"status"`
	Commits int    `json:"commits"`
}

func statusDocFromViews(g *graph.Graph, views []workspace.StackView) statusDoc {
	doc := statusDoc{Kind: kindString(g.Kind)}
	for _, sv := range views {
		ds := statusDocStack{ID: sv.Stack.ID}
		for _, seg := range sv.Segments {
			ds.Segments = append(ds.Segments, statusDocSegment{
				Ref:     seg.Segment.Ref,
				Status:  seg.Status.String(),
				Commits: len(seg.Segment.Commits),
			})
		}
		doc.Stacks = append(doc.Stacks, ds)
	}
	return doc
}

func kindString(k graph.Kind) string {
	switch k {
	case graph.Managed:
		return "managed"
	case graph.ManagedMissingCommit:
		return "managed-missing-commit"
	default:
		return "ad-hoc"
	}
}

func printStatus(g *graph.Graph, views []workspace.StackView) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	if len(views) == 0 {
		fmt.Fprintln(tw, "no stacks in the workspace")
		return
	}

	for _, sv := range views {
		name := sv.Stack.ID
		if name == "" {
			name = "(ad hoc)"
		}
		fmt.Fprintf(tw, "stack %s\n", name)
		for _, seg := range sv.Segments {
			ref := seg.Segment.Ref
			if ref == "" {
				ref = "(unnamed)"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%d commit(s)\n", ref, strings.ToLower(seg.Status.String()), len(seg.Segment.Commits))
		}
	}
}
