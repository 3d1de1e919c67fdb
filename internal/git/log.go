package git

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// CommitInfo holds metadata about a single commit,
// as needed to project a commit graph.
type CommitInfo struct {
	// Hash of the commit.
	Hash Hash

	// Parents are the hashes of the commit's parents,
	// in order.
	Parents []Hash

	// Subject is the first line of the commit message.
	Subject string

	// AuthorDate is the RFC 3339 author date of the commit.
	AuthorDate string

	// Refs are the ref names (branches, tags) that point directly
	// at this commit, as reported by --decorate.
	Refs []string
}

// ListCommitsOptions configures [Repository.ListCommits].
type ListCommitsOptions struct {
	// Limit caps the number of commits returned.
	// Zero means no limit.
	Limit int

	// FirstParent walks only the first-parent chain from start,
	// skipping the commits a merge brought in from its other
	// parents.
	FirstParent bool
}

// ListCommits lists commits reachable from start, stopping
// at (and excluding) any commit reachable from stop.
//
// If stop is empty, all ancestors of start are listed.
func (r *Repository) ListCommits(
	ctx context.Context,
	start, stop string,
	opts ListCommitsOptions,
) ([]CommitInfo, error) {
	const (
		fieldSep = "\x1f"
		format   = "%H" + fieldSep + "%P" + fieldSep + "%s" + fieldSep + "%aI" + fieldSep + "%D"
	)

	args := []string{"log", "--format=" + format, start}
	if stop != "" {
		args = append(args, "--not", stop)
	}
	if opts.Limit > 0 {
		args = append(args, "-n", fmt.Sprint(opts.Limit))
	}
	if opts.FirstParent {
		args = append(args, "--first-parent")
	}
	args = append(args, "--")

	cmd := r.gitCmd(ctx, args...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pipe: %w", err)
	}

	if err := cmd.Start(r.exec); err != nil {
		return nil, fmt.Errorf("start git log: %w", err)
	}

	var commits []CommitInfo
	scan := bufio.NewScanner(out)
	scan.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scan.Scan() {
		line := scan.Text()
		if line == "" {
			continue
		}

		fields := strings.SplitN(line, fieldSep, 5)
		if len(fields) != 5 {
			continue
		}

		info := CommitInfo{
			Hash:       Hash(fields[0]),
			Subject:    fields[2],
			AuthorDate: fields[3],
		}
		if parents := strings.Fields(fields[1]); len(parents) > 0 {
			info.Parents = make([]Hash, len(parents))
			for i, p := range parents {
				info.Parents[i] = Hash(p)
			}
		}
		if refs := strings.TrimSpace(fields[4]); refs != "" {
			for _, ref := range strings.Split(refs, ", ") {
				ref = strings.TrimPrefix(ref, "HEAD -> ")
				ref = strings.TrimPrefix(ref, "tag: ")
				info.Refs = append(info.Refs, ref)
			}
		}

		commits = append(commits, info)
	}

	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	if err := cmd.Wait(r.exec); err != nil {
		return nil, fmt.Errorf("git log: %w", err)
	}

	return commits, nil
}
