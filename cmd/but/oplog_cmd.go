package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"go.abhg.dev/but/internal/oplog"
)

type oplogCmd struct {
	Since string `name:"since" help:"Only list snapshots created at or after this RFC 3339 timestamp"`
	Limit int    `name:"limit" help:"Maximum number of snapshots to list" default:"0"`
}

func (cmd *oplogCmd) Run(ctx context.Context, a *app) error {
	var since *time.Time
	if cmd.Since != "" {
		t, err := time.Parse(time.RFC3339, cmd.Since)
		if err != nil {
			return usageErrorf("invalid --since %q: %v", cmd.Since, err)
		}
		since = &t
	}

	snaps, err := oplog.List(ctx, a.Repo, oplogRef, cmd.Limit, since)
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}

	if a.JSON {
		return json.NewEncoder(os.Stdout).Encode(snaps)
	}

	if len(snaps) == 0 {
		fmt.Println("no snapshots recorded yet")
		return nil
	}

	for _, snap := range snaps {
		age := "unknown time"
		if !snap.CreatedAt.IsZero() {
			age = humanize.Time(snap.CreatedAt)
		}
		fmt.Printf("%s  %-20s %s (%s)\n", snap.ID.Short(), snap.Kind, snap.Title, age)
	}
	return nil
}
