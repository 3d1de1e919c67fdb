package main

import "context"

// newCmd creates a new stack: it's a thin alias for "branch new" with
// no --stack id, so the segment always starts its own stack.
type newCmd struct {
	Name   string `arg:"" name:"name" help:"Name of the stack's first segment"`
	Target string `name:"target" help:"Commitish the stack starts from; defaults to the integration target or HEAD"`
}

func (cmd *newCmd) Run(ctx context.Context, a *app) error {
	inner := branchNewCmd{Name: cmd.Name, Target: cmd.Target}
	return inner.Run(ctx, a)
}
