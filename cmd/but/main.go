// Command but is the CLI front-end for the virtual-branch workspace
// engine: it wires the core packages (graph projection, workspace
// view, commit/rebase engines, oplog) to a Kong command tree.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"

	"go.abhg.dev/but/internal/komplete"
	"go.abhg.dev/but/internal/silog"
	"go.abhg.dev/but/internal/state"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	log := silog.New(os.Stderr, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt)
	go func() {
		<-sigc
		log.Warn("interrupted, cleaning up; press Ctrl-C again to exit immediately")
		cancel()
		<-sigc
		os.Exit(int(exitUserError))
	}()

	var cmd mainCmd
	parser, err := kong.New(
		&cmd,
		kong.Name("but"),
		kong.Description("but manages a stack of virtual branches layered on Git."),
		kong.Bind(log),
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.UsageOnError(),
	)
	if err != nil {
		log.Errorf("internal error: %v", err)
		return exitUserError
	}

	komplete.Run(parser)

	kctx, err := parser.Parse(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitInvalidArgs
	}

	if err := kctx.Run(); err != nil {
		return exitCodeFor(log, err)
	}
	return exitSuccess
}

// exitCodeFor maps a command error to the CLI's exit-code contract,
// logging it along the way.
func exitCodeFor(log *silog.Logger, err error) int {
	var usage usageError
	switch {
	case errors.As(err, &usage):
		log.Error(usage.Error())
		return exitInvalidArgs
	case errors.Is(err, state.ErrLocked):
		log.Error(err.Error())
		return exitLockBusy
	default:
		log.Error(err.Error())
		return exitUserError
	}
}

type mainCmd struct {
	globalOptions

	StatusCmd   statusCmd   `cmd:"" name:"status" help:"Show the workspace's stacks and their push status"`
	CommitCmd   commitCmd   `cmd:"" name:"commit" help:"Create a commit from selected working-tree changes"`
	PushCmd     pushCmd     `cmd:"" name:"push" help:"Push the current branch's segment to its remote"`
	BranchCmd   branchCmd   `cmd:"" name:"branch" help:"Manage branches in the workspace"`
	RubCmd      rubCmd      `cmd:"" name:"rub" help:"Move changes from one commit to another"`
	BaseCmd     baseCmd     `cmd:"" name:"base" help:"Inspect or update the workspace's integration target"`
	NewCmd      newCmd      `cmd:"" name:"new" help:"Create a new stack"`
	SnapshotCmd snapshotCmd `cmd:"" name:"snapshot" help:"Record a manual oplog snapshot"`
	UndoCmd     undoCmd     `cmd:"" name:"undo" help:"Restore the state before the most recent operation"`
	RestoreCmd  restoreCmd  `cmd:"" name:"restore" help:"Restore a specific oplog snapshot"`
	OplogCmd    oplogCmd    `cmd:"" name:"oplog" help:"List oplog snapshots"`
	CompleteCmd komplete.Command `cmd:"" name:"complete" hidden:"" help:"Generate shell completion script"`

	Version versionFlag `help:"Print version information and quit"`
}

type globalOptions struct {
	Dir  string `short:"C" name:"dir" help:"Run as if but was started in this directory" default:"."`
	JSON bool   `name:"json" help:"Emit machine-readable JSON output"`
}

// AfterApply opens the repository, worktree, and metadata store once
// per invocation and binds the shared app context into Kong, the same
// way the teacher's mainCmd binds a token source after flags are
// parsed.
func (cmd *mainCmd) AfterApply(kctx *kong.Context, ctx context.Context, log *silog.Logger) error {
	a, err := openApp(ctx, cmd.Dir, log, cmd.JSON)
	if err != nil {
		return err
	}
	kctx.Bind(a)
	return nil
}

type versionFlag string

func (versionFlag) Decode(*kong.DecodeContext) error { return nil }
func (versionFlag) IsBool() bool                     { return true }

func (versionFlag) BeforeApply(k *kong.Kong) error {
	fmt.Fprintln(k.Stdout, "but (development build)")
	k.Exit(0)
	return nil
}
