package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"go.abhg.dev/but/internal/git"
	"go.abhg.dev/but/internal/oplog"
	"go.abhg.dev/but/internal/silog"
	"go.abhg.dev/but/internal/state"
)

// stateDirName is the directory inside the repository's Git directory
// that holds the metadata store and lockfile, mirroring spec §6's "gitbutler/" layout.
const stateDirName = "but"

// app bundles the handles every command needs: the opened repository
// and worktree, the metadata store, and the project lock. AfterApply
// on the root command builds one and binds it into the Kong context.
type app struct {
	Log  *silog.Logger
	JSON bool

	Repo     *git.Repository
	Worktree *git.Worktree
	Store    *state.Store
	Lock     *state.Lock

	Settings *globalSettings
}

func (a *app) stateDir() string {
	return filepath.Join(a.Repo.GitDir(), stateDirName)
}

func (a *app) metadataPath() string {
	return filepath.Join(a.stateDir(), "virtual_branches.toml")
}

func (a *app) lockPath() string {
	return filepath.Join(a.stateDir(), "project.lock")
}

// oplogRef is the hidden ref the project's operation log lives under.
const oplogRef = oplog.Ref

// openApp opens the repository rooted at dir, loads its metadata
// store, and prepares the project's write lock without acquiring it.
// Mutating commands acquire the lock through acquireWrite; read-only
// commands (e.g. status, oplog list) never take it.
func openApp(ctx context.Context, dir string, log *silog.Logger, jsonOut bool) (*app, error) {
	repo, err := git.Open(ctx, dir, git.OpenOptions{Log: log})
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}

	wt, err := repo.OpenWorktree(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}

	settings, err := loadGlobalSettings(defaultConfigDir())
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	a := &app{
		Log:      log,
		JSON:     jsonOut,
		Repo:     repo,
		Worktree: wt,
		Settings: settings,
	}

	store, err := state.Open(a.metadataPath(), log)
	if err != nil {
		if _, ok := err.(*state.CorruptError); !ok {
			return nil, fmt.Errorf("open metadata store: %w", err)
		}
		log.Warn("metadata store was corrupt and has been reset", "error", err)
	}
	a.Store = store
	a.Lock = state.NewLock(a.lockPath())

	return a, nil
}

// acquireWrite acquires the project's write permission, returning an
// error that main maps to exit code 3 if another process holds it.
func (a *app) acquireWrite() error {
	return a.Lock.TryAcquire()
}

func (a *app) releaseWrite() {
	_ = a.Lock.Release()
}

// reloadStateFrom replaces the metadata store's contents with the
// document read from r and persists it to disk.
func (a *app) reloadStateFrom(r io.Reader) error {
	if err := a.Store.Decode(r); err != nil {
		return err
	}
	return a.Store.Save()
}
