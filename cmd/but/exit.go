package main

import "fmt"

// Exit codes per the CLI surface contract: 0 success, 1 a user-facing
// error (e.g. a merge conflict the user must resolve), 2 invalid
// arguments, 3 the project lock is held by another process.
const (
	exitSuccess     = 0
	exitUserError   = 1
	exitInvalidArgs = 2
	exitLockBusy    = 3
)

// usageError marks an error as an invalid-arguments failure (exit 2)
// rather than an ordinary user-facing one (exit 1).
type usageError struct{ error }

func usageErrorf(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}
