package vcs

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// HeadsRefSpec mirrors all branches of the remote onto local branches
	HeadsRefSpec = "+refs/heads/*:refs/heads/*"

	OpCloneWorkingTree = "clone"
	OpCloneBare        = "clone-bare"
	OpFetch            = "fetch"
)

// ErrToolUnavailable is returned when the backend cannot run at all,
// eg. the git binary is missing.
var ErrToolUnavailable = errors.New("vcs tool unavailable")

// Client is the set of git operations used to read registries and
// maintain bare mirrors.
type Client interface {
	// CloneWorkingTree clones url with a checked out working tree into dst.
	// if useProxy is false configured proxy is not used.
	CloneWorkingTree(ctx context.Context, url, dst string, useProxy bool) error
	// CloneBare creates bare clone of the url at dst.
	CloneBare(ctx context.Context, url, dst string) error
	// FetchAllPruned fetches all branches of url into the bare repository at dir
	// removing local branches which no longer exist on the remote.
	FetchAllPruned(ctx context.Context, dir, url string) error
}

// Options are common to all backends
type Options struct {
	// GitExec is the path to git binary, only used by Exec backend.
	GitExec string
	// Envs are passed to every git command, only used by Exec backend.
	Envs []string
	// Proxy is the http(s) proxy used for mirrored repositories.
	Proxy string
	// Timeout applies to each operation, 0 means no timeout.
	Timeout time.Duration
	// Auth config to fetch remote repos
	Auth Auth
}

// Error represents a failed git operation on a remote
type Error struct {
	Op  string
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
