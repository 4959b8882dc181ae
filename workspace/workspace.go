// Package workspace provides a self-cleaning scratch directory.
//
// While a Workspace is open the process working directory is switched into it.
// Close restores the previous working directory and removes the scratch
// directory recursively. [Run] guarantees Close on every exit path including
// error, panic and context cancellation.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

const dirPattern = "git-mirrorer-scratch-*"

// ErrClosed is returned when a closed Workspace is used
var ErrClosed = errors.New("workspace is closed")

// Workspace is a unique empty temp directory owned by a single run
type Workspace struct {
	mu      sync.Mutex
	dir     string
	prevDir string
	closed  bool
	log     *slog.Logger
}

// Open creates new scratch directory and switches the process cwd into it
func Open(log *slog.Logger) (*Workspace, error) {
	if log == nil {
		log = slog.Default()
	}

	prevDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("unable to get current working dir err:%w", err)
	}

	dir, err := os.MkdirTemp("", dirPattern)
	if err != nil {
		return nil, fmt.Errorf("unable to create scratch dir err:%w", err)
	}

	if err := os.Chdir(dir); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("unable to change dir to scratch dir err:%w", err)
	}

	log.Debug("scratch workspace opened", "path", dir)

	return &Workspace{dir: dir, prevDir: prevDir, log: log}, nil
}

// Dir returns absolute path of the scratch directory
func (w *Workspace) Dir() string {
	return w.dir
}

// TempDir creates new unique directory inside the workspace
func (w *Workspace) TempDir(pattern string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return "", ErrClosed
	}
	return os.MkdirTemp(w.dir, pattern)
}

// Close restores the previous working directory and removes the scratch
// directory. It is safe to call Close more than once.
func (w *Workspace) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	if err := os.Chdir(w.prevDir); err != nil {
		errs = append(errs, fmt.Errorf("unable to restore working dir %s err:%w", w.prevDir, err))
	}
	if err := os.RemoveAll(w.dir); err != nil {
		errs = append(errs, fmt.Errorf("unable to remove scratch dir %s err:%w", w.dir, err))
	}

	if len(errs) > 0 {
		w.log.Error("unable to clean up scratch workspace", "path", w.dir, "err", errors.Join(errs...))
		return errors.Join(errs...)
	}

	w.log.Debug("scratch workspace removed", "path", w.dir)
	return nil
}

// Run opens a Workspace, calls fn and closes the workspace regardless of how
// fn returns. A panic in fn is re-raised after clean up.
func Run(ctx context.Context, log *slog.Logger, fn func(context.Context, *Workspace) error) (err error) {
	w, err := Open(log)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := w.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, w)
}
