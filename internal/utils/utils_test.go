package utils

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDirIsEmpty(t *testing.T) {
	tempRoot := t.TempDir()

	// Brand new should be empty.
	if empty, err := DirIsEmpty(tempRoot); err != nil {
		t.Fatalf("unexpected error: %v", err)
	} else if !empty {
		t.Errorf("expected %q to be deemed empty", tempRoot)
	}

	// Holding dot-files should not be empty.
	if err := os.WriteFile(filepath.Join(tempRoot, ".a"), []byte{}, 0644); err != nil {
		t.Fatalf("failed to write a file: %v", err)
	}
	if empty, err := DirIsEmpty(tempRoot); err != nil {
		t.Fatalf("unexpected error: %v", err)
	} else if empty {
		t.Errorf("expected %q to be deemed not-empty", tempRoot)
	}

	// Test error path.
	if _, err := DirIsEmpty(filepath.Join(tempRoot, "does-not-exist")); err == nil {
		t.Errorf("unexpected success for non-existent dir")
	}
}

func TestRunCommand(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		out, err := RunCommand(ctx, slog.Default(), []string{"GREETING=hello"}, t.TempDir(), sh, "-c", "echo $GREETING")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != "hello" {
			t.Errorf("RunCommand() = %q, want %q", out, "hello")
		}
	})

	t.Run("failure captures output", func(t *testing.T) {
		_, err := RunCommand(ctx, slog.Default(), nil, "", sh, "-c", "echo out; echo err >&2; exit 3")
		var cmdErr *CommandError
		if !errors.As(err, &cmdErr) {
			t.Fatalf("expected CommandError got %v", err)
		}
		if diff := cmp.Diff([]string{"out", "err"}, cmdErr.Output); diff != "" {
			t.Errorf("CommandError.Output mismatch (-want +got):\n%s", diff)
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			t.Errorf("expected wrapped exit error got %v", err)
		}
	})

	t.Run("success with context cancelled after exit", func(t *testing.T) {
		out, err := RunCommand(cancelledAfterExitCtx{ctx}, slog.Default(), nil, "", sh, "-c", "echo done")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out != "done" {
			t.Errorf("RunCommand() = %q, want %q", out, "done")
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := RunCommand(cctx, slog.Default(), nil, "", sh, "-c", "sleep 5")
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled got %v", err)
		}
	})

	t.Run("missing binary", func(t *testing.T) {
		_, err := RunCommand(ctx, slog.Default(), nil, "", "git-mirrorer-does-not-exist")
		if !errors.Is(err, exec.ErrNotFound) {
			t.Errorf("expected exec.ErrNotFound got %v", err)
		}
	})
}

// cancelledAfterExitCtx never signals Done so the command runs to completion,
// but reports cancellation when checked afterwards
type cancelledAfterExitCtx struct {
	context.Context
}

func (cancelledAfterExitCtx) Done() <-chan struct{} { return nil }

func (cancelledAfterExitCtx) Err() error { return context.Canceled }
