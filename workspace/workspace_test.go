package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// tests in this package change process cwd and must not run in parallel

func mustGetwd(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	return dir
}

func assertCleanedUp(t *testing.T, startDir, scratch string) {
	t.Helper()

	if got := mustGetwd(t); got != startDir {
		t.Errorf("cwd not restored got:%s want:%s", got, startDir)
	}
	if scratch == "" {
		t.Fatal("scratch dir was never opened")
	}
	if _, err := os.Stat(scratch); !os.IsNotExist(err) {
		t.Errorf("scratch dir %s still exists err:%v", scratch, err)
	}
}

func TestOpenClose(t *testing.T) {
	startDir := mustGetwd(t)

	w, err := Open(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// cwd may be reported through a symlink eg. /tmp on macOS
	cwd, _ := filepath.EvalSymlinks(mustGetwd(t))
	want, _ := filepath.EvalSymlinks(w.Dir())
	if cwd != want {
		t.Errorf("cwd not switched to scratch dir got:%s want:%s", cwd, want)
	}

	entries, err := os.ReadDir(w.Dir())
	if err != nil || len(entries) != 0 {
		t.Errorf("expected empty scratch dir got:%v err:%v", entries, err)
	}

	sub, err := w.TempDir("register-*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Dir(sub) != w.Dir() {
		t.Errorf("sub dir %s not inside workspace %s", sub, w.Dir())
	}
	if err := os.WriteFile(filepath.Join(sub, "file"), []byte("data"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertCleanedUp(t, startDir, w.Dir())

	// second close is no-op
	if err := w.Close(); err != nil {
		t.Errorf("unexpected error on second close: %v", err)
	}
	if _, err := w.TempDir("x-*"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed got %v", err)
	}
}

func TestRun(t *testing.T) {
	errFn := errors.New("fn failed")

	tests := []struct {
		name    string
		ctx     func() context.Context
		fnErr   error
		wantErr error
		wantRun bool
	}{
		{"success", context.Background, nil, nil, true},
		{"error", context.Background, errFn, errFn, true},
		{"cancelled", func() context.Context {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			return ctx
		}, nil, context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			startDir := mustGetwd(t)

			var scratch string
			var ran bool
			err := Run(tt.ctx(), nil, func(ctx context.Context, w *Workspace) error {
				ran = true
				scratch = w.Dir()
				if err := os.WriteFile("leftover", []byte("data"), 0644); err != nil {
					t.Fatalf("WriteFile: %v", err)
				}
				return tt.fnErr
			})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Run() error = %v, want %v", err, tt.wantErr)
			}
			if ran != tt.wantRun {
				t.Errorf("fn ran = %t, want %t", ran, tt.wantRun)
			}
			if tt.wantRun {
				assertCleanedUp(t, startDir, scratch)
			} else if got := mustGetwd(t); got != startDir {
				t.Errorf("cwd not restored got:%s want:%s", got, startDir)
			}
		})
	}
}

func TestRun_panic(t *testing.T) {
	startDir := mustGetwd(t)
	var scratch string

	func() {
		defer func() {
			if r := recover(); r != "boom" {
				t.Errorf("expected panic to propagate got:%v", r)
			}
		}()
		Run(context.Background(), nil, func(ctx context.Context, w *Workspace) error {
			scratch = w.Dir()
			panic("boom")
		})
	}()

	assertCleanedUp(t, startDir, scratch)
}
