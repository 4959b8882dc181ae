package mirror

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTakeSnapshot(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"b.git", "a.git", "c"} {
		if err := os.Mkdir(filepath.Join(root, d), 0755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "file.git"), nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(root, "a.git"), filepath.Join(root, "link.git")); err != nil {
		t.Fatal(err)
	}

	s, err := TakeSnapshot(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"a.git", "b.git", "c"}, s.Dirs()); diff != "" {
		t.Errorf("Dirs() mismatch (-want +got):\n%s", diff)
	}
	if !s.Has("a.git") || s.Has("file.git") || s.Len() != 3 || s.Root() != root {
		t.Errorf("unexpected snapshot %+v", s)
	}

	// snapshot does not follow later changes
	if err := os.Mkdir(filepath.Join(root, "d.git"), 0755); err != nil {
		t.Fatal(err)
	}
	if s.Has("d.git") {
		t.Errorf("snapshot must not change after it was taken")
	}
}

func TestTakeSnapshot_unavailable(t *testing.T) {
	_, err := TakeSnapshot(filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, ErrDestUnavailable) {
		t.Errorf("expected ErrDestUnavailable got %v", err)
	}
}
