package mirror

import (
	"errors"
	"fmt"
	"os"
	"slices"
)

// ErrDestUnavailable is returned when destination root cannot be listed
var ErrDestUnavailable = errors.New("destination root unavailable")

// Snapshot is the set of directory names found under the destination root.
// It is captured once before a run and never changes afterwards.
type Snapshot struct {
	root string
	dirs map[string]struct{}
}

// TakeSnapshot lists immediate sub directories of root, other entries are ignored
func TakeSnapshot(root string) (Snapshot, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrDestUnavailable, err)
	}

	s := Snapshot{root: root, dirs: make(map[string]struct{}, len(entries))}
	for _, entry := range entries {
		if entry.IsDir() {
			s.dirs[entry.Name()] = struct{}{}
		}
	}
	return s, nil
}

// Root returns the path the snapshot was taken of
func (s Snapshot) Root() string {
	return s.root
}

// Has returns true if dir was present when snapshot was taken
func (s Snapshot) Has(dir string) bool {
	_, ok := s.dirs[dir]
	return ok
}

// Dirs returns sorted directory names
func (s Snapshot) Dirs() []string {
	dirs := make([]string, 0, len(s.dirs))
	for d := range s.dirs {
		dirs = append(dirs, d)
	}
	slices.Sort(dirs)
	return dirs
}

// Len returns number of directories in the snapshot
func (s Snapshot) Len() int {
	return len(s.dirs)
}
