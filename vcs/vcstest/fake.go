// Package vcstest provides a fake vcs.Client for tests which need
// repositories on disk without running git.
package vcstest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/utilitywarehouse/git-mirrorer/vcs"
)

// ErrUnreachable is the default error returned for failing remotes
var ErrUnreachable = errors.New("remote unreachable")

// Call records a single operation made on Fake
type Call struct {
	Op       string
	URL      string
	Dir      string
	UseProxy bool
}

// Fake implements vcs.Client. Working tree clones materialise the files
// registered in Trees, bare clones create a minimal bare repository layout.
type Fake struct {
	mu sync.Mutex

	// Trees maps remote url to the files (relative path -> content)
	// written by CloneWorkingTree.
	Trees map[string]map[string]string
	// Fail maps remote url to the error returned by every operation on it.
	Fail map[string]error
	// Partial lists remotes whose bare clone creates the target
	// directory before failing.
	Partial map[string]bool

	Calls []Call
}

// New returns empty Fake
func New() *Fake {
	return &Fake{
		Trees:   make(map[string]map[string]string),
		Fail:    make(map[string]error),
		Partial: make(map[string]bool),
	}
}

// AddTree registers a working tree for remote url
func (f *Fake) AddTree(url string, files map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Trees[url] = files
}

// FailRemote makes every operation on url fail with ErrUnreachable
func (f *Fake) FailRemote(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fail[url] = ErrUnreachable
}

// CallsFor returns recorded calls of the given op
func (f *Fake) CallsFor(op string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var calls []Call
	for _, c := range f.Calls {
		if c.Op == op {
			calls = append(calls, c)
		}
	}
	return calls
}

func (f *Fake) record(c Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, c)
	if err, ok := f.Fail[c.URL]; ok {
		return &vcs.Error{Op: c.Op, URL: c.URL, Err: err}
	}
	return nil
}

func (f *Fake) CloneWorkingTree(ctx context.Context, url, dst string, useProxy bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.record(Call{Op: vcs.OpCloneWorkingTree, URL: url, Dir: dst, UseProxy: useProxy}); err != nil {
		return err
	}

	f.mu.Lock()
	files, ok := f.Trees[url]
	f.mu.Unlock()
	if !ok {
		return &vcs.Error{Op: vcs.OpCloneWorkingTree, URL: url, Err: fmt.Errorf("repository %q not found", url)}
	}

	if err := os.MkdirAll(filepath.Join(dst, ".git"), 0755); err != nil {
		return err
	}
	for name, content := range files {
		path := filepath.Join(dst, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fake) CloneBare(ctx context.Context, url, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := f.record(Call{Op: vcs.OpCloneBare, URL: url, Dir: dst, UseProxy: true})

	f.mu.Lock()
	partial := f.Partial[url]
	f.mu.Unlock()

	if partial {
		if err := os.MkdirAll(filepath.Join(dst, "objects"), 0755); err != nil {
			return err
		}
		return &vcs.Error{Op: vcs.OpCloneBare, URL: url, Err: ErrUnreachable}
	}
	if err != nil {
		return err
	}
	return MakeBare(dst)
}

func (f *Fake) FetchAllPruned(ctx context.Context, dir, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.record(Call{Op: vcs.OpFetch, URL: url, Dir: dir, UseProxy: true}); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(dir, "HEAD")); err != nil {
		return &vcs.Error{Op: vcs.OpFetch, URL: url, Err: err}
	}
	return nil
}

// MakeBare creates the minimal layout of a bare repository at dir
func MakeBare(dir string) error {
	for _, d := range []string{"objects", "refs/heads", "refs/tags"} {
		if err := os.MkdirAll(filepath.Join(dir, d), 0755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "HEAD"), []byte("ref: refs/heads/main\n"), 0644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "description"), []byte("Unnamed repository; edit this file 'description' to name the repository.\n"), 0644)
}
