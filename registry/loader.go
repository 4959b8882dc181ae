package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"

	"github.com/utilitywarehouse/git-mirrorer/vcs"
)

// Scratch provides temporary directories for registry clones
type Scratch interface {
	TempDir(pattern string) (string, error)
}

// Options configures file names looked up in registry repositories
type Options struct {
	RegisterFile string
	RepoListFile string
}

// Loader fetches and parses the register and the group repo-lists
type Loader struct {
	client  vcs.Client
	scratch Scratch
	opts    Options
	log     *slog.Logger
}

// NewLoader returns Loader which clones registry repositories with client
// into scratch
func NewLoader(client vcs.Client, scratch Scratch, opts Options, log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	if opts.RegisterFile == "" {
		opts.RegisterFile = DefaultRegisterFile
	}
	if opts.RepoListFile == "" {
		opts.RepoListFile = DefaultRepoListFile
	}
	return &Loader{client: client, scratch: scratch, opts: opts, log: log}
}

// LoadRegister returns mirror groups listed in the register at url
func (l *Loader) LoadRegister(ctx context.Context, url string) ([]Group, error) {
	data, err := l.fetchFile(ctx, url, l.opts.RegisterFile, "register-*")
	if err != nil {
		return nil, err
	}

	var entries []Group
	if err := unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %s err:%w", ErrRegistryMalformed, l.opts.RegisterFile, err)
	}

	var groups []Group
	for i, g := range entries {
		if g.URL == "" {
			l.log.Warn("skipping register entry without url", "index", i, "prefix", g.Prefix)
			continue
		}
		if g.Prefix != "" && !ValidName(g.Prefix) {
			l.log.Warn("skipping register entry with invalid prefix", "index", i, "prefix", g.Prefix)
			continue
		}
		groups = append(groups, g)
	}

	l.log.Debug("register loaded", "url", url, "groups", len(groups))
	return groups, nil
}

// LoadGroupRepos returns repositories declared in the repo-list of the group
func (l *Loader) LoadGroupRepos(ctx context.Context, group Group) (map[string]Repo, error) {
	data, err := l.fetchFile(ctx, group.URL, l.opts.RepoListFile, "group-*")
	if err != nil {
		return nil, err
	}

	var list repoList
	if err := unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("%w: %s err:%w", ErrRegistryMalformed, l.opts.RepoListFile, err)
	}
	if list.Repositories == nil {
		return nil, fmt.Errorf("%w: %s: repositories section is missing", ErrRegistryMalformed, l.opts.RepoListFile)
	}

	repos := make(map[string]Repo, len(list.Repositories))
	for name, repo := range list.Repositories {
		if !ValidName(name) {
			l.log.Warn("skipping repository with invalid name", "group", group, "name", name)
			continue
		}
		if repo.URL == "" {
			l.log.Warn("skipping repository without url", "group", group, "name", name)
			continue
		}
		repo.Name = name
		repos[name] = repo
	}
	return repos, nil
}

// Load loads the register and then every group listed in it. Failure to load
// the register is returned as error, a failing group is logged and recorded
// in the result and remaining groups are still loaded.
func (l *Loader) Load(ctx context.Context, url string) (*Result, error) {
	groups, err := l.LoadRegister(ctx, url)
	if err != nil {
		return nil, err
	}

	result := &Result{Groups: groups}
	for _, group := range groups {
		// an interrupted load must not be mistaken for an empty group
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		log := l.log.With("group", group.String())
		repos, err := l.LoadGroupRepos(ctx, group)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			log.Error("unable to load group repo-list, skipping", "responsible", group.Responsible, "err", err)
			result.GroupFailures = append(result.GroupFailures, GroupFailure{Group: group, Err: err})
			continue
		}
		log.Debug("group loaded", "repositories", len(repos))
		result.Repos = append(result.Repos, GroupRepos{Group: group, Repos: repos})
	}
	return result, nil
}

// fetchFile clones url into new scratch dir and returns content of the file
// the working tree is removed before returning
func (l *Loader) fetchFile(ctx context.Context, url, file, pattern string) ([]byte, error) {
	dir, err := l.scratch.TempDir(pattern)
	if err != nil {
		return nil, fmt.Errorf("unable to create scratch dir err:%w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			l.log.Error("unable to remove registry working tree", "path", dir, "err", err)
		}
	}()

	// registries live on the internal network, never use proxy
	if err := l.client.CloneWorkingTree(ctx, url, dir, false); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegistryUnavailable, err)
	}

	data, err := os.ReadFile(filepath.Join(dir, file))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s not found in %s", ErrRegistryMalformed, file, url)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: unable to read %s err:%w", ErrRegistryMalformed, file, err)
	}
	return data, nil
}

// unmarshal parses JSON allowing comments and trailing commas
func unmarshal(data []byte, v any) error {
	return json.Unmarshal(jsonc.ToJSON(data), v)
}
