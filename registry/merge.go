package registry

import (
	"log/slog"
	"slices"
	"sort"

	"github.com/utilitywarehouse/git-mirrorer/giturl"
)

// Merge builds the desired state from the repositories of all groups.
//
// An id declared more than once with the same remote is kept once. An id
// declared with different remotes is dropped from the desired state and
// returned as Conflict, none of the declarations wins.
func Merge(groups []GroupRepos, log *slog.Logger) (Desired, []Conflict) {
	if log == nil {
		log = slog.Default()
	}

	declared := make(map[string][]string)
	var order []string
	for _, g := range groups {
		names := make([]string, 0, len(g.Repos))
		for name := range g.Repos {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			id := MirrorID(g.Group.Prefix, name)
			if _, ok := declared[id]; !ok {
				order = append(order, id)
			}
			declared[id] = append(declared[id], g.Repos[name].URL)
		}
	}

	desired := make(Desired, len(declared))
	var conflicts []Conflict
	for _, id := range order {
		urls := uniqueRemotes(declared[id])
		if len(urls) > 1 {
			log.Error("mirror id declared with different urls, skipping", "mirror", id, "urls", urls)
			conflicts = append(conflicts, Conflict{ID: id, URLs: urls})
			continue
		}
		if len(declared[id]) > 1 {
			log.Debug("duplicate declaration of mirror id", "mirror", id, "url", urls[0])
		}
		desired[id] = urls[0]
	}
	return desired, conflicts
}

// uniqueRemotes returns urls in order with equivalent remotes removed
func uniqueRemotes(urls []string) []string {
	var unique []string
	for _, u := range urls {
		if !slices.ContainsFunc(unique, func(e string) bool { return giturl.SameRemote(e, u) }) {
			unique = append(unique, u)
		}
	}
	return unique
}
