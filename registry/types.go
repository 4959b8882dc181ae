package registry

import (
	"errors"
	"fmt"
	"regexp"
)

const (
	DefaultRegisterFile = "mirror-register.json"
	DefaultRepoListFile = "repo-list.json"
)

var (
	// ErrRegistryUnavailable is returned when a registry repository cannot be cloned
	ErrRegistryUnavailable = errors.New("registry unavailable")
	// ErrRegistryMalformed is returned when the registry file is missing or cannot be parsed
	ErrRegistryMalformed = errors.New("registry malformed")

	nameRgx = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
)

// Group is an entry of the register pointing at a group repo-list
type Group struct {
	URL         string `json:"url"`
	Prefix      string `json:"prefix"`
	Responsible string `json:"responsible"`
}

func (g Group) String() string {
	if g.Prefix == "" {
		return g.URL
	}
	return g.Prefix + "@" + g.URL
}

// Repo is a single repository declared in a group repo-list
type Repo struct {
	Name string `json:"-"`
	URL  string `json:"url"`
}

type repoList struct {
	Repositories map[string]Repo `json:"repositories"`
}

// GroupRepos holds the repositories declared by a group
type GroupRepos struct {
	Group Group
	Repos map[string]Repo
}

// GroupFailure records a group which could not be loaded
type GroupFailure struct {
	Group Group
	Err   error
}

// Result of loading the register and all of its groups
type Result struct {
	Groups        []Group
	Repos         []GroupRepos
	GroupFailures []GroupFailure
}

// Desired maps local mirror id to its source url
type Desired map[string]string

// Conflict is a mirror id declared with different urls
type Conflict struct {
	ID   string
	URLs []string
}

func (c Conflict) Error() string {
	return fmt.Sprintf("mirror id %q declared with different urls %v", c.ID, c.URLs)
}

// MirrorID returns local mirror id of the repository of the group
func MirrorID(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "-" + name
}

// ValidName reports whether name can be used as part of a directory name
func ValidName(name string) bool {
	return name != "." && name != ".." && nameRgx.MatchString(name)
}
