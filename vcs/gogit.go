package vcs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/transport"
	gitclient "github.com/go-git/go-git/v5/plumbing/transport/client"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	gossh "golang.org/x/crypto/ssh"

	"github.com/utilitywarehouse/git-mirrorer/giturl"
)

// GoGit is a Client which performs git operations in process using go-git.
// It doesn't need git binary to be installed.
type GoGit struct {
	opts   Options
	tokens *githubAppTokens
	log    *slog.Logger
}

var installHTTPOnce sync.Once

// installHTTPTransport replaces go-git's default http(s) transport with one
// that never reads proxy from the environment. Proxy is only ever set per
// call via ProxyOptions so both backends use the same proxy source.
func installHTTPTransport() {
	installHTTPOnce.Do(func() {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.Proxy = nil
		c := githttp.NewClient(&http.Client{Transport: tr})
		gitclient.InstallProtocol("http", c)
		gitclient.InstallProtocol("https", c)
	})
}

// NewGoGit returns go-git backed client
func NewGoGit(opts Options, log *slog.Logger) (*GoGit, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := opts.Auth.Validate(); err != nil {
		return nil, err
	}
	installHTTPTransport()
	return &GoGit{opts: opts, tokens: newGithubAppTokens(opts), log: log}, nil
}

// CloneWorkingTree clones single branch of url into dst with working tree.
func (g *GoGit) CloneWorkingTree(ctx context.Context, url, dst string, useProxy bool) error {
	ctx, cancel := withTimeout(ctx, g.opts.Timeout)
	defer cancel()

	auth, err := g.authMethod(ctx, url)
	if err != nil {
		return g.fail(OpCloneWorkingTree, url, err)
	}

	_, err = git.PlainCloneContext(ctx, dst, false, &git.CloneOptions{
		URL:          url,
		Auth:         auth,
		SingleBranch: true,
		ProxyOptions: g.proxyOptions(useProxy),
	})
	if err != nil {
		return g.fail(OpCloneWorkingTree, url, err)
	}
	return nil
}

// CloneBare creates bare clone of the url at dst.
func (g *GoGit) CloneBare(ctx context.Context, url, dst string) error {
	ctx, cancel := withTimeout(ctx, g.opts.Timeout)
	defer cancel()

	auth, err := g.authMethod(ctx, url)
	if err != nil {
		return g.fail(OpCloneBare, url, err)
	}

	// mirror maps all refs of the remote to the same refs locally
	_, err = git.PlainCloneContext(ctx, dst, true, &git.CloneOptions{
		URL:          url,
		Auth:         auth,
		Mirror:       true,
		ProxyOptions: g.proxyOptions(true),
	})
	if err != nil {
		return g.fail(OpCloneBare, url, err)
	}
	return nil
}

// FetchAllPruned fetches all branches from url into the bare repository at dir.
func (g *GoGit) FetchAllPruned(ctx context.Context, dir, url string) error {
	ctx, cancel := withTimeout(ctx, g.opts.Timeout)
	defer cancel()

	repo, err := git.PlainOpen(dir)
	if err != nil {
		return g.fail(OpFetch, url, fmt.Errorf("opening repo: %w", err))
	}

	auth, err := g.authMethod(ctx, url)
	if err != nil {
		return g.fail(OpFetch, url, err)
	}

	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteURL:    url,
		RefSpecs:     []gitconfig.RefSpec{gitconfig.RefSpec(HeadsRefSpec)},
		Auth:         auth,
		Prune:        true,
		Force:        true,
		ProxyOptions: g.proxyOptions(true),
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return g.fail(OpFetch, url, err)
	}
	return nil
}

func (g *GoGit) fail(op, url string, err error) error {
	g.log.Error("git operation failed", "op", op, "remote", url, "err", err)
	return &Error{Op: op, URL: url, Err: err}
}

// proxyOptions returns empty options when proxy is not wanted or not
// configured, in which case the installed transport connects directly
func (g *GoGit) proxyOptions(useProxy bool) transport.ProxyOptions {
	if !useProxy || g.opts.Proxy == "" {
		return transport.ProxyOptions{}
	}
	return transport.ProxyOptions{URL: g.opts.Proxy}
}

func (g *GoGit) authMethod(ctx context.Context, remote string) (transport.AuthMethod, error) {
	if isSSHRemote(remote) {
		if g.opts.Auth.SSHKeyPath == "" {
			return nil, nil
		}
		user := "git"
		if gURL, err := giturl.Parse(remote); err == nil && gURL.User != "" {
			user = gURL.User
		}
		keys, err := gitssh.NewPublicKeysFromFile(user, g.opts.Auth.SSHKeyPath, "")
		if err != nil {
			return nil, fmt.Errorf("loading ssh key: %w", err)
		}
		if g.opts.Auth.SSHKnownHostsPath != "" {
			callback, err := gitssh.NewKnownHostsCallback(g.opts.Auth.SSHKnownHostsPath)
			if err != nil {
				return nil, fmt.Errorf("loading known hosts: %w", err)
			}
			keys.HostKeyCallback = callback
		} else {
			keys.HostKeyCallback = gossh.InsecureIgnoreHostKey()
		}
		return keys, nil
	}

	if !giturl.IsHTTPSURL(remote) {
		return nil, nil
	}

	username, password, err := g.opts.Auth.credentials(ctx, g.tokens, remote)
	if err != nil || password == "" {
		return nil, err
	}
	return &githttp.BasicAuth{Username: username, Password: password}, nil
}
