package vcs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/utilitywarehouse/git-mirrorer/giturl"
	"github.com/utilitywarehouse/git-mirrorer/internal/utils"
)

const loadCredsScript = `#!/bin/sh

case "$1" in
  Username*) echo "$REPO_USERNAME" ;;
  Password*) echo "$REPO_PASSWORD" ;;
esac
`

// Exec is a Client which runs git binary
type Exec struct {
	opts     Options
	cmd      string
	credsDir string
	tokens   *githubAppTokens
	log      *slog.Logger
}

// NewExec returns git binary backed client. it fails with ErrToolUnavailable
// if git binary cannot be found.
func NewExec(opts Options, log *slog.Logger) (*Exec, error) {
	if log == nil {
		log = slog.Default()
	}

	if err := opts.Auth.Validate(); err != nil {
		return nil, err
	}

	gitExec := opts.GitExec
	if gitExec == "" {
		gitExec = "git"
	}
	cmd, err := exec.LookPath(gitExec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrToolUnavailable, err)
	}

	return &Exec{
		opts:   opts,
		cmd:    cmd,
		tokens: newGithubAppTokens(opts),
		log:    log,
	}, nil
}

// CloneWorkingTree clones single branch of url into dst with working tree.
func (e *Exec) CloneWorkingTree(ctx context.Context, url, dst string, useProxy bool) error {
	args := append(e.proxyArgs(useProxy), "clone", "--quiet", "--single-branch", "--depth", "1", url, dst)
	// git [-c http.proxy=] clone --quiet --single-branch --depth 1 <url> <dst>
	return e.run(ctx, OpCloneWorkingTree, url, "", args...)
}

// CloneBare creates bare clone of the url at dst.
func (e *Exec) CloneBare(ctx context.Context, url, dst string) error {
	args := append(e.proxyArgs(true), "clone", "--bare", "--quiet", url, dst)
	// git [-c http.proxy=<proxy>] clone --bare --quiet <url> <dst>
	return e.run(ctx, OpCloneBare, url, "", args...)
}

// FetchAllPruned fetches all branches from url into the bare repository at dir.
func (e *Exec) FetchAllPruned(ctx context.Context, dir, url string) error {
	args := append(e.proxyArgs(true), "fetch", "--prune", "--no-progress", "--no-auto-gc", url, HeadsRefSpec)
	// git [-c http.proxy=<proxy>] fetch --prune --no-progress --no-auto-gc <url> +refs/heads/*:refs/heads/*
	return e.run(ctx, OpFetch, url, dir, args...)
}

// Close removes credential helper files created by the client
func (e *Exec) Close() error {
	if e.credsDir == "" {
		return nil
	}
	return os.RemoveAll(e.credsDir)
}

func (e *Exec) proxyArgs(useProxy bool) []string {
	// runCommand never passes parent's proxy envs so http.proxy
	// is the only way proxy is picked up by git
	if !useProxy || e.opts.Proxy == "" {
		return []string{"-c", "http.proxy="}
	}
	return []string{"-c", "http.proxy=" + e.opts.Proxy}
}

func (e *Exec) run(ctx context.Context, op, url, cwd string, args ...string) error {
	ctx, cancel := withTimeout(ctx, e.opts.Timeout)
	defer cancel()

	envs, err := e.authEnv(ctx, url)
	if err != nil {
		e.log.Error("unable to configure auth", "op", op, "remote", url, "err", err)
		return &Error{Op: op, URL: url, Err: err}
	}

	// never prompt for credentials, a prompt would block the run
	envs = append(envs, "GIT_TERMINAL_PROMPT=0")
	_, err = utils.RunCommand(ctx, e.log, append(envs, e.opts.Envs...), cwd, e.cmd, args...)
	if err == nil {
		return nil
	}

	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrToolUnavailable, err)
	}

	var cmdErr *utils.CommandError
	if errors.As(err, &cmdErr) {
		for _, line := range cmdErr.Output {
			e.log.Error(line, "op", op, "remote", url)
		}
	}
	e.log.Error("git command failed", "op", op, "remote", url, "err", err)
	return &Error{Op: op, URL: url, Err: err}
}

func (e *Exec) authEnv(ctx context.Context, remote string) ([]string, error) {
	if isSSHRemote(remote) {
		return []string{e.opts.Auth.gitSSHCommand()}, nil
	}

	// if url not https nothing to set
	if !giturl.IsHTTPSURL(remote) {
		return nil, nil
	}

	username, password, err := e.opts.Auth.credentials(ctx, e.tokens, remote)
	if err != nil || password == "" {
		return nil, err
	}

	credsLoader, err := e.ensureCredsLoader()
	if err != nil {
		return nil, fmt.Errorf("unable to write load creds script file err:%w", err)
	}

	return []string{
		fmt.Sprintf(`GIT_ASKPASS=%s`, credsLoader),
		fmt.Sprintf(`REPO_USERNAME=%s`, username),
		fmt.Sprintf(`REPO_PASSWORD=%s`, password),
	}, nil
}

func (e *Exec) ensureCredsLoader() (string, error) {
	if e.credsDir == "" {
		dir, err := os.MkdirTemp("", "git-mirrorer-creds-*")
		if err != nil {
			return "", err
		}
		e.credsDir = dir
	}

	credsLoader := filepath.Join(e.credsDir, "git-mirrorer-creds-loader.sh")

	_, err := os.Stat(credsLoader)
	switch {
	case os.IsNotExist(err):
		if err := os.WriteFile(credsLoader, []byte(loadCredsScript), 0750); err != nil {
			return "", err
		}
	case err != nil:
		return "", fmt.Errorf("unable to check if script file exits err:%w", err)
	}

	return credsLoader, nil
}
