package vcs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/utilitywarehouse/git-mirrorer/giturl"
)

// Auth represents authentication config used for all remotes
type Auth struct {
	// username to use for basic or token based authentication
	Username string `yaml:"username" env:"AUTH_USERNAME,overwrite"`

	// password or personal access token to use for authentication
	Password string `yaml:"password" env:"AUTH_PASSWORD,overwrite"`

	// SSH Details
	// path to the ssh key used to fetch remote
	SSHKeyPath string `yaml:"ssh_key_path" env:"AUTH_SSH_KEY_PATH,overwrite"`

	// path to the known hosts of the remote host
	SSHKnownHostsPath string `yaml:"ssh_known_hosts_path" env:"AUTH_SSH_KNOWN_HOSTS_PATH,overwrite"`

	// Github APP Details
	// The application id or the client ID of the Github app
	GithubAppID string `yaml:"github_app_id" env:"AUTH_GITHUB_APP_ID,overwrite"`
	// The installation id of the app (in the organization).
	GithubAppInstallationID string `yaml:"github_app_installation_id" env:"AUTH_GITHUB_APP_INSTALLATION_ID,overwrite"`
	// path to the github app private key
	GithubAppPrivateKeyPath string `yaml:"github_app_private_key_path" env:"AUTH_GITHUB_APP_PRIVATE_KEY_PATH,overwrite"`
}

// Validate verifies auth config
func (a Auth) Validate() error {
	// if any of the github app config is set all should be set
	if a.GithubAppID != "" ||
		a.GithubAppInstallationID != "" ||
		a.GithubAppPrivateKeyPath != "" {
		if a.GithubAppID == "" ||
			a.GithubAppInstallationID == "" ||
			a.GithubAppPrivateKeyPath == "" {
			return errors.New("all of the Github app attribute is required")
		}
	}
	if a.SSHKnownHostsPath != "" && a.SSHKeyPath == "" {
		return errors.New("ssh_known_hosts_path requires ssh_key_path")
	}
	return nil
}

func (a Auth) githubApp() bool {
	return a.GithubAppInstallationID != ""
}

// credentials returns username and password for the https remote if configured
func (a Auth) credentials(ctx context.Context, tokens *githubAppTokens, remote string) (string, string, error) {
	switch {
	// if username & password is set use that
	case a.Username != "" && a.Password != "":
		return a.Username, a.Password, nil

	// if only password (token) is set use that
	case a.Password != "":
		return "-", a.Password, nil // username is required

	// if github app config is set use that token
	case a.githubApp():
		gURL, err := giturl.Parse(remote)
		if err != nil {
			return "", "", err
		}
		if gURL.Host != "github.com" {
			return "", "", nil
		}
		// github matches repo name without `.git` for permission for token req
		token, err := tokens.token(ctx, strings.TrimSuffix(gURL.Repo, ".git"))
		if err != nil {
			return "", "", fmt.Errorf("unable to get github app token err:%w", err)
		}
		return "-", token, nil
	}

	return "", "", nil
}

// gitSSHCommand returns the environment variable to be used for configuring
// git over ssh.
func (a Auth) gitSSHCommand() string {
	sshKeyPath := a.SSHKeyPath
	if sshKeyPath == "" {
		sshKeyPath = "/dev/null"
	}
	knownHostsOptions := "-o UserKnownHostsFile=/dev/null -o StrictHostKeyChecking=no"
	if a.SSHKeyPath != "" && a.SSHKnownHostsPath != "" {
		knownHostsOptions = fmt.Sprintf("-o UserKnownHostsFile=%s", a.SSHKnownHostsPath)
	}
	return fmt.Sprintf(`GIT_SSH_COMMAND=ssh -q -F none -o IdentitiesOnly=yes -o IdentityFile=%s %s`, sshKeyPath, knownHostsOptions)
}

func isSSHRemote(remote string) bool {
	return giturl.IsSCPURL(remote) || giturl.IsSSHURL(remote)
}
