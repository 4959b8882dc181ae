package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sethvargo/go-envconfig"

	"github.com/utilitywarehouse/git-mirrorer/vcs"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("yaml", func(t *testing.T) {
		path := writeConfig(t, `
dest_root: /srv/mirrors
register_url: https://git.internal/mirrors/register.git
log_level: debug
proxy: http://proxy:3128
vcs_backend: go-git
vcs_timeout: 5m
exclude:
  - archive-*
metrics_file: /var/lib/node-exporter/git-mirrorer.prom
auth:
  ssh_key_path: /etc/git-secret/ssh
  ssh_known_hosts_path: /etc/git-secret/known_hosts
`)
		got, err := loadConfig(ctx, path, envconfig.MapLookuper(nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := &Config{
			DestRoot:     "/srv/mirrors",
			RegisterURL:  "https://git.internal/mirrors/register.git",
			LogLevel:     "debug",
			Proxy:        "http://proxy:3128",
			RegisterFile: "mirror-register.json",
			RepoListFile: "repo-list.json",
			VCSBackend:   "go-git",
			VCSTimeout:   5 * time.Minute,
			Exclude:      []string{"archive-*"},
			MetricsFile:  "/var/lib/node-exporter/git-mirrorer.prom",
			Auth:         vcs.Auth{SSHKeyPath: "/etc/git-secret/ssh", SSHKnownHostsPath: "/etc/git-secret/known_hosts"},
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("loadConfig() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("json", func(t *testing.T) {
		path := writeConfig(t, `{"dest_root": "mirrors", "register_url": "git://register"}`)
		got, err := loadConfig(ctx, path, envconfig.MapLookuper(nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		cwd, _ := os.Getwd()
		if got.DestRoot != filepath.Join(cwd, "mirrors") {
			t.Errorf("expected absolute dest_root got %s", got.DestRoot)
		}
		if got.VCSBackend != backendExec {
			t.Errorf("expected default backend got %s", got.VCSBackend)
		}
	})

	t.Run("env_overrides", func(t *testing.T) {
		path := writeConfig(t, `
dest_root: /srv/mirrors
register_url: https://git.internal/mirrors/register.git
`)
		got, err := loadConfig(ctx, path, envconfig.MapLookuper(map[string]string{
			"GIT_MIRRORER_REGISTER_URL":  "https://git.internal/other/register.git",
			"GIT_MIRRORER_EXCLUDE":       "a-*,b-*",
			"GIT_MIRRORER_VCS_TIMEOUT":   "30s",
			"GIT_MIRRORER_AUTH_PASSWORD": "token",
			"REGISTER_URL":               "ignored-without-prefix",
		}))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.RegisterURL != "https://git.internal/other/register.git" {
			t.Errorf("register_url not overridden got %s", got.RegisterURL)
		}
		if diff := cmp.Diff([]string{"a-*", "b-*"}, got.Exclude); diff != "" {
			t.Errorf("exclude mismatch (-want +got):\n%s", diff)
		}
		if got.VCSTimeout != 30*time.Second {
			t.Errorf("vcs_timeout got %s", got.VCSTimeout)
		}
		if got.Auth.Password != "token" {
			t.Errorf("auth password not overridden")
		}
		if got.DestRoot != "/srv/mirrors" {
			t.Errorf("dest_root changed got %s", got.DestRoot)
		}
	})
}

func TestLoadConfig_legacyLogLevel(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bool", `{"dest_root": "/a", "register_url": "git://r", "loglevel": true}`, "debug"},
		{"int", `{"dest_root": "/a", "register_url": "git://r", "loglevel": 1}`, "debug"},
		{"string", `{"dest_root": "/a", "register_url": "git://r", "loglevel": "DEBUG"}`, "debug"},
		{"false", `{"dest_root": "/a", "register_url": "git://r", "loglevel": false}`, ""},
		{"zero", `{"dest_root": "/a", "register_url": "git://r", "loglevel": 0}`, ""},
		{"empty_string", `{"dest_root": "/a", "register_url": "git://r", "loglevel": ""}`, ""},
		{"log_level_wins", `{"dest_root": "/a", "register_url": "git://r", "loglevel": true, "log_level": "warn"}`, "warn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := loadConfig(context.Background(), writeConfig(t, tt.content), envconfig.MapLookuper(nil))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.LogLevel != tt.want {
				t.Errorf("LogLevel = %q, want %q", got.LogLevel, tt.want)
			}
		})
	}
}

func TestLoadConfig_errors(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		env       map[string]string
		wantField string
	}{
		{"unknown_key", "dest_root: /a\nregister_url: git://r\nverbosity: true\n", nil, ""},
		{"unknown_auth_key", "dest_root: /a\nregister_url: git://r\nauth:\n  token: x\n", nil, ""},
		{"missing_register_url", "dest_root: /a\n", nil, "register_url"},
		{"missing_dest_root", "register_url: git://r\n", nil, "dest_root"},
		{"register_url_from_env", "dest_root: /a\n", map[string]string{"GIT_MIRRORER_REGISTER_URL": "git://r"}, "-"},
		{"bad_log_level", "dest_root: /a\nregister_url: git://r\nlog_level: loud\n", nil, "log_level"},
		{"bad_backend", "dest_root: /a\nregister_url: git://r\nvcs_backend: svn\n", nil, "vcs_backend"},
		{"negative_timeout", "dest_root: /a\nregister_url: git://r\nvcs_timeout: -1s\n", nil, "vcs_timeout"},
		{"bad_exclude", "dest_root: /a\nregister_url: git://r\nexclude: ['[a-']\n", nil, "exclude"},
		{"escaping_file", "dest_root: /a\nregister_url: git://r\nrepo_list_file: ../list.json\n", nil, "repo_list_file"},
		{"partial_github_app", "dest_root: /a\nregister_url: git://r\nauth:\n  github_app_id: '1'\n", nil, "auth"},
		{"not_yaml", "dest_root: [", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(context.Background(), writeConfig(t, tt.content), envconfig.MapLookuper(tt.env))
			if tt.wantField == "-" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var confErr *ConfigError
			if !errors.As(err, &confErr) {
				t.Fatalf("expected ConfigError got %v", err)
			}
			if confErr.Field != tt.wantField {
				t.Errorf("ConfigError.Field = %q, want %q (err:%v)", confErr.Field, tt.wantField, err)
			}
		})
	}
}

func TestLoadConfig_missingPath(t *testing.T) {
	_, err := loadConfig(context.Background(), "", envconfig.MapLookuper(nil))
	if !errors.Is(err, errConfigRequired) {
		t.Errorf("expected errConfigRequired got %v", err)
	}

	_, err = loadConfig(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"), envconfig.MapLookuper(nil))
	var confErr *ConfigError
	if !errors.As(err, &confErr) || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ConfigError wrapping ErrNotExist got %v", err)
	}
}

func Test_validateConfig(t *testing.T) {
	if err := validateConfig([]byte("dest_root: /a\nauth:\n  username: u\n  password: p\n")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err := validateConfig([]byte("dest_root: /a\nauth:\n  user: u\n"))
	if err == nil || err.Error() != "unexpected key: .auth.user" {
		t.Errorf("unexpected error: %v", err)
	}
}
