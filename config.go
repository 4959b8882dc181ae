package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/utilitywarehouse/git-mirrorer/registry"
	"github.com/utilitywarehouse/git-mirrorer/vcs"
)

const (
	envPrefix = "GIT_MIRRORER_"

	backendExec  = "exec"
	backendGoGit = "go-git"
)

var errConfigRequired = errors.New("configuration file path is required")

// Config is the configuration of a single mirror run. Every field can be
// overridden with GIT_MIRRORER_<NAME> environment variable.
type Config struct {
	// root dir of all bare mirrors, created if it doesn't exist
	DestRoot string `yaml:"dest_root" env:"DEST_ROOT,overwrite"`
	// url of the register repository
	RegisterURL string `yaml:"register_url" env:"REGISTER_URL,overwrite"`

	LogLevel string `yaml:"log_level" env:"LOG_LEVEL,overwrite"`
	// Deprecated: use log_level. Any truthy value means debug.
	LegacyLogLevel truthy `yaml:"loglevel"`
	// proxy used for mirrored repositories, registry repositories are
	// always cloned without proxy
	Proxy string `yaml:"proxy" env:"PROXY,overwrite"`

	RegisterFile string `yaml:"register_file" env:"REGISTER_FILE,overwrite"`
	RepoListFile string `yaml:"repo_list_file" env:"REPO_LIST_FILE,overwrite"`

	// exec or go-git
	VCSBackend string        `yaml:"vcs_backend" env:"VCS_BACKEND,overwrite"`
	VCSTimeout time.Duration `yaml:"vcs_timeout" env:"VCS_TIMEOUT,overwrite"`

	// doublestar patterns of mirror ids which are never touched
	Exclude []string `yaml:"exclude" env:"EXCLUDE,overwrite"`

	// path of prometheus textfile written after every run
	MetricsFile string `yaml:"metrics_file" env:"METRICS_FILE,overwrite"`

	Auth vcs.Auth `yaml:"auth"`
}

// truthy is a loosely typed flag, set for any value other than false, zero,
// empty string, empty list or null
type truthy bool

func (t *truthy) UnmarshalYAML(value *yaml.Node) error {
	var v interface{}
	if err := value.Decode(&v); err != nil {
		return err
	}
	switch v := v.(type) {
	case nil:
		*t = false
	case bool:
		*t = truthy(v)
	case int:
		*t = v != 0
	case float64:
		*t = v != 0
	case string:
		*t = v != ""
	case []interface{}:
		*t = len(v) > 0
	case map[string]interface{}:
		*t = len(v) > 0
	default:
		*t = true
	}
	return nil
}

// ConfigError is returned for missing or invalid configuration
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid configuration: %v", e.Err)
	}
	return fmt.Sprintf("invalid configuration: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// loadConfig reads config file at path, applies env overrides and defaults
// and validates result
func loadConfig(ctx context.Context, path string, lookuper envconfig.Lookuper) (*Config, error) {
	if path == "" {
		return nil, &ConfigError{Field: "configuration", Err: errConfigRequired}
	}

	conf, err := parseConfigFile(path)
	if err != nil {
		return nil, err
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   conf,
		Lookuper: envconfig.PrefixLookuper(envPrefix, lookuper),
	}); err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("unable to apply environment overrides err:%w", err)}
	}

	if err := conf.applyDefaults(); err != nil {
		return nil, err
	}
	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func parseConfigFile(path string) (*Config, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Field: "configuration", Err: err}
	}

	if err := validateConfig(yamlFile); err != nil {
		return nil, &ConfigError{Err: err}
	}

	conf := &Config{}
	if err := yaml.Unmarshal(yamlFile, conf); err != nil {
		return nil, &ConfigError{Err: err}
	}

	return conf, nil
}

func validateConfig(yamlData []byte) error {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(yamlData, &raw); err != nil {
		return err
	}

	// check config for unexpected keys
	if key := findUnexpectedKey(raw, getAllowedKeys(Config{})); key != "" {
		return fmt.Errorf("unexpected key: .%v", key)
	}

	// check "auth" section
	if authMap, ok := raw["auth"].(map[string]interface{}); ok {
		if key := findUnexpectedKey(authMap, getAllowedKeys(vcs.Auth{})); key != "" {
			return fmt.Errorf("unexpected key: .auth.%v", key)
		}
	}

	return nil
}

// getAllowedKeys retrieves a list of allowed keys from the specified struct
func getAllowedKeys(config interface{}) []string {
	var allowedKeys []string
	val := reflect.ValueOf(config)
	typ := reflect.TypeOf(config)

	for i := 0; i < val.NumField(); i++ {
		field := typ.Field(i)
		yamlTag := field.Tag.Get("yaml")
		if yamlTag != "" {
			allowedKeys = append(allowedKeys, yamlTag)
		}
	}
	return allowedKeys
}

func findUnexpectedKey(raw map[string]interface{}, allowedKeys []string) string {
	for key := range raw {
		if !slices.Contains(allowedKeys, key) {
			return key
		}
	}

	return ""
}

func (c *Config) applyDefaults() error {
	if c.RegisterFile == "" {
		c.RegisterFile = registry.DefaultRegisterFile
	}
	if c.RepoListFile == "" {
		c.RepoListFile = registry.DefaultRepoListFile
	}
	if c.VCSBackend == "" {
		c.VCSBackend = backendExec
	}
	if c.LogLevel == "" && c.LegacyLogLevel {
		c.LogLevel = "debug"
	}

	// process cwd is changed during the run so all paths must be absolute
	var err error
	if c.DestRoot != "" {
		if c.DestRoot, err = filepath.Abs(c.DestRoot); err != nil {
			return &ConfigError{Field: "dest_root", Err: err}
		}
	}
	if c.MetricsFile != "" {
		if c.MetricsFile, err = filepath.Abs(c.MetricsFile); err != nil {
			return &ConfigError{Field: "metrics_file", Err: err}
		}
	}
	return nil
}

func (c *Config) validate() error {
	if c.DestRoot == "" {
		return &ConfigError{Field: "dest_root", Err: errors.New("required field is missing")}
	}
	if c.RegisterURL == "" {
		return &ConfigError{Field: "register_url", Err: errors.New("required field is missing")}
	}
	if c.LogLevel != "" {
		if _, ok := levelStrings[strings.ToLower(c.LogLevel)]; !ok {
			return &ConfigError{Field: "log_level", Err: fmt.Errorf("unknown level %q", c.LogLevel)}
		}
	}
	if c.VCSBackend != backendExec && c.VCSBackend != backendGoGit {
		return &ConfigError{Field: "vcs_backend", Err: fmt.Errorf("must be %q or %q got %q", backendExec, backendGoGit, c.VCSBackend)}
	}
	if c.VCSTimeout < 0 {
		return &ConfigError{Field: "vcs_timeout", Err: errors.New("must not be negative")}
	}
	for _, f := range []struct{ name, value string }{
		{"register_file", c.RegisterFile},
		{"repo_list_file", c.RepoListFile},
	} {
		if !filepath.IsLocal(f.value) {
			return &ConfigError{Field: f.name, Err: fmt.Errorf("%q must be a path inside the repository", f.value)}
		}
	}
	for _, p := range c.Exclude {
		if !doublestar.ValidatePattern(p) {
			return &ConfigError{Field: "exclude", Err: fmt.Errorf("invalid pattern %q", p)}
		}
	}
	if err := c.Auth.Validate(); err != nil {
		return &ConfigError{Field: "auth", Err: err}
	}
	return nil
}
