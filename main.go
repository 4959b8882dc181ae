package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sethvargo/go-envconfig"
	"github.com/urfave/cli/v3"

	"github.com/utilitywarehouse/git-mirrorer/internal/utils"
	"github.com/utilitywarehouse/git-mirrorer/mirror"
	"github.com/utilitywarehouse/git-mirrorer/vcs"
)

const (
	metricsNamespace  = "git_mirrorer"
	configRequiredMsg = "Configuration required, please specify a valid file path, exiting now"
)

var (
	loggerLevel = new(slog.LevelVar)
	logger      *slog.Logger

	levelStrings = map[string]slog.Level{
		"trace": utils.LevelTrace,
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}

	flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "configuration",
			Aliases: []string{"f", "config"},
			Sources: cli.EnvVars("GIT_MIRRORER_CONFIG"),
			Usage:   "Path to the configuration file.",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable debug logging.",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Sources: cli.EnvVars("LOG_LEVEL"),
			Usage:   "Log level (trace, debug, info, warn, error), overrides verbose and config.",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "Load registry and print planned actions without changing anything.",
		},
	}
)

func init() {
	loggerLevel.Set(slog.LevelInfo)
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: loggerLevel,
	}))
}

// setLogLevel applies level from the first source which sets it
// --log-level, --verbose, config log_level
func setLogLevel(c *cli.Command, conf *Config) {
	switch {
	case c.IsSet("log-level"):
		if v, ok := levelStrings[strings.ToLower(c.String("log-level"))]; ok {
			loggerLevel.Set(v)
			return
		}
		logger.Warn("unknown log level, ignoring", "level", c.String("log-level"))
	case c.Bool("verbose"):
		loggerLevel.Set(slog.LevelDebug)
	case conf.LogLevel != "":
		loggerLevel.Set(levelStrings[strings.ToLower(conf.LogLevel)])
	}
}

func newVCSClient(conf *Config, log *slog.Logger) (vcs.Client, func() error, error) {
	opts := vcs.Options{
		// path to resolve git helpers eg. ssh
		Envs:    []string{fmt.Sprintf("PATH=%s", os.Getenv("PATH"))},
		Proxy:   conf.Proxy,
		Timeout: conf.VCSTimeout,
		Auth:    conf.Auth,
	}

	if conf.VCSBackend == backendGoGit {
		client, err := vcs.NewGoGit(opts, log)
		return client, func() error { return nil }, err
	}

	client, err := vcs.NewExec(opts, log)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

func main() {
	cmd := &cli.Command{
		Name:  "git-mirrorer",
		Usage: "git-mirrorer mirrors repositories declared in a remote registry as local bare repositories.",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			path := c.String("configuration")
			if path == "" {
				fmt.Println(configRequiredMsg)
				os.Exit(1)
			}

			conf, err := loadConfig(ctx, path, envconfig.OsLookuper())
			if err != nil {
				logger.Error("unable to load configuration", "err", err)
				os.Exit(1)
			}

			setLogLevel(c, conf)

			client, closeClient, err := newVCSClient(conf, logger.With("logger", "vcs"))
			if err != nil {
				logger.Error("unable to create vcs client", "backend", conf.VCSBackend, "err", err)
				os.Exit(1)
			}
			defer closeClient()

			var reg *prometheus.Registry
			if conf.MetricsFile != "" {
				reg = prometheus.NewRegistry()
				mirror.EnableMetrics(metricsNamespace, reg)
			}

			report, err := runMirrorer(ctx, conf, client, c.Bool("dry-run"), logger.With("logger", "git-mirrorer"))
			if err != nil {
				return err
			}

			mirror.RecordRun(report)
			printSummary(os.Stdout, report)

			if reg != nil && !report.DryRun {
				if err := prometheus.WriteToTextfile(conf.MetricsFile, reg); err != nil {
					logger.Error("unable to write metrics file", "path", conf.MetricsFile, "err", err)
				}
			}

			if report.Interrupted {
				return errors.New("run interrupted")
			}
			return nil
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		logger.Error("failed to run git-mirrorer", "err", err)
		stop()
		os.Exit(1)
	}
}
