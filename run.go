package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/utilitywarehouse/git-mirrorer/mirror"
	"github.com/utilitywarehouse/git-mirrorer/registry"
	"github.com/utilitywarehouse/git-mirrorer/vcs"
	"github.com/utilitywarehouse/git-mirrorer/workspace"
)

// runMirrorer performs a single reconciliation pass. Returned error means
// desired state could not be built and nothing was changed.
func runMirrorer(ctx context.Context, conf *Config, client vcs.Client, dryRun bool, log *slog.Logger) (*mirror.Report, error) {
	if err := os.MkdirAll(conf.DestRoot, 0755); err != nil {
		return nil, fmt.Errorf("%w: %w", mirror.ErrDestUnavailable, err)
	}

	var report *mirror.Report

	err := workspace.Run(ctx, log, func(ctx context.Context, ws *workspace.Workspace) error {
		loader := registry.NewLoader(client, ws, registry.Options{
			RegisterFile: conf.RegisterFile,
			RepoListFile: conf.RepoListFile,
		}, log.With("component", "registry"))

		result, err := loader.Load(ctx, conf.RegisterURL)
		if err != nil {
			return fmt.Errorf("unable to load register err:%w", err)
		}

		desired, conflicts := registry.Merge(result.Repos, log)
		log.Info("registry loaded", "groups", len(result.Groups), "failed-groups", len(result.GroupFailures),
			"mirrors", len(desired), "conflicts", len(conflicts))

		snapshot, err := mirror.TakeSnapshot(conf.DestRoot)
		if err != nil {
			return err
		}

		engine := mirror.NewEngine(client, mirror.Options{Exclude: conf.Exclude}, log.With("component", "engine"))
		plan := engine.Plan(conf.DestRoot, desired, snapshot, protectPatterns(result.GroupFailures, conflicts))

		if dryRun {
			for _, step := range plan.Steps {
				log.Info("planned", "action", step.Action, "mirror", step.ID, "remote", step.URL, "path", step.Path)
			}
			report = plan.DryRunReport()
		} else {
			report = engine.Apply(ctx, plan)
		}

		for _, gf := range result.GroupFailures {
			report.RecordFailure(mirror.Failure{
				ID: gf.Group.String(), URL: gf.Group.URL, Action: mirror.ActionLoadGroup, Err: gf.Err,
			})
		}
		for _, c := range conflicts {
			report.RecordFailure(mirror.Failure{
				ID: c.ID, URL: strings.Join(c.URLs, ", "), Action: mirror.ActionConflict, Err: c,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("run completed", "cloned", len(report.Cloned), "updated", len(report.Updated),
		"deleted", len(report.Deleted), "failed", report.Failed(), "dry-run", report.DryRun,
		"interrupted", report.Interrupted)
	return report, nil
}

// protectPatterns returns patterns of mirror ids which must survive pruning
// because their declaration could not be read or is ambiguous
func protectPatterns(failures []registry.GroupFailure, conflicts []registry.Conflict) []string {
	var patterns []string
	for _, f := range failures {
		if f.Group.Prefix == "" {
			// any directory could belong to the group
			return []string{"*"}
		}
		patterns = append(patterns, registry.MirrorID(f.Group.Prefix, "*"))
	}
	for _, c := range conflicts {
		patterns = append(patterns, c.ID)
	}
	return patterns
}
