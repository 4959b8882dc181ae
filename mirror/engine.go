package mirror

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/utilitywarehouse/git-mirrorer/internal/utils"
	"github.com/utilitywarehouse/git-mirrorer/vcs"
)

const (
	mirrorSuffix    = ".git"
	descriptionFile = "description"
)

// Options configures the Engine
type Options struct {
	// Exclude is a list of doublestar patterns matched against mirror ids.
	// Matching mirrors are never cloned, updated or deleted.
	Exclude []string
}

// Step is a single planned action on a mirror
type Step struct {
	Action Action
	ID     string
	URL    string
	Path   string
}

// Plan is the ordered list of steps converging destination root to the
// desired state. All clone and update steps come before delete steps.
type Plan struct {
	DestRoot  string
	Steps     []Step
	Skipped   []string
	Protected []string
}

// Engine applies plans using vcs client
type Engine struct {
	client vcs.Client
	opts   Options
	log    *slog.Logger
}

// NewEngine returns new Engine
func NewEngine(client vcs.Client, opts Options, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{client: client, opts: opts, log: log}
}

// MirrorDir returns directory name of the mirror id
func MirrorDir(id string) string {
	return id + mirrorSuffix
}

// Reconcile plans and applies all actions needed to converge destRoot to desired
func (e *Engine) Reconcile(ctx context.Context, destRoot string, desired map[string]string, observed Snapshot) *Report {
	return e.Apply(ctx, e.Plan(destRoot, desired, observed, nil))
}

// Plan compares desired mapping of mirror id to url with observed snapshot.
// Directories matching any of the protect patterns are never deleted.
func (e *Engine) Plan(destRoot string, desired map[string]string, observed Snapshot, protect []string) *Plan {
	plan := &Plan{DestRoot: destRoot}

	ids := make([]string, 0, len(desired))
	for id := range desired {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		dir := MirrorDir(id)
		if e.excluded(id) {
			plan.Skipped = append(plan.Skipped, id)
			keep[dir] = true
			continue
		}

		step := Step{ID: id, URL: desired[id], Path: filepath.Join(destRoot, dir), Action: ActionClone}
		if observed.Has(dir) {
			keep[dir] = true
			step.Action = ActionUpdate
			if !looksBare(step.Path) {
				step.Action = ActionReclone
			}
		}
		plan.Steps = append(plan.Steps, step)
	}

	for _, dir := range observed.Dirs() {
		if keep[dir] {
			continue
		}
		id := strings.TrimSuffix(dir, mirrorSuffix)
		switch {
		case e.excluded(id):
			plan.Skipped = append(plan.Skipped, id)
		case matchAny(e.log, protect, id):
			plan.Protected = append(plan.Protected, dir)
		default:
			plan.Steps = append(plan.Steps, Step{Action: ActionDelete, ID: id, Path: filepath.Join(destRoot, dir)})
		}
	}

	return plan
}

// Apply executes the steps of the plan in order. A failing step is recorded in
// the report and never stops the run. If ctx is cancelled remaining steps
// are not applied and report is marked as interrupted.
func (e *Engine) Apply(ctx context.Context, plan *Plan) *Report {
	start := time.Now()
	report := &Report{
		DestRoot:  plan.DestRoot,
		Skipped:   plan.Skipped,
		Protected: plan.Protected,
	}

	for _, step := range plan.Steps {
		if ctx.Err() != nil {
			e.log.Warn("run interrupted, remaining actions are skipped", "err", ctx.Err())
			report.Interrupted = true
			break
		}

		switch step.Action {
		case ActionClone:
			e.clone(ctx, step, report)
		case ActionUpdate:
			e.update(ctx, step, report)
		case ActionReclone:
			e.reclone(ctx, step, report)
		case ActionDelete:
			e.delete(step, report)
		}
	}

	report.Duration = time.Since(start)
	return report
}

// DryRunReport returns the report the plan would produce if all steps succeed
func (p *Plan) DryRunReport() *Report {
	report := &Report{DestRoot: p.DestRoot, DryRun: true, Skipped: p.Skipped, Protected: p.Protected}
	for _, step := range p.Steps {
		switch step.Action {
		case ActionClone, ActionReclone:
			report.Cloned = append(report.Cloned, step.ID)
		case ActionUpdate:
			report.Updated = append(report.Updated, step.ID)
		case ActionDelete:
			report.Deleted = append(report.Deleted, step.ID)
		}
	}
	return report
}

func (e *Engine) clone(ctx context.Context, step Step, report *Report) {
	log := e.log.With("mirror", step.ID)

	if err := e.cloneBare(ctx, log, step); err != nil {
		report.RecordFailure(Failure{ID: step.ID, URL: step.URL, Action: step.Action, Err: err})
		return
	}
	log.Info("mirror cloned", "remote", step.URL)
	report.Cloned = append(report.Cloned, step.ID)
}

func (e *Engine) cloneBare(ctx context.Context, log *slog.Logger, step Step) (err error) {
	start := time.Now()
	defer func() {
		recordAction(step.Action, err == nil)
		updateActionLatency(step.Action, start)
	}()

	// never clone over something which was not in the snapshot,
	// an empty directory is fine as git clones into it
	if _, err := os.Lstat(step.Path); err == nil {
		empty, err := utils.DirIsEmpty(step.Path)
		if err != nil || !empty {
			return fmt.Errorf("target %s already exists", step.Path)
		}
	}

	if err := e.client.CloneBare(ctx, step.URL, step.Path); err != nil {
		// partially cloned dir would be mistaken for a mirror on next run
		if rErr := os.RemoveAll(step.Path); rErr != nil {
			log.Error("unable to remove failed clone", "path", step.Path, "err", rErr)
		}
		return err
	}

	if _, err := writeDescription(step.Path, step.URL); err != nil {
		log.Error("unable to write description", "path", step.Path, "err", err)
		return err
	}
	return nil
}

func (e *Engine) reclone(ctx context.Context, step Step, report *Report) {
	log := e.log.With("mirror", step.ID)
	log.Warn("existing directory is not a bare repository, cloning again", "path", step.Path)

	if err := os.RemoveAll(step.Path); err != nil {
		recordAction(ActionReclone, false)
		report.RecordFailure(Failure{ID: step.ID, URL: step.URL, Action: ActionReclone, Err: err})
		return
	}
	e.clone(ctx, step, report)
}

func (e *Engine) update(ctx context.Context, step Step, report *Report) {
	log := e.log.With("mirror", step.ID)

	// directory was removed by someone else after snapshot
	if _, err := os.Stat(step.Path); errors.Is(err, os.ErrNotExist) {
		log.Warn("mirror disappeared since snapshot, cloning", "path", step.Path)
		step.Action = ActionClone
		e.clone(ctx, step, report)
		return
	}

	start := time.Now()
	err := e.client.FetchAllPruned(ctx, step.Path, step.URL)
	recordAction(ActionUpdate, err == nil)
	updateActionLatency(ActionUpdate, start)
	if err != nil {
		report.RecordFailure(Failure{ID: step.ID, URL: step.URL, Action: ActionUpdate, Err: err})
		return
	}

	changed, err := writeDescription(step.Path, step.URL)
	if err != nil {
		log.Error("unable to refresh description", "path", step.Path, "err", err)
		report.RecordFailure(Failure{ID: step.ID, URL: step.URL, Action: ActionUpdate, Err: err})
		return
	}
	if changed {
		log.Info("mirror description updated", "remote", step.URL)
	}

	log.Debug("mirror updated", "remote", step.URL)
	report.Updated = append(report.Updated, step.ID)
}

func (e *Engine) delete(step Step, report *Report) {
	log := e.log.With("mirror", step.ID)

	if _, err := os.Lstat(step.Path); errors.Is(err, os.ErrNotExist) {
		log.Warn("outdated mirror already removed", "path", step.Path)
		report.recordAnomaly(Anomaly{ID: step.ID, Path: step.Path, Err: err})
		return
	}

	start := time.Now()
	err := os.RemoveAll(step.Path)
	recordAction(ActionDelete, err == nil)
	updateActionLatency(ActionDelete, start)
	if err != nil {
		log.Error("unable to remove outdated mirror", "path", step.Path, "err", err)
		report.recordAnomaly(Anomaly{ID: step.ID, Path: step.Path, Err: err})
		return
	}

	log.Info("outdated mirror removed", "path", step.Path)
	report.Deleted = append(report.Deleted, step.ID)
}

func (e *Engine) excluded(id string) bool {
	return matchAny(e.log, e.opts.Exclude, id)
}

// looksBare checks for the minimal layout of a bare repository
func looksBare(path string) bool {
	for _, name := range []string{"HEAD", "objects", "refs"} {
		if _, err := os.Stat(filepath.Join(path, name)); err != nil {
			return false
		}
	}
	return true
}

// writeDescription writes url into description file of the mirror if
// content is different, it returns true if file was written
func writeDescription(path, url string) (bool, error) {
	file := filepath.Join(path, descriptionFile)
	current, err := os.ReadFile(file)
	if err == nil && bytes.Equal(current, []byte(url)) {
		return false, nil
	}
	if err := os.WriteFile(file, []byte(url), 0644); err != nil {
		return false, err
	}
	return true, nil
}

func matchAny(log *slog.Logger, patterns []string, id string) bool {
	for _, p := range patterns {
		ok, err := doublestar.Match(p, id)
		if err != nil {
			log.Error("invalid pattern", "pattern", p, "err", err)
			continue
		}
		if ok {
			return true
		}
	}
	return false
}
