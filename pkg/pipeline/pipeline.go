// Package pipeline runs the staged project build: validation, pre_build,
// build, post_build. Each stage has a built-in function carrying the core
// semantics; projects with a PROJECT_PLATFORM additionally run the
// platform's registered hooks after the built-in succeeds.
package pipeline

import (
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/pobuild/pob/pkg/config"
	"github.com/pobuild/pob/pkg/engine"
	"github.com/pobuild/pob/pkg/errors"
	"github.com/pobuild/pob/pkg/hooks"
	"github.com/pobuild/pob/pkg/logging"
	"github.com/pobuild/pob/pkg/pospec"
)

// Configuration keys read by the built-in build stages.
const (
	KeyBuildCmd     = "PROJECT_BUILD_CMD"
	KeyPostBuildCmd = "PROJECT_POST_BUILD_CMD"
)

// RunFunc executes a shell command in dir with extra environment entries.
type RunFunc func(dir string, env []string, command string) error

// Options wires a Pipeline.
type Options struct {
	Store    *config.Store
	Engine   *engine.Engine
	Executor *hooks.Executor
	WorkRoot string
	// DefaultPlatform applies to projects without a PROJECT_PLATFORM.
	DefaultPlatform string
	// RunCommand overrides how build commands run; nil uses sh -c.
	RunCommand RunFunc
}

// Pipeline builds projects stage by stage.
type Pipeline struct {
	store           *config.Store
	engine          *engine.Engine
	executor        *hooks.Executor
	workRoot        string
	defaultPlatform string
	run             RunFunc
}

// New builds a Pipeline from Options.
func New(opts Options) *Pipeline {
	run := opts.RunCommand
	if run == nil {
		run = shRun
	}
	return &Pipeline{
		store:           opts.Store,
		engine:          opts.Engine,
		executor:        opts.Executor,
		workRoot:        opts.WorkRoot,
		defaultPlatform: opts.DefaultPlatform,
		run:             run,
	}
}

// Build runs every stage for the project, in order, stopping at the first
// hard failure.
func (p *Pipeline) Build(projectName string) error {
	logger := logging.GetLogger("pipeline")
	done := logging.LogOperationStart(logger, "project_build")
	defer done()

	project, err := p.store.Project(projectName)
	if err != nil {
		return err
	}
	ctx := &hooks.Context{
		Project:  project,
		WorkRoot: p.workRoot,
		Env:      make(map[string]string),
	}

	for _, stage := range hooks.Stages() {
		ctx.Stage = stage
		logger.Info().Str("stage", string(stage)).Str("project", projectName).Msg("Stage started")

		if err := p.builtin(ctx); err != nil {
			logger.Error().Err(err).Str("stage", string(stage)).Msg("Stage failed")
			return err
		}
		if platform := p.platformFor(project); platform != "" {
			if err := p.executor.ExecuteStage(ctx, platform); err != nil {
				logger.Error().Err(err).Str("stage", string(stage)).Msg("Stage failed")
				return err
			}
		}
		logger.Info().Str("stage", string(stage)).Msg("Stage finished")
	}
	logger.Info().Str("project", projectName).Msg("Build finished")
	return nil
}

// platformFor resolves the project's platform, falling back to the
// tool-level default.
func (p *Pipeline) platformFor(project *config.Project) string {
	if platform := project.Platform(); platform != "" {
		return platform
	}
	return p.defaultPlatform
}

func (p *Pipeline) builtin(ctx *hooks.Context) error {
	switch ctx.Stage {
	case hooks.StageValidation:
		return p.validate(ctx.Project)
	case hooks.StagePreBuild:
		return p.engine.Apply(ctx.Project.Name)
	case hooks.StageBuild:
		return p.runConfigured(ctx, KeyBuildCmd)
	case hooks.StagePostBuild:
		return p.runConfigured(ctx, KeyPostBuildCmd)
	}
	return nil
}

// validate checks that the project's board exists on disk and that every
// bundle its directive includes has a directory.
func (p *Pipeline) validate(project *config.Project) error {
	if _, err := os.Stat(project.BoardPath); err != nil {
		return errors.Newf(errors.ErrConfigInvalid,
			"board directory %s does not exist", project.BoardPath)
	}
	spec := pospec.Parse(project.POConfig())
	for _, bundle := range spec.Effective() {
		dir := filepath.Join(project.PODir(), bundle)
		if _, err := os.Stat(dir); err != nil {
			return errors.Newf(errors.ErrBundleNotFound,
				"bundle '%s' referenced by project '%s' does not exist at %s",
				bundle, project.Name, dir)
		}
	}
	return nil
}

// runConfigured runs the shell command configured under key, if any. The
// project's configuration values and the context's Env entries are exported
// into the command's environment.
func (p *Pipeline) runConfigured(ctx *hooks.Context, key string) error {
	logger := logging.GetLogger("pipeline")
	command := ctx.Project.Get(key)
	if command == "" {
		logger.Debug().Str("key", key).Msg("No command configured, skipping")
		return nil
	}

	env := environFor(ctx)
	logger.Info().Str("command", command).Str("stage", string(ctx.Stage)).Msg("Running build command")
	if err := p.run(p.workRoot, env, command); err != nil {
		return errors.Wrapf(err, errors.ErrStageFailed,
			"command for %s failed", key)
	}
	return nil
}

// environFor flattens the project values and context env into KEY=value
// pairs, deterministically ordered, context entries last so they win.
func environFor(ctx *hooks.Context) []string {
	pairs := make(map[string]string, len(ctx.Project.Values)+len(ctx.Env))
	for k, v := range ctx.Project.Values {
		pairs[k] = v
	}
	for k, v := range ctx.Env {
		pairs[k] = v
	}
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+pairs[k])
	}
	return env
}

// shRun is the default RunFunc: sh -c in dir, inheriting the process
// environment plus the given entries, streaming output to the terminal.
func shRun(dir string, env []string, command string) error {
	logging.LogCommand("sh", []string{"-c", command})
	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
