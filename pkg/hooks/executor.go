package hooks

import (
	"github.com/pobuild/pob/pkg/errors"
	"github.com/pobuild/pob/pkg/logging"
)

// ExecutorOptions tunes hook execution.
type ExecutorOptions struct {
	// StopOnError turns soft hook failures into hard ones.
	StopOnError bool
	// FallbackToGlobal reruns the stage with global hooks when every
	// platform hook failed softly. Platform slots with no hooks always fall
	// back.
	FallbackToGlobal bool
}

// Executor runs the hooks of one registry.
type Executor struct {
	registry *Registry
	opts     ExecutorOptions
}

// NewExecutor builds an Executor over a registry.
func NewExecutor(registry *Registry, opts ExecutorOptions) *Executor {
	return &Executor{registry: registry, opts: opts}
}

// ExecuteStage runs the hooks selected by ctx.Stage and the project's
// platform. An abort error from any hook stops immediately and is returned
// coded; other hook errors are logged and tolerated unless StopOnError is
// set. Platform slots with no hooks fall back to the global slot.
func (e *Executor) ExecuteStage(ctx *Context, platform string) error {
	selected := e.registry.HooksFor(ctx.Stage, platform)
	if platform != "" && len(selected) == 0 {
		selected = e.registry.HooksFor(ctx.Stage, "")
	}
	if len(selected) == 0 {
		return nil
	}

	succeeded, err := e.run(ctx, selected)
	if err != nil {
		return err
	}
	if succeeded == 0 && platform != "" && e.opts.FallbackToGlobal {
		fallback := e.registry.HooksFor(ctx.Stage, "")
		if len(fallback) > 0 {
			logger := logging.GetLogger("hooks")
			logger.Warn().Str("stage", string(ctx.Stage)).
				Str("platform", platform).Msg("All platform hooks failed, falling back to global hooks")
			if _, err := e.run(ctx, fallback); err != nil {
				return err
			}
		}
	}
	return nil
}

// run executes hooks in order and returns how many succeeded.
func (e *Executor) run(ctx *Context, selected []Hook) (int, error) {
	logger := logging.GetLogger("hooks")
	succeeded := 0
	for _, h := range selected {
		logger.Debug().Str("hook", h.Name).Str("stage", string(ctx.Stage)).Msg("Running hook")
		err := h.Fn(ctx)
		if err == nil {
			succeeded++
			continue
		}
		if IsAbort(err) {
			return succeeded, errors.Wrapf(err, errors.ErrHookAbort,
				"hook '%s' aborted stage %s", h.Name, ctx.Stage)
		}
		logger.Error().Err(err).Str("hook", h.Name).Str("stage", string(ctx.Stage)).Msg("Hook failed")
		if e.opts.StopOnError {
			return succeeded, errors.Wrapf(err, errors.ErrStageFailed,
				"hook '%s' failed in stage %s", h.Name, ctx.Stage)
		}
	}
	return succeeded, nil
}
