// Package hooks provides the build pipeline's extension points. Hooks are
// plain Go functions registered on an explicit Registry owned by the host
// binary; there is no package-global state and no on-disk plugin discovery.
package hooks

import (
	stderrors "errors"
	"fmt"
	"sort"
	"sync"

	"github.com/pobuild/pob/pkg/config"
	"github.com/pobuild/pob/pkg/errors"
)

// Stage is one phase of the build pipeline.
type Stage string

const (
	StageValidation Stage = "validation"
	StagePreBuild   Stage = "pre_build"
	StageBuild      Stage = "build"
	StagePostBuild  Stage = "post_build"
)

// Stages returns every stage in execution order.
func Stages() []Stage {
	return []Stage{StageValidation, StagePreBuild, StageBuild, StagePostBuild}
}

// Valid reports whether s names a pipeline stage.
func (s Stage) Valid() bool {
	switch s {
	case StageValidation, StagePreBuild, StageBuild, StagePostBuild:
		return true
	}
	return false
}

// ErrAbort is the explicit failure signal. A hook returning an error that
// wraps ErrAbort stops the pipeline; any other error is a soft failure.
var ErrAbort = stderrors.New("hook aborted")

// Abort returns a pipeline-stopping error with the given reason.
func Abort(reason string) error {
	return fmt.Errorf("%w: %s", ErrAbort, reason)
}

// Abortf is Abort with formatting.
func Abortf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrAbort, fmt.Sprintf(format, args...))
}

// IsAbort reports whether err carries the explicit failure signal.
func IsAbort(err error) bool {
	return stderrors.Is(err, ErrAbort)
}

// Context is the single argument every hook receives.
type Context struct {
	// Project is the fully merged configuration of the target being built.
	Project *config.Project
	// Stage is the pipeline phase the hook runs in.
	Stage Stage
	// WorkRoot is the working tree the build mutates.
	WorkRoot string
	// Env carries extra key/value pairs hooks may read or amend; the
	// pipeline passes it to build commands.
	Env map[string]string
}

// Func is the fixed hook calling convention.
type Func func(*Context) error

// Hook is one registered extension.
type Hook struct {
	// Stage the hook runs in. Required.
	Stage Stage
	// Name identifies the hook within its (stage, platform) slot; a second
	// Register with the same name replaces the first.
	Name string
	// Platform restricts the hook to projects with that PROJECT_PLATFORM.
	// Empty means global.
	Platform string
	// Priority orders execution, ascending. Equal priorities run in
	// registration order.
	Priority int
	// Fn is the hook body. Required.
	Fn Func
}

// Registry holds registered hooks. The zero value is not usable; construct
// with NewRegistry. Hosts build one registry at startup and pass it down.
type Registry struct {
	mu    sync.RWMutex
	hooks []Hook
	seq   map[string]int // registration order per (stage, platform, name)
	next  int
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{seq: make(map[string]int)}
}

func slotKey(stage Stage, platform, name string) string {
	return string(stage) + "\x00" + platform + "\x00" + name
}

// Register adds a hook, replacing any hook with the same stage, platform and
// name.
func (r *Registry) Register(h Hook) error {
	if !h.Stage.Valid() {
		return errors.Newf(errors.ErrConfigInvalid, "invalid hook stage '%s'", h.Stage)
	}
	if h.Name == "" {
		return errors.New(errors.ErrConfigInvalid, "hook name must not be empty")
	}
	if h.Fn == nil {
		return errors.Newf(errors.ErrConfigInvalid, "hook '%s' has no function", h.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	key := slotKey(h.Stage, h.Platform, h.Name)
	if _, ok := r.seq[key]; !ok {
		r.seq[key] = r.next
		r.next++
	}
	for i := range r.hooks {
		if r.hooks[i].Stage == h.Stage && r.hooks[i].Platform == h.Platform && r.hooks[i].Name == h.Name {
			r.hooks[i] = h
			return nil
		}
	}
	r.hooks = append(r.hooks, h)
	return nil
}

// HooksFor returns the hooks of one (stage, platform) slot sorted by
// ascending priority, ties broken by registration order. An empty platform
// selects the global hooks.
func (r *Registry) HooksFor(stage Stage, platform string) []Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Hook
	for _, h := range r.hooks {
		if h.Stage == stage && h.Platform == platform {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return r.seq[slotKey(out[i].Stage, out[i].Platform, out[i].Name)] <
			r.seq[slotKey(out[j].Stage, out[j].Platform, out[j].Name)]
	})
	return out
}

// Len returns the number of registered hooks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.hooks)
}
