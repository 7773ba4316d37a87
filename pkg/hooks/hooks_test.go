package hooks

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pobuild/pob/pkg/errors"
)

func named(name string, calls *[]string) Func {
	return func(*Context) error {
		*calls = append(*calls, name)
		return nil
	}
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()
	fn := func(*Context) error { return nil }

	assert.Error(t, r.Register(Hook{Stage: "bogus", Name: "h", Fn: fn}))
	assert.Error(t, r.Register(Hook{Stage: StageBuild, Name: "", Fn: fn}))
	assert.Error(t, r.Register(Hook{Stage: StageBuild, Name: "h"}))
	assert.NoError(t, r.Register(Hook{Stage: StageBuild, Name: "h", Fn: fn}))
	assert.Equal(t, 1, r.Len())
}

func TestRegisterReplacesSameSlot(t *testing.T) {
	r := NewRegistry()
	var calls []string
	require.NoError(t, r.Register(Hook{Stage: StageBuild, Name: "h", Fn: named("first", &calls)}))
	require.NoError(t, r.Register(Hook{Stage: StageBuild, Name: "h", Fn: named("second", &calls)}))
	require.NoError(t, r.Register(Hook{Stage: StageBuild, Name: "h", Platform: "imx8", Fn: named("platform", &calls)}))

	got := r.HooksFor(StageBuild, "")
	require.Len(t, got, 1, "same stage+platform+name replaces")
	require.NoError(t, got[0].Fn(nil))
	assert.Equal(t, []string{"second"}, calls)

	assert.Len(t, r.HooksFor(StageBuild, "imx8"), 1, "platform slot is separate")
}

func TestHooksForOrdersByPriorityThenRegistration(t *testing.T) {
	r := NewRegistry()
	var calls []string
	require.NoError(t, r.Register(Hook{Stage: StagePreBuild, Name: "late", Priority: 10, Fn: named("late", &calls)}))
	require.NoError(t, r.Register(Hook{Stage: StagePreBuild, Name: "early", Priority: 1, Fn: named("early", &calls)}))
	require.NoError(t, r.Register(Hook{Stage: StagePreBuild, Name: "also_early", Priority: 1, Fn: named("also_early", &calls)}))

	for _, h := range r.HooksFor(StagePreBuild, "") {
		require.NoError(t, h.Fn(nil))
	}
	assert.Equal(t, []string{"early", "also_early", "late"}, calls)
}

func TestExecuteStageAbortIsTerminal(t *testing.T) {
	r := NewRegistry()
	var calls []string
	require.NoError(t, r.Register(Hook{Stage: StageBuild, Name: "a", Priority: 1, Fn: named("a", &calls)}))
	require.NoError(t, r.Register(Hook{Stage: StageBuild, Name: "b", Priority: 2, Fn: func(*Context) error {
		return Abort("flash image missing")
	}}))
	require.NoError(t, r.Register(Hook{Stage: StageBuild, Name: "c", Priority: 3, Fn: named("c", &calls)}))

	e := NewExecutor(r, ExecutorOptions{})
	err := e.ExecuteStage(&Context{Stage: StageBuild}, "")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrHookAbort))
	assert.Equal(t, []string{"a"}, calls, "hooks after the abort do not run")
}

func TestExecuteStageSoftFailureTolerated(t *testing.T) {
	r := NewRegistry()
	var calls []string
	require.NoError(t, r.Register(Hook{Stage: StageBuild, Name: "flaky", Priority: 1, Fn: func(*Context) error {
		return fmt.Errorf("transient")
	}}))
	require.NoError(t, r.Register(Hook{Stage: StageBuild, Name: "solid", Priority: 2, Fn: named("solid", &calls)}))

	e := NewExecutor(r, ExecutorOptions{})
	assert.NoError(t, e.ExecuteStage(&Context{Stage: StageBuild}, ""))
	assert.Equal(t, []string{"solid"}, calls)

	strict := NewExecutor(r, ExecutorOptions{StopOnError: true})
	calls = nil
	err := strict.ExecuteStage(&Context{Stage: StageBuild}, "")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrStageFailed))
	assert.Empty(t, calls)
}

func TestExecuteStagePlatformFallback(t *testing.T) {
	r := NewRegistry()
	var calls []string
	require.NoError(t, r.Register(Hook{Stage: StageBuild, Name: "global", Fn: named("global", &calls)}))

	e := NewExecutor(r, ExecutorOptions{})
	require.NoError(t, e.ExecuteStage(&Context{Stage: StageBuild}, "imx8"))
	assert.Equal(t, []string{"global"}, calls, "empty platform slot falls back to global hooks")

	require.NoError(t, r.Register(Hook{Stage: StageBuild, Name: "imx", Platform: "imx8", Fn: named("imx", &calls)}))
	calls = nil
	require.NoError(t, e.ExecuteStage(&Context{Stage: StageBuild}, "imx8"))
	assert.Equal(t, []string{"imx"}, calls, "platform hooks shadow global ones")
}

func TestExecuteStageFallbackAfterPlatformFailure(t *testing.T) {
	r := NewRegistry()
	var calls []string
	require.NoError(t, r.Register(Hook{Stage: StageBuild, Name: "broken", Platform: "imx8", Fn: func(*Context) error {
		return fmt.Errorf("toolchain missing")
	}}))
	require.NoError(t, r.Register(Hook{Stage: StageBuild, Name: "global", Fn: named("global", &calls)}))

	without := NewExecutor(r, ExecutorOptions{})
	require.NoError(t, without.ExecuteStage(&Context{Stage: StageBuild}, "imx8"))
	assert.Empty(t, calls, "no fallback unless enabled")

	with := NewExecutor(r, ExecutorOptions{FallbackToGlobal: true})
	require.NoError(t, with.ExecuteStage(&Context{Stage: StageBuild}, "imx8"))
	assert.Equal(t, []string{"global"}, calls)
}

func TestAbortHelpers(t *testing.T) {
	assert.True(t, IsAbort(Abort("x")))
	assert.True(t, IsAbort(Abortf("missing %s", "file")))
	assert.False(t, IsAbort(fmt.Errorf("plain")))
	assert.False(t, IsAbort(nil))
}

func TestStages(t *testing.T) {
	assert.Equal(t, []Stage{StageValidation, StagePreBuild, StageBuild, StagePostBuild}, Stages())
	assert.True(t, StageBuild.Valid())
	assert.False(t, Stage("deploy").Valid())
}
