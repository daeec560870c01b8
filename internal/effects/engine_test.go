// Package effects_test tests the effects engine's ordered fallback
// strategies.
package effects_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/render-service/internal/core"
	"github.com/book-expert/render-service/internal/effects"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errMockFilter    = errors.New("mock filter error")
	errMockNormalize = errors.New("mock normalize error")
	errMockDelegate  = errors.New("mock delegate error")
)

// fakeExecutor records filter invocations and fails on demand.
type fakeExecutor struct {
	filterShouldFail    bool
	normalizeShouldFail bool
	filterChain         string
	filterOutput        string
	normalizeOutput     string
}

func (f *fakeExecutor) Filter(_ context.Context, _, outputPath, chain string) error {
	if f.filterShouldFail {
		return errMockFilter
	}

	f.filterChain = chain
	f.filterOutput = outputPath

	return nil
}

func (f *fakeExecutor) FilterComplex(_ context.Context, _, _, _ string) error {
	return nil
}

func (f *fakeExecutor) CopyTrim(_ context.Context, _, _ string, _ float64) error {
	return nil
}

func (f *fakeExecutor) Normalize(_ context.Context, _, outputPath string) error {
	if f.normalizeShouldFail {
		return errMockNormalize
	}

	f.normalizeOutput = outputPath

	return nil
}

// fakeDelegate is a delegated-effects capability stub.
type fakeDelegate struct {
	shouldFail bool
	audio      []byte
}

func (f *fakeDelegate) Process(
	_ context.Context, _ string, _ core.EffectSettings, _ float64,
) ([]byte, error) {
	if f.shouldFail {
		return nil, errMockDelegate
	}

	return f.audio, nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "effects-test.log")
	require.NoError(t, err)

	return log
}

func inputFile(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "render-run.wav")
	require.NoError(t, os.WriteFile(path, []byte("take"), 0o600))

	return path
}

func TestApply_BypassReturnsInputUnchanged(t *testing.T) {
	t.Parallel()

	executor := &fakeExecutor{}
	engine := effects.NewEngine(executor, nil, testLogger(t))

	input := inputFile(t)
	outcome := engine.Apply(
		context.Background(),
		input,
		core.EffectSettings{BypassEffects: true},
		0,
	)

	assert.Equal(t, input, outcome.Path)
	assert.False(t, outcome.Applied)
	assert.False(t, outcome.Degraded)
	assert.Empty(t, executor.filterChain)
}

func TestApply_BuiltInChain(t *testing.T) {
	t.Parallel()

	executor := &fakeExecutor{}
	engine := effects.NewEngine(executor, nil, testLogger(t))

	input := inputFile(t)
	settings := core.EffectSettings{Engine: core.EngineBuiltIn, Preset: core.PresetLush}

	outcome := engine.Apply(context.Background(), input, settings, 0)

	assert.True(t, outcome.Applied)
	assert.False(t, outcome.Degraded)
	assert.Equal(t, "built-in", outcome.Engine)

	wantPath := input[:len(input)-len(".wav")] + "-hq.wav"
	assert.Equal(t, wantPath, outcome.Path)

	// The executed chain carries the lush table values, not the caller's.
	assert.Equal(t, effects.BuildChain(effects.ResolvePreset(settings)), executor.filterChain)
}

func TestApply_DelegatedEngineWritesSuffixedFile(t *testing.T) {
	t.Parallel()

	executor := &fakeExecutor{}
	delegate := &fakeDelegate{audio: []byte("processed")}
	engine := effects.NewEngine(executor, delegate, testLogger(t))

	input := inputFile(t)
	settings := core.EffectSettings{Engine: "studio cloud"}

	outcome := engine.Apply(context.Background(), input, settings, 5)

	require.True(t, outcome.Applied)
	assert.Equal(t, "delegated", outcome.Engine)
	assert.Equal(t, input[:len(input)-len(".wav")]+"-studio-cloud.wav", outcome.Path)

	written, readErr := os.ReadFile(outcome.Path)
	require.NoError(t, readErr)
	assert.Equal(t, []byte("processed"), written)
}

func TestApply_DelegatedFailureFallsBackToBuiltIn(t *testing.T) {
	t.Parallel()

	executor := &fakeExecutor{}
	delegate := &fakeDelegate{shouldFail: true}
	engine := effects.NewEngine(executor, delegate, testLogger(t))

	input := inputFile(t)
	outcome := engine.Apply(
		context.Background(),
		input,
		core.EffectSettings{Engine: "studio-cloud"},
		0,
	)

	assert.True(t, outcome.Applied)
	assert.False(t, outcome.Degraded)
	assert.Equal(t, "built-in", outcome.Engine)
	assert.Contains(t, outcome.Reason, "delegated")
}

func TestApply_BuiltInFailureFallsBackToNormalize(t *testing.T) {
	t.Parallel()

	executor := &fakeExecutor{filterShouldFail: true}
	engine := effects.NewEngine(executor, nil, testLogger(t))

	input := inputFile(t)
	outcome := engine.Apply(
		context.Background(),
		input,
		core.EffectSettings{Engine: core.EngineBuiltIn},
		0,
	)

	assert.False(t, outcome.Applied)
	assert.True(t, outcome.Degraded)
	assert.Equal(t, "normalize", outcome.Engine)
	assert.Equal(t, input[:len(input)-len(".wav")]+"-norm.wav", outcome.Path)
	assert.Contains(t, outcome.Reason, "built-in")
}

func TestApply_AllStrategiesFailReturnsInputUnchanged(t *testing.T) {
	t.Parallel()

	executor := &fakeExecutor{filterShouldFail: true, normalizeShouldFail: true}
	delegate := &fakeDelegate{shouldFail: true}
	engine := effects.NewEngine(executor, delegate, testLogger(t))

	input := inputFile(t)
	outcome := engine.Apply(
		context.Background(),
		input,
		core.EffectSettings{Engine: "studio-cloud"},
		0,
	)

	assert.Equal(t, input, outcome.Path)
	assert.False(t, outcome.Applied)
	assert.True(t, outcome.Degraded)
	assert.Equal(t, "passthrough", outcome.Engine)
	assert.Contains(t, outcome.Reason, "delegated")
	assert.Contains(t, outcome.Reason, "built-in")
	assert.Contains(t, outcome.Reason, "normalize")
}
