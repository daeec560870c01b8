// Package preview_test verifies preview clamping and stream-copy trimming.
package preview_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/render-service/internal/arena"
	"github.com/book-expert/render-service/internal/preview"
)

var errTrimFailed = errors.New("trim failed")

type fakeExecutor struct {
	seconds    float64
	outputPath string
	failTrim   bool
}

func (f *fakeExecutor) Filter(_ context.Context, _, outputPath, _ string) error {
	return os.WriteFile(outputPath, []byte("filtered"), 0o600)
}

func (f *fakeExecutor) FilterComplex(_ context.Context, _, outputPath, _ string) error {
	return os.WriteFile(outputPath, []byte("layered"), 0o600)
}

func (f *fakeExecutor) CopyTrim(_ context.Context, _, outputPath string, seconds float64) error {
	if f.failTrim {
		return errTrimFailed
	}

	f.seconds = seconds
	f.outputPath = outputPath

	return os.WriteFile(outputPath, []byte("trimmed"), 0o600)
}

func (f *fakeExecutor) Normalize(_ context.Context, _, outputPath string) error {
	return os.WriteFile(outputPath, []byte("normalized"), 0o600)
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, logErr := logger.New(t.TempDir(), "preview-test.log")
	require.NoError(t, logErr)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func stageInput(t *testing.T) string {
	t.Helper()

	inputPath := filepath.Join(t.TempDir(), "render-take.wav")
	require.NoError(t, os.WriteFile(inputPath, []byte("take"), 0o600))

	return inputPath
}

func TestClampSeconds(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 2.0, preview.ClampSeconds(0.5), 1e-9)
	assert.InDelta(t, 2.0, preview.ClampSeconds(2.0), 1e-9)
	assert.InDelta(t, 12.5, preview.ClampSeconds(12.5), 1e-9)
	assert.InDelta(t, 30.0, preview.ClampSeconds(30.0), 1e-9)
	assert.InDelta(t, 30.0, preview.ClampSeconds(300.0), 1e-9)
}

func TestExtract_TrimsWithClampedSeconds(t *testing.T) {
	t.Parallel()

	inputPath := stageInput(t)
	executor := &fakeExecutor{}
	extractor := preview.NewExtractor(executor, testLogger(t))

	outputPath, applied, extractErr := extractor.Extract(
		context.Background(), inputPath, 1.0)
	require.NoError(t, extractErr)

	assert.True(t, applied)
	assert.Equal(t, arena.StagePath(inputPath, "preview"), outputPath)
	assert.InDelta(t, 2.0, executor.seconds, 1e-9)
	assert.FileExists(t, outputPath)
}

func TestExtract_FailureReturnsFullTake(t *testing.T) {
	t.Parallel()

	inputPath := stageInput(t)
	executor := &fakeExecutor{failTrim: true}
	extractor := preview.NewExtractor(executor, testLogger(t))

	outputPath, applied, extractErr := extractor.Extract(
		context.Background(), inputPath, 10.0)
	require.Error(t, extractErr)

	assert.False(t, applied)
	assert.Equal(t, inputPath, outputPath)
}
