// Package preview trims a finished render down to a short audition clip.
package preview

import (
	"context"
	"fmt"

	"github.com/book-expert/logger"

	"github.com/book-expert/render-service/internal/arena"
	"github.com/book-expert/render-service/internal/ffmpegcmd"
)

// SecondsMin and SecondsMax bound the preview window a caller can request.
const (
	SecondsMin = 2.0
	SecondsMax = 30.0

	previewStageSuffix = "preview"
)

// ClampSeconds bounds a requested preview duration to [SecondsMin, SecondsMax].
func ClampSeconds(seconds float64) float64 {
	if seconds < SecondsMin {
		return SecondsMin
	}

	if seconds > SecondsMax {
		return SecondsMax
	}

	return seconds
}

// Extractor cuts preview clips as a best-effort pipeline stage.
type Extractor struct {
	executor ffmpegcmd.Executor
	log      *logger.Logger
}

// NewExtractor creates a preview extractor backed by the given executor.
func NewExtractor(executor ffmpegcmd.Executor, log *logger.Logger) *Extractor {
	return &Extractor{
		executor: executor,
		log:      log,
	}
}

// Extract trims the first seconds of inputPath into a new stage file using a
// stream copy, so the preview carries the final render's encoding untouched.
// On failure the untrimmed path is returned with the error so the caller can
// fall back to the full take.
func (e *Extractor) Extract(
	ctx context.Context,
	inputPath string,
	seconds float64,
) (string, bool, error) {
	clamped := ClampSeconds(seconds)
	outputPath := arena.StagePath(inputPath, previewStageSuffix)

	trimErr := e.executor.CopyTrim(ctx, inputPath, outputPath, clamped)
	if trimErr != nil {
		return inputPath, false, fmt.Errorf("trim preview to %.1fs: %w", clamped, trimErr)
	}

	e.log.Info("Preview extracted: %.1fs -> %s", clamped, outputPath)

	return outputPath, true, nil
}
