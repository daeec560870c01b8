// Package tempo stretches rendered audio to match a guide track's pacing.
//
// ffmpeg's atempo filter only accepts ratios between 0.5 and 2.0 per stage,
// so larger corrections are decomposed into a chain of stages whose product
// equals the requested ratio.
package tempo

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/book-expert/logger"

	"github.com/book-expert/render-service/internal/arena"
	"github.com/book-expert/render-service/internal/ffmpegcmd"
)

const (
	// RatioMin and RatioMax bound the overall correction a render accepts.
	RatioMin = 0.5
	RatioMax = 6.0

	// NoOpTolerance is the band around 1.0 treated as "already on tempo".
	NoOpTolerance = 0.01

	stageMin         = 0.5
	stageMax         = 2.0
	remainderEpsilon = 1e-3
	tempoStageSuffix = "tempo"
)

// Decompose splits an overall tempo ratio into atempo stage ratios, each
// within [0.5, 2.0], whose product equals the clamped input ratio.
//
// Ratios outside [RatioMin, RatioMax] are clamped before decomposition. A
// ratio within NoOpTolerance of 1.0 yields no stages.
func Decompose(ratio float64) []float64 {
	if ratio < RatioMin {
		ratio = RatioMin
	}

	if ratio > RatioMax {
		ratio = RatioMax
	}

	if ratio > 1.0-NoOpTolerance && ratio < 1.0+NoOpTolerance {
		return nil
	}

	var stages []float64

	for ratio > stageMax {
		stages = append(stages, stageMax)
		ratio /= stageMax
	}

	for ratio < stageMin {
		stages = append(stages, stageMin)
		ratio /= stageMin
	}

	if ratio < 1.0-remainderEpsilon || ratio > 1.0+remainderEpsilon {
		stages = append(stages, ratio)
	}

	return stages
}

// Chain renders the decomposed stages as a comma-joined ffmpeg filter chain,
// for example "atempo=2,atempo=1.25". Stage values use the shortest exact
// representation; rounding them to fixed decimals could push the executed
// product outside the decomposition tolerance. An empty result means no
// correction is needed.
func Chain(ratio float64) string {
	stages := Decompose(ratio)
	if len(stages) == 0 {
		return ""
	}

	parts := make([]string, 0, len(stages))
	for _, stage := range stages {
		parts = append(parts, "atempo="+strconv.FormatFloat(stage, 'f', -1, 64))
	}

	return strings.Join(parts, ",")
}

// Corrector applies tempo correction as a best-effort pipeline stage.
type Corrector struct {
	executor ffmpegcmd.Executor
	log      *logger.Logger
}

// NewCorrector creates a tempo corrector backed by the given executor.
func NewCorrector(executor ffmpegcmd.Executor, log *logger.Logger) *Corrector {
	return &Corrector{
		executor: executor,
		log:      log,
	}
}

// Apply stretches the audio at inputPath by ratio, writing the corrected take
// next to the input. When the ratio is within NoOpTolerance of 1.0 the input
// path is returned unchanged with applied=false. On subprocess failure the
// input path is returned with the error so the caller can degrade.
func (c *Corrector) Apply(
	ctx context.Context,
	inputPath string,
	ratio float64,
) (string, bool, error) {
	chain := Chain(ratio)
	if chain == "" {
		return inputPath, false, nil
	}

	outputPath := arena.StagePath(inputPath, tempoStageSuffix)

	filterErr := c.executor.Filter(ctx, inputPath, outputPath, chain)
	if filterErr != nil {
		return inputPath, false, fmt.Errorf("apply tempo chain %q: %w", chain, filterErr)
	}

	c.log.Info("Tempo corrected: ratio=%.3f stages=%q", ratio, chain)

	return outputPath, true, nil
}
