// Package guide isolates the vocal stem of a guide recording before it is
// handed to synthesis. It prefers a demucs subprocess and falls back to an
// ffmpeg center-channel bias when demucs is unavailable.
package guide

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/book-expert/logger"
)

const (
	vocalsStemName = "vocals.wav"
	fallbackName   = "vocals-centerbias.wav"

	// centerBiasFilter keeps the mid signal where lead vocals usually sit
	// and attenuates the sides.
	centerBiasFilter = "stereotools=mlev=1.0:slev=0.25,highpass=f=120,lowpass=f=10000"
)

// ErrVocalsNotFound is returned when demucs finishes without producing a
// vocals stem.
var ErrVocalsNotFound = errors.New("vocals stem not found")

// Extractor implements core.StemExtractor.
type Extractor struct {
	demucsBinary string
	log          *logger.Logger
}

// NewExtractor creates a stem extractor. An empty demucsBinary skips demucs
// and always uses the center-bias fallback.
func NewExtractor(demucsBinary string, log *logger.Logger) *Extractor {
	return &Extractor{
		demucsBinary: demucsBinary,
		log:          log,
	}
}

// ExtractVocals isolates the vocal stem of inputPath into outputDir and
// returns the stem path. A demucs failure falls through to the ffmpeg
// center-bias pass before the whole stage is given up on.
func (e *Extractor) ExtractVocals(
	ctx context.Context,
	inputPath, outputDir string,
) (string, error) {
	if e.demucsBinary != "" {
		stemPath, demucsErr := e.runDemucs(ctx, inputPath, outputDir)
		if demucsErr == nil {
			return stemPath, nil
		}

		e.log.Warn("Demucs separation failed, using center-bias fallback: %v", demucsErr)
	}

	return e.centerBias(ctx, inputPath, outputDir)
}

func (e *Extractor) runDemucs(ctx context.Context, inputPath, outputDir string) (string, error) {
	args := []string{
		"--two-stems", "vocals",
		"-o", outputDir,
		inputPath,
	}

	// #nosec G204 -- the binary comes from service configuration
	cmd := exec.CommandContext(ctx, e.demucsBinary, args...)

	output, runErr := cmd.CombinedOutput()
	if runErr != nil {
		return "", fmt.Errorf(
			"demucs execution failed: %w - output: %s",
			runErr, string(output),
		)
	}

	stemPath, findErr := findVocalsStem(outputDir)
	if findErr != nil {
		return "", findErr
	}

	return stemPath, nil
}

// findVocalsStem locates the vocals output under demucs's model-named
// subdirectories.
func findVocalsStem(outputDir string) (string, error) {
	var found string

	walkErr := filepath.WalkDir(outputDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() && strings.EqualFold(d.Name(), vocalsStemName) {
			found = path

			return filepath.SkipAll
		}

		return nil
	})
	if walkErr != nil {
		return "", fmt.Errorf("failed to scan separation output: %w", walkErr)
	}

	if found == "" {
		return "", fmt.Errorf("%w in %s", ErrVocalsNotFound, outputDir)
	}

	return found, nil
}

func (e *Extractor) centerBias(ctx context.Context, inputPath, outputDir string) (string, error) {
	outputPath := filepath.Join(outputDir, fallbackName)

	// #nosec G204 -- paths come from a run arena this service created
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-i", inputPath,
		"-af", centerBiasFilter,
		outputPath,
	)

	output, runErr := cmd.CombinedOutput()
	if runErr != nil {
		return "", fmt.Errorf(
			"center-bias extraction failed: %w - output: %s",
			runErr, string(output),
		)
	}

	return outputPath, nil
}
