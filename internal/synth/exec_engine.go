package synth

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/book-expert/logger"

	"github.com/book-expert/render-service/internal/core"
)

const defaultBinary = "vocalsynth"

// ExecEngine implements core.Synthesizer by invoking a local synthesis binary
// and reading back the exported take.
type ExecEngine struct {
	config Config
	log    *logger.Logger
}

// NewExecEngine creates a subprocess-backed synthesis engine.
func NewExecEngine(cfg Config, log *logger.Logger) (*ExecEngine, error) {
	if cfg.ModelPath == "" {
		return nil, ErrModelPathEmpty
	}

	if cfg.BinaryPath == "" {
		cfg.BinaryPath = defaultBinary
	}

	return &ExecEngine{
		config: cfg,
		log:    log,
	}, nil
}

// Synthesize renders one vocal take by calling the synthesis binary with the
// voice model, lyrics, and style controls, exporting into a temp file.
func (e *ExecEngine) Synthesize(
	ctx context.Context,
	req core.SynthesisRequest,
) (*core.SynthesisResult, error) {
	if req.Lyrics == "" {
		return nil, core.ErrLyricsEmpty
	}

	if req.VoiceModel == "" {
		return nil, core.ErrVoiceEmpty
	}

	tempFile, tempErr := os.CreateTemp("", "synth-output-*.wav")
	if tempErr != nil {
		return nil, fmt.Errorf("failed to create temp file for synthesis output: %w", tempErr)
	}

	defer func() {
		removeErr := os.Remove(tempFile.Name())
		if removeErr != nil {
			e.log.Warn("Failed to remove temp file '%s': %v", tempFile.Name(), removeErr)
		}
	}()

	args := e.buildArgs(req, tempFile.Name())

	// #nosec G204 -- arguments are validated render inputs, not user shell text
	cmd := exec.CommandContext(ctx, e.config.BinaryPath, args...)

	output, runErr := cmd.CombinedOutput()
	if runErr != nil {
		return nil, fmt.Errorf(
			"synthesis binary execution failed: %w - output: %s",
			runErr, string(output),
		)
	}

	audioData, readErr := os.ReadFile(tempFile.Name())
	if readErr != nil {
		return nil, fmt.Errorf("failed to read audio data from temp file: %w", readErr)
	}

	return &core.SynthesisResult{
		Audio:  audioData,
		Format: "wav",
	}, nil
}

func (e *ExecEngine) buildArgs(req core.SynthesisRequest, exportPath string) []string {
	args := []string{
		"-m", e.config.ModelPath,
		"--voice", req.VoiceModel,
		"-p", req.Lyrics,
		"--export", exportPath,
		"--seed", strconv.Itoa(e.config.Seed),
		"--temp", fmt.Sprintf("%.2f", e.config.Temperature),
		"--brightness", fmt.Sprintf("%.2f", req.Controls.Brightness),
		"--breathiness", fmt.Sprintf("%.2f", req.Controls.Breathiness),
		"--energy", fmt.Sprintf("%.2f", req.Controls.Energy),
		"--vibrato-depth", fmt.Sprintf("%.2f", req.Controls.VibratoDepth),
		"--vibrato-rate", fmt.Sprintf("%.2f", req.Controls.VibratoRate),
		"--roboticism", fmt.Sprintf("%.2f", req.Controls.Roboticism),
		"--glitch", fmt.Sprintf("%.2f", req.Controls.Glitch),
		"--stereo-width", fmt.Sprintf("%.2f", req.Controls.StereoWidth),
		"--formant", fmt.Sprintf("%.2f", req.Controls.Formant),
	}

	if req.GuidePath != "" {
		args = append(args,
			"--guide", req.GuidePath,
			"--guide-match", fmt.Sprintf("%.2f", req.GuideMatchIntensity),
		)
	}

	if req.AccentLock != "" {
		args = append(args, "--accent-lock", req.AccentLock)
	}

	return args
}
