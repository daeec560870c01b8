// main package for the render-cli, a one-shot local render tool.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/logger"
	"github.com/spf13/cobra"

	"github.com/book-expert/render-service/internal/core"
	"github.com/book-expert/render-service/internal/effects"
	"github.com/book-expert/render-service/internal/ffmpegcmd"
	"github.com/book-expert/render-service/internal/guide"
	"github.com/book-expert/render-service/internal/layers"
	"github.com/book-expert/render-service/internal/pipeline"
	"github.com/book-expert/render-service/internal/preview"
	"github.com/book-expert/render-service/internal/renderutil"
	"github.com/book-expert/render-service/internal/synth"
	"github.com/book-expert/render-service/internal/tempo"
)

var rootCmd = &cobra.Command{
	Use:   "render-cli",
	Short: "Render a persona vocal take locally",
	Long: `Run the full render pipeline on this machine: synthesis, effects,
tempo correction, layered modulation, and preview extraction.

Examples:
  render-cli --voice nova --lyrics "city lights" --prompt "warm and close"
  render-cli --voice nova --lyrics-file verse.txt --preset lush --tempo 1.1
  render-cli --voice nova --guide take.wav --guide-lyrics`,
	RunE: runRender,
}

var (
	voiceID      string
	personaID    string
	lyrics       string
	lyricsFile   string
	stylePrompt  string
	preset       string
	tempoRatio   float64
	previewSecs  float64
	guidePath    string
	guideLyrics  bool
	outputDir    string
	synthBinary  string
	synthModel   string
	demucsBinary string
	seed         int
	temperature  float64
	timeoutMins  int
)

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&voiceID, "voice", "", "Voice identifier (required)")
	flags.StringVar(&personaID, "persona", "", "Persona identifier")
	flags.StringVar(&lyrics, "lyrics", "", "Lyrics text")
	flags.StringVar(&lyricsFile, "lyrics-file", "", "File containing lyrics text")
	flags.StringVar(&stylePrompt, "prompt", "", "Style prompt resolved into vocal controls")
	flags.StringVar(&preset, "preset", "", "Effect preset (lush, vintage, club, raw, harmonic-orbit, pitch-warp, shimmer-stack, choir-cloud, 8d-swarm)")
	flags.Float64Var(&tempoRatio, "tempo", 0, "Tempo correction ratio (0 disables)")
	flags.Float64Var(&previewSecs, "preview", 0, "Preview clip length in seconds (0 disables)")
	flags.StringVar(&guidePath, "guide", "", "Guide audio file for vocal matching")
	flags.BoolVar(&guideLyrics, "guide-lyrics", false, "Recover lyrics from the guide track")
	flags.StringVar(&outputDir, "output", ".", "Directory for render run output")
	flags.StringVar(&synthBinary, "synth-binary", "", "Synthesis binary path")
	flags.StringVar(&synthModel, "model", "", "Voice model path (required)")
	flags.StringVar(&demucsBinary, "demucs", "", "Demucs binary for guide stem isolation")
	flags.IntVar(&seed, "seed", 0, "Synthesis seed")
	flags.Float64Var(&temperature, "temperature", 0.7, "Synthesis temperature")
	flags.IntVar(&timeoutMins, "timeout", 10, "Per-stage timeout in minutes")

	_ = rootCmd.MarkFlagRequired("voice")
	_ = rootCmd.MarkFlagRequired("model")
}

func resolveLyrics() (string, error) {
	if lyricsFile == "" {
		return lyrics, nil
	}

	data, readErr := os.ReadFile(lyricsFile)
	if readErr != nil {
		return "", fmt.Errorf("failed to read lyrics file: %w", readErr)
	}

	return string(data), nil
}

func runRender(cmd *cobra.Command, _ []string) error {
	log, logErr := logger.New(os.TempDir(), "render-cli.log")
	if logErr != nil {
		return fmt.Errorf("failed to create logger: %w", logErr)
	}

	defer func() { _ = log.Close() }()

	synthesizer, synthErr := synth.New(synth.Config{
		Engine:      synth.EngineExec,
		BinaryPath:  synthBinary,
		ModelPath:   synthModel,
		Seed:        seed,
		Temperature: temperature,
	}, log)
	if synthErr != nil {
		return fmt.Errorf("failed to build synthesizer: %w", synthErr)
	}

	executor := ffmpegcmd.NewRunner()

	renderPipeline := pipeline.New(
		synthesizer,
		guide.NewExtractor(demucsBinary, log),
		nil,
		nil,
		effects.NewEngine(executor, nil, log),
		tempo.NewCorrector(executor, log),
		layers.NewModulator(executor, log),
		preview.NewExtractor(executor, log),
		pipeline.Options{
			OutputRoot:   outputDir,
			StageTimeout: time.Duration(timeoutMins) * time.Minute,
		},
		log,
	)

	lyricsText, lyricsErr := resolveLyrics()
	if lyricsErr != nil {
		return lyricsErr
	}

	payload := core.RenderPayload{
		VoiceID:         voiceID,
		PersonaID:       personaID,
		Lyrics:          lyricsText,
		StylePrompt:     stylePrompt,
		Effects:         core.EffectSettings{Preset: preset},
		GuideTempoRatio: tempoRatio,
		PreviewSeconds:  previewSecs,
		GuidePath:       guidePath,
		GuideUseLyrics:  guideLyrics,
	}

	result, runErr := renderPipeline.Run(cmd.Context(), payload)
	if runErr != nil {
		return fmt.Errorf("render failed: %w", runErr)
	}

	duration, probeErr := executor.ProbeDuration(cmd.Context(), result.FinalPath)
	if probeErr != nil {
		log.Warn("Failed to probe rendered duration: %v", probeErr)
	} else {
		fmt.Fprintf(os.Stderr, "Rendered %s of audio\n", renderutil.FormatDuration(duration))
	}

	encoded, encodeErr := json.MarshalIndent(result, "", "  ")
	if encodeErr != nil {
		return fmt.Errorf("failed to encode result: %w", encodeErr)
	}

	fmt.Println(string(encoded))

	return nil
}

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
