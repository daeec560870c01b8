// Package pipeline sequences one render run: guide ingestion, lyrics
// resolution, control resolution, synthesis dispatch, effects, tempo
// correction, layered modulation, and preview extraction. Synthesis is the
// only stage whose failure aborts the run; every stage after it degrades to
// the last good file and reports the degradation in the result.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/render-service/internal/arena"
	"github.com/book-expert/render-service/internal/controls"
	"github.com/book-expert/render-service/internal/core"
	"github.com/book-expert/render-service/internal/effects"
	"github.com/book-expert/render-service/internal/layers"
	"github.com/book-expert/render-service/internal/preview"
	"github.com/book-expert/render-service/internal/tempo"
	"github.com/book-expert/render-service/internal/voices"
)

const (
	filePermissions = 0o600

	defaultStageTimeout = 2 * time.Minute
)

// Options parameterizes a pipeline.
type Options struct {
	// OutputRoot is the directory run arenas are created under.
	OutputRoot string

	// StageTimeout bounds each best-effort stage individually, so one hung
	// subprocess cannot consume the whole render deadline.
	StageTimeout time.Duration
}

// Pipeline renders one vocal take per Run call. It is safe for concurrent
// use; every run works inside its own arena.
type Pipeline struct {
	synthesizer  core.Synthesizer
	stems        core.StemExtractor
	transcriber  core.Transcriber
	voiceCache   *voices.Cache
	effects      *effects.Engine
	tempo        *tempo.Corrector
	layers       *layers.Modulator
	preview      *preview.Extractor
	log          *logger.Logger
	outputRoot   string
	stageTimeout time.Duration
}

// New creates a pipeline. The stem extractor and transcriber may be nil when
// guide ingestion and lyrics recovery are not configured; renders then skip
// or degrade those stages.
func New(
	synthesizer core.Synthesizer,
	stems core.StemExtractor,
	transcriber core.Transcriber,
	voiceCache *voices.Cache,
	effectsEngine *effects.Engine,
	tempoCorrector *tempo.Corrector,
	layeredModulator *layers.Modulator,
	previewExtractor *preview.Extractor,
	opts Options,
	log *logger.Logger,
) *Pipeline {
	stageTimeout := opts.StageTimeout
	if stageTimeout <= 0 {
		stageTimeout = defaultStageTimeout
	}

	return &Pipeline{
		synthesizer:  synthesizer,
		stems:        stems,
		transcriber:  transcriber,
		voiceCache:   voiceCache,
		effects:      effectsEngine,
		tempo:        tempoCorrector,
		layers:       layeredModulator,
		preview:      previewExtractor,
		log:          log,
		outputRoot:   opts.OutputRoot,
		stageTimeout: stageTimeout,
	}
}

// Run renders one take from the payload and reports the final artifact path
// plus the outcome of every best-effort stage.
func (p *Pipeline) Run(
	ctx context.Context,
	payload core.RenderPayload,
) (*core.RenderResult, error) {
	validateErr := payload.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("invalid render payload: %w", validateErr)
	}

	run, runErr := arena.New(p.outputRoot)
	if runErr != nil {
		return nil, runErr
	}

	result := &core.RenderResult{
		RunID:          run.RunID,
		GuideIngestion: core.StageSkipped(),
		LyricsRecovery: core.StageSkipped(),
		Effects:        core.StageSkipped(),
		Tempo:          core.StageSkipped(),
		Layering:       core.StageSkipped(),
		Preview:        core.StageSkipped(),
	}

	guidePath := p.ingestGuide(ctx, payload, run, result)

	lyrics, lyricsErr := p.resolveLyrics(ctx, payload, guidePath, result)
	if lyricsErr != nil {
		return nil, lyricsErr
	}

	resolved := controls.ResolveWithOverrides(payload.StylePrompt, payload.Controls)
	result.Controls = resolved

	currentPath, synthErr := p.synthesize(ctx, payload, run, resolved, lyrics, guidePath, result)
	if synthErr != nil {
		return nil, synthErr
	}

	currentPath = p.applyEffects(ctx, payload, currentPath, result)
	currentPath = p.correctTempo(ctx, payload, currentPath, result)
	currentPath = p.applyLayers(ctx, payload, currentPath, result)
	p.extractPreview(ctx, payload, currentPath, result)

	result.FinalPath = currentPath

	p.log.Info(
		"Render %s complete: %s (degraded: %v)",
		run.RunID, currentPath, result.DegradedStages(),
	)

	return result, nil
}

// ingestGuide isolates the guide's vocal stem when guide audio was supplied.
// Failure keeps the raw guide recording and degrades the stage.
func (p *Pipeline) ingestGuide(
	ctx context.Context,
	payload core.RenderPayload,
	run *arena.Arena,
	result *core.RenderResult,
) string {
	if payload.GuidePath == "" {
		return ""
	}

	if p.stems == nil {
		return payload.GuidePath
	}

	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	stemPath, extractErr := p.stems.ExtractVocals(stageCtx, payload.GuidePath, run.Dir)
	if extractErr != nil {
		p.log.Warn("Guide ingestion degraded: %v", extractErr)
		result.GuideIngestion = core.StageDegraded(extractErr.Error())

		return payload.GuidePath
	}

	result.GuideIngestion = core.StageApplied()

	return stemPath
}

// resolveLyrics picks the lyrics for synthesis. Explicit lyrics win; guide
// transcription replaces them only when requested and successful. A failed
// recovery with no explicit fallback is fatal.
func (p *Pipeline) resolveLyrics(
	ctx context.Context,
	payload core.RenderPayload,
	guidePath string,
	result *core.RenderResult,
) (string, error) {
	if !payload.GuideUseLyrics {
		return payload.Lyrics, nil
	}

	if p.transcriber == nil || guidePath == "" {
		if payload.Lyrics == "" {
			return "", fmt.Errorf(
				"lyrics recovery requested without guide audio: %w",
				core.ErrLyricsEmpty,
			)
		}

		result.LyricsRecovery = core.StageDegraded("no guide audio or transcriber available")

		return payload.Lyrics, nil
	}

	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	recovered, transcribeErr := p.transcriber.Transcribe(stageCtx, guidePath)
	if transcribeErr != nil {
		if payload.Lyrics == "" {
			return "", fmt.Errorf("lyrics recovery failed with no explicit lyrics: %w", transcribeErr)
		}

		p.log.Warn("Lyrics recovery degraded, keeping explicit lyrics: %v", transcribeErr)
		result.LyricsRecovery = core.StageDegraded(transcribeErr.Error())

		return payload.Lyrics, nil
	}

	result.LyricsRecovery = core.StageApplied()

	return recovered, nil
}

// synthesize dispatches the take to the synthesis engine and writes the raw
// audio into the run arena. This is the only fatal stage after validation.
func (p *Pipeline) synthesize(
	ctx context.Context,
	payload core.RenderPayload,
	run *arena.Arena,
	resolved core.StyleControls,
	lyrics, guidePath string,
	result *core.RenderResult,
) (string, error) {
	voiceModel := payload.VoiceID

	if p.voiceCache != nil {
		model, resolveErr := p.voiceCache.Resolve(ctx, payload.PersonaID, payload.VoiceID)
		if resolveErr != nil {
			return "", fmt.Errorf("voice resolution failed: %w", resolveErr)
		}

		voiceModel = model.ModelRef
	}

	synthesis, synthErr := p.synthesizer.Synthesize(ctx, core.SynthesisRequest{
		VoiceModel:          voiceModel,
		Lyrics:              lyrics,
		Controls:            resolved,
		GuidePath:           guidePath,
		AccentLock:          payload.AccentLock,
		GuideMatchIntensity: payload.GuideMatchIntensity,
	})
	if synthErr != nil {
		return "", fmt.Errorf("synthesis failed: %w", synthErr)
	}

	basePath := run.BasePath(synthesis.Format)

	writeErr := os.WriteFile(basePath, synthesis.Audio, filePermissions)
	if writeErr != nil {
		return "", fmt.Errorf("failed to write synthesized take: %w", writeErr)
	}

	result.Format = synthesis.Format

	return basePath, nil
}

func (p *Pipeline) applyEffects(
	ctx context.Context,
	payload core.RenderPayload,
	currentPath string,
	result *core.RenderResult,
) string {
	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	outcome := p.effects.Apply(stageCtx, currentPath, payload.Effects, payload.PreviewSeconds)

	result.Effects = core.StageOutcome{
		Applied:  outcome.Applied,
		Degraded: outcome.Degraded,
		Reason:   outcome.Reason,
	}
	result.EffectsEngine = outcome.Engine

	return outcome.Path
}

func (p *Pipeline) correctTempo(
	ctx context.Context,
	payload core.RenderPayload,
	currentPath string,
	result *core.RenderResult,
) string {
	if payload.GuideTempoRatio == 0 {
		return currentPath
	}

	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	outputPath, applied, tempoErr := p.tempo.Apply(stageCtx, currentPath, payload.GuideTempoRatio)
	if tempoErr != nil {
		p.log.Warn("Tempo correction degraded: %v", tempoErr)
		result.Tempo = core.StageDegraded(tempoErr.Error())

		return currentPath
	}

	if applied {
		result.Tempo = core.StageApplied()
	}

	return outputPath
}

func (p *Pipeline) applyLayers(
	ctx context.Context,
	payload core.RenderPayload,
	currentPath string,
	result *core.RenderResult,
) string {
	if !core.IsLayeredPreset(payload.Effects.Preset) {
		return currentPath
	}

	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	outputPath, applied, layerErr := p.layers.Apply(stageCtx, currentPath, payload.Effects.Preset)
	if layerErr != nil {
		p.log.Warn("Layered modulation degraded: %v", layerErr)
		result.Layering = core.StageDegraded(layerErr.Error())

		return currentPath
	}

	if applied {
		result.Layering = core.StageApplied()
	}

	return outputPath
}

func (p *Pipeline) extractPreview(
	ctx context.Context,
	payload core.RenderPayload,
	currentPath string,
	result *core.RenderResult,
) {
	if payload.PreviewSeconds <= 0 {
		return
	}

	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()

	previewPath, applied, previewErr := p.preview.Extract(
		stageCtx, currentPath, payload.PreviewSeconds)
	if previewErr != nil {
		p.log.Warn("Preview extraction degraded: %v", previewErr)
		result.Preview = core.StageDegraded(previewErr.Error())

		return
	}

	if applied {
		result.Preview = core.StageApplied()
		result.PreviewPath = previewPath
	}
}
