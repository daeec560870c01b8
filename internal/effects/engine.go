package effects

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/render-service/internal/arena"
	"github.com/book-expert/render-service/internal/core"
	"github.com/book-expert/render-service/internal/ffmpegcmd"
	"github.com/book-expert/render-service/internal/renderutil"
)

const (
	filePermissions = 0o600

	builtInSuffix   = "hq"
	normalizeSuffix = "norm"
)

// Strategy names surfaced in outcomes.
const (
	strategyDelegated   = "delegated"
	strategyBuiltIn     = "built-in"
	strategyNormalize   = "normalize"
	strategyPassthrough = "passthrough"
)

// Outcome is the structured result of the effects stage. Expected fallbacks
// flow through here instead of through control-flow errors.
type Outcome struct {
	Path     string
	Engine   string
	Applied  bool
	Degraded bool
	Reason   string
}

// Delegate is the delegated-effects capability consumed by the engine.
type Delegate interface {
	Process(
		ctx context.Context,
		inputPath string,
		settings core.EffectSettings,
		previewSeconds float64,
	) ([]byte, error)
}

// strategy is one prioritized way of producing the effects artifact.
type strategy struct {
	name string
	run  func(ctx context.Context) (string, error)
}

// Engine applies the effects stage: delegated service first when requested,
// then the built-in chain, then a minimal normalization pass, then
// passthrough. It never returns an error; failures degrade.
type Engine struct {
	executor ffmpegcmd.Executor
	delegate Delegate
	log      *logger.Logger
}

// NewEngine creates an effects engine. The delegate may be nil when no
// delegated service is configured.
func NewEngine(executor ffmpegcmd.Executor, delegate Delegate, log *logger.Logger) *Engine {
	return &Engine{
		executor: executor,
		delegate: delegate,
		log:      log,
	}
}

// Apply runs the effects stage over the input file and reports what happened.
func (e *Engine) Apply(
	ctx context.Context,
	inputPath string,
	settings core.EffectSettings,
	previewSeconds float64,
) Outcome {
	if settings.BypassEffects {
		return Outcome{
			Path:     inputPath,
			Engine:   "",
			Applied:  false,
			Degraded: false,
			Reason:   "bypass requested",
		}
	}

	resolved := ResolvePreset(settings)

	strategies := e.buildStrategies(inputPath, resolved, previewSeconds)

	var failures []string

	for _, candidate := range strategies {
		outputPath, runErr := candidate.run(ctx)
		if runErr != nil {
			e.log.Warn("Effects strategy %s failed: %v", candidate.name, runErr)
			failures = append(failures, candidate.name+": "+runErr.Error())

			continue
		}

		return Outcome{
			Path:     outputPath,
			Engine:   candidate.name,
			Applied:  candidate.name != strategyNormalize,
			Degraded: candidate.name == strategyNormalize,
			Reason:   strings.Join(failures, "; "),
		}
	}

	return Outcome{
		Path:     inputPath,
		Engine:   strategyPassthrough,
		Applied:  false,
		Degraded: true,
		Reason:   strings.Join(failures, "; "),
	}
}

func (e *Engine) buildStrategies(
	inputPath string,
	resolved core.EffectSettings,
	previewSeconds float64,
) []strategy {
	var strategies []strategy

	if e.delegate != nil && resolved.Engine != "" && resolved.Engine != core.EngineBuiltIn {
		strategies = append(strategies, strategy{
			name: strategyDelegated,
			run: func(ctx context.Context) (string, error) {
				return e.runDelegated(ctx, inputPath, resolved, previewSeconds)
			},
		})
	}

	strategies = append(strategies,
		strategy{
			name: strategyBuiltIn,
			run: func(ctx context.Context) (string, error) {
				return e.runBuiltIn(ctx, inputPath, resolved)
			},
		},
		strategy{
			name: strategyNormalize,
			run: func(ctx context.Context) (string, error) {
				return e.runNormalize(ctx, inputPath)
			},
		},
	)

	return strategies
}

func (e *Engine) runDelegated(
	ctx context.Context,
	inputPath string,
	resolved core.EffectSettings,
	previewSeconds float64,
) (string, error) {
	audioData, processErr := e.delegate.Process(ctx, inputPath, resolved, previewSeconds)
	if processErr != nil {
		return "", processErr
	}

	outputPath := arena.StagePath(inputPath, renderutil.SanitizeSuffix(resolved.Engine))

	writeErr := os.WriteFile(outputPath, audioData, filePermissions)
	if writeErr != nil {
		return "", fmt.Errorf("failed to write delegated effects output: %w", writeErr)
	}

	return outputPath, nil
}

func (e *Engine) runBuiltIn(
	ctx context.Context,
	inputPath string,
	resolved core.EffectSettings,
) (string, error) {
	outputPath := arena.StagePath(inputPath, builtInSuffix)

	chain := BuildChain(resolved)

	filterErr := e.executor.Filter(ctx, inputPath, outputPath, chain)
	if filterErr != nil {
		return "", filterErr
	}

	return outputPath, nil
}

func (e *Engine) runNormalize(ctx context.Context, inputPath string) (string, error) {
	outputPath := arena.StagePath(inputPath, normalizeSuffix)

	normalizeErr := e.executor.Normalize(ctx, inputPath, outputPath)
	if normalizeErr != nil {
		return "", normalizeErr
	}

	return outputPath, nil
}
