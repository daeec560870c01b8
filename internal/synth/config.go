// Package synth provides the vocal synthesis engines behind the pipeline's
// core.Synthesizer capability: a local subprocess engine and an HTTP engine
// for a standalone synthesis service.
package synth

import (
	"errors"
	"fmt"

	"github.com/book-expert/logger"

	"github.com/book-expert/render-service/internal/core"
)

// Engine selector values for Config.Engine.
const (
	EngineExec = "exec"
	EngineHTTP = "http"
)

// Static errors.
var (
	ErrUnknownEngine   = errors.New("unknown synthesis engine")
	ErrModelPathEmpty  = errors.New("model path cannot be empty")
	ErrServiceURLEmpty = errors.New("service url cannot be empty")
)

// Config selects and parameterizes a synthesis engine.
type Config struct {
	Engine         string
	BinaryPath     string
	ModelPath      string
	ServiceURL     string
	TimeoutSeconds int
	Seed           int
	Temperature    float64
}

// New constructs the synthesizer selected by cfg.Engine.
func New(cfg Config, log *logger.Logger) (core.Synthesizer, error) {
	switch cfg.Engine {
	case EngineExec:
		return NewExecEngine(cfg, log)
	case EngineHTTP:
		return NewHTTPEngine(cfg, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, cfg.Engine)
	}
}
