package core

import "context"

// SynthesisRequest carries everything the synthesis capability needs for one
// vocal take.
type SynthesisRequest struct {
	VoiceModel          string
	Lyrics              string
	Controls            StyleControls
	GuidePath           string
	AccentLock          string
	GuideMatchIntensity float64
}

// SynthesisResult is the raw synthesized vocal buffer and its container
// format (for example "wav").
type SynthesisResult struct {
	Audio  []byte
	Format string
}

// Synthesizer is the opaque, potentially failing synthesis capability. It is
// the only pipeline collaborator whose failure aborts a run.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error)
}

// ObjectStore defines the interface for interacting with a key-value blob
// store holding guide audio and finished artifacts.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// StemExtractor isolates the vocal stem of a guide recording. A failed
// extraction degrades the run instead of aborting it.
type StemExtractor interface {
	ExtractVocals(ctx context.Context, inputPath, outputDir string) (string, error)
}

// Transcriber recovers lyrics from a guide recording.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}
