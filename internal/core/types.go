// Package core defines the shared types and interfaces for the render service.
package core

import (
	"errors"
	"fmt"
)

// Effect engine selectors.
const (
	// EngineBuiltIn selects the local ffmpeg filter chain.
	EngineBuiltIn = "built-in"
)

// Space identifies one of the fixed echo/reverb parameter sets.
type Space string

// Supported reverb spaces, from shortest to longest/densest.
const (
	SpaceDry    Space = "dry"
	SpaceStudio Space = "studio"
	SpaceHall   Space = "hall"
	SpaceArena  Space = "arena"
)

// Knob-table presets. A non-clean knob preset replaces the caller-supplied
// knobs and space/dynamics before chain construction.
const (
	PresetClean   = "clean"
	PresetLush    = "lush"
	PresetVintage = "vintage"
	PresetClub    = "club"
	PresetRaw     = "raw"
)

// Layered modulation presets, applied after the linear chain as multi-branch
// split/transform/mix graphs.
const (
	PresetHarmonicOrbit = "harmonic-orbit"
	PresetPitchWarp     = "pitch-warp"
	PresetShimmerStack  = "shimmer-stack"
	PresetChoirCloud    = "choir-cloud"
	Preset8DSwarm       = "8d-swarm"
)

// Validation errors for render inputs.
var (
	ErrKnobOutOfRange    = errors.New("effect knob must be between 0.0 and 1.0")
	ErrFormantOutOfRange = errors.New("formant must be between -1.0 and 1.0")
	ErrUnknownSpace      = errors.New("unknown reverb space")
	ErrUnknownPreset     = errors.New("unknown effects preset")
	ErrLyricsEmpty       = errors.New("lyrics cannot be empty")
	ErrVoiceEmpty        = errors.New("voice identifier cannot be empty")
)

// IsLayeredPreset reports whether the named preset is one of the five
// multi-branch modulation graphs.
func IsLayeredPreset(name string) bool {
	switch name {
	case PresetHarmonicOrbit, PresetPitchWarp, PresetShimmerStack,
		PresetChoirCloud, Preset8DSwarm:
		return true
	default:
		return false
	}
}

// StyleControls holds the nine bounded vocal timbre controls. All fields are
// in [0,1] except Formant, which is in [-1,1].
type StyleControls struct {
	Brightness   float64 `json:"brightness"`
	Breathiness  float64 `json:"breathiness"`
	Energy       float64 `json:"energy"`
	VibratoDepth float64 `json:"vibratoDepth"`
	VibratoRate  float64 `json:"vibratoRate"`
	Roboticism   float64 `json:"roboticism"`
	Glitch       float64 `json:"glitch"`
	StereoWidth  float64 `json:"stereoWidth"`
	Formant      float64 `json:"formant"`
}

// Validate checks that every control sits inside its documented range.
func (c StyleControls) Validate() error {
	unit := map[string]float64{
		"brightness":   c.Brightness,
		"breathiness":  c.Breathiness,
		"energy":       c.Energy,
		"vibratoDepth": c.VibratoDepth,
		"vibratoRate":  c.VibratoRate,
		"roboticism":   c.Roboticism,
		"glitch":       c.Glitch,
		"stereoWidth":  c.StereoWidth,
	}

	for name, value := range unit {
		if value < 0.0 || value > 1.0 {
			return fmt.Errorf("%w: %s is %f", ErrKnobOutOfRange, name, value)
		}
	}

	if c.Formant < -1.0 || c.Formant > 1.0 {
		return fmt.Errorf("%w: got %f", ErrFormantOutOfRange, c.Formant)
	}

	return nil
}

// ControlOverrides carries caller-supplied controls. Nil fields were not
// supplied; non-nil fields override the resolver-derived value field-wise.
type ControlOverrides struct {
	Brightness   *float64 `json:"brightness,omitempty"`
	Breathiness  *float64 `json:"breathiness,omitempty"`
	Energy       *float64 `json:"energy,omitempty"`
	VibratoDepth *float64 `json:"vibratoDepth,omitempty"`
	VibratoRate  *float64 `json:"vibratoRate,omitempty"`
	Roboticism   *float64 `json:"roboticism,omitempty"`
	Glitch       *float64 `json:"glitch,omitempty"`
	StereoWidth  *float64 `json:"stereoWidth,omitempty"`
	Formant      *float64 `json:"formant,omitempty"`
}

// EffectSettings is the declarative description of the post-processing chain.
type EffectSettings struct {
	Engine         string  `json:"engine"`
	Preset         string  `json:"preset,omitempty"`
	Clarity        float64 `json:"clarity"`
	Air            float64 `json:"air"`
	Drive          float64 `json:"drive"`
	Width          float64 `json:"width"`
	NoiseReduction float64 `json:"noiseReduction"`
	Space          Space   `json:"space"`
	Dynamics       float64 `json:"dynamics"`
	BypassEffects  bool    `json:"bypassEffects"`
}

// Validate checks knob ranges, the space enum, and the preset name. An empty
// space is allowed and treated as dry; an empty preset is allowed and treated
// as clean.
func (s EffectSettings) Validate() error {
	knobs := map[string]float64{
		"clarity":        s.Clarity,
		"air":            s.Air,
		"drive":          s.Drive,
		"width":          s.Width,
		"noiseReduction": s.NoiseReduction,
		"dynamics":       s.Dynamics,
	}

	for name, value := range knobs {
		if value < 0.0 || value > 1.0 {
			return fmt.Errorf("%w: %s is %f", ErrKnobOutOfRange, name, value)
		}
	}

	switch s.Space {
	case "", SpaceDry, SpaceStudio, SpaceHall, SpaceArena:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSpace, s.Space)
	}

	switch s.Preset {
	case "", PresetClean, PresetLush, PresetVintage, PresetClub, PresetRaw:
	default:
		if !IsLayeredPreset(s.Preset) {
			return fmt.Errorf("%w: %q", ErrUnknownPreset, s.Preset)
		}
	}

	return nil
}

// RenderPayload is the immutable input to one pipeline run.
type RenderPayload struct {
	PersonaID           string           `json:"personaId"`
	VoiceID             string           `json:"voiceId"`
	Lyrics              string           `json:"lyrics"`
	StylePrompt         string           `json:"stylePrompt"`
	Controls            ControlOverrides `json:"controls"`
	Effects             EffectSettings   `json:"effects"`
	GuidePath           string           `json:"guidePath,omitempty"`
	GuideUseLyrics      bool             `json:"guideUseLyrics,omitempty"`
	GuideTempoRatio     float64          `json:"guideTempoRatio,omitempty"`
	GuideMatchIntensity float64          `json:"guideMatchIntensity,omitempty"`
	AccentLock          string           `json:"accentLock,omitempty"`
	PreviewSeconds      float64          `json:"previewSeconds,omitempty"`
}

// Validate checks the payload fields the pipeline depends on.
func (p RenderPayload) Validate() error {
	if p.VoiceID == "" {
		return ErrVoiceEmpty
	}

	if p.Lyrics == "" && !p.GuideUseLyrics {
		return ErrLyricsEmpty
	}

	effectsErr := p.Effects.Validate()
	if effectsErr != nil {
		return fmt.Errorf("invalid effect settings: %w", effectsErr)
	}

	return nil
}

// StageOutcome records what happened to one best-effort pipeline stage.
type StageOutcome struct {
	Applied  bool   `json:"applied"`
	Degraded bool   `json:"degraded"`
	Reason   string `json:"reason,omitempty"`
}

// StageSkipped returns an outcome for a stage that was not requested.
func StageSkipped() StageOutcome {
	return StageOutcome{Applied: false, Degraded: false, Reason: ""}
}

// StageApplied returns an outcome for a stage that completed.
func StageApplied() StageOutcome {
	return StageOutcome{Applied: true, Degraded: false, Reason: ""}
}

// StageDegraded returns an outcome for a stage that failed and was bypassed.
func StageDegraded(reason string) StageOutcome {
	return StageOutcome{Applied: false, Degraded: true, Reason: reason}
}

// RenderResult is the externally visible outcome of one pipeline run. Every
// best-effort stage reports its outcome explicitly instead of relying on
// server-side logs.
type RenderResult struct {
	RunID          string        `json:"runId"`
	FinalPath      string        `json:"finalPath"`
	PreviewPath    string        `json:"previewPath,omitempty"`
	Format         string        `json:"format"`
	Controls       StyleControls `json:"controls"`
	EffectsEngine  string        `json:"effectsEngine,omitempty"`
	GuideIngestion StageOutcome  `json:"guideIngestion"`
	LyricsRecovery StageOutcome  `json:"lyricsRecovery"`
	Effects        StageOutcome  `json:"effects"`
	Tempo          StageOutcome  `json:"tempo"`
	Layering       StageOutcome  `json:"layering"`
	Preview        StageOutcome  `json:"preview"`
}

// DegradedStages lists the names of stages that failed and were bypassed.
func (r *RenderResult) DegradedStages() []string {
	var names []string

	stages := []struct {
		name    string
		outcome StageOutcome
	}{
		{"guideIngestion", r.GuideIngestion},
		{"lyricsRecovery", r.LyricsRecovery},
		{"effects", r.Effects},
		{"tempo", r.Tempo},
		{"layering", r.Layering},
		{"preview", r.Preview},
	}

	for _, stage := range stages {
		if stage.outcome.Degraded {
			names = append(names, stage.name)
		}
	}

	return names
}
