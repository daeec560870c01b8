// Package effects builds and applies the post-synthesis filter chain: preset
// resolution, the ordered built-in ffmpeg chain, and delegation to an
// external effects service with structured fallback.
package effects

import "github.com/book-expert/render-service/internal/core"

// presetTable holds the fixed knob values for the named knob presets. When a
// preset other than clean is selected, these values replace the
// caller-supplied knobs and space/dynamics before chain construction; the
// caller values for those fields are discarded, not blended.
var presetTable = map[string]core.EffectSettings{
	core.PresetLush: {
		Clarity:        0.65,
		Air:            0.75,
		Drive:          0.10,
		Width:          0.85,
		NoiseReduction: 0.50,
		Space:          core.SpaceStudio,
		Dynamics:       0.55,
	},
	core.PresetVintage: {
		Clarity:        0.40,
		Air:            0.30,
		Drive:          0.35,
		Width:          0.45,
		NoiseReduction: 0.20,
		Space:          core.SpaceHall,
		Dynamics:       0.50,
	},
	core.PresetClub: {
		Clarity:        0.80,
		Air:            0.60,
		Drive:          0.25,
		Width:          0.80,
		NoiseReduction: 0.30,
		Space:          core.SpaceArena,
		Dynamics:       0.70,
	},
	core.PresetRaw: {
		Clarity:        0.35,
		Air:            0.20,
		Drive:          0.10,
		Width:          0.50,
		NoiseReduction: 0.10,
		Space:          core.SpaceDry,
		Dynamics:       0.40,
	},
}

// ResolvePreset returns the settings with any knob-preset table applied.
// Clean, unset, and layered presets leave the caller knobs untouched; the
// layered presets only select a modulation graph downstream.
func ResolvePreset(settings core.EffectSettings) core.EffectSettings {
	table, ok := presetTable[settings.Preset]
	if !ok {
		return settings
	}

	resolved := settings
	resolved.Clarity = table.Clarity
	resolved.Air = table.Air
	resolved.Drive = table.Drive
	resolved.Width = table.Width
	resolved.NoiseReduction = table.NoiseReduction
	resolved.Space = table.Space
	resolved.Dynamics = table.Dynamics

	return resolved
}
