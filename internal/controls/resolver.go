// Package controls derives the nine bounded style controls from a free-text
// style prompt and merges explicit caller overrides on top.
package controls

import (
	"github.com/book-expert/render-service/internal/core"
)

// Per-control hash offsets. Distinct offsets keep the derived controls
// decorrelated for distinct prompts; changing them changes the rendered
// output for every prompt, so they are part of the wire contract.
const (
	offsetBrightness   = 17
	offsetBreathiness  = 29
	offsetEnergy       = 41
	offsetVibratoDepth = 53
	offsetVibratoRate  = 67
	offsetRoboticism   = 79
	offsetGlitch       = 97
	offsetStereoWidth  = 113
	offsetFormant      = 131
)

const hashModulus = 100

// PromptHash sums the character codes of the prompt string. The empty prompt
// hashes to zero, which yields the offset-only defaults.
func PromptHash(prompt string) int {
	sum := 0
	for _, r := range prompt {
		sum += int(r)
	}

	return sum
}

// Resolve maps a style prompt to a full set of controls. The derivation is
// deterministic: each control is ((hash+offset) mod 100)/100, and formant is
// rescaled to [-1,1].
func Resolve(prompt string) core.StyleControls {
	hash := PromptHash(prompt)

	derive := func(offset int) float64 {
		return float64((hash+offset)%hashModulus) / float64(hashModulus)
	}

	return core.StyleControls{
		Brightness:   derive(offsetBrightness),
		Breathiness:  derive(offsetBreathiness),
		Energy:       derive(offsetEnergy),
		VibratoDepth: derive(offsetVibratoDepth),
		VibratoRate:  derive(offsetVibratoRate),
		Roboticism:   derive(offsetRoboticism),
		Glitch:       derive(offsetGlitch),
		StereoWidth:  derive(offsetStereoWidth),
		Formant:      derive(offsetFormant)*2.0 - 1.0,
	}
}

// Merge applies explicit overrides on top of resolver-derived controls.
// Overrides win field by field; unset fields keep the derived value. There is
// no blending.
func Merge(derived core.StyleControls, overrides core.ControlOverrides) core.StyleControls {
	merged := derived

	apply := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}

	apply(&merged.Brightness, overrides.Brightness)
	apply(&merged.Breathiness, overrides.Breathiness)
	apply(&merged.Energy, overrides.Energy)
	apply(&merged.VibratoDepth, overrides.VibratoDepth)
	apply(&merged.VibratoRate, overrides.VibratoRate)
	apply(&merged.Roboticism, overrides.Roboticism)
	apply(&merged.Glitch, overrides.Glitch)
	apply(&merged.StereoWidth, overrides.StereoWidth)
	apply(&merged.Formant, overrides.Formant)

	return merged
}

// ResolveWithOverrides is the full control-resolution stage: derive from the
// prompt, then let explicit values win.
func ResolveWithOverrides(prompt string, overrides core.ControlOverrides) core.StyleControls {
	return Merge(Resolve(prompt), overrides)
}
