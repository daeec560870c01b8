// Package controls_test tests style-control resolution and override merging.
package controls_test

import (
	"testing"

	"github.com/book-expert/render-service/internal/controls"
	"github.com/book-expert/render-service/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptHash(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, controls.PromptHash(""))
	assert.Equal(t, 101, controls.PromptHash("e"))
	assert.Equal(t, int('h')+int('i'), controls.PromptHash("hi"))
}

func TestResolve_IsDeterministic(t *testing.T) {
	t.Parallel()

	first := controls.Resolve("warm breathy ballad")
	second := controls.Resolve("warm breathy ballad")

	assert.Equal(t, first, second)
}

func TestResolve_KnownPrompt(t *testing.T) {
	t.Parallel()

	// "e" hashes to 101; each control is ((101+offset) mod 100)/100.
	got := controls.Resolve("e")

	assert.InDelta(t, 0.18, got.Brightness, 1e-9)
	assert.InDelta(t, 0.30, got.Breathiness, 1e-9)
	assert.InDelta(t, 0.42, got.Energy, 1e-9)
	assert.InDelta(t, 0.54, got.VibratoDepth, 1e-9)
	assert.InDelta(t, 0.68, got.VibratoRate, 1e-9)
	assert.InDelta(t, 0.80, got.Roboticism, 1e-9)
	assert.InDelta(t, 0.98, got.Glitch, 1e-9)
	assert.InDelta(t, 0.14, got.StereoWidth, 1e-9)
	assert.InDelta(t, 0.32*2.0-1.0, got.Formant, 1e-9)
}

func TestResolve_ControlsAreBounded(t *testing.T) {
	t.Parallel()

	prompts := []string{"", "e", "hello", "an extremely long prompt with punctuation!?"}

	for _, prompt := range prompts {
		got := controls.Resolve(prompt)

		validateErr := got.Validate()
		require.NoError(t, validateErr, "prompt %q produced out-of-range controls", prompt)
	}
}

func TestMerge_ExplicitWinsFieldwise(t *testing.T) {
	t.Parallel()

	derived := controls.Resolve("e")

	energy := 0.9
	formant := -0.5
	overrides := core.ControlOverrides{
		Energy:  &energy,
		Formant: &formant,
	}

	merged := controls.Merge(derived, overrides)

	assert.InDelta(t, 0.9, merged.Energy, 1e-9)
	assert.InDelta(t, -0.5, merged.Formant, 1e-9)

	// Unset fields keep the derived values.
	assert.InDelta(t, derived.Brightness, merged.Brightness, 1e-9)
	assert.InDelta(t, derived.Glitch, merged.Glitch, 1e-9)
}

func TestResolveWithOverrides_EmptyOverridesKeepDerivation(t *testing.T) {
	t.Parallel()

	merged := controls.ResolveWithOverrides("e", core.ControlOverrides{})

	assert.Equal(t, controls.Resolve("e"), merged)
}

func TestMerge_ZeroOverrideIsNotUnset(t *testing.T) {
	t.Parallel()

	zero := 0.0
	merged := controls.Merge(controls.Resolve("e"), core.ControlOverrides{Glitch: &zero})

	assert.InDelta(t, 0.0, merged.Glitch, 1e-9)
}
