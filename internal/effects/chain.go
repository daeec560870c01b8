package effects

import (
	"fmt"
	"strings"

	"github.com/book-expert/render-service/internal/core"
	"github.com/book-expert/render-service/internal/ffmpegcmd"
)

// The chain's filter names and numeric formulas are the wire contract with
// the audio subprocess: compatible implementations must produce bit-identical
// output, so the constants here must not drift.
const (
	// De-esser: narrow notch centered near 7 kHz, fixed -3 dB.
	deEsserFilter = "equalizer=f=7000:t=q:w=4:g=-3"

	clarityCenterHz = 3200
	airShelfHz      = 8000

	compressorThresholdDB = -18
	compressorAttackMs    = 12
	compressorReleaseMs   = 180

	noiseFloorDB     = -25
	noiseStrengthMin = 0.02
	noiseStrengthMax = 0.30
)

// Fixed multi-tap echo parameter sets, progressively longer and denser from
// dry to arena.
var spaceEchoTable = map[core.Space]string{
	core.SpaceDry:    "aecho=0.8:0.9:8:0.06",
	core.SpaceStudio: "aecho=0.8:0.9:40|63:0.28|0.22",
	core.SpaceHall:   "aecho=0.8:0.88:60|110|170:0.4|0.3|0.22",
	core.SpaceArena:  "aecho=0.8:0.88:90|150|250|380:0.45|0.38|0.3|0.22",
}

// ClarityGainDB maps the clarity knob linearly onto the parametric boost
// gain: clarity*8 - 2, giving -2..+6 dB across [0,1].
func ClarityGainDB(clarity float64) float64 {
	return clarity*8.0 - 2.0
}

// AirGainDB maps the air knob onto the high-shelf gain: air*6, 0..6 dB.
func AirGainDB(air float64) float64 {
	return air * 6.0
}

// CompressionRatio maps the dynamics knob onto the compressor ratio:
// 1 + dynamics*3.5, giving 1..4.5.
func CompressionRatio(dynamics float64) float64 {
	return 1.0 + dynamics*3.5
}

// WidthCoefficient maps the width knob onto the stereo coefficient. Width
// below 0.5 narrows linearly toward mono ((width-0.5)*4); width at or above
// 0.5 widens linearly ((width-0.5)*6). 0.5 is neutral.
func WidthCoefficient(width float64) float64 {
	if width < 0.5 {
		return 1.0 + (width-0.5)*4.0
	}

	return 1.0 + (width-0.5)*6.0
}

// NoiseStrength derives the noise-reduction strength from the knob, clamped
// to [0.02, 0.3].
func NoiseStrength(knob float64) float64 {
	strength := knob * noiseStrengthMax
	if strength < noiseStrengthMin {
		return noiseStrengthMin
	}

	if strength > noiseStrengthMax {
		return noiseStrengthMax
	}

	return strength
}

// BuildChain constructs the single ordered built-in filter chain for the
// given (preset-resolved) settings. The stage order is fixed: resample,
// de-ess, clarity, air, compression, width, noise reduction, space echo.
func BuildChain(settings core.EffectSettings) string {
	space := settings.Space
	if space == "" {
		space = core.SpaceDry
	}

	stages := []string{
		fmt.Sprintf("aresample=%d", ffmpegcmd.CanonicalSampleRate),
		deEsserFilter,
		fmt.Sprintf(
			"equalizer=f=%d:t=q:w=1:g=%.2f",
			clarityCenterHz,
			ClarityGainDB(settings.Clarity),
		),
		fmt.Sprintf("highshelf=f=%d:g=%.2f", airShelfHz, AirGainDB(settings.Air)),
		fmt.Sprintf(
			"acompressor=threshold=%ddB:ratio=%.2f:attack=%d:release=%d",
			compressorThresholdDB,
			CompressionRatio(settings.Dynamics),
			compressorAttackMs,
			compressorReleaseMs,
		),
		fmt.Sprintf("extrastereo=m=%.2f", WidthCoefficient(settings.Width)),
		fmt.Sprintf(
			"afftdn=nf=%d:nr=%.2f",
			noiseFloorDB,
			NoiseStrength(settings.NoiseReduction),
		),
		spaceEchoTable[space],
	}

	return strings.Join(stages, ",")
}
