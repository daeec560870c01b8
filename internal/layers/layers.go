// Package layers applies the multi-branch modulation presets. Each preset
// splits the signal, transforms every branch independently, and mixes the
// branches back down through a single ffmpeg filter_complex graph.
package layers

import (
	"context"
	"fmt"

	"github.com/book-expert/logger"

	"github.com/book-expert/render-service/internal/arena"
	"github.com/book-expert/render-service/internal/core"
	"github.com/book-expert/render-service/internal/ffmpegcmd"
)

// Pitch shifting is done by resampling: asetrate raises or lowers pitch and
// tempo together, and the aresample back to the canonical rate keeps the
// downstream stages on one clock.
const (
	rateUp2   = "asetrate=48000*1.02,aresample=48000"
	rateUp3   = "asetrate=48000*1.03,aresample=48000"
	rateUp5   = "asetrate=48000*1.05,aresample=48000"
	rateUp6   = "asetrate=48000*1.06,aresample=48000"
	rateDown2 = "asetrate=48000*0.98,aresample=48000"
	rateDown3 = "asetrate=48000*0.97,aresample=48000"
	rateDown6 = "asetrate=48000*0.94,aresample=48000"
)

type presetGraph struct {
	graph  string
	suffix string
}

// presetGraphs holds one complete filter_complex graph per layered preset.
// All graphs terminate in an unnormalized amix labelled [out] so the branch
// gains set the blend directly.
var presetGraphs = map[string]presetGraph{
	core.PresetHarmonicOrbit: {
		suffix: "orbit",
		graph: "[0:a]asplit=3[ha][hb][hc];" +
			"[ha]" + rateUp3 + ",pan=stereo|c0=0.85*c0|c1=0.35*c1[hup];" +
			"[hb]" + rateDown3 + ",pan=stereo|c0=0.35*c0|c1=0.85*c1[hdown];" +
			"[hc]aphaser=in_gain=0.4:out_gain=0.74:delay=3.0:speed=0.5,volume=0.6[hph];" +
			"[hup][hdown][hph]amix=inputs=3:normalize=0[out]",
	},
	core.PresetPitchWarp: {
		suffix: "warp",
		graph: "[0:a]asplit=2[wa][wb];" +
			"[wa]" + rateUp5 + ",chorus=0.6:0.9:50|60|40:0.4|0.32|0.3:0.25|0.4|0.3:2|2.3|1.3[wup];" +
			"[wb]" + rateDown6 + ",apulsator=hz=0.9[wdown];" +
			"[wup][wdown]amix=inputs=2:normalize=0[out]",
	},
	core.PresetShimmerStack: {
		suffix: "shimmer",
		graph: "[0:a]asplit=2[sa][sb];" +
			"[sa]highpass=f=500,lowpass=f=8000,atempo=0.97,volume=0.8[sband];" +
			"[sb]" + rateUp2 + ",aecho=0.8:0.88:120|240:0.3|0.2,volume=0.6[sshine];" +
			"[sband][sshine]amix=inputs=2:normalize=0[out]",
	},
	core.PresetChoirCloud: {
		suffix: "choir",
		graph: "[0:a]asplit=4[ca][cb][cc][cd];" +
			"[ca]" + rateUp6 + ",pan=stereo|c0=0.7*c0|c1=0.3*c1[chi];" +
			"[cb]" + rateDown6 + ",pan=stereo|c0=0.3*c0|c1=0.7*c1[clo];" +
			"[cc]aecho=0.8:0.88:250|400:0.35|0.25,volume=0.5[cverb];" +
			"[cd]aecho=0.8:0.9:40|70:0.3|0.25,volume=0.4[ctap];" +
			"[chi][clo][cverb][ctap]amix=inputs=4:normalize=0[out]",
	},
	core.Preset8DSwarm: {
		suffix: "swarm",
		graph: "[0:a]asplit=3[da][db][dc];" +
			"[da]aphaser=in_gain=0.4:out_gain=0.74:speed=0.6,pan=stereo|c0=0.9*c0|c1=0.2*c1[dright];" +
			"[db]" + rateUp2 + ",apulsator=hz=0.5:width=1,pan=stereo|c0=0.2*c0|c1=0.9*c1[dleft];" +
			"[dc]" + rateDown2 + ",flanger,pan=stereo|c0=0.6*c0|c1=0.6*c1[dmid];" +
			"[dright][dleft][dmid]amix=inputs=3:normalize=0[out]",
	},
}

// Graph returns the filter_complex graph and stage suffix for a layered
// preset name.
func Graph(preset string) (string, string, error) {
	entry, ok := presetGraphs[preset]
	if !ok {
		return "", "", fmt.Errorf("layered preset %q: %w", preset, core.ErrUnknownPreset)
	}

	return entry.graph, entry.suffix, nil
}

// Modulator runs layered preset graphs as a best-effort pipeline stage.
type Modulator struct {
	executor ffmpegcmd.Executor
	log      *logger.Logger
}

// NewModulator creates a modulator backed by the given executor.
func NewModulator(executor ffmpegcmd.Executor, log *logger.Logger) *Modulator {
	return &Modulator{
		executor: executor,
		log:      log,
	}
}

// Apply runs the named preset's graph over inputPath, writing a new stage
// file into the run arena. On graph failure the pre-layer path is returned
// with the error so the caller can degrade instead of abort.
func (m *Modulator) Apply(
	ctx context.Context,
	inputPath string,
	preset string,
) (string, bool, error) {
	graph, suffix, graphErr := Graph(preset)
	if graphErr != nil {
		return inputPath, false, graphErr
	}

	outputPath := arena.StagePath(inputPath, suffix)

	execErr := m.executor.FilterComplex(ctx, inputPath, outputPath, graph)
	if execErr != nil {
		return inputPath, false, fmt.Errorf("apply layered preset %q: %w", preset, execErr)
	}

	m.log.Info("Layered preset applied: %s -> %s", preset, outputPath)

	return outputPath, true, nil
}
