// Package ffmpegcmd executes the audio subprocess for every DSP stage. The
// stages describe their work as filter-graph strings; this package turns them
// into ffmpeg invocations with a hard per-call timeout so a hung subprocess
// cannot stall a render indefinitely.
package ffmpegcmd

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	ffmpego "github.com/u2takey/ffmpeg-go"
)

// CanonicalSampleRate is the sample rate every chain resamples to.
const CanonicalSampleRate = 48000

// Built-in chain output codec: 24-bit PCM.
const outputCodec = "pcm_s24le"

const stderrTailLimit = 512

// Executor is the subprocess boundary the DSP stages depend on. Tests swap in
// a recording fake; production uses Runner.
type Executor interface {
	// Filter runs a linear -af chain over inputPath into outputPath.
	Filter(ctx context.Context, inputPath, outputPath, chain string) error

	// FilterComplex runs a branching -filter_complex graph whose final mix
	// is labelled [out].
	FilterComplex(ctx context.Context, inputPath, outputPath, graph string) error

	// CopyTrim trims the first seconds of inputPath without re-encoding.
	CopyTrim(ctx context.Context, inputPath, outputPath string, seconds float64) error

	// Normalize performs the minimal format-normalization pass used as the
	// last resort before passthrough.
	Normalize(ctx context.Context, inputPath, outputPath string) error
}

// Runner is the production Executor backed by the ffmpeg binary.
type Runner struct{}

// NewRunner creates a Runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Filter implements Executor.
func (r *Runner) Filter(ctx context.Context, inputPath, outputPath, chain string) error {
	stream := ffmpego.Input(inputPath).
		Output(outputPath, ffmpego.KwArgs{
			"af":  chain,
			"c:a": outputCodec,
		})

	return r.run(ctx, stream, "filter chain")
}

// FilterComplex implements Executor.
func (r *Runner) FilterComplex(ctx context.Context, inputPath, outputPath, graph string) error {
	stream := ffmpego.Input(inputPath).
		Output(outputPath, ffmpego.KwArgs{
			"filter_complex": graph,
			"map":            "[out]",
			"c:a":            outputCodec,
		})

	return r.run(ctx, stream, "filter graph")
}

// CopyTrim implements Executor.
func (r *Runner) CopyTrim(ctx context.Context, inputPath, outputPath string, seconds float64) error {
	stream := ffmpego.Input(inputPath).
		Output(outputPath, ffmpego.KwArgs{
			"t": strconv.FormatFloat(seconds, 'f', 2, 64),
			"c": "copy",
		})

	return r.run(ctx, stream, "stream-copy trim")
}

// Normalize implements Executor.
func (r *Runner) Normalize(ctx context.Context, inputPath, outputPath string) error {
	stream := ffmpego.Input(inputPath).
		Output(outputPath, ffmpego.KwArgs{
			"ar":  strconv.Itoa(CanonicalSampleRate),
			"c:a": outputCodec,
		})

	return r.run(ctx, stream, "format normalization")
}

// ProbeDuration returns the duration of an audio file in seconds.
func (r *Runner) ProbeDuration(ctx context.Context, path string) (float64, error) {
	// #nosec G204 -- the path comes from a run arena this service created
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	output, probeErr := cmd.CombinedOutput()
	if probeErr != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w", path, probeErr)
	}

	duration, parseErr := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if parseErr != nil {
		return 0, fmt.Errorf("failed to parse ffprobe duration: %w", parseErr)
	}

	return duration, nil
}

// run compiles the assembled stream to a command, executes it, and kills the
// subprocess if the stage context expires first.
func (r *Runner) run(ctx context.Context, stream *ffmpego.Stream, description string) error {
	cmd := stream.OverWriteOutput().Compile()

	var stderr bytes.Buffer

	cmd.Stdout = nil
	cmd.Stderr = &stderr

	startErr := cmd.Start()
	if startErr != nil {
		return fmt.Errorf("failed to start ffmpeg for %s: %w", description, startErr)
	}

	done := make(chan error, 1)

	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-ctx.Done():
		killErr := cmd.Process.Kill()
		<-done

		if killErr != nil {
			return fmt.Errorf(
				"%s cancelled and ffmpeg could not be killed: %w",
				description,
				killErr,
			)
		}

		return fmt.Errorf("%s cancelled: %w", description, ctx.Err())
	case waitErr := <-done:
		if waitErr != nil {
			return fmt.Errorf(
				"%s failed: %w - stderr: %s",
				description,
				waitErr,
				stderrTail(stderr.String()),
			)
		}
	}

	return nil
}

// stderrTail keeps error messages bounded; ffmpeg is talkative and only the
// end of its stderr names the actual failure.
func stderrTail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= stderrTailLimit {
		return s
	}

	return "..." + s[len(s)-stderrTailLimit:]
}
