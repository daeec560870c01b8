// Package synth_test verifies synthesis engine selection and wire behavior.
package synth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/render-service/internal/core"
	"github.com/book-expert/render-service/internal/synth"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, logErr := logger.New(t.TempDir(), "synth-test.log")
	require.NoError(t, logErr)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func TestNew_SelectsEngine(t *testing.T) {
	t.Parallel()

	log := testLogger(t)

	execEngine, execErr := synth.New(synth.Config{
		Engine:    synth.EngineExec,
		ModelPath: "/models/voice.onnx",
	}, log)
	require.NoError(t, execErr)
	assert.IsType(t, &synth.ExecEngine{}, execEngine)

	httpEngine, httpErr := synth.New(synth.Config{
		Engine:     synth.EngineHTTP,
		ServiceURL: "http://localhost:9000",
	}, log)
	require.NoError(t, httpErr)
	assert.IsType(t, &synth.HTTPEngine{}, httpEngine)

	_, unknownErr := synth.New(synth.Config{Engine: "quantum"}, log)
	require.ErrorIs(t, unknownErr, synth.ErrUnknownEngine)
}

func TestNew_ValidatesEngineConfig(t *testing.T) {
	t.Parallel()

	log := testLogger(t)

	_, execErr := synth.New(synth.Config{Engine: synth.EngineExec}, log)
	require.ErrorIs(t, execErr, synth.ErrModelPathEmpty)

	_, httpErr := synth.New(synth.Config{Engine: synth.EngineHTTP}, log)
	require.ErrorIs(t, httpErr, synth.ErrServiceURLEmpty)
}

func TestHTTPEngine_Synthesize(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/synthesize", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, "audio/wav", r.Header.Get("Accept"))

		decodeErr := json.NewDecoder(r.Body).Decode(&gotBody)
		require.NoError(t, decodeErr)

		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("vocal-take"))
	}))
	defer server.Close()

	engine, engineErr := synth.NewHTTPEngine(synth.Config{
		Engine:     synth.EngineHTTP,
		ServiceURL: server.URL,
	}, testLogger(t))
	require.NoError(t, engineErr)

	result, synthErr := engine.Synthesize(context.Background(), core.SynthesisRequest{
		VoiceModel:          "nova",
		Lyrics:              "city lights at midnight",
		Controls:            core.StyleControls{Brightness: 0.7, StereoWidth: 0.4},
		AccentLock:          "en-GB",
		GuideMatchIntensity: 0.5,
	})
	require.NoError(t, synthErr)

	assert.Equal(t, []byte("vocal-take"), result.Audio)
	assert.Equal(t, "wav", result.Format)
	assert.Equal(t, "nova", gotBody["voice_model"])
	assert.Equal(t, "city lights at midnight", gotBody["lyrics"])
	assert.Equal(t, "en-GB", gotBody["accent_lock"])

	controls, ok := gotBody["controls"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 0.7, controls["brightness"], 1e-9)
}

func TestHTTPEngine_StructuredError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"detail":"model not loaded","error_code":"NO_MODEL"}`))
	}))
	defer server.Close()

	engine, engineErr := synth.NewHTTPEngine(synth.Config{
		Engine:     synth.EngineHTTP,
		ServiceURL: server.URL,
	}, testLogger(t))
	require.NoError(t, engineErr)

	_, synthErr := engine.Synthesize(context.Background(), core.SynthesisRequest{
		VoiceModel: "nova",
		Lyrics:     "hello",
	})
	require.Error(t, synthErr)
	assert.Contains(t, synthErr.Error(), "model not loaded")
	assert.Contains(t, synthErr.Error(), "NO_MODEL")
}

func TestHTTPEngine_EmptyAudioFails(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
	}))
	defer server.Close()

	engine, engineErr := synth.NewHTTPEngine(synth.Config{
		Engine:     synth.EngineHTTP,
		ServiceURL: server.URL,
	}, testLogger(t))
	require.NoError(t, engineErr)

	_, synthErr := engine.Synthesize(context.Background(), core.SynthesisRequest{
		VoiceModel: "nova",
		Lyrics:     "hello",
	})
	require.ErrorIs(t, synthErr, synth.ErrEmptySynthesisAudio)
}

func TestEngines_ValidateRequest(t *testing.T) {
	t.Parallel()

	log := testLogger(t)

	execEngine, execErr := synth.NewExecEngine(synth.Config{
		Engine:    synth.EngineExec,
		ModelPath: "/models/voice.onnx",
	}, log)
	require.NoError(t, execErr)

	httpEngine, httpErr := synth.NewHTTPEngine(synth.Config{
		Engine:     synth.EngineHTTP,
		ServiceURL: "http://localhost:9000",
	}, log)
	require.NoError(t, httpErr)

	for _, engine := range []core.Synthesizer{execEngine, httpEngine} {
		_, lyricsErr := engine.Synthesize(context.Background(), core.SynthesisRequest{
			VoiceModel: "nova",
		})
		require.ErrorIs(t, lyricsErr, core.ErrLyricsEmpty)

		_, voiceErr := engine.Synthesize(context.Background(), core.SynthesisRequest{
			Lyrics: "hello",
		})
		require.ErrorIs(t, voiceErr, core.ErrVoiceEmpty)
	}
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	engine, engineErr := synth.NewHTTPEngine(synth.Config{
		Engine:     synth.EngineHTTP,
		ServiceURL: healthy.URL,
	}, testLogger(t))
	require.NoError(t, engineErr)

	require.NoError(t, engine.HealthCheck(context.Background()))

	down, downErr := synth.NewHTTPEngine(synth.Config{
		Engine:     synth.EngineHTTP,
		ServiceURL: "http://127.0.0.1:1",
	}, testLogger(t))
	require.NoError(t, downErr)

	require.Error(t, down.HealthCheck(context.Background()))
}
