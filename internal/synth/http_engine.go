package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/render-service/internal/core"
)

// API endpoints and paths.
const (
	apiSynthesize = "/v1/synthesize"
	apiHealth     = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
)

const (
	defaultTimeoutSeconds = 120

	// HealthCheckTimeout bounds the pre-flight health probe.
	HealthCheckTimeout = 10 * time.Second
)

// ErrEmptySynthesisAudio is returned when the service replies 200 with no
// audio body.
var ErrEmptySynthesisAudio = errors.New("synthesis service returned empty audio")

// synthesisRequest is the JSON payload of the standalone synthesis service.
type synthesisRequest struct {
	VoiceModel          string             `json:"voice_model"`
	Lyrics              string             `json:"lyrics"`
	Controls            core.StyleControls `json:"controls"`
	GuidePath           string             `json:"guide_path,omitempty"`
	AccentLock          string             `json:"accent_lock,omitempty"`
	GuideMatchIntensity float64            `json:"guide_match_intensity,omitempty"`
}

// synthesisErrorResponse is the structured error body of the service.
type synthesisErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// HTTPEngine implements core.Synthesizer against a standalone synthesis HTTP
// service.
type HTTPEngine struct {
	httpClient *http.Client
	baseURL    string
	log        *logger.Logger
}

// NewHTTPEngine creates an HTTP-backed synthesis engine.
func NewHTTPEngine(cfg Config, log *logger.Logger) (*HTTPEngine, error) {
	if cfg.ServiceURL == "" {
		return nil, ErrServiceURLEmpty
	}

	timeoutSeconds := cfg.TimeoutSeconds
	if timeoutSeconds <= 0 {
		timeoutSeconds = defaultTimeoutSeconds
	}

	return &HTTPEngine{
		baseURL: cfg.ServiceURL,
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSeconds) * time.Second,
		},
		log: log,
	}, nil
}

// Synthesize sends one synthesis request and returns the raw WAV take.
func (e *HTTPEngine) Synthesize(
	ctx context.Context,
	req core.SynthesisRequest,
) (*core.SynthesisResult, error) {
	if req.Lyrics == "" {
		return nil, core.ErrLyricsEmpty
	}

	if req.VoiceModel == "" {
		return nil, core.ErrVoiceEmpty
	}

	payload := synthesisRequest{
		VoiceModel:          req.VoiceModel,
		Lyrics:              req.Lyrics,
		Controls:            req.Controls,
		GuidePath:           req.GuidePath,
		AccentLock:          req.AccentLock,
		GuideMatchIntensity: req.GuideMatchIntensity,
	}

	requestBody, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return nil, fmt.Errorf("failed to marshal synthesis request: %w", marshalErr)
	}

	url := e.baseURL + apiSynthesize

	httpReq, reqErr := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		url,
		bytes.NewBuffer(requestBody),
	)
	if reqErr != nil {
		return nil, fmt.Errorf("failed to create synthesis request: %w", reqErr)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeWAV)

	resp, doErr := e.httpClient.Do(httpReq)
	if doErr != nil {
		return nil, fmt.Errorf(
			"failed to send request to synthesis service at %s: %w",
			e.baseURL, doErr,
		)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, e.parseErrorResponse(resp)
	}

	contentType := resp.Header.Get(headerContentType)
	if contentType != contentTypeWAV {
		return nil, fmt.Errorf(
			"unexpected content type: expected audio/wav, got %s",
			contentType,
		)
	}

	audioData, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", readErr)
	}

	if len(audioData) == 0 {
		return nil, ErrEmptySynthesisAudio
	}

	return &core.SynthesisResult{
		Audio:  audioData,
		Format: "wav",
	}, nil
}

// HealthCheck verifies the synthesis service is reachable before a render
// dispatches work to it.
func (e *HTTPEngine) HealthCheck(ctx context.Context) error {
	url := e.baseURL + apiHealth

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if reqErr != nil {
		return fmt.Errorf("failed to create health check request: %w", reqErr)
	}

	resp, doErr := e.httpClient.Do(req)
	if doErr != nil {
		return fmt.Errorf(
			"health check failed for service at %s: %w",
			e.baseURL, doErr,
		)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	return nil
}

// parseErrorResponse decodes a structured JSON error, falling back to the raw
// body so diagnostics are never lost.
func (e *HTTPEngine) parseErrorResponse(resp *http.Response) error {
	var errorResp synthesisErrorResponse

	decodeErr := json.NewDecoder(resp.Body).Decode(&errorResp)
	if decodeErr == nil {
		return fmt.Errorf("synthesis service error (%s): %s (code: %s)",
			resp.Status, errorResp.Detail, errorResp.ErrorCode)
	}

	body, _ := io.ReadAll(resp.Body)

	return fmt.Errorf(
		"synthesis service returned non-OK status: %s, body: %s",
		resp.Status, string(body),
	)
}
