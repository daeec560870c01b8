package effects

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/book-expert/render-service/internal/core"
)

// API endpoints and form fields for the delegated effects service.
const (
	apiProcess = "/v1/process"

	formFieldAudio          = "audio"
	formFieldEngine         = "engine"
	formFieldSettings       = "settings"
	formFieldPreviewSeconds = "preview_seconds"
)

const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeWAV    = "audio/wav"
)

// ErrEmptyDelegatedAudio indicates the service returned a success status with
// no audio bytes.
var ErrEmptyDelegatedAudio = errors.New("delegated effects service returned empty audio")

// delegatedErrorResponse is the structured error body of the service.
type delegatedErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// DelegatedClient talks to an external effects-processing service. The
// request carries the engine identifier, the serialized settings, the
// optional preview duration, and the input audio bytes; the response is the
// processed audio.
type DelegatedClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewDelegatedClient creates a client for the delegated effects service. The
// baseURL includes protocol and port; the timeout applies to each request.
func NewDelegatedClient(baseURL string, timeout time.Duration) *DelegatedClient {
	return &DelegatedClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Process uploads the input file and settings and returns the processed
// audio bytes.
func (c *DelegatedClient) Process(
	ctx context.Context,
	inputPath string,
	settings core.EffectSettings,
	previewSeconds float64,
) ([]byte, error) {
	body, contentType, buildErr := c.buildRequestBody(inputPath, settings, previewSeconds)
	if buildErr != nil {
		return nil, buildErr
	}

	url := c.baseURL + apiProcess

	httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if reqErr != nil {
		return nil, fmt.Errorf("failed to create delegated effects request: %w", reqErr)
	}

	httpReq.Header.Set(headerContentType, contentType)
	httpReq.Header.Set(headerAccept, contentTypeWAV)

	resp, doErr := c.httpClient.Do(httpReq)
	if doErr != nil {
		return nil, fmt.Errorf(
			"failed to reach delegated effects service at %s: %w",
			c.baseURL,
			doErr,
		)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	audioData, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read delegated effects response: %w", readErr)
	}

	if len(audioData) == 0 {
		return nil, ErrEmptyDelegatedAudio
	}

	return audioData, nil
}

func (c *DelegatedClient) buildRequestBody(
	inputPath string,
	settings core.EffectSettings,
	previewSeconds float64,
) (*bytes.Buffer, string, error) {
	file, openErr := os.Open(inputPath)
	if openErr != nil {
		return nil, "", fmt.Errorf("failed to open input audio: %w", openErr)
	}

	defer func() {
		_ = file.Close()
	}()

	var buf bytes.Buffer

	writer := multipart.NewWriter(&buf)

	part, partErr := writer.CreateFormFile(formFieldAudio, filepath.Base(inputPath))
	if partErr != nil {
		return nil, "", fmt.Errorf("failed to create audio form file: %w", partErr)
	}

	_, copyErr := io.Copy(part, file)
	if copyErr != nil {
		return nil, "", fmt.Errorf("failed to copy audio data: %w", copyErr)
	}

	settingsJSON, marshalErr := json.Marshal(settings)
	if marshalErr != nil {
		return nil, "", fmt.Errorf("failed to marshal effect settings: %w", marshalErr)
	}

	fieldErr := writer.WriteField(formFieldSettings, string(settingsJSON))
	if fieldErr != nil {
		return nil, "", fmt.Errorf("failed to write settings field: %w", fieldErr)
	}

	engineErr := writer.WriteField(formFieldEngine, settings.Engine)
	if engineErr != nil {
		return nil, "", fmt.Errorf("failed to write engine field: %w", engineErr)
	}

	if previewSeconds > 0 {
		previewErr := writer.WriteField(
			formFieldPreviewSeconds,
			strconv.FormatFloat(previewSeconds, 'f', 2, 64),
		)
		if previewErr != nil {
			return nil, "", fmt.Errorf("failed to write preview field: %w", previewErr)
		}
	}

	closeErr := writer.Close()
	if closeErr != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", closeErr)
	}

	return &buf, writer.FormDataContentType(), nil
}

// parseErrorResponse attempts to decode a structured JSON error from the
// service, falling back to the raw body so diagnostics are preserved.
func (c *DelegatedClient) parseErrorResponse(resp *http.Response) error {
	var errorResp delegatedErrorResponse

	decodeErr := json.NewDecoder(resp.Body).Decode(&errorResp)
	if decodeErr == nil {
		return fmt.Errorf(
			"delegated effects service error (%s): %s (code: %s)",
			resp.Status,
			errorResp.Detail,
			errorResp.ErrorCode,
		)
	}

	body, _ := io.ReadAll(resp.Body)

	return fmt.Errorf(
		"delegated effects service returned non-OK status: %s, body: %s",
		resp.Status,
		string(body),
	)
}
