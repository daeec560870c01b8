// Package transcribe recovers lyrics from guide recordings through a
// Whisper-compatible transcription endpoint. It implements the pipeline's
// core.Transcriber capability.
package transcribe

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
	"strings"
	"time"
)

// Form field names of the transcription API.
const (
	formFieldFile     = "file"
	formFieldModel    = "model"
	formFieldLanguage = "language"
)

// HTTP headers.
const (
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
)

const (
	defaultModel   = "whisper-1"
	defaultTimeout = 60 * time.Second
)

// ErrEmptyTranscript is returned when the service replies with no text, so
// callers can keep explicit lyrics instead of overwriting them with nothing.
var ErrEmptyTranscript = errors.New("transcription returned empty text")

// Client talks to a Whisper-compatible transcription service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	language   string
}

// transcriptionResponse is the JSON body of a successful transcription.
type transcriptionResponse struct {
	Text string `json:"text"`
}

// NewClient creates a transcription client. The baseURL is the full
// transcriptions endpoint. An empty model falls back to whisper-1.
func NewClient(baseURL, apiKey, model, language string) *Client {
	if model == "" {
		model = defaultModel
	}

	return &Client{
		baseURL:  baseURL,
		apiKey:   apiKey,
		model:    model,
		language: language,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// Transcribe uploads the audio file and returns the recovered text, trimmed
// of surrounding whitespace.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	body, contentType, buildErr := c.buildRequestBody(audioPath)
	if buildErr != nil {
		return "", buildErr
	}

	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, body)
	if reqErr != nil {
		return "", fmt.Errorf("failed to create transcription request: %w", reqErr)
	}

	if c.apiKey != "" {
		req.Header.Set(headerAuthorization, "Bearer "+c.apiKey)
	}

	req.Header.Set(headerContentType, contentType)

	resp, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return "", fmt.Errorf("failed to send transcription request: %w", doErr)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)

		return "", fmt.Errorf(
			"transcription request failed with status %d: %s",
			resp.StatusCode, string(respBody),
		)
	}

	var transcription transcriptionResponse

	decodeErr := json.NewDecoder(resp.Body).Decode(&transcription)
	if decodeErr != nil {
		return "", fmt.Errorf("failed to decode transcription response: %w", decodeErr)
	}

	text := strings.TrimSpace(transcription.Text)
	if text == "" {
		return "", ErrEmptyTranscript
	}

	return text, nil
}

func (c *Client) buildRequestBody(audioPath string) (*bytes.Buffer, string, error) {
	file, openErr := os.Open(audioPath)
	if openErr != nil {
		return nil, "", fmt.Errorf("failed to open audio file: %w", openErr)
	}
	defer func() { _ = file.Close() }()

	var buf bytes.Buffer

	writer := multipart.NewWriter(&buf)

	part, partErr := writer.CreateFormFile(formFieldFile, filepath.Base(audioPath))
	if partErr != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", partErr)
	}

	_, copyErr := io.Copy(part, file)
	if copyErr != nil {
		return nil, "", fmt.Errorf("failed to copy file data: %w", copyErr)
	}

	modelErr := writer.WriteField(formFieldModel, c.model)
	if modelErr != nil {
		return nil, "", fmt.Errorf("failed to write model field: %w", modelErr)
	}

	if c.language != "" {
		langErr := writer.WriteField(formFieldLanguage, c.language)
		if langErr != nil {
			return nil, "", fmt.Errorf("failed to write language field: %w", langErr)
		}
	}

	closeErr := writer.Close()
	if closeErr != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", closeErr)
	}

	return &buf, writer.FormDataContentType(), nil
}
