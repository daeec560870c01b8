// Package worker provides a NATS worker that processes render jobs.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/render-service/internal/core"
	"github.com/book-expert/render-service/internal/events"
	"github.com/book-expert/render-service/internal/objectstore"
	"github.com/book-expert/render-service/internal/pipeline"
)

const (
	handleMessageTimeout = 10 * time.Minute

	guideFilePermissions = 0o600
	guideDirPermissions  = 0o750
)

// NatsWorker listens for render jobs on a NATS subject and processes them.
type NatsWorker struct {
	natsConnection   *nats.Conn
	jetstreamContext nats.JetStreamContext
	subject          string
	store            core.ObjectStore
	pipeline         *pipeline.Pipeline
	workDir          string
	log              *logger.Logger
	ready            chan struct{}
}

// NewNatsWorker creates a new instance of a NATS render worker. workDir is
// where downloaded guide recordings are staged before a run.
func NewNatsWorker(
	natsConnection *nats.Conn,
	jetstreamContext nats.JetStreamContext,
	subject string,
	store core.ObjectStore,
	renderPipeline *pipeline.Pipeline,
	workDir string,
	log *logger.Logger,
) (*NatsWorker, error) {
	return &NatsWorker{
		natsConnection:   natsConnection,
		jetstreamContext: jetstreamContext,
		subject:          subject,
		store:            store,
		pipeline:         renderPipeline,
		workDir:          workDir,
		log:              log,
		ready:            make(chan struct{}),
	}, nil
}

// Ready is closed once the subscription has reached the server and the
// worker can receive jobs. Callers that publish immediately after starting
// Run on a goroutine must wait on it first.
func (w *NatsWorker) Ready() <-chan struct{} {
	return w.ready
}

// Run starts the worker and begins listening for messages.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	flushErr := w.natsConnection.Flush()
	if flushErr != nil {
		return fmt.Errorf("failed to flush subscription to server: %w", flushErr)
	}

	close(w.ready)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	event, err := w.parseEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse render event: %v", err)

		return
	}

	replyEvent := w.processRenderJob(ctx, event)

	err = w.publishReplyEvent(msg, replyEvent)
	if err != nil {
		w.log.Error(
			"Failed to publish reply event for workflow %s: %v",
			event.Header.WorkflowID, err,
		)
	}
}

// processRenderJob stages the guide audio, runs the pipeline, and uploads the
// resulting artifacts. Failures are reported in the reply event rather than
// dropped, so requesters always hear back.
func (w *NatsWorker) processRenderJob(
	ctx context.Context,
	event *events.RenderRequestedEvent,
) *events.RenderCompletedEvent {
	reply := &events.RenderCompletedEvent{Header: event.Header}

	guidePath, guideErr := w.stageGuide(ctx, event)
	if guideErr != nil {
		w.log.Error(
			"Failed to stage guide audio for workflow %s: %v",
			event.Header.WorkflowID, guideErr,
		)
		reply.Error = guideErr.Error()

		return reply
	}

	result, runErr := w.pipeline.Run(ctx, core.RenderPayload{
		PersonaID:           event.PersonaID,
		VoiceID:             event.VoiceID,
		Lyrics:              event.Lyrics,
		StylePrompt:         event.StylePrompt,
		Controls:            event.Controls,
		Effects:             event.Effects,
		GuidePath:           guidePath,
		GuideUseLyrics:      event.GuideUseLyrics,
		GuideTempoRatio:     event.GuideTempo,
		GuideMatchIntensity: event.GuideMatch,
		AccentLock:          event.AccentLock,
		PreviewSeconds:      event.PreviewSeconds,
	})
	if runErr != nil {
		w.log.Error(
			"Render failed for workflow %s: %v",
			event.Header.WorkflowID, runErr,
		)
		reply.Error = runErr.Error()

		return reply
	}

	reply.RunID = result.RunID
	reply.Format = result.Format
	reply.DegradedStages = result.DegradedStages()

	artifactKey, uploadErr := w.uploadArtifact(ctx, result.RunID, result.FinalPath)
	if uploadErr != nil {
		reply.Error = uploadErr.Error()

		return reply
	}

	reply.ArtifactKey = artifactKey

	if result.PreviewPath != "" {
		previewKey, previewErr := w.uploadArtifact(ctx, result.RunID, result.PreviewPath)
		if previewErr != nil {
			w.log.Error(
				"Failed to upload preview for workflow %s: %v",
				event.Header.WorkflowID, previewErr,
			)
		} else {
			reply.PreviewKey = previewKey
		}
	}

	return reply
}

// stageGuide downloads the guide recording into the worker's staging area and
// returns its local path. An empty guide key means no guide was supplied.
func (w *NatsWorker) stageGuide(
	ctx context.Context,
	event *events.RenderRequestedEvent,
) (string, error) {
	if event.GuideKey == "" {
		return "", nil
	}

	guideData, downloadErr := w.store.Download(ctx, event.GuideKey)
	if downloadErr != nil {
		return "", fmt.Errorf(
			"failed to download guide audio for key '%s': %w",
			event.GuideKey, downloadErr,
		)
	}

	guideDir := filepath.Join(w.workDir, "guides", event.Header.WorkflowID)

	mkdirErr := os.MkdirAll(guideDir, guideDirPermissions)
	if mkdirErr != nil {
		return "", fmt.Errorf("failed to create guide staging dir: %w", mkdirErr)
	}

	guidePath := filepath.Join(guideDir, filepath.Base(event.GuideKey))

	writeErr := os.WriteFile(guidePath, guideData, guideFilePermissions)
	if writeErr != nil {
		return "", fmt.Errorf("failed to write guide audio: %w", writeErr)
	}

	return guidePath, nil
}

func (w *NatsWorker) uploadArtifact(ctx context.Context, runID, path string) (string, error) {
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return "", fmt.Errorf("failed to read artifact '%s': %w", path, readErr)
	}

	key := objectstore.ArtifactKey(runID, path)

	uploadErr := w.store.Upload(ctx, key, data)
	if uploadErr != nil {
		return "", fmt.Errorf("failed to upload artifact '%s': %w", key, uploadErr)
	}

	return key, nil
}

func (w *NatsWorker) publishReplyEvent(
	msg *nats.Msg,
	replyEvent *events.RenderCompletedEvent,
) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func (w *NatsWorker) parseEvent(msg *nats.Msg) (*events.RenderRequestedEvent, error) {
	var event events.RenderRequestedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return &event, nil
}
