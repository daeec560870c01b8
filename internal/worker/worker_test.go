// Package worker_test tests the NATS worker for the render service.
package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/render-service/internal/core"
	"github.com/book-expert/render-service/internal/effects"
	"github.com/book-expert/render-service/internal/events"
	"github.com/book-expert/render-service/internal/layers"
	"github.com/book-expert/render-service/internal/pipeline"
	"github.com/book-expert/render-service/internal/preview"
	"github.com/book-expert/render-service/internal/tempo"
	"github.com/book-expert/render-service/internal/worker"
)

var (
	errMockDownload = errors.New("mock download error")
	errMockSynth    = errors.New("mock synthesis error")
)

// mockObjectStore is a map-backed implementation of the ObjectStore interface.
type mockObjectStore struct {
	downloadShouldFail bool
	objects            map[string][]byte
	downloadedKey      string
}

func newMockObjectStore() *mockObjectStore {
	return &mockObjectStore{objects: map[string][]byte{}}
}

func (m *mockObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	if m.downloadShouldFail {
		return nil, errMockDownload
	}

	m.downloadedKey = key

	if data, ok := m.objects[key]; ok {
		return data, nil
	}

	return []byte("guide audio"), nil
}

func (m *mockObjectStore) Upload(_ context.Context, key string, data []byte) error {
	m.objects[key] = data

	return nil
}

type mockSynthesizer struct {
	lastRequest core.SynthesisRequest
	fail        bool
}

func (m *mockSynthesizer) Synthesize(
	_ context.Context,
	req core.SynthesisRequest,
) (*core.SynthesisResult, error) {
	if m.fail {
		return nil, errMockSynth
	}

	m.lastRequest = req

	return &core.SynthesisResult{Audio: []byte("vocal-take"), Format: "wav"}, nil
}

// fakeExecutor writes every stage output so the worker has real files to
// upload.
type fakeExecutor struct{}

func (f *fakeExecutor) Filter(_ context.Context, _, outputPath, _ string) error {
	return os.WriteFile(outputPath, []byte("filtered"), 0o600)
}

func (f *fakeExecutor) FilterComplex(_ context.Context, _, outputPath, _ string) error {
	return os.WriteFile(outputPath, []byte("layered"), 0o600)
}

func (f *fakeExecutor) CopyTrim(_ context.Context, _, outputPath string, _ float64) error {
	return os.WriteFile(outputPath, []byte("trimmed"), 0o600)
}

func (f *fakeExecutor) Normalize(_ context.Context, _, outputPath string) error {
	return os.WriteFile(outputPath, []byte("normalized"), 0o600)
}

func createTestNatsClient(t *testing.T) (*nats.Conn, func()) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	opts.JetStream = true
	server := test.RunServer(&opts)

	natsConnection, err := nats.Connect(server.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	cleanup := func() {
		server.Shutdown()
		natsConnection.Close()
	}

	return natsConnection, cleanup
}

func setupTest(t *testing.T, synthesizer *mockSynthesizer) (
	*worker.NatsWorker,
	*mockObjectStore,
	context.Context,
	context.CancelFunc,
	*nats.Conn,
) {
	t.Helper()

	mockStore := newMockObjectStore()

	natsConnection, natsCleanup := createTestNatsClient(t)
	t.Cleanup(natsCleanup)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	testLogger, err := logger.New(t.TempDir(), "worker-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = testLogger.Close() })

	executor := &fakeExecutor{}
	renderPipeline := pipeline.New(
		synthesizer,
		nil,
		nil,
		nil,
		effects.NewEngine(executor, nil, testLogger),
		tempo.NewCorrector(executor, testLogger),
		layers.NewModulator(executor, testLogger),
		preview.NewExtractor(executor, testLogger),
		pipeline.Options{OutputRoot: t.TempDir()},
		testLogger,
	)

	workerInstance, err := worker.NewNatsWorker(
		natsConnection, jetstreamContext, "render.requested",
		mockStore, renderPipeline, t.TempDir(), testLogger,
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	return workerInstance, mockStore, ctx, cancel, natsConnection
}

// startWorker runs the worker on a goroutine and blocks until its
// subscription is live, so a request published right after cannot beat it.
func startWorker(t *testing.T, workerInstance *worker.NatsWorker, ctx context.Context) chan error {
	t.Helper()

	errChan := make(chan error, 1)

	go func() {
		errChan <- workerInstance.Run(ctx)
	}()

	select {
	case <-workerInstance.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not subscribe in time")
	}

	return errChan
}

func newHeader() events.EventHeader {
	return events.EventHeader{
		Timestamp:  time.Now(),
		WorkflowID: uuid.NewString(),
		EventID:    uuid.NewString(),
		UserID:     "",
		TenantID:   "",
	}
}

func TestMessageHandler_Success(t *testing.T) {
	t.Parallel()

	synthesizer := &mockSynthesizer{}
	workerInstance, mockStore, ctx, cancel, natsConnection := setupTest(t, synthesizer)
	defer cancel()

	errChan := startWorker(t, workerInstance, ctx)

	testEvent := &events.RenderRequestedEvent{
		Header:         newHeader(),
		PersonaID:      "persona-1",
		VoiceID:        "nova",
		Lyrics:         "city lights at midnight",
		StylePrompt:    "dreamy",
		Effects:        core.EffectSettings{Preset: core.PresetLush},
		PreviewSeconds: 5,
	}
	eventData, err := json.Marshal(testEvent)
	require.NoError(t, err)

	replyMsg, err := natsConnection.Request("render.requested", eventData, 10*time.Second)
	require.NoError(t, err, "Request should succeed and receive a reply")

	var replyEvent events.RenderCompletedEvent

	err = json.Unmarshal(replyMsg.Data, &replyEvent)
	require.NoError(t, err)

	require.Empty(t, replyEvent.Error)
	assert.Equal(t, testEvent.Header.WorkflowID, replyEvent.Header.WorkflowID)
	assert.NotEmpty(t, replyEvent.RunID)
	assert.Equal(t, "wav", replyEvent.Format)
	assert.Empty(t, replyEvent.DegradedStages)

	assert.True(t, strings.HasPrefix(replyEvent.ArtifactKey, "renders/"+replyEvent.RunID+"/"))
	assert.Equal(t, []byte("filtered"), mockStore.objects[replyEvent.ArtifactKey])

	require.NotEmpty(t, replyEvent.PreviewKey)
	assert.Equal(t, []byte("trimmed"), mockStore.objects[replyEvent.PreviewKey])

	assert.Equal(t, "city lights at midnight", synthesizer.lastRequest.Lyrics)

	cancel()

	shutdownErr := <-errChan
	assert.NoError(t, shutdownErr, "worker.Run should not error on graceful shutdown")
}

func TestMessageHandler_GuideDownloadFailureReported(t *testing.T) {
	t.Parallel()

	workerInstance, mockStore, ctx, cancel, natsConnection := setupTest(t, &mockSynthesizer{})
	defer cancel()

	mockStore.downloadShouldFail = true

	_ = startWorker(t, workerInstance, ctx)

	testEvent := &events.RenderRequestedEvent{
		Header:   newHeader(),
		VoiceID:  "nova",
		Lyrics:   "hello",
		GuideKey: "guides/take.wav",
	}
	eventData, err := json.Marshal(testEvent)
	require.NoError(t, err)

	replyMsg, err := natsConnection.Request("render.requested", eventData, 10*time.Second)
	require.NoError(t, err)

	var replyEvent events.RenderCompletedEvent

	err = json.Unmarshal(replyMsg.Data, &replyEvent)
	require.NoError(t, err)

	assert.Contains(t, replyEvent.Error, "guide audio")
	assert.Empty(t, replyEvent.ArtifactKey)
}

func TestMessageHandler_SynthesisFailureReported(t *testing.T) {
	t.Parallel()

	workerInstance, _, ctx, cancel, natsConnection := setupTest(t, &mockSynthesizer{fail: true})
	defer cancel()

	_ = startWorker(t, workerInstance, ctx)

	testEvent := &events.RenderRequestedEvent{
		Header:  newHeader(),
		VoiceID: "nova",
		Lyrics:  "hello",
	}
	eventData, err := json.Marshal(testEvent)
	require.NoError(t, err)

	replyMsg, err := natsConnection.Request("render.requested", eventData, 10*time.Second)
	require.NoError(t, err)

	var replyEvent events.RenderCompletedEvent

	err = json.Unmarshal(replyMsg.Data, &replyEvent)
	require.NoError(t, err)

	assert.Contains(t, replyEvent.Error, "synthesis failed")
	assert.Empty(t, replyEvent.ArtifactKey)
}
