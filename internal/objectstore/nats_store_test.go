// Package objectstore_test tests the NATS artifact store implementation.
package objectstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/render-service/internal/objectstore"
)

// StartTestServer starts an in-memory NATS server for testing purposes.
func StartTestServer(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	opts.JetStream = true
	natsServer := test.RunServer(&opts)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	return natsServer, natsConnection
}

func newTestStore(t *testing.T) *objectstore.NatsObjectStore {
	t.Helper()

	natsServer, natsConnection := StartTestServer(t)
	t.Cleanup(natsServer.Shutdown)
	t.Cleanup(natsConnection.Close)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.New(jetstreamContext, "render-artifacts")
	require.NoError(t, err)

	return store
}

func TestNatsObjectStore_UploadDownload(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	ctx := context.Background()
	key := "guides/session-1/guide.wav"
	uploadData := []byte("guide audio bytes")

	err := store.Upload(ctx, key, uploadData)
	require.NoError(t, err)

	downloadData, err := store.Download(ctx, key)
	require.NoError(t, err)

	require.Equal(t, uploadData, downloadData)
}

func TestNatsObjectStore_UploadFile(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	artifactPath := filepath.Join(t.TempDir(), "render-abc-hq.wav")
	require.NoError(t, os.WriteFile(artifactPath, []byte("finished take"), 0o600))

	key, uploadErr := store.UploadFile(context.Background(), "abc", artifactPath)
	require.NoError(t, uploadErr)

	assert.Equal(t, "renders/abc/render-abc-hq.wav", key)

	data, downloadErr := store.Download(context.Background(), key)
	require.NoError(t, downloadErr)
	assert.Equal(t, []byte("finished take"), data)
}

func TestNatsObjectStore_DownloadMissingKeyFails(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	_, err := store.Download(context.Background(), "renders/nope/missing.wav")
	require.Error(t, err)
}
