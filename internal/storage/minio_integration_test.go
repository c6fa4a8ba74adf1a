package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"weather-cache/internal/logging"
)

// setupTestMinIO starts a MinIO container and returns a store backed by it.
func setupTestMinIO(t *testing.T, pageSize int) *MinioStore {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     "minioadmin",
			"MINIO_ROOT_PASSWORD": "minioadmin",
		},
		Cmd:        []string{"server", "/data"},
		WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp"),
	}

	minioC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start MinIO container")
	t.Cleanup(func() {
		_ = minioC.Terminate(ctx)
	})

	endpoint, err := minioC.Endpoint(ctx, "")
	require.NoError(t, err, "failed to get container endpoint")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	require.NoError(t, err, "failed to create MinIO client")

	store, err := NewMinioStore(Config{
		Client:       client,
		Bucket:       "weather-test",
		ListPageSize: pageSize,
	}, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, store.EnsureBucket(ctx))
	require.NoError(t, store.EnsureBucket(ctx), "EnsureBucket must be idempotent")

	return store
}

func TestIntegration_PutGetFindLatest(t *testing.T) {
	store := setupTestMinIO(t, 2)
	ctx := context.Background()

	doc := json.RawMessage(`{"name":"London","main":{"temp":283.1}}`)
	start := time.Now().Add(-time.Minute)

	var last string
	for i := 0; i < 5; i++ {
		addr, err := store.Put(ctx, fmt.Sprintf("london_%d.json", 1_700_000_000+i), doc)
		require.NoError(t, err)
		last = addr
		// LastModified has one-second resolution.
		time.Sleep(1100 * time.Millisecond)
	}
	_, err := store.Put(ctx, "london_city_1700000099.json", doc)
	require.NoError(t, err)

	loc, found, err := store.FindLatest(ctx, "london_", start)
	require.NoError(t, err)
	require.True(t, found, "pagination with page size 2 must not hide objects")
	assert.Equal(t, last, loc.Address)
	assert.Equal(t, "london_1700000004.json", loc.Key)

	got, err := store.Get(ctx, loc.Address)
	require.NoError(t, err)
	assert.JSONEq(t, string(doc), string(got))

	_, found, err = store.FindLatest(ctx, "london_", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIntegration_GetMissing(t *testing.T) {
	store := setupTestMinIO(t, 0)

	_, err := store.Get(context.Background(), store.Address("nowhere_1.json"))
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, ErrNotFound)
}
