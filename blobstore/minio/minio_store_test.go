package minio

import (
	"context"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/kpool/blobstore"
)

// TestMinioStore_Integration requires a running MinIO instance.
// Skip if not available.
func TestMinioStore_Integration(t *testing.T) {
	endpoint := "localhost:9000"
	accessKey := "minioadmin"
	secretKey := "minioadmin"
	bucket := "test-kpool"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()

	// Check if MinIO is reachable
	if _, err := client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, "test-prefix/")

	data := []byte("hello minio world")
	require.NoError(t, store.Put(ctx, "dumps/1.kpd", data))
	require.NoError(t, store.Put(ctx, "dumps/2.kpd", data))

	got, err := store.Get(ctx, "dumps/1.kpd")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	names, err := store.List(ctx, "dumps/")
	require.NoError(t, err)
	assert.Equal(t, []string{"dumps/1.kpd", "dumps/2.kpd"}, names)

	for _, name := range names {
		require.NoError(t, store.Delete(ctx, name))
	}
	_, err = store.Get(ctx, "dumps/1.kpd")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestNewStore_Prefix(t *testing.T) {
	assert.Equal(t, "a/b/x", NewStore(nil, "bucket", "/a/b/").key("x"))
	assert.Equal(t, "x", NewStore(nil, "bucket", "").key("x"))
}
