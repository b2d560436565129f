package s3

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/kpool/blobstore"
)

func TestIntegration_S3Store(t *testing.T) {
	bucket := os.Getenv("S3_BUCKET")
	if bucket == "" {
		t.Skip("Skipping S3 integration test: S3_BUCKET not set")
	}

	ctx := context.Background()
	cfg, err := config.LoadDefaultConfig(ctx)
	require.NoError(t, err)

	// Create a unique prefix for this test run
	prefix := fmt.Sprintf("test-kpool-%d/", time.Now().UnixNano())
	store := NewStore(s3.NewFromConfig(cfg), bucket, WithPrefix(prefix))

	data := make([]byte, 9*1024*1024)
	_, _ = rand.Read(data)

	for _, name := range []string{"small.kpd", "large.kpd"} {
		blob := data[:1024]
		if name == "large.kpd" {
			blob = data
		}
		require.NoError(t, store.Put(ctx, name, blob))

		got, err := store.Get(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, blob, got)
	}

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"large.kpd", "small.kpd"}, names)

	for _, name := range names {
		require.NoError(t, store.Delete(ctx, name))
	}
	_, err = store.Get(ctx, "small.kpd")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
