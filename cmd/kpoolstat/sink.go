package main

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hupe1980/kpool/blobstore"
	miniostore "github.com/hupe1980/kpool/blobstore/minio"
	s3store "github.com/hupe1980/kpool/blobstore/s3"
)

// openSink returns the configured dump store, or nil for "none".
func openSink(ctx context.Context, cfg DumpConfig) (blobstore.Store, error) {
	switch cfg.Sink {
	case "", "none":
		return nil, nil
	case "local":
		return blobstore.NewLocalStore(cfg.Path), nil
	case "s3":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("s3 sink requires a bucket")
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return s3store.NewStore(awss3.NewFromConfig(awsCfg), cfg.Bucket, s3store.WithPrefix(cfg.Prefix)), nil
	case "minio":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("minio sink requires a bucket")
		}
		client, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.Secure,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create MinIO client: %w", err)
		}
		return miniostore.NewStore(client, cfg.Bucket, cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown dump sink %q", cfg.Sink)
	}
}
