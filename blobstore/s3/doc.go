// Package s3 provides an S3 implementation of blobstore.Store.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket",
//	    s3.WithPrefix("kpool/"),
//	)
//
// # Features
//
//   - Multipart uploads for large blobs
//   - CRC32C checksums on every upload
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
