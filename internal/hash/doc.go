// Package hash provides the CRC32-Castagnoli checksum shared by stat dumps
// and the S3 blob store. The standard library uses SSE4.2 or ARM CRC
// instructions when available.
package hash
