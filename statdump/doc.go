// Package statdump persists pool statistics snapshots.
//
// A dump is the JSON form of every kpool.Stats in a registry, optionally
// compressed with zstd or LZ4 and framed by a 12-byte header:
//
//	magic "KPDN" | "KPDZ" | "KPDL"   4 bytes
//	uncompressed length             uint32 little-endian
//	CRC32C of the JSON payload      uint32 little-endian
//
// A Dumper writes dumps to a blobstore.Store as <prefix>/<unix-nanos>.kpd
// and can keep only the newest N.
package statdump
