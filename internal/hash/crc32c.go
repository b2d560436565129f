package hash

import (
	"hash/crc32"
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// CRC32C computes the CRC32-Castagnoli checksum of data, as used by stat
// dump frames and S3 upload checksums.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}
