package squashfs

import "fmt"

// Compression identifies the compressor used for metadata and data blocks,
// as stored in the superblock's compression_id field.
type Compression uint16

const (
	// Identity is not an on-disk compression id; it is used internally by
	// the ExtractManager to represent a block whose "uncompressed" flag
	// was set, so that both compressed and raw blocks flow through the
	// same cached decode path.
	Identity Compression = 0

	GZip Compression = 1
	LZMA Compression = 2
	LZO  Compression = 3
	XZ   Compression = 4
	LZ4  Compression = 5
	ZSTD Compression = 6
)

func (s Compression) String() string {
	switch s {
	case Identity:
		return "Identity"
	case GZip:
		return "GZip"
	case LZMA:
		return "LZMA"
	case LZO:
		return "LZO"
	case XZ:
		return "XZ"
	case LZ4:
		return "LZ4"
	case ZSTD:
		return "ZSTD"
	}
	return fmt.Sprintf("Compression(%d)", s)
}
