package squashfs

import "encoding/binary"

// GzipStrategy, XzFilter, Lz4Flag and LzoAlgorithm mirror the bitmask/enum
// values original_source/src/context/compression_options_context.h declares
// for each compressor's tuning block (SqshGzipStrategies, SqshXzFilters,
// SqshLz4Flags, SqshLzoAlgorithm).
type GzipStrategy uint16

const (
	GzipStrategyDefault     GzipStrategy = 0x0001
	GzipStrategyFiltered    GzipStrategy = 0x0002
	GzipStrategyHuffmanOnly GzipStrategy = 0x0004
	GzipStrategyRLE         GzipStrategy = 0x0008
	GzipStrategyFixed       GzipStrategy = 0x0010
)

type XzFilter uint32

const (
	XzFilterX86      XzFilter = 0x0001
	XzFilterPowerPC  XzFilter = 0x0002
	XzFilterIA64     XzFilter = 0x0004
	XzFilterARM      XzFilter = 0x0008
	XzFilterARMThumb XzFilter = 0x0010
	XzFilterSparc    XzFilter = 0x0020
)

type Lz4Flag uint32

const Lz4HighCompression Lz4Flag = 0x0001

type LzoAlgorithm uint32

const (
	LzoAlgorithmLZO1X1    LzoAlgorithm = 0
	LzoAlgorithmLZO1X1_11 LzoAlgorithm = 1
	LzoAlgorithmLZO1X1_12 LzoAlgorithm = 2
	LzoAlgorithmLZO1X1_15 LzoAlgorithm = 3
	LzoAlgorithmLZO1X999  LzoAlgorithm = 4
)

// CompressorOptions is the decoded, compressor-specific tuning block stored
// in the first metablock of the payload region when the superblock's
// COMPRESSOR_OPTIONS flag is set. Only the accessors matching Comp are
// meaningful; the rest return the zero value rather than failing, the same
// "sentinel for a meaningless variant" rule Inode's typed accessors follow
// for fields that don't apply to every on-disk type.
type CompressorOptions struct {
	Comp Compression
	raw  []byte
}

func (o *CompressorOptions) GzipCompressionLevel() uint32 {
	if o.Comp != GZip || len(o.raw) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint32(o.raw[0:4])
}

func (o *CompressorOptions) GzipWindowSize() uint16 {
	if o.Comp != GZip || len(o.raw) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint16(o.raw[4:6])
}

func (o *CompressorOptions) GzipStrategies() GzipStrategy {
	if o.Comp != GZip || len(o.raw) < 8 {
		return 0
	}
	return GzipStrategy(binary.LittleEndian.Uint16(o.raw[6:8]))
}

func (o *CompressorOptions) XzDictionarySize() uint32 {
	if o.Comp != XZ || len(o.raw) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint32(o.raw[0:4])
}

func (o *CompressorOptions) XzFilters() XzFilter {
	if o.Comp != XZ || len(o.raw) < 8 {
		return 0
	}
	return XzFilter(binary.LittleEndian.Uint32(o.raw[4:8]))
}

func (o *CompressorOptions) Lz4Version() uint32 {
	if o.Comp != LZ4 || len(o.raw) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint32(o.raw[0:4])
}

func (o *CompressorOptions) Lz4Flags() Lz4Flag {
	if o.Comp != LZ4 || len(o.raw) < 8 {
		return 0
	}
	return Lz4Flag(binary.LittleEndian.Uint32(o.raw[4:8]))
}

func (o *CompressorOptions) ZstdCompressionLevel() uint32 {
	if o.Comp != ZSTD || len(o.raw) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(o.raw[0:4])
}

func (o *CompressorOptions) LzoAlgorithm() LzoAlgorithm {
	if o.Comp != LZO || len(o.raw) < 8 {
		return 0
	}
	return LzoAlgorithm(binary.LittleEndian.Uint32(o.raw[0:4]))
}

func (o *CompressorOptions) LzoCompressionLevel() uint32 {
	if o.Comp != LZO || len(o.raw) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint32(o.raw[4:8])
}

// CompressionOptions returns the image's decoder-tuning parameters block, or
// ErrNoCompressionOptions if the superblock's COMPRESSOR_OPTIONS flag was
// not set. The block itself is decoded once, eagerly, at Open time (it is a
// single metablock read right after the superblock, cheap enough that
// lazy-via-sync.Once like the id/export/fragment/xattr tables buys nothing).
func (img *Image) CompressionOptions() (*CompressorOptions, error) {
	if !img.sb.Flags.Has(COMPRESSOR_OPTIONS) {
		return nil, wrapErr(KindNoCompressionOptions, nil)
	}
	return &CompressorOptions{Comp: img.sb.Comp, raw: img.compressionOptions}, nil
}
