package squashfs

import (
	"bytes"
	"compress/zlib"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// extractor is a pure function: it turns compressed bytes into at most
// outMax bytes of decoded payload. It must never write beyond outMax and
// must report ErrDecompress for any decoder failure, including truncation
// or excess output, and ErrUnsupportedCompression for an unknown kind.
//
// gzip uses stdlib zlib, since squashfs's "gzip" compressor is in fact a
// raw zlib/RFC1950 stream; zstd and lz4 go through klauspost/compress and
// pierrec/lz4; xz and lzma go through ulikunitz/xz.
func extract(kind Compression, in []byte, outMax int) ([]byte, error) {
	switch kind {
	case Identity:
		if len(in) > outMax {
			return nil, wrapErr(KindDecompress, nil)
		}
		out := make([]byte, len(in))
		copy(out, in)
		return out, nil
	case GZip:
		return extractZlib(in, outMax)
	case LZMA:
		return extractLZMAAlone(in, outMax)
	case XZ:
		return extractXZ(in, outMax)
	case LZ4:
		return extractLZ4(in, outMax)
	case ZSTD:
		return extractZstd(in, outMax)
	case LZO:
		// No pure-Go LZO decoder exists anywhere in the corpus this
		// library was built from; rather than vendor or hand-roll one,
		// LZO images fail loudly and specifically. See DESIGN.md.
		return nil, wrapErr(KindUnsupportedCompression, nil)
	default:
		return nil, wrapErr(KindUnsupportedCompression, nil)
	}
}

// boundedReadAll reads at most outMax+1 bytes from r; returning ErrDecompress
// if the stream produces more than outMax bytes (excess output) or if the
// underlying reader fails for any reason other than a clean EOF.
func boundedReadAll(r io.Reader, outMax int) ([]byte, error) {
	lr := &io.LimitedReader{R: r, N: int64(outMax) + 1}
	buf, err := io.ReadAll(lr)
	if err != nil {
		return nil, wrapErr(KindDecompress, err)
	}
	if len(buf) > outMax {
		return nil, wrapErr(KindDecompress, nil)
	}
	return buf, nil
}

func extractZlib(in []byte, outMax int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(in))
	if err != nil {
		return nil, wrapErr(KindDecompress, err)
	}
	defer zr.Close()
	return boundedReadAll(zr, outMax)
}

// extractLZMAAlone decodes the LZMA "alone" (.lzma legacy) format used by
// squashfs's LZMA compressor, with an unbounded dictionary memory limit.
func extractLZMAAlone(in []byte, outMax int) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(in))
	if err != nil {
		return nil, wrapErr(KindDecompress, err)
	}
	return boundedReadAll(r, outMax)
}

// extractXZ decodes a stream-buffer xz container.
func extractXZ(in []byte, outMax int) ([]byte, error) {
	r, err := xz.NewReader(bytes.NewReader(in))
	if err != nil {
		return nil, wrapErr(KindDecompress, err)
	}
	return boundedReadAll(r, outMax)
}

func extractLZ4(in []byte, outMax int) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(in))
	return boundedReadAll(r, outMax)
}

func extractZstd(in []byte, outMax int) ([]byte, error) {
	r, err := zstd.NewReader(bytes.NewReader(in))
	if err != nil {
		return nil, wrapErr(KindDecompress, err)
	}
	defer r.Close()
	return boundedReadAll(r, outMax)
}
