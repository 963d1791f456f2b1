package squashfs

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// TestExtractIdentity checks the "stored, no compression" passthrough path
// used when a metablock or data block's on-disk flag bit marks it raw.
func TestExtractIdentity(t *testing.T) {
	in := []byte("raw payload, not compressed at all")
	out, err := extract(Identity, in, len(in))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("got %q, want %q", out, in)
	}
}

func TestExtractIdentityOverMax(t *testing.T) {
	in := []byte("0123456789")
	if _, err := extract(Identity, in, 4); err == nil {
		t.Fatalf("expected an error when input exceeds outMax")
	}
}

// TestExtractGZipRoundTrip exercises the GZip path, which in squashfs is
// actually a raw zlib/RFC1950 stream decoded through stdlib compress/zlib.
func TestExtractGZipRoundTrip(t *testing.T) {
	want := bytes.Repeat([]byte("squashfs metadata block content "), 50)

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(want); err != nil {
		t.Fatalf("zlib write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zlib close: %v", err)
	}

	got, err := extract(GZip, buf.Bytes(), len(want))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("round-tripped content mismatch, got %d bytes want %d", len(got), len(want))
	}
}

// TestExtractGZipExcessOutput checks that decoded output exceeding outMax is
// reported as a decode failure rather than silently truncated.
func TestExtractGZipExcessOutput(t *testing.T) {
	want := bytes.Repeat([]byte("x"), 100)

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(want); err != nil {
		t.Fatalf("zlib write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zlib close: %v", err)
	}

	if _, err := extract(GZip, buf.Bytes(), 10); err == nil {
		t.Fatalf("expected ErrDecompress for output exceeding outMax")
	}
}

// TestExtractLZ4RoundTrip exercises the LZ4 path via pierrec/lz4.
func TestExtractLZ4RoundTrip(t *testing.T) {
	want := bytes.Repeat([]byte("block data for lz4 "), 200)

	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(want); err != nil {
		t.Fatalf("lz4 write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("lz4 close: %v", err)
	}

	got, err := extract(LZ4, buf.Bytes(), len(want))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("round-tripped content mismatch, got %d bytes want %d", len(got), len(want))
	}
}

// TestExtractZstdRoundTrip exercises the ZSTD path via klauspost/compress/zstd.
func TestExtractZstdRoundTrip(t *testing.T) {
	want := bytes.Repeat([]byte("fragment tail bytes "), 300)

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd.NewWriter: %v", err)
	}
	compressed := enc.EncodeAll(want, nil)
	if err := enc.Close(); err != nil {
		t.Fatalf("zstd encoder close: %v", err)
	}

	got, err := extract(ZSTD, compressed, len(want))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("round-tripped content mismatch, got %d bytes want %d", len(got), len(want))
	}
}

// TestExtractXZRoundTrip exercises the XZ path via ulikunitz/xz.
func TestExtractXZRoundTrip(t *testing.T) {
	want := bytes.Repeat([]byte("xz-compressed data block "), 100)

	var buf bytes.Buffer
	xw, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatalf("xz.NewWriter: %v", err)
	}
	if _, err := xw.Write(want); err != nil {
		t.Fatalf("xz write: %v", err)
	}
	if err := xw.Close(); err != nil {
		t.Fatalf("xz close: %v", err)
	}

	got, err := extract(XZ, buf.Bytes(), len(want))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("round-tripped content mismatch, got %d bytes want %d", len(got), len(want))
	}
}

// TestExtractLZMARoundTrip exercises the LZMA "alone" format squashfs's LZMA
// compressor uses, via ulikunitz/xz/lzma.
func TestExtractLZMARoundTrip(t *testing.T) {
	want := bytes.Repeat([]byte("lzma alone legacy format content "), 80)

	var buf bytes.Buffer
	lw, err := lzma.NewWriter(&buf)
	if err != nil {
		t.Fatalf("lzma.NewWriter: %v", err)
	}
	if _, err := lw.Write(want); err != nil {
		t.Fatalf("lzma write: %v", err)
	}
	if err := lw.Close(); err != nil {
		t.Fatalf("lzma close: %v", err)
	}

	got, err := extract(LZMA, buf.Bytes(), len(want))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("round-tripped content mismatch, got %d bytes want %d", len(got), len(want))
	}
}

// TestExtractLZOUnsupported checks that LZO, for which no pure-Go decoder
// exists in this module's dependency set, fails with a specific Kind rather
// than silently misbehaving.
func TestExtractLZOUnsupported(t *testing.T) {
	_, err := extract(LZO, []byte{0x01, 0x02, 0x03}, 16)
	if err == nil {
		t.Fatalf("expected an error for LZO")
	}
	e, ok := err.(*Error)
	if !ok || e.Kind != KindUnsupportedCompression {
		t.Fatalf("expected KindUnsupportedCompression, got %v", err)
	}
}

// TestExtractUnknownCompression checks an out-of-range compression id.
func TestExtractUnknownCompression(t *testing.T) {
	_, err := extract(Compression(99), []byte{0x00}, 16)
	if err == nil {
		t.Fatalf("expected an error for an unrecognized compression id")
	}
	e, ok := err.(*Error)
	if !ok || e.Kind != KindUnsupportedCompression {
		t.Fatalf("expected KindUnsupportedCompression, got %v", err)
	}
}

// TestCompressorOptionsAccessors checks that each compressor's typed
// accessors read the right byte range and that accessors for every other
// compressor return the zero value rather than misreading foreign bytes.
func TestCompressorOptionsAccessors(t *testing.T) {
	raw := make([]byte, 8)
	binary.LittleEndian.PutUint32(raw[0:4], 9)
	binary.LittleEndian.PutUint16(raw[4:6], 15)
	binary.LittleEndian.PutUint16(raw[6:8], uint16(GzipStrategyFiltered))

	gzipOpts := &CompressorOptions{Comp: GZip, raw: raw}
	if v := gzipOpts.GzipCompressionLevel(); v != 9 {
		t.Fatalf("GzipCompressionLevel = %d, want 9", v)
	}
	if v := gzipOpts.GzipWindowSize(); v != 15 {
		t.Fatalf("GzipWindowSize = %d, want 15", v)
	}
	if v := gzipOpts.GzipStrategies(); v != GzipStrategyFiltered {
		t.Fatalf("GzipStrategies = %v, want %v", v, GzipStrategyFiltered)
	}
	if v := gzipOpts.XzDictionarySize(); v != 0 {
		t.Fatalf("XzDictionarySize on a gzip block = %d, want 0", v)
	}

	xzRaw := make([]byte, 8)
	binary.LittleEndian.PutUint32(xzRaw[0:4], 1<<20)
	binary.LittleEndian.PutUint32(xzRaw[4:8], uint32(XzFilterX86))
	xzOpts := &CompressorOptions{Comp: XZ, raw: xzRaw}
	if v := xzOpts.XzDictionarySize(); v != 1<<20 {
		t.Fatalf("XzDictionarySize = %d, want %d", v, 1<<20)
	}
	if v := xzOpts.XzFilters(); v != XzFilterX86 {
		t.Fatalf("XzFilters = %v, want %v", v, XzFilterX86)
	}
	if v := xzOpts.GzipCompressionLevel(); v != 0 {
		t.Fatalf("GzipCompressionLevel on an xz block = %d, want 0", v)
	}

	zstdRaw := make([]byte, 4)
	binary.LittleEndian.PutUint32(zstdRaw, 19)
	zstdOpts := &CompressorOptions{Comp: ZSTD, raw: zstdRaw}
	if v := zstdOpts.ZstdCompressionLevel(); v != 19 {
		t.Fatalf("ZstdCompressionLevel = %d, want 19", v)
	}
}
