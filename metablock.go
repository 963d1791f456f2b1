package squashfs

import "encoding/binary"

// metablockMaxSize is the maximum decoded size of a single metablock unit
// (8 KiB).
const metablockMaxSize = 8192

// metablockHeaderSize is the width of the 2-byte length-prefix header that
// precedes every metablock's compressed (or raw) body.
const metablockHeaderSize = 2

// decodeMetablockHeader splits a 2-byte little-endian metablock header into
// its "uncompressed" flag and stored length: top bit is the
// flag, the lower 15 bits are the stored length.
func decodeMetablockHeader(h uint16) (uncompressed bool, storedLen int) {
	return h&0x8000 != 0, int(h & 0x7fff)
}

// inodeRef is the 64-bit (block_offset:48, byte_offset:16) composite
// pointer into the inode table's metablock stream, distinct from the
// 32-bit inode number used by the export table.
type inodeRef uint64

func makeInodeRef(blockOffset uint64, byteOffset uint16) inodeRef {
	return inodeRef((blockOffset&0xFFFFFFFFFFFF)<<16 | uint64(byteOffset))
}

func (r inodeRef) blockOffset() uint64 { return uint64(r) >> 16 }
func (r inodeRef) byteOffset() uint16  { return uint16(r) }

// metablockInfo describes one metablock yielded by a MetablockIterator:
// its address (the absolute offset of its header), whether it is stored
// raw, and its stored (on-disk, post-header) length.
type metablockInfo struct {
	address      int64
	uncompressed bool
	storedLen    int
}

// MetablockIterator walks a chain of metablocks  without decompressing
// them, bounded by an upper limit such as a table's start offset.
type MetablockIterator struct {
	mapper Mapper
	pos    int64
	limit  int64
}

func newMetablockIterator(mapper Mapper, start, limit int64) *MetablockIterator {
	return &MetablockIterator{mapper: mapper, pos: start, limit: limit}
}

// Next returns the next metablock's info and advances past it, or returns
// (nil, nil) once the iterator reaches its upper limit.
func (it *MetablockIterator) Next() (*metablockInfo, error) {
	if it.pos >= it.limit {
		return nil, nil
	}
	if it.pos+metablockHeaderSize > it.limit {
		return nil, errOutOfBounds
	}
	view, err := it.mapper.Map(it.pos, metablockHeaderSize)
	if err != nil {
		return nil, err
	}
	raw := binary.LittleEndian.Uint16(view.Data())
	uncompressed, storedLen := decodeMetablockHeader(raw)
	if storedLen > metablockMaxSize {
		return nil, wrapErr(KindDecompress, nil)
	}

	info := &metablockInfo{address: it.pos, uncompressed: uncompressed, storedLen: storedLen}
	it.pos += metablockHeaderSize + int64(storedLen)
	if it.pos > it.limit {
		return nil, errOutOfBounds
	}
	return info, nil
}

// MetablockStream maintains a contiguous logical view over a chain of
// metablocks , materialising further blocks on demand through an
// ExtractManager that is shared with every other consumer of the same
// metadata region (the inode table, directory table, and so on).
type MetablockStream struct {
	mapper  Mapper
	manager *extractManager
	limit   int64

	baseAddress    int64 // start of the metablock chain
	currentAddress int64 // address of the next unread metablock header

	buffer       []byte
	bufferOffset int // consumed prefix of buffer
}

func newMetablockStream(mapper Mapper, manager *extractManager, base, limit int64) *MetablockStream {
	s := &MetablockStream{mapper: mapper, manager: manager, limit: limit}
	s.seek(base, 0)
	return s
}

// seek positions the stream at a new block-aligned start plus an
// intra-block byte offset, discarding any materialised buffer.
func (s *MetablockStream) seek(blockOffset int64, byteOffset uint16) error {
	s.baseAddress = blockOffset
	s.currentAddress = blockOffset
	s.buffer = nil
	s.bufferOffset = 0
	if byteOffset > 0 {
		if err := s.more(int(byteOffset)); err != nil {
			return err
		}
		s.consume(int(byteOffset))
	}
	return nil
}

// seekRef positions the stream using an inode-reference-style composite:
// the block component is added to the stream's base address and the byte
// component becomes the initial consumed offset.
func (s *MetablockStream) seekRef(ref inodeRef) error {
	return s.seek(s.baseAddress+int64(ref.blockOffset()), ref.byteOffset())
}

// more guarantees that at least n bytes beyond the already-consumed prefix
// are available in the buffer, decoding further metablocks as needed.
func (s *MetablockStream) more(n int) error {
	for len(s.buffer)-s.bufferOffset < n {
		if s.limit >= 0 && s.currentAddress >= s.limit {
			return errOutOfBounds
		}
		hview, err := s.mapper.Map(s.currentAddress, metablockHeaderSize)
		if err != nil {
			return err
		}
		raw := binary.LittleEndian.Uint16(hview.Data())
		uncompressed, storedLen := decodeMetablockHeader(raw)
		if storedLen > metablockMaxSize {
			return wrapErr(KindDecompress, nil)
		}

		bodyAddr := s.currentAddress + metablockHeaderSize
		reader := newMapReader(s.mapper, bodyAddr, s.limit)
		if err := reader.Advance(0, int64(storedLen)); err != nil {
			return err
		}

		var decoded []byte
		if uncompressed {
			decoded = make([]byte, storedLen)
			copy(decoded, reader.Data()[:storedLen])
		} else {
			buf, err := s.manager.uncompress(reader, metablockMaxSize)
			if err != nil {
				return err
			}
			decoded = buf.data
			s.manager.release(buf)
		}

		s.buffer = append(s.buffer[s.bufferOffset:], decoded...)
		s.bufferOffset = 0
		s.currentAddress = bodyAddr + int64(storedLen)
	}
	return nil
}

// Data returns the currently materialised, unconsumed tail of the stream.
func (s *MetablockStream) Data() []byte {
	return s.buffer[s.bufferOffset:]
}

// Size returns the number of materialised, unconsumed bytes.
func (s *MetablockStream) Size() int {
	return len(s.buffer) - s.bufferOffset
}

// consume advances past n already-materialised bytes.
func (s *MetablockStream) consume(n int) {
	s.bufferOffset += n
}

// Read implements io.Reader over the stream, materialising further
// metablocks as needed so that the usual
// binary.Read(stream, order, &field) call style keeps working unchanged
// against the layered decode.
func (s *MetablockStream) Read(p []byte) (int, error) {
	if err := s.more(len(p)); err != nil {
		return 0, err
	}
	n := copy(p, s.Data())
	s.consume(n)
	return n, nil
}
