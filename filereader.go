package squashfs

// FileReader assembles a regular file's content : per-block data
// plus an optional fragment tail, against the data region shared with the
// metadata decode cache through the same ExtractManager.
type FileReader struct {
	img  *Image
	node *Inode

	buf     []byte
	seekPos int64

	// blockAddrs[i] is the absolute source address of data block i,
	// computed lazily and incrementally by blockAddr as blocks are
	// visited in increasing order, so a sequential read over a large
	// file never resums the preceding block-size run from scratch.
	blockAddrs []int64
}

func newFileReader(img *Image, node *Inode) (*FileReader, error) {
	if node.Type.Basic() != FileType {
		return nil, wrapErr(KindNotAFile, nil)
	}
	return &FileReader{img: img, node: node}, nil
}

// Size returns the file's total content length.
func (f *FileReader) Size() uint64 { return f.node.FileSize() }

// Seek repositions the reader's logical read cursor. Seeking after any
// read is unsupported: the reader is forward-only once consumption has
// begun.
func (f *FileReader) Seek(pos int64) error {
	if len(f.buf) > 0 {
		return wrapErr(KindSeekOutOfRange, nil)
	}
	f.seekPos = pos
	return nil
}

// Read extends the reader's buffer by up to n bytes of file content
// starting at the current seek position and returns the newly appended
// slice. Reading past the end of the file is reported as ErrSeekOutOfRange
// but leaves the buffer consistent at the file's true size.
func (f *FileReader) Read(n int) ([]byte, error) {
	size := f.node.FileSize()
	start := len(f.buf)
	pos := f.seekPos + int64(start)

	if pos > int64(size) {
		return nil, wrapErr(KindSeekOutOfRange, nil)
	}

	avail := int64(size) - pos
	remaining := int64(n)
	overflow := remaining > avail
	if overflow {
		remaining = avail
	}

	blockSize := int64(f.img.sb.BlockSize)
	fullBlockBytes := int64(f.node.BlockCount()) * blockSize
	if f.node.HasFragment() {
		fullBlockBytes = (int64(size) / blockSize) * blockSize
	}

	for remaining > 0 {
		cur := f.seekPos + int64(len(f.buf))

		if cur < fullBlockBytes {
			chunk, err := f.readDataBlock(cur, fullBlockBytes, blockSize)
			if err != nil {
				return nil, err
			}
			inBlock := cur % blockSize
			if inBlock >= int64(len(chunk)) {
				return nil, wrapErr(KindDecompress, nil)
			}
			chunk = chunk[inBlock:]
			take := int64(len(chunk))
			if take > remaining {
				take = remaining
			}
			f.buf = append(f.buf, chunk[:take]...)
			remaining -= take
			continue
		}

		// Fragment tail.
		if !f.node.HasFragment() {
			return nil, wrapErr(KindSeekOutOfRange, nil)
		}
		tail, err := f.readFragmentTail()
		if err != nil {
			return nil, err
		}
		tailOffset := cur - fullBlockBytes
		if tailOffset >= int64(len(tail)) {
			return nil, wrapErr(KindSeekOutOfRange, nil)
		}
		chunk := tail[tailOffset:]
		take := int64(len(chunk))
		if take > remaining {
			take = remaining
		}
		f.buf = append(f.buf, chunk[:take]...)
		remaining -= take
	}

	if overflow {
		return f.buf[start:], wrapErr(KindSeekOutOfRange, nil)
	}
	return f.buf[start:], nil
}

// blockAddr returns the absolute source address of data block i, extending
// the cached prefix sum incrementally rather than re-summing every
// preceding block's stored size on each call.
func (f *FileReader) blockAddr(i int) int64 {
	if len(f.blockAddrs) == 0 {
		f.blockAddrs = append(f.blockAddrs, int64(f.node.BlocksStart()))
	}
	for len(f.blockAddrs) <= i {
		last := len(f.blockAddrs) - 1
		f.blockAddrs = append(f.blockAddrs, f.blockAddrs[last]+int64(f.node.BlockSize(last)))
	}
	return f.blockAddrs[i]
}

// readDataBlock returns the decoded content of the full data block
// covering absolute content offset pos.
func (f *FileReader) readDataBlock(pos, fullBlockBytes, blockSize int64) ([]byte, error) {
	blockIndex := int(pos / blockSize)
	addr := f.blockAddr(blockIndex)

	storedLen := f.node.BlockSize(blockIndex)
	thisBlockLen := blockSize
	if int64(blockIndex+1)*blockSize > fullBlockBytes {
		thisBlockLen = fullBlockBytes - int64(blockIndex)*blockSize
	}

	if storedLen == 0 {
		// Sparse hole: contributes blockSize zero bytes without any decode.
		return make([]byte, thisBlockLen), nil
	}

	reader := newMapReader(f.img.mapper, addr, -1)
	if err := reader.Advance(0, int64(storedLen)); err != nil {
		return nil, err
	}

	if !f.node.BlockIsCompressed(blockIndex) {
		out := make([]byte, storedLen)
		copy(out, reader.Data()[:storedLen])
		return out, nil
	}

	buf, err := f.img.dataExtractManager.uncompress(reader, int(blockSize))
	if err != nil {
		return nil, err
	}
	data := buf.data
	f.img.dataExtractManager.release(buf)
	return data, nil
}

// readFragmentTail fetches and slices the shared fragment block holding
// this file's partial final block.
func (f *FileReader) readFragmentTail() ([]byte, error) {
	entry, err := f.img.fragmentEntry(f.node.FragmentBlockIndex())
	if err != nil {
		return nil, err
	}

	reader := newMapReader(f.img.mapper, int64(entry.start), -1)
	storedLen := entry.sizeAndFlag & 0x00ffffff
	if err := reader.Advance(0, int64(storedLen)); err != nil {
		return nil, err
	}

	var block []byte
	if entry.sizeAndFlag&0x01000000 != 0 {
		// Bit 24 set: stored uncompressed, same convention as a data
		// block's per-block size entry.
		block = make([]byte, storedLen)
		copy(block, reader.Data()[:storedLen])
	} else {
		buf, err := f.img.dataExtractManager.uncompress(reader, int(f.img.sb.BlockSize))
		if err != nil {
			return nil, err
		}
		block = buf.data
		f.img.dataExtractManager.release(buf)
	}

	off := int64(f.node.FragmentBlockOffset())
	size := f.node.FileSize() % uint64(f.img.sb.BlockSize)
	if off+int64(size) > int64(len(block)) {
		return nil, wrapErr(KindSeekInFragment, nil)
	}
	return block[off : off+int64(size)], nil
}
