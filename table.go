package squashfs

import "encoding/binary"

// table is the two-level indirect lookup structure  used for the id,
// export, and fragment tables: a directly-mapped array of 64-bit metablock
// pointers, each locating an 8 KiB metablock that holds a run of
// fixed-stride entries.
type table struct {
	mapper  Mapper
	manager *extractManager

	ptrs   []uint64 // metablock start addresses, read directly (uncompressed)
	stride int
	count  int
}

// newTable reads a table's pointer array (ptrAddr, one uint64 per metablock
// needed to hold count entries of width stride bytes) and prepares it for
// indexed lookups.
func newTable(mapper Mapper, manager *extractManager, ptrAddr int64, count, stride int) (*table, error) {
	if stride <= 0 || count < 0 {
		return nil, wrapErr(KindIntegerOverflow, nil)
	}
	totalBytes := int64(count) * int64(stride)
	if stride != 0 && totalBytes/int64(stride) != int64(count) {
		return nil, wrapErr(KindIntegerOverflow, nil)
	}

	numMetablocks := 0
	if count > 0 {
		entriesPerBlock := metablockMaxSize / stride
		if entriesPerBlock == 0 {
			return nil, wrapErr(KindIntegerOverflow, nil)
		}
		numMetablocks = (count + entriesPerBlock - 1) / entriesPerBlock
	}

	ptrs := make([]uint64, numMetablocks)
	if numMetablocks > 0 {
		view, err := mapper.Map(ptrAddr, int64(numMetablocks)*8)
		if err != nil {
			return nil, err
		}
		data := view.Data()
		for i := 0; i < numMetablocks; i++ {
			ptrs[i] = binary.LittleEndian.Uint64(data[i*8 : i*8+8])
		}
	}

	return &table{mapper: mapper, manager: manager, ptrs: ptrs, stride: stride, count: count}, nil
}

// get reads the stride-byte record at idx into out, following the
// pointer-array indirection and decoding the owning metablock through the
// ExtractManager.
func (t *table) get(idx int, out []byte) error {
	if idx < 0 || idx >= t.count || len(out) != t.stride {
		return wrapErr(KindIntegerOverflow, nil)
	}

	entriesPerBlock := metablockMaxSize / t.stride
	metaIdx := idx / entriesPerBlock
	off := (idx % entriesPerBlock) * t.stride
	if metaIdx >= len(t.ptrs) {
		return wrapErr(KindIntegerOverflow, nil)
	}

	blockAddr := int64(t.ptrs[metaIdx])
	hview, err := t.mapper.Map(blockAddr, metablockHeaderSize)
	if err != nil {
		return err
	}
	raw := binary.LittleEndian.Uint16(hview.Data())
	uncompressed, storedLen := decodeMetablockHeader(raw)
	if storedLen > metablockMaxSize {
		return wrapErr(KindDecompress, nil)
	}

	bodyAddr := blockAddr + metablockHeaderSize
	reader := newMapReader(t.mapper, bodyAddr, -1)
	if err := reader.Advance(0, int64(storedLen)); err != nil {
		return err
	}

	var decoded []byte
	var buf *decodedBuffer
	if uncompressed {
		decoded = reader.Data()[:storedLen]
	} else {
		var err error
		buf, err = t.manager.uncompress(reader, metablockMaxSize)
		if err != nil {
			return err
		}
		decoded = buf.data
	}

	if off+t.stride > len(decoded) {
		return wrapErr(KindIntegerOverflow, nil)
	}
	copy(out, decoded[off:off+t.stride])
	if buf != nil {
		t.manager.release(buf)
	}
	return nil
}
