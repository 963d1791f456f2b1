package squashfs

import "encoding/binary"

const noXattr = 0xFFFFFFFF

// xattr type field: low byte selects a namespace, the 0x0100 bit marks an
// out-of-line (indirect) value.
const (
	xattrNamespaceMask = 0x00ff
	xattrOutOfLineFlag = 0x0100

	xattrNamespaceUser     = 0
	xattrNamespaceTrusted  = 1
	xattrNamespaceSecurity = 2
)

func xattrPrefix(namespace uint16) string {
	switch namespace & xattrNamespaceMask {
	case xattrNamespaceUser:
		return "user."
	case xattrNamespaceTrusted:
		return "trusted."
	case xattrNamespaceSecurity:
		return "security."
	default:
		return ""
	}
}

// xattrIDEntry is one record of the xattr id table: an index maps to a
// reference into the value table plus bookkeeping counts
type xattrIDEntry struct {
	ref   inodeRef
	count uint32
	size  uint32
}

// XattrIterator walks the xattr key/value pairs attached to one inode
// , resolving indirect ("out-of-line") values transparently.
type XattrIterator struct {
	img    *Image
	stream *MetablockStream

	remaining uint32

	namespace uint16
	name      []byte
	value     []byte
	indirect  bool
}

// newXattrIterator prepares an iterator over xattrIdx's entries. It
// reports ErrNoXattrTable if the image carries no xattr tables at all.
func newXattrIterator(img *Image, xattrIdx uint32) (*XattrIterator, error) {
	if !img.sb.hasXattrTable() {
		return nil, wrapErr(KindNoXattrTable, nil)
	}
	idTable, valueBase, err := img.xattrTables()
	if err != nil {
		return nil, err
	}

	var raw [16]byte
	if err := idTable.get(int(xattrIdx), raw[:]); err != nil {
		return nil, err
	}
	entry := xattrIDEntry{
		ref:   inodeRef(binary.LittleEndian.Uint64(raw[0:8])),
		count: binary.LittleEndian.Uint32(raw[8:12]),
		size:  binary.LittleEndian.Uint32(raw[12:16]),
	}

	stream := newMetablockStream(img.mapper, img.metaExtractManager, valueBase, -1)
	if err := stream.seekRef(entry.ref); err != nil {
		return nil, err
	}

	return &XattrIterator{img: img, stream: stream, remaining: entry.count}, nil
}

// Next advances to the next key/value pair.
func (it *XattrIterator) Next() (bool, error) {
	if it.remaining == 0 {
		return false, nil
	}
	it.remaining--

	var hdr [4]byte
	if _, err := readFull(it.stream, hdr[:]); err != nil {
		return false, err
	}
	xtype := binary.LittleEndian.Uint16(hdr[0:2])
	nameSize := binary.LittleEndian.Uint16(hdr[2:4])

	name := make([]byte, nameSize)
	if _, err := readFull(it.stream, name); err != nil {
		return false, err
	}
	it.name = name
	it.namespace = xtype
	it.indirect = xtype&xattrOutOfLineFlag != 0

	var vh [4]byte
	if _, err := readFull(it.stream, vh[:]); err != nil {
		return false, err
	}
	valueSize := binary.LittleEndian.Uint32(vh[:])

	if !it.indirect {
		value := make([]byte, valueSize)
		if _, err := readFull(it.stream, value); err != nil {
			return false, err
		}
		it.value = value
		return true, nil
	}

	// Out-of-line: valueSize bytes here are actually a reference to the
	// real (size, bytes) pair living elsewhere in the value table.
	refBytes := make([]byte, valueSize)
	if _, err := readFull(it.stream, refBytes); err != nil {
		return false, err
	}
	if len(refBytes) < 8 {
		return false, wrapErr(KindDecompress, nil)
	}
	ref := inodeRef(binary.LittleEndian.Uint64(refBytes[0:8]))

	indirectStream := newMetablockStream(it.img.mapper, it.img.metaExtractManager, it.stream.baseAddress, -1)
	if err := indirectStream.seekRef(ref); err != nil {
		return false, err
	}
	var sz [4]byte
	if _, err := readFull(indirectStream, sz[:]); err != nil {
		return false, err
	}
	realSize := binary.LittleEndian.Uint32(sz[:])
	value := make([]byte, realSize)
	if _, err := readFull(indirectStream, value); err != nil {
		return false, err
	}
	it.value = value
	return true, nil
}

// FullName is prefix_string(namespace) + suffix
func (it *XattrIterator) FullName() string { return xattrPrefix(it.namespace) + string(it.name) }

// Name returns the raw suffix bytes as stored on disk (without the
// namespace prefix); callers typically want FullName instead.
func (it *XattrIterator) Name() []byte { return it.name }

// IsIndirect reports whether the current value was stored out-of-line.
func (it *XattrIterator) IsIndirect() bool { return it.indirect }

// Value returns the current pair's value, already resolved through one
// level of indirection if needed.
func (it *XattrIterator) Value() []byte { return it.value }
