package squashfs

import (
	"encoding/binary"
	"io/fs"
)

const noFragment = 0xFFFFFFFF

// inodeHeaderSize is the width of the common inode header shared by every
// on-disk inode type
const inodeHeaderSize = 16

// Inode is the InodeView component : given an inode reference and a
// metablock stream over the inode table, it materialises enough bytes to
// determine the type, then extends the window to cover the full
// type-specific record, exposing typed accessors over the result.
type Inode struct {
	img *Image

	Ino   uint32
	Type  Type
	Perm  uint16
	UidIdx uint16
	GidIdx uint16
	Mtime int32

	// type-specific fields, populated by the tail decoder for the inode's
	// basic type (Type.Basic()).
	dirBlockStart  uint32
	dirBlockOffset uint32
	dirFileSize    uint64
	dirParentInode uint32

	fileBlocksStart   uint64
	fileSize          uint64
	fileSparse        uint64
	fileFragBlockIdx  uint32
	fileFragBlockOff  uint32
	blockSizes        []uint32 // raw 32-bit block-size entries, bit 24 = uncompressed

	symlinkTarget []byte

	devID uint32

	nlink     uint32
	xattrIdx  uint32
}

// loadInode decodes the inode at ref from the inode table's metablock
// stream
func loadInode(img *Image, ref inodeRef) (*Inode, error) {
	stream := img.inodeStream()
	if err := stream.seek(img.sb.InodeTableStart+int64(ref.blockOffset()), ref.byteOffset()); err != nil {
		return nil, err
	}

	var hdr [inodeHeaderSize]byte
	if _, err := readFull(stream, hdr[:]); err != nil {
		return nil, err
	}

	n := &Inode{img: img}
	n.Type = Type(binary.LittleEndian.Uint16(hdr[0:2]))
	n.Perm = binary.LittleEndian.Uint16(hdr[2:4])
	n.UidIdx = binary.LittleEndian.Uint16(hdr[4:6])
	n.GidIdx = binary.LittleEndian.Uint16(hdr[6:8])
	n.Mtime = int32(binary.LittleEndian.Uint32(hdr[8:12]))
	n.Ino = binary.LittleEndian.Uint32(hdr[12:16])
	n.xattrIdx = noXattr
	n.fileFragBlockIdx = noFragment

	if err := n.loadTail(stream); err != nil {
		return nil, err
	}
	return n, nil
}

func readFull(stream *MetablockStream, p []byte) (int, error) {
	n := 0
	for n < len(p) {
		m, err := stream.Read(p[n:])
		n += m
		if err != nil {
			return n, err
		}
		if m == 0 {
			return n, wrapErr(KindDecompress, nil)
		}
	}
	return n, nil
}

func (n *Inode) loadTail(stream *MetablockStream) error {
	switch n.Type.Basic() {
	case DirType:
		return n.loadDir(stream, n.Type == XDirType)
	case FileType:
		return n.loadFile(stream, n.Type == XFileType)
	case SymlinkType:
		return n.loadSymlink(stream, n.Type == XSymlinkType)
	case BlockDevType, CharDevType:
		return n.loadDevice(stream, n.Type == XBlockDevType || n.Type == XCharDevType)
	case FifoType, SocketType:
		return n.loadIPC(stream, n.Type == XFifoType || n.Type == XSocketType)
	default:
		return wrapErr(KindUnknownInodeType, nil)
	}
}

func (n *Inode) loadDir(stream *MetablockStream, extended bool) error {
	if !extended {
		var b [16]byte
		if _, err := readFull(stream, b[:]); err != nil {
			return err
		}
		n.dirBlockStart = binary.LittleEndian.Uint32(b[0:4])
		n.nlink = binary.LittleEndian.Uint32(b[4:8])
		n.dirFileSize = uint64(binary.LittleEndian.Uint16(b[8:10]))
		n.dirBlockOffset = uint32(binary.LittleEndian.Uint16(b[10:12]))
		n.dirParentInode = binary.LittleEndian.Uint32(b[12:16])
		return nil
	}

	var b [24]byte
	if _, err := readFull(stream, b[:]); err != nil {
		return err
	}
	n.nlink = binary.LittleEndian.Uint32(b[0:4])
	n.dirFileSize = uint64(binary.LittleEndian.Uint32(b[4:8]))
	n.dirBlockStart = binary.LittleEndian.Uint32(b[8:12])
	n.dirParentInode = binary.LittleEndian.Uint32(b[12:16])
	indexCount := binary.LittleEndian.Uint16(b[16:18])
	n.dirBlockOffset = uint32(binary.LittleEndian.Uint16(b[18:20]))
	n.xattrIdx = binary.LittleEndian.Uint32(b[20:24])

	// Directory index entries are an optimisation for large directories'
	// binary search; this reader always does a linear/forward scan via
	// DirectoryIterator, so the index is skipped rather than parsed.
	for i := uint16(0); i < indexCount; i++ {
		var ih [12]byte
		if _, err := readFull(stream, ih[:]); err != nil {
			return err
		}
		nameSize := binary.LittleEndian.Uint32(ih[8:12])
		if _, err := readFull(stream, make([]byte, nameSize+1)); err != nil {
			return err
		}
	}
	return nil
}

func (n *Inode) loadFile(stream *MetablockStream, extended bool) error {
	if !extended {
		var b [16]byte
		if _, err := readFull(stream, b[:]); err != nil {
			return err
		}
		n.fileBlocksStart = uint64(binary.LittleEndian.Uint32(b[0:4]))
		n.fileFragBlockIdx = binary.LittleEndian.Uint32(b[4:8])
		n.fileFragBlockOff = binary.LittleEndian.Uint32(b[8:12])
		n.fileSize = uint64(binary.LittleEndian.Uint32(b[12:16]))
		n.nlink = 1
	} else {
		var b [40]byte
		if _, err := readFull(stream, b[:]); err != nil {
			return err
		}
		n.fileBlocksStart = binary.LittleEndian.Uint64(b[0:8])
		n.fileSize = binary.LittleEndian.Uint64(b[8:16])
		n.fileSparse = binary.LittleEndian.Uint64(b[16:24])
		n.nlink = binary.LittleEndian.Uint32(b[24:28])
		n.fileFragBlockIdx = binary.LittleEndian.Uint32(b[28:32])
		n.fileFragBlockOff = binary.LittleEndian.Uint32(b[32:36])
		n.xattrIdx = binary.LittleEndian.Uint32(b[36:40])
	}

	count := n.blockCountForLoad()
	if count > 0 {
		raw := make([]byte, count*4)
		if _, err := readFull(stream, raw); err != nil {
			return err
		}
		n.blockSizes = make([]uint32, count)
		for i := range n.blockSizes {
			n.blockSizes[i] = binary.LittleEndian.Uint32(raw[i*4 : i*4+4])
		}
	}
	return nil
}

// blockCountForLoad mirrors BlockCount but is usable before the inode is
// fully constructed (it only depends on fields already decoded).
func (n *Inode) blockCountForLoad() int {
	if n.fileSize == 0xFFFFFFFFFFFFFFFF {
		return -1
	}
	blockSize := uint64(n.img.sb.BlockSize)
	if n.fileFragBlockIdx != noFragment {
		return int(n.fileSize / blockSize)
	}
	return int((n.fileSize + blockSize - 1) / blockSize)
}

func (n *Inode) loadSymlink(stream *MetablockStream, extended bool) error {
	var b [8]byte
	if _, err := readFull(stream, b[:]); err != nil {
		return err
	}
	n.nlink = binary.LittleEndian.Uint32(b[0:4])
	targetSize := binary.LittleEndian.Uint32(b[4:8])

	target := make([]byte, targetSize)
	if _, err := readFull(stream, target); err != nil {
		return err
	}
	n.symlinkTarget = target

	if extended {
		var xb [4]byte
		if _, err := readFull(stream, xb[:]); err != nil {
			return err
		}
		n.xattrIdx = binary.LittleEndian.Uint32(xb[:])
	}
	return nil
}

func (n *Inode) loadDevice(stream *MetablockStream, extended bool) error {
	if !extended {
		var b [8]byte
		if _, err := readFull(stream, b[:]); err != nil {
			return err
		}
		n.nlink = binary.LittleEndian.Uint32(b[0:4])
		n.devID = binary.LittleEndian.Uint32(b[4:8])
		return nil
	}
	var b [12]byte
	if _, err := readFull(stream, b[:]); err != nil {
		return err
	}
	n.nlink = binary.LittleEndian.Uint32(b[0:4])
	n.devID = binary.LittleEndian.Uint32(b[4:8])
	n.xattrIdx = binary.LittleEndian.Uint32(b[8:12])
	return nil
}

func (n *Inode) loadIPC(stream *MetablockStream, extended bool) error {
	if !extended {
		var b [4]byte
		if _, err := readFull(stream, b[:]); err != nil {
			return err
		}
		n.nlink = binary.LittleEndian.Uint32(b[:])
		return nil
	}
	var b [8]byte
	if _, err := readFull(stream, b[:]); err != nil {
		return err
	}
	n.nlink = binary.LittleEndian.Uint32(b[0:4])
	n.xattrIdx = binary.LittleEndian.Uint32(b[4:8])
	return nil
}

// FileSize returns a file or directory inode's size field (byte length for
// files, listing size for directories).
func (n *Inode) FileSize() uint64 {
	switch n.Type.Basic() {
	case FileType:
		return n.fileSize
	case DirType:
		return n.dirFileSize
	}
	return 0
}

// BlockCount is the number of full data blocks a file inode spans:
// UINT32_MAX for a sparse file of unknown size, floor for fragmented
// files, ceil otherwise.
func (n *Inode) BlockCount() uint32 {
	if n.Type.Basic() != FileType {
		return 0
	}
	c := n.blockCountForLoad()
	if c < 0 {
		return 0xFFFFFFFF
	}
	return uint32(c)
}

func (n *Inode) BlockSize(i int) uint32 {
	if i < 0 || i >= len(n.blockSizes) {
		return 0
	}
	return n.blockSizes[i] & 0x00FFFFFF
}

func (n *Inode) BlockIsCompressed(i int) bool {
	if i < 0 || i >= len(n.blockSizes) {
		return false
	}
	return n.blockSizes[i]&0x01000000 == 0
}

func (n *Inode) BlocksStart() uint64 { return n.fileBlocksStart }

func (n *Inode) FragmentBlockIndex() uint32 { return n.fileFragBlockIdx }
func (n *Inode) FragmentBlockOffset() uint32 { return n.fileFragBlockOff }
func (n *Inode) HasFragment() bool           { return n.fileFragBlockIdx != noFragment }

func (n *Inode) SymlinkTarget() []byte { return n.symlinkTarget }

func (n *Inode) DeviceID() uint32 { return n.devID }

func (n *Inode) HardLinkCount() uint32 { return n.nlink }

func (n *Inode) XattrIndex() uint32 { return n.xattrIdx }
func (n *Inode) HasXattr() bool     { return n.xattrIdx != noXattr }

func (n *Inode) Permissions() uint16 { return n.Perm }

func (n *Inode) ModifiedTime() int32 { return n.Mtime }

// Mode returns a full fs.FileMode: the inode's type bits plus its unix
// permission bits and any setuid/setgid/sticky bits, the way mode.go's
// UnixToMode composes them. n.Perm holds only the 12-bit permission field
// (no S_IFMT bits), so UnixToMode's type switch never fires on it here.
func (n *Inode) Mode() fs.FileMode {
	return n.Type.Mode() | UnixToMode(uint32(n.Perm))
}

// UID resolves the inode's uid_idx through the image's id table.
func (n *Inode) UID() (uint32, error) { return n.img.lookupID(n.UidIdx) }

// GID resolves the inode's gid_idx through the image's id table.
func (n *Inode) GID() (uint32, error) { return n.img.lookupID(n.GidIdx) }

// DirectoryBlockStart and DirectoryBlockOffset locate a directory inode's
// listing within the directory table's metablock stream.
func (n *Inode) DirectoryBlockStart() uint32  { return n.dirBlockStart }
func (n *Inode) DirectoryBlockOffset() uint32 { return n.dirBlockOffset }
func (n *Inode) DirectoryParentInode() uint32 { return n.dirParentInode }
