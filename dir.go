package squashfs

import (
	"bytes"
	"encoding/binary"
)

// dirHeaderSize and dirEntrySize are the fixed-width portions of a
// directory header and entry: a header introduces up to 256
// entries sharing one inode-table metablock start.
const dirHeaderSize = 12
const dirEntrySize = 8

// DirectoryIterator walks the listing of a directory inode ,
// decoding headers and entries from the directory table's metablock
// stream.
type DirectoryIterator struct {
	img    *Image
	stream *MetablockStream

	remaining int64 // bytes of listing left to consume, tracking the directory's file_size accounting

	curHeaderStart    uint32
	curEntriesLeft    uint32
	headerInodeNumber int32

	name        []byte
	inodeRef    inodeRef
	inodeType   Type
	inodeNumber uint32
}

// newDirectoryIterator positions a DirectoryIterator at the start of dir's
// listing.
func newDirectoryIterator(img *Image, dir *Inode) (*DirectoryIterator, error) {
	if dir.Type.Basic() != DirType {
		return nil, wrapErr(KindNotADirectory, nil)
	}
	stream := img.dirStream()
	if err := stream.seek(img.sb.DirTableStart+int64(dir.DirectoryBlockStart()), uint16(dir.DirectoryBlockOffset())); err != nil {
		return nil, err
	}

	// Squashfs's directory file_size includes 3 bytes of fixed overhead
	// beyond the actual listing bytes.
	remaining := int64(dir.FileSize())
	if remaining >= 3 {
		remaining -= 3
	} else {
		remaining = 0
	}

	return &DirectoryIterator{img: img, stream: stream, remaining: remaining}, nil
}

// Next advances to the next entry, returning true on success and false at
// the end of the listing.
func (it *DirectoryIterator) Next() (bool, error) {
	for it.curEntriesLeft == 0 {
		if it.remaining <= 0 {
			return false, nil
		}
		var hdr [dirHeaderSize]byte
		if _, err := readFull(it.stream, hdr[:]); err != nil {
			return false, err
		}
		it.remaining -= dirHeaderSize

		count := binary.LittleEndian.Uint32(hdr[0:4]) + 1
		it.curHeaderStart = binary.LittleEndian.Uint32(hdr[4:8])
		it.curEntriesLeft = count
		// header's inode_number is folded into each entry's delta below
		it.headerInodeNumber = int32(binary.LittleEndian.Uint32(hdr[8:12]))
	}

	var eb [dirEntrySize]byte
	if _, err := readFull(it.stream, eb[:]); err != nil {
		return false, err
	}
	it.remaining -= dirEntrySize

	offset := binary.LittleEndian.Uint16(eb[0:2])
	inodeDelta := int16(binary.LittleEndian.Uint16(eb[2:4]))
	it.inodeType = Type(binary.LittleEndian.Uint16(eb[4:6]))
	nameSize := int(binary.LittleEndian.Uint16(eb[6:8])) + 1

	name := make([]byte, nameSize)
	if _, err := readFull(it.stream, name); err != nil {
		return false, err
	}
	it.remaining -= int64(nameSize)
	it.name = name

	inodeNumber := it.headerInodeNumber + int32(inodeDelta)
	it.inodeRef = makeInodeRef(uint64(it.curHeaderStart), offset)
	it.inodeNumber = uint32(inodeNumber)

	it.curEntriesLeft--
	return true, nil
}

// Name returns the current entry's name.
func (it *DirectoryIterator) Name() []byte { return it.name }

// InodeRef returns the current entry's inode reference.
func (it *DirectoryIterator) InodeRef() inodeRef { return it.inodeRef }

// InodeNumber returns the current entry's dense inode number.
func (it *DirectoryIterator) InodeNumber() uint32 { return it.inodeNumber }

// InodeType returns the current entry's basic on-disk type.
func (it *DirectoryIterator) InodeType() Type { return it.inodeType }

// LoadInode decodes the full inode the current entry points to.
func (it *DirectoryIterator) LoadInode() (*Inode, error) {
	return loadInode(it.img, it.inodeRef)
}

// Lookup scans forward for an entry named name, stopping at the first
// match or at the end of the listing. Entries are sorted within a header
// but a header boundary resets the comparison baseline: once an entry
// exceeds name, the rest of that header is skipped without comparison and
// the scan resumes at the next header.
func (it *DirectoryIterator) Lookup(name []byte) (bool, error) {
	for {
		ok, err := it.Next()
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}

		cmp := bytes.Compare(it.name, name)
		if cmp == 0 {
			return true, nil
		}
		// Past name within a sorted header: nothing left under this header
		// can match, so consume its remaining entries and restart the
		// comparison at the next header.
		if cmp > 0 {
			for it.curEntriesLeft > 0 {
				if _, err := it.Next(); err != nil {
					return false, err
				}
			}
		}
	}
}
