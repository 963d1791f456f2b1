package squashfs

import (
	"encoding/binary"
	"io"
	"io/fs"
	"log"
	"path"
	"sync"
	"time"
)

const (
	idTableEntrySize     = 4
	exportTableEntrySize = 8
	fragTableEntrySize   = 16
	xattrIDEntrySize     = 16
)

// fragmentEntryRec is one record of the fragment table: the absolute offset
// and compressed-flagged size of a shared tail block
type fragmentEntryRec struct {
	start       uint64
	sizeAndFlag uint32
}

// Image is the top-level, immutable handle onto an opened squashfs source:
// it owns the Mapper, the superblock, and every lazily-initialised table,
// and is the object every iterator, reader and resolver borrows from.
// Nothing about an Image is mutable once Open returns
// Lifecycle rule.
type Image struct {
	mapper Mapper
	sb     *Superblock
	cfg    *openConfig

	metaExtractManager *extractManager // shared by inode/dir/table/xattr metablocks
	dataExtractManager *extractManager // data blocks and fragments; the same manager as metaExtractManager

	compressionOptions []byte

	root *Inode

	idTableOnce  sync.Once
	idTable      *table
	idTableErr   error

	fragTableOnce sync.Once
	fragTable     *table
	fragTableErr  error

	exportTableOnce sync.Once
	exportTable     *table
	exportTableErr  error

	xattrIDTableOnce sync.Once
	xattrIDTable     *table
	xattrValueBase   int64
	xattrTableErr    error
}

// Open parses src (a file path, an http(s) URL, or an in-memory source
// configured via WithMemorySource) into an Image
func Open(src string, opts ...Option) (*Image, error) {
	cfg := newOpenConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	mapper, err := newMapper(src, cfg)
	if err != nil {
		return nil, err
	}

	size := cfg.sourceSize
	if size == 0 {
		size = mapper.Size()
	}

	log.Printf("squash: opening %s", src)
	view, err := mapper.Map(0, superblockSize)
	if err != nil {
		mapper.Close()
		return nil, err
	}
	sb, err := parseSuperblock(view.Data(), size)
	if err != nil {
		mapper.Close()
		return nil, err
	}
	sb.inoOfft = cfg.inoOfft

	img := &Image{
		mapper: mapper,
		sb:     sb,
		cfg:    cfg,
	}
	img.metaExtractManager, err = newExtractManager(sb.Comp, cfg.compressionLRUSize)
	if err != nil {
		mapper.Close()
		return nil, err
	}
	img.dataExtractManager, err = newExtractManager(sb.Comp, cfg.compressionLRUSize)
	if err != nil {
		mapper.Close()
		return nil, err
	}

	if sb.Flags.Has(COMPRESSOR_OPTIONS) {
		optStream := newMetablockStream(mapper, img.metaExtractManager, superblockSize, int64(sb.InodeTableStart))
		if err := optStream.more(1); err != nil {
			mapper.Close()
			return nil, err
		}
		img.compressionOptions = append([]byte(nil), optStream.Data()...)
	}

	root, err := loadInode(img, inodeRef(sb.RootInode))
	if err != nil {
		mapper.Close()
		return nil, err
	}
	img.root = root

	return img, nil
}

// Close releases the image's underlying Mapper (file handles, etc).
func (img *Image) Close() error { return img.mapper.Close() }

// Superblock exposes the image's parsed, validated header.
func (img *Image) Superblock() *Superblock { return img.sb }

// nextTableBoundary finds the closest defined table start strictly after
// after, falling back to bytes_used; table regions are not guaranteed to
// appear in a fixed relative order on disk, so every other table's start
// is a candidate boundary rather than one hardcoded neighbor.
func (img *Image) nextTableBoundary(after uint64) int64 {
	limit := img.sb.BytesUsed
	candidates := []uint64{
		img.sb.InodeTableStart, img.sb.DirTableStart, img.sb.FragTableStart,
		img.sb.ExportTableStart, img.sb.IdTableStart, img.sb.XattrIdTableStart,
	}
	for _, c := range candidates {
		if hasTable(c) && c > after && c < limit {
			limit = c
		}
	}
	return int64(limit)
}

func (img *Image) inodeStream() *MetablockStream {
	limit := img.nextTableBoundary(img.sb.InodeTableStart)
	return newMetablockStream(img.mapper, img.metaExtractManager, int64(img.sb.InodeTableStart), limit)
}

func (img *Image) dirStream() *MetablockStream {
	limit := img.nextTableBoundary(img.sb.DirTableStart)
	return newMetablockStream(img.mapper, img.metaExtractManager, int64(img.sb.DirTableStart), limit)
}

func (img *Image) rootInode() (*Inode, error) { return img.root, nil }

// FindInode resolves a `/`-separated path to its inode
func (img *Image) FindInode(p string) (*Inode, error) {
	return newPathResolver(img).Resolve(p)
}

// InodeByNumber resolves a dense 32-bit inode number through the export
// table NFS-export supplement. It reports
// ErrNoExportTable if the image was built without one.
func (img *Image) InodeByNumber(number uint32) (*Inode, error) {
	t, err := img.exportTableHandle()
	if err != nil {
		return nil, err
	}
	var raw [exportTableEntrySize]byte
	if err := t.get(int(number-1), raw[:]); err != nil {
		return nil, err
	}
	return loadInode(img, inodeRef(binary.LittleEndian.Uint64(raw[:])))
}

func (img *Image) exportTableHandle() (*table, error) {
	img.exportTableOnce.Do(func() {
		if !img.sb.hasExportTable() {
			img.exportTableErr = wrapErr(KindNoExportTable, nil)
			return
		}
		img.exportTable, img.exportTableErr = newTable(img.mapper, img.metaExtractManager, int64(img.sb.ExportTableStart), int(img.sb.InodeCnt), exportTableEntrySize)
	})
	return img.exportTable, img.exportTableErr
}

func (img *Image) idTableHandle() (*table, error) {
	img.idTableOnce.Do(func() {
		img.idTable, img.idTableErr = newTable(img.mapper, img.metaExtractManager, int64(img.sb.IdTableStart), int(img.sb.IdCount), idTableEntrySize)
	})
	return img.idTable, img.idTableErr
}

func (img *Image) lookupID(idx uint16) (uint32, error) {
	t, err := img.idTableHandle()
	if err != nil {
		return 0, err
	}
	var raw [idTableEntrySize]byte
	if err := t.get(int(idx), raw[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(raw[:]), nil
}

func (img *Image) fragmentTableHandle() (*table, error) {
	img.fragTableOnce.Do(func() {
		if !img.sb.hasFragTable() {
			img.fragTableErr = wrapErr(KindNoFragmentTable, nil)
			return
		}
		img.fragTable, img.fragTableErr = newTable(img.mapper, img.metaExtractManager, int64(img.sb.FragTableStart), int(img.sb.FragCount), fragTableEntrySize)
	})
	return img.fragTable, img.fragTableErr
}

func (img *Image) fragmentEntry(index uint32) (*fragmentEntryRec, error) {
	t, err := img.fragmentTableHandle()
	if err != nil {
		return nil, err
	}
	var raw [fragTableEntrySize]byte
	if err := t.get(int(index), raw[:]); err != nil {
		return nil, err
	}
	return &fragmentEntryRec{
		start:       binary.LittleEndian.Uint64(raw[0:8]),
		sizeAndFlag: binary.LittleEndian.Uint32(raw[8:12]),
	}, nil
}

// xattrTables lazily builds the xattr id table and locates the start of
// the value table two-parallel-tables layout.
func (img *Image) xattrTables() (*table, int64, error) {
	img.xattrIDTableOnce.Do(func() {
		if !img.sb.hasXattrTable() {
			img.xattrTableErr = wrapErr(KindNoXattrTable, nil)
			return
		}
		view, err := img.mapper.Map(int64(img.sb.XattrIdTableStart), 16)
		if err != nil {
			img.xattrTableErr = err
			return
		}
		data := view.Data()
		img.xattrValueBase = int64(binary.LittleEndian.Uint64(data[0:8]))
		xattrIDs := binary.LittleEndian.Uint32(data[8:12])
		img.xattrIDTable, img.xattrTableErr = newTable(img.mapper, img.metaExtractManager, int64(img.sb.XattrIdTableStart)+16, int(xattrIDs), xattrIDEntrySize)
	})
	return img.xattrIDTable, img.xattrValueBase, img.xattrTableErr
}

// Xattrs opens an XattrIterator over node's extended attributes.
func (img *Image) Xattrs(node *Inode) (*XattrIterator, error) {
	if !node.HasXattr() {
		return nil, wrapErr(KindNoXattrTable, nil)
	}
	return newXattrIterator(img, node.XattrIndex())
}

// OpenFile returns a FileReader for node, which must be a regular file.
func (img *Image) OpenFile(node *Inode) (*FileReader, error) {
	return newFileReader(img, node)
}

// Readdir returns a DirectoryIterator over node, which must be a
// directory.
func (img *Image) Readdir(node *Inode) (*DirectoryIterator, error) {
	return newDirectoryIterator(img, node)
}

// fsFile adapts an Image + Inode pair to io/fs.File, so an Image can be
// mounted wherever a read-only fs.FS is expected.
type fsFile struct {
	img    *Image
	node   *Inode
	name   string
	reader *FileReader
	dir    *DirectoryIterator
	offset int64
}

// FS exposes the image as a read-only io/fs.FS rooted at "/".
func (img *Image) FS() fs.FS { return &imageFS{img: img} }

type imageFS struct{ img *Image }

func (f *imageFS) Open(name string) (fs.File, error) {
	node, err := f.img.FindInode("/" + name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: translatePathError(err)}
	}
	return &fsFile{img: f.img, node: node, name: path.Base(name)}, nil
}

func translatePathError(err error) error {
	if e, ok := err.(*Error); ok && e.Kind == KindNoSuchFile {
		return fs.ErrNotExist
	}
	return err
}

func (f *fsFile) Stat() (fs.FileInfo, error) { return &fsFileInfo{node: f.node, name: f.name}, nil }

// Read implements io.Reader over the raw FileReader, translating its
// library-level "overrun fails with SeekOutOfRange" contract into the
// conventional io.Reader "short read, then io.EOF" shape fs.ReadFile and
// other stdlib io/fs consumers expect: it caps each request to the bytes
// actually remaining in the file rather than forwarding the caller's
// (possibly oversized) buffer length straight through.
func (f *fsFile) Read(p []byte) (int, error) {
	if f.node.Type.Basic() != FileType {
		return 0, &fs.PathError{Op: "read", Path: f.name, Err: fs.ErrInvalid}
	}
	size := int64(f.node.FileSize())
	if f.offset >= size {
		return 0, io.EOF
	}
	if f.reader == nil {
		r, err := f.img.OpenFile(f.node)
		if err != nil {
			return 0, err
		}
		f.reader = r
	}
	want := int64(len(p))
	if f.offset+want > size {
		want = size - f.offset
	}
	if want == 0 {
		return 0, io.EOF
	}
	chunk, err := f.reader.Read(int(want))
	n := copy(p, chunk)
	f.offset += int64(n)
	if err != nil {
		return n, err
	}
	if f.offset >= size {
		return n, io.EOF
	}
	return n, nil
}

func (f *fsFile) Close() error { return nil }

// ReadDir implements fs.ReadDirFile so fs.ReadDir works against a directory
// opened through imageFS.
func (f *fsFile) ReadDir(n int) ([]fs.DirEntry, error) {
	if f.node.Type.Basic() != DirType {
		return nil, &fs.PathError{Op: "readdir", Path: f.name, Err: fs.ErrInvalid}
	}
	if f.dir == nil {
		dir, err := f.img.Readdir(f.node)
		if err != nil {
			return nil, err
		}
		f.dir = dir
	}

	var out []fs.DirEntry
	for n <= 0 || len(out) < n {
		ok, err := f.dir.Next()
		if err != nil {
			return out, err
		}
		if !ok {
			if n > 0 && len(out) == 0 {
				return out, io.EOF
			}
			return out, nil
		}
		child, err := f.dir.LoadInode()
		if err != nil {
			return out, err
		}
		out = append(out, &fsDirEntry{node: child, name: string(f.dir.Name())})
	}
	return out, nil
}

type fsDirEntry struct {
	node *Inode
	name string
}

func (e *fsDirEntry) Name() string               { return e.name }
func (e *fsDirEntry) IsDir() bool                 { return e.node.Type.IsDir() }
func (e *fsDirEntry) Type() fs.FileMode           { return e.node.Mode().Type() }
func (e *fsDirEntry) Info() (fs.FileInfo, error)  { return &fsFileInfo{node: e.node, name: e.name}, nil }

type fsFileInfo struct {
	node *Inode
	name string
}

func (fi *fsFileInfo) Name() string       { return fi.name }
func (fi *fsFileInfo) Size() int64        { return int64(fi.node.FileSize()) }
func (fi *fsFileInfo) Mode() fs.FileMode  { return fi.node.Mode() }
func (fi *fsFileInfo) ModTime() time.Time { return time.Unix(int64(fi.node.ModifiedTime()), 0) }
func (fi *fsFileInfo) IsDir() bool        { return fi.node.Type.IsDir() }
func (fi *fsFileInfo) Sys() any           { return fi.node }
