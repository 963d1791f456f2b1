//go:build fuse

package squashfs

import (
	"context"
	"errors"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// fuseNode adapts an on-disk Inode to go-fuse's high-level node API,
// materialising its children lazily through the same DirectoryIterator and
// PathResolver used by the rest of the package.
type fuseNode struct {
	fs.Inode

	img  *Image
	node *Inode
}

var (
	_ fs.NodeGetattrer  = (*fuseNode)(nil)
	_ fs.NodeLookuper   = (*fuseNode)(nil)
	_ fs.NodeReaddirer  = (*fuseNode)(nil)
	_ fs.NodeOpener     = (*fuseNode)(nil)
	_ fs.NodeReader     = (*fuseNode)(nil)
	_ fs.NodeReadlinker = (*fuseNode)(nil)
)

// FuseRoot builds the root node of a go-fuse tree backed by img, suitable
// for fs.Mount.
func FuseRoot(img *Image) (fs.InodeEmbedder, error) {
	root, err := img.rootInode()
	if err != nil {
		return nil, err
	}
	return &fuseNode{img: img, node: root}, nil
}

// Mount mounts img read-only at mountpoint using go-fuse and returns the
// running server without blocking; callers use its Wait and Unmount.
func Mount(img *Image, mountpoint string, opts *fs.Options) (*fuse.Server, error) {
	root, err := FuseRoot(img)
	if err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &fs.Options{}
	}
	opts.MountOptions.FsName = "squashfs"
	opts.MountOptions.Options = append(opts.MountOptions.Options, "ro")
	server, err := fs.Mount(mountpoint, root, opts)
	if err != nil {
		return nil, err
	}
	return server, nil
}

func fuseErrno(err error) syscall.Errno {
	var e *Error
	if !errors.As(err, &e) {
		return syscall.EIO
	}
	switch e.Kind {
	case KindNoSuchFile:
		return syscall.ENOENT
	case KindNotADirectory:
		return syscall.ENOTDIR
	case KindNotAFile:
		return syscall.EISDIR
	case KindSymlinkLoop:
		return syscall.ELOOP
	default:
		return syscall.EIO
	}
}

func (n *fuseNode) fillAttr(out *fuse.Attr) {
	out.Mode = ModeToUnix(n.node.Mode())
	out.Size = n.node.FileSize()
	out.Nlink = n.node.HardLinkCount()
	if out.Nlink == 0 {
		out.Nlink = 1
	}
	out.Mtime = uint64(n.node.ModifiedTime())
	out.Atime = out.Mtime
	out.Ctime = out.Mtime
	if uid, err := n.node.UID(); err == nil {
		out.Owner.Uid = uid
	}
	if gid, err := n.node.GID(); err == nil {
		out.Owner.Gid = gid
	}
	if n.node.Type.Basic() == BlockDevType || n.node.Type.Basic() == CharDevType {
		out.Rdev = n.node.DeviceID()
	}
}

func (n *fuseNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	n.fillAttr(&out.Attr)
	return 0
}

func (n *fuseNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	it, err := newDirectoryIterator(n.img, n.node)
	if err != nil {
		return nil, fuseErrno(err)
	}
	found, err := it.Lookup([]byte(name))
	if err != nil {
		return nil, fuseErrno(err)
	}
	if !found {
		return nil, syscall.ENOENT
	}
	child, err := it.LoadInode()
	if err != nil {
		return nil, fuseErrno(err)
	}

	childNode := &fuseNode{img: n.img, node: child}
	childNode.fillAttr(&out.Attr)

	stable := fs.StableAttr{Mode: ModeToUnix(child.Mode()) & S_IFMT}
	embedded := n.NewInode(ctx, childNode, stable)
	return embedded, 0
}

func (n *fuseNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	it, err := newDirectoryIterator(n.img, n.node)
	if err != nil {
		return nil, fuseErrno(err)
	}

	var entries []fuse.DirEntry
	for {
		ok, err := it.Next()
		if err != nil {
			return nil, fuseErrno(err)
		}
		if !ok {
			break
		}
		entries = append(entries, fuse.DirEntry{
			Name: string(it.Name()),
			Ino:  uint64(it.InodeNumber()),
			Mode: uint32(it.InodeType().Mode()),
		})
	}
	return fs.NewListDirStream(entries), 0
}

func (n *fuseNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	return nil, fuse.FOPEN_KEEP_CACHE, 0
}

// Read caps the request to the bytes actually remaining in the file before
// calling into FileReader: FileReader.Read reports ErrSeekOutOfRange for any
// request that overruns the file (see filereader.go), which FUSE has no use
// for - a short read at EOF is simply zero bytes, not an error.
func (n *fuseNode) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	reader, err := newFileReader(n.img, n.node)
	if err != nil {
		return nil, fuseErrno(err)
	}
	if err := reader.Seek(off); err != nil {
		return nil, fuseErrno(err)
	}

	size := int64(n.node.FileSize())
	if off >= size {
		return fuse.ReadResultData(nil), 0
	}
	want := int64(len(dest))
	if off+want > size {
		want = size - off
	}

	data, err := reader.Read(int(want))
	if err != nil {
		return nil, fuseErrno(err)
	}
	return fuse.ReadResultData(data), 0
}

func (n *fuseNode) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	if n.node.Type.Basic() != SymlinkType {
		return nil, syscall.EINVAL
	}
	return n.node.SymlinkTarget(), 0
}
