package squashfs

import "strings"

// PathResolver walks `/`-separated paths against an Image , handling
// `.`, `..`, and symlink following with a depth limit
type PathResolver struct {
	img *Image
}

func newPathResolver(img *Image) *PathResolver {
	return &PathResolver{img: img}
}

// Resolve walks path starting from the image's root inode and returns the
// inode it names. "" and "." are no-ops; ".." pops one component but never
// below the root; symlinks are followed up to the image's configured
// max_symlink_depth.
func (r *PathResolver) Resolve(path string) (*Inode, error) {
	root, err := r.img.rootInode()
	if err != nil {
		return nil, err
	}
	return r.resolveFrom(root, path, 0)
}

func (r *PathResolver) resolveFrom(start *Inode, path string, depth int) (*Inode, error) {
	segments := splitPath(path)

	stack := []*Inode{start}

	for _, seg := range segments {
		switch {
		case len(seg) == 0, seg == ".":
			continue
		case seg == "..":
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
			continue
		}

		cur := stack[len(stack)-1]
		if cur.Type.Basic() != DirType {
			return nil, wrapErr(KindNotADirectory, nil)
		}

		next, err := r.lookupChild(cur, seg, depth)
		if err != nil {
			return nil, err
		}
		stack = append(stack, next)
	}

	return stack[len(stack)-1], nil
}

// lookupChild finds name within dir and follows it if it is a symlink,
// resolving relative targets against dir (the symlink's parent).
func (r *PathResolver) lookupChild(dir *Inode, name string, depth int) (*Inode, error) {
	it, err := newDirectoryIterator(r.img, dir)
	if err != nil {
		return nil, err
	}

	found, err := it.Lookup([]byte(name))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, wrapErr(KindNoSuchFile, nil)
	}

	child, err := it.LoadInode()
	if err != nil {
		return nil, err
	}

	if child.Type.Basic() != SymlinkType {
		return child, nil
	}

	if depth >= r.img.cfg.maxSymlinkDepth {
		return nil, wrapErr(KindSymlinkLoop, nil)
	}

	target := string(child.SymlinkTarget())
	if len(target) > 0 && target[0] == '/' {
		root, err := r.img.rootInode()
		if err != nil {
			return nil, err
		}
		return r.resolveFrom(root, target, depth+1)
	}
	return r.resolveFrom(dir, target, depth+1)
}

func splitPath(path string) []string {
	return strings.Split(path, "/")
}
