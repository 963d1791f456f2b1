package squashfs_test

import (
	"io/fs"
	"testing"

	"github.com/goarchive/squashfs"
)

// TestInodeModePreservesSpecialBits checks that Inode.Mode carries setuid,
// setgid, and sticky bits through to the resulting fs.FileMode rather than
// masking them off alongside the type bits.
func TestInodeModePreservesSpecialBits(t *testing.T) {
	n := &squashfs.Inode{Type: squashfs.FileType, Perm: 04755}
	mode := n.Mode()

	if mode&fs.ModeSetuid == 0 {
		t.Fatalf("Mode() = %v, want ModeSetuid set", mode)
	}
	if mode.Perm() != 0755 {
		t.Fatalf("Mode().Perm() = %o, want 0755", mode.Perm())
	}

	d := &squashfs.Inode{Type: squashfs.DirType, Perm: 01777}
	dirMode := d.Mode()
	if dirMode&fs.ModeDir == 0 {
		t.Fatalf("Mode() = %v, want ModeDir set", dirMode)
	}
	if dirMode&fs.ModeSticky == 0 {
		t.Fatalf("Mode() = %v, want ModeSticky set", dirMode)
	}
}
