package squashfs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/goarchive/squashfs"
)

// TestErrorIsMatchesByKind checks that errors.Is compares *Error values by
// Kind against the package's sentinels, ignoring any wrapped Cause.
func TestErrorIsMatchesByKind(t *testing.T) {
	wrapped := &squashfs.Error{Kind: squashfs.KindNoSuchFile, Cause: fmt.Errorf("boom")}
	if !errors.Is(wrapped, squashfs.ErrNoSuchFile) {
		t.Fatalf("expected errors.Is to match ErrNoSuchFile regardless of Cause")
	}
	if errors.Is(wrapped, squashfs.ErrNotADirectory) {
		t.Fatalf("did not expect errors.Is to match a different Kind's sentinel")
	}
}

// TestErrorUnwrapReturnsCause checks errors.Unwrap plumbing against a
// deliberately wrapped underlying error.
func TestErrorUnwrapReturnsCause(t *testing.T) {
	cause := fmt.Errorf("underlying failure")
	err := &squashfs.Error{Kind: squashfs.KindDecompress, Cause: cause}
	if errors.Unwrap(err) != cause {
		t.Fatalf("Unwrap did not return the wrapped cause")
	}
}

// TestErrorStringIncludesCause checks that Error() mentions a non-nil Cause
// but still produces readable text without one.
func TestErrorStringIncludesCause(t *testing.T) {
	bare := &squashfs.Error{Kind: squashfs.KindNoSuchFile}
	if bare.Error() == "" {
		t.Fatalf("expected a non-empty message for a bare error")
	}

	cause := fmt.Errorf("disk on fire")
	withCause := &squashfs.Error{Kind: squashfs.KindDecompress, Cause: cause}
	msg := withCause.Error()
	if !contains(msg, "disk on fire") {
		t.Fatalf("expected message %q to mention the cause", msg)
	}
}

// TestSentinelsAreStableIdentities checks that each exported sentinel
// carries the Kind its name implies, so callers comparing with errors.Is
// against a specific sentinel get the expected behavior.
func TestSentinelsAreStableIdentities(t *testing.T) {
	cases := []struct {
		sentinel *squashfs.Error
		kind     squashfs.Kind
	}{
		{squashfs.ErrSuperblockTooSmall, squashfs.KindSuperblockTooSmall},
		{squashfs.ErrWrongMagic, squashfs.KindWrongMagic},
		{squashfs.ErrBlocksizeMismatch, squashfs.KindBlocksizeMismatch},
		{squashfs.ErrSizeMismatch, squashfs.KindSizeMismatch},
		{squashfs.ErrNoSuchFile, squashfs.KindNoSuchFile},
		{squashfs.ErrNotADirectory, squashfs.KindNotADirectory},
		{squashfs.ErrNotAFile, squashfs.KindNotAFile},
		{squashfs.ErrNoXattrTable, squashfs.KindNoXattrTable},
		{squashfs.ErrNoExportTable, squashfs.KindNoExportTable},
		{squashfs.ErrNoFragmentTable, squashfs.KindNoFragmentTable},
		{squashfs.ErrSeekOutOfRange, squashfs.KindSeekOutOfRange},
		{squashfs.ErrSeekInFragment, squashfs.KindSeekInFragment},
		{squashfs.ErrSymlinkLoop, squashfs.KindSymlinkLoop},
	}
	for _, tc := range cases {
		if tc.sentinel.Kind != tc.kind {
			t.Fatalf("sentinel has Kind %v, want %v", tc.sentinel.Kind, tc.kind)
		}
		if tc.sentinel.Cause != nil {
			t.Fatalf("sentinel for %v unexpectedly carries a Cause", tc.kind)
		}
	}
}

// TestFormattedWrapsWithStack checks that Formatted preserves errors.Is
// matching against the original sentinel while adding stack context that
// only shows up in the %+v verb.
func TestFormattedWrapsWithStack(t *testing.T) {
	if squashfs.Formatted(nil) != nil {
		t.Fatalf("expected Formatted(nil) to return nil")
	}

	wrapped := squashfs.Formatted(squashfs.ErrNoSuchFile)
	if !errors.Is(wrapped, squashfs.ErrNoSuchFile) {
		t.Fatalf("expected errors.Is to still match ErrNoSuchFile through Formatted")
	}

	plain := fmt.Sprintf("%v", wrapped)
	stack := fmt.Sprintf("%+v", wrapped)
	if len(stack) <= len(plain) {
		t.Fatalf("expected %%+v to be more detailed than %%v, got %q vs %q", stack, plain)
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
