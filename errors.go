package squashfs

import (
	"fmt"

	"golang.org/x/xerrors"
)

// Kind identifies the class of failure for an Error. The core never attaches
// string payloads to a Kind; describe(Kind) is the only place a human
// readable message is produced.
type Kind int

const (
	_ Kind = iota
	KindSuperblockTooSmall
	KindWrongMagic
	KindBlocksizeMismatch
	KindSizeMismatch
	KindUnsupportedCompression
	KindDecompress
	KindUnknownInodeType
	KindNotADirectory
	KindNotAFile
	KindNoSuchFile
	KindNoXattrTable
	KindNoExportTable
	KindNoFragmentTable
	KindNoCompressionOptions
	KindIntegerOverflow
	KindSeekOutOfRange
	KindSeekInFragment
	KindSymlinkLoop
	KindAllocFailed
	KindInternal
)

// describe returns a human-readable, English description of a Kind. It is
// the only place in the package that turns a Kind into text.
func describe(k Kind) string {
	switch k {
	case KindSuperblockTooSmall:
		return "source too small to hold a squashfs superblock"
	case KindWrongMagic:
		return "bad magic number, not a squashfs image"
	case KindBlocksizeMismatch:
		return "block_log does not match block_size"
	case KindSizeMismatch:
		return "bytes_used exceeds the size of the source"
	case KindUnsupportedCompression:
		return "unsupported or unrecognized compression id"
	case KindDecompress:
		return "decompression failed"
	case KindUnknownInodeType:
		return "unknown inode type"
	case KindNotADirectory:
		return "not a directory"
	case KindNotAFile:
		return "not a regular file"
	case KindNoSuchFile:
		return "no such file or directory"
	case KindNoXattrTable:
		return "image has no xattr table"
	case KindNoExportTable:
		return "image has no NFS export table"
	case KindNoFragmentTable:
		return "image has no fragment table"
	case KindNoCompressionOptions:
		return "image has no compressor options block"
	case KindIntegerOverflow:
		return "integer overflow while computing a table offset"
	case KindSeekOutOfRange:
		return "read past end of file"
	case KindSeekInFragment:
		return "invalid offset into fragment block"
	case KindSymlinkLoop:
		return "too many levels of symbolic links"
	case KindAllocFailed:
		return "allocation failed"
	case KindInternal:
		return "internal error"
	default:
		return fmt.Sprintf("squashfs error kind(%d)", int(k))
	}
}

// Error is the concrete error type returned by every fallible operation in
// this package. It carries only a Kind plus an optional wrapped Cause; no
// string payload is synthesized beyond describe(Kind).
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("squashfs: %s: %v", describe(e.Kind), e.Cause)
	}
	return fmt.Sprintf("squashfs: %s", describe(e.Kind))
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is allows errors.Is(err, ErrNoSuchFile) style comparisons against the
// package-level sentinels below, matching the Kind rather than identity.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Cause == nil
}

// wrapErr produces an *Error of the given Kind, optionally wrapping cause.
func wrapErr(k Kind, cause error) error {
	return &Error{Kind: k, Cause: cause}
}

// Package-specific error variables that can be used with errors.Is() for
// error handling, one per Kind.
var (
	ErrSuperblockTooSmall     = &Error{Kind: KindSuperblockTooSmall}
	ErrWrongMagic             = &Error{Kind: KindWrongMagic}
	ErrBlocksizeMismatch      = &Error{Kind: KindBlocksizeMismatch}
	ErrSizeMismatch           = &Error{Kind: KindSizeMismatch}
	ErrUnsupportedCompression = &Error{Kind: KindUnsupportedCompression}
	ErrDecompress             = &Error{Kind: KindDecompress}
	ErrUnknownInodeType       = &Error{Kind: KindUnknownInodeType}
	ErrNotADirectory          = &Error{Kind: KindNotADirectory}
	ErrNotAFile               = &Error{Kind: KindNotAFile}
	ErrNoSuchFile             = &Error{Kind: KindNoSuchFile}
	ErrNoXattrTable           = &Error{Kind: KindNoXattrTable}
	ErrNoExportTable          = &Error{Kind: KindNoExportTable}
	ErrNoFragmentTable        = &Error{Kind: KindNoFragmentTable}
	ErrNoCompressionOptions   = &Error{Kind: KindNoCompressionOptions}
	ErrIntegerOverflow        = &Error{Kind: KindIntegerOverflow}
	ErrSeekOutOfRange         = &Error{Kind: KindSeekOutOfRange}
	ErrSeekInFragment         = &Error{Kind: KindSeekInFragment}
	ErrSymlinkLoop            = &Error{Kind: KindSymlinkLoop}
	ErrAllocFailed            = &Error{Kind: KindAllocFailed}
	ErrInternal               = &Error{Kind: KindInternal}
)

// Formatted returns a stack-annotated version of err suitable for CLI
// diagnostics, following distr1-distri's use of golang.org/x/xerrors at the
// boundary between the library and its command-line tools. Callers print it
// with %+v to get the attached stack frame; %v/%s fall back to err's own
// plain message.
func Formatted(err error) error {
	if err == nil {
		return nil
	}
	return xerrors.Errorf("%w", err)
}
