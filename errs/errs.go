// Package errs defines the error kinds and sentinel errors shared by every hzvol stage.
//
// Every fallible operation in hzvol returns an error that either is, or wraps, one of the
// sentinels below. Sentinels belong to exactly one Kind, which callers can recover with
// KindOf regardless of how many layers of fmt.Errorf("%w") wrapping were added:
//
//	if errs.KindOf(err) == errs.KindIO {
//	    // open/read/write failure on the parallel filesystem
//	}
//
// All kinds are fatal for the pipeline: the first error returned by any rank aborts the
// distributed run (see comm.World.Run).
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error by the stage of the pipeline that detected it.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindConfig       // bad box dimensions, local box larger than global, decomposition mismatch
	KindComm         // failed send, receive or collective
	KindAlloc        // transfer or staging buffer allocation failure
	KindIO           // open/read/write failure
	KindFormat       // corrupt or undersized on-disk structure
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindComm:
		return "comm"
	case KindAlloc:
		return "alloc"
	case KindIO:
		return "io"
	case KindFormat:
		return "format"
	default:
		return "unknown"
	}
}

// kindError is a sentinel carrying its kind.
type kindError struct {
	kind Kind
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func newKind(kind Kind, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// Configuration errors, detected before the pipeline runs.
var (
	ErrInvalidBox            = newKind(KindConfig, "invalid box dimensions")
	ErrLocalBoxTooLarge      = newKind(KindConfig, "local box exceeds global bounds")
	ErrDecompositionMismatch = newKind(KindConfig, "process decomposition mismatch")
	ErrInvalidBitsPerBlock   = newKind(KindConfig, "invalid bits per block")
	ErrInvalidBlocksPerFile  = newKind(KindConfig, "invalid blocks per file")
	ErrInvalidResolution     = newKind(KindConfig, "invalid resolution window")
	ErrInvalidVariable       = newKind(KindConfig, "invalid variable")
	ErrNoVariables           = newKind(KindConfig, "no variables defined")
	ErrInvalidChunkBox       = newKind(KindConfig, "invalid chunk box")
	ErrInvalidRestructureBox = newKind(KindConfig, "invalid restructure box")
	ErrInvalidPartition      = newKind(KindConfig, "invalid partition count")
	ErrPatchSizeMismatch     = newKind(KindConfig, "patch buffer size mismatch")
	ErrOverlappingPatches    = newKind(KindConfig, "overlapping patches")
	ErrInvalidBitPattern     = newKind(KindConfig, "invalid bit pattern")
	ErrInvalidCompression    = newKind(KindConfig, "invalid compression")
)

// Communication errors.
var (
	ErrCommFailed    = newKind(KindComm, "communication failed")
	ErrInvalidRank   = newKind(KindComm, "invalid rank")
	ErrMessageSize   = newKind(KindComm, "unexpected message size")
	ErrWindowClosed  = newKind(KindComm, "window is not open")
	ErrUnknownTarget = newKind(KindComm, "unknown window target")
)

// Allocation errors.
var (
	ErrAllocation = newKind(KindAlloc, "buffer allocation failed")
)

// I/O errors.
var (
	ErrOpenFailed  = newKind(KindIO, "open failed")
	ErrReadFailed  = newKind(KindIO, "read failed")
	ErrWriteFailed = newKind(KindIO, "write failed")
	ErrShortWrite  = newKind(KindIO, "short write")
	ErrShortRead   = newKind(KindIO, "short read")
)

// Format errors.
var (
	ErrInvalidHeaderSize   = newKind(KindFormat, "invalid header size")
	ErrInvalidBlockEntry   = newKind(KindFormat, "invalid block entry")
	ErrInvalidChunkHeader  = newKind(KindFormat, "invalid chunk header")
	ErrInvalidMetadata     = newKind(KindFormat, "invalid dataset metadata")
	ErrChecksumMismatch    = newKind(KindFormat, "metadata checksum mismatch")
	ErrOffsetOutOfRange    = newKind(KindFormat, "offset out of range")
	ErrUnsupportedDataType = newKind(KindFormat, "unsupported data type")
)

// Error attaches the failing operation to an underlying error.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Kind returns the kind of the wrapped cause.
func (e *Error) Kind() Kind {
	return KindOf(e.Err)
}

// Wrap returns nil for a nil cause, otherwise an *Error naming op.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}

	return &Error{Op: op, Err: err}
}

// KindOf reports the kind of the first sentinel found in err's chain.
func KindOf(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}

	return KindUnknown
}
