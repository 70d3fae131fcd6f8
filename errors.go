package zmt

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the failure taxonomy. The zero value, NoError, is
// never attached to a returned *Error; it exists so a zero ErrorKind
// reads as "no error" rather than aliasing a real failure.
type ErrorKind int

const (
	NoError ErrorKind = iota
	ErrMemoryAllocation
	ErrReadFail
	ErrWriteFail
	ErrDataError
	ErrFrameCompress
	ErrFrameDecompress
	ErrParameterUnsupported
	ErrCompressionLibrary
	ErrCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case NoError:
		return "no_error"
	case ErrMemoryAllocation:
		return "memory_allocation"
	case ErrReadFail:
		return "read_fail"
	case ErrWriteFail:
		return "write_fail"
	case ErrDataError:
		return "data_error"
	case ErrFrameCompress:
		return "frame_compress"
	case ErrFrameDecompress:
		return "frame_decompress"
	case ErrParameterUnsupported:
		return "compressionParameter_unsupported"
	case ErrCompressionLibrary:
		return "compression_library"
	case ErrCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("errorKind(%d)", int(k))
	}
}

// Error is the error type every public operation returns. Kind classifies
// the failure; Err, when non-nil, carries the underlying cause (a codec
// error, an I/O error from a callback, …) for stringification and
// Unwrap-based inspection.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the ErrorKind from err if it (or something it wraps) is
// a *Error. A nil err yields NoError; any other error yields
// ErrCompressionLibrary.
func KindOf(err error) ErrorKind {
	if err == nil {
		return NoError
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrCompressionLibrary
}
