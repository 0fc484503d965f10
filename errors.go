package nodaldb

import (
	"github.com/pkg/errors"
)

// ErrorCode classifies the sentinel errors this package can return.
// Registry and metadata errors are recoverable by the caller; page
// checksum/type mismatches are fatal for the affected storage; timeout
// is always recoverable.
type ErrorCode int

const (
	ErrCodeNone ErrorCode = iota
	ErrCodeStorageWrongMetadataType
	ErrCodeStorageInvalidOption
	ErrCodeStorageDuplicateId
	ErrCodeStorageDuplicateName
	ErrCodeStorageNotFound
	ErrCodePageChecksumMismatch
	ErrCodePageTypeMismatch
	ErrCodeTimeout
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeStorageWrongMetadataType:
		return "storage_wrong_metadata_type"
	case ErrCodeStorageInvalidOption:
		return "storage_invalid_option"
	case ErrCodeStorageDuplicateId:
		return "storage_duplicate_id"
	case ErrCodeStorageDuplicateName:
		return "storage_duplicate_name"
	case ErrCodeStorageNotFound:
		return "storage_not_found"
	case ErrCodePageChecksumMismatch:
		return "page_checksum_mismatch"
	case ErrCodePageTypeMismatch:
		return "page_type_mismatch"
	case ErrCodeTimeout:
		return "timeout"
	default:
		return "none"
	}
}

// StorageError carries a taxonomy code alongside the usual
// pkg/errors-wrapped cause, so callers can branch on Code() while
// %+v still prints the full append-only stack of contextual strings.
type StorageError struct {
	code  ErrorCode
	cause error
}

func newStorageError(code ErrorCode, message string) *StorageError {
	return &StorageError{code: code, cause: errors.New(message)}
}

func wrapStorageError(code ErrorCode, cause error, message string) *StorageError {
	return &StorageError{code: code, cause: errors.Wrap(cause, message)}
}

func (e *StorageError) Error() string { return e.cause.Error() }
func (e *StorageError) Code() ErrorCode { return e.code }
func (e *StorageError) Cause() error  { return errors.Cause(e.cause) }
func (e *StorageError) Unwrap() error { return e.cause }

// CodeOf extracts the ErrorCode from err if it (or something it wraps)
// is a *StorageError, and ErrCodeNone otherwise.
func CodeOf(err error) ErrorCode {
	var se *StorageError
	if errors.As(err, &se) {
		return se.code
	}
	return ErrCodeNone
}
