package simplemedia

import (
	"errors"
	"fmt"
)

// Validation errors
var (
	// ErrUnknownType indicates the requested type key has no profile
	ErrUnknownType = errors.New("unknown media type")

	// ErrMissingField indicates a required custom field was not supplied
	ErrMissingField = errors.New("required field missing")

	// ErrUnreadableFile indicates the upload could not be probed
	ErrUnreadableFile = errors.New("unreadable file")

	// ErrTooSmall indicates the upload is below the profile minimum size
	ErrTooSmall = errors.New("file too small")

	// ErrTooLarge indicates the upload exceeds the profile maximum size
	ErrTooLarge = errors.New("file too large")

	// ErrDisallowedType indicates the probed format is not allowed by the profile
	ErrDisallowedType = errors.New("file type not allowed")
)

// Storage errors
var (
	// ErrStorageExhausted indicates no free filename was found within the attempt bound
	ErrStorageExhausted = errors.New("unique name allocation exhausted")

	// ErrStorage indicates a filesystem operation failed
	ErrStorage = errors.New("storage operation failed")
)

// Processing errors
var (
	// ErrOptimizeFailed indicates the in-place optimize of an original failed
	ErrOptimizeFailed = errors.New("optimize failed")

	// ErrCropFailed indicates a crop could not be produced
	ErrCropFailed = errors.New("crop failed")

	// ErrCropNotSupported indicates the asset's profile has no crop derivation
	ErrCropNotSupported = errors.New("crop not supported for type")

	// ErrNoVariants indicates the type derives no variants to rebuild
	ErrNoVariants = errors.New("type has no derived variants")

	// ErrResizeFailed indicates a resize could not be produced
	ErrResizeFailed = errors.New("resize failed")
)

// Persistence errors
var (
	// ErrPersistenceExhausted indicates identifier retries were exhausted
	ErrPersistenceExhausted = errors.New("identifier allocation exhausted")

	// ErrDuplicateFileID indicates the file_id is already taken
	ErrDuplicateFileID = errors.New("duplicate file id")
)

var (
	// ErrInvalidSecret indicates the shared secret did not match
	ErrInvalidSecret = errors.New("invalid secret key")

	// ErrAssetNotFound indicates the asset does not exist or is hidden
	ErrAssetNotFound = errors.New("asset not found")

	// ErrCoverNotFound indicates the cover does not exist
	ErrCoverNotFound = errors.New("cover not found")

	// ErrCacheMiss indicates the details cache has no entry
	ErrCacheMiss = errors.New("cache miss")
)

// ValidationError reports a rejected upload before any storage mutation
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %v", e.Err)
	}
	return fmt.Sprintf("validation failed for %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// StorageError represents an error related to filesystem operations
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ProcessingError represents an image or video processing failure
type ProcessingError struct {
	Op   string
	Path string
	Err  error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing operation %s failed for %s: %v", e.Op, e.Path, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// PersistenceError represents a failure writing an asset record
type PersistenceError struct {
	Op     string
	FileID string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence operation %s failed for %s: %v", e.Op, e.FileID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsStorage(err error) bool {
	var target *StorageError
	return errors.As(err, &target)
}

func IsProcessing(err error) bool {
	var target *ProcessingError
	return errors.As(err, &target)
}

func IsPersistence(err error) bool {
	var target *PersistenceError
	return errors.As(err, &target)
}
