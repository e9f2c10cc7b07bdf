package services

import (
	"errors"
	"fmt"

	"github.com/File-Sharing-BondBridg/Asset-Service/internal/storage"
)

// ValidationKind says why an upload was refused before any byte was kept.
type ValidationKind string

const (
	TooLarge        ValidationKind = "too_large"
	UnsupportedType ValidationKind = "unsupported_type"
	Infected        ValidationKind = "infected"
	SizeMismatch    ValidationKind = "size_mismatch"
)

// ValidationError is a client-correctable rejection.
type ValidationError struct {
	Kind   ValidationKind
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("validation failed: %s", e.Kind)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Kind, e.Detail)
}

// IOError is a storage fault on a single asset. The wrapped error carries
// internal detail and must not reach clients.
type IOError struct {
	Op          string
	StorageName string
	Err         error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.StorageName, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

var (
	ErrNotFound  = storage.ErrNotFound
	ErrForbidden = errors.New("forbidden: requester does not own asset")

	// ErrStorageInconsistency means a metadata record exists but its bytes
	// do not. It is never reported as ErrNotFound.
	ErrStorageInconsistency = errors.New("storage inconsistency: metadata without bytes")
	ErrNoThumbnail          = errors.New("asset has no thumbnail")
	ErrChecksumMismatch     = errors.New("checksum mismatch")
)

// IsValidation reports whether err is a *ValidationError of the given kind.
func IsValidation(err error, kind ValidationKind) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.Kind == kind
}
