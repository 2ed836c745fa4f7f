package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrPrecache is returned when any manifest asset could not be fetched or stored.
	ErrPrecache = errors.New("precache failed")

	// ErrInvalidState is returned when an event arrives in the wrong lifecycle state.
	ErrInvalidState = errors.New("invalid lifecycle state")
)

// AssetError describes the manifest asset that failed an install.
type AssetError struct {
	Path       string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *AssetError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("precache %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("precache %s: unexpected status %d", e.Path, e.StatusCode)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *AssetError) Unwrap() error {
	return e.Err
}

// Is makes every AssetError match ErrPrecache.
func (e *AssetError) Is(target error) bool {
	return target == ErrPrecache
}
