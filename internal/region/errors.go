package region

import "errors"

// Sentinel errors for region detection.
var (
	ErrInvalidInput = errors.New("invalid input image")
	ErrEmptyCrop    = errors.New("selected region is empty after clamping")
	ErrWriteFailed  = errors.New("failed to write annotated image")
)
