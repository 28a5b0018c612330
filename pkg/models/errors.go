package models

import "errors"

// The only conditions surfaced to callers as hard failures are malformed
// requests. Data sparsity and backend unavailability degrade to popularity or
// empty results instead.
var (
	ErrInvalidContentType = errors.New("invalid content type")
	ErrInvalidCount       = errors.New("count must be positive")
)
