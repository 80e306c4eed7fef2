package scoring

import "errors"

// Sentinel kinds for scoring errors.
var (
	ErrCancelled = errors.New("scoring cancelled")
)
