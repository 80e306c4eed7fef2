package features

import (
	"errors"
	"strings"
)

// Sentinel kinds for feature errors.
var (
	ErrValidation = errors.New("invalid features")
	ErrMalformed  = errors.New("malformed feature payload")
)

// FieldError describes one rejected field.
type FieldError struct {
	Field   Field  `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every rejected field of a payload. It matches
// ErrValidation with errors.Is.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, string(f.Field)+": "+f.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
