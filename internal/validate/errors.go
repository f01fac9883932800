// errors.go defines sentinel errors for validation failures.
//
// Separated to centralise error definitions. Detailed messages are provided
// by wrapping these with fmt.Errorf in the validation functions.

package validate

import "errors"

var (
	ErrInvalidToolName = errors.New("invalid tool name")
	ErrInvalidTarget   = errors.New("invalid target")
	ErrCodeTooLarge    = errors.New("lua code too large")
)
