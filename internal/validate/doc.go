// Package validate checks inputs that cross from MCP clients and editors
// into the gateway.
//
// Each validation function returns nil on success or an error wrapping one
// of the sentinels in errors.go. Only clearly broken inputs are rejected:
// empty values, null bytes and sizes no editor would produce on purpose.
//
//	if errors.Is(err, validate.ErrInvalidToolName) {
//	    // skip the tool
//	}
package validate
