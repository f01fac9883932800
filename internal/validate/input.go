// input.go implements validation of tool names, connection targets and Lua
// code.

package validate

import (
	"fmt"
	"strings"
)

// Limits on accepted input.
const (
	MaxToolNameLen = 128
	MaxTargetLen   = 4096
	MaxLuaCodeLen  = 1 << 20
)

// ToolName validates a tool name as MCP clients accept it: 1 to 128
// characters from A-Z, a-z, 0-9, underscore, hyphen and dot.
func ToolName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidToolName)
	}
	if len(name) > MaxToolNameLen {
		return fmt.Errorf("%w: %d characters exceeds %d", ErrInvalidToolName, len(name), MaxToolNameLen)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_', r == '-', r == '.':
		default:
			return fmt.Errorf("%w: %q contains %q", ErrInvalidToolName, name, r)
		}
	}
	return nil
}

// Target validates a connection target (socket path, pipe name or
// host:port) and returns it with surrounding whitespace removed.
func Target(target string) (string, error) {
	target = strings.TrimSpace(target)
	switch {
	case target == "":
		return "", fmt.Errorf("%w: target is required", ErrInvalidTarget)
	case strings.ContainsRune(target, 0):
		return "", fmt.Errorf("%w: null byte in target", ErrInvalidTarget)
	case len(target) > MaxTargetLen:
		return "", fmt.Errorf("%w: exceeds %d bytes", ErrInvalidTarget, MaxTargetLen)
	}
	return target, nil
}

// LuaCode validates the size of a Lua chunk sent to exec_lua.
func LuaCode(code string) error {
	if len(code) > MaxLuaCodeLen {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrCodeTooLarge, len(code), MaxLuaCodeLen)
	}
	return nil
}
