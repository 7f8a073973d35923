package knife

import (
	"errors"
	"fmt"
)

// ErrFileNotFound is returned by Load when the settings file does not exist.
// Errors wrapping it also match fs.ErrNotExist.
var ErrFileNotFound = errors.New("settings file not found")

// ParseError reports a syntax error, a malformed value or a missing or
// unknown key. Key is empty when the failure is not tied to a declaration.
type ParseError struct {
	Key  string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	switch {
	case e.Key != "" && e.Line > 0:
		return fmt.Sprintf("parse %s (line %d): %s", e.Key, e.Line, e.Msg)
	case e.Key != "":
		return fmt.Sprintf("parse %s: %s", e.Key, e.Msg)
	case e.Line > 0:
		return fmt.Sprintf("parse line %d: %s", e.Line, e.Msg)
	default:
		return "parse: " + e.Msg
	}
}

// ValidationError reports a well-formed value that is not acceptable for its
// key, such as a malformed URL or an unknown enum token.
type ValidationError struct {
	Key   string
	Value string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("invalid %s %q: %s", e.Key, e.Value, e.Msg)
	}
	return fmt.Sprintf("invalid %s: %s", e.Key, e.Msg)
}

// ErrorKey returns the settings key named by a ParseError or ValidationError
// found in err's chain, or "" when there is none.
func ErrorKey(err error) string {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return parseErr.Key
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Key
	}
	return ""
}
