// Package ptdbgerr centralizes the sentinel-wrapping convention used across
// the debugger's packages: a package-level sentinel error identifies the
// error category (so callers can assert.ErrorIs against it), wrapped with a
// formatted detail message.
package ptdbgerr

import "fmt"

// Wrap returns an error that is both assert.ErrorIs-comparable to sentinel
// and carries a formatted detail message.
func Wrap(sentinel error, message string, args ...any) error {
	return fmt.Errorf("%w: "+message, append([]any{sentinel}, args...)...)
}
