// Package utils provides shared error-wrapping and environment-lookup
// helpers used across the node, CLI, and configuration packages. It has no
// dependency on core, pkg/config, or httpapi, so every other package in this
// module may import it without risking a cycle.
package utils

import "fmt"

// Wrap adds a short, colon-joined message prefix ahead of err using %w, so
// callers up the stack can still errors.Is/As through to the original cause
// after it has passed through several layers of Wrap. It returns nil if err
// is nil, so call sites can wrap the result of a function unconditionally.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
