package config

import "fmt"

// Error reports that configuration could not be obtained or is invalid.
// Startup treats it as fatal; it is never retried.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("configuration: %v", e.Err)
	}
	return fmt.Sprintf("configuration %q: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
