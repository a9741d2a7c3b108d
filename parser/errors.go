package parser

import "fmt"

// StructuralError reports a file whose header or cross-reference data is
// too damaged to load. Retrying the same bytes cannot succeed.
type StructuralError struct {
	Reason string
	Err    error
}

func (e *StructuralError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("structural error: %s: %v", e.Reason, e.Err)
	}
	return "structural error: " + e.Reason
}

func (e *StructuralError) Unwrap() error { return e.Err }

func (e *StructuralError) Retryable() bool { return false }

// EncryptedError reports a well-formed but encrypted file. The caller can
// decrypt it externally and load the result.
type EncryptedError struct {
	Filter  string
	Version int
}

func (e *EncryptedError) Error() string {
	if e.Filter == "" {
		return "document is encrypted"
	}
	return fmt.Sprintf("document is encrypted (filter %s, V %d)", e.Filter, e.Version)
}

func (e *EncryptedError) Retryable() bool { return true }

// Retryable reports whether err advertises that a retry with different
// input may succeed.
func Retryable(err error) bool {
	for err != nil {
		if r, ok := err.(interface{ Retryable() bool }); ok {
			return r.Retryable()
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
