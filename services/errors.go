package services

import "fmt"

// ValidationError rejects a request before any adapter work starts.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// AdapterError is one source failing inside a search. It ends up in the
// response's errors list and never fails the search itself.
type AdapterError struct {
	Source string
	Phase  string
	Err    error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Source, e.Phase, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }
