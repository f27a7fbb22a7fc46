package rules

import "fmt"

// ValidationIssue carries the location of a rule that failed validation.
type ValidationIssue struct {
	File  string
	Index int
	Field string
	Err   error
}

func (e *ValidationIssue) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	file := e.File
	if file == "" {
		file = "<inline>"
	}
	return fmt.Sprintf("%s: rules[%d].%s: %v", file, e.Index, e.Field, e.Err)
}

func (e *ValidationIssue) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func validationIssue(r Rule, field string, err error) error {
	if err == nil {
		return nil
	}
	return &ValidationIssue{File: r.File, Index: r.Index, Field: field, Err: err}
}
