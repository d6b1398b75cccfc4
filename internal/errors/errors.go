// Package errors provides sentinel errors and custom error types for the cascade application.
// Use errors.Is() and errors.As() to check for specific error types.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common conditions
var (
	// ErrMergeConflict indicates that a merge operation stopped on conflicting content
	ErrMergeConflict = errors.New("merge conflict")

	// ErrMissingInput indicates that a required configuration input is absent
	ErrMissingInput = errors.New("missing required input")
)

// MergeConflictError represents a merge that stopped on conflicting content.
type MergeConflictError struct {
	Branch string
	Source string
}

func (e *MergeConflictError) Error() string {
	if e.Branch != "" {
		return fmt.Sprintf("merging %s into %s: merge conflict", e.Source, e.Branch)
	}
	return fmt.Sprintf("merging %s: merge conflict", e.Source)
}

// Is returns true if the target error is ErrMergeConflict
func (e *MergeConflictError) Is(target error) bool {
	return target == ErrMergeConflict
}

// NewMergeConflictError creates a new MergeConflictError
func NewMergeConflictError(branch, source string) *MergeConflictError {
	return &MergeConflictError{Branch: branch, Source: source}
}

// MissingInputError represents a required input that was not supplied.
type MissingInputError struct {
	Name string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("missing required input %s", e.Name)
}

// Is returns true if the target error is ErrMissingInput
func (e *MissingInputError) Is(target error) bool {
	return target == ErrMissingInput
}

// NewMissingInputError creates a new MissingInputError
func NewMissingInputError(name string) *MissingInputError {
	return &MissingInputError{Name: name}
}

// GitCommandError represents an error from a git command execution
type GitCommandError struct {
	Command string
	Args    []string
	Stdout  string
	Stderr  string
	Err     error
}

func (e *GitCommandError) Error() string {
	msg := fmt.Sprintf("git command failed: %s", e.Command)
	if len(e.Args) > 0 {
		msg += " " + strings.Join(e.Args, " ")
	}
	if e.Stderr != "" {
		msg += fmt.Sprintf("\nstderr: %s", e.Stderr)
	}
	if e.Stdout != "" {
		msg += fmt.Sprintf("\nstdout: %s", e.Stdout)
	}
	if e.Err != nil {
		msg += fmt.Sprintf("\n%v", e.Err)
	}
	return msg
}

func (e *GitCommandError) Unwrap() error {
	return e.Err
}

// NewGitCommandError creates a new GitCommandError
func NewGitCommandError(command string, args []string, stdout, stderr string, err error) *GitCommandError {
	return &GitCommandError{
		Command: command,
		Args:    args,
		Stdout:  stdout,
		Stderr:  stderr,
		Err:     err,
	}
}
