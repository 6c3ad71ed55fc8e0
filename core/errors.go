package core

import (
	"errors"
	"fmt"
)

// Error types for better error handling
var (
	// Ingestion errors
	ErrMissingContentFile = errors.New("content file not found")
	ErrMissingField       = errors.New("missing field")
	ErrInvalidField       = errors.New("invalid field")
	ErrParse              = errors.New("parse error")
	ErrInputRootMissing   = errors.New("input root directory does not exist")

	// File manager errors
	ErrNotRegularFile = errors.New("not a regular file")

	// Generator errors
	ErrGeneratorFailed   = errors.New("generator failed")
	ErrGeneratorNotFound = errors.New("generator not found")

	// File watcher errors
	ErrWatcherNotRunning = errors.New("file watcher not running")
	ErrWatcherRunning    = errors.New("file watcher already running")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")

	// History errors
	ErrHistoryDisabled = errors.New("build history is disabled")
)

// ParseError is returned when a front matter block or config block cannot be read
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Msg)
	}
	return fmt.Sprintf("parse error: %s", e.Msg)
}

func (e *ParseError) Unwrap() error {
	return ErrParse
}

// NewParseError creates a new ParseError
func NewParseError(line int, msg string) *ParseError {
	return &ParseError{Line: line, Msg: msg}
}

// FieldError reports a required or malformed metadata field.
// Err is either ErrMissingField or ErrInvalidField.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	if errors.Is(e.Err, ErrInvalidField) {
		return "InvalidField:" + e.Field
	}
	return "MissingField:" + e.Field
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// MissingField creates a FieldError for an absent required field
func MissingField(field string) *FieldError {
	return &FieldError{Field: field, Err: ErrMissingField}
}

// InvalidField creates a FieldError for a field that is present but unusable
func InvalidField(field string) *FieldError {
	return &FieldError{Field: field, Err: ErrInvalidField}
}

// ItemError ties a processing failure to the post or book folder that caused it
type ItemError struct {
	Folder string
	Err    error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s: %v", e.Folder, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// NewItemError creates a new ItemError
func NewItemError(folder string, err error) *ItemError {
	return &ItemError{Folder: folder, Err: err}
}

// FileManagerError wraps public tree write errors
type FileManagerError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileManagerError) Error() string {
	return fmt.Sprintf("filemanager %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileManagerError) Unwrap() error {
	return e.Err
}

// NewFileManagerError creates a new FileManagerError
func NewFileManagerError(op, path string, err error) *FileManagerError {
	return &FileManagerError{
		Op:   op,
		Path: path,
		Err:  err,
	}
}

// GeneratorError wraps a failed generator run
type GeneratorError struct {
	Generator string
	Err       error
}

func (e *GeneratorError) Error() string {
	return fmt.Sprintf("generator %s: %v", e.Generator, e.Err)
}

func (e *GeneratorError) Unwrap() error {
	return e.Err
}

// NewGeneratorError creates a new GeneratorError
func NewGeneratorError(generator string, err error) *GeneratorError {
	return &GeneratorError{Generator: generator, Err: err}
}
