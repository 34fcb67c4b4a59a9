package envfile

import (
	"errors"
	"fmt"
)

var (
	// ErrFileRead is matched by every *ReadError.
	ErrFileRead = errors.New("cannot read env file")
	// ErrFlush is matched by every *FlushError.
	ErrFlush = errors.New("cannot write env file")
	// ErrInvalidArgument is returned by Put for an empty variable name.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrCannotCreateOutput is matched by both ErrDirectoryCreation and ErrFileCreation.
	ErrCannotCreateOutput = errors.New("cannot create output file")
	ErrDirectoryCreation  = fmt.Errorf("%w: directory creation failed", ErrCannotCreateOutput)
	ErrFileCreation       = fmt.Errorf("%w: file creation failed", ErrCannotCreateOutput)

	// ErrExampleGenerationFailed is matched by every *GenerationError.
	ErrExampleGenerationFailed = errors.New("example env file generation failed")
)

// ReadError reports an env file that exists but could not be read.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read env file %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

func (e *ReadError) Is(target error) bool { return target == ErrFileRead }

// FlushError reports a failure while writing a store back to disk.
type FlushError struct {
	Path string
	Err  error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("failed to write env file %s: %v", e.Path, e.Err)
}

func (e *FlushError) Unwrap() error { return e.Err }

func (e *FlushError) Is(target error) bool { return target == ErrFlush }

// GenerationError wraps any failure of ExampleGenerator.Generate together with
// the stage that was being attempted.
type GenerationError struct {
	Stage Stage
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%v (%s): %v", ErrExampleGenerationFailed, e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool { return target == ErrExampleGenerationFailed }
