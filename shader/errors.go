package shader

import "errors"

// Package errors for the shader compiler.
var (
	// ErrNotInitialized is returned when compilation is attempted before Init.
	ErrNotInitialized = errors.New("shader: compiler not initialized")

	// ErrUnsupportedTarget is returned when Init is asked for an output
	// format this toolchain cannot emit.
	ErrUnsupportedTarget = errors.New("shader: unsupported target format")

	// ErrLoadModule is returned when the source file cannot be read or does
	// not tokenize, parse, or lower to a module.
	ErrLoadModule = errors.New("shader: module load failed")

	// ErrEntryPointNotFound is returned when the module has no entry point
	// with the requested name and stage.
	ErrEntryPointNotFound = errors.New("shader: entry point not found")

	// ErrCodegenFailed is returned when the linked program does not
	// validate or the backend cannot emit code for it.
	ErrCodegenFailed = errors.New("shader: code generation failed")

	// ErrInvalidBinarySize is returned when the emitted binary is not a
	// whole number of 32-bit words.
	ErrInvalidBinarySize = errors.New("shader: binary size not a multiple of 4")
)
