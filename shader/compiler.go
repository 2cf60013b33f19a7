// Package shader compiles WGSL shader source to SPIR-V for the render
// pipelines. It drives the naga toolchain one stage at a time (tokenize,
// parse, lower, entry-point selection, link, codegen) and accumulates the
// diagnostics each stage emits so callers can report a single readable
// string when a shader is rejected.
package shader

import (
	"fmt"
	"os"
	"strings"

	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"
	"github.com/gogpu/naga/wgsl"
)

// Stage selects the pipeline stage an entry point is compiled for.
type Stage int

const (
	// StageVertex compiles a vertex entry point.
	StageVertex Stage = iota

	// StageFragment compiles a fragment entry point.
	StageFragment

	// StageCompute compiles a compute entry point.
	StageCompute
)

// String returns the stage name as it appears in diagnostics.
func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	default:
		return "unknown"
	}
}

// toIR maps a Stage to the toolchain's stage tag.
func (s Stage) toIR() (ir.ShaderStage, bool) {
	switch s {
	case StageVertex:
		return ir.StageVertex, true
	case StageFragment:
		return ir.StageFragment, true
	case StageCompute:
		return ir.StageCompute, true
	default:
		return 0, false
	}
}

// Target selects the output binary format.
type Target int

// TargetSPIRV emits SPIR-V binaries. It is the only supported target.
const TargetSPIRV Target = iota

// Compiler turns WGSL source files into SPIR-V word sequences.
//
// A Compiler must be initialized with Init before use. It keeps a
// session-scoped diagnostics buffer that is cleared at the start of every
// CompileEntryPoint call and appended to by each compilation stage, so a
// single Compiler is not safe for concurrent compilations.
type Compiler struct {
	backendOpts spirv.Options
	diagnostics strings.Builder
	initialized bool
}

// Init establishes the compiler session for the given output format.
// It is idempotent: once a call has succeeded, later calls return nil
// without touching the session. The SPIR-V profile is fixed by the
// backend's default options.
func (c *Compiler) Init(target Target) error {
	if c.initialized {
		return nil
	}

	if target != TargetSPIRV {
		c.diagnostics.Reset()
		fmt.Fprintf(&c.diagnostics, "init: target format %d is not supported, only SPIR-V output is available\n", target)
		return ErrUnsupportedTarget
	}

	opts := spirv.DefaultOptions()
	opts.Debug = true
	c.backendOpts = opts

	c.initialized = true
	return nil
}

// CompileEntryPoint reads the WGSL file at path and compiles the named
// entry point for the given stage, returning the SPIR-V code as 32-bit
// words. On failure the returned error wraps one of the package sentinel
// errors and LastDiagnostics holds everything the toolchain reported.
//
// On success a reflection summary of the linked program is written to the
// log. The dump is informational only.
func (c *Compiler) CompileEntryPoint(path, entryName string, stage Stage) ([]uint32, error) {
	if !c.initialized {
		return nil, ErrNotInitialized
	}

	c.diagnostics.Reset()

	source, err := os.ReadFile(path)
	if err != nil {
		c.note("load", err.Error())
		return nil, fmt.Errorf("shader: reading %s: %w", path, ErrLoadModule)
	}

	module, err := c.loadModule(path, string(source))
	if err != nil {
		return nil, err
	}

	entryPoint, err := c.findEntryPoint(module, path, entryName, stage)
	if err != nil {
		return nil, err
	}

	// Linking in this toolchain is deriving a program module that holds
	// exactly the requested entry point.
	program := linkProgram(module, entryPoint)

	dumpReflection(entryName, program)

	return c.emit(program, entryName)
}

// CompileVertexFragment compiles a vertex and a fragment entry point from
// the same source file, in that order, stopping at the first failure.
// Both word slices are valid only when the returned error is nil.
func (c *Compiler) CompileVertexFragment(path, vertexEntry, fragmentEntry string) ([]uint32, []uint32, error) {
	if !c.initialized {
		return nil, nil, ErrNotInitialized
	}

	vertWords, err := c.CompileEntryPoint(path, vertexEntry, StageVertex)
	if err != nil {
		return nil, nil, err
	}

	fragWords, err := c.CompileEntryPoint(path, fragmentEntry, StageFragment)
	if err != nil {
		return nil, nil, err
	}

	return vertWords, fragWords, nil
}

// LastDiagnostics returns the diagnostics accumulated during the most
// recent CompileEntryPoint call (or a failed Init).
func (c *Compiler) LastDiagnostics() string {
	return c.diagnostics.String()
}

// loadModule runs the front half of the toolchain: tokenize, parse, lower.
// Each failing stage contributes its report to the diagnostics buffer.
func (c *Compiler) loadModule(path, source string) (*ir.Module, error) {
	lexer := wgsl.NewLexer(source)
	tokens, err := lexer.Tokenize()
	if err != nil {
		c.note("tokenize", err.Error())
		return nil, fmt.Errorf("shader: loading module %s: %w", path, ErrLoadModule)
	}

	parser := wgsl.NewParser(tokens)
	tree, err := parser.Parse()
	if err != nil {
		c.note("parse", err.Error())
		return nil, fmt.Errorf("shader: loading module %s: %w", path, ErrLoadModule)
	}

	module, err := wgsl.LowerWithSource(tree, source)
	if err != nil {
		c.note("lower", err.Error())
		return nil, fmt.Errorf("shader: loading module %s: %w", path, ErrLoadModule)
	}

	return module, nil
}

// findEntryPoint locates the named entry point constrained to the stage.
func (c *Compiler) findEntryPoint(module *ir.Module, path, entryName string, stage Stage) (ir.EntryPoint, error) {
	irStage, ok := stage.toIR()
	if !ok {
		c.note("entry point", fmt.Sprintf("stage %d is not a pipeline stage", stage))
		return ir.EntryPoint{}, fmt.Errorf("shader: entry point %q in %s: %w", entryName, path, ErrEntryPointNotFound)
	}

	for i := range module.EntryPoints {
		ep := module.EntryPoints[i]
		if ep.Name == entryName && ep.Stage == irStage {
			return ep, nil
		}
	}

	c.note("entry point", fmt.Sprintf("no %s entry point %q in %s", stage, entryName, path))
	return ir.EntryPoint{}, fmt.Errorf("shader: %s entry point %q in %s: %w", stage, entryName, path, ErrEntryPointNotFound)
}

// linkProgram derives the program for one entry point. The module's
// types, constants, globals, and functions are shared; only the entry
// point list narrows.
func linkProgram(module *ir.Module, entryPoint ir.EntryPoint) *ir.Module {
	program := *module
	program.EntryPoints = []ir.EntryPoint{entryPoint}
	return &program
}

// emit runs the SPIR-V backend over the linked program and converts the
// byte blob to words.
func (c *Compiler) emit(program *ir.Module, entryName string) ([]uint32, error) {
	backend := spirv.NewBackend(c.backendOpts)
	blob, err := backend.Compile(program)
	if err != nil {
		c.note("codegen", err.Error())
		return nil, fmt.Errorf("shader: generating code for %q: %w", entryName, ErrCodegenFailed)
	}

	if len(blob)%4 != 0 {
		c.note("codegen", fmt.Sprintf("binary is %d bytes", len(blob)))
		return nil, fmt.Errorf("shader: %q: %w", entryName, ErrInvalidBinarySize)
	}

	// SPIR-V words are little endian.
	words := make([]uint32, len(blob)/4)
	for i := range words {
		words[i] = uint32(blob[i*4]) |
			uint32(blob[i*4+1])<<8 |
			uint32(blob[i*4+2])<<16 |
			uint32(blob[i*4+3])<<24
	}

	return words, nil
}

// note appends one stage's report to the diagnostics buffer.
func (c *Compiler) note(stage, msg string) {
	fmt.Fprintf(&c.diagnostics, "%s: %s\n", stage, msg)
}
