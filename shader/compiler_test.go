package shader

import (
	"bytes"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

const (
	cubeShader   = "testdata/cube.wgsl"
	brokenShader = "testdata/broken.wgsl"

	// spirvMagic is the first word of any valid SPIR-V binary.
	spirvMagic = 0x07230203
)

func newTestCompiler(t *testing.T) *Compiler {
	t.Helper()
	c := &Compiler{}
	if err := c.Init(TargetSPIRV); err != nil {
		t.Fatalf("Init() = %v, want nil", err)
	}
	return c
}

func TestCompilerInit(t *testing.T) {
	t.Run("idempotent", func(t *testing.T) {
		c := &Compiler{}
		if err := c.Init(TargetSPIRV); err != nil {
			t.Fatalf("first Init() = %v, want nil", err)
		}
		if err := c.Init(TargetSPIRV); err != nil {
			t.Fatalf("second Init() = %v, want nil", err)
		}
		// After a success, Init is a no-op even for a bad target.
		if err := c.Init(Target(42)); err != nil {
			t.Fatalf("Init after success = %v, want nil", err)
		}
	})

	t.Run("unsupported target", func(t *testing.T) {
		c := &Compiler{}
		err := c.Init(Target(42))
		if !errors.Is(err, ErrUnsupportedTarget) {
			t.Fatalf("Init(42) = %v, want ErrUnsupportedTarget", err)
		}
		if c.LastDiagnostics() == "" {
			t.Error("LastDiagnostics() is empty after failed Init")
		}
	})

	t.Run("not initialized", func(t *testing.T) {
		c := &Compiler{}
		if _, err := c.CompileEntryPoint(cubeShader, "cubeVertex", StageVertex); !errors.Is(err, ErrNotInitialized) {
			t.Errorf("CompileEntryPoint = %v, want ErrNotInitialized", err)
		}
		if _, _, err := c.CompileVertexFragment(cubeShader, "cubeVertex", "cubeFragment"); !errors.Is(err, ErrNotInitialized) {
			t.Errorf("CompileVertexFragment = %v, want ErrNotInitialized", err)
		}
	})
}

func TestCompileEntryPoint(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		entry   string
		stage   Stage
		wantErr error
	}{
		{
			name:  "vertex entry",
			path:  cubeShader,
			entry: "cubeVertex",
			stage: StageVertex,
		},
		{
			name:  "fragment entry",
			path:  cubeShader,
			entry: "cubeFragment",
			stage: StageFragment,
		},
		{
			name:    "missing file",
			path:    filepath.Join("testdata", "no-such-shader.wgsl"),
			entry:   "cubeVertex",
			stage:   StageVertex,
			wantErr: ErrLoadModule,
		},
		{
			name:    "broken source",
			path:    brokenShader,
			entry:   "brokenVertex",
			stage:   StageVertex,
			wantErr: ErrLoadModule,
		},
		{
			name:    "unknown entry point",
			path:    cubeShader,
			entry:   "noSuchEntry",
			stage:   StageVertex,
			wantErr: ErrEntryPointNotFound,
		},
		{
			name:    "entry point with wrong stage",
			path:    cubeShader,
			entry:   "cubeVertex",
			stage:   StageFragment,
			wantErr: ErrEntryPointNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCompiler(t)
			words, err := c.CompileEntryPoint(tt.path, tt.entry, tt.stage)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("CompileEntryPoint() error = %v, want %v", err, tt.wantErr)
				}
				if words != nil {
					t.Errorf("CompileEntryPoint() returned %d words on failure, want none", len(words))
				}
				return
			}

			if err != nil {
				t.Fatalf("CompileEntryPoint() error = %v\ndiagnostics:\n%s", err, c.LastDiagnostics())
			}
			if len(words) == 0 {
				t.Fatal("CompileEntryPoint() returned no code")
			}
			if words[0] != spirvMagic {
				t.Errorf("first word = 0x%08x, want SPIR-V magic 0x%08x", words[0], spirvMagic)
			}
		})
	}
}

func TestCompileEntryPointErrorNamesEntry(t *testing.T) {
	c := newTestCompiler(t)

	_, err := c.CompileEntryPoint(cubeShader, "noSuchEntry", StageVertex)
	if err == nil {
		t.Fatal("CompileEntryPoint() = nil, want error")
	}
	if !strings.Contains(err.Error(), "noSuchEntry") {
		t.Errorf("error %q does not name the entry point", err)
	}
	if !strings.Contains(c.LastDiagnostics(), "noSuchEntry") {
		t.Errorf("diagnostics %q do not name the entry point", c.LastDiagnostics())
	}
}

// entryPointNames decodes the OpEntryPoint names declared in a SPIR-V
// binary. Instructions start after the five-word header; each packs its
// word count in the high half of the first word. OpEntryPoint carries
// the execution model, the function id, then the null-terminated name
// packed four bytes per word.
func entryPointNames(words []uint32) []string {
	const opEntryPoint = 15

	var names []string
	for i := 5; i < len(words); {
		op := words[i] & 0xffff
		count := int(words[i] >> 16)
		if count == 0 || i+count > len(words) {
			break
		}
		if op == opEntryPoint {
			var raw []byte
			for _, w := range words[i+3 : i+count] {
				raw = append(raw, byte(w), byte(w>>8), byte(w>>16), byte(w>>24))
			}
			if end := bytes.IndexByte(raw, 0); end >= 0 {
				raw = raw[:end]
			}
			names = append(names, string(raw))
		}
		i += count
	}
	return names
}

// The pipeline stages are created with the source entry-point names, so
// the compiled binary must declare the entry point under its declared
// name rather than renaming it.
func TestCompileKeepsEntryPointName(t *testing.T) {
	tests := []struct {
		name  string
		entry string
		stage Stage
	}{
		{"vertex", "cubeVertex", StageVertex},
		{"fragment", "cubeFragment", StageFragment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCompiler(t)

			words, err := c.CompileEntryPoint(cubeShader, tt.entry, tt.stage)
			if err != nil {
				t.Fatalf("CompileEntryPoint() error = %v\ndiagnostics:\n%s", err, c.LastDiagnostics())
			}

			names := entryPointNames(words)
			if !slices.Contains(names, tt.entry) {
				t.Errorf("OpEntryPoint names = %q, want %q among them", names, tt.entry)
			}
			if slices.Contains(names, "main") {
				t.Errorf("OpEntryPoint names = %q, entry point was renamed", names)
			}
		})
	}
}

func TestCompileVertexFragment(t *testing.T) {
	t.Run("both stages", func(t *testing.T) {
		c := newTestCompiler(t)

		vert, frag, err := c.CompileVertexFragment(cubeShader, "cubeVertex", "cubeFragment")
		if err != nil {
			t.Fatalf("CompileVertexFragment() error = %v\ndiagnostics:\n%s", err, c.LastDiagnostics())
		}
		if len(vert) == 0 || len(frag) == 0 {
			t.Fatalf("CompileVertexFragment() = %d vertex words, %d fragment words, want both non-empty",
				len(vert), len(frag))
		}
	})

	t.Run("short circuits on vertex failure", func(t *testing.T) {
		c := newTestCompiler(t)

		vert, frag, err := c.CompileVertexFragment(cubeShader, "noSuchEntry", "cubeFragment")
		if !errors.Is(err, ErrEntryPointNotFound) {
			t.Fatalf("CompileVertexFragment() error = %v, want ErrEntryPointNotFound", err)
		}
		if vert != nil || frag != nil {
			t.Error("CompileVertexFragment() returned code on failure")
		}
	})
}

func TestDiagnosticsDoNotLeakBetweenCalls(t *testing.T) {
	c := newTestCompiler(t)

	if _, err := c.CompileEntryPoint(brokenShader, "brokenVertex", StageVertex); err == nil {
		t.Fatal("compiling broken shader succeeded, want failure")
	}
	if c.LastDiagnostics() == "" {
		t.Fatal("no diagnostics after failed compile")
	}
	stale := c.LastDiagnostics()

	if _, err := c.CompileEntryPoint(cubeShader, "cubeVertex", StageVertex); err != nil {
		t.Fatalf("CompileEntryPoint() error = %v", err)
	}
	if got := c.LastDiagnostics(); strings.Contains(got, strings.TrimSpace(stale)) && stale != "" {
		t.Errorf("diagnostics from the previous call leaked: %q", got)
	}
}
