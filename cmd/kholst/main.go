// Kholst opens a window and renders a rotating cube with a solid and a
// wireframe pipeline. The cube shader is compiled at startup from WGSL
// to SPIR-V; if compilation fails the window stays open and undrawn so
// the log and diagnostics can be read.
package main

import (
	"flag"
	"io"
	"log"
	"os"
	"runtime"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/kholst/kholst/render"
	"github.com/kholst/kholst/shader"
)

const (
	vertexEntry   = "cubeVertex"
	fragmentEntry = "cubeFragment"
	cubeVertices  = 36

	logFilePath = ".log.last.txt"
)

func init() {
	// GLFW event handling must run on the main OS thread.
	runtime.LockOSThread()
}

func main() {
	width := flag.Int("width", 1680, "window width in pixels")
	height := flag.Int("height", 720, "window height in pixels")
	debug := flag.Bool("debug", false, "enable the Vulkan validation layer")
	shaderPath := flag.String("shader", "shaders/cube.wgsl", "path to the cube shader source")
	flag.Parse()

	if file, err := os.Create(logFilePath); err == nil {
		defer file.Close()
		log.SetOutput(io.MultiWriter(os.Stderr, file))
	} else {
		log.Printf("kholst: log file: %v", err)
	}

	core, err := render.NewCore(render.Config{
		Title:            "Kholst",
		Width:            *width,
		Height:           *height,
		EnableValidation: *debug,
	})
	if err != nil {
		log.Fatalf("kholst: %v", err)
	}
	defer core.Destroy()

	buildCubePipelines(core, *shaderPath)
	if !core.Ready() {
		log.Printf("kholst: pipelines not built, window stays empty")
	}

	core.Run(cubeTransform)
}

// buildCubePipelines compiles the cube shader and hands the SPIR-V to
// the renderer. Every failure is logged and left behind, the caller
// keeps running without pipelines.
func buildCubePipelines(core *render.Core, path string) {
	compiler := &shader.Compiler{}
	if err := compiler.Init(shader.TargetSPIRV); err != nil {
		log.Printf("kholst: shader compiler init: %v", err)
		logDiagnostics(compiler)
		return
	}

	vert, frag, err := compiler.CompileVertexFragment(path, vertexEntry, fragmentEntry)
	if err != nil {
		log.Printf("kholst: compiling %s: %v", path, err)
		logDiagnostics(compiler)
		return
	}

	if err := core.BuildPipelines(vert, frag, vertexEntry, fragmentEntry, cubeVertices); err != nil {
		log.Printf("kholst: %v", err)
	}
}

func logDiagnostics(compiler *shader.Compiler) {
	if diagnostics := compiler.LastDiagnostics(); diagnostics != "" {
		log.Printf("kholst: diagnostics:\n%s", diagnostics)
	}
}

// cubeTransform returns the MVP matrix for the cube at time t: a 45
// degree perspective, the cube pushed back along -Z, spinning around
// the (1,1,1) diagonal.
func cubeTransform(t, aspect float32) mgl32.Mat4 {
	proj := mgl32.Perspective(mgl32.DegToRad(45), aspect, 0.1, 1000)
	// GL to Vulkan clip space: flip Y.
	proj[5] *= -1

	model := mgl32.Translate3D(0, 0, -3.5).
		Mul4(mgl32.HomogRotate3D(t, mgl32.Vec3{1, 1, 1}.Normalize()))

	return proj.Mul4(model)
}
