package render

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"
)

func TestChooseSurfaceFormat(t *testing.T) {
	srgb := vk.SurfaceFormat{
		Format:     vk.FormatB8g8r8a8Srgb,
		ColorSpace: vk.ColorSpaceSrgbNonlinear,
	}
	unorm := vk.SurfaceFormat{
		Format:     vk.FormatB8g8r8a8Unorm,
		ColorSpace: vk.ColorSpaceSrgbNonlinear,
	}

	tests := []struct {
		name    string
		formats []vk.SurfaceFormat
		want    vk.Format
	}{
		{"prefers sRGB", []vk.SurfaceFormat{unorm, srgb}, vk.FormatB8g8r8a8Srgb},
		{"falls back to first", []vk.SurfaceFormat{unorm}, vk.FormatB8g8r8a8Unorm},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := chooseSurfaceFormat(tt.formats)
			if got.Format != tt.want {
				t.Errorf("chooseSurfaceFormat() = %v, want %v", got.Format, tt.want)
			}
		})
	}
}

func TestChoosePresentMode(t *testing.T) {
	tests := []struct {
		name  string
		modes []vk.PresentMode
		want  vk.PresentMode
	}{
		{"prefers mailbox", []vk.PresentMode{vk.PresentModeFifo, vk.PresentModeMailbox}, vk.PresentModeMailbox},
		{"falls back to fifo", []vk.PresentMode{vk.PresentModeImmediate}, vk.PresentModeFifo},
		{"empty defaults to fifo", nil, vk.PresentModeFifo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := choosePresentMode(tt.modes); got != tt.want {
				t.Errorf("choosePresentMode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClampExtent(t *testing.T) {
	minExtent := vk.Extent2D{Width: 100, Height: 100}
	maxExtent := vk.Extent2D{Width: 1920, Height: 1080}

	tests := []struct {
		name   string
		extent vk.Extent2D
		want   vk.Extent2D
	}{
		{"in range", vk.Extent2D{Width: 800, Height: 600}, vk.Extent2D{Width: 800, Height: 600}},
		{"below min", vk.Extent2D{Width: 10, Height: 10}, vk.Extent2D{Width: 100, Height: 100}},
		{"above max", vk.Extent2D{Width: 4000, Height: 4000}, vk.Extent2D{Width: 1920, Height: 1080}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clampExtent(tt.extent, minExtent, maxExtent)
			if got != tt.want {
				t.Errorf("clampExtent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSwapchainUsable(t *testing.T) {
	tests := []struct {
		name string
		res  vk.Result
		want bool
	}{
		{"success", vk.Success, true},
		{"suboptimal", vk.Suboptimal, true},
		{"out of date", vk.ErrorOutOfDate, true},
		{"device lost", vk.ErrorDeviceLost, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := swapchainUsable(tt.res); got != tt.want {
				t.Errorf("swapchainUsable(%v) = %v, want %v", tt.res, got, tt.want)
			}
		})
	}
}

func TestStageEntryName(t *testing.T) {
	got := stageEntryName("cubeVertex")
	if got != "cubeVertex\x00" {
		t.Errorf("stageEntryName() = %q, want null-terminated entry name", got)
	}
}

func TestMatrixBytes(t *testing.T) {
	m := mgl32.Ident4()
	buf := matrixBytes(m)

	if len(buf) != uniformSize {
		t.Fatalf("matrixBytes() length = %d, want %d", len(buf), uniformSize)
	}

	for i := 0; i < 16; i++ {
		bits := binary.LittleEndian.Uint32(buf[i*4:])
		got := math.Float32frombits(bits)
		if got != m[i] {
			t.Errorf("element %d = %v, want %v", i, got, m[i])
		}
	}
}
