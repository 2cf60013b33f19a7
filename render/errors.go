package render

import "errors"

// Package errors for the Vulkan renderer.
var (
	// ErrNoDevice is returned when no physical device supports the
	// surface, the swapchain extension, and non-solid fill modes.
	ErrNoDevice = errors.New("render: no suitable GPU found")

	// ErrNotReady is returned when a frame is requested before the
	// pipelines were built.
	ErrNotReady = errors.New("render: pipelines not built")

	// ErrNoMemoryType is returned when the device offers no memory type
	// matching a buffer's requirements.
	ErrNoMemoryType = errors.New("render: no suitable memory type")
)
