// Package render owns the window, the Vulkan context, and the frame
// loop of the demo. It renders a fixed vertex count with two pipelines
// built from caller-supplied SPIR-V: one solid, one wireframe.
package render

import (
	"fmt"
	"log"
	"math"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"
)

const maxFramesInFlight = 2

// Config describes the window and instance to create.
type Config struct {
	Title  string
	Width  int
	Height int

	// EnableValidation turns on the Khronos validation layer.
	EnableValidation bool
}

// Core holds the window and every Vulkan object of the demo. It is
// created by NewCore, armed by BuildPipelines, driven by Run or
// DrawFrame, and torn down by Destroy. Core is single threaded.
type Core struct {
	cfg    Config
	window *glfw.Window

	instance       vk.Instance
	surface        vk.Surface
	physicalDevice vk.PhysicalDevice
	device         vk.Device

	graphicsQueue vk.Queue
	presentQueue  vk.Queue

	swapchain       vk.Swapchain
	swapchainImages []vk.Image
	swapchainViews  []vk.ImageView
	swapchainFormat vk.Format
	swapchainExtent vk.Extent2D
	framebuffers    []vk.Framebuffer

	renderPass vk.RenderPass

	descriptorLayout vk.DescriptorSetLayout
	descriptorPool   vk.DescriptorPool
	descriptorSets   []vk.DescriptorSet
	uniformBuffers   []vk.Buffer
	uniformMemory    []vk.DeviceMemory

	pipelineLayout    vk.PipelineLayout
	solidPipeline     vk.Pipeline
	wireframePipeline vk.Pipeline
	vertexCount       uint32

	commandPool    vk.CommandPool
	commandBuffers []vk.CommandBuffer

	imageAvailableSems []vk.Semaphore
	renderFinishedSems []vk.Semaphore
	inFlightFences     []vk.Fence

	currentFrame uint32
	ready        bool
}

// queueFamilies carries the queue family indices the demo needs.
// An index of -1 means the family was not found.
type queueFamilies struct {
	graphics int32
	present  int32
}

func (q queueFamilies) complete() bool {
	return q.graphics >= 0 && q.present >= 0
}

// NewCore opens the window and brings the Vulkan context up to the
// point where pipelines can be built: instance, surface, device,
// swapchain, render pass, framebuffers, uniform buffers, descriptor
// sets, command buffers, and sync objects.
func NewCore(cfg Config) (*Core, error) {
	c := &Core{
		cfg:            cfg,
		physicalDevice: vk.PhysicalDevice(vk.NullHandle),
		device:         vk.Device(vk.NullHandle),
		surface:        vk.NullSurface,
		swapchain:      vk.NullSwapchain,
	}

	if err := c.initWindow(); err != nil {
		return nil, err
	}
	if err := c.initVulkan(); err != nil {
		c.Destroy()
		return nil, err
	}

	return c, nil
}

func (c *Core) initWindow() error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("render: glfw init: %w", err)
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.False)

	window, err := glfw.CreateWindow(c.cfg.Width, c.cfg.Height, c.cfg.Title, nil, nil)
	if err != nil {
		return fmt.Errorf("render: creating window: %w", err)
	}
	c.window = window

	return nil
}

func (c *Core) initVulkan() error {
	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	if err := vk.Init(); err != nil {
		return fmt.Errorf("render: vulkan init: %w", err)
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"create instance", c.createInstance},
		{"create surface", c.createSurface},
		{"pick physical device", c.pickPhysicalDevice},
		{"create logical device", c.createLogicalDevice},
		{"create swapchain", c.createSwapchain},
		{"create image views", c.createImageViews},
		{"create render pass", c.createRenderPass},
		{"create framebuffers", c.createFramebuffers},
		{"create uniform buffers", c.createUniformBuffers},
		{"create descriptor sets", c.createDescriptorSets},
		{"create command buffers", c.createCommandBuffers},
		{"create sync objects", c.createSyncObjects},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return fmt.Errorf("render: %s: %w", step.name, err)
		}
	}

	return nil
}

func (c *Core) createInstance() error {
	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   c.cfg.Title + "\x00",
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        "No Engine\x00",
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.MakeVersion(1, 1, 0),
	}

	extensions := c.window.GetRequiredInstanceExtensions()

	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}

	if c.cfg.EnableValidation {
		layers := validationLayers()
		createInfo.EnabledLayerCount = uint32(len(layers))
		createInfo.PpEnabledLayerNames = layers
	}

	var instance vk.Instance
	if err := vk.Error(vk.CreateInstance(&createInfo, nil, &instance)); err != nil {
		return err
	}
	c.instance = instance

	return vk.InitInstance(instance)
}

func validationLayers() []string {
	return []string{"VK_LAYER_KHRONOS_validation\x00"}
}

func deviceExtensions() []string {
	return []string{vk.KhrSwapchainExtensionName + "\x00"}
}

func (c *Core) createSurface() error {
	surfacePtr, err := c.window.CreateWindowSurface(c.instance, nil)
	if err != nil {
		return fmt.Errorf("creating window surface: %w", err)
	}
	c.surface = vk.SurfaceFromPointer(surfacePtr)
	return nil
}

func (c *Core) pickPhysicalDevice() error {
	var deviceCount uint32
	if err := vk.Error(vk.EnumeratePhysicalDevices(c.instance, &deviceCount, nil)); err != nil {
		return err
	}
	if deviceCount == 0 {
		return ErrNoDevice
	}

	devices := make([]vk.PhysicalDevice, deviceCount)
	if err := vk.Error(vk.EnumeratePhysicalDevices(c.instance, &deviceCount, devices)); err != nil {
		return err
	}

	var (
		best      vk.PhysicalDevice
		bestScore uint32
	)
	for _, device := range devices {
		if score := c.scoreDevice(device); score > bestScore {
			best = device
			bestScore = score
		}
	}
	if bestScore == 0 {
		return ErrNoDevice
	}

	c.physicalDevice = best
	return nil
}

// scoreDevice rates a physical device; zero means unusable. Discrete
// GPUs win over everything else.
func (c *Core) scoreDevice(device vk.PhysicalDevice) uint32 {
	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(device, &properties)
	properties.Deref()

	var score uint32 = 1
	if properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
		score += 1000
	}

	if !c.deviceSuitable(device) {
		return 0
	}

	log.Printf("render: device %s (score %d)", vk.ToString(properties.DeviceName[:]), score)
	return score
}

func (c *Core) deviceSuitable(device vk.PhysicalDevice) bool {
	if !c.findQueueFamilies(device).complete() {
		return false
	}
	if !supportsDeviceExtensions(device) {
		return false
	}

	// The wireframe pipeline needs non-solid polygon modes.
	var features vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(device, &features)
	features.Deref()
	if features.FillModeNonSolid != vk.True {
		return false
	}

	support := c.querySwapchainSupport(device)
	return len(support.formats) > 0 && len(support.presentModes) > 0
}

func supportsDeviceExtensions(device vk.PhysicalDevice) bool {
	var count uint32
	if err := vk.Error(vk.EnumerateDeviceExtensionProperties(device, "", &count, nil)); err != nil {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if err := vk.Error(vk.EnumerateDeviceExtensionProperties(device, "", &count, available)); err != nil {
		return false
	}

	required := make(map[string]struct{})
	for _, name := range deviceExtensions() {
		required[name] = struct{}{}
	}
	for _, ext := range available {
		ext.Deref()
		delete(required, vk.ToString(ext.ExtensionName[:])+"\x00")
	}
	return len(required) == 0
}

func (c *Core) findQueueFamilies(device vk.PhysicalDevice) queueFamilies {
	families := queueFamilies{graphics: -1, present: -1}

	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, nil)
	properties := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, properties)

	for i, family := range properties {
		family.Deref()

		if families.graphics < 0 && family.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			families.graphics = int32(i)
		}

		var presentSupport vk.Bool32
		err := vk.Error(vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), c.surface, &presentSupport))
		if err == nil && families.present < 0 && presentSupport.B() {
			families.present = int32(i)
		}

		if families.complete() {
			break
		}
	}

	return families
}

func (c *Core) createLogicalDevice() error {
	families := c.findQueueFamilies(c.physicalDevice)

	uniqueFamilies := map[int32]struct{}{
		families.graphics: {},
		families.present:  {},
	}
	var queueInfos []vk.DeviceQueueCreateInfo
	for family := range uniqueFamilies {
		queueInfos = append(queueInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: uint32(family),
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		})
	}

	features := []vk.PhysicalDeviceFeatures{{
		FillModeNonSolid: vk.True,
	}}

	extensions := deviceExtensions()
	createInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		PQueueCreateInfos:       queueInfos,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PEnabledFeatures:        features,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
	}
	if c.cfg.EnableValidation {
		layers := validationLayers()
		createInfo.EnabledLayerCount = uint32(len(layers))
		createInfo.PpEnabledLayerNames = layers
	}

	var device vk.Device
	if err := vk.Error(vk.CreateDevice(c.physicalDevice, &createInfo, nil, &device)); err != nil {
		return err
	}
	c.device = device

	var graphicsQueue vk.Queue
	vk.GetDeviceQueue(c.device, uint32(families.graphics), 0, &graphicsQueue)
	c.graphicsQueue = graphicsQueue

	var presentQueue vk.Queue
	vk.GetDeviceQueue(c.device, uint32(families.present), 0, &presentQueue)
	c.presentQueue = presentQueue

	return nil
}

// swapchainSupport describes what the surface can do on a device.
type swapchainSupport struct {
	capabilities vk.SurfaceCapabilities
	formats      []vk.SurfaceFormat
	presentModes []vk.PresentMode
}

func (c *Core) querySwapchainSupport(device vk.PhysicalDevice) swapchainSupport {
	var support swapchainSupport

	var capabilities vk.SurfaceCapabilities
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceCapabilities(device, c.surface, &capabilities)); err == nil {
		capabilities.Deref()
		capabilities.CurrentExtent.Deref()
		capabilities.MinImageExtent.Deref()
		capabilities.MaxImageExtent.Deref()
		support.capabilities = capabilities
	}

	var formatCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(device, c.surface, &formatCount, nil)
	if formatCount > 0 {
		formats := make([]vk.SurfaceFormat, formatCount)
		vk.GetPhysicalDeviceSurfaceFormats(device, c.surface, &formatCount, formats)
		for _, format := range formats {
			format.Deref()
			support.formats = append(support.formats, format)
		}
	}

	var modeCount uint32
	vk.GetPhysicalDeviceSurfacePresentModes(device, c.surface, &modeCount, nil)
	if modeCount > 0 {
		modes := make([]vk.PresentMode, modeCount)
		vk.GetPhysicalDeviceSurfacePresentModes(device, c.surface, &modeCount, modes)
		support.presentModes = modes
	}

	return support
}

func (c *Core) createSwapchain() error {
	support := c.querySwapchainSupport(c.physicalDevice)

	surfaceFormat := chooseSurfaceFormat(support.formats)
	presentMode := choosePresentMode(support.presentModes)
	extent := c.chooseExtent(support.capabilities)

	imageCount := support.capabilities.MinImageCount + 1
	if support.capabilities.MaxImageCount > 0 && imageCount > support.capabilities.MaxImageCount {
		imageCount = support.capabilities.MaxImageCount
	}

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          c.surface,
		MinImageCount:    imageCount,
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     support.capabilities.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
	}

	families := c.findQueueFamilies(c.physicalDevice)
	if families.graphics != families.present {
		createInfo.ImageSharingMode = vk.SharingModeConcurrent
		createInfo.QueueFamilyIndexCount = 2
		createInfo.PQueueFamilyIndices = []uint32{
			uint32(families.graphics),
			uint32(families.present),
		}
	} else {
		createInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	var swapchain vk.Swapchain
	if err := vk.Error(vk.CreateSwapchain(c.device, &createInfo, nil, &swapchain)); err != nil {
		return err
	}
	c.swapchain = swapchain

	var count uint32
	vk.GetSwapchainImages(c.device, c.swapchain, &count, nil)
	images := make([]vk.Image, count)
	vk.GetSwapchainImages(c.device, c.swapchain, &count, images)

	c.swapchainImages = images
	c.swapchainFormat = surfaceFormat.Format
	c.swapchainExtent = extent

	return nil
}

// chooseSurfaceFormat prefers B8G8R8A8 sRGB and falls back to whatever
// the surface lists first.
func chooseSurfaceFormat(formats []vk.SurfaceFormat) vk.SurfaceFormat {
	for _, format := range formats {
		if format.Format == vk.FormatB8g8r8a8Srgb && format.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return format
		}
	}
	return formats[0]
}

// choosePresentMode prefers mailbox and falls back to FIFO, which every
// conforming device provides.
func choosePresentMode(modes []vk.PresentMode) vk.PresentMode {
	for _, mode := range modes {
		if mode == vk.PresentModeMailbox {
			return mode
		}
	}
	return vk.PresentModeFifo
}

func (c *Core) chooseExtent(capabilities vk.SurfaceCapabilities) vk.Extent2D {
	if capabilities.CurrentExtent.Width != math.MaxUint32 {
		return capabilities.CurrentExtent
	}

	width, height := c.window.GetFramebufferSize()
	extent := vk.Extent2D{
		Width:  uint32(width),
		Height: uint32(height),
	}
	return clampExtent(extent, capabilities.MinImageExtent, capabilities.MaxImageExtent)
}

// clampExtent keeps an extent within the surface's allowed range.
func clampExtent(extent, minExtent, maxExtent vk.Extent2D) vk.Extent2D {
	extent.Width = clamp(extent.Width, minExtent.Width, maxExtent.Width)
	extent.Height = clamp(extent.Height, minExtent.Height, maxExtent.Height)
	return extent
}

func clamp(val, lo, hi uint32) uint32 {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}

func (c *Core) createImageViews() error {
	for i, image := range c.swapchainImages {
		createInfo := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    image,
			ViewType: vk.ImageViewType2d,
			Format:   c.swapchainFormat,
			Components: vk.ComponentMapping{
				R: vk.ComponentSwizzleIdentity,
				G: vk.ComponentSwizzleIdentity,
				B: vk.ComponentSwizzleIdentity,
				A: vk.ComponentSwizzleIdentity,
			},
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}

		var view vk.ImageView
		if err := vk.Error(vk.CreateImageView(c.device, &createInfo, nil, &view)); err != nil {
			return fmt.Errorf("image view %d: %w", i, err)
		}
		c.swapchainViews = append(c.swapchainViews, view)
	}

	return nil
}

func (c *Core) createFramebuffers() error {
	c.framebuffers = make([]vk.Framebuffer, len(c.swapchainViews))

	for i, view := range c.swapchainViews {
		createInfo := vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      c.renderPass,
			AttachmentCount: 1,
			PAttachments:    []vk.ImageView{view},
			Width:           c.swapchainExtent.Width,
			Height:          c.swapchainExtent.Height,
			Layers:          1,
		}

		var framebuffer vk.Framebuffer
		if err := vk.Error(vk.CreateFramebuffer(c.device, &createInfo, nil, &framebuffer)); err != nil {
			return fmt.Errorf("framebuffer %d: %w", i, err)
		}
		c.framebuffers[i] = framebuffer
	}

	return nil
}

func (c *Core) createCommandBuffers() error {
	families := c.findQueueFamilies(c.physicalDevice)

	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: uint32(families.graphics),
	}
	var pool vk.CommandPool
	if err := vk.Error(vk.CreateCommandPool(c.device, &poolInfo, nil, &pool)); err != nil {
		return err
	}
	c.commandPool = pool

	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        c.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: maxFramesInFlight,
	}
	buffers := make([]vk.CommandBuffer, maxFramesInFlight)
	if err := vk.Error(vk.AllocateCommandBuffers(c.device, &allocInfo, buffers)); err != nil {
		return err
	}
	c.commandBuffers = buffers

	return nil
}

func (c *Core) createSyncObjects() error {
	semaphoreInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	fenceInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
		Flags: vk.FenceCreateFlags(vk.FenceCreateSignaledBit),
	}

	for i := 0; i < maxFramesInFlight; i++ {
		var imageAvailable vk.Semaphore
		if err := vk.Error(vk.CreateSemaphore(c.device, &semaphoreInfo, nil, &imageAvailable)); err != nil {
			return err
		}
		c.imageAvailableSems = append(c.imageAvailableSems, imageAvailable)

		var renderFinished vk.Semaphore
		if err := vk.Error(vk.CreateSemaphore(c.device, &semaphoreInfo, nil, &renderFinished)); err != nil {
			return err
		}
		c.renderFinishedSems = append(c.renderFinishedSems, renderFinished)

		var fence vk.Fence
		if err := vk.Error(vk.CreateFence(c.device, &fenceInfo, nil, &fence)); err != nil {
			return err
		}
		c.inFlightFences = append(c.inFlightFences, fence)
	}

	return nil
}

// Ready reports whether BuildPipelines has succeeded.
func (c *Core) Ready() bool {
	return c.ready
}

// Run drives the event and frame loop until the window closes.
// transform produces the per-frame MVP matrix from the elapsed time in
// seconds and the framebuffer aspect ratio. While the pipelines are not
// built the window stays open and undrawn.
func (c *Core) Run(transform func(t, aspect float32) mgl32.Mat4) {
	for !c.window.ShouldClose() {
		glfw.PollEvents()

		width, height := c.window.GetFramebufferSize()
		if width == 0 || height == 0 {
			continue
		}
		if !c.ready {
			continue
		}

		mvp := transform(float32(glfw.GetTime()), float32(width)/float32(height))
		if err := c.DrawFrame(mvp); err != nil {
			log.Printf("render: draw frame: %v", err)
		}
	}

	if c.device != vk.Device(vk.NullHandle) {
		vk.DeviceWaitIdle(c.device)
	}
}

// Destroy releases every Vulkan object and the window, in reverse
// creation order. Safe to call on a partially constructed Core.
func (c *Core) Destroy() {
	if c.device != vk.Device(vk.NullHandle) {
		vk.DeviceWaitIdle(c.device)

		for i := range c.inFlightFences {
			vk.DestroyFence(c.device, c.inFlightFences[i], nil)
		}
		for i := range c.renderFinishedSems {
			vk.DestroySemaphore(c.device, c.renderFinishedSems[i], nil)
		}
		for i := range c.imageAvailableSems {
			vk.DestroySemaphore(c.device, c.imageAvailableSems[i], nil)
		}

		if c.commandPool != vk.CommandPool(vk.NullHandle) {
			vk.DestroyCommandPool(c.device, c.commandPool, nil)
		}

		c.destroyPipelines()

		if c.descriptorPool != vk.DescriptorPool(vk.NullHandle) {
			vk.DestroyDescriptorPool(c.device, c.descriptorPool, nil)
		}
		if c.descriptorLayout != vk.DescriptorSetLayout(vk.NullHandle) {
			vk.DestroyDescriptorSetLayout(c.device, c.descriptorLayout, nil)
		}
		for i := range c.uniformBuffers {
			vk.DestroyBuffer(c.device, c.uniformBuffers[i], nil)
			vk.FreeMemory(c.device, c.uniformMemory[i], nil)
		}

		for _, framebuffer := range c.framebuffers {
			vk.DestroyFramebuffer(c.device, framebuffer, nil)
		}
		if c.renderPass != vk.RenderPass(vk.NullHandle) {
			vk.DestroyRenderPass(c.device, c.renderPass, nil)
		}
		for _, view := range c.swapchainViews {
			vk.DestroyImageView(c.device, view, nil)
		}
		if c.swapchain != vk.NullSwapchain {
			vk.DestroySwapchain(c.device, c.swapchain, nil)
		}

		vk.DestroyDevice(c.device, nil)
		c.device = vk.Device(vk.NullHandle)
	}

	if c.surface != vk.NullSurface {
		vk.DestroySurface(c.instance, c.surface, nil)
		c.surface = vk.NullSurface
	}
	if c.instance != nil {
		vk.DestroyInstance(c.instance, nil)
		c.instance = nil
	}

	if c.window != nil {
		c.window.Destroy()
		c.window = nil
	}
	glfw.Terminate()
}
