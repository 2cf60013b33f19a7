package render

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

func (c *Core) createRenderPass() error {
	colorAttachment := vk.AttachmentDescription{
		Format:         c.swapchainFormat,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutPresentSrc,
	}

	colorRef := vk.AttachmentReference{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    []vk.AttachmentReference{colorRef},
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}

	createInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vk.AttachmentDescription{colorAttachment},
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var renderPass vk.RenderPass
	if err := vk.Error(vk.CreateRenderPass(c.device, &createInfo, nil, &renderPass)); err != nil {
		return err
	}
	c.renderPass = renderPass

	return nil
}

// BuildPipelines builds the solid and wireframe graphics pipelines from
// the given SPIR-V words and marks the Core ready to draw vertexCount
// vertices. vertEntry and fragEntry are the entry-point names as they
// appear in the compiled code; the WGSL toolchain keeps the source
// names, so these are the names the entry points were declared with.
// May be called again to replace previously built pipelines.
func (c *Core) BuildPipelines(vert, frag []uint32, vertEntry, fragEntry string, vertexCount uint32) error {
	c.ready = false
	c.destroyPipelines()

	vertModule, err := c.createShaderModule(vert)
	if err != nil {
		return fmt.Errorf("render: vertex shader module: %w", err)
	}
	defer vk.DestroyShaderModule(c.device, vertModule, nil)

	fragModule, err := c.createShaderModule(frag)
	if err != nil {
		return fmt.Errorf("render: fragment shader module: %w", err)
	}
	defer vk.DestroyShaderModule(c.device, fragModule, nil)

	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{c.descriptorLayout},
	}
	var layout vk.PipelineLayout
	if err := vk.Error(vk.CreatePipelineLayout(c.device, &layoutInfo, nil, &layout)); err != nil {
		return fmt.Errorf("render: pipeline layout: %w", err)
	}
	c.pipelineLayout = layout

	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: vertModule,
			PName:  stageEntryName(vertEntry),
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: fragModule,
			PName:  stageEntryName(fragEntry),
		},
	}

	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: vk.PrimitiveTopologyTriangleList,
	}

	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	multisampling := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
	}

	colorBlendAttachment := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: vk.ColorComponentFlags(
			vk.ColorComponentRBit | vk.ColorComponentGBit |
				vk.ColorComponentBBit | vk.ColorComponentABit),
		BlendEnable: vk.False,
	}

	colorBlending := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{colorBlendAttachment},
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	// The two pipelines differ only in polygon mode.
	rasterizer := func(mode vk.PolygonMode) vk.PipelineRasterizationStateCreateInfo {
		return vk.PipelineRasterizationStateCreateInfo{
			SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: mode,
			LineWidth:   1.0,
			CullMode:    vk.CullModeFlags(vk.CullModeBackBit),
			FrontFace:   vk.FrontFaceCounterClockwise,
		}
	}

	pipelineInfo := func(mode vk.PolygonMode) vk.GraphicsPipelineCreateInfo {
		rasterization := rasterizer(mode)
		return vk.GraphicsPipelineCreateInfo{
			SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
			StageCount:          uint32(len(stages)),
			PStages:             stages,
			PVertexInputState:   &vertexInput,
			PInputAssemblyState: &inputAssembly,
			PViewportState:      &viewportState,
			PRasterizationState: &rasterization,
			PMultisampleState:   &multisampling,
			PColorBlendState:    &colorBlending,
			PDynamicState:       &dynamicState,
			Layout:              c.pipelineLayout,
			RenderPass:          c.renderPass,
			Subpass:             0,
		}
	}

	infos := []vk.GraphicsPipelineCreateInfo{
		pipelineInfo(vk.PolygonModeFill),
		pipelineInfo(vk.PolygonModeLine),
	}

	pipelines := make([]vk.Pipeline, len(infos))
	err = vk.Error(vk.CreateGraphicsPipelines(
		c.device, vk.PipelineCache(vk.NullHandle), uint32(len(infos)), infos, nil, pipelines))
	if err != nil {
		return fmt.Errorf("render: graphics pipelines: %w", err)
	}
	c.solidPipeline = pipelines[0]
	c.wireframePipeline = pipelines[1]

	c.vertexCount = vertexCount
	c.ready = true
	return nil
}

// stageEntryName null-terminates an entry-point name for the C API.
func stageEntryName(name string) string {
	return name + "\x00"
}

func (c *Core) createShaderModule(words []uint32) (vk.ShaderModule, error) {
	if len(words) == 0 {
		return vk.ShaderModule(vk.NullHandle), ErrNotReady
	}

	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(words) * 4),
		PCode:    words,
	}

	var module vk.ShaderModule
	if err := vk.Error(vk.CreateShaderModule(c.device, &createInfo, nil, &module)); err != nil {
		return vk.ShaderModule(vk.NullHandle), err
	}
	return module, nil
}

func (c *Core) destroyPipelines() {
	if c.solidPipeline != vk.Pipeline(vk.NullHandle) {
		vk.DestroyPipeline(c.device, c.solidPipeline, nil)
		c.solidPipeline = vk.Pipeline(vk.NullHandle)
	}
	if c.wireframePipeline != vk.Pipeline(vk.NullHandle) {
		vk.DestroyPipeline(c.device, c.wireframePipeline, nil)
		c.wireframePipeline = vk.Pipeline(vk.NullHandle)
	}
	if c.pipelineLayout != vk.PipelineLayout(vk.NullHandle) {
		vk.DestroyPipelineLayout(c.device, c.pipelineLayout, nil)
		c.pipelineLayout = vk.PipelineLayout(vk.NullHandle)
	}
}
