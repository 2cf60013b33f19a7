package render

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"
)

// DrawFrame records and submits one frame: the cube is drawn twice,
// first with the solid pipeline and then with the wireframe pipeline on
// top. Returns ErrNotReady until BuildPipelines has succeeded.
func (c *Core) DrawFrame(mvp mgl32.Mat4) error {
	if !c.ready {
		return ErrNotReady
	}

	frame := c.currentFrame
	fences := []vk.Fence{c.inFlightFences[frame]}
	vk.WaitForFences(c.device, 1, fences, vk.True, vk.MaxUint64)

	var imageIndex uint32
	res := vk.AcquireNextImage(c.device, c.swapchain, vk.MaxUint64,
		c.imageAvailableSems[frame], vk.Fence(vk.NullHandle), &imageIndex)
	if res == vk.ErrorOutOfDate {
		// No usable image this frame. The window is fixed size, so the
		// next acquire is expected to recover.
		return nil
	}
	if !swapchainUsable(res) {
		return fmt.Errorf("render: acquire image: %w", vk.Error(res))
	}

	if err := c.updateUniform(frame, mvp); err != nil {
		return fmt.Errorf("render: update uniform: %w", err)
	}

	vk.ResetFences(c.device, 1, fences)

	commandBuffer := c.commandBuffers[frame]
	vk.ResetCommandBuffer(commandBuffer, 0)
	if err := c.recordCommands(commandBuffer, imageIndex, frame); err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   1,
		PWaitSemaphores:      []vk.Semaphore{c.imageAvailableSems[frame]},
		PWaitDstStageMask:    []vk.PipelineStageFlags{vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{commandBuffer},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{c.renderFinishedSems[frame]},
	}
	err := vk.Error(vk.QueueSubmit(c.graphicsQueue, 1, []vk.SubmitInfo{submitInfo}, c.inFlightFences[frame]))
	if err != nil {
		return fmt.Errorf("render: queue submit: %w", err)
	}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{c.renderFinishedSems[frame]},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{c.swapchain},
		PImageIndices:      []uint32{imageIndex},
	}
	res = vk.QueuePresent(c.presentQueue, &presentInfo)
	if !swapchainUsable(res) {
		return fmt.Errorf("render: queue present: %w", vk.Error(res))
	}

	c.currentFrame = (c.currentFrame + 1) % maxFramesInFlight
	return nil
}

// swapchainUsable reports whether an acquire or present result lets
// rendering continue. Suboptimal and out-of-date swapchains are
// tolerated since the window cannot resize.
func swapchainUsable(res vk.Result) bool {
	return res == vk.Success || res == vk.Suboptimal || res == vk.ErrorOutOfDate
}

func (c *Core) recordCommands(commandBuffer vk.CommandBuffer, imageIndex, frame uint32) error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if err := vk.Error(vk.BeginCommandBuffer(commandBuffer, &beginInfo)); err != nil {
		return fmt.Errorf("render: begin command buffer: %w", err)
	}

	clearValues := []vk.ClearValue{
		vk.NewClearValue([]float32{1.0, 1.0, 1.0, 1.0}),
	}
	renderPassInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  c.renderPass,
		Framebuffer: c.framebuffers[imageIndex],
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{},
			Extent: c.swapchainExtent,
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(commandBuffer, &renderPassInfo, vk.SubpassContentsInline)

	viewport := vk.Viewport{
		Width:    float32(c.swapchainExtent.Width),
		Height:   float32(c.swapchainExtent.Height),
		MaxDepth: 1.0,
	}
	vk.CmdSetViewport(commandBuffer, 0, 1, []vk.Viewport{viewport})

	scissor := vk.Rect2D{Extent: c.swapchainExtent}
	vk.CmdSetScissor(commandBuffer, 0, 1, []vk.Rect2D{scissor})

	vk.CmdBindDescriptorSets(commandBuffer, vk.PipelineBindPointGraphics,
		c.pipelineLayout, 0, 1, []vk.DescriptorSet{c.descriptorSets[frame]}, 0, nil)

	vk.CmdBindPipeline(commandBuffer, vk.PipelineBindPointGraphics, c.solidPipeline)
	vk.CmdDraw(commandBuffer, c.vertexCount, 1, 0, 0)

	vk.CmdBindPipeline(commandBuffer, vk.PipelineBindPointGraphics, c.wireframePipeline)
	vk.CmdDraw(commandBuffer, c.vertexCount, 1, 0, 0)

	vk.CmdEndRenderPass(commandBuffer)

	if err := vk.Error(vk.EndCommandBuffer(commandBuffer)); err != nil {
		return fmt.Errorf("render: end command buffer: %w", err)
	}
	return nil
}
