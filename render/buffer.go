package render

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	vk "github.com/goki/vulkan"
)

// uniformSize is the byte size of the per-frame uniform block, a single
// column-major 4x4 float32 matrix.
const uniformSize = 16 * 4

func (c *Core) createBuffer(size vk.DeviceSize, usage vk.BufferUsageFlags, properties vk.MemoryPropertyFlags) (vk.Buffer, vk.DeviceMemory, error) {
	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}

	var buffer vk.Buffer
	if err := vk.Error(vk.CreateBuffer(c.device, &bufferInfo, nil, &buffer)); err != nil {
		return vk.Buffer(vk.NullHandle), vk.DeviceMemory(vk.NullHandle), err
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(c.device, buffer, &requirements)
	requirements.Deref()

	memoryType, err := c.findMemoryType(requirements.MemoryTypeBits, properties)
	if err != nil {
		vk.DestroyBuffer(c.device, buffer, nil)
		return vk.Buffer(vk.NullHandle), vk.DeviceMemory(vk.NullHandle), err
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memoryType,
	}

	var memory vk.DeviceMemory
	if err := vk.Error(vk.AllocateMemory(c.device, &allocInfo, nil, &memory)); err != nil {
		vk.DestroyBuffer(c.device, buffer, nil)
		return vk.Buffer(vk.NullHandle), vk.DeviceMemory(vk.NullHandle), err
	}

	vk.BindBufferMemory(c.device, buffer, memory, 0)
	return buffer, memory, nil
}

func (c *Core) findMemoryType(typeBits uint32, properties vk.MemoryPropertyFlags) (uint32, error) {
	var memProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(c.physicalDevice, &memProperties)
	memProperties.Deref()

	for i := uint32(0); i < memProperties.MemoryTypeCount; i++ {
		memType := memProperties.MemoryTypes[i]
		memType.Deref()
		if typeBits&(1<<i) != 0 && memType.PropertyFlags&properties == properties {
			return i, nil
		}
	}

	return 0, ErrNoMemoryType
}

func (c *Core) createUniformBuffers() error {
	for i := 0; i < maxFramesInFlight; i++ {
		buffer, memory, err := c.createBuffer(
			uniformSize,
			vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit),
			vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit),
		)
		if err != nil {
			return err
		}
		c.uniformBuffers = append(c.uniformBuffers, buffer)
		c.uniformMemory = append(c.uniformMemory, memory)
	}

	return nil
}

func (c *Core) createDescriptorSets() error {
	binding := vk.DescriptorSetLayoutBinding{
		Binding:         0,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit),
	}
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: 1,
		PBindings:    []vk.DescriptorSetLayoutBinding{binding},
	}
	var layout vk.DescriptorSetLayout
	if err := vk.Error(vk.CreateDescriptorSetLayout(c.device, &layoutInfo, nil, &layout)); err != nil {
		return err
	}
	c.descriptorLayout = layout

	poolSize := vk.DescriptorPoolSize{
		Type:            vk.DescriptorTypeUniformBuffer,
		DescriptorCount: maxFramesInFlight,
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		PoolSizeCount: 1,
		PPoolSizes:    []vk.DescriptorPoolSize{poolSize},
		MaxSets:       maxFramesInFlight,
	}
	var pool vk.DescriptorPool
	if err := vk.Error(vk.CreateDescriptorPool(c.device, &poolInfo, nil, &pool)); err != nil {
		return err
	}
	c.descriptorPool = pool

	layouts := make([]vk.DescriptorSetLayout, maxFramesInFlight)
	for i := range layouts {
		layouts[i] = c.descriptorLayout
	}
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     c.descriptorPool,
		DescriptorSetCount: maxFramesInFlight,
		PSetLayouts:        layouts,
	}
	sets := make([]vk.DescriptorSet, maxFramesInFlight)
	if err := vk.Error(vk.AllocateDescriptorSets(c.device, &allocInfo, &sets[0])); err != nil {
		return err
	}
	c.descriptorSets = sets

	for i := 0; i < maxFramesInFlight; i++ {
		bufferInfo := vk.DescriptorBufferInfo{
			Buffer: c.uniformBuffers[i],
			Offset: 0,
			Range:  uniformSize,
		}
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          c.descriptorSets[i],
			DstBinding:      0,
			DstArrayElement: 0,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			PBufferInfo:     []vk.DescriptorBufferInfo{bufferInfo},
		}
		vk.UpdateDescriptorSets(c.device, 1, []vk.WriteDescriptorSet{write}, 0, nil)
	}

	return nil
}

func (c *Core) updateUniform(frame uint32, mvp mgl32.Mat4) error {
	var data unsafe.Pointer
	err := vk.Error(vk.MapMemory(c.device, c.uniformMemory[frame], 0, uniformSize, 0, &data))
	if err != nil {
		return err
	}

	dst := unsafe.Slice((*byte)(data), uniformSize)
	copy(dst, matrixBytes(mvp))

	vk.UnmapMemory(c.device, c.uniformMemory[frame])
	return nil
}

// matrixBytes serializes a column-major matrix into little-endian
// float32 words, the layout uniform blocks expect.
func matrixBytes(m mgl32.Mat4) []byte {
	buf := make([]byte, uniformSize)
	for i, v := range m {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
