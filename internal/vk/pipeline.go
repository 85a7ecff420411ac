package vk

import (
	_ "embed"
	"fmt"
	"unsafe"

	vkc "github.com/vulkan-go/vulkan"

	"github.com/dantero/vkvoxel/internal/voxpos"
)

// Precompiled SPIR-V for the chunk vertex/fragment stage pair. The GLSL
// sources live alongside these for reference; regenerate with
// `glslc chunk.vert -o chunk.vert.spv` (and chunk.frag) after editing them.
//
//go:embed shaders/chunk.vert.spv
var chunkVertSPV []byte

//go:embed shaders/chunk.frag.spv
var chunkFragSPV []byte

// vertexStride is the byte size of one mesh vertex: a single packed
// uint32 (internal/meshing.VertexStride words).
const vertexStride = 4

// Pipeline wraps a graphics pipeline plus its layout, translated from
// original_source's src/render/pipeline.rs. The vertex input matches the
// mesher's packed-uint32 vertex, and the push-constant range matches
// voxpos.ChunkPos.AsBytes's 24-byte layout.
type Pipeline struct {
	device     vkc.Device
	handle     vkc.Pipeline
	layout     vkc.PipelineLayout
	renderPass *RenderPass
}

// NewPipeline builds the graphics pipeline targeting renderPass and
// swapchain's extent, with descriptorLayout bound at set 0 for the
// per-frame camera uniform.
func NewPipeline(device *Device, swapchain *Swapchain, renderPass *RenderPass, descriptorLayout vkc.DescriptorSetLayout) (*Pipeline, error) {
	vertModule, err := newShaderModule(device.Handle(), chunkVertSPV)
	if err != nil {
		return nil, fmt.Errorf("vertex shader module: %w", err)
	}
	defer vkc.DestroyShaderModule(device.Handle(), vertModule, nil)

	fragModule, err := newShaderModule(device.Handle(), chunkFragSPV)
	if err != nil {
		return nil, fmt.Errorf("fragment shader module: %w", err)
	}
	defer vkc.DestroyShaderModule(device.Handle(), fragModule, nil)

	stages := []vkc.PipelineShaderStageCreateInfo{
		{
			SType:  vkc.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vkc.ShaderStageVertexBit,
			Module: vertModule,
			PName:  "main\x00",
		},
		{
			SType:  vkc.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vkc.ShaderStageFragmentBit,
			Module: fragModule,
			PName:  "main\x00",
		},
	}

	vertexBinding := vkc.VertexInputBindingDescription{
		Binding:   0,
		Stride:    vertexStride,
		InputRate: vkc.VertexInputRateVertex,
	}
	vertexAttribute := vkc.VertexInputAttributeDescription{
		Location: 0,
		Binding:  0,
		Format:   vkc.FormatR32Uint,
		Offset:   0,
	}
	vertexInput := vkc.PipelineVertexInputStateCreateInfo{
		SType:                           vkc.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   1,
		PVertexBindingDescriptions:      []vkc.VertexInputBindingDescription{vertexBinding},
		VertexAttributeDescriptionCount: 1,
		PVertexAttributeDescriptions:    []vkc.VertexInputAttributeDescription{vertexAttribute},
	}

	inputAssembly := vkc.PipelineInputAssemblyStateCreateInfo{
		SType:    vkc.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: vkc.PrimitiveTopologyTriangleList,
	}

	viewport := vkc.Viewport{
		X: 0, Y: 0,
		Width: float32(swapchain.Extent.Width), Height: float32(swapchain.Extent.Height),
		MinDepth: 0, MaxDepth: 1,
	}
	scissor := vkc.Rect2D{Offset: vkc.Offset2D{X: 0, Y: 0}, Extent: swapchain.Extent}
	viewportState := vkc.PipelineViewportStateCreateInfo{
		SType:         vkc.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports:    []vkc.Viewport{viewport},
		ScissorCount:  1,
		PScissors:     []vkc.Rect2D{scissor},
	}

	rasterization := vkc.PipelineRasterizationStateCreateInfo{
		SType:       vkc.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vkc.PolygonModeFill,
		CullMode:    vkc.CullModeFlags(vkc.CullModeBackBit),
		FrontFace:   vkc.FrontFaceClockwise,
		LineWidth:   1.0,
	}

	multisample := vkc.PipelineMultisampleStateCreateInfo{
		SType:                vkc.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vkc.SampleCount1Bit,
		MinSampleShading:     1.0,
	}

	colorBlendAttachment := vkc.PipelineColorBlendAttachmentState{
		ColorWriteMask: vkc.ColorComponentFlags(vkc.ColorComponentRBit) | vkc.ColorComponentFlags(vkc.ColorComponentGBit) |
			vkc.ColorComponentFlags(vkc.ColorComponentBBit) | vkc.ColorComponentFlags(vkc.ColorComponentABit),
		BlendEnable: vkc.False,
	}
	colorBlend := vkc.PipelineColorBlendStateCreateInfo{
		SType:           vkc.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: 1,
		PAttachments:    []vkc.PipelineColorBlendAttachmentState{colorBlendAttachment},
	}

	var depthStencil *vkc.PipelineDepthStencilStateCreateInfo
	if renderPass.HasDepth() {
		depthStencil = &vkc.PipelineDepthStencilStateCreateInfo{
			SType:            vkc.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:  vkc.True,
			DepthWriteEnable: vkc.True,
			DepthCompareOp:   vkc.CompareOpLess,
		}
	}

	pushConstant := vkc.PushConstantRange{
		StageFlags: vkc.ShaderStageFlags(vkc.ShaderStageVertexBit),
		Offset:     0,
		Size:       uint32(unsafe.Sizeof(voxpos.ChunkPos{}.AsBytes())),
	}
	layoutInfo := vkc.PipelineLayoutCreateInfo{
		SType:                  vkc.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         1,
		PSetLayouts:            []vkc.DescriptorSetLayout{descriptorLayout},
		PushConstantRangeCount: 1,
		PPushConstantRanges:    []vkc.PushConstantRange{pushConstant},
	}
	var layout vkc.PipelineLayout
	if result := vkc.CreatePipelineLayout(device.Handle(), &layoutInfo, nil, &layout); result != vkc.Success {
		return nil, fmt.Errorf("pipeline layout creation failed: %v", result)
	}

	pipelineInfo := vkc.GraphicsPipelineCreateInfo{
		SType:               vkc.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInput,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterization,
		PMultisampleState:   &multisample,
		PDepthStencilState:  depthStencil,
		PColorBlendState:    &colorBlend,
		Layout:              layout,
		RenderPass:          renderPass.Handle(),
		Subpass:             0,
	}

	pipelines := make([]vkc.Pipeline, 1)
	if result := vkc.CreateGraphicsPipelines(device.Handle(), nil, 1, []vkc.GraphicsPipelineCreateInfo{pipelineInfo}, nil, pipelines); result != vkc.Success {
		vkc.DestroyPipelineLayout(device.Handle(), layout, nil)
		return nil, fmt.Errorf("graphics pipeline creation failed: %v", result)
	}

	return &Pipeline{device: device.Handle(), handle: pipelines[0], layout: layout, renderPass: renderPass}, nil
}

func newShaderModule(device vkc.Device, code []byte) (vkc.ShaderModule, error) {
	words := unsafe.Slice((*uint32)(unsafe.Pointer(&code[0])), len(code)/4)
	info := vkc.ShaderModuleCreateInfo{
		SType:    vkc.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    words,
	}
	var module vkc.ShaderModule
	if result := vkc.CreateShaderModule(device, &info, nil, &module); result != vkc.Success {
		return nil, fmt.Errorf("shader module creation failed: %v", result)
	}
	return module, nil
}

// Handle returns the raw vk.Pipeline.
func (p *Pipeline) Handle() vkc.Pipeline { return p.handle }

// Layout returns the raw vk.PipelineLayout, for binding descriptor sets
// and pushing the chunk-position constant.
func (p *Pipeline) Layout() vkc.PipelineLayout { return p.layout }

// Destroy releases the pipeline and its layout (not the render pass,
// which it does not own).
func (p *Pipeline) Destroy() {
	vkc.DestroyPipeline(p.device, p.handle, nil)
	vkc.DestroyPipelineLayout(p.device, p.layout, nil)
}
