package engine

import (
	"github.com/spaghettifunk/prism/engine/renderer"
	"github.com/spaghettifunk/prism/engine/renderer/opengl"
)

// Lifecycle is what every application implements, whatever the backend.
type Lifecycle interface {
	// Load creates the GPU objects the application draws with. It runs again
	// after UnLoad whenever shaders change on disk or the render pass is rebuilt.
	Load() error
	// UnLoad destroys what Load created. The device is idle when it is called.
	UnLoad()
	// Exit runs once, after the final UnLoad and before the renderer shuts down.
	Exit()
	// DrawFrame is called once per loop iteration with the seconds elapsed
	// since the previous one.
	DrawFrame(delta float64) error
}

type VulkanApplication interface {
	Lifecycle
	Init(r *renderer.Renderer) error
	// RecordCommandBuffers records every per-image command buffer. It is
	// called after Load and after each swapchain recreation.
	RecordCommandBuffers() error
}

type OpenGLApplication interface {
	Lifecycle
	Init(r *opengl.Renderer) error
}

// PipelineStages splits pipeline setup out of Load. When an application
// implements it, the stages run in declaration order right after Load.
type PipelineStages interface {
	CreateDescriptorSetLayout() error
	CreatePipeline() error
	CreateDescriptorPool() error
	CreateDescriptorSets() error
}

func runPipelineStages(app any) error {
	stages, ok := app.(PipelineStages)
	if !ok {
		return nil
	}
	for _, stage := range []func() error{
		stages.CreateDescriptorSetLayout,
		stages.CreatePipeline,
		stages.CreateDescriptorPool,
		stages.CreateDescriptorSets,
	} {
		if err := stage(); err != nil {
			return err
		}
	}
	return nil
}
