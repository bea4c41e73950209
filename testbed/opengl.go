package testbed

import (
	_ "embed"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/prism/engine"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/opengl"
)

var (
	//go:embed shaders/quad.vert
	glVertexSource string
	//go:embed shaders/quad.frag
	glFragmentSource string
)

// GLTestbed draws the same quad through the OpenGL renderer.
type GLTestbed struct {
	cfg   *core.Config
	r     *opengl.Renderer
	world *world

	program  *opengl.Program
	vertices *opengl.Buffer
	indices  *opengl.Buffer
	vao      *opengl.VertexArray
	texture  *opengl.Texture
}

var _ engine.OpenGLApplication = (*GLTestbed)(nil)

func NewGL(cfg *core.Config) *GLTestbed {
	return &GLTestbed{cfg: cfg}
}

func (t *GLTestbed) Init(r *opengl.Renderer) error {
	t.r = r
	w, err := newWorld()
	if err != nil {
		return err
	}
	t.world = w
	return nil
}

func (t *GLTestbed) Load() error {
	var err error
	if t.program, err = t.r.CreateProgram(glVertexSource, glFragmentSource); err != nil {
		return err
	}
	t.vertices = t.r.CreateBuffer(gl.ARRAY_BUFFER, gl.STATIC_DRAW, vertexBytes())
	t.indices = t.r.CreateBuffer(gl.ELEMENT_ARRAY_BUFFER, gl.STATIC_DRAW, indexBytes())
	t.vao = t.r.CreateVertexArray(t.vertices, t.indices, vertexStride, []opengl.VertexAttrib{
		{Location: 0, Components: 3, Offset: 0},
		{Location: 1, Components: 2, Offset: 12},
	})
	// GL samples from the bottom row up
	width, height, pixels, err := loadTexture(t.cfg.Assets.TextureDir, true)
	if err != nil {
		return err
	}
	t.texture, err = t.r.CreateTexture(int32(width), int32(height), pixels)
	return err
}

func (t *GLTestbed) DrawFrame(delta float64) error {
	t.world.update(delta)
	t.program.Use()
	t.texture.Bind(0)
	t.program.SetInt("texSampler", 0)
	t.world.each(func(model mgl32.Mat4) {
		ubo := newUniforms(model, t.world.camera.View(), uint32(t.r.Width()), uint32(t.r.Height()), false)
		t.program.SetMat4("model", ubo.Model)
		t.program.SetMat4("view", ubo.View)
		t.program.SetMat4("proj", ubo.Proj)
		t.vao.DrawIndexed(int32(len(quadIndices)))
	})
	return nil
}

func (t *GLTestbed) UnLoad() {
	t.texture.Destroy()
	t.vao.Destroy()
	t.indices.Destroy()
	t.vertices.Destroy()
	t.program.Destroy()
}

func (t *GLTestbed) Exit() {
	if t.world != nil {
		t.world.destroy()
	}
}
