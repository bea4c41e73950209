// Package testbed is the reference application: a textured quad spinning in
// front of the camera, driven by a small entity registry.
package testbed

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/ecs"
)

// Transform places an entity in the world.
type Transform struct {
	Position mgl32.Vec3
	Angle    float32
	Scale    float32
}

func (t *Transform) Model() mgl32.Mat4 {
	return mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z()).
		Mul4(mgl32.HomogRotate3DZ(t.Angle)).
		Mul4(mgl32.Scale3D(t.Scale, t.Scale, t.Scale))
}

// Spin turns a transform around Z at a fixed rate.
type Spin struct {
	// radians per second
	Speed  float32
	Target *Transform
}

func (s *Spin) Update(delta float64) {
	if s.Target == nil {
		return
	}
	s.Target.Angle = float32(math.Mod(float64(s.Target.Angle)+float64(s.Speed)*delta, 2*math.Pi))
}

var componentTypes = ecs.NewTypeRegistry()

func init() {
	ecs.Register[Transform](componentTypes)
	ecs.Register[Spin](componentTypes)
}

type world struct {
	registry *ecs.Registry
	camera   *Camera
	quad     ecs.EntityID
}

func newWorld() (*world, error) {
	w := &world{
		registry: ecs.NewRegistry(componentTypes),
		camera:   NewCamera(mgl32.Vec3{0, 0, 2.5}),
	}
	w.quad = w.registry.CreateEntity()
	t, err := ecs.AddComponent[Transform](w.registry, w.quad)
	if err != nil {
		return nil, err
	}
	t.Scale = 1
	s, err := ecs.AddComponent[Spin](w.registry, w.quad)
	if err != nil {
		return nil, err
	}
	s.Speed = mgl32.DegToRad(90)
	s.Target = t
	return w, nil
}

func (w *world) update(delta float64) {
	w.camera.drive(delta)
	w.registry.Update(delta)
}

// each calls fn with the model matrix of every transform in the world.
func (w *world) each(fn func(model mgl32.Mat4)) {
	for _, t := range ecs.Pool[Transform](w.registry) {
		fn(t.Model())
	}
}

// quadModel is the model matrix of the quad, the only entity the recorded
// command buffers draw.
func (w *world) quadModel() mgl32.Mat4 {
	t, ok := ecs.GetComponent[Transform](w.registry, w.quad)
	if !ok {
		return mgl32.Ident4()
	}
	return t.Model()
}

func (w *world) destroy() {
	if err := w.registry.DestroyEntity(w.quad); err != nil {
		core.LogWarn("testbed world: %s", err)
	}
}

// uniformBufferObject matches the std140 block of the quad shaders.
type uniformBufferObject struct {
	Model mgl32.Mat4
	View  mgl32.Mat4
	Proj  mgl32.Mat4
}

const uniformSize = 3 * 16 * 4

func (u uniformBufferObject) bytes() []byte {
	b, _ := binary.Append(make([]byte, 0, uniformSize), binary.LittleEndian, u)
	return b
}

// newUniforms builds the matrices for the given framebuffer size. flipY
// converts to the Vulkan clip space, where Y points down.
func newUniforms(model, view mgl32.Mat4, width, height uint32, flipY bool) uniformBufferObject {
	aspect := float32(1)
	if height > 0 {
		aspect = float32(width) / float32(height)
	}
	proj := mgl32.Perspective(mgl32.DegToRad(45), aspect, 0.1, 10)
	if flipY {
		proj[5] *= -1
	}
	return uniformBufferObject{
		Model: model,
		View:  view,
		Proj:  proj,
	}
}

type vertex struct {
	Pos [3]float32
	UV  [2]float32
}

const vertexStride = 5 * 4

var quadVertices = []vertex{
	{Pos: [3]float32{-0.5, -0.5, 0}, UV: [2]float32{0, 0}},
	{Pos: [3]float32{0.5, -0.5, 0}, UV: [2]float32{1, 0}},
	{Pos: [3]float32{0.5, 0.5, 0}, UV: [2]float32{1, 1}},
	{Pos: [3]float32{-0.5, 0.5, 0}, UV: [2]float32{0, 1}},
}

var quadIndices = []uint32{0, 1, 2, 2, 3, 0}

func vertexBytes() []byte {
	b, _ := binary.Append(nil, binary.LittleEndian, quadVertices)
	return b
}

func indexBytes() []byte {
	b, _ := binary.Append(nil, binary.LittleEndian, quadIndices)
	return b
}

const textureName = "quad.png"

// loadTexture reads the quad texture from dir, falling back to a generated
// checkerboard when the file does not exist.
func loadTexture(dir string, flipY bool) (width, height uint32, rgba []byte, err error) {
	path := filepath.Join(dir, textureName)
	if _, statErr := os.Stat(path); statErr == nil {
		tex, err := assets.LoadTexture(path, flipY)
		if err != nil {
			return 0, 0, nil, err
		}
		return tex.Width, tex.Height, tex.Pixels, nil
	}
	core.LogDebug("texture `%s` not found, using a checkerboard", path)
	w, h, px := checkerboard(64, 8)
	return w, h, px, nil
}

func checkerboard(size, cell uint32) (uint32, uint32, []byte) {
	px := make([]byte, 0, size*size*4)
	for y := uint32(0); y < size; y++ {
		for x := uint32(0); x < size; x++ {
			if (x/cell+y/cell)%2 == 0 {
				px = append(px, 0xff, 0xff, 0xff, 0xff)
			} else {
				px = append(px, 0x30, 0x30, 0x80, 0xff)
			}
		}
	}
	return size, size, px
}
