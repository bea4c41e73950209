package testbed

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/spaghettifunk/prism/engine/core"
)

// 89 degrees
const pitchLimit = float32(1.55334306)

/**
 * @brief A free look camera. The view matrix is rebuilt lazily the
 * first time it is read after a move or a rotation.
 */
type Camera struct {
	position mgl32.Vec3
	// pitch, yaw, roll
	rotation mgl32.Vec3
	dirty    bool
	view     mgl32.Mat4
}

func NewCamera(position mgl32.Vec3) *Camera {
	c := &Camera{}
	c.Reset()
	c.SetPosition(position)
	return c
}

func (c *Camera) Reset() {
	c.position = mgl32.Vec3{}
	c.rotation = mgl32.Vec3{}
	c.dirty = false
	c.view = mgl32.Ident4()
}

func (c *Camera) Position() mgl32.Vec3 { return c.position }

func (c *Camera) SetPosition(p mgl32.Vec3) {
	c.position = p
	c.dirty = true
}

func (c *Camera) Rotation() mgl32.Vec3 { return c.rotation }

func (c *Camera) SetRotation(r mgl32.Vec3) {
	c.rotation = r
	c.dirty = true
}

func (c *Camera) transform() mgl32.Mat4 {
	rotation := mgl32.HomogRotate3DY(c.rotation.Y()).
		Mul4(mgl32.HomogRotate3DX(c.rotation.X())).
		Mul4(mgl32.HomogRotate3DZ(c.rotation.Z()))
	return mgl32.Translate3D(c.position.X(), c.position.Y(), c.position.Z()).Mul4(rotation)
}

func (c *Camera) View() mgl32.Mat4 {
	if c.dirty {
		c.view = c.transform().Inv()
		c.dirty = false
	}
	return c.view
}

func (c *Camera) Forward() mgl32.Vec3 {
	return c.transform().Mul4x1(mgl32.Vec4{0, 0, -1, 0}).Vec3().Normalize()
}

func (c *Camera) Right() mgl32.Vec3 {
	return c.transform().Mul4x1(mgl32.Vec4{1, 0, 0, 0}).Vec3().Normalize()
}

func (c *Camera) move(direction mgl32.Vec3, amount float32) {
	c.position = c.position.Add(direction.Mul(amount))
	c.dirty = true
}

func (c *Camera) MoveForward(amount float32)  { c.move(c.Forward(), amount) }
func (c *Camera) MoveBackward(amount float32) { c.move(c.Forward(), -amount) }
func (c *Camera) MoveRight(amount float32)    { c.move(c.Right(), amount) }
func (c *Camera) MoveLeft(amount float32)     { c.move(c.Right(), -amount) }
func (c *Camera) MoveUp(amount float32)       { c.move(mgl32.Vec3{0, 1, 0}, amount) }
func (c *Camera) MoveDown(amount float32)     { c.move(mgl32.Vec3{0, 1, 0}, -amount) }

func (c *Camera) Yaw(amount float32) {
	c.rotation[1] += amount
	c.dirty = true
}

func (c *Camera) Pitch(amount float32) {
	// clamped to avoid gimbal lock
	c.rotation[0] = mgl32.Clamp(c.rotation[0]+amount, -pitchLimit, pitchLimit)
	c.dirty = true
}

const (
	cameraSpeed = 2.0
	cameraTurn  = 1.5
)

// drive applies the keyboard state: WASD to move, QE for height, arrows to look.
func (c *Camera) drive(delta float64) {
	step := float32(cameraSpeed * delta)
	turn := float32(cameraTurn * delta)
	for _, b := range []struct {
		key core.KeyCode
		fn  func()
	}{
		{core.KEY_W, func() { c.MoveForward(step) }},
		{core.KEY_S, func() { c.MoveBackward(step) }},
		{core.KEY_A, func() { c.MoveLeft(step) }},
		{core.KEY_D, func() { c.MoveRight(step) }},
		{core.KEY_E, func() { c.MoveUp(step) }},
		{core.KEY_Q, func() { c.MoveDown(step) }},
		{core.KEY_LEFT, func() { c.Yaw(turn) }},
		{core.KEY_RIGHT, func() { c.Yaw(-turn) }},
		{core.KEY_UP, func() { c.Pitch(turn) }},
		{core.KEY_DOWN, func() { c.Pitch(-turn) }},
	} {
		if core.InputIsKeyDown(b.key) {
			b.fn()
		}
	}
}
