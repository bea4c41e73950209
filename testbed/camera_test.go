package testbed

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestCameraViewMatchesLookAt(t *testing.T) {
	c := NewCamera(mgl32.Vec3{0, 0, 2.5})
	want := mgl32.LookAtV(mgl32.Vec3{0, 0, 2.5}, mgl32.Vec3{}, mgl32.Vec3{0, 1, 0})
	if got := c.View(); !got.ApproxEqualThreshold(want, 1e-5) {
		t.Errorf("view = %v, want %v", got, want)
	}
}

func TestCameraMoves(t *testing.T) {
	c := NewCamera(mgl32.Vec3{0, 0, 2.5})
	c.MoveForward(1)
	if got := c.Position(); !got.ApproxEqualThreshold(mgl32.Vec3{0, 0, 1.5}, 1e-5) {
		t.Errorf("after forward: %v", got)
	}
	c.MoveRight(2)
	c.MoveUp(1)
	if got := c.Position(); !got.ApproxEqualThreshold(mgl32.Vec3{2, 1, 1.5}, 1e-5) {
		t.Errorf("after right and up: %v", got)
	}

	// a quarter turn to the left faces -X
	c.Yaw(mgl32.DegToRad(90))
	if got := c.Forward(); !got.ApproxEqualThreshold(mgl32.Vec3{-1, 0, 0}, 1e-5) {
		t.Errorf("forward after yaw = %v", got)
	}
}

func TestCameraPitchClamped(t *testing.T) {
	c := NewCamera(mgl32.Vec3{})
	c.Pitch(10)
	if got := c.Rotation().X(); got != pitchLimit {
		t.Errorf("pitch = %f, want %f", got, pitchLimit)
	}
	c.Pitch(-20)
	if got := c.Rotation().X(); got != -pitchLimit {
		t.Errorf("pitch = %f, want %f", got, -pitchLimit)
	}
}

func TestCameraViewCachedUntilMoved(t *testing.T) {
	c := NewCamera(mgl32.Vec3{1, 2, 3})
	v := c.View()
	if c.dirty {
		t.Fatal("view read left the camera dirty")
	}
	c.MoveLeft(1)
	if !c.dirty {
		t.Fatal("move did not mark the camera dirty")
	}
	if c.View() == v {
		t.Error("view not rebuilt after a move")
	}
}
