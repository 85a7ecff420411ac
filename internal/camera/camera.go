// Package camera implements a free-fly first-person camera driven by
// keyboard and mouse input, producing the model/view/projection uniform
// buffer object the chunk shader reads. The movement and mouse-look
// logic is adapted from the teacher's internal/player/camera.go (view-
// bobbing and equipped-item concerns dropped, since this renderer has no
// player model to animate); the UBO shape and Vulkan clip-space Y-flip
// are grounded on original_source's src/camera.rs.
package camera

import (
	"math"
	"sync"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/dantero/vkvoxel/internal/voxpos"
)

const (
	// MouseSensitivity scales raw pixel deltas into degrees of yaw/pitch.
	MouseSensitivity = 0.1
	// MoveSpeed is the fly speed in blocks per second.
	MoveSpeed = 20.0
	// FOV is the vertical field of view, in degrees.
	FOV = 70.0
	// NearPlane and FarPlane bound the view frustum.
	NearPlane = 0.1
	FarPlane  = 1000.0

	maxPitch = 89.0
)

// Camera owns a free-fly position and look direction.
type Camera struct {
	mu    sync.Mutex
	pos   voxpos.EntityPos
	flySpeed float32
}

// New builds a Camera starting at pos.
func New(pos voxpos.EntityPos) *Camera {
	return &Camera{pos: pos, flySpeed: MoveSpeed}
}

// Position returns the camera's current world position and look angles.
func (c *Camera) Position() voxpos.EntityPos {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos
}

// Teleport overwrites the camera's position and look angles outright,
// bypassing the usual input-driven movement. Used by the headless bench
// fly-through, which drives the camera along a fixed path instead of
// reading Inputs.
func (c *Camera) Teleport(pos voxpos.EntityPos) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pos = pos
}

// Update advances the camera by dt seconds of keyboard movement and
// whatever mouse delta Inputs accumulated since the last call. Call once
// per frame before building the frame's UBO.
func (c *Camera) Update(dt float32, in *Inputs) {
	dx, dy := in.FetchMouseDelta()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.pos.Yaw += float32(dx) * MouseSensitivity
	c.pos.Pitch += float32(dy) * MouseSensitivity
	if c.pos.Pitch > maxPitch {
		c.pos.Pitch = maxPitch
	}
	if c.pos.Pitch < -maxPitch {
		c.pos.Pitch = -maxPitch
	}

	front := frontVector(c.pos.Yaw, c.pos.Pitch)
	right := front.Cross(mgl32.Vec3{0, 1, 0}).Normalize()

	var move mgl32.Vec3
	if in.IsKeyPressed(glfw.KeyW) {
		move = move.Add(front)
	}
	if in.IsKeyPressed(glfw.KeyS) {
		move = move.Sub(front)
	}
	if in.IsKeyPressed(glfw.KeyD) {
		move = move.Add(right)
	}
	if in.IsKeyPressed(glfw.KeyA) {
		move = move.Sub(right)
	}
	if in.IsKeyPressed(glfw.KeySpace) {
		move = move.Add(mgl32.Vec3{0, 1, 0})
	}
	if in.IsKeyPressed(glfw.KeyLeftShift) {
		move = move.Sub(mgl32.Vec3{0, 1, 0})
	}
	if move.LenSqr() > 0 {
		move = move.Normalize().Mul(c.flySpeed * dt)
		c.pos.X += move.X()
		c.pos.Y += move.Y()
		c.pos.Z += move.Z()
	}
}

// frontVector converts yaw/pitch in degrees into a normalized look
// direction, matching the teacher's GetFrontVector.
func frontVector(yaw, pitch float32) mgl32.Vec3 {
	yawRad := mgl32.DegToRad(yaw)
	pitchRad := mgl32.DegToRad(pitch)
	return mgl32.Vec3{
		float32(math.Cos(float64(yawRad)) * math.Cos(float64(pitchRad))),
		float32(math.Sin(float64(pitchRad))),
		float32(math.Sin(float64(yawRad)) * math.Cos(float64(pitchRad))),
	}.Normalize()
}

// UniformBufferObject is the per-frame camera transform the chunk
// vertex shader reads, matching original_source's camera.rs
// UniformBufferObject shape (model/view/proj, repr(C)).
type UniformBufferObject struct {
	Model mgl32.Mat4
	View  mgl32.Mat4
	Proj  mgl32.Mat4
}

// Bytes reinterprets the UBO's three column-major mat4s as a flat byte
// slice suitable for uniformring.Ring.Write, mirroring the
// unsafe.Slice-based reinterpretation internal/meshpipe already uses to
// copy packed vertices into a mapped staging buffer.
func (u UniformBufferObject) Bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&u)), unsafe.Sizeof(u))
}

// UBO builds the frame's uniform buffer object: an identity model
// matrix (chunks are positioned via the push-constant chunk offset, not
// a per-draw model transform), a view matrix from the camera's position
// and look direction, and a perspective projection for the given
// swapchain aspect ratio. proj[1][1] is negated to account for Vulkan's
// clip space having Y pointing down, where OpenGL-derived conventions
// (including mgl32.Perspective) assume Y pointing up.
func (c *Camera) UBO(aspectRatio float32) UniformBufferObject {
	c.mu.Lock()
	pos := c.pos
	c.mu.Unlock()

	eye := mgl32.Vec3{pos.X, pos.Y, pos.Z}
	front := frontVector(pos.Yaw, pos.Pitch)
	target := eye.Add(front)

	view := mgl32.LookAtV(eye, target, mgl32.Vec3{0, 1, 0})
	proj := mgl32.Perspective(mgl32.DegToRad(FOV), aspectRatio, NearPlane, FarPlane)
	proj[5] *= -1 // column-major index [1][1]

	return UniformBufferObject{Model: mgl32.Ident4(), View: view, Proj: proj}
}
