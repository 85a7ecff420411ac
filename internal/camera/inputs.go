package camera

import (
	"sync"

	"github.com/go-gl/glfw/v3.3/glfw"
)

// Inputs tracks pressed keys and accumulated mouse motion across a
// frame, translated from original_source's src/inputs.rs Inputs struct.
// The Rust original accumulates mouse delta in a pair of atomics with a
// bit-reinterpreted f64 (a Rust-specific trick for lock-free float
// accumulation); a single mutex guarding two float64s is the idiomatic
// Go equivalent and carries no measurable cost at one update per frame.
type Inputs struct {
	mu sync.Mutex

	keys map[glfw.Key]bool

	deltaX, deltaY float64
	firstMouse     bool
	lastX, lastY   float64
}

// NewInputs builds an empty Inputs tracker.
func NewInputs() *Inputs {
	return &Inputs{keys: make(map[glfw.Key]bool), firstMouse: true}
}

// KeyEvent records a GLFW key callback's press/release transition.
func (in *Inputs) KeyEvent(key glfw.Key, action glfw.Action) {
	in.mu.Lock()
	defer in.mu.Unlock()
	switch action {
	case glfw.Press:
		in.keys[key] = true
	case glfw.Release:
		delete(in.keys, key)
	}
}

// IsKeyPressed reports whether key is currently held.
func (in *Inputs) IsKeyPressed(key glfw.Key) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.keys[key]
}

// MouseMoved records a GLFW cursor-position callback's absolute
// position, accumulating the delta since the last call. The first call
// after construction only seeds lastX/lastY, matching the first-mouse
// guard original_source's renderer and the teacher's
// internal/player/camera.go both use to avoid a large spurious jump on
// the very first sample. The guard is not re-armed when the cursor
// leaves and re-enters the window.
func (in *Inputs) MouseMoved(x, y float64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.firstMouse {
		in.lastX, in.lastY = x, y
		in.firstMouse = false
		return
	}
	in.deltaX += x - in.lastX
	in.deltaY += in.lastY - y // reversed: screen Y grows downward, pitch grows upward
	in.lastX, in.lastY = x, y
}

// FetchMouseDelta returns the mouse delta accumulated since the last
// call and resets it to zero, matching inputs.rs's fetch_mouse_delta.
// Call once per frame.
func (in *Inputs) FetchMouseDelta() (dx, dy float64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	dx, dy = in.deltaX, in.deltaY
	in.deltaX, in.deltaY = 0, 0
	return dx, dy
}
