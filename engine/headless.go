package engine

// HeadlessWindow stands in for an OS window when running on the simulated
// device. It asks to close after a fixed number of polls.
type HeadlessWindow struct {
	width, height int
	resized       bool
	maxFrames     uint64
	polls         uint64
	shouldClose   bool
	destroyed     bool
}

// NewHeadlessWindow closes after frames polls; zero runs until SetShouldClose.
func NewHeadlessWindow(width, height int, frames uint64) *HeadlessWindow {
	return &HeadlessWindow{width: width, height: height, maxFrames: frames}
}

func (w *HeadlessWindow) Width() int  { return w.width }
func (w *HeadlessWindow) Height() int { return w.height }

// Resize simulates the user resizing the window; the loop picks it up on the
// next poll.
func (w *HeadlessWindow) Resize(width, height int) {
	w.width, w.height = width, height
	w.resized = true
}

func (w *HeadlessWindow) Resized() bool {
	r := w.resized
	w.resized = false
	return r
}

func (w *HeadlessWindow) Minimized() bool {
	return w.width == 0 || w.height == 0
}

func (w *HeadlessWindow) ShouldClose() bool {
	return w.shouldClose || (w.maxFrames > 0 && w.polls > w.maxFrames)
}

func (w *HeadlessWindow) SetShouldClose(v bool) {
	w.shouldClose = v
}

func (w *HeadlessWindow) PollEvents() {
	w.polls++
}

// WaitEvents returns at once; a minimized headless window still counts polls
// so a bounded run always ends.
func (w *HeadlessWindow) WaitEvents() {}

func (w *HeadlessWindow) Polls() uint64 { return w.polls }

func (w *HeadlessWindow) Destroy() {
	w.destroyed = true
}

func (w *HeadlessWindow) Destroyed() bool { return w.destroyed }
