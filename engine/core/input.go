package core

type Button uint16

const (
	BUTTON_LEFT Button = iota
	BUTTON_RIGHT
	BUTTON_MIDDLE
	BUTTON_MAX_BUTTONS
)

// KeyCode values follow the Windows virtual key codes; platforms translate
// their own key codes into these.
type KeyCode uint16

// editing and navigation
const (
	KEY_BACKSPACE KeyCode = 0x08
	KEY_TAB       KeyCode = 0x09
	KEY_ENTER     KeyCode = 0x0D
	KEY_PAUSE     KeyCode = 0x13
	KEY_CAPITAL   KeyCode = 0x14
	KEY_ESCAPE    KeyCode = 0x1B
)

const (
	KEY_SPACE KeyCode = iota + 0x20
	KEY_PRIOR
	KEY_NEXT
	KEY_END
	KEY_HOME
	KEY_LEFT
	KEY_UP
	KEY_RIGHT
	KEY_DOWN
	_
	KEY_PRINT
	_
	_
	KEY_INSERT
	KEY_DELETE
)

// letters, ASCII upper case
const (
	KEY_A KeyCode = iota + 'A'
	KEY_B
	KEY_C
	KEY_D
	KEY_E
	KEY_F
	KEY_G
	KEY_H
	KEY_I
	KEY_J
	KEY_K
	KEY_L
	KEY_M
	KEY_N
	KEY_O
	KEY_P
	KEY_Q
	KEY_R
	KEY_S
	KEY_T
	KEY_U
	KEY_V
	KEY_W
	KEY_X
	KEY_Y
	KEY_Z
	KEY_LWIN
	KEY_RWIN
	KEY_APPS
)

// keypad
const (
	KEY_NUMPAD0 KeyCode = iota + 0x60
	KEY_NUMPAD1
	KEY_NUMPAD2
	KEY_NUMPAD3
	KEY_NUMPAD4
	KEY_NUMPAD5
	KEY_NUMPAD6
	KEY_NUMPAD7
	KEY_NUMPAD8
	KEY_NUMPAD9
	KEY_MULTIPLY
	KEY_ADD
	_
	KEY_SUBTRACT
	KEY_DECIMAL
	KEY_DIVIDE
)

const (
	KEY_F1 KeyCode = iota + 0x70
	KEY_F2
	KEY_F3
	KEY_F4
	KEY_F5
	KEY_F6
	KEY_F7
	KEY_F8
	KEY_F9
	KEY_F10
	KEY_F11
	KEY_F12
	KEY_F13
	KEY_F14
	KEY_F15
	KEY_F16
	KEY_F17
	KEY_F18
	KEY_F19
	KEY_F20
	KEY_F21
	KEY_F22
	KEY_F23
	KEY_F24
)

// locks and modifiers
const (
	KEY_NUMLOCK      KeyCode = 0x90
	KEY_SCROLL       KeyCode = 0x91
	KEY_NUMPAD_EQUAL KeyCode = 0x92

	KEY_LSHIFT   KeyCode = 0xA0
	KEY_RSHIFT   KeyCode = 0xA1
	KEY_LCONTROL KeyCode = 0xA2
	KEY_RCONTROL KeyCode = 0xA3
	KEY_LMENU    KeyCode = 0xA4
	KEY_RMENU    KeyCode = 0xA5
)

// punctuation, US layout
const (
	KEY_SEMICOLON KeyCode = iota + 0xBA
	KEY_PLUS
	KEY_COMMA
	KEY_MINUS
	KEY_PERIOD
	KEY_SLASH
	KEY_GRAVE
)

// Mouse state structure
type MouseState struct {
	X       uint16
	Y       uint16
	Buttons [BUTTON_MAX_BUTTONS]bool
}

type KeyboardState struct {
	Keys [256]bool
}

// Input state holds current and previous snapshots for keyboard and mouse.
// The previous snapshot is taken by InputUpdate at the end of every frame.
type InputState struct {
	KeyboardCurrent  KeyboardState
	KeyboardPrevious KeyboardState
	MouseCurrent     MouseState
	MousePrevious    MouseState
}

var inputState *InputState

func InputInitialize() error {
	inputState = &InputState{}
	LogInfo("Input subsystem initialized.")
	return nil
}

func InputShutdown() error {
	if inputState == nil {
		return ErrNotInitialized
	}
	inputState = nil
	return nil
}

// InputUpdate copies current states to previous states.
func InputUpdate(deltaTime float64) error {
	if inputState == nil {
		return ErrNotInitialized
	}
	inputState.KeyboardPrevious = inputState.KeyboardCurrent
	inputState.MousePrevious = inputState.MouseCurrent
	return nil
}

// keyboard input
func InputIsKeyDown(key KeyCode) bool {
	if inputState == nil || int(key) >= len(inputState.KeyboardCurrent.Keys) {
		return false
	}
	return inputState.KeyboardCurrent.Keys[key]
}

func InputIsKeyUp(key KeyCode) bool {
	return !InputIsKeyDown(key)
}

func InputWasKeyDown(key KeyCode) bool {
	if inputState == nil || int(key) >= len(inputState.KeyboardPrevious.Keys) {
		return false
	}
	return inputState.KeyboardPrevious.Keys[key]
}

func InputWasKeyUp(key KeyCode) bool {
	return !InputWasKeyDown(key)
}

// InputIsKeyTriggered reports a key that went down during the current frame.
func InputIsKeyTriggered(key KeyCode) bool {
	return InputIsKeyDown(key) && !InputWasKeyDown(key)
}

// InputIsKeyReleased reports a key that went up during the current frame.
func InputIsKeyReleased(key KeyCode) bool {
	return !InputIsKeyDown(key) && InputWasKeyDown(key)
}

func InputProcessKey(key KeyCode, pressed bool) error {
	if inputState == nil {
		return ErrNotInitialized
	}
	if int(key) >= len(inputState.KeyboardCurrent.Keys) {
		return nil
	}
	// Only handle this if the state actually changed.
	if inputState.KeyboardCurrent.Keys[key] != pressed {
		inputState.KeyboardCurrent.Keys[key] = pressed

		code := EVENT_CODE_KEY_RELEASED
		if pressed {
			code = EVENT_CODE_KEY_PRESSED
		}
		EventFire(EventContext{
			Type: code,
			Data: &KeyEvent{KeyCode: key},
		})
	}
	return nil
}

// mouse input
func InputIsButtonDown(button Button) bool {
	if inputState == nil || button >= BUTTON_MAX_BUTTONS {
		return false
	}
	return inputState.MouseCurrent.Buttons[button]
}

func InputIsButtonUp(button Button) bool {
	return !InputIsButtonDown(button)
}

func InputWasButtonDown(button Button) bool {
	if inputState == nil || button >= BUTTON_MAX_BUTTONS {
		return false
	}
	return inputState.MousePrevious.Buttons[button]
}

func InputWasButtonUp(button Button) bool {
	return !InputWasButtonDown(button)
}

func InputIsButtonTriggered(button Button) bool {
	return InputIsButtonDown(button) && !InputWasButtonDown(button)
}

func InputIsButtonReleased(button Button) bool {
	return !InputIsButtonDown(button) && InputWasButtonDown(button)
}

func InputGetMousePosition() (int32, int32) {
	if inputState == nil {
		return 0, 0
	}
	return int32(inputState.MouseCurrent.X), int32(inputState.MouseCurrent.Y)
}

func InputGetPreviousMousePosition() (int32, int32) {
	if inputState == nil {
		return 0, 0
	}
	return int32(inputState.MousePrevious.X), int32(inputState.MousePrevious.Y)
}

func InputProcessButton(button Button, pressed bool) error {
	if inputState == nil {
		return ErrNotInitialized
	}
	if button >= BUTTON_MAX_BUTTONS {
		return nil
	}
	if inputState.MouseCurrent.Buttons[button] != pressed {
		inputState.MouseCurrent.Buttons[button] = pressed

		code := EVENT_CODE_BUTTON_RELEASED
		if pressed {
			code = EVENT_CODE_BUTTON_PRESSED
		}
		EventFire(EventContext{
			Type: code,
			Data: &MouseEvent{Button: button},
		})
	}
	return nil
}

func InputProcessMouseMove(x uint16, y uint16) error {
	if inputState == nil {
		return ErrNotInitialized
	}
	if inputState.MouseCurrent.X != x || inputState.MouseCurrent.Y != y {
		inputState.MouseCurrent.X = x
		inputState.MouseCurrent.Y = y

		EventFire(EventContext{
			Type: EVENT_CODE_MOUSE_MOVED,
			Data: &MouseEvent{PosX: x, PosY: y},
		})
	}
	return nil
}

func InputProcessMouseWheel(zDelta int8) error {
	EventFire(EventContext{
		Type: EVENT_CODE_MOUSE_WHEEL,
		Data: &MouseEvent{Scroll: zDelta},
	})
	return nil
}
