package core

import (
	"errors"
)

var (
	ErrSwapchainBooting = errors.New("swapchain resized or recreated, booting")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrNotInitialized   = errors.New("subsystem not initialized")
	ErrUnknown          = errors.New("unknown")
)
