package gpu

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfDate means the swapchain no longer matches the surface and must be recreated.
	ErrOutOfDate = errors.New("swapchain out of date")
	// ErrSuboptimal is returned along with a usable result; recreation is still advised.
	ErrSuboptimal         = errors.New("swapchain suboptimal")
	ErrTimeout            = errors.New("wait timed out")
	ErrDeviceLost         = errors.New("device lost")
	ErrOutOfDeviceMemory  = errors.New("out of device memory")
	ErrOutOfHostMemory    = errors.New("out of host memory")
	ErrOutOfPoolMemory    = errors.New("out of descriptor pool memory")
	ErrInvalidHandle      = errors.New("invalid handle")
	ErrInvalidUsage       = errors.New("invalid usage")
	ErrInvalidShader      = errors.New("invalid shader bytecode")
	ErrMemoryMapFailed    = errors.New("memory map failed")
	ErrInitializationFail = errors.New("initialization failed")
)

// ResultError carries the backend result code of a failed call.
type ResultError struct {
	Op   string
	Code int32
	Text string
	Err  error
}

func (e *ResultError) Error() string {
	if e.Text != "" {
		return fmt.Sprintf("%s failed with %s", e.Op, e.Text)
	}
	return fmt.Sprintf("%s failed with code %d", e.Op, e.Code)
}

func (e *ResultError) Unwrap() error {
	return e.Err
}

// IsSwapchainStale reports the results that call for a swapchain recreation.
func IsSwapchainStale(err error) bool {
	return errors.Is(err, ErrOutOfDate) || errors.Is(err, ErrSuboptimal)
}
