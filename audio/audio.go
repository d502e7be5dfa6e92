package audio

import (
	"errors"
	"fmt"
)

const (
	SampleRate     = 16000
	Channels       = 1
	BytesPerSample = 2
)

// ErrPermissionDenied covers every way the microphone can be unavailable:
// refused access, no capture device, or a device that will not start.
var ErrPermissionDenied = errors.New("microphone access denied")

type DataCallback func(data []byte, frameCount uint32)

type CaptureConfig struct {
	SampleRate uint32
	Channels   uint32
}

func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{SampleRate: SampleRate, Channels: Channels}
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error)
	Close()
}

type CaptureDevice interface {
	Start() error
	Stop()
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
	DeviceName() string
}

// CheckAccess verifies that at least one capture device is visible.
func CheckAccess(ctx Context) error {
	devices, err := ctx.Devices()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	if len(devices) == 0 {
		return fmt.Errorf("%w: no capture devices found", ErrPermissionDenied)
	}
	return nil
}

// FindDevice returns the device with the given name, or nil for the system
// default when name is empty.
func FindDevice(ctx Context, name string) (*DeviceInfo, error) {
	if name == "" {
		return nil, nil
	}
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	for i := range devices {
		if devices[i].Name == name {
			return &devices[i], nil
		}
	}
	return nil, fmt.Errorf("device not found: %s", name)
}
