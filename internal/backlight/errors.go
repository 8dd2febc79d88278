package backlight

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceNotFound indicates a backlight device could not be matched by name.
	ErrDeviceNotFound = errors.New("backlight device not found")

	// ErrAttributeRead indicates a device attribute was missing or not a non-negative integer.
	ErrAttributeRead = errors.New("attribute read failed")

	// ErrAttributeWrite indicates a device attribute could not be opened or written.
	ErrAttributeWrite = errors.New("attribute write failed")

	// ErrLookupOutOfRange indicates the source brightness has no lookup table entry.
	ErrLookupOutOfRange = errors.New("lookup index out of range")
)

// DeviceError ties a failure kind to the device or attribute that caused it.
// errors.Is matches both the kind and the underlying cause.
type DeviceError struct {
	Kind error
	Path string
	Err  error
}

func (e *DeviceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Path, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Path, e.Kind, e.Err)
}

func (e *DeviceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
