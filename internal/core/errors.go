package core

import (
	"errors"
	"fmt"
)

var (
	ErrNoDevice         = errors.New("no device available")
	ErrPermissionDenied = errors.New("permission denied")
	ErrDeviceBusy       = errors.New("device already in exclusive use")
	ErrNoVideoTrack     = errors.New("acquired stream has no video track")
	ErrClassification   = errors.New("track classification failed")
)

// AcquisitionError reports why a hardware stream could not be acquired.
type AcquisitionError struct {
	DeviceID string
	Err      error
}

func (e *AcquisitionError) Error() string {
	if e.DeviceID == "" {
		return fmt.Sprintf("acquire default device: %v", e.Err)
	}
	return fmt.Sprintf("acquire device %q: %v", e.DeviceID, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }
