// Package device reads tuning parameters from the microphone array's DSP over
// vendor control transfers.
package device

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration reports a lookup of a parameter that is not in the table
	ErrConfiguration = errors.New("device configuration error")
	// ErrDeviceIO reports a failed, timed out or malformed control transfer
	ErrDeviceIO = errors.New("device I/O error")
)

// ControlTransferer issues a control transfer. *gousb.Device and *Handle satisfy it.
type ControlTransferer interface {
	Control(rType, request uint8, val, idx uint16, data []byte) (int, error)
}

// DOASample is one direction-of-arrival reading in degrees
type DOASample struct {
	Degrees int
	OK      bool
}

// Unavailable marks a chunk whose DOA could not be read
var Unavailable = DOASample{}

func (s DOASample) String() string {
	if !s.OK {
		return "unavailable"
	}
	return fmt.Sprintf("%d°", s.Degrees)
}

// Reader reads parameters through a ControlTransferer
type Reader struct {
	dev ControlTransferer
}

// NewReader creates a Reader over dev
func NewReader(dev ControlTransferer) *Reader {
	return &Reader{dev: dev}
}

// Read performs one parameter read
func (r *Reader) Read(p Parameter) (Value, error) {
	spec, err := Lookup(p)
	if err != nil {
		return Value{}, err
	}

	if r.dev == nil {
		return Value{}, fmt.Errorf("%w: device not present", ErrDeviceIO)
	}

	req := NewRequest(spec)
	buf := make([]byte, req.Length)
	n, err := r.dev.Control(req.RequestType, req.Request, req.Value, req.Index, buf)
	if err != nil {
		return Value{}, fmt.Errorf("%w: read %s: %v", ErrDeviceIO, spec.Name, err)
	}

	return Decode(spec, buf[:n])
}

// DOA reads the current direction of arrival
func (r *Reader) DOA() (DOASample, error) {
	v, err := r.Read(DOAAngle)
	if err != nil {
		return Unavailable, err
	}
	return DOASample{Degrees: v.Int(), OK: true}, nil
}

// SpeechDetected reads the DSP's speech detection flag
func (r *Reader) SpeechDetected() (bool, error) {
	v, err := r.Read(SpeechDetected)
	if err != nil {
		return false, err
	}
	return v.Int() != 0, nil
}
