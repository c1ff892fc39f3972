package device

import (
	"encoding/binary"
	"fmt"
	"math"
)

// bmRequestType bits
const (
	requestDirIn      = 0x80
	requestTypeVendor = 0x40
	recipientDevice   = 0x00
)

const (
	commandRead    = 0x80
	commandInteger = 0x40

	// ResponseLength is the fixed size of every parameter read response
	ResponseLength = 8
)

// Request is a single vendor control-transfer read
type Request struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      int
}

// NewRequest builds the read request for spec
func NewRequest(spec Spec) Request {
	cmd := uint16(commandRead | spec.SubCommand)
	if spec.Kind == KindInteger {
		cmd |= commandInteger
	}

	return Request{
		RequestType: requestDirIn | requestTypeVendor | recipientDevice,
		Request:     0,
		Value:       cmd,
		Index:       spec.ID,
		Length:      ResponseLength,
	}
}

// Value is a decoded parameter reading
type Value struct {
	Kind     Kind
	Raw      int32
	Exponent int32
}

// Int returns the reading as an integer. Scaled values are truncated.
func (v Value) Int() int {
	if v.Kind == KindInteger {
		return int(v.Raw)
	}
	return int(v.Float())
}

// Float returns the reading as a float64
func (v Value) Float() float64 {
	if v.Kind == KindInteger {
		return float64(v.Raw)
	}
	return math.Ldexp(float64(v.Raw), int(v.Exponent))
}

// Decode interprets a response as two little-endian int32 words (value, exponent)
func Decode(spec Spec, resp []byte) (Value, error) {
	if len(resp) < ResponseLength {
		return Value{}, fmt.Errorf("%w: short response for %s: got %d bytes, want %d",
			ErrDeviceIO, spec.Name, len(resp), ResponseLength)
	}

	v := Value{
		Kind:     spec.Kind,
		Raw:      int32(binary.LittleEndian.Uint32(resp[0:4])),
		Exponent: int32(binary.LittleEndian.Uint32(resp[4:8])),
	}

	// Scaled readings are reported as the DSP computes them
	if spec.Kind == KindInteger {
		if f := float64(v.Raw); f < spec.Min || f > spec.Max {
			return Value{}, fmt.Errorf("%w: %s value %v outside [%v, %v]",
				ErrDeviceIO, spec.Name, f, spec.Min, spec.Max)
		}
	}

	return v, nil
}
