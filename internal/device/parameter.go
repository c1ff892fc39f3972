package device

import "fmt"

// Kind describes how a parameter's raw response is interpreted
type Kind int

const (
	// KindInteger parameters return the first response word verbatim
	KindInteger Kind = iota
	// KindScaled parameters return value * 2^exponent
	KindScaled
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "int"
	case KindScaled:
		return "float"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Access is the access mode a parameter is exposed with
type Access int

const (
	ReadOnly Access = iota
	ReadWrite
)

// Spec is the static descriptor of a readable device parameter. Min and Max
// bound integer readings; for scaled ones they are documentary.
type Spec struct {
	Name        string
	ID          uint16
	SubCommand  uint8
	Kind        Kind
	Min         float64
	Max         float64
	Access      Access
	Description string
}

// Parameter identifies one entry of the fixed parameter table
type Parameter int

const (
	DOAAngle Parameter = iota
	SpeechDetected
	VoiceActivity
	GammaVADThreshold

	numParameters
)

// Values mirror the accessory's tuning table. The DSP firmware allows writes
// to some of them but this program only reads.
var parameters = [numParameters]Spec{
	DOAAngle: {
		Name:        "DOAANGLE",
		ID:          21,
		SubCommand:  0,
		Kind:        KindInteger,
		Min:         0,
		Max:         359,
		Access:      ReadOnly,
		Description: "DOA angle. Current value. Orientation depends on build configuration.",
	},
	SpeechDetected: {
		Name:        "SPEECHDETECTED",
		ID:          19,
		SubCommand:  22,
		Kind:        KindInteger,
		Min:         0,
		Max:         1,
		Access:      ReadOnly,
		Description: "Speech detection status. 0 = no speech detected, 1 = speech detected.",
	},
	VoiceActivity: {
		Name:        "VOICEACTIVITY",
		ID:          19,
		SubCommand:  32,
		Kind:        KindInteger,
		Min:         0,
		Max:         1,
		Access:      ReadOnly,
		Description: "VAD voice activity status. 0 = false, 1 = true.",
	},
	GammaVADThreshold: {
		Name:        "GAMMAVAD_SR",
		ID:          19,
		SubCommand:  39,
		Kind:        KindScaled,
		Min:         0,
		Max:         1000,
		Access:      ReadWrite,
		Description: "Threshold for voice activity detection in dB.",
	},
}

// Lookup returns the descriptor for p. Values outside the table are a
// configuration error.
func Lookup(p Parameter) (Spec, error) {
	if p < 0 || p >= numParameters {
		return Spec{}, fmt.Errorf("%w: unknown parameter %d", ErrConfiguration, int(p))
	}
	return parameters[p], nil
}

func (p Parameter) String() string {
	if spec, err := Lookup(p); err == nil {
		return spec.Name
	}
	return fmt.Sprintf("Parameter(%d)", int(p))
}
