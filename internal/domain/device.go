package domain

type DeviceKind int

const (
	AudioInput DeviceKind = iota
	AudioOutput
	VideoInput
)

func (k DeviceKind) String() string {
	switch k {
	case AudioInput:
		return "audioinput"
	case AudioOutput:
		return "audiooutput"
	case VideoInput:
		return "videoinput"
	}
	return "unknown"
}

// Device is the view-model for one selectable device.
type Device struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// DeviceInfo is what a device lister reports.
type DeviceInfo struct {
	DeviceID string
	Kind     DeviceKind
	Label    string
}

func (d DeviceInfo) Device() Device {
	return Device{Label: d.Label, Value: d.DeviceID}
}

// DeviceLists holds the enumerated devices of each kind.
type DeviceLists struct {
	AudioInputs  []Device `json:"audioInputs"`
	AudioOutputs []Device `json:"audioOutputs"`
	VideoInputs  []Device `json:"videoInputs"`
}

// CurrentDevices holds the selected device of each kind; zero value means none.
type CurrentDevices struct {
	AudioInput  Device `json:"audioInput"`
	AudioOutput Device `json:"audioOutput"`
	VideoInput  Device `json:"videoInput"`
}
