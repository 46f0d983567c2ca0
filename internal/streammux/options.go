package streammux

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// PortOptions describes how to open the device's serial port. Field
// names mirror the recorder configuration so values pass straight
// through. The NPG-Lite itself always talks 8N1; the extra knobs exist
// for adapters that do not.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// SerialMode resolves defaults and converts the options into the
// serial.Mode used to open the port.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	if o.BaudRate <= 0 {
		o.BaudRate = 230400
	}
	if o.DataBits == 0 {
		o.DataBits = 8
	}
	if o.DataBits < 5 || o.DataBits > 8 {
		return nil, fmt.Errorf("invalid data bits %d: must be between 5 and 8", o.DataBits)
	}

	mode := &serial.Mode{
		BaudRate: o.BaudRate,
		DataBits: o.DataBits,
	}

	// serial.StopBits is an enum, not a count; StopBits(1) would be the
	// 1.5-stop-bits setting.
	switch o.StopBits {
	case 0, 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", o.StopBits)
	}

	switch strings.ToUpper(strings.TrimSpace(o.Parity)) {
	case "", "N", "NONE":
		mode.Parity = serial.NoParity
	case "E", "EVEN":
		mode.Parity = serial.EvenParity
	case "O", "ODD":
		mode.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
	}

	return mode, nil
}
