package streammux

import (
	"fmt"

	"go.bug.st/serial"
)

// NewRealStreamMux creates a StreamMux instance backed by a real serial port
// at the given path using the provided serial options.
func NewRealStreamMux(path string, opts PortOptions) (*StreamMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}

	return NewStreamMux[serial.Port](port), nil
}

// DiscoverPort returns the first serial port available on the system. It is
// used when no explicit port path is configured.
func DiscoverPort() (string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return "", fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	if len(ports) == 0 {
		return "", fmt.Errorf("no serial ports found")
	}
	return ports[0], nil
}
