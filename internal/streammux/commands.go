package streammux

import (
	"fmt"
	"strings"
)

// Control commands understood by the NPG-Lite firmware. Commands are single
// ASCII words written to the device; the sample stream itself stays binary.
const (
	CommandStart  = "START"
	CommandStop   = "STOP"
	CommandWhoAmI = "WHORU"
	CommandStatus = "STATUS"
)

// Replies the firmware indicates on its control side.
const (
	ReplyRunning    = "RUNNING"
	ReplyStopped    = "STOPPED"
	ReplyDeviceName = "NPG-LITE"
)

// ParseCommand validates an operator-supplied command against the firmware
// vocabulary. Matching is case-insensitive; the canonical upper-case form is
// returned. Unknown commands are rejected so the public API cannot write
// arbitrary bytes at the device.
func ParseCommand(s string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case CommandStart:
		return CommandStart, nil
	case CommandStop:
		return CommandStop, nil
	case CommandWhoAmI:
		return CommandWhoAmI, nil
	case CommandStatus:
		return CommandStatus, nil
	default:
		return "", fmt.Errorf("unknown command %q: expected START, STOP, WHORU, or STATUS", s)
	}
}
