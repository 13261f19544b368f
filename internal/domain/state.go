// Package domain contains entity without logic, just meta-data
package domain

import "fmt"

type TransportState int

const (
	TransportStateIdle TransportState = iota
	TransportStateInitialized
	TransportStateConnecting
	TransportStateConnected
	TransportStateDisconnected
	TransportStateError
)

var transportStateNames = map[TransportState]string{
	TransportStateIdle:         "idle",
	TransportStateInitialized:  "initialized",
	TransportStateConnecting:   "connecting",
	TransportStateConnected:    "connected",
	TransportStateDisconnected: "disconnected",
	TransportStateError:        "error",
}

func (s TransportState) String() string {
	if name, ok := transportStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("TransportState(%d)", int(s))
}

func (s TransportState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *TransportState) UnmarshalText(b []byte) error {
	for state, name := range transportStateNames {
		if name == string(b) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown transport state %q", string(b))
}
