package models

import "encoding/json"

// ConnectionState is the lifecycle of the vehicle link.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "unknown"
}

func (s ConnectionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
