// Package yeelight implements the Yeelight Wi-Fi bulb protocol: the
// JSON-over-TCP command channel on port 55443 and the SSDP-style
// discovery probe on UDP port 1982.
package yeelight

import (
	"fmt"
	"strings"
	"time"
)

// DefaultPort is the TCP command port of a Yeelight bulb.
const DefaultPort = 55443

// Command is a JSON command sent to a bulb.
type Command struct {
	ID     int32  `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

// Result represents a reply to a command from a bulb.
type Result struct {
	ID     int32  `json:"id"`
	Result []any  `json:"result,omitempty"`
	Error  *Error `json:"error,omitempty"`
}

// Notification is an unsolicited state-change message from a bulb. These are
// read and discarded while waiting for a command reply.
type Notification struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

// Error is an error payload in a command reply.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("bulb error %d: %s", e.Code, e.Message)
}

// Properties is the live state reported by a bulb via get_prop.
type Properties struct {
	Power      bool
	Brightness int
	RGB        int
	Flowing    bool
}

// FlowMode selects what a flow step changes on the bulb.
type FlowMode int

const (
	// FlowModeColor sets an RGB color
	FlowModeColor FlowMode = 1

	// FlowModeTemperature sets a color temperature in Kelvin
	FlowModeTemperature FlowMode = 2

	// FlowModeSleep keeps the previous state for the step duration
	FlowModeSleep FlowMode = 7
)

// minStepDuration is the shortest step the device accepts.
const minStepDuration = 50 * time.Millisecond

// FlowStep is one step of a flow program: hold target state for a duration.
type FlowStep struct {
	Duration   time.Duration
	Mode       FlowMode
	Value      int // packed RGB for FlowModeColor, Kelvin for FlowModeTemperature
	Brightness int // 1-100, or -1 to keep the current brightness
}

// FlowExpression serializes steps into the start_cf expression format:
// comma-joined (duration_ms, mode, value, brightness) tuples.
func FlowExpression(steps []FlowStep) string {
	parts := make([]string, 0, len(steps))
	for _, s := range steps {
		d := s.Duration
		if d < minStepDuration {
			d = minStepDuration
		}
		parts = append(parts, fmt.Sprintf("%d,%d,%d,%d",
			d.Milliseconds(), s.Mode, s.Value, s.Brightness))
	}
	return strings.Join(parts, ",")
}

// Device is a bulb found by a discovery probe.
type Device struct {
	Address string // host:port of the command channel
	ID      string
	Model   string
	Name    string
}
