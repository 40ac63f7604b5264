// Package mqtt publishes gesture and lifecycle events, with an abstraction
// for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/buttond/internal/button"
)

// Topic is the MQTT topic for gesture events.
const Topic = "input/buttons/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "input/buttons/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a gesture event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event GestureEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// GestureEvent is a combo gesture ready to be published.
type GestureEvent struct {
	Timestamp time.Time     // wall clock when the gesture was dispatched
	Session   string        // per-boot id, so monotonic times can be correlated
	Combo     string        // combo name
	Kind      button.Kind   // PRESS, HELD or RELEASE
	Monotonic time.Duration // engine timestamp passed to the callback
	Screen    *int          // screen after a screen action, if any
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload for gesture events.
type Payload struct {
	Gesture GesturePayload `json:"gesture"`
}

// GesturePayload contains the gesture details.
type GesturePayload struct {
	Timestamp   string `json:"timestamp"`
	Session     string `json:"session,omitempty"`
	Combo       string `json:"combo"`
	Event       string `json:"event"`
	MonotonicUs int64  `json:"monotonic_us"`
	Screen      *int   `json:"screen,omitempty"`
}

// FormatPayload creates the JSON payload for a gesture event.
func FormatPayload(event GestureEvent) ([]byte, error) {
	payload := Payload{
		Gesture: GesturePayload{
			Timestamp:   event.Timestamp.UTC().Format(time.RFC3339Nano),
			Session:     event.Session,
			Combo:       event.Combo,
			Event:       event.Kind.String(),
			MonotonicUs: event.Monotonic.Microseconds(),
			Screen:      event.Screen,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
