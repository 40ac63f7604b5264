package status

import (
	"encoding/json"
	"fmt"
	"time"
)

// StatusJSON is the envelope shared by the web endpoint and MQTT lifecycle
// events.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner is the rendered form of a Snapshot.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Buttons       []Button     `json:"buttons"`
	ActiveMask    string       `json:"active_mask"`
	Screen        int          `json:"screen"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        Counts       `json:"gesture_counts"`
	Dropped       Dropped      `json:"dropped"`
	Network       *NetworkInfo `json:"network,omitempty"`
	Config        Config       `json:"config"`
}

// MQTTStatus reports the broker link.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// Dropped reports events lost to full queues.
type Dropped struct {
	Edges    uint64 `json:"edges"`
	Gestures uint64 `json:"gestures"`
}

func render(snap Snapshot, event, reason string) StatusInner {
	buttons := snap.Buttons
	if buttons == nil {
		buttons = []Button{}
	}
	return StatusInner{
		Event:         event,
		Reason:        reason,
		Buttons:       buttons,
		ActiveMask:    fmt.Sprintf("%#x", uint64(snap.Mask)),
		Screen:        snap.Screen,
		UptimeSeconds: int64(snap.Uptime() / time.Second),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts:        snap.Counts,
		Dropped:       Dropped{Edges: snap.DroppedEdges, Gestures: snap.DroppedGestures},
		Network:       snap.Network,
		Config:        snap.Config,
	}
}

// FormatJSON renders snap, indented, for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: render(snap, "", "")}, "", "  ")
	return data
}

// FormatStatusEvent renders snap as the payload of an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	data, _ := json.Marshal(StatusJSON{Status: render(snap, event, reason)})
	return data
}
