// Package status provides a thread-safe view of the buttond daemon state for
// the HTTP status page and MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/buttond/internal/button"
)

// NetworkInfo is the host network state written by pi-helper.
type NetworkInfo struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// Config is the daemon configuration shown on the status page. It is
// rendered as-is in status JSON.
type Config struct {
	Chip        string `json:"chip"`
	QueueSize   int    `json:"queue_size"`
	Screens     int    `json:"screens"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPPort    string `json:"http_port"`
	ConfigPath  string `json:"config_path,omitempty"` // empty for the built-in layout
}

// Button is a configured button and whether it is currently active.
type Button struct {
	Name   string `json:"name"`
	Pin    int    `json:"pin"`
	Active bool   `json:"active"`
}

// Counts tallies dispatched gestures by kind.
type Counts struct {
	Press   int `json:"press"`
	Held    int `json:"held"`
	Release int `json:"release"`
}

// Snapshot is a point-in-time view of daemon state. It shares nothing with
// the tracker and stays valid after the lock is released.
type Snapshot struct {
	Buttons         []Button
	Mask            button.Mask
	Counts          Counts
	DroppedEdges    uint64
	DroppedGestures uint64
	Screen          int
	StartTime       time.Time
	Now             time.Time
	MQTTConnected   bool
	Network         *NetworkInfo
	Config          Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot

	droppedEdges    func() uint64
	droppedGestures func() uint64
}

// NewTracker creates a Tracker for the given buttons, indexed as registered.
func NewTracker(startTime time.Time, cfg Config, buttons []button.ButtonSpec) *Tracker {
	bs := make([]Button, len(buttons))
	for i, b := range buttons {
		bs[i] = Button{Name: b.Name, Pin: b.Pin}
	}
	return &Tracker{
		snap: Snapshot{
			Buttons:   bs,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetMask records the engine's active mask. It is called on the engine
// worker and only holds the lock briefly.
func (t *Tracker) SetMask(m button.Mask) {
	t.mu.Lock()
	t.snap.Mask = m
	for i := range t.snap.Buttons {
		t.snap.Buttons[i].Active = m.Has(i)
	}
	t.mu.Unlock()
}

// RecordGesture counts a dispatched gesture.
func (t *Tracker) RecordGesture(kind button.Kind) {
	t.mu.Lock()
	switch kind {
	case button.Press:
		t.snap.Counts.Press++
	case button.Held:
		t.snap.Counts.Held++
	case button.Release:
		t.snap.Counts.Release++
	}
	t.mu.Unlock()
}

// StepScreen moves the current screen by delta, wrapping around the
// configured number of screens, and returns the new screen.
func (t *Tracker) StepScreen(delta int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.snap.Config.Screens
	if n <= 0 {
		n = 1
	}
	t.snap.Screen = ((t.snap.Screen+delta)%n + n) % n
	return t.snap.Screen
}

// SetDropCounters installs the sources read for dropped edge and gesture
// counts. Either may be nil.
func (t *Tracker) SetDropCounters(edges, gestures func() uint64) {
	t.mu.Lock()
	t.droppedEdges = edges
	t.droppedGestures = gestures
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Buttons = append([]Button(nil), t.snap.Buttons...)
	edges, gestures := t.droppedEdges, t.droppedGestures
	t.mu.RUnlock()

	if edges != nil {
		s.DroppedEdges = edges()
	}
	if gestures != nil {
		s.DroppedGestures = gestures()
	}
	s.Now = time.Now()
	return s
}
