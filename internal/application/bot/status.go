package bot

import "time"

// State es el estado observable del scheduler.
type State string

const (
	StateIdle       State = "idle"
	StatePolling    State = "polling"
	StateEvaluating State = "evaluating"
	StateSleeping   State = "sleeping"
	StateStopped    State = "stopped"
)

// Status es la instantánea que expone el control server.
type Status struct {
	State               State     `json:"state"`
	Mode                string    `json:"mode"`
	LastCycle           time.Time `json:"lastCycle,omitempty"`
	Cycles              int       `json:"cycles"`
	Dispatched          int       `json:"dispatched"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	CurrentBackoff      string    `json:"currentBackoff,omitempty"`
	CallsInWindow       int       `json:"callsInWindow"`
	GateEnabled         bool      `json:"gateEnabled"`
	StopCause           string    `json:"stopCause,omitempty"`
}
