package scan

import (
	"fmt"
	"strings"
	"time"
)

// State is the orchestrator lifecycle state
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MarshalText renders the state name in JSON
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Mode selects between a single cycle and repeated cycles
type Mode string

const (
	ModeSingle     Mode = "single"
	ModeContinuous Mode = "continuous"
)

// ParseMode accepts "single" and "continuous"; empty means continuous
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSingle:
		return ModeSingle, nil
	case ModeContinuous, "":
		return ModeContinuous, nil
	default:
		return "", fmt.Errorf("unknown scan mode %q", s)
	}
}

// Event types published while scanning
const (
	EventScanStarted   = "scan-started"
	EventPhaseComplete = "phase-complete"
	EventHostEnriched  = "host-enriched"
	EventHostTraced    = "host-traced"
	EventScanComplete  = "scan-complete"
	EventScanStopped   = "scan-stopped"
	EventScanFault     = "scan-fault"
)

// Phase names
const (
	PhaseSweep   = "sweep"
	PhaseGateway = "gateway"
	PhaseEnrich  = "enrich"
	PhaseTrace   = "trace"
)

// HostResult is the outcome of probing one host. Err keeps the cause of a
// failed probe so it can be reported after the cycle.
type HostResult struct {
	IP       string        `json:"ip"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the probe failed
func (r HostResult) Failed() bool {
	return r.Err != nil
}

// HostFailure is the serializable form of a failed HostResult
type HostFailure struct {
	IP    string `json:"ip"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// CycleReport summarizes one scan cycle
type CycleReport struct {
	ID          string        `json:"id"`
	Mode        Mode          `json:"mode"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Candidates  int           `json:"candidates"`
	Enriched    int           `json:"enriched"`
	Failures    []HostFailure `json:"failures,omitempty"`
	Gateway     string        `json:"gateway,omitempty"`
	GatewayNote string        `json:"gateway_note,omitempty"`
	Cancelled   bool          `json:"cancelled"`
	// Rejected is set when the cycle never ran because another was active
	Rejected bool   `json:"rejected,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Duration returns how long the cycle ran
func (r *CycleReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
