package config

import "time"

// Posture defines how hard the scanner pushes the network
type Posture string

const (
	PostureStealth    Posture = "stealth"    // Slow timing, few workers, long pauses
	PostureCautious   Posture = "cautious"   // Conservative, small office friendly
	PostureBalanced   Posture = "balanced"   // Default homelab behavior
	PostureAggressive Posture = "aggressive" // Fast, wide, short pauses
)

// ParsePosture converts a string to Posture, defaulting to PostureBalanced
func ParsePosture(s string) Posture {
	switch s {
	case "stealth":
		return PostureStealth
	case "cautious":
		return PostureCautious
	case "balanced":
		return PostureBalanced
	case "aggressive":
		return PostureAggressive
	default:
		return PostureBalanced
	}
}

// ScanProfile holds the timing and concurrency a posture implies
type ScanProfile struct {
	Timing       string        `yaml:"timing"`
	Workers      int           `yaml:"workers"`
	CycleDelay   time.Duration `yaml:"cycle_delay"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// PostureProfiles maps postures to their default scan profiles
var PostureProfiles = map[Posture]ScanProfile{
	PostureStealth: {
		Timing:       "polite",
		Workers:      2,
		CycleDelay:   30 * time.Minute,
		ProbeTimeout: 30 * time.Minute,
	},
	PostureCautious: {
		Timing:       "normal",
		Workers:      10,
		CycleDelay:   5 * time.Minute,
		ProbeTimeout: 15 * time.Minute,
	},
	PostureBalanced: {
		Timing:       "aggressive",
		Workers:      50,
		CycleDelay:   30 * time.Second,
		ProbeTimeout: 5 * time.Minute,
	},
	PostureAggressive: {
		Timing:       "insane",
		Workers:      128,
		CycleDelay:   5 * time.Second,
		ProbeTimeout: 2 * time.Minute,
	},
}

// GetProfile returns the scan profile for a posture
func (p Posture) GetProfile() ScanProfile {
	if profile, ok := PostureProfiles[p]; ok {
		return profile
	}
	return PostureProfiles[PostureBalanced]
}
