package adapter

import (
	"fmt"
	"strings"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"
	"topomap/internal/logging"
)

// NmapOption is a functional option for configuring NmapProber
type NmapOption func(*NmapProber)

// WithProbeTimeout bounds a single nmap invocation
func WithProbeTimeout(d time.Duration) NmapOption {
	return func(p *NmapProber) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithTimingTemplate sets the nmap timing template (-T0 .. -T5)
func WithTimingTemplate(t nmap.Timing) NmapOption {
	return func(p *NmapProber) {
		p.timing = t
	}
}

// WithPrivileged tells nmap it may use raw sockets (--privileged).
// Without it OS fingerprinting is retried without -O when nmap refuses.
func WithPrivileged(privileged bool) NmapOption {
	return func(p *NmapProber) {
		p.privileged = privileged
	}
}

// WithOSDetection toggles -O for probes that request OS fingerprinting
func WithOSDetection(enabled bool) NmapOption {
	return func(p *NmapProber) {
		p.noOSDetection = !enabled
	}
}

// WithBinaryPath points at a specific nmap executable instead of $PATH
func WithBinaryPath(path string) NmapOption {
	return func(p *NmapProber) {
		p.binaryPath = path
	}
}

// WithVersionIntensity sets --version-intensity for service detection (0-9)
func WithVersionIntensity(level int) NmapOption {
	return func(p *NmapProber) {
		if level >= 0 && level <= 9 {
			p.versionIntensity = level
		}
	}
}

// WithProberLogger sets the logger used for probe diagnostics
func WithProberLogger(logger *logging.Logger) NmapOption {
	return func(p *NmapProber) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// ParseTiming maps a timing template name to its nmap value.
// Accepts the names used by nmap (paranoid .. insane) and their digits.
func ParseTiming(name string) (nmap.Timing, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "0", "paranoid":
		return nmap.TimingSlowest, nil
	case "1", "sneaky":
		return nmap.TimingSneaky, nil
	case "2", "polite":
		return nmap.TimingPolite, nil
	case "3", "normal", "":
		return nmap.TimingNormal, nil
	case "4", "aggressive":
		return nmap.TimingAggressive, nil
	case "5", "insane":
		return nmap.TimingFastest, nil
	default:
		return nmap.TimingNormal, fmt.Errorf("unknown timing template %q", name)
	}
}
