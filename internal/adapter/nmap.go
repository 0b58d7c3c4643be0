package adapter

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	nmap "github.com/Ullaakut/nmap/v3"
	"topomap/internal/errors"
	"topomap/internal/logging"
)

const (
	defaultProbeTimeout     = 5 * time.Minute
	defaultVersionIntensity = 5

	rootRequiredMarker = "requires root privileges"
)

// NmapProber runs nmap against a target and returns its raw XML report
type NmapProber struct {
	binaryPath       string
	timeout          time.Duration
	timing           nmap.Timing
	versionIntensity int
	privileged       bool
	noOSDetection    bool
	logger           *logging.Logger
}

// NewNmapProber creates a prober with -T4 timing and version intensity 5
func NewNmapProber(opts ...NmapOption) *NmapProber {
	p := &NmapProber{
		timeout:          defaultProbeTimeout,
		timing:           nmap.TimingAggressive,
		versionIntensity: defaultVersionIntensity,
		logger:           logging.Default().WithComponent("nmap"),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Available checks that the nmap binary can be executed
func (p *NmapProber) Available(ctx context.Context) error {
	opts := []nmap.Option{
		nmap.WithTargets("localhost"),
		nmap.WithListScan(),
	}
	if p.binaryPath != "" {
		opts = append(opts, nmap.WithBinaryPath(p.binaryPath))
	}

	scanner, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		return errors.Wrap(errors.CodeProbeFailure, "nmap binary not usable", err)
	}
	if _, _, err := scanner.Run(); err != nil {
		return errors.Wrap(errors.CodeProbeFailure, "nmap list scan failed", err)
	}
	return nil
}

// Probe scans target with the requested capabilities.
//
// The scan runs detached from ctx cancellation and is bounded only by the
// probe timeout; callers stop dispatching new probes instead of interrupting
// running ones. nmap quits with a non-zero status when OS fingerprinting needs
// privileges it lacks, so a failed run that asked for -O is repeated once
// without it and the degradation is recorded as a warning.
func (p *NmapProber) Probe(ctx context.Context, target string, caps Capabilities) (*RawScan, error) {
	if strings.TrimSpace(target) == "" {
		return nil, errors.New(errors.CodeValidation, "empty probe target").WithOp("probe")
	}

	probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	raw, err := p.run(probeCtx, target, caps)
	if err != nil && p.osRefused(caps, err) {
		p.logger.Warn("nmap failed with OS fingerprinting, retrying without it",
			"target", target, "error", err)
		caps.OSFingerprint = false
		raw, err = p.run(probeCtx, target, caps)
		if err == nil {
			raw.Warnings = append(raw.Warnings, "os fingerprinting skipped: "+rootRequiredMarker)
		}
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// osRefused reports whether err may come from nmap rejecting -O
func (p *NmapProber) osRefused(caps Capabilities, err error) bool {
	if !caps.OSFingerprint || p.noOSDetection {
		return false
	}
	return errors.IsCode(err, errors.CodePermission) || errors.IsCode(err, errors.CodeToolReported)
}

func (p *NmapProber) run(ctx context.Context, target string, caps Capabilities) (*RawScan, error) {
	scanner, err := nmap.NewScanner(ctx, p.buildOptions(target, caps)...)
	if err != nil {
		return nil, errors.Wrap(errors.CodeProbeFailure, "failed to create scanner", err).
			WithTarget(target).WithOp("probe")
	}

	start := time.Now()
	result, warnings, err := scanner.Run()

	raw := &RawScan{Target: target}
	if warnings != nil {
		raw.Warnings = append(raw.Warnings, *warnings...)
	}

	var exitErr *exec.ExitError
	switch {
	case ctx.Err() == context.DeadlineExceeded || errors.Is(err, nmap.ErrScanTimeout):
		return nil, errors.Wrap(errors.CodeTimeout, fmt.Sprintf("scan exceeded %s", p.timeout), err).
			WithTarget(target).WithOp("probe")

	case requiresRoot(raw.Warnings) && caps.OSFingerprint && !p.noOSDetection:
		return nil, errors.Wrap(errors.CodePermission, "nmap refused OS fingerprinting", err).
			WithTarget(target).WithOp("probe")

	case result == nil:
		if err == nil {
			err = fmt.Errorf("nmap produced no report")
		}
		return nil, errors.Wrap(errors.CodeProbeFailure, "failed to start nmap", err).
			WithTarget(target).WithOp("probe")

	case errors.As(err, &exitErr):
		// stderr is not kept for a failed run, so the exit status is all we have
		return nil, errors.Wrap(errors.CodeToolReported, "nmap exited with an error", err).
			WithTarget(target).WithOp("probe")

	case errors.Is(err, nmap.ErrParseOutput):
		// the parser error is already in the warnings; Normalize reports it

	case err != nil:
		// nmap finished and reported the error in its own output
		raw.ToolErrors = append(raw.ToolErrors, err.Error())
	}

	data, readErr := io.ReadAll(result.ToReader())
	if readErr != nil {
		return nil, errors.Wrap(errors.CodeProbeFailure, "failed to read scan report", readErr).
			WithTarget(target).WithOp("probe")
	}
	raw.XML = data

	p.logger.Debug("probe finished",
		"target", target,
		"hosts", len(result.Hosts),
		"warnings", len(raw.Warnings),
		"duration", time.Since(start))

	return raw, nil
}

// buildOptions translates capabilities into nmap arguments
func (p *NmapProber) buildOptions(target string, caps Capabilities) []nmap.Option {
	opts := []nmap.Option{
		nmap.WithTargets(target),
		nmap.WithTimingTemplate(p.timing),
	}

	if p.binaryPath != "" {
		opts = append(opts, nmap.WithBinaryPath(p.binaryPath))
	}

	// -sn cannot be combined with a port scan
	if caps.Liveness && !caps.ServiceVersion {
		opts = append(opts, nmap.WithPingScan())
	}

	if caps.Traceroute {
		opts = append(opts, nmap.WithTraceRoute())
	}

	if caps.ServiceVersion {
		opts = append(opts,
			nmap.WithServiceInfo(),
			nmap.WithVersionIntensity(int16(p.versionIntensity)),
		)
	}

	if caps.OSFingerprint && !p.noOSDetection {
		opts = append(opts, nmap.WithOSDetection())
	}

	if p.privileged {
		opts = append(opts, nmap.WithPrivileged())
	}

	return opts
}

func requiresRoot(warnings []string) bool {
	for _, w := range warnings {
		if strings.Contains(w, rootRequiredMarker) {
			return true
		}
	}
	return false
}
