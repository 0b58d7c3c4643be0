// Package netinfo discovers facts about the scanning host's own network
// position: its address, its local subnet and the default gateway.
package netinfo

import (
	"bufio"
	"context"
	"encoding/binary"
	"net"
	"os"
	"strconv"
	"strings"

	"topomap/internal/errors"
)

// DefaultRouteTable is the Linux routing table exposed by procfs
const DefaultRouteTable = "/proc/net/route"

// GatewayResolver resolves the default gateway address
type GatewayResolver interface {
	DefaultGateway(ctx context.Context) (string, error)
}

// RouteTableResolver reads the default route from a procfs routing table
type RouteTableResolver struct {
	Path string
}

// NewRouteTableResolver returns a resolver for path, or the system table if
// path is empty
func NewRouteTableResolver(path string) *RouteTableResolver {
	if path == "" {
		path = DefaultRouteTable
	}
	return &RouteTableResolver{Path: path}
}

// DefaultGateway returns the gateway of the first default route with the
// lowest metric
func (r *RouteTableResolver) DefaultGateway(_ context.Context) (string, error) {
	f, err := os.Open(r.Path)
	if err != nil {
		return "", errors.Wrap(errors.CodeClassificationAmbiguity, "cannot read routing table", err).WithOp("gateway")
	}
	defer f.Close()

	var (
		best       string
		bestMetric = -1
	)

	sc := bufio.NewScanner(f)
	first := true
	for sc.Scan() {
		// Skip header
		if first {
			first = false
			continue
		}
		fields := strings.Fields(sc.Text())
		if len(fields) < 7 {
			continue
		}
		// Default route has destination 00000000
		if fields[1] != "00000000" {
			continue
		}
		gw, ok := decodeHexIPv4(fields[2])
		if !ok || gw == "0.0.0.0" {
			continue
		}
		metric, err := strconv.Atoi(fields[6])
		if err != nil {
			metric = 0
		}
		if bestMetric < 0 || metric < bestMetric {
			best, bestMetric = gw, metric
		}
	}
	if err := sc.Err(); err != nil {
		return "", errors.Wrap(errors.CodeClassificationAmbiguity, "cannot read routing table", err).WithOp("gateway")
	}

	if best == "" {
		return "", errors.New(errors.CodeClassificationAmbiguity, "no default route").WithOp("gateway")
	}
	return best, nil
}

// decodeHexIPv4 decodes the little-endian hex form used by /proc/net/route
func decodeHexIPv4(s string) (string, bool) {
	if len(s) != 8 {
		return "", false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return "", false
	}
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return net.IP(b).String(), true
}

// StaticGateway is a fixed gateway address taken from configuration
type StaticGateway string

// DefaultGateway returns the configured address
func (g StaticGateway) DefaultGateway(_ context.Context) (string, error) {
	if g == "" {
		return "", errors.New(errors.CodeClassificationAmbiguity, "no gateway configured").WithOp("gateway")
	}
	return string(g), nil
}
