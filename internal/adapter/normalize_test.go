package adapter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"topomap/internal/domain"
	"topomap/internal/errors"
)

func loadRaw(t *testing.T, name string) *RawScan {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return &RawScan{Target: name, XML: data}
}

func findRecord(records []domain.HostScanRecord, ip string) *domain.HostScanRecord {
	for i := range records {
		if records[i].IP == ip {
			return &records[i]
		}
	}
	return nil
}

func TestNormalize_ExternalTrace(t *testing.T) {
	records, err := Normalize(loadRaw(t, "external_trace.xml"))
	require.NoError(t, err)
	require.Len(t, records, 2)

	rec := findRecord(records, "49.12.234.183")
	require.NotNil(t, rec)
	assert.Equal(t, "v4.ident.me", rec.Hostname())
	require.Len(t, rec.Hops, 7)

	assert.Equal(t, domain.Hop{IP: "62.115.140.203", TTL: 6, RTT: 29.0, Host: "nug-b2-link.ip.twelve99.net"}, rec.Hops[0])
	assert.Equal(t, "49.12.234.183", rec.Hops[6].IP)

	// ttl 11 is missing from the report and must stay missing
	assert.Equal(t, 10, rec.Hops[4].TTL)
	assert.Equal(t, 12, rec.Hops[5].TTL)
}

func TestNormalize_PreservesHopOrder(t *testing.T) {
	records, err := Normalize(loadRaw(t, "external_trace.xml"))
	require.NoError(t, err)

	rec := findRecord(records, "49.12.234.182")
	require.NotNil(t, rec)

	var ttls []int
	for _, h := range rec.Hops {
		ttls = append(ttls, h.TTL)
	}
	assert.Equal(t, []int{6, 7, 8, 9, 10, 12, 13}, ttls)
}

func TestNormalize_Enrichment(t *testing.T) {
	records, err := Normalize(loadRaw(t, "local_enrich.xml"))
	require.NoError(t, err)
	require.Len(t, records, 2)

	pi := findRecord(records, "192.168.1.20")
	require.NotNil(t, pi)
	assert.Equal(t, domain.NodeStatusUp, pi.Status)
	assert.Equal(t, "B8:27:EB:12:34:56", pi.MACAddress)
	assert.Equal(t, "Raspberry Pi Foundation", pi.Vendor)
	assert.Equal(t, "Linux 4.15 - 5.19", pi.OS)
	assert.Equal(t, 98, pi.OSAccuracy)
	assert.Empty(t, pi.Hops)

	require.Len(t, pi.Ports, 2, "filtered ports are not open")
	assert.Equal(t, domain.Port{Port: 22, Protocol: "tcp", Service: "ssh", Version: "9.2p1 Debian 2", Product: "OpenSSH"}, pi.Ports[0])
	assert.Equal(t, domain.Port{Port: 80, Protocol: "tcp", Service: "http", Version: "unknown", Product: "unknown"}, pi.Ports[1])

	down := findRecord(records, "192.168.1.21")
	require.NotNil(t, down)
	assert.Equal(t, domain.NodeStatusDown, down.Status)

	up := UpHosts(records)
	require.Len(t, up, 1)
	assert.Equal(t, "192.168.1.20", up[0].IP)
}

func TestNormalize_LocalSweep(t *testing.T) {
	records, err := Normalize(loadRaw(t, "local_sweep.xml"))
	require.NoError(t, err)

	up := UpHosts(records)
	require.Len(t, up, 2)
	assert.Equal(t, "10.0.0.1", up[0].IP)
	assert.Equal(t, "10.0.0.2", up[1].IP)

	require.Len(t, up[1].Hops, 2)
	assert.Equal(t, 3, up[1].Hops[1].TTL)
	assert.Zero(t, up[1].Hops[1].RTT, "timed out rtt is reported as zero")
}

func TestNormalize_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  *RawScan
		code errors.ErrorCode
	}{
		{
			name: "nil scan",
			raw:  nil,
			code: errors.CodeParseFailure,
		},
		{
			name: "empty output",
			raw:  &RawScan{Target: "10.0.0.0/24"},
			code: errors.CodeParseFailure,
		},
		{
			name: "truncated output",
			raw:  &RawScan{Target: "10.0.0.0/24", XML: []byte(`<?xml version="1.0"?><nmaprun><host><address addr="10.0.0.1"`)},
			code: errors.CodeParseFailure,
		},
		{
			name: "tool errors take precedence",
			raw: &RawScan{
				Target:     "10.0.0.0/24",
				XML:        []byte("Failed to open device eth9"),
				ToolErrors: []string{"Failed to open device eth9"},
			},
			code: errors.CodeToolReported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := Normalize(tt.raw)
			require.Error(t, err)
			assert.Nil(t, records)
			assert.True(t, errors.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestNormalize_ToolErrorsWithParsableOutput(t *testing.T) {
	raw := loadRaw(t, "local_sweep.xml")
	raw.ToolErrors = []string{"exit status 1"}

	records, err := Normalize(raw)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestMergeTracesIsIdempotent(t *testing.T) {
	records := []domain.HostScanRecord{{IP: "1.1.1.2"}, {IP: "10.0.0.7"}}
	traces := map[string][]domain.Hop{
		"1.1.1.2": {{IP: "1.1.1.1", TTL: 3}, {IP: "1.1.1.2", TTL: 5}},
	}

	mergeTraces(records, traces)
	mergeTraces(records, traces)

	assert.Len(t, records[0].Hops, 2)
	assert.Empty(t, records[1].Hops)

	// Records must not alias the trace map
	records[0].Hops[0].IP = "changed"
	assert.Equal(t, "1.1.1.1", traces["1.1.1.2"][0].IP)
}

func TestParseTraces_SkipsHopsWithoutAddress(t *testing.T) {
	data := []byte(`<nmaprun><host><address addr="10.0.0.2" addrtype="ipv4"/>
<trace><hop ttl="1" ipaddr="10.0.0.1" rtt="1.0"/><hop ttl="2"/><hop ttl="x" ipaddr="9.9.9.9"/><hop ttl="3" ipaddr="10.0.0.2" rtt="2.5"/></trace></host></nmaprun>`)

	traces, err := parseTraces(data)
	require.NoError(t, err)
	require.Len(t, traces["10.0.0.2"], 2)
	assert.Equal(t, 2.5, traces["10.0.0.2"][1].RTT)
}
