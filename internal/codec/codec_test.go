package codec

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	"topomap/internal/domain"
)

func snapshot() []domain.Node {
	one, two := 1, 2
	seen := time.Date(2024, 12, 5, 16, 1, 7, 0, time.UTC)

	gw := domain.NewNode("192.168.1.1", domain.NodeStatusUp)
	gw.NodeType = domain.NodeTypeGateway
	gw.HopDistance = &one
	gw.AddEdge("192.168.1.20")
	gw.LastSeen = seen

	pi := domain.NewNode("192.168.1.20", domain.NodeStatusUp)
	pi.Hostname = "pi.lan"
	pi.OS = "Linux 4.15 - 5.19"
	pi.MACAddress = "B8:27:EB:12:34:56"
	pi.HopDistance = &two
	pi.OpenPorts = []domain.Port{{Port: 22, Protocol: "tcp", Service: "ssh", Product: "OpenSSH", Version: "9.2p1"}}
	pi.AddEdge("192.168.1.1")
	pi.SetOther("os_accuracy", "98")

	hop := domain.NewPlaceholder("62.115.140.203", "")

	return []domain.Node{*gw, *pi, *hop}
}

func TestExporterFor(t *testing.T) {
	for _, format := range []string{"json", "YAML", "ansible-inventory"} {
		e, err := ExporterFor(format)
		require.NoError(t, err, format)
		assert.Equal(t, strings.ToLower(format), e.Format())
	}

	_, err := ExporterFor("csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ansible-inventory, json, yaml")
}

func TestJSONCodec_RoundTrip(t *testing.T) {
	c := NewJSONCodec()
	var buf bytes.Buffer
	require.NoError(t, c.Export(snapshot(), &buf))
	assert.Contains(t, buf.String(), `"connected_to": [`)

	nodes, err := c.Parse(&buf)
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, []string{"192.168.1.1"}, nodes[1].ConnectedTo.Sorted())
	assert.Equal(t, "98", nodes[1].OtherInfo["os_accuracy"])
	assert.NotNil(t, nodes[2].ConnectedTo)
}

func TestJSONCodec_EmptySnapshot(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJSONCodec().Export(nil, &buf))
	assert.Equal(t, "[]\n", buf.String())
}

func TestYAMLCodec_RoundTrip(t *testing.T) {
	c := NewYAMLCodec()
	var buf bytes.Buffer
	require.NoError(t, c.Export(snapshot(), &buf))

	var raw map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &raw))
	assert.Len(t, raw["edges"], 2)

	nodes, err := c.Parse(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, nodes, 3)

	gw := nodes[0]
	assert.Equal(t, domain.NodeTypeGateway, gw.NodeType)
	assert.Equal(t, 1, *gw.HopDistance)
	assert.True(t, gw.LastSeen.Equal(time.Date(2024, 12, 5, 16, 1, 7, 0, time.UTC)))

	pi := nodes[1]
	assert.Equal(t, snapshot()[1].OpenPorts, pi.OpenPorts)
	assert.Equal(t, "pi.lan", pi.Hostname)

	hop := nodes[2]
	assert.Equal(t, domain.NodeStatusUnknown, hop.Status)
	assert.Nil(t, hop.HopDistance)
}

func TestYAMLCodec_ParseErrors(t *testing.T) {
	_, err := NewYAMLCodec().Parse(strings.NewReader("nodes: [{status: up}]"))
	assert.Error(t, err)

	_, err = NewYAMLCodec().Parse(strings.NewReader("nodes: {"))
	assert.Error(t, err)
}

func TestAnsibleCodec_Export(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewAnsibleCodec().Export(snapshot(), &buf))

	var inv struct {
		All struct {
			Children map[string]struct {
				Hosts map[string]map[string]any `yaml:"hosts"`
			} `yaml:"children"`
		} `yaml:"all"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &inv))

	children := inv.All.Children
	require.Contains(t, children, "gateways")
	require.Contains(t, children, "linux")
	assert.NotContains(t, buf.String(), "62.115.140.203", "trace-only hops are not inventory hosts")

	pi := children["linux"].Hosts["pi"]
	assert.Equal(t, "192.168.1.20", pi["ansible_host"])
	assert.Equal(t, "B8:27:EB:12:34:56", pi["mac_address"])
	assert.Equal(t, []any{22}, pi["open_ports"])

	assert.Equal(t, "192.168.1.1", children["gateways"].Hosts["192.168.1.1"]["ansible_host"])
}

func TestInventoryGroup(t *testing.T) {
	tests := []struct {
		os   string
		want string
	}{
		{"", "unclassified"},
		{"Microsoft Windows 10 1607", "windows"},
		{"Linux 5.X", "linux"},
		{"Apple macOS 12", "apple"},
		{"FreeBSD 13.0", "bsd"},
		{"Cisco IOS XE", "other"},
		{"RouterOS 7", "other"},
	}
	for _, tt := range tests {
		t.Run(tt.os, func(t *testing.T) {
			n := domain.NewNode("10.0.0.2", domain.NodeStatusUp)
			n.OS = tt.os
			assert.Equal(t, tt.want, inventoryGroup(n))
		})
	}
}
