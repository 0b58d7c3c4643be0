package netinfo

import (
	"context"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"topomap/internal/errors"
)

const routeHeader = "Iface\tDestination\tGateway \tFlags\tRefCnt\tUse\tMetric\tMask\t\tMTU\tWindow\tIRTT\n"

func writeRoutes(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "route")
	require.NoError(t, os.WriteFile(path, []byte(routeHeader+body), 0o644))
	return path
}

func TestRouteTableResolver(t *testing.T) {
	tests := []struct {
		name    string
		routes  string
		want    string
		wantErr bool
	}{
		{
			name: "single default route",
			routes: "eth0\t00000000\t0101A8C0\t0003\t0\t0\t100\t00000000\t0\t0\t0\n" +
				"eth0\t0001A8C0\t00000000\t0001\t0\t0\t100\t00FFFFFF\t0\t0\t0\n",
			want: "192.168.1.1",
		},
		{
			name: "lowest metric wins",
			routes: "wlan0\t00000000\t0100000A\t0003\t0\t0\t600\t00000000\t0\t0\t0\n" +
				"eth0\t00000000\t0101A8C0\t0003\t0\t0\t100\t00000000\t0\t0\t0\n",
			want: "192.168.1.1",
		},
		{
			name:    "no default route",
			routes:  "eth0\t0001A8C0\t00000000\t0001\t0\t0\t100\t00FFFFFF\t0\t0\t0\n",
			wantErr: true,
		},
		{
			name:    "malformed gateway",
			routes:  "eth0\t00000000\tZZZZ\t0003\t0\t0\t100\t00000000\t0\t0\t0\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouteTableResolver(writeRoutes(t, tt.routes))
			got, err := r.DefaultGateway(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.CodeClassificationAmbiguity))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRouteTableResolver_MissingFile(t *testing.T) {
	r := NewRouteTableResolver(filepath.Join(t.TempDir(), "absent"))
	_, err := r.DefaultGateway(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeClassificationAmbiguity))
}

func TestStaticGateway(t *testing.T) {
	gw, err := StaticGateway("10.0.0.1").DefaultGateway(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", gw)

	_, err = StaticGateway("").DefaultGateway(context.Background())
	assert.Error(t, err)
}

func TestVantageFor(t *testing.T) {
	_, lan, _ := net.ParseCIDR("192.168.1.0/24")
	lanAddr := &net.IPNet{IP: net.ParseIP("192.168.1.50").To4(), Mask: lan.Mask}

	ifaces := []interfaceAddrs{
		{Name: "docker0", MAC: "02:42:AC:11:00:01", Addrs: []*net.IPNet{{IP: net.ParseIP("172.17.0.1").To4(), Mask: net.CIDRMask(16, 32)}}},
		{Name: "eth0", MAC: "DC:A6:32:00:00:01", Addrs: []*net.IPNet{lanAddr}},
	}

	v := vantageFor(net.ParseIP("192.168.1.50").To4(), ifaces)
	assert.Equal(t, "192.168.1.50", v.IP)
	assert.Equal(t, "192.168.1.0/24", v.Subnet.String())
	assert.Equal(t, "DC:A6:32:00:00:01", v.MAC)
	assert.Equal(t, "eth0", v.Interface)

	t.Run("unknown interface falls back to inference", func(t *testing.T) {
		v := vantageFor(net.ParseIP("10.244.3.7").To4(), nil)
		assert.Equal(t, "10.244.0.0/16", v.Subnet.String())
		assert.Empty(t, v.MAC)
	})
}

func TestVantageFromConfig(t *testing.T) {
	v, err := VantageFromConfig("10.0.0.5", "10.0.0.0/24")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", v.IP)
	assert.True(t, v.Subnet.Contains(mustAddr(t, "10.0.0.1")))

	v, err = VantageFromConfig("192.168.7.20", "")
	require.NoError(t, err)
	assert.Equal(t, "192.168.7.0/24", v.Subnet.String())

	_, err = VantageFromConfig("nope", "")
	assert.True(t, errors.IsCode(err, errors.CodeValidation))
}

func mustAddr(t *testing.T, s string) netip.Addr {
	t.Helper()
	a, err := netip.ParseAddr(s)
	require.NoError(t, err)
	return a
}

func TestRawSocketAvailable_RootAlwaysAllowed(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("requires root")
	}
	assert.True(t, RawSocketAvailable())
}
