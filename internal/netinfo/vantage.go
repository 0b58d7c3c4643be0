package netinfo

import (
	"fmt"
	"net"
	"net/netip"
	"strings"

	"topomap/internal/errors"
)

// DefaultProbeAddr is dialed (UDP, nothing is sent) to learn the outbound address
const DefaultProbeAddr = "8.8.8.8:53"

// Vantage describes the scanning host
type Vantage struct {
	IP        string       `json:"ip"`
	Subnet    netip.Prefix `json:"subnet"`
	MAC       string       `json:"mac,omitempty"`
	Interface string       `json:"interface,omitempty"`
}

// interfaceAddrs is the subset of net.Interface used to locate the vantage
type interfaceAddrs struct {
	Name  string
	MAC   string
	Addrs []*net.IPNet
}

// DetectVantage finds the outbound address towards probeAddr and the local
// subnet and MAC of the interface carrying it
func DetectVantage(probeAddr string) (Vantage, error) {
	if probeAddr == "" {
		probeAddr = DefaultProbeAddr
	}

	conn, err := net.Dial("udp", probeAddr)
	if err != nil {
		return Vantage{}, errors.Wrap(errors.CodeProbeFailure, "cannot determine outbound address", err).WithOp("vantage")
	}
	defer conn.Close()

	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || local.IP.To4() == nil {
		return Vantage{}, errors.New(errors.CodeProbeFailure, "outbound address is not IPv4").WithOp("vantage")
	}

	ifaces, err := listInterfaces()
	if err != nil {
		return Vantage{}, errors.Wrap(errors.CodeProbeFailure, "cannot list interfaces", err).WithOp("vantage")
	}

	return vantageFor(local.IP.To4(), ifaces), nil
}

// VantageFromConfig builds a vantage from explicit settings
func VantageFromConfig(ip, subnet string) (Vantage, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return Vantage{}, errors.Wrap(errors.CodeValidation, "invalid vantage address", err)
	}
	v := Vantage{IP: addr.String()}
	if subnet == "" {
		v.Subnet = inferSubnet(net.IP(addr.AsSlice()))
		return v, nil
	}
	prefix, err := netip.ParsePrefix(subnet)
	if err != nil {
		return Vantage{}, errors.Wrap(errors.CodeValidation, "invalid local subnet", err)
	}
	v.Subnet = prefix.Masked()
	return v, nil
}

func listInterfaces() ([]interfaceAddrs, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var out []interfaceAddrs
	for _, iface := range ifaces {
		// Skip loopback and down interfaces
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		ia := interfaceAddrs{Name: iface.Name, MAC: strings.ToUpper(iface.HardwareAddr.String())}
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok {
				ia.Addrs = append(ia.Addrs, ipnet)
			}
		}
		out = append(out, ia)
	}
	return out, nil
}

// vantageFor locates ip among the interfaces. Without a match the subnet is
// inferred from the address class.
func vantageFor(ip net.IP, ifaces []interfaceAddrs) Vantage {
	v := Vantage{IP: ip.String()}
	for _, iface := range ifaces {
		for _, ipnet := range iface.Addrs {
			if !ipnet.IP.Equal(ip) {
				continue
			}
			ones, _ := ipnet.Mask.Size()
			if prefix, err := netip.ParsePrefix(fmt.Sprintf("%s/%d", ip.String(), ones)); err == nil {
				v.Subnet = prefix.Masked()
			}
			v.MAC = iface.MAC
			v.Interface = iface.Name
			return v
		}
	}
	v.Subnet = inferSubnet(ip)
	return v
}

// inferSubnet guesses the local subnet from common private addressing
func inferSubnet(ip net.IP) netip.Prefix {
	ip4 := ip.To4()
	if ip4 == nil {
		return netip.Prefix{}
	}
	bits := 24
	// Pod networks (10.42.x.x, 10.244.x.x) are /16
	if ip4[0] == 10 && (ip4[1] == 42 || ip4[1] == 244) {
		bits = 16
	}
	addr, _ := netip.AddrFromSlice(ip4)
	return netip.PrefixFrom(addr, bits).Masked()
}
