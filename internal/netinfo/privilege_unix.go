//go:build unix

package netinfo

import (
	"os"
	"syscall"
)

// RawSocketAvailable reports whether this process may open raw ICMP sockets.
// nmap needs them for OS fingerprinting and for traceroute.
func RawSocketAvailable() bool {
	if os.Geteuid() == 0 {
		return true
	}
	// CAP_NET_RAW without root
	fd, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_RAW, syscall.IPPROTO_ICMP)
	if err != nil {
		return false
	}
	_ = syscall.Close(fd)
	return true
}
