//go:build !unix

package netinfo

// RawSocketAvailable always reports false where raw sockets cannot be probed
func RawSocketAvailable() bool {
	return false
}
