package adapter

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"
)

// maxChunks caps how many sweep chunks one range may expand to
const maxChunks = 1024

// ChunkTargets splits a target range into CIDR blocks of the given prefix
// length so a sweep can be cancelled between blocks. Ranges already at or
// below the chunk size, and single addresses, are returned unchanged.
func ChunkTargets(target string, prefix int) ([]string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, fmt.Errorf("empty target")
	}

	_, ipNet, err := net.ParseCIDR(target)
	if err != nil {
		// Try parsing as single IP
		if ip := net.ParseIP(target); ip != nil {
			return []string{ip.String()}, nil
		}
		return nil, err
	}

	ip := ipNet.IP.To4()
	if ip == nil {
		// nmap handles IPv6 ranges itself
		return []string{ipNet.String()}, nil
	}

	ones, _ := ipNet.Mask.Size()
	if prefix <= 0 || prefix > 32 || ones >= prefix {
		return []string{ipNet.String()}, nil
	}

	count := 1 << uint(prefix-ones)
	if count > maxChunks {
		return nil, fmt.Errorf("range %s splits into %d chunks (max %d)", target, count, maxChunks)
	}

	base := binary.BigEndian.Uint32(ip)
	step := uint32(1) << uint(32-prefix)

	chunks := make([]string, 0, count)
	for i := 0; i < count; i++ {
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, base+uint32(i)*step)
		chunks = append(chunks, fmt.Sprintf("%s/%d", net.IP(b).String(), prefix))
	}
	return chunks, nil
}
