package adapter

import (
	"bytes"
	"encoding/xml"
	"io"
	"sort"
	"strconv"
	"strings"

	nmap "github.com/Ullaakut/nmap/v3"
	"topomap/internal/domain"
	"topomap/internal/errors"
)

const unknownValue = "unknown"

// Normalize converts a raw nmap report into host records with their
// traceroute hops attached.
//
// An unparsable report yields a PARSE_FAILURE error, or TOOL_REPORTED when the
// tool itself reported errors for the run.
func Normalize(raw *RawScan) ([]domain.HostScanRecord, error) {
	if raw == nil || len(bytes.TrimSpace(raw.XML)) == 0 {
		return nil, unparsable(raw, io.ErrUnexpectedEOF)
	}

	run := &nmap.Run{}
	if err := nmap.Parse(raw.XML, run); err != nil {
		return nil, unparsable(raw, err)
	}

	traces, err := parseTraces(raw.XML)
	if err != nil {
		return nil, unparsable(raw, err)
	}

	records := make([]domain.HostScanRecord, 0, len(run.Hosts))
	for _, host := range run.Hosts {
		rec, ok := recordFromHost(host)
		if !ok {
			continue
		}
		records = append(records, rec)
	}

	mergeTraces(records, traces)
	return records, nil
}

func unparsable(raw *RawScan, cause error) error {
	target := ""
	if raw != nil {
		target = raw.Target
		if len(raw.ToolErrors) > 0 {
			return errors.Wrap(errors.CodeToolReported, strings.Join(raw.ToolErrors, "; "), cause).
				WithTarget(target).WithOp("normalize")
		}
	}
	return errors.Wrap(errors.CodeParseFailure, "unparsable scan output", cause).
		WithTarget(target).WithOp("normalize")
}

// recordFromHost converts one library host into a record. Hosts without a
// usable address are dropped.
func recordFromHost(host nmap.Host) (domain.HostScanRecord, bool) {
	rec := domain.HostScanRecord{Status: domain.NodeStatusUp}

	var v4, v6 string
	for _, addr := range host.Addresses {
		switch addr.AddrType {
		case "ipv4":
			v4 = addr.Addr
		case "ipv6":
			v6 = addr.Addr
		case "mac":
			rec.MACAddress = strings.ToUpper(addr.Addr)
			rec.Vendor = addr.Vendor
		}
	}
	rec.IP = v4
	if rec.IP == "" {
		rec.IP = v6
	}
	if rec.IP == "" {
		return rec, false
	}

	if host.Status.State == string(domain.NodeStatusDown) {
		rec.Status = domain.NodeStatusDown
	}

	for _, hn := range host.Hostnames {
		if hn.Name != "" {
			rec.Hostnames = append(rec.Hostnames, hn.Name)
		}
	}

	for _, port := range host.Ports {
		if port.State.State != "open" {
			continue
		}
		rec.Ports = append(rec.Ports, domain.Port{
			Port:     int(port.ID),
			Protocol: port.Protocol,
			Service:  orUnknown(port.Service.Name),
			Version:  orUnknown(port.Service.Version),
			Product:  orUnknown(port.Service.Product),
		})
	}

	// First match is nmap's best guess
	if len(host.OS.Matches) > 0 {
		rec.OS = host.OS.Matches[0].Name
		rec.OSAccuracy = int(host.OS.Matches[0].Accuracy)
	}

	return rec, true
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknownValue
	}
	return s
}

// xmlTraceHost is the minimal shape of <host> needed to recover traces
type xmlTraceHost struct {
	Addresses []struct {
		Addr     string `xml:"addr,attr"`
		AddrType string `xml:"addrtype,attr"`
	} `xml:"address"`
	Trace struct {
		Hops []struct {
			TTL    string `xml:"ttl,attr"`
			IPAddr string `xml:"ipaddr,attr"`
			RTT    string `xml:"rtt,attr"`
			Host   string `xml:"host,attr"`
		} `xml:"hop"`
	} `xml:"trace"`
}

// parseTraces streams the report and returns the hop list of every host that
// has one, keyed by the host's IP address. Hops keep their report order;
// missing TTLs are left as gaps.
func parseTraces(data []byte) (map[string][]domain.Hop, error) {
	traces := make(map[string][]domain.Hop)
	dec := xml.NewDecoder(bytes.NewReader(data))

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return traces, nil
		}
		if err != nil {
			return nil, err
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "host" {
			continue
		}

		var h xmlTraceHost
		if err := dec.DecodeElement(&h, &start); err != nil {
			return nil, err
		}

		ip := traceHostIP(h)
		if ip == "" || len(h.Trace.Hops) == 0 {
			continue
		}

		hops := make([]domain.Hop, 0, len(h.Trace.Hops))
		for _, xh := range h.Trace.Hops {
			ttl, err := strconv.Atoi(strings.TrimSpace(xh.TTL))
			if err != nil || ttl <= 0 || xh.IPAddr == "" {
				continue
			}
			// nmap reports "--" for hops that timed out
			rtt, err := strconv.ParseFloat(strings.TrimSpace(xh.RTT), 64)
			if err != nil {
				rtt = 0
			}
			hops = append(hops, domain.Hop{
				IP:   xh.IPAddr,
				TTL:  ttl,
				RTT:  rtt,
				Host: xh.Host,
			})
		}
		if len(hops) > 0 {
			traces[ip] = hops
		}
	}
}

func traceHostIP(h xmlTraceHost) string {
	var fallback string
	for _, a := range h.Addresses {
		switch a.AddrType {
		case "ipv4":
			return a.Addr
		case "ipv6":
			if fallback == "" {
				fallback = a.Addr
			}
		}
	}
	return fallback
}

// mergeTraces attaches hop lists to records by IP. The hop list is replaced,
// so merging the same traces twice leaves the records unchanged.
func mergeTraces(records []domain.HostScanRecord, traces map[string][]domain.Hop) {
	for i := range records {
		hops, ok := traces[records[i].IP]
		if !ok {
			continue
		}
		records[i].Hops = append([]domain.Hop(nil), hops...)
	}
}

// UpHosts filters records to hosts that answered, sorted by IP
func UpHosts(records []domain.HostScanRecord) []domain.HostScanRecord {
	up := make([]domain.HostScanRecord, 0, len(records))
	for _, r := range records {
		if r.Up() {
			up = append(up, r)
		}
	}
	sort.Slice(up, func(i, j int) bool { return domain.LessIP(up[i].IP, up[j].IP) })
	return up
}
