package domain

// Hop is one point on a traced path
type Hop struct {
	IP   string  `json:"ip"`
	TTL  int     `json:"ttl"`
	RTT  float64 `json:"rtt"`
	Host string  `json:"host,omitempty"`
}

// HostScanRecord is the normalized result of probing one host.
// Empty strings mean the probe did not report the field.
type HostScanRecord struct {
	IP         string     `json:"ip"`
	Status     NodeStatus `json:"status"`
	MACAddress string     `json:"mac_address,omitempty"`
	Vendor     string     `json:"vendor,omitempty"`
	Hostnames  []string   `json:"hostnames,omitempty"`
	Ports      []Port     `json:"ports,omitempty"`
	OS         string     `json:"os,omitempty"`
	OSAccuracy int        `json:"os_accuracy,omitempty"`
	Hops       []Hop      `json:"hops,omitempty"`
}

// Up reports whether the host answered
func (r *HostScanRecord) Up() bool {
	return r.Status != NodeStatusDown
}

// Hostname returns the first reported name, if any
func (r *HostScanRecord) Hostname() string {
	if len(r.Hostnames) == 0 {
		return ""
	}
	return r.Hostnames[0]
}

// ToNode converts the record to a node carrying only the fields the record
// actually reports, suitable for merging into the registry.
func (r *HostScanRecord) ToNode() Node {
	node := NewNode(r.IP, r.Status)
	node.MACAddress = r.MACAddress
	node.Vendor = r.Vendor
	node.Hostname = r.Hostname()
	node.OS = r.OS
	if len(r.Ports) > 0 {
		node.OpenPorts = append(node.OpenPorts, r.Ports...)
	}
	return *node
}
