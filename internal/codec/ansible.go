package codec

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
	"topomap/internal/domain"
)

// AnsibleCodec exports live hosts as an Ansible inventory
type AnsibleCodec struct{}

// NewAnsibleCodec creates a new Ansible codec
func NewAnsibleCodec() *AnsibleCodec {
	return &AnsibleCodec{}
}

// Format returns the codec format identifier
func (c *AnsibleCodec) Format() string {
	return "ansible-inventory"
}

// ansibleInventory represents the Ansible inventory structure
type ansibleInventory struct {
	All ansibleGroup `yaml:"all"`
}

type ansibleGroup struct {
	Children map[string]ansibleGroupDef `yaml:"children,omitempty"`
}

type ansibleGroupDef struct {
	Hosts map[string]ansibleHost `yaml:"hosts,omitempty"`
}

type ansibleHost struct {
	AnsibleHost string                 `yaml:"ansible_host,omitempty"`
	Vars        map[string]interface{} `yaml:",inline"`
}

// Export writes one inventory host per live node. Nodes seen only as trace
// hops are left out. Hosts are grouped by role and then by OS family.
func (c *AnsibleCodec) Export(nodes []domain.Node, w io.Writer) error {
	inv := ansibleInventory{
		All: ansibleGroup{
			Children: make(map[string]ansibleGroupDef),
		},
	}

	for i := range nodes {
		node := &nodes[i]
		if node.Status != domain.NodeStatusUp {
			continue
		}

		groupName := inventoryGroup(node)
		group, ok := inv.All.Children[groupName]
		if !ok {
			group = ansibleGroupDef{Hosts: make(map[string]ansibleHost)}
			inv.All.Children[groupName] = group
		}

		host := ansibleHost{
			AnsibleHost: node.IP,
			Vars:        make(map[string]interface{}),
		}
		if node.MACAddress != "" {
			host.Vars["mac_address"] = node.MACAddress
		}
		if node.Vendor != "" {
			host.Vars["vendor"] = node.Vendor
		}
		if node.OS != "" {
			host.Vars["os"] = node.OS
		}
		if node.HopDistance != nil {
			host.Vars["hop_distance"] = *node.HopDistance
		}
		if len(node.OpenPorts) > 0 {
			ports := make([]int, 0, len(node.OpenPorts))
			for _, p := range node.OpenPorts {
				ports = append(ports, p.Port)
			}
			host.Vars["open_ports"] = ports
		}

		name := inventoryName(node)
		if _, dup := group.Hosts[name]; dup {
			name = node.IP
		}
		group.Hosts[name] = host
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(&inv); err != nil {
		return fmt.Errorf("failed to encode Ansible inventory: %w", err)
	}

	return nil
}

// inventoryGroup picks the group for a node from its role, then its OS
func inventoryGroup(node *domain.Node) string {
	switch node.NodeType {
	case domain.NodeTypeGateway:
		return "gateways"
	case domain.NodeTypeVantage:
		return "scanners"
	}

	osLower := strings.ToLower(node.OS)
	switch {
	case osLower == "":
		return "unclassified"
	case strings.Contains(osLower, "windows"):
		return "windows"
	case strings.Contains(osLower, "linux"):
		return "linux"
	case strings.Contains(osLower, "mac os") || strings.Contains(osLower, "macos") || strings.Contains(osLower, "apple"):
		return "apple"
	case strings.Contains(osLower, "bsd"):
		return "bsd"
	default:
		return "other"
	}
}

// inventoryName uses the short hostname when known, else the IP
func inventoryName(node *domain.Node) string {
	if node.Hostname != "" {
		if short, _, _ := strings.Cut(node.Hostname, "."); short != "" {
			return short
		}
	}
	return node.IP
}
