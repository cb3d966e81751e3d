package codec

import (
	"fmt"
	"io"
	"net"
	"sort"
	"strings"

	"reconstore/internal/domain"

	"gopkg.in/yaml.v3"
)

// Inventory group names the Ansible codec writes besides one group per domain
const (
	groupDomainControllers = "domain_controllers"
	groupSigningDisabled   = "smb_signing_disabled"
	groupNoDomain          = "workgroup"
)

// AnsibleCodec exports computers as an Ansible inventory and reads one back.
// Only the computers table takes part; other tables are left empty on Parse.
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
	Hosts    map[string]ansibleHost     `yaml:"hosts,omitempty"`
}

type ansibleGroupDef struct {
	Hosts map[string]ansibleHost `yaml:"hosts,omitempty"`
}

type ansibleHost struct {
	AnsibleHost string `yaml:"ansible_host,omitempty"`
	Domain      string `yaml:"smb_domain,omitempty"`
	OS          string `yaml:"smb_os,omitempty"`
	DC          bool   `yaml:"smb_dc,omitempty"`
	SMBv1       bool   `yaml:"smb_v1,omitempty"`
	Signing     bool   `yaml:"smb_signing,omitempty"`
	Spooler     bool   `yaml:"smb_spooler,omitempty"`
	Zerologon   bool   `yaml:"smb_zerologon,omitempty"`
	PetitPotam  bool   `yaml:"smb_petitpotam,omitempty"`
}

// Parse reads computers from an Ansible inventory. A host listed in several
// groups becomes one computer.
func (c *AnsibleCodec) Parse(r io.Reader) (*domain.Snapshot, error) {
	var inv ansibleInventory
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&inv); err != nil {
		return nil, fmt.Errorf("failed to parse Ansible inventory: %w", err)
	}

	byIP := make(map[string]domain.Computer)
	add := func(name string, host ansibleHost) {
		comp := c.hostToComputer(name, host)
		if comp.IP == "" {
			return
		}
		if prev, ok := byIP[comp.IP]; ok {
			comp = mergeComputers(prev, comp)
		}
		byIP[comp.IP] = comp
	}

	for groupName, group := range inv.All.Children {
		for name, host := range group.Hosts {
			if groupName == groupDomainControllers {
				host.DC = true
			}
			add(name, host)
		}
	}
	for name, host := range inv.All.Hosts {
		add(name, host)
	}

	snap := &domain.Snapshot{}
	for _, comp := range byIP {
		snap.Computers = append(snap.Computers, comp)
	}
	sort.Slice(snap.Computers, func(i, j int) bool {
		return snap.Computers[i].IP < snap.Computers[j].IP
	})

	return snap, nil
}

// hostToComputer converts an inventory entry. The entry name is the hostname
// unless it is itself an address.
func (c *AnsibleCodec) hostToComputer(name string, host ansibleHost) domain.Computer {
	comp := domain.Computer{
		IP:         host.AnsibleHost,
		Domain:     host.Domain,
		OS:         host.OS,
		DC:         host.DC,
		SMBv1:      host.SMBv1,
		Signing:    host.Signing,
		Spooler:    host.Spooler,
		Zerologon:  host.Zerologon,
		PetitPotam: host.PetitPotam,
	}

	if net.ParseIP(name) != nil {
		if comp.IP == "" {
			comp.IP = name
		}
	} else {
		comp.Hostname = name
	}

	return comp
}

// mergeComputers combines two entries for the same address: text fields keep
// the first non-empty value and flags are set if either entry sets them
func mergeComputers(a, b domain.Computer) domain.Computer {
	first := func(x, y string) string {
		if x != "" {
			return x
		}
		return y
	}

	return domain.Computer{
		IP:         a.IP,
		Hostname:   first(a.Hostname, b.Hostname),
		Domain:     first(a.Domain, b.Domain),
		OS:         first(a.OS, b.OS),
		DC:         a.DC || b.DC,
		SMBv1:      a.SMBv1 || b.SMBv1,
		Signing:    a.Signing || b.Signing,
		Spooler:    a.Spooler || b.Spooler,
		Zerologon:  a.Zerologon || b.Zerologon,
		PetitPotam: a.PetitPotam || b.PetitPotam,
	}
}

// Export writes one group per domain plus groups for domain controllers and
// hosts without SMB signing
func (c *AnsibleCodec) Export(snap *domain.Snapshot, w io.Writer) error {
	inv := ansibleInventory{
		All: ansibleGroup{
			Children: make(map[string]ansibleGroupDef),
		},
	}

	addTo := func(group, name string, host ansibleHost) {
		def, ok := inv.All.Children[group]
		if !ok {
			def = ansibleGroupDef{Hosts: make(map[string]ansibleHost)}
			inv.All.Children[group] = def
		}
		def.Hosts[name] = host
	}

	for _, comp := range snap.Computers {
		name := comp.Hostname
		if name == "" {
			name = comp.IP
		}

		host := ansibleHost{
			AnsibleHost: comp.IP,
			Domain:      comp.Domain,
			OS:          comp.OS,
			DC:          comp.DC,
			SMBv1:       comp.SMBv1,
			Signing:     comp.Signing,
			Spooler:     comp.Spooler,
			Zerologon:   comp.Zerologon,
			PetitPotam:  comp.PetitPotam,
		}

		group := groupNoDomain
		if comp.Domain != "" {
			group = inventoryGroupName(comp.Domain)
		}
		addTo(group, name, host)

		if comp.DC {
			addTo(groupDomainControllers, name, host)
		}
		if !comp.Signing {
			addTo(groupSigningDisabled, name, host)
		}
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(&inv); err != nil {
		return fmt.Errorf("failed to encode Ansible inventory: %w", err)
	}

	return nil
}

// inventoryGroupName makes a domain usable as an Ansible group name
func inventoryGroupName(domainName string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return '_'
	}, domainName)
}
