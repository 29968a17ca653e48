package libvirt

import (
	"fmt"

	"github.com/digitalocean/go-libvirt"
	libvirtxml "libvirt.org/go/libvirtxml"
)

// mockDomainClient keeps one domain definition per name and applies
// attach/detach to it.
type mockDomainClient struct {
	domains   map[string]*libvirtxml.Domain
	attachErr error

	attached []string
	detached []string
}

func newMockDomainClient() *mockDomainClient {
	return &mockDomainClient{domains: map[string]*libvirtxml.Domain{}}
}

func (m *mockDomainClient) addDomain(name string, targets map[string]string) {
	domain := &libvirtxml.Domain{Type: "xen", Name: name, Devices: &libvirtxml.DomainDeviceList{}}
	for dev, target := range targets {
		domain.Devices.Disks = append(domain.Devices.Disks, *diskDefinition(Disk{Path: dev, RW: true}, target))
	}
	m.domains[name] = domain
}

func (m *mockDomainClient) DomainLookupByName(name string) (libvirt.Domain, error) {
	if _, ok := m.domains[name]; !ok {
		return libvirt.Domain{}, fmt.Errorf("Domain not found: no domain with matching name '%s'", name)
	}
	return libvirt.Domain{Name: name}, nil
}

func (m *mockDomainClient) DomainGetXMLDesc(dom libvirt.Domain, _ libvirt.DomainXMLFlags) (string, error) {
	return m.domains[dom.Name].Marshal()
}

func (m *mockDomainClient) DomainAttachDevice(dom libvirt.Domain, xml string) error {
	if m.attachErr != nil {
		return m.attachErr
	}
	var disk libvirtxml.DomainDisk
	if err := disk.Unmarshal(xml); err != nil {
		return err
	}
	domain := m.domains[dom.Name]
	domain.Devices.Disks = append(domain.Devices.Disks, disk)
	m.attached = append(m.attached, xml)
	return nil
}

func (m *mockDomainClient) DomainDetachDevice(dom libvirt.Domain, xml string) error {
	var disk libvirtxml.DomainDisk
	if err := disk.Unmarshal(xml); err != nil {
		return err
	}
	domain := m.domains[dom.Name]
	kept := domain.Devices.Disks[:0]
	for _, d := range domain.Devices.Disks {
		if sourceDev(d) != sourceDev(disk) {
			kept = append(kept, d)
		}
	}
	domain.Devices.Disks = kept
	m.detached = append(m.detached, xml)
	return nil
}
