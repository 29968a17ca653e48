package libvirt

import (
	"fmt"

	"github.com/digitalocean/go-libvirt"
	libvirtxml "libvirt.org/go/libvirtxml"
)

// frontends are the disk targets handed out, in order.
var frontends = func() []string {
	out := make([]string, 0, 26)
	for c := 'a'; c <= 'z'; c++ {
		out = append(out, "xvd"+string(c))
	}
	return out
}()

// Disk is a block device to attach.
type Disk struct {
	Path          string // device node
	DevType       string // "disk" or "cdrom", empty means "disk"
	RW            bool
	BackendDomain string // domain serving the device, empty for the host
}

// DomainClient is the subset of *libvirt.Libvirt used by Attacher.
type DomainClient interface {
	DomainLookupByName(name string) (libvirt.Domain, error)
	DomainGetXMLDesc(dom libvirt.Domain, flags libvirt.DomainXMLFlags) (string, error)
	DomainAttachDevice(dom libvirt.Domain, xml string) error
	DomainDetachDevice(dom libvirt.Domain, xml string) error
}

func diskDefinition(d Disk, target string) *libvirtxml.DomainDisk {
	devType := d.DevType
	if devType == "" {
		devType = "disk"
	}

	disk := &libvirtxml.DomainDisk{
		Device: devType,
		Driver: &libvirtxml.DomainDiskDriver{
			Name: "phy",
		},
		Source: &libvirtxml.DomainDiskSource{
			Block: &libvirtxml.DomainDiskSourceBlock{
				Dev: d.Path,
			},
		},
		Target: &libvirtxml.DomainDiskTarget{
			Dev: target,
		},
	}
	if !d.RW {
		disk.ReadOnly = &libvirtxml.DomainDiskReadOnly{}
	}
	if d.BackendDomain != "" {
		disk.BackendDomain = &libvirtxml.DomainBackendDomain{Name: d.BackendDomain}
	}
	return disk
}

// DiskXML renders the <disk> element attaching d at target.
func DiskXML(d Disk, target string) (string, error) {
	xml, err := diskDefinition(d, target).Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal disk XML: %w", err)
	}
	return xml, nil
}

// Attacher hot-plugs disks into running domains.
type Attacher struct {
	client DomainClient
}

// NewAttacher returns an Attacher using client.
func NewAttacher(client DomainClient) *Attacher {
	return &Attacher{client: client}
}

func (a *Attacher) domainDisks(name string) (libvirt.Domain, []libvirtxml.DomainDisk, error) {
	dom, err := a.client.DomainLookupByName(name)
	if err != nil {
		return libvirt.Domain{}, nil, fmt.Errorf("domain %s not found: %w", name, err)
	}

	desc, err := a.client.DomainGetXMLDesc(dom, 0)
	if err != nil {
		return libvirt.Domain{}, nil, fmt.Errorf("failed to get XML of domain %s: %w", name, err)
	}

	var domain libvirtxml.Domain
	if err := domain.Unmarshal(desc); err != nil {
		return libvirt.Domain{}, nil, fmt.Errorf("failed to parse XML of domain %s: %w", name, err)
	}
	if domain.Devices == nil {
		return dom, nil, nil
	}
	return dom, domain.Devices.Disks, nil
}

func sourceDev(d libvirtxml.DomainDisk) string {
	if d.Source == nil || d.Source.Block == nil {
		return ""
	}
	return d.Source.Block.Dev
}

// Attach attaches d to the named domain and returns the frontend used.
// A device that is already attached is left alone.
func (a *Attacher) Attach(domain string, d Disk) (string, error) {
	dom, disks, err := a.domainDisks(domain)
	if err != nil {
		return "", err
	}

	used := map[string]bool{}
	for _, disk := range disks {
		if sourceDev(disk) == d.Path && disk.Target != nil {
			return disk.Target.Dev, nil
		}
		if disk.Target != nil {
			used[disk.Target.Dev] = true
		}
	}

	target := ""
	for _, f := range frontends {
		if !used[f] {
			target = f
			break
		}
	}
	if target == "" {
		return "", fmt.Errorf("no unused frontend found on domain %s", domain)
	}

	xml, err := DiskXML(d, target)
	if err != nil {
		return "", err
	}
	if err := a.client.DomainAttachDevice(dom, xml); err != nil {
		return "", fmt.Errorf("failed to attach %s to %s: %w", d.Path, domain, err)
	}

	return target, nil
}

// Detach removes the disk backed by path from the named domain.
func (a *Attacher) Detach(domain, path string) error {
	dom, disks, err := a.domainDisks(domain)
	if err != nil {
		return err
	}

	for _, disk := range disks {
		if sourceDev(disk) != path {
			continue
		}

		xml, err := disk.Marshal()
		if err != nil {
			return fmt.Errorf("failed to marshal disk XML: %w", err)
		}
		if err := a.client.DomainDetachDevice(dom, xml); err != nil {
			return fmt.Errorf("failed to detach %s from %s: %w", path, domain, err)
		}
		return nil
	}

	return fmt.Errorf("device %s is not attached to domain %s", path, domain)
}
