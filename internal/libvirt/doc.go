// Package libvirt attaches thin volumes to libvirt domains.
//
// The package wraps github.com/digitalocean/go-libvirt for the connection
// and libvirt.org/go/libvirtxml for disk and domain XML:
//
//	client, err := libvirt.Connect(ctx, "", 0)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	target, err := client.Attacher().Attach("work", libvirt.Disk{
//	    Path:    "/dev/qubes_dom0/vm-work-private-snap",
//	    DevType: "disk",
//	    RW:      true,
//	})
//
// Volumes are exposed as block devices on xvd[a-z] frontends. Attaching a
// device that is already attached returns its existing frontend.
//
// Consumer-Side Interfaces:
//
// Attacher depends on DomainClient, the four go-libvirt calls it makes.
// *libvirt.Libvirt satisfies it; tests substitute a fake.
package libvirt
