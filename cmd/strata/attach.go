package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jbweber/strata/internal/libvirt"
)

// Flags
var (
	libvirtSocket string
)

func init() {
	for _, cmd := range []*cobra.Command{attachCmd, detachCmd} {
		cmd.Flags().StringVar(&libvirtSocket, "socket", libvirt.DefaultSocket, "Path to the libvirt control socket")
	}
}

// withAttacher connects to libvirt for the duration of fn.
func withAttacher(ctx context.Context, fn func(a *libvirt.Attacher) error) error {
	client, err := libvirt.Connect(ctx, libvirtSocket, libvirt.DefaultTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to libvirt: %w", err)
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close libvirt connection: %v\n", closeErr)
		}
	}()

	return fn(client.Attacher())
}

var attachCmd = &cobra.Command{
	Use:   "attach <domain> <vm:volume>",
	Short: "Attach a volume's block device to a libvirt domain",
	Long: `Attach the device a running VM should see for the volume (its snapshot
for persistent and snapshot volumes, the volume itself when volatile) to a
libvirt domain. The lowest free xvd* target is used.

The volume should be started first.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		domain, ref := args[0], args[1]

		ctx := cmd.Context()
		v, err := loadVolume(ctx, ref)
		if err != nil {
			return err
		}

		dev := v.BlockDevice()
		return withAttacher(ctx, func(a *libvirt.Attacher) error {
			target, err := a.Attach(domain, libvirt.Disk{
				Path:          dev.Path,
				DevType:       dev.DevType,
				RW:            dev.RW,
				BackendDomain: dev.Domain,
			})
			if err != nil {
				return fmt.Errorf("failed to attach %s to %s: %w", ref, domain, err)
			}
			fmt.Printf("✓ Attached %s to %s as %s\n", dev.Path, domain, target)
			return nil
		})
	},
}

var detachCmd = &cobra.Command{
	Use:   "detach <domain> <vm:volume>",
	Short: "Detach a volume's block device from a libvirt domain",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		domain, ref := args[0], args[1]

		ctx := cmd.Context()
		v, err := loadVolume(ctx, ref)
		if err != nil {
			return err
		}

		path := v.BlockDevice().Path
		return withAttacher(ctx, func(a *libvirt.Attacher) error {
			if err := a.Detach(domain, path); err != nil {
				return fmt.Errorf("failed to detach %s from %s: %w", ref, domain, err)
			}
			fmt.Printf("✓ Detached %s from %s\n", path, domain)
			return nil
		})
	},
}
