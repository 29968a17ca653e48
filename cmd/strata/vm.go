package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/cobra"

	"github.com/jbweber/strata/internal/output"
	"github.com/jbweber/strata/internal/storage"
	"github.com/jbweber/strata/internal/vm"
)

// VM-level commands
var vmCmd = &cobra.Command{
	Use:   "vm",
	Short: "Operate on all volumes of a VM",
	Long: `Run a volume operation on every volume declared for a VM.

Start, stop, create and verify run on all volumes concurrently; the first
failure is reported. Remove always attempts every volume.`,
}

func init() {
	vmCmd.AddCommand(vmOpCmd("create", "Create all persistent volumes of a VM", (*vm.Storage).Create))
	vmCmd.AddCommand(vmOpCmd("start", "Prepare all volumes for a VM start", (*vm.Storage).Start))
	vmCmd.AddCommand(vmOpCmd("stop", "Commit or discard all volumes after a VM stop", (*vm.Storage).Stop))
	vmCmd.AddCommand(vmOpCmd("verify", "Check all volumes of a VM", (*vm.Storage).Verify))
	vmCmd.AddCommand(vmOpCmd("remove", "Remove all volumes of a VM", (*vm.Storage).Remove))
	vmCmd.AddCommand(vmUsageCmd)
	vmCmd.AddCommand(vmDevicesCmd)
	vmCmd.AddCommand(vmCloneCmd)
}

func vmOpCmd(name, short string, op func(*vm.Storage, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <vm-name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := loadVM(ctx, args[0])
			if err != nil {
				return err
			}
			if err := op(s, ctx); err != nil {
				return err
			}
			fmt.Printf("✓ VM %s: %s done for %s\n", args[0], name, strings.Join(s.Names(), ", "))
			return nil
		},
	}
}

func loadVM(ctx context.Context, vmName string) (*vm.Storage, error) {
	rt, err := loadRuntime(ctx)
	if err != nil {
		return nil, err
	}
	return rt.vm(strings.ToLower(vmName))
}

var vmUsageCmd = &cobra.Command{
	Use:   "usage <vm-name>",
	Short: "Show disk usage of a VM",
	Long: `Show every volume of a VM, the total allocated bytes and any
snapshot that predates the current revision of its source.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadVM(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		volumes := make([]*storage.Volume, 0, len(s.Names()))
		for _, name := range s.Names() {
			v, _ := s.Volume(name)
			volumes = append(volumes, v)
		}
		if err := printVolumes(volumes); err != nil {
			return err
		}

		if output.Format(outputFormat) != output.FormatTable {
			return nil
		}
		fmt.Printf("\nTotal usage: %s\n", datasize.ByteSize(s.DiskUtilization()).HumanReadable())
		if outdated := s.OutdatedVolumes(); len(outdated) > 0 {
			fmt.Printf("Outdated: %s (restart the VM to pick up the new source revision)\n", strings.Join(outdated, ", "))
		}
		return nil
	},
}

var vmDevicesCmd = &cobra.Command{
	Use:   "devices <vm-name>",
	Short: "List the block devices a VM should attach",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadVM(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, dev := range s.BlockDevices() {
			mode := "ro"
			if dev.RW {
				mode = "rw"
			}
			fmt.Printf("%s\t%s\t%s\t%s\n", dev.Name, dev.Path, mode, dev.DevType)
		}
		return nil
	},
}

var vmCloneCmd = &cobra.Command{
	Use:   "clone <source-vm> <vm-name>",
	Short: "Import every same-named volume from another VM",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := loadRuntime(ctx)
		if err != nil {
			return err
		}
		src, err := rt.vm(strings.ToLower(args[0]))
		if err != nil {
			return err
		}
		dst, err := rt.vm(strings.ToLower(args[1]))
		if err != nil {
			return err
		}

		fmt.Printf("Cloning volumes of %s into %s...\n", args[0], args[1])
		if err := dst.CloneFrom(ctx, src); err != nil {
			return err
		}

		fmt.Printf("✓ VM %s cloned from %s\n", args[1], args[0])
		return nil
	},
}
