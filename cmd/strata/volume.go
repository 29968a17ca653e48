package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/strata/internal/config"
	"github.com/jbweber/strata/internal/output"
	"github.com/jbweber/strata/internal/status"
	"github.com/jbweber/strata/internal/storage"
)

// Volume management commands
var volumeCmd = &cobra.Command{
	Use:   "volume",
	Short: "Manage individual volumes",
	Long: `Manage a single declared volume, addressed as <vm>:<volume>.

Example:
  strata volume start work:private
  strata volume revisions work:private`,
}

// Flags
var (
	importFailed bool
)

func init() {
	volumeCmd.AddCommand(volumeOpCmd("create", "Create the first revision of a persistent volume", (*storage.Volume).Create))
	volumeCmd.AddCommand(volumeOpCmd("start", "Prepare a volume for a running VM", (*storage.Volume).Start))
	volumeCmd.AddCommand(volumeOpCmd("stop", "Commit or discard what the VM wrote", (*storage.Volume).Stop))
	volumeCmd.AddCommand(volumeOpCmd("remove", "Remove a volume and all of its revisions", (*storage.Volume).Remove))
	volumeCmd.AddCommand(volumeOpCmd("verify", "Check that a volume's lvm state is usable", (*storage.Volume).Verify))
	volumeCmd.AddCommand(volumeResizeCmd)
	volumeCmd.AddCommand(volumeRevertCmd)
	volumeCmd.AddCommand(volumeRevisionsCmd)
	volumeCmd.AddCommand(volumeInfoCmd)
	volumeCmd.AddCommand(volumeExportCmd)
	volumeCmd.AddCommand(volumeImportCmd)
	volumeCmd.AddCommand(volumeImportDataCmd)
	volumeCmd.AddCommand(volumeImportDataEndCmd)

	volumeImportDataEndCmd.Flags().BoolVar(&importFailed, "failed", false, "Discard the imported data instead of committing it")
}

// volumeOpCmd builds a command that runs one lifecycle operation on a volume.
func volumeOpCmd(name, short string, op func(*storage.Volume, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <vm:volume>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			v, err := loadVolume(ctx, args[0])
			if err != nil {
				return err
			}
			if err := op(v, ctx); err != nil {
				return fmt.Errorf("failed to %s volume %s: %w", name, args[0], err)
			}
			fmt.Printf("✓ Volume %s: %s done\n", args[0], name)
			return nil
		},
	}
}

func loadVolume(ctx context.Context, ref string) (*storage.Volume, error) {
	rt, err := loadRuntime(ctx)
	if err != nil {
		return nil, err
	}
	return rt.volume(ref)
}

var volumeResizeCmd = &cobra.Command{
	Use:   "resize <vm:volume> <size>",
	Short: "Grow a volume",
	Long: `Grow a volume to the given size. Shrinking is refused.

Sizes accept units, e.g. 10GB or 512MB.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		size, err := config.ParseSize(args[1])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		v, err := loadVolume(ctx, args[0])
		if err != nil {
			return err
		}
		if err := v.Resize(ctx, size); err != nil {
			return fmt.Errorf("failed to resize volume %s: %w", args[0], err)
		}

		fmt.Printf("✓ Volume %s resized to %s\n", args[0], args[1])
		return nil
	},
}

var volumeRevertCmd = &cobra.Command{
	Use:   "revert <vm:volume> [revision]",
	Short: "Revert a volume to an older revision",
	Long: `Make an older revision current again. Without a revision the most
recent older revision is used. The volume must not be in use.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rev := ""
		if len(args) == 2 {
			rev = args[1]
		}

		ctx := cmd.Context()
		v, err := loadVolume(ctx, args[0])
		if err != nil {
			return err
		}
		if err := v.Revert(ctx, rev); err != nil {
			return fmt.Errorf("failed to revert volume %s: %w", args[0], err)
		}

		fmt.Printf("✓ Volume %s reverted\n", args[0])
		return nil
	},
}

var volumeRevisionsCmd = &cobra.Command{
	Use:   "revisions <vm:volume>",
	Short: "List older revisions of a volume",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := loadVolume(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		formatter, err := newFormatter()
		if err != nil {
			return err
		}
		result, err := formatter.FormatRevisions(v.VID(), output.NewRevisionInfo(v))
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}

		fmt.Print(result)
		return nil
	},
}

var volumeInfoCmd = &cobra.Command{
	Use:   "info <vm:volume>",
	Short: "Show a volume's phase, size and usage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := loadVolume(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := printVolumes([]*storage.Volume{v}); err != nil {
			return err
		}
		if output.Format(outputFormat) == output.FormatTable {
			fmt.Printf("\n%s\n", status.Describe(status.Of(v)))
		}
		return nil
	},
}

var volumeExportCmd = &cobra.Command{
	Use:   "export <vm:volume>",
	Short: "Activate the current revision and print its device path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		v, err := loadVolume(ctx, args[0])
		if err != nil {
			return err
		}
		path, err := v.Export(ctx)
		if err != nil {
			return fmt.Errorf("failed to export volume %s: %w", args[0], err)
		}

		fmt.Println(path)
		return nil
	},
}

var volumeImportCmd = &cobra.Command{
	Use:   "import <vm:volume> <source-vm:volume>",
	Short: "Replace a volume's content with another volume's",
	Long: `Copy the current revision of the source volume into the target as a
new revision. Volumes in the same volume group are cloned, others are copied
with dd. Interrupting a copy leaves the staging volume for import-data-end.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := loadRuntime(ctx)
		if err != nil {
			return err
		}
		dst, err := rt.volume(args[0])
		if err != nil {
			return err
		}
		src, err := rt.volume(args[1])
		if err != nil {
			return err
		}

		fmt.Printf("Importing %s into %s...\n", args[1], args[0])
		task := dst.StartImportVolume(ctx, src)
		if err := task.Wait(); err != nil {
			return fmt.Errorf("failed to import volume %s: %w", args[0], err)
		}

		fmt.Printf("✓ Volume %s imported from %s\n", args[0], args[1])
		return nil
	},
}

var volumeImportDataCmd = &cobra.Command{
	Use:   "import-data <vm:volume>",
	Short: "Create a staging volume and print its device path",
	Long: `Create an empty staging volume the size of the target and print its
device path. Write the new content there, then run import-data-end.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		v, err := loadVolume(ctx, args[0])
		if err != nil {
			return err
		}
		path, err := v.ImportData(ctx)
		if err != nil {
			return fmt.Errorf("failed to start import into volume %s: %w", args[0], err)
		}

		fmt.Println(path)
		return nil
	},
}

var volumeImportDataEndCmd = &cobra.Command{
	Use:   "import-data-end <vm:volume>",
	Short: "Commit or discard a staged import",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		v, err := loadVolume(ctx, args[0])
		if err != nil {
			return err
		}
		if err := v.ImportDataEnd(ctx, !importFailed); err != nil {
			return fmt.Errorf("failed to finish import into volume %s: %w", args[0], err)
		}

		if importFailed {
			fmt.Printf("✓ Import into %s discarded\n", args[0])
		} else {
			fmt.Printf("✓ Import into %s committed\n", args[0])
		}
		return nil
	},
}
