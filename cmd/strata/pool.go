package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/strata/internal/output"
	"github.com/jbweber/strata/internal/storage"
)

// Pool management commands
var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Manage thin pools",
	Long: `Inspect the LVM thin pools declared in the configuration file.

Each pool names a volume group and a thin pool inside it. Strata never
creates thin pools, it only checks that they exist.`,
}

func init() {
	poolCmd.AddCommand(poolSetupCmd)
	poolCmd.AddCommand(poolInfoCmd)
	poolCmd.AddCommand(poolListVolumesCmd)
}

var poolSetupCmd = &cobra.Command{
	Use:   "setup [pool-name...]",
	Short: "Check that configured thin pools exist",
	Long: `Check that each configured pool's thin pool exists in lvm and is a
thin pool. All pools are checked when no name is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := newRuntime(ctx, cfg, lvmRunner)
		if err != nil {
			return err
		}

		for _, name := range rt.poolNames(args) {
			pool, err := rt.pool(name)
			if err != nil {
				return err
			}
			if err := pool.Setup(ctx); err != nil {
				return fmt.Errorf("failed to set up pool %s: %w", name, err)
			}
			fmt.Printf("✓ Pool %s ready (%s)\n", name, pool.ID())
		}
		return nil
	},
}

var poolInfoCmd = &cobra.Command{
	Use:   "info [pool-name...]",
	Short: "Show pool capacity and usage",
	Long: `Show size, usage, retention and volume count of configured pools.

Output formats:
  -o table  Human-readable table (default)
  -o yaml   YAML documents
  -o json   JSON array`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime(cmd.Context())
		if err != nil {
			return err
		}

		var pools []output.PoolInfo
		for _, name := range rt.poolNames(args) {
			pool, err := rt.pool(name)
			if err != nil {
				return err
			}
			pools = append(pools, output.NewPoolInfo(pool))
		}

		formatter, err := newFormatter()
		if err != nil {
			return err
		}
		result, err := formatter.FormatPools(pools)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}

		fmt.Print(result)
		return nil
	},
}

var poolListVolumesCmd = &cobra.Command{
	Use:   "list-volumes <pool-name>",
	Short: "List volumes present in a pool",
	Long: `List every volume found in the pool's thin pool, including volumes
that are not declared in the configuration file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime(cmd.Context())
		if err != nil {
			return err
		}
		pool, err := rt.pool(args[0])
		if err != nil {
			return err
		}

		return printVolumes(pool.ListVolumes())
	},
}

func printVolumes(volumes []*storage.Volume) error {
	infos := make([]output.VolumeInfo, 0, len(volumes))
	for _, v := range volumes {
		infos = append(infos, output.NewVolumeInfo(v))
	}
	output.SortVolumes(infos)

	formatter, err := newFormatter()
	if err != nil {
		return err
	}
	result, err := formatter.FormatVolumes(infos)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	fmt.Print(result)
	return nil
}
