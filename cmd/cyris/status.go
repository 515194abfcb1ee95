package main

import (
	"github.com/spf13/cobra"

	"github.com/cuemby/cyris/pkg/core"
)

var statusCmd = &cobra.Command{
	Use:   "status <range-id>",
	Short: "Report a range's current entity states",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cctx, cleanup, err := buildCoreContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	result, _ := core.Status(cmd.Context(), cctx, args[0])
	return printResult(result)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every known range",
	RunE:  runList,
}

func runList(cmd *cobra.Command, _ []string) error {
	cctx, cleanup, err := buildCoreContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	result, _ := core.List(cmd.Context(), cctx)
	return printResult(result)
}

var cleanupOrphansCmd = &cobra.Command{
	Use:   "cleanup-orphans",
	Short: "Cross-check the registry against live hypervisor state and report drift",
	RunE:  runCleanupOrphans,
}

func runCleanupOrphans(cmd *cobra.Command, _ []string) error {
	cctx, cleanup, err := buildCoreContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	result, _ := core.CleanupOrphans(cmd.Context(), cctx)
	return printResult(result)
}
