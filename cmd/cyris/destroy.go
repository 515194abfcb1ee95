package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/cyris/pkg/core"
)

var destroyCmd = &cobra.Command{
	Use:   "destroy <range-id>",
	Short: "Tear down a range and its guests",
	Args:  cobra.ExactArgs(1),
	RunE:  runDestroy,
}

func runDestroy(cmd *cobra.Command, args []string) error {
	cctx, cleanup, err := buildCoreContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	result, _ := core.Destroy(cmd.Context(), cctx, args[0])
	if err := printResult(result); err != nil {
		return fmt.Errorf("destroy %s: %w", args[0], err)
	}
	return nil
}
