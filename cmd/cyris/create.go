package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/cyris/pkg/core"
	"github.com/cuemby/cyris/pkg/types"
)

var createCmd = &cobra.Command{
	Use:   "create -f <spec.json>",
	Short: "Build a range from a validated JSON spec file",
	RunE:  runCreate,
}

func init() {
	createCmd.Flags().StringP("file", "f", "", "Path to a range input spec, as JSON (required)")
	_ = createCmd.MarkFlagRequired("file")
}

func runCreate(cmd *cobra.Command, _ []string) error {
	filename, _ := cmd.Flags().GetString("file")

	raw, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read spec file: %w", err)
	}

	var input types.RangeInputSpec
	if err := json.Unmarshal(raw, &input); err != nil {
		return fmt.Errorf("parse spec file: %w", err)
	}

	cctx, cleanup, err := buildCoreContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	result, _ := core.Create(cmd.Context(), cctx, input)
	return printResult(result)
}

func printResult(result core.OperationResult) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("operation did not succeed, see errors above")
	}
	return nil
}
