package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/cyris/pkg/corectx"
	"github.com/cuemby/cyris/pkg/hypervisor"
	"github.com/cuemby/cyris/pkg/images"
	"github.com/cuemby/cyris/pkg/log"
	"github.com/cuemby/cyris/pkg/registry"
	"github.com/cuemby/cyris/pkg/transport"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cyris",
	Short: "CyRIS - Cyber Range Instantiation System orchestrator",
	Long: `cyris builds and tears down isolated cyber ranges: networks, guest
VMs cloned from base images, and post-boot provisioning tasks, spread
across one or more hypervisor hosts.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("cyris version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("data-dir", "./cyris-data", "Directory holding the registry snapshot, journal and per-range state")
	rootCmd.PersistentFlags().String("cloudx-endpoint", "", "Base URL of a CloudX-compatible hypervisor API (enables the cloudx provider)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(cleanupOrphansCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

// buildCoreContext wires the registry, image distributor, hypervisor
// drivers and remote executor from the root command's persistent flags.
func buildCoreContext(cmd *cobra.Command) (*corectx.CoreContext, func(), error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	cloudxEndpoint, _ := cmd.Flags().GetString("cloudx-endpoint")

	store, err := registry.Open(dataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open registry: %w", err)
	}

	placement, err := images.OpenPlacementTable(dataDir + "/placement.bolt")
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("open placement table: %w", err)
	}

	executor := transport.NewPool()
	distributor := images.NewDistributor(placement, executor, dataDir+"/images", 8, 3)

	drivers := map[string]hypervisor.Driver{}
	if kvm, err := hypervisor.NewLocalKVMDriver(dataDir + "/kvm"); err == nil {
		drivers["kvm"] = kvm
	} else {
		log.WithComponent("cmd").Warn().Err(err).Msg("local kvm driver unavailable, kvm hosts will fail to provision")
	}
	if cloudxEndpoint != "" {
		drivers["cloudx"] = hypervisor.NewCloudXDriver(cloudxEndpoint)
	}

	cctx := corectx.New(dataDir, corectx.DefaultTimeouts(), drivers, executor, store, distributor)

	cleanup := func() {
		_ = placement.Close()
		_ = store.Close()
	}
	return cctx, cleanup, nil
}
