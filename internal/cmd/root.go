// Package cmd provides the gisops command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/nnww-gis/gisops/internal/style"
)

// Command groups for help output.
const (
	GroupTasks  = "tasks"
	GroupHosts  = "hosts"
	GroupTools  = "tools"
	GroupConfig = "config"
)

// Persistent flags
var (
	configPath string
	dryRun     bool
)

var rootCmd = &cobra.Command{
	Use:   "gisops",
	Short: "Scheduled GIS operations for the water utility",
	Long: `gisops runs the scheduled GIS administration tasks: basemap exports,
database maintenance, the distribution area rebuild, the AssetWorks data
conversion and releasing locks on shared files.

Every task writes a per-run log file, records failures as it goes and
mails one status report at the end.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: GroupTasks, Title: "Scheduled Tasks:"},
		&cobra.Group{ID: GroupHosts, Title: "Servers:"},
		&cobra.Group{ID: GroupTools, Title: "Tools:"},
		&cobra.Group{ID: GroupConfig, Title: "Configuration:"},
	)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to gisops.toml (default: $GISOPS_CONFIG or ./gisops.toml)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false,
		"Log geoprocessing, service and mail calls without performing them")
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd.SetArgs(NormalizeLegacyArgs(os.Args[1:]))
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", style.ErrorPrefix, err)
		return 1
	}
	return 0
}

// requireSubcommand is the RunE of parent commands.
func requireSubcommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("requires a subcommand\n\nRun '%s --help' for usage", cmd.CommandPath())
	}
	return fmt.Errorf("unknown command %q for %q\n\nRun '%s --help' for usage",
		args[0], cmd.CommandPath(), cmd.CommandPath())
}
