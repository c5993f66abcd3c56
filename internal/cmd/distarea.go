package cmd

import (
	"github.com/spf13/cobra"

	"github.com/nnww-gis/gisops/internal/distarea"
)

var distAreaCmd = &cobra.Command{
	Use:     "distribution-area",
	Aliases: []string{"distarea"},
	GroupID: GroupTasks,
	Short:   "Rebuild the distribution area polygon",
	Long: `Rebuild the distribution area polygon from the water mains.

Selected mains are copied into a temporary file geodatabase, buffered
into a single dissolved polygon, stamped with the run date and loaded
into the production feature class in place of the old polygon. The
temporary geodatabase is removed afterwards.

The first failing step stops the rebuild and is reported.`,
	Args: cobra.NoArgs,
	RunE: runDistArea,
}

func init() {
	rootCmd.AddCommand(distAreaCmd)
}

func runDistArea(cmd *cobra.Command, args []string) error {
	t, err := startTask("distribution-area", "DistributionArea")
	if err != nil {
		return err
	}
	err = distarea.New(t.tk, t.rc, t.cfg.DistributionArea).Run(cmd.Context())
	return t.finish(cmd.Context(), err)
}
