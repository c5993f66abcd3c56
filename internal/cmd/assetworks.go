package cmd

import (
	"github.com/spf13/cobra"

	"github.com/nnww-gis/gisops/internal/assetworks"
)

var assetWorksCmd = &cobra.Command{
	Use:     "assetworks",
	GroupID: GroupTasks,
	Short:   "Convert GIS data for the AssetWorks work order system",
	Long: `Rebuild the AssetWorks feature dataset from production.

Feature classes are copied, mains are dissolved into single-part
segments and broken into vertex points carrying latitude, longitude,
segment and vertex sequence numbers. The vertex table replaces the
previous one and the configured privileges are granted.`,
	Args: cobra.NoArgs,
	RunE: runAssetWorks,
}

func init() {
	rootCmd.AddCommand(assetWorksCmd)
}

func runAssetWorks(cmd *cobra.Command, args []string) error {
	t, err := startTask("assetworks", "AssetWorks")
	if err != nil {
		return err
	}
	err = assetworks.New(t.tk, t.rc, t.cfg.AssetWorks).Run(cmd.Context())
	return t.finish(cmd.Context(), err)
}
