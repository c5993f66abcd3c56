package cmd

import (
	"github.com/spf13/cobra"

	"github.com/nnww-gis/gisops/internal/unlock"
)

var unlockCmd = &cobra.Command{
	Use:     "unlock [file...]",
	GroupID: GroupTasks,
	Short:   "Disconnect network users holding shared files open",
	Long: `Close every network handle on the shared basemap files so the
nightly exports can replace them.

Files default to [unlock].files in gisops.toml. Each file is matched by
prefix, so a geodatabase folder releases everything inside it. A file
that cannot be released is reported and the rest are still attempted.

Examples:
  gisops unlock
  gisops unlock 'D:\GIS\Basemap\Basemap.mdb'`,
	RunE: runUnlock,
}

func init() {
	rootCmd.AddCommand(unlockCmd)
}

func runUnlock(cmd *cobra.Command, args []string) error {
	t, err := startTask("unlock", "Unlock")
	if err != nil {
		return err
	}
	cfg := t.cfg.Unlock
	if len(args) > 0 {
		cfg.Files = args
	}
	t.rc.SetField("File Server", cfg.Server)
	unlock.New(newHostControl(t.rc.Logger()), t.rc, cfg).Run(cmd.Context())
	return t.finish(cmd.Context(), nil)
}
