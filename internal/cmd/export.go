package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nnww-gis/gisops/internal/config"
	"github.com/nnww-gis/gisops/internal/export"
)

var exportCmd = &cobra.Command{
	Use:     "export <job>",
	GroupID: GroupTasks,
	Short:   "Export the basemap snapshot for disconnected users",
	Long: `Export a basemap snapshot job from [export.<job>] in gisops.toml.

The job rebuilds a temporary personal geodatabase from production,
falling back to the previous basemap for anything production cannot
supply, then swaps it in and refreshes the shapefile exports. Failures
are recorded and the export carries on; the status mail lists them.

Examples:
  gisops export weekday
  gisops export weekend --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		cfg, err := loadConfig()
		if err != nil || len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return exportJobNames(cfg.Export), cobra.ShellCompDirectiveNoFileComp
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

func exportJobNames(jobs map[string]config.ExportJob) []string {
	names := make([]string, 0, len(jobs))
	for name := range jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func runExport(cmd *cobra.Command, args []string) error {
	name := strings.ToLower(strings.TrimSpace(args[0]))
	if name == "" {
		return fmt.Errorf("export job name is empty")
	}
	t, err := startTask("export-"+name, "Export"+strings.ToUpper(name[:1])+name[1:])
	if err != nil {
		return err
	}
	job, ok := t.cfg.Export[name]
	if !ok {
		err := fmt.Errorf("no export job %q in config (have %s)", name, strings.Join(exportJobNames(t.cfg.Export), ", "))
		t.rc.RecordError("ExportJob", err)
		return t.finish(cmd.Context(), err)
	}
	export.New(t.tk, t.rc, job).Run(cmd.Context())
	return t.finish(cmd.Context(), nil)
}
