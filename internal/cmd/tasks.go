package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nnww-gis/gisops/internal/style"
)

var tasksServer string

var tasksCmd = &cobra.Command{
	Use:     "tasks",
	GroupID: GroupHosts,
	Short:   "Enable or disable Windows scheduled tasks",
	RunE:    requireSubcommand,
}

var tasksEnableCmd = &cobra.Command{
	Use:   "enable <task>...",
	Short: "Enable scheduled tasks",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTasksEnabled(cmd, args, true)
	},
}

var tasksDisableCmd = &cobra.Command{
	Use:   "disable <task>...",
	Short: "Disable scheduled tasks",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setTasksEnabled(cmd, args, false)
	},
}

func init() {
	for _, c := range []*cobra.Command{tasksEnableCmd, tasksDisableCmd} {
		c.Flags().StringVar(&tasksServer, "server", "", "Server holding the tasks (default: site.app_server)")
	}
	tasksCmd.AddCommand(tasksEnableCmd)
	tasksCmd.AddCommand(tasksDisableCmd)
	rootCmd.AddCommand(tasksCmd)
}

// setTasksEnabled changes every task and reports each result. All tasks
// are attempted; the error lists the ones that failed.
func setTasksEnabled(cmd *cobra.Command, names []string, enabled bool) error {
	server := tasksServer
	if server == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		server = cfg.Site.AppServer
	}
	if server == "" {
		return fmt.Errorf("no server: pass --server or set site.app_server")
	}

	verb := "disabled"
	if enabled {
		verb = "enabled"
	}
	h := newHostControl(nil)
	var errs []error
	for _, name := range names {
		ok, err := h.SetScheduledTaskEnabled(cmd.Context(), name, server, enabled)
		if err == nil && !ok {
			err = fmt.Errorf("schtasks did not confirm the change")
		}
		if err != nil {
			fmt.Printf("%s %s: %v\n", style.ErrorPrefix, name, err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		fmt.Printf("%s %s %s on %s\n", style.SuccessPrefix, style.Bold.Render(name), verb, server)
	}
	return errors.Join(errs...)
}
