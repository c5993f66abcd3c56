package cmd

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nnww-gis/gisops/internal/style"
	"github.com/nnww-gis/gisops/internal/tui/servicewatch"
)

var (
	servicesServer   string
	servicesAll      bool
	servicesInterval time.Duration
)

var servicesCmd = &cobra.Command{
	Use:     "services",
	GroupID: GroupHosts,
	Short:   "Show Windows service states on a server",
	RunE:    requireSubcommand,
}

var servicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print service states",
	Long: `Print the state of the GIS services on a server. With --all every
service the server reports is listed.`,
	Args: cobra.NoArgs,
	RunE: runServicesList,
}

var servicesWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch service states live",
	Long: `Poll the service states on a server and show them in a live table.
Press r to refresh, ? for help, q to quit.`,
	Args: cobra.NoArgs,
	RunE: runServicesWatch,
}

func init() {
	for _, c := range []*cobra.Command{servicesListCmd, servicesWatchCmd} {
		c.Flags().StringVar(&servicesServer, "server", "", "Server to query (default: site.app_server)")
		c.Flags().BoolVar(&servicesAll, "all", false, "Show every service, not only the configured GIS services")
	}
	servicesWatchCmd.Flags().DurationVar(&servicesInterval, "interval", servicewatch.DefaultInterval, "Polling interval")

	servicesCmd.AddCommand(servicesListCmd)
	servicesCmd.AddCommand(servicesWatchCmd)
	rootCmd.AddCommand(servicesCmd)
}

// serviceFilter returns the server to query and the services to show.
func serviceFilter() (server string, only []string, err error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", nil, err
	}
	server = servicesServer
	if server == "" {
		server = cfg.Site.AppServer
	}
	if server == "" {
		return "", nil, fmt.Errorf("no server: pass --server or set site.app_server")
	}
	if !servicesAll {
		only = cfg.Maintenance.Services
	}
	return server, only, nil
}

func runServicesList(cmd *cobra.Command, args []string) error {
	server, only, err := serviceFilter()
	if err != nil {
		return err
	}
	h := newHostControl(nil)
	states, err := h.QueryServiceStates(cmd.Context(), server)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n\n", style.ArrowPrefix, style.Bold.Render(server))
	fmt.Print(servicewatch.Table(states, only).Render())
	return nil
}

func runServicesWatch(cmd *cobra.Command, args []string) error {
	if !style.IsTerminal(os.Stdout) {
		return fmt.Errorf("services watch needs a terminal; use 'gisops services list'")
	}
	server, only, err := serviceFilter()
	if err != nil {
		return err
	}
	m := servicewatch.New(newHostControl(nil), server, servicesInterval, only)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	_, err = p.Run()
	return err
}
