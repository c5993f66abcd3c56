package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nnww-gis/gisops/internal/config"
	"github.com/nnww-gis/gisops/internal/gdbadmin"
	"github.com/nnww-gis/gisops/internal/geoprocess"
	"github.com/nnww-gis/gisops/internal/maintenance"
	"github.com/nnww-gis/gisops/internal/run"
	"github.com/nnww-gis/gisops/internal/style"
)

// maintenance command flags
var maintOpts maintenance.Options

var maintenanceCmd = &cobra.Command{
	Use:     "maintenance",
	GroupID: GroupTasks,
	Short:   "Run scheduled geodatabase maintenance",
	Long: `Run scheduled maintenance on the enterprise geodatabase.

Before the work, scheduled GIS tasks are disabled, GIS services are
stopped, new connections are refused, connected users are warned by
mail and, after up to the warning wait, disconnected. Afterwards
everything is brought back and the warned users are told.

  --versions   reconcile, post and delete every version, then recreate
               the configured versions
  --compress   compress the database
  --import     import data from other systems (not implemented; recorded
               as an error)
  --indexes    rebuild indexes and update statistics

With no task flags nothing is done. The Windows-style switches of the
old scheduled tasks (/AppServer, /DBServer, /Versions, ...) are accepted.

Examples:
  gisops maintenance --app-server arctic --db-server conway --versions --compress
  gisops maintenance /AppServer Arctic /DBServer Conway /Versions /Compress /Import /Indexes`,
	Args: cobra.NoArgs,
	RunE: runMaintenance,
}

var maintenanceRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restart services and re-enable tasks left down by a failed run",
	Long: `Restart the services and re-enable the scheduled tasks recorded in
maintenance-state.json by a maintenance run that never reached its
cleanup. Items that come back are removed from the state file.`,
	Args: cobra.NoArgs,
	RunE: runMaintenanceRestore,
}

var maintenanceUsersCmd = &cobra.Command{
	Use:   "users",
	Short: "List database connections",
	Args:  cobra.NoArgs,
	RunE:  runMaintenanceUsers,
}

var maintUsersDBServer string

func init() {
	f := maintenanceCmd.Flags()
	f.StringVar(&maintOpts.AppServer, "app-server", "", "Server this must run on (default: this host)")
	f.StringVar(&maintOpts.DBServer, "db-server", "", "Database server (default: maintenance.db_server)")
	f.BoolVar(&maintOpts.Versions, "versions", false, "Reconcile, post, delete and recreate versions")
	f.BoolVar(&maintOpts.Compress, "compress", false, "Compress the database")
	f.BoolVar(&maintOpts.Import, "import", false, "Import data from other systems")
	f.BoolVar(&maintOpts.Indexes, "indexes", false, "Rebuild indexes and update statistics")

	maintenanceUsersCmd.Flags().StringVar(&maintUsersDBServer, "db-server", "", "Database server (default: maintenance.db_server)")

	maintenanceCmd.AddCommand(maintenanceRestoreCmd)
	maintenanceCmd.AddCommand(maintenanceUsersCmd)
	rootCmd.AddCommand(maintenanceCmd)
}

// newAdmin builds the geodatabase administrator for dbServer. The
// returned close func releases the PostgreSQL pool when one was opened.
func newAdmin(ctx context.Context, cfg *config.Config, tk *geoprocess.Toolkit, dbServer string) (gdbadmin.Admin, func(), error) {
	userConn, adminConn := cfg.Maintenance.ConnectionFiles(dbServer)
	var admin gdbadmin.Admin = gdbadmin.NewToolkitAdmin(tk, userConn, adminConn)
	if !cfg.Postgres.Enabled() || dryRun {
		return admin, func() {}, nil
	}
	db, err := gdbadmin.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, run.Fail("OpenPostgres", err, "database", cfg.Postgres.Database)
	}
	return gdbadmin.NewPostgresAdmin(admin, db, cfg.Postgres.Database), func() { closeDB(db) }, nil
}

func closeDB(db *sql.DB) { _ = db.Close() }

func runMaintenance(cmd *cobra.Command, args []string) error {
	if !maintOpts.Any() {
		fmt.Println(style.Dim.Render("No maintenance tasks requested; nothing to do."))
		return nil
	}
	t, err := startTask("maintenance", "")
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	opts := maintOpts
	opts.From = t.from
	if opts.DBServer == "" {
		opts.DBServer = t.cfg.Maintenance.DBServer
	}

	admin, closeAdmin, err := newAdmin(ctx, t.cfg, t.tk, opts.DBServer)
	if err != nil {
		t.rc.SetField("Database Server", opts.DBServer)
		t.rc.Record(err)
		return t.finish(ctx, err)
	}
	defer closeAdmin()

	r := maintenance.New(t.rc, t.cfg.Maintenance, t.cfg.Site.MailDomain, t.cfg.Log.Dir, opts, maintenance.Deps{
		Hosts: newHostControl(t.rc.Logger()),
		Admin: admin,
		Mail:  t.mail,
		State: maintenance.NewStateManager(t.cfg.Log.Dir),
	})
	return t.finish(ctx, r.Run(ctx))
}

func runMaintenanceRestore(cmd *cobra.Command, args []string) error {
	t, err := startTask("maintenance", "Restore")
	if err != nil {
		return err
	}
	m := t.cfg.Maintenance
	sm := maintenance.NewStateManager(t.cfg.Log.Dir)
	left, err := maintenance.Restore(cmd.Context(), t.rc, newHostControl(t.rc.Logger()), sm, m.ServiceTimeout, m.ServicePoll)
	if err != nil {
		t.rc.RecordError("RestoreMaintenanceState", err)
		return t.finish(cmd.Context(), err)
	}
	if left != nil && !left.Empty() {
		t.rc.Logger().Warn("still down",
			zap.Int("services", len(left.StoppedServices)), zap.Int("tasks", len(left.DisabledTasks)))
		err = fmt.Errorf("%d services and %d tasks are still down; see %s",
			len(left.StoppedServices), len(left.DisabledTasks), sm.Path())
	}
	return t.finish(cmd.Context(), err)
}

func runMaintenanceUsers(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := consoleLogger(cfg)
	dbServer := maintUsersDBServer
	if dbServer == "" {
		dbServer = cfg.Maintenance.DBServer
	}
	admin, closeAdmin, err := newAdmin(cmd.Context(), cfg, geoprocess.NewToolkit(newGeoRunner(cfg, log)), dbServer)
	if err != nil {
		return err
	}
	defer closeAdmin()

	users, err := admin.ListUsers(cmd.Context())
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Println(style.Dim.Render("No connections."))
		return nil
	}
	fmt.Print(usersTable(users).Render())
	fmt.Fprintf(os.Stdout, "\n%d connections, %d users to warn\n",
		len(users), len(gdbadmin.ConnectedWindowsUsers(users, cfg.Maintenance.SystemUsers)))
	return nil
}

func usersTable(users []gdbadmin.User) *style.Table {
	t := style.NewTable(
		style.Column{Name: "CONNECTED", Width: 20},
		style.Column{Name: "CLIENT", Width: 12},
		style.Column{Name: "USER", Width: 20},
		style.Column{Name: "ID", Width: 8, Align: style.AlignRight},
		style.Column{Name: "TYPE", Width: 18},
	)
	for _, u := range users {
		kind := "Application Server"
		if u.Direct {
			kind = "Direct"
		}
		connected := ""
		if !u.ConnectedAt.IsZero() {
			connected = u.ConnectedAt.Format("2006-01-02  15:04:05")
		}
		t.AddRow(connected, u.Client, u.Name, fmt.Sprintf("%d", u.ID), kind)
	}
	return t
}
