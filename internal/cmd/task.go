package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nnww-gis/gisops/internal/archive"
	"github.com/nnww-gis/gisops/internal/config"
	"github.com/nnww-gis/gisops/internal/geoprocess"
	"github.com/nnww-gis/gisops/internal/hostctl"
	"github.com/nnww-gis/gisops/internal/lock"
	"github.com/nnww-gis/gisops/internal/logging"
	"github.com/nnww-gis/gisops/internal/mail"
	"github.com/nnww-gis/gisops/internal/run"
	"github.com/nnww-gis/gisops/internal/style"
)

func loadConfig() (*config.Config, error) {
	return config.Load(config.ResolvePath(configPath))
}

// newGeoRunner returns the bridge to the geoprocessing engine, or a
// recording runner under --dry-run.
func newGeoRunner(cfg *config.Config, log *zap.Logger) geoprocess.Runner {
	if dryRun {
		return &geoprocess.DryRunner{Log: log}
	}
	g := cfg.Geoprocessor
	return geoprocess.NewBridgeRunner(g.Command, g.Args, g.Timeout, log)
}

func newHostControl(log *zap.Logger) *hostctl.Controller {
	if dryRun {
		return hostctl.NewController(hostctl.DryCommander{Log: log}, log)
	}
	return hostctl.NewController(hostctl.ExecCommander{}, log)
}

func newMailSender(cfg *config.Config) mail.Sender {
	if dryRun {
		return &mail.Recorder{}
	}
	return mail.NewSMTPSender(cfg.Mail.Server)
}

// consoleLogger is the logger of the interactive commands: console only.
func consoleLogger(cfg *config.Config) *zap.Logger {
	l, err := logging.New(logging.Options{Level: cfg.Log.Level, Console: os.Stderr})
	if err != nil {
		return zap.NewNop()
	}
	return l.Logger
}

// taskRun is the setup shared by the scheduled task commands: the
// single-instance lock, the run log, the run context and the status mail.
type taskRun struct {
	cfg     *config.Config
	rc      *run.Context
	log     *logging.Logger
	tk      *geoprocess.Toolkit
	mail    mail.Sender
	from    string
	release func()
}

// startTask prepares a run of the task named key. suffix is added to the
// run log name. Errors here happen before there is anywhere to report to.
func startTask(key, suffix string) (*taskRun, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	release, err := lock.Acquire(lock.Path(cfg.Log.Dir, key))
	if err != nil {
		if errors.Is(err, lock.ErrLocked) {
			return nil, fmt.Errorf("%s is already running: %w", key, err)
		}
		return nil, err
	}

	env := run.CurrentEnv("gisops", os.Args[1:])
	rc := run.New("gisops "+strings.Join(os.Args[1:], " "), env)

	runLog := filepath.Join(cfg.Log.Dir, logging.RunLogName(rc.Start, env.Host, suffix))
	lg, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Console:    os.Stdout,
		RunLog:     runLog,
		ToolLog:    cfg.Log.ToolLog,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.RetentionDays,
	})
	if err != nil {
		release()
		return nil, err
	}
	log := lg.With(zap.String("run", rc.ID))
	rc.SetLogger(log)
	rc.AttachLogFile(runLog)

	t := &taskRun{
		cfg:     cfg,
		rc:      rc,
		log:     lg,
		tk:      geoprocess.NewToolkit(newGeoRunner(cfg, log)),
		mail:    newMailSender(cfg),
		from:    cfg.Mail.Sender,
		release: release,
	}
	if t.from == "" {
		t.from = mail.DefaultSender(env.User, cfg.Site.MailDomain)
	}

	log.Info(fmt.Sprintf("Start time: %s", rc.Start.Format(run.TimestampLayout)))
	log.Info(fmt.Sprintf("Command: %q", rc.Task))
	if dryRun {
		log.Warn("dry run: nothing will be changed")
	}
	t.pruneLogs()
	return t, nil
}

// pruneLogs deletes run logs past retention. Failures are recorded but
// never stop the task.
func (t *taskRun) pruneLogs() {
	log := t.rc.Logger()
	log.Info("Deleting old log files ...")
	retention := time.Duration(t.cfg.Log.RetentionDays) * 24 * time.Hour
	removed, err := logging.PruneOldLogs(t.cfg.Log.Dir, retention, t.rc.Now())
	for _, f := range removed {
		log.Info("deleted " + f)
	}
	if err != nil {
		t.rc.RecordError("DeleteOldLogFiles", err)
	}
}

// finish sends the status report, archives it and releases the lock. It
// returns fatal so callers can end with "return t.finish(ctx, err)".
func (t *taskRun) finish(ctx context.Context, fatal error) error {
	defer t.release()
	ctx = context.WithoutCancel(ctx)
	log := t.rc.Logger()

	log.Info("Sending status email ...")
	_ = t.log.Sync()
	r := t.rc.Finalize()
	if err := mail.SendStatus(ctx, t.mail, t.cfg.Mail, t.from, r); err != nil {
		log.Error("status mail not sent", zap.Error(err))
		style.PrintWarning("status mail not sent: %v", err)
	}
	t.archive(ctx, r)
	_ = t.log.Close()

	prefix := style.SuccessPrefix
	if r.Status != run.StatusSuccess {
		prefix = style.ErrorPrefix
	}
	fmt.Printf("%s %s %s %s\n", prefix, style.Bold.Render(r.Subject()),
		style.Dim.Render(run.FormatElapsed(r.Elapsed)),
		style.Dim.Render(fmt.Sprintf("(%d errors)", len(r.Errors))))
	return fatal
}

// archive uploads the report and logs when an archive is configured.
// Failures only warn: the status has already been sent.
func (t *taskRun) archive(ctx context.Context, r *run.Report) {
	if !t.cfg.Archive.Enabled() || dryRun {
		return
	}
	store, err := archive.NewMinioStore(t.cfg.Archive)
	if err != nil {
		style.PrintWarning("report not archived: %v", err)
		return
	}
	keys, err := archive.New(store, t.cfg.Archive).Upload(ctx, r, t.rc.LogFiles())
	if err != nil {
		style.PrintWarning("report not archived: %v", err)
	}
	for _, k := range keys {
		t.rc.Logger().Debug("archived", zap.String("key", k))
	}
}
