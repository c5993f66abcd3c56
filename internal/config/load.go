package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/nnww-gis/gisops/internal/util"
)

// DefaultPath is used when neither --config nor GISOPS_CONFIG is set.
const DefaultPath = "gisops.toml"

// ErrNotFound is returned by Load when the config file does not exist.
var ErrNotFound = errors.New("config file not found")

// Defaults used when a key is absent.
const (
	DefaultRetentionDays  = 30
	DefaultWarningWait    = 15 * time.Minute
	DefaultWarningPoll    = time.Minute
	DefaultServiceTimeout = 10 * time.Minute
	DefaultServicePoll    = 10 * time.Second
	DefaultGPTimeout      = 2 * time.Hour
	DefaultPingTimeout    = 5 * time.Second
)

// DefaultSystemUsers are database accounts that never receive warning mail.
var DefaultSystemUsers = []string{"arcgiscontainer", "dbo", "sa", "sde", "sdeadmin", "sdedataowner", "sdeviewer"}

// ResolvePath picks the config path from the flag value, then
// GISOPS_CONFIG, then DefaultPath.
func ResolvePath(flag string) string {
	if flag != "" {
		return util.ExpandPath(flag)
	}
	if env := os.Getenv("GISOPS_CONFIG"); env != "" {
		return util.ExpandPath(env)
	}
	return DefaultPath
}

// Load reads, defaults, overrides and validates the config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is the operator's config file
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(string(data))
}

// Parse decodes TOML text into a validated Config.
func Parse(text string) (*Config, error) {
	var cfg Config
	md, err := toml.Decode(text, &cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("parsing config: unknown keys: %s", strings.Join(keys, ", "))
	}

	cfg.applyDefaults()
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.RetentionDays == 0 {
		c.Log.RetentionDays = DefaultRetentionDays
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 10
	}
	if c.Geoprocessor.Timeout == 0 {
		c.Geoprocessor.Timeout = DefaultGPTimeout
	}
	if c.Postgres.PingTimeout == 0 {
		c.Postgres.PingTimeout = DefaultPingTimeout
	}

	m := &c.Maintenance
	if m.Database == "" {
		m.Database = "sdeVector"
	}
	if m.DBServer == "" {
		m.DBServer = "conway"
	}
	if m.UserConn == "" {
		m.UserConn = "{server}_{database}_sde.sde"
	}
	if m.AdminConn == "" {
		m.AdminConn = "{server}_{database}_sdeAdmin.sde"
	}
	if len(m.SystemUsers) == 0 {
		m.SystemUsers = DefaultSystemUsers
	}
	if m.DataPattern == "" {
		m.DataPattern = "*.sdeDataOwner.*"
	}
	if m.TargetVersion == "" {
		m.TargetVersion = "sde.DEFAULT"
	}
	if m.WarningWait == 0 {
		m.WarningWait = DefaultWarningWait
	}
	if m.WarningPoll == 0 {
		m.WarningPoll = DefaultWarningPoll
	}
	if m.ServiceTimeout == 0 {
		m.ServiceTimeout = DefaultServiceTimeout
	}
	if m.ServicePoll == 0 {
		m.ServicePoll = DefaultServicePoll
	}
	for i := range m.Versions {
		if m.Versions[i].Access == "" {
			m.Versions[i].Access = "PUBLIC"
		}
	}

	for name, job := range c.Export {
		if job.Database == "" {
			job.Database = m.Database
		}
		if job.Owner == "" {
			job.Owner = "sdeDataOwner"
		}
		c.Export[name] = job
	}

	if c.DistributionArea.BufferDistance == "" {
		c.DistributionArea.BufferDistance = "500 FEET"
	}
	if c.DistributionArea.DateField == "" {
		c.DistributionArea.DateField = "FeatureCreationDate"
	}
	if c.DistributionArea.DateExpression == "" {
		c.DistributionArea.DateExpression = "Date()"
	}
	if c.DistributionArea.ExpressionType == "" {
		c.DistributionArea.ExpressionType = "VB"
	}
	if c.Unlock.SharePrefix == "" && c.Unlock.Server != "" {
		c.Unlock.SharePrefix = `\\` + c.Unlock.Server
	}
	if c.AssetWorks.SegmentField == "" {
		c.AssetWorks.SegmentField = "NetworkSegmentID"
	}
	if c.AssetWorks.SpatialRefWKID == 0 {
		c.AssetWorks.SpatialRefWKID = 4326
	}

	for _, p := range []*string{
		&c.Log.Dir, &c.Log.ToolLog, &m.ConnectionDir,
		&c.DistributionArea.TempFolder, &c.AssetWorks.ScratchDir,
	} {
		*p = util.ExpandPath(*p)
	}
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("GISOPS_SMTP_SERVER"); v != "" {
		c.Mail.Server = v
	}
	if v := getenv("GISOPS_POSTGRES_URL"); v != "" {
		c.Postgres.URL = v
	}
	if v := getenv("GISOPS_ARCHIVE_ACCESS_KEY"); v != "" {
		c.Archive.AccessKey = v
	}
	if v := getenv("GISOPS_ARCHIVE_SECRET_KEY"); v != "" {
		c.Archive.SecretKey = v
	}
}

// Validate reports the first invalid key.
func (c *Config) Validate() error {
	if c.Log.Dir == "" {
		return fmt.Errorf("config: log.dir is required")
	}
	if c.Log.RetentionDays < 0 {
		return fmt.Errorf("config: log.retention_days must not be negative")
	}
	if c.Site.MailDomain == "" {
		return fmt.Errorf("config: site.mail_domain is required")
	}
	if c.Archive.Endpoint != "" && c.Archive.Bucket == "" {
		return fmt.Errorf("config: archive.bucket is required when archive.endpoint is set")
	}
	if c.Maintenance.WarningPoll > c.Maintenance.WarningWait {
		return fmt.Errorf("config: maintenance.warning_poll exceeds maintenance.warning_wait")
	}
	if c.Maintenance.ServicePoll > c.Maintenance.ServiceTimeout {
		return fmt.Errorf("config: maintenance.service_poll exceeds maintenance.service_timeout")
	}
	for i, v := range c.Maintenance.Versions {
		if v.Name == "" || v.Parent == "" {
			return fmt.Errorf("config: maintenance.versions[%d] needs name and parent", i)
		}
	}
	for name, job := range c.Export {
		if err := job.validate(); err != nil {
			return fmt.Errorf("config: export.%s: %w", name, err)
		}
	}
	return nil
}

func (j ExportJob) validate() error {
	if j.BasemapDB == "" || j.TemporaryDB == "" {
		return fmt.Errorf("basemap_db and temporary_db are required")
	}
	if j.ProductionDB == "" {
		for _, fc := range j.FeatureClasses {
			if fc.SourcePath == "" {
				return fmt.Errorf("production_db is required for feature class %q", fc.Source)
			}
		}
	}
	for i, fc := range j.FeatureClasses {
		if fc.Dest == "" || (fc.Source == "" && fc.SourcePath == "") {
			return fmt.Errorf("feature_classes[%d] needs dest and source or source_path", i)
		}
	}
	for i, sf := range j.Shapefiles {
		if sf.Shapefile == "" || (sf.Source == "" && sf.SourcePath == "") {
			return fmt.Errorf("shapefiles[%d] needs shapefile and source or source_path", i)
		}
	}
	return nil
}

// Profile returns the maintenance profile for dbServer, falling back to the
// profile named "default". The zero profile is returned when neither exists.
func (m MaintenanceConfig) Profile(dbServer string) MaintenanceProfile {
	var fallback MaintenanceProfile
	for _, p := range m.Profiles {
		if strings.EqualFold(p.DBServer, dbServer) {
			return p
		}
		if p.DBServer == "default" {
			fallback = p
		}
	}
	return fallback
}

// ConnectionFiles returns the user and admin connection file paths for
// dbServer.
func (m MaintenanceConfig) ConnectionFiles(dbServer string) (user, admin string) {
	expand := func(pattern string) string {
		r := strings.NewReplacer("{server}", dbServer, "{database}", m.Database)
		return JoinLocator(m.ConnectionDir, r.Replace(pattern))
	}
	return expand(m.UserConn), expand(m.AdminConn)
}
