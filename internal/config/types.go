// Package config loads gisops.toml, the single configuration file shared by
// every task command.
package config

import "time"

// Config is the root of gisops.toml.
type Config struct {
	Site             SiteConfig             `toml:"site"`
	Mail             MailConfig             `toml:"mail"`
	Log              LogConfig              `toml:"log"`
	Geoprocessor     GeoprocessorConfig     `toml:"geoprocessor"`
	Postgres         PostgresConfig         `toml:"postgres"`
	Archive          ArchiveConfig          `toml:"archive"`
	Maintenance      MaintenanceConfig      `toml:"maintenance"`
	Export           map[string]ExportJob   `toml:"export"`
	DistributionArea DistributionAreaConfig `toml:"distribution_area"`
	Unlock           UnlockConfig           `toml:"unlock"`
	AssetWorks       AssetWorksConfig       `toml:"assetworks"`
}

// SiteConfig names the utility's servers and mail domain.
type SiteConfig struct {
	Name       string `toml:"name"`
	AppServer  string `toml:"app_server"`
	MailDomain string `toml:"mail_domain"`
}

// MailConfig configures the SMTP relay and the status recipients.
type MailConfig struct {
	Server              string   `toml:"server"`
	Sender              string   `toml:"sender"`
	RecipientsIfSuccess []string `toml:"recipients_if_success"`
	RecipientsIfError   []string `toml:"recipients_if_error"`
}

// LogConfig controls the per-run log files and the long-lived tool log.
type LogConfig struct {
	Dir           string `toml:"dir"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
	ToolLog       string `toml:"tool_log"`
	MaxSizeMB     int    `toml:"max_size_mb"`
	MaxBackups    int    `toml:"max_backups"`
}

// GeoprocessorConfig describes the external bridge that runs toolkit calls.
type GeoprocessorConfig struct {
	Command string        `toml:"command"`
	Args    []string      `toml:"args"`
	Timeout time.Duration `toml:"timeout"`
}

// PostgresConfig enables direct connection management for geodatabases
// hosted on PostgreSQL.
type PostgresConfig struct {
	URL         string        `toml:"url"`
	Database    string        `toml:"database"`
	PingTimeout time.Duration `toml:"ping_timeout"`
}

// Enabled reports whether a PostgreSQL URL is configured.
func (p PostgresConfig) Enabled() bool { return p.URL != "" }

// ArchiveConfig points at the object store that keeps copies of reports.
type ArchiveConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	UseSSL    bool   `toml:"use_ssl"`
	Prefix    string `toml:"prefix"`
}

// Enabled reports whether an archive endpoint is configured.
func (a ArchiveConfig) Enabled() bool { return a.Endpoint != "" && a.Bucket != "" }

// MaintenanceConfig drives the scheduled database maintenance task.
type MaintenanceConfig struct {
	Database       string               `toml:"database"`
	DBServer       string               `toml:"db_server"`
	ConnectionDir  string               `toml:"connection_dir"`
	UserConn       string               `toml:"user_conn"`
	AdminConn      string               `toml:"admin_conn"`
	SystemUsers    []string             `toml:"system_users"`
	Services       []string             `toml:"services"`
	DataPattern    string               `toml:"data_pattern"`
	TargetVersion  string               `toml:"target_version"`
	WarningWait    time.Duration        `toml:"warning_wait"`
	WarningPoll    time.Duration        `toml:"warning_poll"`
	ServiceTimeout time.Duration        `toml:"service_timeout"`
	ServicePoll    time.Duration        `toml:"service_poll"`
	Profiles       []MaintenanceProfile `toml:"profiles"`
	Versions       []VersionSpec        `toml:"versions"`
}

// MaintenanceProfile lists the scheduled tasks and service hosts affected
// when maintaining a given database server.
type MaintenanceProfile struct {
	DBServer       string              `toml:"db_server"`
	Tasks          map[string][]string `toml:"tasks"`
	ServiceServers []string            `toml:"service_servers"`
}

// VersionSpec is a version recreated after reconcile and post.
type VersionSpec struct {
	Name   string `toml:"name"`
	Parent string `toml:"parent"`
	Access string `toml:"access"`
}

// ExportJob is one basemap snapshot export.
type ExportJob struct {
	ProductionDB       string          `toml:"production_db"`
	BasemapDB          string          `toml:"basemap_db"`
	TemporaryDB        string          `toml:"temporary_db"`
	TemplateDB         string          `toml:"template_db"`
	Database           string          `toml:"database"`
	Owner              string          `toml:"owner"`
	AddressLocator     string          `toml:"address_locator"`
	AddressLocatorDest string          `toml:"address_locator_dest"`
	Datasets           []DatasetSpec   `toml:"datasets"`
	FeatureClasses     []FeatureClass  `toml:"feature_classes"`
	Shapefiles         []ShapefileSpec `toml:"shapefiles"`
	ErrorLog           string          `toml:"error_log"`
}

// DatasetSpec is a feature dataset recreated in the temporary database.
// SourcePath overrides the production locator for datasets kept outside
// the production geodatabase.
type DatasetSpec struct {
	Name       string `toml:"name"`
	SourcePath string `toml:"source_path"`
}

// FeatureClass is one feature class export. Source and Dest are
// dataset-qualified names such as "WaterUtility/Casing".
type FeatureClass struct {
	Source     string `toml:"source"`
	SourcePath string `toml:"source_path"`
	Dest       string `toml:"dest"`
}

// ShapefileSpec is one shapefile export with its attribute index fields.
type ShapefileSpec struct {
	Source      string `toml:"source"`
	SourcePath  string `toml:"source_path"`
	Shapefile   string `toml:"shapefile"`
	IndexFields string `toml:"index_fields"`
}

// DistributionAreaConfig drives the distribution area polygon rebuild.
type DistributionAreaConfig struct {
	TempFolder       string `toml:"temp_folder"`
	TempGDB          string `toml:"temp_gdb"`
	SourceMains      string `toml:"source_mains"`
	WhereClause      string `toml:"where_clause"`
	BufferDistance   string `toml:"buffer_distance"`
	DateField        string `toml:"date_field"`
	DateExpression   string `toml:"date_expression"`
	ExpressionType   string `toml:"date_expression_type"`
	ProductionTarget string `toml:"production_target"`
}

// UnlockConfig lists the shared files whose network locks are released.
type UnlockConfig struct {
	Server      string   `toml:"server"`
	SharePrefix string   `toml:"share_prefix"`
	LocalPrefix string   `toml:"local_prefix"`
	Files       []string `toml:"files"`
}

// AssetWorksConfig drives the AssetWorks data conversion.
type AssetWorksConfig struct {
	Workspace      string           `toml:"workspace"`
	Dataset        string           `toml:"dataset"`
	ConfigKeyword  string           `toml:"config_keyword"`
	SpatialRefWKID int              `toml:"spatial_ref_wkid"`
	Copies         []AssetWorksCopy `toml:"copies"`
	Mains          string           `toml:"mains"`
	SegmentField   string           `toml:"segment_field"`
	Vertices       string           `toml:"vertices"`
	ScratchDir     string           `toml:"scratch_dir"`
	Privileges     []PrivilegeGrant `toml:"privileges"`
}

// AssetWorksCopy copies a production feature class into the conversion
// dataset under a new name.
type AssetWorksCopy struct {
	Source string `toml:"source"`
	Name   string `toml:"name"`
}

// PrivilegeGrant is a ChangePrivileges call applied to every feature class
// in the conversion dataset.
type PrivilegeGrant struct {
	User string `toml:"user"`
	View string `toml:"view"`
	Edit string `toml:"edit"`
}
