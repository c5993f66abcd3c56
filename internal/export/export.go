// Package export rebuilds the disconnected basemap databases from the
// production geodatabase. Every copy falls back to the previous basemap
// when production is unavailable, so field users always get a complete,
// if possibly stale, snapshot.
package export

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nnww-gis/gisops/internal/config"
	"github.com/nnww-gis/gisops/internal/fallback"
	"github.com/nnww-gis/gisops/internal/geoprocess"
	"github.com/nnww-gis/gisops/internal/run"
)

// PersonalGDBVersion is the personal geodatabase format the basemap
// viewers can open.
const PersonalGDBVersion = "10.0"

// Exporter runs one export job.
type Exporter struct {
	tk  *geoprocess.Toolkit
	rc  *run.Context
	job config.ExportJob
}

// New returns an Exporter for job. job must carry its defaults, as
// produced by config.Load.
func New(tk *geoprocess.Toolkit, rc *run.Context, job config.ExportJob) *Exporter {
	return &Exporter{tk: tk, rc: rc, job: job}
}

func (e *Exporter) log() *zap.Logger { return e.rc.Logger() }

// Run executes the whole job. Failures are recorded on the run context
// and never stop later steps.
func (e *Exporter) Run(ctx context.Context) {
	e.CreateDatabase(ctx)

	if e.job.AddressLocator != "" {
		e.ExportAddressLocator(ctx)
	}
	for _, d := range e.job.Datasets {
		e.CreateDataset(ctx, d)
	}
	for _, fc := range e.job.FeatureClasses {
		e.ExportFeatureClass(ctx, fc)
	}

	e.CompactDatabase(ctx, e.job.TemporaryDB)
	e.DeleteDatabase(ctx, e.job.BasemapDB)
	e.RenameDatabase(ctx, e.job.TemporaryDB, e.job.BasemapDB)

	for _, sf := range e.job.Shapefiles {
		e.ExportToShapefile(ctx, e.shapefileSource(sf), sf.Shapefile, sf.IndexFields)
	}

	if e.job.ErrorLog != "" {
		if err := run.WriteErrorLog(e.job.ErrorLog, e.rc.Errors()); err != nil {
			e.rc.Warn(fmt.Sprintf("could not write error log %s: %v", e.job.ErrorLog, err))
		}
	}
}

// record adds a failed step to the error log under its own call rendering.
func (e *Exporter) record(op string, err error, pairs ...string) bool {
	if err == nil {
		return true
	}
	e.rc.Record(run.Fail(op, run.Cause(err), pairs...))
	return false
}

// CreateDatabase replaces the temporary database with an empty personal
// geodatabase, or with a copy of the template when the job has one.
func (e *Exporter) CreateDatabase(ctx context.Context) bool {
	temp := e.job.TemporaryDB
	e.log().Info("Creating database", zap.String("db", temp))

	if e.job.TemplateDB != "" {
		err := e.tk.DeleteIfExists(ctx, temp)
		if err == nil {
			err = e.tk.Copy(ctx, e.job.TemplateDB, temp)
		}
		return e.record("CreateDatabase", err, "templateDB", e.job.TemplateDB, "newDB", temp)
	}

	err := e.tk.DeleteIfExists(ctx, temp)
	if err == nil {
		folder, name := config.SplitLocator(temp)
		err = e.tk.CreatePersonalGDB(ctx, folder, name, PersonalGDBVersion)
	}
	return e.record("CreateDatabase", err, "newDB", temp)
}

// LocatorTask resolves the address locator copy.
func (e *Exporter) LocatorTask() fallback.Task {
	dest := e.job.AddressLocatorDest
	if dest == "" {
		// sdeDataOwner.CenterlineAddressPlusZone -> CenterlineAddressPlusZone
		dest = e.job.AddressLocator[strings.LastIndex(e.job.AddressLocator, ".")+1:]
	}
	return fallback.Task{
		Primary:     config.JoinLocator(e.job.ProductionDB, e.job.AddressLocator),
		Fallback:    config.JoinLocator(e.job.BasemapDB, dest),
		Destination: config.JoinLocator(e.job.TemporaryDB, dest),
	}
}

func (e *Exporter) ExportAddressLocator(ctx context.Context) fallback.Outcome {
	task := e.LocatorTask()
	e.log().Info("Exporting address locator", zap.String("source", task.Primary))
	op := fallback.Operation{
		Name: "ExportAddressLocator",
		Do: func(ctx context.Context, source, dest string) error {
			return e.tk.Copy(ctx, source, dest)
		},
	}
	return fallback.ExecuteWithFallback(ctx, e.rc, op, task)
}

// DatasetTask resolves a feature dataset whose spatial reference comes from
// production, or from the previous basemap when production is down.
func (e *Exporter) DatasetTask(d config.DatasetSpec) fallback.Task {
	primary := d.SourcePath
	if primary == "" {
		primary = config.SdeChain(e.job.ProductionDB, d.Name, e.job.Database, e.job.Owner)
	}
	return fallback.Task{
		Primary:     primary,
		Fallback:    config.MdbChain(e.job.BasemapDB, d.Name),
		Destination: config.MdbChain(e.job.TemporaryDB, d.Name),
	}
}

func (e *Exporter) CreateDataset(ctx context.Context, d config.DatasetSpec) fallback.Outcome {
	task := e.DatasetTask(d)
	e.log().Info("Creating empty dataset", zap.String("dataset", task.Destination))
	op := fallback.Operation{
		Name: "CreateDataset",
		Do: func(ctx context.Context, spatialRef, dest string) error {
			folder, name := config.SplitLocator(dest)
			return e.tk.CreateFeatureDataset(ctx, folder, name, spatialRef)
		},
	}
	return fallback.ExecuteWithFallback(ctx, e.rc, op, task)
}

// FeatureClassTask resolves one feature class copy.
func (e *Exporter) FeatureClassTask(fc config.FeatureClass) fallback.Task {
	primary := fc.SourcePath
	if primary == "" {
		primary = config.SdeChain(e.job.ProductionDB, fc.Source, e.job.Database, e.job.Owner)
	}
	return fallback.Task{
		Primary:     primary,
		Fallback:    config.MdbChain(e.job.BasemapDB, fc.Dest),
		Destination: config.MdbChain(e.job.TemporaryDB, fc.Dest),
	}
}

func (e *Exporter) ExportFeatureClass(ctx context.Context, fc config.FeatureClass) fallback.Outcome {
	task := e.FeatureClassTask(fc)
	e.log().Info("Exporting feature class", zap.String("source", task.Primary))
	op := fallback.Operation{
		Name: "ExportFeatureClass",
		Do: func(ctx context.Context, source, dest string) error {
			folder, name := config.SplitLocator(dest)
			return e.tk.FeatureClassToFeatureClass(ctx, source, folder, name, "")
		},
	}
	return fallback.ExecuteWithFallback(ctx, e.rc, op, task)
}

func (e *Exporter) CompactDatabase(ctx context.Context, db string) bool {
	e.log().Info("Compacting database", zap.String("db", db))
	return e.record("CompactDatabase", e.tk.Compact(ctx, db), "DB", db)
}

func (e *Exporter) DeleteDatabase(ctx context.Context, db string) bool {
	e.log().Info("Deleting database", zap.String("db", db))
	return e.record("DeleteDatabase", e.tk.DeleteIfExists(ctx, db), "DB", db)
}

func (e *Exporter) RenameDatabase(ctx context.Context, oldDB, newDB string) bool {
	e.log().Info("Renaming database", zap.String("from", oldDB), zap.String("to", newDB))
	return e.record("RenameDatabase", e.tk.Rename(ctx, oldDB, newDB), "oldDB", oldDB, "newDB", newDB)
}

func (e *Exporter) shapefileSource(sf config.ShapefileSpec) string {
	if sf.SourcePath != "" {
		return sf.SourcePath
	}
	return config.SdeChain(e.job.ProductionDB, sf.Source, e.job.Database, e.job.Owner)
}

// TempShapefile returns the staging name for shapefile: a\b\name.shp
// becomes a\b\name_Temp.shp.
func TempShapefile(shapefile string) (folder, tempName, tempPath string) {
	folder, name := config.SplitLocator(shapefile)
	base, ext := config.SplitExt(name)
	tempName = base + "_Temp" + ext
	return folder, tempName, config.JoinLocator(folder, tempName)
}

// ExportToShapefile refreshes shapefile from featureClass through a temp
// file, so a failed export leaves the previous shapefile in place. Indexes
// are rebuilt only after a successful swap.
func (e *Exporter) ExportToShapefile(ctx context.Context, featureClass, shapefile, indexFields string) bool {
	e.log().Info("Exporting to shapefile", zap.String("shapefile", shapefile))
	folder, tempName, temp := TempShapefile(shapefile)

	err := e.tk.DeleteIfExists(ctx, temp)
	if err == nil {
		err = e.tk.FeatureClassToFeatureClass(ctx, featureClass, folder, tempName, "")
	}
	if err == nil {
		err = e.tk.DeleteIfExists(ctx, shapefile)
	}
	if err == nil {
		err = e.tk.Rename(ctx, temp, shapefile)
	}
	if err != nil {
		e.record("ExportToShapefile", err, "featureClass", featureClass, "shapefile", shapefile)
		e.rc.Note(fmt.Sprintf("Using stale shapefile %q instead", shapefile))
		return false
	}

	e.record("AddSpatialIndex", e.tk.AddSpatialIndex(ctx, shapefile), "shapefile", shapefile)
	if indexFields != "" {
		e.record("AddIndex", e.tk.AddIndex(ctx, shapefile, indexFields), "shapefile", shapefile, "indexFields", indexFields)
	}
	return true
}
