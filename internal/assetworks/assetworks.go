// Package assetworks builds the DataConversion dataset the AssetWorks
// asset management system imports: copies of the water network feature
// classes plus one point per main vertex, numbered along each segment.
package assetworks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/nnww-gis/gisops/internal/config"
	"github.com/nnww-gis/gisops/internal/geoprocess"
	"github.com/nnww-gis/gisops/internal/run"
	"github.com/nnww-gis/gisops/internal/vertex"
)

const (
	segmentIDField = "SegmentID"
	vertexIDField  = "VertexID"
	objectIDField  = "OBJECTID"
	pythonExpr     = "PYTHON_9.3"
)

// Converter runs the conversion. Every step is required, so the first
// failure ends the run.
type Converter struct {
	tk  *geoprocess.Toolkit
	rc  *run.Context
	cfg config.AssetWorksConfig
}

func New(tk *geoprocess.Toolkit, rc *run.Context, cfg config.AssetWorksConfig) *Converter {
	return &Converter{tk: tk, rc: rc, cfg: cfg}
}

func (c *Converter) dataset() string           { return config.JoinLocator(c.cfg.Workspace, c.cfg.Dataset) }
func (c *Converter) inDataset(n string) string { return config.JoinLocator(c.dataset(), n) }
func (c *Converter) inWorkspace(n string) string {
	return config.JoinLocator(c.cfg.Workspace, n)
}

func (c *Converter) mains() string     { return c.inDataset(c.cfg.Mains) }
func (c *Converter) dissolved() string { return c.inDataset(c.cfg.Mains + "_Dissolved") }
func (c *Converter) points() string    { return c.inDataset(c.cfg.Mains + "_Points") }
func (c *Converter) converted() string { return c.inWorkspace(c.cfg.Mains + "_Points_Converted") }
func (c *Converter) vertices() string  { return c.inDataset(c.cfg.Vertices) }
func (c *Converter) sorted() string    { return c.inDataset(c.cfg.Vertices + "_Sorted") }

func (c *Converter) wkid() string { return strconv.Itoa(c.cfg.SpatialRefWKID) }

// Run executes every step in order.
func (c *Converter) Run(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"CreateDataset", c.createDataset},
		{"CopyFeatureClasses", c.copyFeatureClasses},
		{"DissolveMains", c.dissolveMains},
		{"CreateVertexPoints", c.createVertexPoints},
		{"ConvertCoordinates", c.convertCoordinates},
		{"PrepareVertices", c.prepareVertices},
		{"SequenceVertices", c.sequenceVertices},
		{"ReplaceVertices", c.replaceVertices},
		{"ChangePrivileges", c.changePrivileges},
	}
	for _, s := range steps {
		c.rc.Logger().Info("Doing " + s.name + " ...")
		if err := s.fn(ctx); err != nil {
			c.rc.Record(err)
			return err
		}
	}
	return nil
}

func (c *Converter) createDataset(ctx context.Context) error {
	if err := c.tk.DeleteIfExists(ctx, c.dataset()); err != nil {
		return err
	}
	return c.tk.CreateFeatureDataset(ctx, c.cfg.Workspace, c.cfg.Dataset, c.wkid())
}

func (c *Converter) copyFeatureClasses(ctx context.Context) error {
	for _, cp := range c.cfg.Copies {
		if err := c.tk.FeatureClassToFeatureClass(ctx, cp.Source, c.dataset(), cp.Name, c.cfg.ConfigKeyword); err != nil {
			return err
		}
		c.rc.Logger().Info("converted", zap.String("featureClass", cp.Name))
	}
	return nil
}

func (c *Converter) dissolveMains(ctx context.Context) error {
	return c.tk.Dissolve(ctx, c.mains(), c.dissolved(), c.cfg.SegmentField, "SINGLE_PART")
}

func (c *Converter) createVertexPoints(ctx context.Context) error {
	if err := c.tk.FeatureVerticesToPoints(ctx, c.dissolved(), c.points(), "ALL"); err != nil {
		return err
	}
	for _, f := range []struct{ name, expr string }{
		{"Latitude", "!SHAPE.extent.YMax!"},
		{"Longitude", "!SHAPE.extent.XMax!"},
	} {
		if err := c.tk.AddField(ctx, c.points(), f.name, "DOUBLE"); err != nil {
			return err
		}
		if err := c.tk.CalculateField(ctx, c.points(), f.name, f.expr, pythonExpr); err != nil {
			return err
		}
	}
	return nil
}

// convertCoordinates rewrites Latitude/Longitude as decimal degrees with
// the hemisphere letters stripped and west longitudes negated.
func (c *Converter) convertCoordinates(ctx context.Context) error {
	out := c.converted()
	if err := c.tk.ConvertCoordinateNotation(ctx, c.points(), out, "Latitude", "Longitude", "SHAPE", "DD_2", c.wkid()); err != nil {
		return err
	}
	for _, calc := range []struct{ field, expr string }{
		{"Latitude", "!DDLat![:-1]"},
		{"Longitude", "!DDLon![1:-1]"},
		{"Longitude", "- !Longitude!"},
	} {
		if err := c.tk.CalculateField(ctx, out, calc.field, calc.expr, pythonExpr); err != nil {
			return err
		}
	}
	if err := c.tk.DeleteField(ctx, out, "DDLat", "DDLon"); err != nil {
		return err
	}
	if err := c.tk.Delete(ctx, c.points()); err != nil {
		return err
	}
	if err := c.tk.Copy(ctx, out, c.vertices()); err != nil {
		return err
	}
	return c.tk.Delete(ctx, out)
}

// prepareVertices swaps the network segment field for a numeric SegmentID
// taken from the dissolved feature id and adds an empty VertexID.
func (c *Converter) prepareVertices(ctx context.Context) error {
	v := c.vertices()
	if err := c.tk.DeleteField(ctx, v, c.cfg.SegmentField); err != nil {
		return err
	}
	if err := c.tk.AddField(ctx, v, segmentIDField, "LONG"); err != nil {
		return err
	}
	if err := c.tk.CalculateField(ctx, v, segmentIDField, "!ORIG_FID!", pythonExpr); err != nil {
		return err
	}
	if err := c.tk.DeleteField(ctx, v, "ORIG_FID"); err != nil {
		return err
	}
	if err := c.tk.AddField(ctx, v, vertexIDField, "LONG"); err != nil {
		return err
	}
	return c.tk.Sort(ctx, v, c.sorted(), segmentIDField+" ASCENDING")
}

// sequenceVertices numbers the sorted vertices 1..n within each run of
// equal SegmentID, round-tripping the rows through CSV.
func (c *Converter) sequenceVertices(ctx context.Context) error {
	if err := os.MkdirAll(c.cfg.ScratchDir, 0755); err != nil {
		return run.Fail("SequenceVertices", err, "scratchDir", c.cfg.ScratchDir)
	}
	exported := filepath.Join(c.cfg.ScratchDir, c.cfg.Vertices+"_export.csv")
	sequenced := filepath.Join(c.cfg.ScratchDir, c.cfg.Vertices+"_sequenced.csv")

	if err := c.tk.ExportRows(ctx, c.sorted(), exported, objectIDField, segmentIDField); err != nil {
		return err
	}
	n, err := SequenceFile(exported, sequenced)
	if err != nil {
		return run.Fail("SequenceVertices", err, "csv", exported)
	}
	c.rc.Logger().Info("sequenced vertices", zap.Int("rows", n))
	return c.tk.ImportRows(ctx, c.sorted(), sequenced, objectIDField, vertexIDField)
}

// SequenceFile reads a SegmentID table from in, fills VertexID and writes
// the result to out. It returns the number of rows.
func SequenceFile(in, out string) (int, error) {
	f, err := os.Open(in) //nolint:gosec // G304: scratch path built from config
	if err != nil {
		return 0, err
	}
	t, err := vertex.ReadTable(f)
	f.Close()
	if err != nil {
		return 0, err
	}
	if err := t.Sequence(segmentIDField, vertexIDField); err != nil {
		return 0, err
	}

	w, err := os.Create(out) //nolint:gosec // G304: scratch path built from config
	if err != nil {
		return 0, err
	}
	if err := t.Write(w); err != nil {
		w.Close()
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("closing %s: %w", out, err)
	}
	return len(t.Rows), nil
}

func (c *Converter) replaceVertices(ctx context.Context) error {
	if err := c.tk.Delete(ctx, c.vertices()); err != nil {
		return err
	}
	if err := c.tk.CopyFeatures(ctx, c.sorted(), c.vertices()); err != nil {
		return err
	}
	return c.tk.Delete(ctx, c.sorted())
}

func (c *Converter) changePrivileges(ctx context.Context) error {
	fcs, err := c.tk.ListFeatureClasses(ctx, c.dataset(), "")
	if err != nil {
		return err
	}
	for _, fc := range fcs {
		for _, p := range c.cfg.Privileges {
			if err := c.tk.ChangePrivileges(ctx, fc, p.User, p.View, p.Edit); err != nil {
				return err
			}
		}
	}
	return nil
}
