package geoprocess

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nnww-gis/gisops/internal/run"
)

// Toolkit exposes the toolkit calls used by the task commands. Every
// failure is returned as a *run.Failure naming the call and its arguments.
type Toolkit struct {
	r Runner
}

// NewToolkit wraps r.
func NewToolkit(r Runner) *Toolkit {
	return &Toolkit{r: r}
}

// Runner returns the underlying runner.
func (t *Toolkit) Runner() Runner { return t.r }

// call runs tool and wraps any error with the named arguments. pairs are
// alternating name/value; the values are passed to the bridge in order.
func (t *Toolkit) call(ctx context.Context, tool string, pairs ...string) ([]byte, error) {
	values := make([]string, 0, len(pairs)/2)
	for i := 1; i < len(pairs); i += 2 {
		values = append(values, pairs[i])
	}
	out, err := t.r.Run(ctx, tool, values...)
	if err != nil {
		return nil, run.Fail(tool, err, pairs...)
	}
	return out, nil
}

// Call runs a tool this type has no method for.
func (t *Toolkit) Call(ctx context.Context, tool string, pairs ...string) ([]byte, error) {
	return t.call(ctx, tool, pairs...)
}

// CallLines runs tool and splits its output into non-empty lines.
func (t *Toolkit) CallLines(ctx context.Context, tool string, pairs ...string) ([]string, error) {
	out, err := t.call(ctx, tool, pairs...)
	if err != nil {
		return nil, err
	}
	return lines(out), nil
}

func (t *Toolkit) exec(ctx context.Context, tool string, pairs ...string) error {
	_, err := t.call(ctx, tool, pairs...)
	return err
}

// Exists reports whether a dataset, database or file exists. Empty output
// means it does not; any other non-boolean output is a failure.
func (t *Toolkit) Exists(ctx context.Context, loc string) (bool, error) {
	out, err := t.call(ctx, "Exists", "dataset", loc)
	if err != nil {
		return false, err
	}
	text := strings.TrimSpace(string(out))
	if text == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(text)
	if err != nil {
		return false, run.Fail("Exists", fmt.Errorf("unexpected output %q", text), "dataset", loc)
	}
	return v, nil
}

// DeleteIfExists deletes loc when it exists.
func (t *Toolkit) DeleteIfExists(ctx context.Context, loc string) error {
	ok, err := t.Exists(ctx, loc)
	if err != nil || !ok {
		return err
	}
	return t.Delete(ctx, loc)
}

func (t *Toolkit) Delete(ctx context.Context, loc string) error {
	return t.exec(ctx, "Delete", "dataset", loc)
}

func (t *Toolkit) Copy(ctx context.Context, src, dst string) error {
	return t.exec(ctx, "Copy", "source", src, "destination", dst)
}

func (t *Toolkit) Rename(ctx context.Context, from, to string) error {
	return t.exec(ctx, "Rename", "from", from, "to", to)
}

func (t *Toolkit) Compact(ctx context.Context, db string) error {
	return t.exec(ctx, "Compact", "database", db)
}

func (t *Toolkit) CreateFolder(ctx context.Context, parent, name string) error {
	return t.exec(ctx, "CreateFolder", "parent", parent, "name", name)
}

func (t *Toolkit) CreatePersonalGDB(ctx context.Context, folder, name, version string) error {
	return t.exec(ctx, "CreatePersonalGDB", "folder", folder, "name", name, "version", version)
}

func (t *Toolkit) CreateFileGDB(ctx context.Context, folder, name string) error {
	return t.exec(ctx, "CreateFileGDB", "folder", folder, "name", name)
}

// CreateFeatureDataset creates an empty dataset. spatialRef is either a
// dataset whose spatial reference is copied or a WKID.
func (t *Toolkit) CreateFeatureDataset(ctx context.Context, workspace, name, spatialRef string) error {
	return t.exec(ctx, "CreateFeatureDataset", "workspace", workspace, "name", name, "spatialReference", spatialRef)
}

func (t *Toolkit) FeatureClassToFeatureClass(ctx context.Context, src, outPath, outName, configKeyword string) error {
	return t.exec(ctx, "FeatureClassToFeatureClass",
		"source", src, "outPath", outPath, "outName", outName, "configKeyword", configKeyword)
}

func (t *Toolkit) AddSpatialIndex(ctx context.Context, fc string) error {
	return t.exec(ctx, "AddSpatialIndex", "featureClass", fc)
}

func (t *Toolkit) AddIndex(ctx context.Context, fc, fields string) error {
	return t.exec(ctx, "AddIndex", "featureClass", fc, "fields", fields)
}

func (t *Toolkit) Select(ctx context.Context, in, out, where string) error {
	return t.exec(ctx, "Select", "in", in, "out", out, "where", where)
}

// BufferOptions are the Buffer parameters besides input and output.
type BufferOptions struct {
	Distance    string
	LineSide    string
	LineEndType string
	Dissolve    string
	DissolveBy  string
}

func (t *Toolkit) Buffer(ctx context.Context, in, out string, opts BufferOptions) error {
	return t.exec(ctx, "Buffer", "in", in, "out", out,
		"distance", opts.Distance, "lineSide", opts.LineSide, "lineEndType", opts.LineEndType,
		"dissolve", opts.Dissolve, "dissolveField", opts.DissolveBy)
}

func (t *Toolkit) AddField(ctx context.Context, table, field, fieldType string) error {
	return t.exec(ctx, "AddField", "table", table, "field", field, "type", fieldType)
}

func (t *Toolkit) CalculateField(ctx context.Context, table, field, expr, exprType string) error {
	return t.exec(ctx, "CalculateField", "table", table, "field", field, "expression", expr, "expressionType", exprType)
}

// DeleteField drops one or more fields, passed as a ;-separated list.
func (t *Toolkit) DeleteField(ctx context.Context, table string, fields ...string) error {
	return t.exec(ctx, "DeleteField", "table", table, "fields", strings.Join(fields, ";"))
}

func (t *Toolkit) DeleteFeatures(ctx context.Context, fc string) error {
	return t.exec(ctx, "DeleteFeatures", "featureClass", fc)
}

func (t *Toolkit) Append(ctx context.Context, src, target string) error {
	return t.exec(ctx, "Append", "source", src, "target", target)
}

func (t *Toolkit) Dissolve(ctx context.Context, in, out, field, multiPart string) error {
	return t.exec(ctx, "Dissolve", "in", in, "out", out, "field", field, "multiPart", multiPart)
}

func (t *Toolkit) FeatureVerticesToPoints(ctx context.Context, in, out, pointLocation string) error {
	return t.exec(ctx, "FeatureVerticesToPoints", "in", in, "out", out, "pointLocation", pointLocation)
}

func (t *Toolkit) ConvertCoordinateNotation(ctx context.Context, in, out, xField, yField, inFormat, outFormat, spatialRef string) error {
	return t.exec(ctx, "ConvertCoordinateNotation", "in", in, "out", out,
		"xField", xField, "yField", yField, "inputFormat", inFormat, "outputFormat", outFormat,
		"spatialReference", spatialRef)
}

// Sort sorts in by fields ("Field ASCENDING;Other DESCENDING") into out.
func (t *Toolkit) Sort(ctx context.Context, in, out, fields string) error {
	return t.exec(ctx, "Sort", "in", in, "out", out, "fields", fields)
}

func (t *Toolkit) CopyFeatures(ctx context.Context, in, out string) error {
	return t.exec(ctx, "CopyFeatures", "in", in, "out", out)
}

// ExportRows writes the given fields of table, in table order, to a CSV
// file with a header row.
func (t *Toolkit) ExportRows(ctx context.Context, table, csvPath string, fields ...string) error {
	return t.exec(ctx, "ExportRows", "table", table, "csv", csvPath, "fields", strings.Join(fields, ";"))
}

// ImportRows updates table from a CSV file, matching rows on keyField and
// writing the listed fields.
func (t *Toolkit) ImportRows(ctx context.Context, table, csvPath, keyField string, fields ...string) error {
	return t.exec(ctx, "ImportRows", "table", table, "csv", csvPath, "key", keyField, "fields", strings.Join(fields, ";"))
}

func (t *Toolkit) ChangePrivileges(ctx context.Context, dataset, user, view, edit string) error {
	return t.exec(ctx, "ChangePrivileges", "dataset", dataset, "user", user, "view", view, "edit", edit)
}

// ListFeatureClasses lists feature classes in a workspace or dataset.
func (t *Toolkit) ListFeatureClasses(ctx context.Context, workspace, pattern string) ([]string, error) {
	out, err := t.call(ctx, "ListFeatureClasses", "workspace", workspace, "pattern", pattern)
	if err != nil {
		return nil, err
	}
	return lines(out), nil
}

// DescribeShapeType returns the geometry type of a feature class, such as
// Polygon or Polyline.
func (t *Toolkit) DescribeShapeType(ctx context.Context, fc string) (string, error) {
	out, err := t.call(ctx, "DescribeShapeType", "featureClass", fc)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// lines splits bridge output into trimmed, non-empty lines.
func lines(out []byte) []string {
	var res []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if l := strings.TrimSpace(sc.Text()); l != "" {
			res = append(res, l)
		}
	}
	return res
}
