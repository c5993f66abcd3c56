// Package distarea rebuilds the DistributionArea polygon: a buffer around
// the distribution mains, stamped with its creation date and swapped into
// production.
package distarea

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/nnww-gis/gisops/internal/config"
	"github.com/nnww-gis/gisops/internal/geoprocess"
	"github.com/nnww-gis/gisops/internal/run"
)

const (
	mainsName = "DistributionMain"
	areaName  = "DistributionArea"
)

// Rebuilder runs the rebuild. Any failure stops it.
type Rebuilder struct {
	tk  *geoprocess.Toolkit
	rc  *run.Context
	cfg config.DistributionAreaConfig
}

func New(tk *geoprocess.Toolkit, rc *run.Context, cfg config.DistributionAreaConfig) *Rebuilder {
	return &Rebuilder{tk: tk, rc: rc, cfg: cfg}
}

func (r *Rebuilder) gdb() string   { return config.JoinLocator(r.cfg.TempFolder, r.cfg.TempGDB) }
func (r *Rebuilder) mains() string { return config.JoinLocator(r.gdb(), mainsName) }
func (r *Rebuilder) area() string  { return config.JoinLocator(r.gdb(), areaName) }

// Run executes every phase in order and records the first failure.
func (r *Rebuilder) Run(ctx context.Context) error {
	phases := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"CreateTemporaryDatabase", r.createTemporaryDatabase},
		{"CreateFeatureClass", r.createFeatureClass},
		{"CopyToProductionDatabase", r.copyToProduction},
		{"DeleteTemporaryDatabase", r.deleteTemporaryDatabase},
	}
	for _, p := range phases {
		r.rc.Logger().Info("Doing " + p.name + " ...")
		if err := p.fn(ctx); err != nil {
			r.rc.Record(err)
			return err
		}
	}
	return nil
}

func (r *Rebuilder) createTemporaryDatabase(ctx context.Context) error {
	if err := CreateDirectory(ctx, r.tk, r.cfg.TempFolder); err != nil {
		return err
	}
	if err := r.tk.DeleteIfExists(ctx, r.gdb()); err != nil {
		return err
	}
	if err := r.tk.CreateFileGDB(ctx, r.cfg.TempFolder, r.cfg.TempGDB); err != nil {
		return err
	}
	r.rc.Logger().Info("Copying distribution mains", zap.String("where", r.cfg.WhereClause))
	return r.tk.Select(ctx, r.cfg.SourceMains, r.mains(), r.cfg.WhereClause)
}

func (r *Rebuilder) createFeatureClass(ctx context.Context) error {
	err := r.tk.Buffer(ctx, r.mains(), r.area(), geoprocess.BufferOptions{
		Distance:    r.cfg.BufferDistance,
		LineSide:    "FULL",
		LineEndType: "ROUND",
		Dissolve:    "ALL",
	})
	if err != nil {
		return err
	}
	if err := r.tk.AddField(ctx, r.area(), r.cfg.DateField, "DATE"); err != nil {
		return err
	}
	return r.tk.CalculateField(ctx, r.area(), r.cfg.DateField, r.cfg.DateExpression, r.cfg.ExpressionType)
}

func (r *Rebuilder) copyToProduction(ctx context.Context) error {
	if err := r.tk.DeleteFeatures(ctx, r.cfg.ProductionTarget); err != nil {
		return err
	}
	return r.tk.Append(ctx, r.area(), r.cfg.ProductionTarget)
}

func (r *Rebuilder) deleteTemporaryDatabase(ctx context.Context) error {
	return r.tk.Delete(ctx, r.gdb())
}

// CreateDirectory creates each missing folder along path, walking down
// from the drive or UNC share.
func CreateDirectory(ctx context.Context, tk *geoprocess.Toolkit, path string) error {
	cur, parts := splitRoot(path)
	for _, part := range parts {
		next := config.JoinLocator(cur, part)
		ok, err := tk.Exists(ctx, next)
		if err != nil {
			return err
		}
		if !ok {
			if err := tk.CreateFolder(ctx, cur, part); err != nil {
				return err
			}
		}
		cur = next
	}
	return nil
}

// splitRoot separates a drive ("C:") or share ("\\server\share") from the
// folders below it.
func splitRoot(path string) (root string, parts []string) {
	fields := strings.FieldsFunc(path, func(r rune) bool { return r == '\\' || r == '/' })
	switch {
	case strings.HasPrefix(path, `\\`) && len(fields) >= 2:
		return `\\` + fields[0] + `\` + fields[1], fields[2:]
	case len(fields) > 0 && len(fields[0]) == 2 && fields[0][1] == ':':
		return fields[0], fields[1:]
	default:
		return "", fields
	}
}
