// Package calcarealen fills an Area or Length field from feature geometry.
package calcarealen

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/nnww-gis/gisops/internal/geoprocess"
)

// ErrUnsupportedShape is returned for geometry types other than Polygon and
// Polyline.
var ErrUnsupportedShape = errors.New("shape type must be Polygon or Polyline")

// Field is the field and expression used for a geometry type.
type Field struct {
	Name       string
	Expression string
}

// FieldFor returns the field to calculate for shapeType.
func FieldFor(shapeType string) (Field, error) {
	switch shapeType {
	case "Polygon":
		return Field{Name: "Area", Expression: "!shape.area!"}, nil
	case "Polyline":
		return Field{Name: "Length", Expression: "!shape.length!"}, nil
	}
	return Field{}, fmt.Errorf("%s: %w", shapeType, ErrUnsupportedShape)
}

// Calculate adds the field when missing and calculates it for every
// feature in fc.
func Calculate(ctx context.Context, tk *geoprocess.Toolkit, log *zap.Logger, fc string) (Field, error) {
	shape, err := tk.DescribeShapeType(ctx, fc)
	if err != nil {
		return Field{}, err
	}
	f, err := FieldFor(shape)
	if err != nil {
		return Field{}, err
	}
	// AddField fails when the field exists already.
	if err := tk.AddField(ctx, fc, f.Name, "DOUBLE"); err != nil {
		log.Info("field not added", zap.String("field", f.Name), zap.Error(err))
	}
	if err := tk.CalculateField(ctx, fc, f.Name, f.Expression, "PYTHON_9.3"); err != nil {
		return f, err
	}
	log.Info("calculated", zap.String("field", f.Name), zap.String("featureClass", fc))
	return f, nil
}
