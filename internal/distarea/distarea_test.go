package distarea

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nnww-gis/gisops/internal/config"
	"github.com/nnww-gis/gisops/internal/geoprocess"
	"github.com/nnww-gis/gisops/internal/run"
)

func testConfig() config.DistributionAreaConfig {
	return config.DistributionAreaConfig{
		TempFolder:       `C:\GIS\Databases`,
		TempGDB:          "DistributionArea.gdb",
		SourceMains:      `\\arctic\conn.sde\sdeVector.sdeDataOwner.WaterUtility\sdeVector.sdeDataOwner.wPressurizedMain`,
		WhereClause:      "Subsystem = 50",
		BufferDistance:   "500 FEET",
		DateField:        "FeatureCreationDate",
		DateExpression:   "Date()",
		ExpressionType:   "VB",
		ProductionTarget: `\\arctic\conn.sde\sdeVector.sdeDataOwner.DistributionArea`,
	}
}

func TestSplitRoot(t *testing.T) {
	tests := []struct {
		in    string
		root  string
		parts string
	}{
		{`C:\GIS\Databases`, "C:", "GIS,Databases"},
		{`\\arctic\GIS_Data\Export`, `\\arctic\GIS_Data`, "Export"},
		{`relative\dir`, "", "relative,dir"},
	}
	for _, tt := range tests {
		root, parts := splitRoot(tt.in)
		if root != tt.root || strings.Join(parts, ",") != tt.parts {
			t.Errorf("splitRoot(%q) = %q, %v; want %q, %s", tt.in, root, parts, tt.root, tt.parts)
		}
	}
}

func TestCreateDirectoryOnlyMissing(t *testing.T) {
	dry := &geoprocess.DryRunner{Respond: func(c geoprocess.Call) ([]byte, error) {
		if c.Tool == "Exists" && c.Args[0] == `C:\GIS` {
			return []byte("true"), nil
		}
		return nil, nil
	}}
	if err := CreateDirectory(context.Background(), geoprocess.NewToolkit(dry), `C:\GIS\Databases`); err != nil {
		t.Fatal(err)
	}
	var created []string
	for _, c := range dry.Calls() {
		if c.Tool == "CreateFolder" {
			created = append(created, c.Args[0]+"|"+c.Args[1])
		}
	}
	if len(created) != 1 || created[0] != `C:\GIS|Databases` {
		t.Errorf("created = %v", created)
	}
}

func TestRunSequence(t *testing.T) {
	dry := &geoprocess.DryRunner{}
	rc := run.New("gisops distribution-area", run.Env{Host: "arctic"})
	if err := New(geoprocess.NewToolkit(dry), rc, testConfig()).Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	want := "Exists,CreateFolder,Exists,CreateFolder,Exists,CreateFileGDB,Select,Buffer,AddField,CalculateField,DeleteFeatures,Append,Delete"
	if got := strings.Join(dry.Tools(), ","); got != want {
		t.Errorf("tools = %s\nwant  %s", got, want)
	}
	calls := dry.Calls()
	buffer := calls[7]
	if strings.Join(buffer.Args, "|") != `C:\GIS\Databases\DistributionArea.gdb\DistributionMain|C:\GIS\Databases\DistributionArea.gdb\DistributionArea|500 FEET|FULL|ROUND|ALL|` {
		t.Errorf("Buffer args = %v", buffer.Args)
	}
	if rc.Failed() {
		t.Errorf("errors = %v", rc.Errors())
	}
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	dry := &geoprocess.DryRunner{Respond: func(c geoprocess.Call) ([]byte, error) {
		if c.Tool == "Buffer" {
			return nil, errors.New("ERROR 000210: Cannot create output")
		}
		return nil, nil
	}}
	rc := run.New("gisops distribution-area", run.Env{})
	err := New(geoprocess.NewToolkit(dry), rc, testConfig()).Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	tools := dry.Tools()
	if tools[len(tools)-1] != "Buffer" {
		t.Errorf("ran past the failure: %v", tools)
	}
	errs := rc.Errors()
	if len(errs) != 1 || !strings.HasPrefix(errs[0].Context, "Buffer(in=") || errs[0].Detail != "ERROR 000210: Cannot create output" {
		t.Errorf("errors = %v", errs)
	}
}
