package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nnww-gis/gisops/internal/calcarealen"
	"github.com/nnww-gis/gisops/internal/geoprocess"
	"github.com/nnww-gis/gisops/internal/style"
)

var calcAreaLenCmd = &cobra.Command{
	Use:     "calc-area-len <feature class>",
	GroupID: GroupTools,
	Short:   "Add and calculate an Area or Length field",
	Long: `Add a DOUBLE field to a feature class and fill it from the geometry:
Area for polygons, Length for polylines. An existing field is reused.

Example:
  gisops calc-area-len 'C:\GIS\Parcels.gdb\Parcels'`,
	Args: cobra.ExactArgs(1),
	RunE: runCalcAreaLen,
}

func init() {
	rootCmd.AddCommand(calcAreaLenCmd)
}

func runCalcAreaLen(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := consoleLogger(cfg)
	tk := geoprocess.NewToolkit(newGeoRunner(cfg, log))
	f, err := calcarealen.Calculate(cmd.Context(), tk, log, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s %s calculated on %s\n", style.SuccessPrefix, style.Bold.Render(f.Name), args[0])
	return nil
}
