// gisops runs the GIS department's scheduled operations.
package main

import (
	"os"

	"github.com/nnww-gis/gisops/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
