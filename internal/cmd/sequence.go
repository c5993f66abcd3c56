package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nnww-gis/gisops/internal/vertex"
)

var (
	seqSegmentCol  string
	seqPositionCol string
)

var sequenceCmd = &cobra.Command{
	Use:     "sequence-vertices <in.csv> [out.csv]",
	GroupID: GroupTools,
	Short:   "Number vertices within each segment of a CSV table",
	Long: `Read a CSV vertex table sorted by segment and write it back with the
position column filled: 1, 2, 3 ... restarting whenever the segment
column changes value.

Use "-" for stdin or stdout. The output defaults to stdout.

Example:
  gisops sequence-vertices vertices.csv sequenced.csv
  gisops sequence-vertices --segment-col SEG --position-col POS - < in.csv`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSequence,
}

func init() {
	sequenceCmd.Flags().StringVar(&seqSegmentCol, "segment-col", "SegmentID", "Segment id column")
	sequenceCmd.Flags().StringVar(&seqPositionCol, "position-col", "VertexID", "Position column to fill")
	rootCmd.AddCommand(sequenceCmd)
}

func runSequence(cmd *cobra.Command, args []string) error {
	in := cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	t, err := vertex.ReadTable(in)
	if err != nil {
		return err
	}
	if err := t.Sequence(seqSegmentCol, seqPositionCol); err != nil {
		return err
	}

	var out io.Writer = cmd.OutOrStdout()
	if len(args) == 2 && args[1] != "-" {
		f, err := os.Create(args[1])
		if err != nil {
			return err
		}
		if err := t.Write(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%d rows sequenced into %s\n", len(t.Rows), args[1])
		return nil
	}
	return t.Write(out)
}
