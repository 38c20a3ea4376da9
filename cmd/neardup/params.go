package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cognicore/neardup/pkg/neardup/lsh"
)

func newParamsCmd() *cobra.Command {
	var (
		threshold float64
		numPerm   int
		fpWeight  float64
		fnWeight  float64
	)

	cmd := &cobra.Command{
		Use:   "params",
		Short: "Show the LSH bands and rows chosen for a threshold",
		Long: `Print the (bands, rows) layout that minimizes the weighted false positive and
false negative areas for the given threshold, and the resulting probability
that a pair of a given similarity becomes a candidate.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := lsh.OptimalParams(threshold, numPerm, lsh.Weights{
				FalsePositive: fpWeight,
				FalseNegative: fnWeight,
			})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "threshold %.2f, %d permutations: %s\n", threshold, numPerm, p)
			fmt.Fprintf(w, "false positive area %.4f, false negative area %.4f\n\n",
				lsh.FalsePositiveArea(threshold, p), lsh.FalseNegativeArea(threshold, p))

			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "similarity\tP(candidate)")
			for i := 10; i <= 20; i++ {
				s := float64(i) / 20
				fmt.Fprintf(tw, "%.2f\t%.4f\n", s, lsh.CollisionProbability(s, p))
			}
			return tw.Flush()
		},
	}

	fl := cmd.Flags()
	fl.Float64Var(&threshold, "threshold", 0.85, "Jaccard similarity threshold in (0,1)")
	fl.IntVar(&numPerm, "num-perm", 256, "MinHash signature length")
	fl.Float64Var(&fpWeight, "fp-weight", 0.5, "Weight of the false positive area")
	fl.Float64Var(&fnWeight, "fn-weight", 0.5, "Weight of the false negative area")
	return cmd
}
