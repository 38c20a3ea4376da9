package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/cognicore/neardup/pkg/neardup/dedup"
)

var separator = strings.Repeat("-", 80)

// Render prints the run summary.
func Render(w io.Writer, sum dedup.Summary) {
	green := color.New(color.FgGreen, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(w, "Kept %s out of %s documents%s\n",
		green(humanize.Comma(int64(sum.Kept))),
		humanize.Comma(int64(sum.Total)),
		gray(percent(sum.Kept, sum.Total)),
	)
	fmt.Fprintf(w, "Dropped %s near-duplicates\n", yellow(humanize.Comma(int64(sum.Dropped))))
	if sum.Errors > 0 {
		fmt.Fprintf(w, "Skipped %s invalid records (%s malformed, %s missing text)\n",
			red(humanize.Comma(int64(sum.Errors))),
			humanize.Comma(int64(sum.MalformedErrors)),
			humanize.Comma(int64(sum.MissingFieldErrors)),
		)
	}
	if sum.Restored > 0 {
		fmt.Fprintf(w, "Compared against %s representatives from earlier runs\n", humanize.Comma(int64(sum.Restored)))
	}
	fmt.Fprintf(w, "%s\n", gray(fmt.Sprintf("threshold %.2f, %d permutations, %s, %s",
		sum.Threshold, sum.NumPerm, sum.Params, sum.Duration.Round(1e6))))
	if sum.RunID != "" {
		fmt.Fprintf(w, "%s\n", gray("run "+sum.RunID))
	}
}

func percent(part, total int) string {
	if total == 0 {
		return ""
	}
	return fmt.Sprintf(" (%.1f%%)", 100*float64(part)/float64(total))
}

// RenderExamples prints kept/removed pairs for manual inspection.
func RenderExamples(w io.Writer, examples []dedup.Example) {
	if len(examples) == 0 {
		return
	}
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()

	fmt.Fprintf(w, "\nShowing %d duplicate examples (kept vs. removed):\n", len(examples))
	for _, ex := range examples {
		fmt.Fprintf(w, "\n%s\n", separator)
		fmt.Fprintf(w, "%s %s\n", cyan("[KEPT]:"), ex.KeptID)
		fmt.Fprintln(w, ex.KeptText)
		fmt.Fprintf(w, "\n%s %s\n", cyan("[REMOVED]:"), ex.RemovedID)
		fmt.Fprintln(w, ex.RemovedText)
	}
}

// WriteJSON writes the summary as indented JSON to path.
func WriteJSON(path string, sum dedup.Summary) error {
	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
