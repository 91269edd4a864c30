package pipeline

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/fatih/color"
	"github.com/invertedv/psm/estimate"
	"github.com/olekukonko/tablewriter"
)

// Report writes the results of one data set.
func Report(w io.Writer, runID string, r *Result) {
	head := color.New(color.FgCyan, color.Bold)
	sub := color.New(color.FgYellow)

	_, _ = head.Fprintf(w, "\n=== %s (run %s) ===\n", r.Name, runID)
	_, _ = fmt.Fprintf(w, "rows loaded %d, dropped for missing treatment or covariates %d\n", r.Rows, r.Dropped)

	_, _ = sub.Fprintln(w, "\nPropensity model variable importance")
	names := make([]string, 0, len(r.Importance))
	for nm := range r.Importance {
		names = append(names, nm)
	}

	sort.SliceStable(names, func(i, j int) bool { return r.Importance[names[i]] > r.Importance[names[j]] })

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Covariate", "Importance"})
	for _, nm := range names {
		table.Append([]string{nm, strconv.FormatFloat(r.Importance[nm], 'f', 4, 64)})
	}

	table.Render()

	_, _ = sub.Fprintln(w, "\nBalance")
	r.Summary.Write(w)

	if len(r.RawEffects) > 0 {
		_, _ = sub.Fprintln(w, "\nOutcome tests, all data")
		estimate.Report(w, r.RawEffects...)
		_, _ = sub.Fprintln(w, "\nOutcome tests, matched data")
		estimate.Report(w, r.Effects...)
	}

	for _, eff := range r.Effects {
		_, _ = fmt.Fprintf(w, "\n%s\n", eff)
	}

	if len(r.Figures) > 0 {
		_, _ = sub.Fprintln(w, "\nFigures")
		for _, f := range r.Figures {
			_, _ = fmt.Fprintln(w, f)
		}
	}

	if len(r.SavedTo) > 0 {
		_, _ = sub.Fprintln(w, "\nMatched data saved to")
		for _, f := range r.SavedTo {
			_, _ = fmt.Fprintln(w, f)
		}
	}
}
