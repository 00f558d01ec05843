package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// ShowAlerts prints the most recent audited alerts as a table.
func (a *App) ShowAlerts(ctx context.Context, limit int) error {
	if limit <= 0 {
		limit = 20
	}

	store, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.ListRecentAlerts(ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no alerts recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FIRED AT\tSYMBOL\tKIND\tRULE\tMETRIC%\tTHRESHOLD%\tDIRECTION\tNOTABLE")
	for _, rec := range records {
		notable := ""
		if rec.Notable {
			notable = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.FiredAt.UTC().Format(time.RFC3339),
			rec.Symbol,
			rec.Kind,
			rec.RuleID,
			rec.MetricPct.StringFixed(4),
			rec.ThresholdPct.StringFixed(4),
			rec.Direction,
			notable,
		)
	}
	return w.Flush()
}
