package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/krx-sync/internal/krxsync/dataset"
	"github.com/sells-group/krx-sync/internal/model"
	"github.com/sells-group/krx-sync/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the sync run log",
	Long:  "Displays the most recent dataset runs recorded in krx.sync_log.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		entries, err := st.ListRuns(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		if len(entries) == 0 {
			zap.L().Info("no sync entries found, run 'krx-sync sync' to start syncing datasets")
			return nil
		}

		formatStatusEntries(os.Stdout, entries)

		summaries, err := datasetSummaries(ctx, st, dataset.NewRegistry())
		if err != nil {
			return eris.Wrap(err, "status")
		}
		_, _ = fmt.Fprintln(os.Stdout)
		formatDatasetSummaries(os.Stdout, summaries)
		return nil
	},
}

// datasetSummary is one registered dataset with its last completed run.
type datasetSummary struct {
	Name        string
	Phase       dataset.Phase
	Table       string
	LastSuccess *time.Time
}

// datasetSummaries looks up the last completed run of every registered dataset.
func datasetSummaries(ctx context.Context, st store.Store, reg *dataset.Registry) ([]datasetSummary, error) {
	all := reg.All()
	out := make([]datasetSummary, 0, len(all))
	for _, ds := range all {
		last, err := st.LastSuccess(ctx, ds.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, datasetSummary{
			Name:        ds.Name(),
			Phase:       ds.Phase(),
			Table:       ds.Table(),
			LastSuccess: last,
		})
	}
	return out, nil
}

// formatDatasetSummaries writes one line per dataset with its last success.
func formatDatasetSummaries(out io.Writer, summaries []datasetSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATASET\tPHASE\tTABLE\tLAST SUCCESS")
	for _, s := range summaries {
		last := "never"
		if s.LastSuccess != nil {
			last = s.LastSuccess.Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Name, s.Phase, s.Table, last)
	}
	_ = w.Flush()
}

func init() {
	statusCmd.Flags().Int("limit", 50, "number of runs to show (0 = all)")
	rootCmd.AddCommand(statusCmd)
}

// formatStatusEntries writes a tabular representation of sync entries to w.
func formatStatusEntries(out io.Writer, entries []model.SyncEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tDATASET\tSTATUS\tREF_DT\tSTARTED\tDURATION\tROWS\tFAILED\tERROR")
	_, _ = fmt.Fprintln(w, "--\t-------\t------\t------\t-------\t--------\t----\t------\t-----")

	for _, e := range entries {
		dur := "-"
		if e.CompletedAt != nil {
			d := e.CompletedAt.Sub(e.StartedAt).Round(time.Second)
			dur = d.String()
		}

		refDt := "-"
		if v, ok := e.Metadata["ref_dt"].(string); ok {
			refDt = v
		}

		failed := "-"
		if v, ok := e.Metadata["failed"]; ok {
			failed = fmt.Sprint(v)
		}

		errMsg := ""
		if e.Error != "" {
			errMsg = truncate(e.Error, 60)
		}

		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			e.ID,
			e.Dataset,
			e.Status,
			refDt,
			e.StartedAt.Format("2006-01-02 15:04"),
			dur,
			e.RowsSynced,
			failed,
			errMsg,
		)
	}
	_ = w.Flush()
}

// truncate shortens s to max runes, ending in "..." when cut.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
