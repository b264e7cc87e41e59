package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/krx-sync/internal/config"
	"github.com/sells-group/krx-sync/internal/fetcher"
	"github.com/sells-group/krx-sync/internal/krx"
	"github.com/sells-group/krx-sync/internal/krxsync"
	"github.com/sells-group/krx-sync/internal/krxsync/dataset"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync KRX datasets",
	Long: `Sync KRX datasets into krx.* tables.

By default, runs every dataset in order: sector, ticker, price, foreign.
Use --phase to restrict to catalog or price, or --datasets for specific datasets.
Use --date to pin the reference day (YYYYMMDD); weekends resolve to the prior Friday.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := interruptContext(cmd.Context())
		defer stop()

		if err := cfg.Validate(); err != nil {
			return err
		}

		opts, err := parseSyncOpts(cmd)
		if err != nil {
			return err
		}
		day, err := parseRefDay(cmd, time.Now())
		if err != nil {
			return err
		}

		if err := runSync(ctx, cfg, newSource(cfg), opts, day); err != nil {
			return err
		}

		fmt.Println("Sync complete")
		return nil
	},
}

// interruptContext is cancelled on SIGINT or SIGTERM. A cancelled sync still
// flushes the failure ledger, records the run and closes the store.
func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// runSync opens the store and runs the selected datasets for day against src.
func runSync(ctx context.Context, c *config.Config, src krx.Source, opts dataset.RunOpts, day time.Time) error {
	log := zap.L().With(zap.String("command", "sync"))

	from, err := krxsync.ParseBusinessDay(c.KRX.StartDate)
	if err != nil {
		return eris.Wrap(err, "sync: krx.start_date")
	}

	st, err := openStore(ctx, c)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	// Ensure migrations are current.
	if err := st.Migrate(ctx); err != nil {
		return eris.Wrap(err, "sync: migrate")
	}

	env := dataset.Env{
		Store:       st,
		Source:      src,
		Ledger:      krxsync.NewLedger(c.Ledger.Dir),
		Day:         day,
		From:        from,
		Concurrency: c.KRX.Concurrency,
		RunID:       uuid.NewString(),
	}
	engine := dataset.NewEngine(dataset.NewRegistry(), env)

	log.Info("starting sync",
		zap.String("run_id", env.RunID),
		zap.String("ref_dt", krxsync.FormatBusinessDay(day)),
		zap.Any("phase", opts.Phase),
		zap.Strings("datasets", opts.Datasets),
		zap.Int("concurrency", env.Concurrency),
	)

	if err := engine.Run(ctx, opts); err != nil {
		if ctx.Err() != nil {
			log.Warn("sync interrupted", zap.String("run_id", env.RunID), zap.Error(err))
		}
		return eris.Wrap(err, "sync")
	}
	return nil
}

func init() {
	syncCmd.Flags().String("phase", "", "restrict to phase: catalog, price")
	syncCmd.Flags().String("datasets", "", "comma-separated dataset names (e.g., sector,price)")
	syncCmd.Flags().String("date", "", "reference day as YYYYMMDD (default: today)")
	rootCmd.AddCommand(syncCmd)
}

// newSource builds the rate-limited KRX client from config.
func newSource(c *config.Config) *krx.Client {
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:   c.KRX.UserAgent,
		Referer:     c.KRX.Referer,
		Timeout:     c.KRX.Timeout(),
		DefaultRate: rate.Limit(c.KRX.RatePerSec),
	})
	return krx.NewClient(f, c.KRX.OTPURL, c.KRX.DownloadURL)
}

// parseSyncOpts extracts dataset.RunOpts from the cobra command flags.
func parseSyncOpts(cmd *cobra.Command) (dataset.RunOpts, error) {
	phaseStr, _ := cmd.Flags().GetString("phase")
	datasetsStr, _ := cmd.Flags().GetString("datasets")

	var opts dataset.RunOpts

	if phaseStr != "" {
		p, err := dataset.ParsePhase(strings.ToLower(phaseStr))
		if err != nil {
			return dataset.RunOpts{}, err
		}
		opts.Phase = &p
	}

	if datasetsStr != "" {
		for _, name := range strings.Split(datasetsStr, ",") {
			if name = strings.TrimSpace(name); name != "" {
				opts.Datasets = append(opts.Datasets, name)
			}
		}
	}

	return opts, nil
}

// parseRefDay returns the business day to sync: --date when given, otherwise
// now. Either way weekends resolve to the prior Friday.
func parseRefDay(cmd *cobra.Command, now time.Time) (time.Time, error) {
	dateStr, _ := cmd.Flags().GetString("date")
	if dateStr == "" {
		y, m, d := now.Date()
		return krxsync.ResolveBusinessDay(time.Date(y, m, d, 0, 0, 0, 0, time.UTC)), nil
	}
	day, err := krxsync.ParseBusinessDay(dateStr)
	if err != nil {
		return time.Time{}, err
	}
	return krxsync.ResolveBusinessDay(day), nil
}
