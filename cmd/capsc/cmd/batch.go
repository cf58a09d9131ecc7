package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/capslang/caps/batch"
)

var (
	manifestPath string
	parallelism  int
	reportPath   string
	historyDSN   string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Compile and run a manifest of CAPS programs concurrently",
	RunE: func(c *cobra.Command, args []string) error {
		f, err := os.Open(manifestPath)
		if err != nil {
			return fmt.Errorf("opening manifest: %w", err)
		}
		defer f.Close()

		rows, err := batch.DecodeManifest(f)
		if err != nil {
			return err
		}

		started := time.Now()
		report, err := batch.Run(context.Background(), rows, parallelism)
		finished := time.Now()
		if err != nil {
			return err
		}

		if historyDSN != "" {
			hist, err := batch.OpenHistory(historyDSN)
			if err != nil {
				return fmt.Errorf("opening run history: %w", err)
			}
			defer hist.Close()
			if err := hist.Record(report, started, finished); err != nil {
				return fmt.Errorf("recording run history: %w", err)
			}
		}

		out := os.Stdout
		if reportPath != "" {
			rf, err := os.Create(reportPath)
			if err != nil {
				return fmt.Errorf("creating report file: %w", err)
			}
			defer rf.Close()
			out = rf
		}
		if err := batch.WriteReport(out, report); err != nil {
			return err
		}

		if report.Failed > 0 {
			exitCode = 2
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "CSV manifest of CAPS programs to run")
	batchCmd.Flags().IntVarP(&parallelism, "parallelism", "j", 4, "number of concurrent pipeline workers")
	batchCmd.Flags().StringVarP(&reportPath, "report", "o", "", "path to write the JSON batch report (defaults to stdout)")
	batchCmd.Flags().StringVar(&historyDSN, "history-dsn", "", "postgres connection string for recording this run's summary")
	batchCmd.MarkFlagRequired("manifest")
}
