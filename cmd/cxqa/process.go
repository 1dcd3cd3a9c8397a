package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	processDir   string
	processEvery time.Duration
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Score every record file in the input directory",
	Long: `Read each .json/.jsonl record file in the input directory, score and store the
conversations and publish scored events. With --every the batch repeats on that
interval until interrupted.`,
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVar(&processDir, "dir", "", "Input directory (default INPUT_DIR)")
	processCmd.Flags().DurationVar(&processEvery, "every", 0, "Repeat the batch on this interval (default PROCESS_INTERVAL, 0 runs once)")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	proc, err := a.processor(ctx)
	if err != nil {
		return err
	}
	dir := processDir
	if dir == "" {
		dir = a.cfg.InputDir
	}
	every := processEvery
	if every == 0 {
		every = a.cfg.ProcessInterval
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	runOnce := func() error {
		report, err := proc.ProcessDir(ctx, dir)
		if err != nil {
			return err
		}
		return enc.Encode(report)
	}

	if every <= 0 {
		return runOnce()
	}
	return runEvery(ctx, every, a.log.WithComponent("process"), runOnce)
}

// runEvery repeats the batch until ctx is done. A failed batch is logged and
// retried on the next tick.
func runEvery(ctx context.Context, every time.Duration, log *logrus.Entry, runOnce func() error) error {
	log = log.WithField("every", every.String())
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		if err := runOnce(); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.WithError(err).Error("batch failed")
		}
		select {
		case <-ctx.Done():
			log.Info("stopping")
			return nil
		case <-ticker.C:
		}
	}
}
