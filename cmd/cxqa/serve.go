package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cxqa-go/internal/server"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long:  "Serve POST /score, POST /labels, GET /agents/summary, /healthz and /metrics.",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (default PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
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
	port := servePort
	if port == "" {
		port = a.cfg.Port
	}
	srv := server.New(server.Options{
		Port:      port,
		Processor: proc,
		Store:     a.store,
		Metrics:   a.metrics,
		Logger:    a.log,
	})
	return srv.Run(ctx)
}
