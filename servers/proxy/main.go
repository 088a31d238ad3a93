// servers/proxy/main.go

// Command lime-proxy serves the completion proxy protocol lime's proxy
// backend talks to: GET /check and POST /infer.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/mwiater/lime/internal/logging"
	"github.com/mwiater/lime/internal/providerfactory"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "servers/proxy/proxy.yml"

var (
	configPath string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:          "lime-proxy",
	Short:        "Serve /check and /infer for lime's proxy backend",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return run(ctx, configPath)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "proxy yaml config")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "log request and response bodies")
}

func run(ctx context.Context, path string) error {
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	if err := logging.Init(""); err != nil {
		return err
	}
	defer logging.Close()
	logging.SetDebug(debug)

	answerer, closeAnswerer, err := newAnswerer(ctx, cfg, providerfactory.New)
	if err != nil {
		return fmt.Errorf("answerer: %w", err)
	}
	defer closeAnswerer()

	s, err := NewServer(cfg, answerer)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("lime-proxy listening on %s (mode=%s required_keys=%v)", srv.Addr, cfg.Mode, cfg.RequiredKeys)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Printf("shutting down")
		return shutdown(srv)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
