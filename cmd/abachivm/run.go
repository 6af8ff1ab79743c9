// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/luxfi/database"
	"github.com/luxfi/database/badgerdb"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	dto "github.com/prometheus/client_model/go"

	luxvm "github.com/luxfi/abachi"
	"github.com/luxfi/abachi/vms/abachivm"
	"github.com/luxfi/abachi/vms/abachivm/config"
)

const (
	chainPath   = "/ext/bc/abachi"
	metricsPath = "/ext/metrics"
	healthPath  = "/ext/health"

	readHeaderTimeout = 30 * time.Second
	shutdownTimeout   = 10 * time.Second
)

type runFlags struct {
	httpHost       string
	httpPort       uint16
	allowedOrigins []string
	genesisFile    string
	configFile     string
	dbDir          string
	blockInterval  time.Duration
	quiet          bool
}

func newRunCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single-node Abachi chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := log.NewLogger("abachivm")
			if flags.quiet {
				logger = log.NewNoOpLogger()
			}
			return run(ctx, flags, logger)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&flags.httpHost, "http-host", "127.0.0.1", "address the HTTP server listens on")
	fs.Uint16Var(&flags.httpPort, "http-port", 9650, "port the HTTP server listens on")
	fs.StringSliceVar(&flags.allowedOrigins, "http-allowed-origins", []string{"*"}, "origins allowed to make cross-origin requests")
	fs.StringVar(&flags.genesisFile, "genesis-file", "", "genesis JSON, the development genesis when empty")
	fs.StringVar(&flags.configFile, "config-file", "", "VM config JSON")
	fs.StringVar(&flags.dbDir, "db-dir", "", "database directory, in memory when empty")
	fs.DurationVar(&flags.blockInterval, "block-interval", 0, "overrides the configured block interval")
	fs.BoolVar(&flags.quiet, "quiet", false, "disable logging")
	return cmd
}

// readOptional returns the contents of [path], or nil when [path] is empty.
func readOptional(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return b, nil
}

// vmConfig loads the VM config file and applies the command line overrides.
func vmConfig(flags *runFlags) (config.Config, error) {
	b, err := readOptional(flags.configFile)
	if err != nil {
		return config.Config{}, err
	}
	cfg, err := config.ParseConfig(b)
	if err != nil {
		return config.Config{}, err
	}
	if flags.blockInterval != 0 {
		cfg.BlockInterval = flags.blockInterval
	}
	return cfg, cfg.Validate()
}

func openDB(dir string) (database.Database, error) {
	if dir == "" {
		return memdb.New(), nil
	}
	return badgerdb.New(dir, nil, "", nil)
}

func run(ctx context.Context, flags *runFlags, logger log.Logger) error {
	cfg, err := vmConfig(flags)
	if err != nil {
		return err
	}
	genesisBytes, err := readOptional(flags.genesisFile)
	if err != nil {
		return err
	}
	db, err := openDB(flags.dbDir)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	registry := metric.NewRegistry()
	runtimeMetrics := prometheus.NewRegistry()
	if err := runtimeMetrics.Register(collectors.NewGoCollector()); err != nil {
		return err
	}

	toEngine := make(chan luxvm.Message, 1)
	vm := abachivm.New(cfg, logger)
	err = vm.Initialize(ctx, &luxvm.Config{
		DB:           db,
		GenesisBytes: genesisBytes,
		Metrics:      registry,
		ToEngine:     toEngine,
	})
	if err != nil {
		return err
	}
	defer vm.Shutdown(context.Background())

	if err := vm.SetState(ctx, luxvm.NormalOp); err != nil {
		return err
	}

	router, err := newRouter(ctx, vm, prometheus.Gatherers{runtimeMetrics, dtoGatherer(registry)})
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr: net.JoinHostPort(flags.httpHost, strconv.Itoa(int(flags.httpPort))),
		Handler: cors.New(cors.Options{
			AllowedOrigins:   flags.allowedOrigins,
			AllowCredentials: true,
		}).Handler(router),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening",
			log.String("address", server.Addr),
		)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return buildBlocks(ctx, vm, cfg.BlockInterval, toEngine, logger)
	})
	return g.Wait()
}

// dtoGatherer exposes [gatherer] in the exposition types promhttp serves.
func dtoGatherer(gatherer metric.Gatherer) prometheus.Gatherer {
	return prometheus.GathererFunc(func() ([]*dto.MetricFamily, error) {
		families, err := gatherer.Gather()
		return metric.NativeToDTO(families), err
	})
}

// newRouter mounts the chain, metrics and health endpoints.
func newRouter(ctx context.Context, vm luxvm.VM, gatherer prometheus.Gatherer) (*mux.Router, error) {
	handlers, err := vm.CreateHandlers(ctx)
	if err != nil {
		return nil, err
	}
	router := mux.NewRouter()
	for extension, handler := range handlers {
		router.Handle(chainPath+extension, handler).Methods(http.MethodPost)
	}
	router.Handle(metricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc(healthPath, func(w http.ResponseWriter, r *http.Request) {
		details, err := vm.HealthCheck(r.Context())
		reply := map[string]interface{}{
			"healthy": err == nil,
			"checks":  details,
		}
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			reply["error"] = err.Error()
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(reply)
	}).Methods(http.MethodGet)
	return router, nil
}

// buildBlocks builds a block whenever transactions are pending, at most once
// per [interval], until [ctx] is cancelled.
func buildBlocks(
	ctx context.Context,
	vm *abachivm.VM,
	interval time.Duration,
	toEngine <-chan luxvm.Message,
	logger log.Logger,
) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pending := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-toEngine:
			pending = pending || msg.Type == luxvm.PendingTxs
		case <-ticker.C:
			if !pending && vm.MempoolSize() == 0 {
				continue
			}
			pending = false
			result, err := vm.BuildBlock(ctx, time.Now())
			if err != nil {
				logger.Error("failed to build block",
					log.Err(err),
				)
				continue
			}
			logger.Debug("built block",
				log.Uint64("height", result.Height),
				log.Int("accepted", len(result.Accepted)),
				log.Int("rejected", len(result.Rejected)),
			)
		}
	}
}
