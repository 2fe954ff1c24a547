// Command socialkeeper runs the social data datastore: schema migrations, the
// gRPC health surface and the Prometheus metrics listener.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/and161185/socialkeeper/internal/config"
	"github.com/and161185/socialkeeper/internal/logging"
	"github.com/and161185/socialkeeper/internal/metrics"
	"github.com/and161185/socialkeeper/internal/migrate"
	grpcserver "github.com/and161185/socialkeeper/internal/server/grpc"
	"github.com/and161185/socialkeeper/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd(config.NewViper()).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:          "socialkeeper",
		Short:        "Social data datastore",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return readConfig(v, cfgFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), v)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.String("connection", "", "PostgreSQL connection string")
	flags.String("log-level", v.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("grpc-address", v.GetString("grpc.address"), "gRPC listen address")
	flags.String("metrics-address", v.GetString("metrics.address"), "Metrics listen address, empty to disable")
	flags.Duration("status-interval", v.GetDuration("status.interval"), "Interval between datastore status probes")
	flags.Int("fanout-limit", v.GetInt("fanout.limit"), "Concurrent sub-queries per operation")
	flags.Duration("call-gap", v.GetDuration("limits.call_gap"), "Minimum gap between provider calls per UUID")
	flags.String("tls-cert", "", "TLS certificate (PEM)")
	flags.String("tls-key", "", "TLS private key (PEM)")
	flags.Bool("dev", false, "enable server reflection (dev only)")

	bindFlag(v, root, "connection", "connection")
	bindFlag(v, root, "log.level", "log-level")
	bindFlag(v, root, "grpc.address", "grpc-address")
	bindFlag(v, root, "metrics.address", "metrics-address")
	bindFlag(v, root, "status.interval", "status-interval")
	bindFlag(v, root, "fanout.limit", "fanout-limit")
	bindFlag(v, root, "limits.call_gap", "call-gap")
	bindFlag(v, root, "grpc.tls_cert", "tls-cert")
	bindFlag(v, root, "grpc.tls_key", "tls-key")
	bindFlag(v, root, "grpc.reflection", "dev")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run migrations and serve gRPC health and metrics",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context(), v)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply pending schema migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(cmd.Context(), v, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Probe the datastore backend",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runStatus(cmd.Context(), v, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			PersistentPreRunE: func(*cobra.Command, []string) error {
				return nil
			},
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", version, buildDate)
			},
		},
	)
	return root
}

func bindFlag(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	if err := v.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func readConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile == "" {
		return nil
	}
	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", cfgFile, err)
	}
	return nil
}

func setup(v *viper.Viper) (config.AppConfig, *zap.Logger, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return config.AppConfig{}, nil, err
	}
	return cfg, logger, nil
}

func connect(ctx context.Context, cfg config.AppConfig, logger *zap.Logger, rec metrics.Recorder) (*service.Datastore, error) {
	return service.Connect(ctx, cfg.Connection, service.Options{
		Logger:        logger,
		Recorder:      rec,
		Fanout:        cfg.FanoutLimit,
		CallGap:       cfg.CallGap,
		CredentialKey: cfg.CredentialKey,
	})
}

// runServe migrates the schema and serves until SIGINT or SIGTERM.
func runServe(ctx context.Context, v *viper.Viper) error {
	cfg, logger, err := setup(v)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.GRPCAddress),
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.Connection); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}

	rec := metrics.Init(cfg.MetricsAddress != "")
	ds, err := connect(ctx, cfg, logger, rec)
	if err != nil {
		return err
	}
	defer ds.Disconnect()

	var opts []grpc.ServerOption
	if cfg.TLSCert != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return fmt.Errorf("load TLS cert/key: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	}
	srv := grpcserver.New(logger, cfg.Reflection, opts...)
	go grpcserver.NewHealthMonitor(srv.Health, ds, cfg.StatusInterval, logger).Run(ctx)

	if cfg.MetricsAddress != "" {
		ms := metricsServer(cfg.MetricsAddress)
		go func() {
			if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ms.Shutdown(shutdownCtx)
		}()
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddress)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if err := srv.Serve(ctx, lis); err != nil {
		logger.Error("server error", zap.Error(err))
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func metricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

func runMigrate(ctx context.Context, v *viper.Viper, out io.Writer) error {
	cfg, logger, err := setup(v)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if err := migrate.Up(ctx, cfg.Connection); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	ver, err := migrate.Version(ctx, cfg.Connection)
	if err != nil {
		return fmt.Errorf("migrate version: %w", err)
	}
	logger.Info("schema migrated", zap.Int64("version", ver))
	fmt.Fprintf(out, "schema version %d\n", ver)
	return nil
}

func runStatus(ctx context.Context, v *viper.Viper, out io.Writer) error {
	cfg, logger, err := setup(v)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ds, err := connect(ctx, cfg, logger, metrics.NewNoopMetrics())
	if err != nil {
		return err
	}
	defer ds.Disconnect()

	st := ds.Status(ctx)
	fmt.Fprintln(out, st)
	if st != "ok" {
		return fmt.Errorf("datastore status %s", st)
	}
	return nil
}
