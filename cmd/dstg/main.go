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

	"dstg"
	"dstg/config"
	"dstg/ewtg"
	"dstg/logging"
	"dstg/modelGrpc"
	"dstg/replay"
	"dstg/stateManager"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

type buildFlags struct {
	model         string
	recording     string
	out           string
	dot           string
	historyOut    string
	logLevel      string
	dev           bool
	check         bool
	ceiling       int
	maxPrecision  int
	grpcAddr      string
	metricsAddr   string
	reportOnServe bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &buildFlags{}
	root := &cobra.Command{
		Use:   "dstg",
		Short: "Build dynamic state-transition graphs of Android apps",
		Long: `dstg partitions the GUI snapshots of a recorded exploration into abstract
states, records the observed transitions between them, and refines the
abstraction whenever the same action leads to different screens.

Settings are read from DSTG_* environment variables; flags override them.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&flags.dev, "dev", false, "human readable console logging")

	root.AddCommand(newBuildCommand(flags))
	root.AddCommand(newServeCommand(flags))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "dstg", version)
		},
	})
	return root
}

func addModelFlags(cmd *cobra.Command, flags *buildFlags) {
	cmd.Flags().StringVar(&flags.model, "model", "", "static window model (YAML)")
	cmd.Flags().StringVar(&flags.recording, "recording", "", "recorded exploration (YAML)")
	cmd.Flags().StringVar(&flags.out, "out", "", "report directory")
	cmd.Flags().StringVar(&flags.dot, "dot", "", "write the graph in Graphviz DOT format to this file")
	cmd.Flags().StringVar(&flags.historyOut, "export-history", "", "write the model for later explorations to this file")
	cmd.Flags().IntVar(&flags.ceiling, "refinement-ceiling", 0, "max escalation rounds per interaction")
	cmd.Flags().IntVar(&flags.maxPrecision, "max-precision", 0, "highest precision level of the reducer")
	cmd.Flags().BoolVar(&flags.check, "check", false, "verify the graph invariants after every change")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("recording")
}

func newBuildCommand(flags *buildFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the graph of a recording and write the reports",
		Example: `  dstg build --model app.yaml --recording run.yaml --out report
  dstg build --model app.yaml --recording run.yaml --dot graph.dot`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := build(cmd, flags, nil)
			if err != nil {
				return err
			}
			defer s.Close()
			return writeOutputs(s, flags)
		},
	}
	addModelFlags(cmd, flags)
	return cmd
}

func newServeCommand(flags *buildFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Build the graph of a recording and serve queries over gRPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := prometheus.NewRegistry()
			s, err := build(cmd, flags, reg)
			if err != nil {
				return err
			}
			defer s.Close()
			if flags.reportOnServe {
				if err := writeOutputs(s, flags); err != nil {
					return err
				}
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, s, reg, flags)
		},
	}
	addModelFlags(cmd, flags)
	cmd.Flags().StringVar(&flags.grpcAddr, "grpc-addr", "", "address of the gRPC query service")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", ":9090", "address of the Prometheus /metrics endpoint, empty to disable")
	cmd.Flags().BoolVar(&flags.reportOnServe, "report", false, "also write the reports before serving")
	return cmd
}

// Loads the configuration and lets the flags that were set override it.
func loadConfig(cmd *cobra.Command, flags *buildFlags) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}
	if changed("log-level") {
		cfg.LogLevel = flags.logLevel
	}
	if changed("dev") {
		cfg.LogDevelopment = flags.dev
	}
	if changed("refinement-ceiling") {
		cfg.RefinementCeiling = flags.ceiling
	}
	if changed("max-precision") {
		cfg.MaxPrecision = flags.maxPrecision
	}
	if changed("check") {
		cfg.CheckInvariants = flags.check
	}
	if changed("out") {
		cfg.ReportDir = flags.out
	}
	if changed("grpc-addr") {
		cfg.GRPCAddr = flags.grpcAddr
	}
	return cfg, cfg.Validate()
}

func build(cmd *cobra.Command, flags *buildFlags, reg *prometheus.Registry) (*dstg.Session, error) {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(logging.Config{Level: cfg.LogLevel, Development: cfg.LogDevelopment})
	if err != nil {
		return nil, err
	}

	mf, err := os.Open(flags.model)
	if err != nil {
		return nil, err
	}
	defer mf.Close()
	static, err := ewtg.Load(mf)
	if err != nil {
		return nil, err
	}

	rf, err := os.Open(flags.recording)
	if err != nil {
		return nil, err
	}
	defer rf.Close()
	rec, err := replay.Load(rf)
	if err != nil {
		return nil, err
	}

	opts := []dstg.Option{dstg.WithConfig(cfg), dstg.WithLogger(log)}
	if reg != nil {
		opts = append(opts, dstg.WithRegistry(reg))
	}
	s, err := dstg.NewSession(static, opts...)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	if err := replay.Replay(s, rec); err != nil {
		return nil, err
	}
	log.Info("built graph",
		zap.Int("snapshots", len(rec.Snapshots)),
		zap.Int("interactions", len(rec.Interactions)),
		zap.Int("abandoned", len(s.Abandoned())),
		zap.Duration("duration", time.Since(start)),
	)
	if ok, desc := s.Check().Response(); !ok {
		log.Warn("graph invariants violated", zap.String("violations", desc))
	}
	return s, nil
}

func writeOutputs(s *dstg.Session, flags *buildFlags) error {
	if err := s.WriteReport(""); err != nil {
		return err
	}
	if flags.dot != "" {
		if err := writeFile(flags.dot, s.WriteDOT); err != nil {
			return err
		}
	}
	if flags.historyOut != "" {
		h := s.ExportHistory()
		if err := writeFile(flags.historyOut, func(w io.Writer) error { return stateManager.WriteHistory(w, h) }); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func serve(ctx context.Context, s *dstg.Session, reg *prometheus.Registry, flags *buildFlags) error {
	log := s.Logger()
	lis, err := net.Listen("tcp", s.Config().GRPCAddr)
	if err != nil {
		return err
	}
	srv := modelGrpc.NewServer(s, log.Named("modelGrpc")).GRPCServer()

	errc := make(chan error, 2)
	go func() {
		log.Info("serving model queries", zap.String("addr", lis.Addr().String()))
		errc <- srv.Serve(lis)
	}()

	var metricsSrv *http.Server
	if flags.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: flags.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info("serving metrics", zap.String("addr", flags.metricsAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err = <-errc:
	}
	srv.GracefulStop()
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return err
}
