package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ryandielhenn/zephyrgrid/internal/config"
	"github.com/ryandielhenn/zephyrgrid/internal/logger"
	"github.com/ryandielhenn/zephyrgrid/internal/telemetry"
	"github.com/ryandielhenn/zephyrgrid/pkg/deploy"
	"github.com/ryandielhenn/zephyrgrid/pkg/discovery"
	"github.com/ryandielhenn/zephyrgrid/pkg/membership"
	"github.com/ryandielhenn/zephyrgrid/pkg/node"
	"github.com/ryandielhenn/zephyrgrid/pkg/region"
)

var (
	version = "dev"
	gitSHA  = "unknown"
)

func main() {
	var (
		cfgPath    string
		standalone bool
	)
	root := &cobra.Command{
		Use:          "zephyrgrid-server",
		Short:        "Run a cluster member hosting live regions",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, standalone)
		},
	}
	root.Flags().StringVar(&cfgPath, "config", os.Getenv("ZEPHYR_CONFIG"), "YAML config file (env ZEPHYR_CONFIG)")
	root.Flags().BoolVar(&standalone, "standalone", false, "run without etcd; the member only knows itself")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, standalone bool) error {
	// 1. Logging and metrics
	logger.Init(logger.Config{
		Env:         cfg.Log.Env,
		Level:       cfg.Log.Level,
		ServiceName: "zephyrgrid",
		Version:     version,
	})
	defer logger.Sync()
	log := logger.L()
	telemetry.SetBuildInfo(version, gitSHA)

	// 2. Member-local state: artifacts and regions
	artifacts, err := deploy.Open(cfg.Deploy.DBPath, logger.Named("deploy"))
	if err != nil {
		return err
	}
	defer artifacts.Close()

	regions := region.NewSet(cfg.Region.CapacityBytes, cfg.Region.EntryTTL, logger.Named("region"))
	for _, name := range cfg.Member.Regions {
		if _, _, err := regions.Create(name); err != nil {
			return err
		}
	}

	self := membership.Member{ID: cfg.Member.ID, Addr: cfg.Member.Addr, Groups: cfg.Member.Groups}
	members := membership.NewRegistry(logger.Named("membership"))
	n := node.New(node.Options{
		Self:        self,
		Regions:     regions,
		Artifacts:   artifacts,
		Members:     members,
		Remote:      node.NewHTTPTransport(&http.Client{Timeout: cfg.Dispatch.Timeout}),
		Timeout:     cfg.Dispatch.Timeout,
		SyncTimeout: cfg.Dispatch.SyncTimeout,
		Parallel:    cfg.Dispatch.Parallel,
		Log:         logger.Named("node"),
	})
	if err := members.Join(ctx, self); err != nil {
		return err
	}

	// 3. HTTP surface
	srv := &http.Server{Addr: cfg.Server.Listen, Handler: n.Routes(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Info("member listening", zap.String("listen", cfg.Server.Listen), logger.MemberID(self.ID))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 4. Discovery: register this member and follow the others
	if !standalone {
		cli, err := discovery.NewClient(cfg.Etcd.Endpoints, cfg.Etcd.DialTimeout)
		if err != nil {
			return err
		}
		defer cli.Close()
		d := discovery.New(cli, cfg.Etcd.Prefix, cfg.Etcd.LeaseTTL, logger.Named("discovery"))
		if err := d.Register(ctx, self); err != nil {
			return err
		}
		defer func() {
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = d.Deregister(rctx)
		}()
		go func() {
			err := d.Watch(ctx, func(observed []membership.Member) {
				if err := members.Sync(ctx, observed); err != nil {
					log.Warn("membership sync incomplete", zap.Error(err))
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("member watch stopped", zap.Error(err))
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}
