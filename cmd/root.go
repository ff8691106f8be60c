// Package cmd wires the arena server together behind a cobra command.
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/wfunc/bombarena/config"
	"github.com/wfunc/bombarena/eventbus"
	"github.com/wfunc/bombarena/factory"
	"github.com/wfunc/bombarena/leaderboard"
	"github.com/wfunc/bombarena/logger"
	"github.com/wfunc/bombarena/persistence"
	"github.com/wfunc/bombarena/rpc"
	"github.com/wfunc/bombarena/server"
	"github.com/wfunc/bombarena/services"
)

const shutdownGrace = 10 * time.Second

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "bombarena",
	Short: "Authoritative lobby and match server for the bomb arena game",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger.Init(cfg.Log.Level)
		defer logger.Sync()

		return run(SignalContext(context.Background()), cfg)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml, $HOME/.bombarena/config.yaml or /etc/bombarena/config.yaml)")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	paths := []string{"."}
	if home, err := homedir.Dir(); err == nil {
		paths = append(paths, home+"/.bombarena")
	}
	paths = append(paths, "/etc/bombarena")
	return config.LoadConfig(cfgFile, paths...)
}

func run(ctx context.Context, cfg *config.Config) error {
	var opts []services.Option

	store, err := persistence.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open match history: %w", err)
	}
	if store != nil {
		defer store.Close()
		opts = append(opts, services.WithStore(store))
		logger.Log.Infow("match history enabled", "driver", cfg.Database.Driver)
	}

	if cfg.Redis.Addr != "" {
		board := leaderboard.New(leaderboard.NewClient(cfg.Redis), cfg.Redis.Key)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := board.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Log.Warnw("leaderboard disabled, redis unreachable", "addr", cfg.Redis.Addr, "error", err)
			board.Close()
		} else {
			defer board.Close()
			opts = append(opts, services.WithLeaderboard(board))
			logger.Log.Infow("leaderboard enabled", "addr", cfg.Redis.Addr)
		}
	}

	if cfg.NATS.URL != "" {
		publisher, err := eventbus.NewPublisher(cfg.NATS)
		if err != nil {
			logger.Log.Warnw("match events disabled, nats unreachable", "url", cfg.NATS.URL, "error", err)
		} else {
			defer publisher.Close()
			opts = append(opts, services.WithPublisher(publisher))
			logger.Log.Infow("match events enabled", "subject", cfg.NATS.Subject)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	gameServer := server.NewGameServer(cfg, server.Backends{
		Factory: factory.NewHTTPClient(cfg.Factory.URL, &http.Client{Timeout: cfg.Factory.Timeout}),
		Results: services.NewResultService(opts...),
		Metrics: reg,
	})

	rpcServer, err := rpc.NewServer(cfg.Server.RPCAddress)
	if err != nil {
		return fmt.Errorf("create RPC server: %w", err)
	}
	go rpcServer.Start()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- gameServer.Start()
		cancel()
	}()
	rpcServer.SetServing(true)

	<-ctx.Done()
	logger.Log.Info("Shutting down")
	rpcServer.SetServing(false)

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownGrace)
	defer done()
	if err := gameServer.Shutdown(shutdownCtx); err != nil {
		logger.Log.Errorw("game server shutdown", "error", err)
	}
	rpcServer.Stop()

	select {
	case err := <-serveErr:
		return err
	default:
		return nil
	}
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigs
		signal.Stop(sigs)
		cancel()
	}()
	return ctx
}
