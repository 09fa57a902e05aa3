package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/rovernav/internal/config"
	"github.com/banshee-data/rovernav/internal/db"
	"github.com/banshee-data/rovernav/internal/discovery"
	"github.com/banshee-data/rovernav/internal/grid"
	"github.com/banshee-data/rovernav/internal/monitoring"
	"github.com/banshee-data/rovernav/internal/rover"
	"github.com/banshee-data/rovernav/internal/transport"
	"github.com/banshee-data/rovernav/internal/version"
)

var (
	configPath = flag.String("config", "", "Path to rover JSON config (optional)")
	mapPath    = flag.String("map", "", "Text map the simulated sensor drives over")
	self       = flag.String("self", "", "Roster id of this rover (overrides config)")
	startFlag  = flag.String("start", "0,0", "Start cell as x,y")
	targetFlag = flag.String("target", "", "Target cell as x,y")
	logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	versionF   = flag.Bool("version", false, "Print version and exit")
)

func loadConfig() (*config.RoverConfig, error) {
	cfg := config.EmptyRoverConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadRoverConfig(*configPath); err != nil {
			return nil, err
		}
	}
	if *self != "" {
		cfg.Self = self
	}
	if *logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, cfg.Validate()
}

func loadMap(path string) (*grid.World, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open map: %w", err)
	}
	defer f.Close()
	return grid.LoadTextMap(f)
}

func main() {
	flag.Parse()

	if *versionF {
		fmt.Println(version.String())
		return
	}
	if *mapPath == "" {
		log.Fatal("Map file is required")
	}
	if *targetFlag == "" {
		log.Fatal("Target is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	level, _ := monitoring.ParseLevel(cfg.GetLogLevel())
	logger := monitoring.NewLogger(os.Stderr, level).With("rover", cfg.GetSelf())
	monitoring.SetLogger(logger)

	start, err := grid.ParseCoord(*startFlag)
	if err != nil {
		log.Fatalf("Invalid start: %v", err)
	}
	target, err := grid.ParseCoord(*targetFlag)
	if err != nil {
		log.Fatalf("Invalid target: %v", err)
	}

	truth, err := loadMap(*mapPath)
	if err != nil {
		log.Fatalf("Failed to load map: %v", err)
	}
	sim, err := rover.NewSimSensor(truth, start, cfg.GetScanRadius())
	if err != nil {
		log.Fatalf("Failed to place rover: %v", err)
	}

	ledger, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer ledger.Close()

	tr, err := transport.New(transport.Config{
		Self:         cfg.GetSelf(),
		Host:         cfg.GetHost(),
		Roster:       cfg.GetRoster(),
		DialTimeout:  cfg.GetDialTimeout(),
		WriteTimeout: cfg.GetWriteTimeout(),
		Backoff: transport.Backoff{
			Initial:   cfg.GetRetryInitial(),
			Max:       cfg.GetRetryMax(),
			Doublings: cfg.GetRetryDoublings(),
		},
		ReadBufferSize: cfg.GetReadBufferSize(),
		Logger:         logger,
	})
	if err != nil {
		log.Fatalf("Failed to start transport: %v", err)
	}
	if err := tr.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		log.Fatalf("Failed to register transport metrics: %v", err)
	}

	world := grid.NewWorld(target.X+10, target.Y+10)
	sync, err := discovery.NewSync(discovery.SyncConfig{
		World:  world,
		Link:   tr,
		Ledger: ledger,
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("Failed to create discovery sync: %v", err)
	}

	agent, err := rover.NewAgent(rover.Config{
		World:         world,
		Sensor:        sim,
		Start:         start,
		Target:        target,
		Sync:          sync,
		Runs:          ledger,
		MaxIterations: cfg.GetMaxIterations(),
		GiveUpAfter:   cfg.GetGiveUpAfter(),
		Logger:        logger,
	})
	if err != nil {
		log.Fatalf("Failed to create agent: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tr.Run(ctx)
	})
	g.Go(func() error {
		return agent.Run(ctx, cfg.GetTickInterval(), sim)
	})

	if addr := cfg.GetDebugListen(); addr != "" {
		mux := http.NewServeMux()
		tr.AttachAdminRoutes(mux)
		ledger.AttachAdminRoutes(mux)
		mux.Handle("/metrics", monitoring.MetricsHandler())
		server := &http.Server{Addr: addr, Handler: mux}

		g.Go(func() error {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("debug server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("debug server shutdown error", "error", err)
				return server.Close()
			}
			return nil
		})
		logger.Info("debug server listening", "addr", addr)
	}

	logger.Info("rover started",
		"version", version.Version, "git_sha", version.GitSHA,
		"listen", tr.Addr().String(), "start", start, "target", target,
		"peers", cfg.GetPeers())

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("rover stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("graceful shutdown complete", slog.Int("gathered", len(sim.Gathered())))
}
