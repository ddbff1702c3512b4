package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/rangemap/internal/api"
	"github.com/banshee-data/rangemap/internal/config"
	"github.com/banshee-data/rangemap/internal/db"
	"github.com/banshee-data/rangemap/internal/monitoring"
	"github.com/banshee-data/rangemap/internal/version"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

var (
	configPath  = flag.String("config", "", "Path to a .json or .yaml config file")
	devMode     = flag.Bool("dev", false, "Run against the built-in robot simulator")
	port        = flag.String("port", "", "Serial port to use (ignored in dev mode)")
	listen      = flag.String("listen", "", "Listen address")
	dbPath      = flag.String("db", "", "Path to the sqlite database")
	once        = flag.Bool("once", false, "Run a single mapping cycle and exit")
	show        = flag.Bool("show", false, "Print the map to stdout on exit")
	record      = flag.Bool("record", false, "Record the map to the configured map output on exit")
	mapOutput   = flag.String("map-output", "", "Path the map is recorded to (overrides map_output)")
	loadPath    = flag.String("load", "", "Load a recorded map before mapping starts")
	interval    = flag.Duration("interval", 0, "Time between mapping cycles")
	traceRatio  = flag.Float64("trace", 0, "Export mapping cycle spans to stderr at this sample ratio (0 disables)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func loadConfig() (*config.RobotConfig, error) {
	cfg := &config.RobotConfig{}
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			return nil, err
		}
	}
	cfg.Override(*port, *listen, *dbPath, *mapOutput, *interval)
	return cfg, cfg.Validate()
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	logger, err := monitoring.NewZapLogger(*devMode)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer monitoring.UseZap(logger)()
	monitoring.Logf("starting %s", version.String())

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	link, err := openLink(cfg, *devMode)
	if err != nil {
		log.Fatalf("failed to open robot link on %s: %v", cfg.GetSerialPort(), err)
	}
	defer link.Close()

	a, err := newApp(cfg, link, prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("failed to build mapper: %v", err)
	}
	if *loadPath != "" {
		if err := a.mapper.LoadMap(*loadPath); err != nil {
			log.Fatalf("failed to load map: %v", err)
		}
		monitoring.Logf("loaded map from %s: %d cells occupied", *loadPath, a.mapper.Snapshot().Occupied)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := monitoring.InitTracing(ctx, monitoring.TracingConfig{
		Enabled:     *traceRatio > 0,
		ServiceName: "rangemap",
		SampleRatio: *traceRatio,
	})
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer monitoring.ShutdownTracing(context.Background(), shutdownTracing)

	if *once {
		res, err := a.surveyor.Once(ctx)
		if err != nil {
			log.Fatalf("mapping cycle failed: %v", err)
		}
		monitoring.Logf("scan %s: %d readings inserted, %d discarded", res.Scan.ID, res.Scan.Inserted, res.Scan.Discarded)
		a.finish(*show, *record)
		return
	}

	database, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	hub := api.NewHub()
	a.surveyor.Store = database
	a.surveyor.Hub = hub

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		monitoring.Logf("websocket hub stopped")
		return nil
	})

	g.Go(func() error {
		defer monitoring.Logf("survey routine terminated")
		return a.surveyor.Run(gctx, cfg.GetScanInterval())
	})

	// HTTP server
	mux := api.NewServer(api.Deps{
		Mapper:    a.mapper,
		Lidar:     a.lidar,
		IR:        a.ir,
		Surveyor:  a.surveyor,
		Navigator: a.nav,
		Scans:     database,
		Hub:       hub,
		Metrics:   a.metrics,
	}).ServeMux()
	link.AttachAdminRoutes(mux)
	if err := database.AttachAdminRoutes(mux); err != nil {
		monitoring.Logf("failed to attach db admin routes: %v", err)
	}
	server := &http.Server{
		Addr:    cfg.GetListen(),
		Handler: api.LoggingMiddleware(mux),
	}

	g.Go(func() error {
		monitoring.Logf("listening on %s", cfg.GetListen())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		monitoring.Logf("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			monitoring.Logf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				monitoring.Logf("HTTP server force close error: %v", err)
			}
		}
		monitoring.Logf("HTTP server routine stopped")
		return nil
	})

	if err := g.Wait(); err != nil {
		monitoring.Logf("shutting down after error: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.nav.Stop(stopCtx); err != nil {
		monitoring.Logf("failed to stop robot: %v", err)
	}
	a.finish(*show, *record)
	monitoring.Logf("Graceful shutdown complete")
}
