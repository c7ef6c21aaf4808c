// spatialvcs: detection streaming server with spatial persistence and
// live-diff tracking. Probes stream detection frames in over websockets,
// dashboards watch the tracked state, and past scans can be replayed as
// diff references.
package main

import (
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spatialvcs/go-spatialvcs/internal/config"
	"github.com/spatialvcs/go-spatialvcs/internal/log"
	"github.com/spatialvcs/go-spatialvcs/pkg/scanstore"
	"github.com/spatialvcs/go-spatialvcs/pkg/web"
)

// Env vars seed the flag defaults, matching container deployments;
// an explicit flag still wins.
var (
	port   = flag.String("port", config.Port(), "HTTP server port (defaults to PORT)")
	dbPath = flag.String("db", config.ScanDB(), "sqlite scan database path (defaults to SCAN_DB)")
	debug  = flag.Bool("debug", false, "enable request logging")
)

func main() {
	flag.Parse()
	log.Init(config.LogLevel())

	if *dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
			log.Fatal("create data dir failed", "path", *dbPath, "error", err)
		}
	}

	store, err := scanstore.Open(*dbPath)
	if err != nil {
		log.Fatal("open scan store failed", "path", *dbPath, "error", err)
	}
	defer store.Close()

	srv := web.NewServer(*port, store, *debug)

	go func() {
		log.Info("spatialvcs starting",
			"port", *port,
			"db", *dbPath,
			"probe_ws", "/ws/probe/:id",
			"dashboard_ws", "/ws/dashboard/:id")
		if err := srv.Start(); err != nil {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	if err := srv.Shutdown(); err != nil {
		log.Error("shutdown error", "error", err)
	}
}
