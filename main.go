package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"ringkv/api"
	"ringkv/cluster"
	"ringkv/config"
	"ringkv/discovery"
	"ringkv/monitoring"
	"ringkv/replication"
	"ringkv/storage"
)

func main() {
	configFile := flag.String("config", "config.json", "Path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logrus.Fatalf("Error loading config from %s: %v", *configFile, err)
	}

	monitoring.SetupLogger(cfg.Log.Level)

	// Core components, wired leaf-first.
	self := cluster.NewNode(cfg.Server.Host, cfg.Server.Port)
	ring := cluster.NewRing()
	store := storage.NewTieredStore(cfg.Replication.Factor, cluster.HashKey)
	peerClient := replication.NewClient(2 * time.Second)
	coordinator := cluster.NewCoordinator(self, ring, store, peerClient, cfg.Replication.Factor)

	registry, err := buildRegistry(cfg)
	if err != nil {
		logrus.Fatalf("Error building peer registry: %v", err)
	}

	watcher := cluster.NewWatcher(self, registry, coordinator, cluster.DefaultWatchInterval)

	metrics := monitoring.NewMetrics()
	healthChecker := monitoring.NewHealthChecker(store, ring, coordinator)
	handlers := api.NewHandlers(coordinator, ring, store)

	router := mux.NewRouter()
	router.Handle("/metrics", metrics.Handler()).Methods("GET")
	router.HandleFunc("/health/details", healthChecker.Handler).Methods("GET")
	handlers.Register(router)

	router.Use(monitoring.LoggerMiddleware)
	router.Use(metrics.Middleware)

	watcher.Start()
	go updateMetrics(metrics, ring, store, coordinator)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logrus.WithFields(logrus.Fields{
			"node":               self.ID,
			"replication_factor": cfg.Replication.Factor,
			"discovery":          cfg.Discovery.Mode,
		}).Info("Server starting")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server...")

	watcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Fatalf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}

func buildRegistry(cfg *config.Config) (discovery.Registry, error) {
	switch cfg.Discovery.Mode {
	case "static":
		return discovery.NewStaticRegistry(cfg.Discovery.Nodes, 2*time.Second), nil
	case "kubernetes":
		k := cfg.Discovery.Kubernetes
		return discovery.NewKubernetesRegistry(k.Namespace, k.Service, k.Port)
	default:
		return nil, fmt.Errorf("unknown discovery mode %q", cfg.Discovery.Mode)
	}
}

func updateMetrics(metrics *monitoring.Metrics, ring *cluster.Ring, store *storage.TieredStore, coordinator *cluster.Coordinator) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		metrics.UpdateClusterMetrics(ring, store, coordinator)
	}
}
