package main

import (
	"Go2FlowMeter/internal/config"
	"Go2FlowMeter/internal/logging"
	"Go2FlowMeter/internal/query"
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logging.Setup(cfg.Log); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	// The querier is optional; row endpoints answer 503 without it.
	var querier query.Querier
	if cfg.API.ClickHouse.Host != "" {
		querier, err = query.NewClickHouseQuerier(cfg.API.ClickHouse)
		if err != nil {
			log.Fatalf("Failed to create querier: %v", err)
		}
		defer querier.Close()
	} else {
		log.Warn("api.clickhouse is not configured, stored-row queries are disabled.")
	}

	apiHandler := &APIHandler{querier: querier, cfg: cfg}
	if cfg.API.EngineHealthAddr != "" {
		engineConn, err := grpc.NewClient(cfg.API.EngineHealthAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			log.Fatalf("Failed to create engine health client: %v", err)
		}
		defer engineConn.Close()
		apiHandler.engine = engineConn
	}

	r := mux.NewRouter()
	apiHandler.register(r)

	server := &http.Server{
		Addr:    cfg.API.HttpListenAddr,
		Handler: r,
	}

	go func() {
		log.Printf("API server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v", server.Addr, err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("API server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("API server exited.")
}
