package main

import (
	"Go2FlowMeter/internal/admin"
	"Go2FlowMeter/internal/config"
	"Go2FlowMeter/internal/engine/streamaggregator"
	"Go2FlowMeter/internal/features"
	"Go2FlowMeter/internal/logging"
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the gRPC health service name reported by the engine.
const HealthService = "flowmeter.engine"

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(func(k string) bool { _, ok := features.ByKey(k); return ok }); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	if err := logging.Setup(cfg.Log); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}
	log.Println("Starting fm-engine...")

	// 2. Initialize and start the stream aggregator
	streamAgg, err := streamaggregator.NewStreamAggregator(cfg)
	if err != nil {
		log.Fatalf("Failed to create stream aggregator: %v", err)
	}
	if err := streamAgg.Start(); err != nil {
		log.Fatalf("Failed to start stream aggregator: %v", err)
	}

	// 3. Admin HTTP server
	var server *http.Server
	if cfg.Engine.AdminListenAddr != "" {
		server = &http.Server{
			Addr:    cfg.Engine.AdminListenAddr,
			Handler: admin.NewRouter(streamAgg.Manager()),
		}
		go func() {
			log.Printf("Admin server starting on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Could not listen on %s: %v", server.Addr, err)
			}
		}()
	}

	// 4. gRPC health service
	var grpcServer *grpc.Server
	healthServer := health.NewServer()
	if cfg.Engine.GrpcListenAddr != "" {
		lis, err := net.Listen("tcp", cfg.Engine.GrpcListenAddr)
		if err != nil {
			log.Fatalf("Failed to listen on %s: %v", cfg.Engine.GrpcListenAddr, err)
		}
		grpcServer = grpc.NewServer()
		healthpb.RegisterHealthServer(grpcServer, healthServer)
		healthServer.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)
		go func() {
			log.Printf("gRPC health server starting on %s", cfg.Engine.GrpcListenAddr)
			if err := grpcServer.Serve(lis); err != nil {
				log.Errorf("gRPC server stopped: %v", err)
			}
		}()
	}

	// 5. Wait for a shutdown signal for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutdown signal received, stopping engine...")
	healthServer.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	streamAgg.Stop()

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Errorf("Admin server forced to shutdown: %v", err)
		}
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	log.Println("Shutdown complete.")
}
