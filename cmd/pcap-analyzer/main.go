package main

import (
	"Go2FlowMeter/internal/config"
	"Go2FlowMeter/internal/engine/manager"
	"Go2FlowMeter/internal/engine/protocol"
	"Go2FlowMeter/internal/features"
	"Go2FlowMeter/internal/logging"
	"Go2FlowMeter/internal/model"
	"Go2FlowMeter/pkg/pcap"
	"flag"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
)

// pcap-analyzer replays a capture file through the live engine pipeline, so the
// configured writers receive the same snapshots fm-engine would produce.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	flag.Parse()

	// 1. Get pcap file path from command-line arguments
	if flag.NArg() < 1 {
		fmt.Println("Usage: go run ./cmd/pcap-analyzer [-config path] <path_to_pcap_file>")
		os.Exit(1)
	}
	pcapFilePath := flag.Arg(0)

	// 2. Load configuration
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
	log.Println("Configuration loaded successfully.")

	// 3. Initialize modules
	managerImpl, err := manager.NewManager(cfg)
	if err != nil {
		log.Fatalf("Failed to create manager: %v", err)
	}

	parser := protocol.NewParser(cfg.Extractor.IPv4Enabled(), cfg.Extractor.IPv6Enabled())
	pcapReader, err := pcap.NewReader(pcapFilePath, parser)
	if err != nil {
		log.Fatalf("Failed to open pcap file: %v", err)
	}
	defer pcapReader.Close()
	log.Printf("Reading packets from '%s'...", pcapFilePath)

	// 4. Start the processing pipeline
	managerImpl.Start()

	// 5. Start reading packets and feeding them to the manager
	records := make(chan *model.PacketRecord, 1024)
	done := make(chan pcap.Stats)
	go func() { done <- pcapReader.ReadPackets(records) }()
	for rec := range records {
		managerImpl.Input(rec)
	}
	stats := <-done
	log.Printf("Finished reading %d packets (%d valid, %d discarded).", stats.Total, stats.Valid, stats.Discarded)

	// 6. Graceful shutdown takes the final snapshot for every writer
	managerImpl.Stop()
	st := managerImpl.Stats()
	log.Printf("Shutdown complete: %d flows active, %d closed.", st.ActiveFlows, st.Closed)
}
