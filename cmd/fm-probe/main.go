package main

import (
	"Go2FlowMeter/internal/config"
	"Go2FlowMeter/internal/engine/protocol"
	"Go2FlowMeter/internal/logging"
	"Go2FlowMeter/internal/model"
	"Go2FlowMeter/internal/probe"
	"Go2FlowMeter/internal/probe/persistent"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	log "github.com/sirupsen/logrus"
)

const timeout = pcap.BlockForever

func main() {
	// --- Command-Line Flag Parsing ---
	mode := flag.String("mode", "sub", "Operating mode: 'pub' to capture and publish, 'sub' to subscribe and print.")
	iface := flag.String("iface", "", "Interface to capture packets from (overrides probe.iface).")
	read := flag.String("read", "", "Replay a capture file instead of capturing live (pub mode).")
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := logging.Setup(cfg.Log); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}
	if *iface != "" {
		cfg.Probe.Iface = *iface
	}

	// --- Mode Dispatch ---
	switch *mode {
	case "pub":
		runProbe(cfg, *read)
	case "sub":
		runSubscriber(cfg.Probe)
	default:
		fmt.Fprintf(os.Stderr, "Invalid mode: %s\n", *mode)
		flag.Usage()
		os.Exit(1)
	}
}

// openHandle opens the replay file when given, the configured interface otherwise.
func openHandle(cfg config.ProbeConfig, replay string) (*pcap.Handle, error) {
	if replay != "" {
		log.Printf("Starting fm-probe in PROBE mode replaying: %s", replay)
		return pcap.OpenOffline(replay)
	}
	if cfg.Iface == "" {
		return nil, fmt.Errorf("an interface is required for live capture (-iface or probe.iface)")
	}
	log.Printf("Starting fm-probe in PROBE mode on interface: %s", cfg.Iface)
	return pcap.OpenLive(cfg.Iface, cfg.SnapshotLen, cfg.Promiscuous, timeout)
}

// runProbe captures packets, publishes their records to NATS and optionally archives them.
func runProbe(cfg *config.Config, replay string) {
	pub, err := probe.NewPublisher(cfg.Probe)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer pub.Close()

	handle, err := openHandle(cfg.Probe, replay)
	if err != nil {
		log.Fatalf("Error opening capture: %v", err)
	}

	var archive *persistent.Worker
	if cfg.Probe.Persistence.Enabled {
		archive, err = persistent.NewWorker(cfg.Probe.Persistence)
		if err != nil {
			log.Fatalf("Failed to start persistence: %v", err)
		}
		defer archive.Stop()
		log.Printf("Archiving packets to %s", archive.Path())
	}

	parser := protocol.NewParser(cfg.Extractor.IPv4Enabled(), cfg.Extractor.IPv6Enabled())
	log.Println("Capture started successfully. Publishing packets to NATS...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
		var id int64
		for packet := range packetSource.Packets() {
			rec, err := parser.Parse(packet)
			if err != nil {
				continue // Skip packets without TCP or UDP
			}
			id++
			rec.ID = id
			if err := pub.Publish(rec); err != nil {
				log.Printf("Failed to publish packet: %v", err)
			}
			if archive != nil {
				archive.Enqueue(&persistent.PacketContainer{RawPacket: packet, Record: rec})
			}
			if id%1000 == 0 {
				log.Printf("%d packets published...", id)
			}
		}
	}()

	select {
	case <-sigChan:
		log.Println("Shutdown signal received, cleaning up...")
	case <-finished:
		log.Println("Capture finished, cleaning up...")
	}

	// The capture goroutine must be gone before the deferred archive.Stop runs.
	handle.Close()
	<-finished
}

// runSubscriber contains the logic for subscribing to NATS and printing messages.
func runSubscriber(cfg config.ProbeConfig) {
	log.Println("Starting fm-probe in SUBSCRIBER mode...")

	sub, err := probe.NewSubscriber(cfg)
	if err != nil {
		log.Fatalf("Failed to create subscriber: %v", err)
	}
	defer sub.Close()

	handler := func(rec *model.PacketRecord) {
		fmt.Print(persistent.FormatText(rec))
	}
	if err := sub.Start(handler); err != nil {
		log.Fatalf("Subscriber failed to start: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
}
