package main

import (
	"Go2FlowMeter/pkg/pcap"
	"flag"
	"math/rand"
	"net/netip"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
)

// pcapgen writes a capture of synthetic TCP and UDP conversations, useful for
// exercising the extractor without real traffic.
func main() {
	outputFile := flag.String("o", "test.pcap", "Output pcap file path")
	sessionCount := flag.Int("n", 100, "Number of conversations to generate")
	maxPackets := flag.Int("p", 20, "Maximum packets per conversation")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	base := time.Now().Add(-time.Hour)

	log.Printf("Generating %d conversations into %s...", *sessionCount, *outputFile)

	var frames []pcap.Frame
	for i := 0; i < *sessionCount; i++ {
		s := pcap.Session{
			Client:     randomAddr(rng, 10),
			Server:     randomAddr(rng, 192),
			ClientPort: uint16(rng.Intn(65535-1024) + 1024),
			ServerPort: []uint16{53, 80, 443, 8080}[rng.Intn(4)],
			Start:      base.Add(time.Duration(rng.Intn(3600000)) * time.Millisecond),
			Gap:        time.Duration(rng.Intn(2000)+1) * time.Millisecond,
		}
		s.UDP = s.ServerPort == 53
		s.Fin = !s.UDP && rng.Intn(2) == 0

		n := rng.Intn(*maxPackets) + 1
		for j := 0; j < n; j++ {
			size := rng.Intn(1400) + 1
			if rng.Intn(3) == 0 {
				size = -size // server to client
			}
			s.Payloads = append(s.Payloads, size)
		}

		fs, err := s.Frames()
		if err != nil {
			log.Fatalf("Failed to build conversation %d: %v", i, err)
		}
		frames = append(frames, fs...)
	}

	// Interleave the conversations the way a real capture would.
	sort.SliceStable(frames, func(i, j int) bool { return frames[i].Timestamp.Before(frames[j].Timestamp) })

	if err := pcap.WriteFile(*outputFile, frames); err != nil {
		log.Fatalf("Failed to write capture: %v", err)
	}
	log.Printf("Successfully generated %d packets into %s.", len(frames), *outputFile)
}

func randomAddr(rng *rand.Rand, first byte) netip.Addr {
	return netip.AddrFrom4([4]byte{first, byte(rng.Intn(256)), byte(rng.Intn(256)), byte(rng.Intn(254) + 1)})
}
