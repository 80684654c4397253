package main

import (
	"Go2FlowMeter/internal/engine/protocol"
	"Go2FlowMeter/internal/model"
	"Go2FlowMeter/pkg/pcap"
	"flag"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

func main() {
	limit := flag.Int("n", 5, "Number of packet records to print")
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Println("Usage: go run ./scripts/pcapana [-n count] <path_to_pcap_file>")
		os.Exit(1)
	}
	pcapFilePath := flag.Arg(0)

	reader, err := pcap.NewReader(pcapFilePath, protocol.NewParser(true, true))
	if err != nil {
		log.Fatal(err)
	}
	defer reader.Close()

	records := make(chan *model.PacketRecord, 1024)
	done := make(chan pcap.Stats)
	go func() { done <- reader.ReadPackets(records) }()

	i := 0
	for rec := range records {
		i++
		if i > *limit {
			continue // keep draining so the totals are complete
		}
		fmt.Printf("[%s] %s:%d -> %s:%d proto=%d payload=%d header=%d flags=%08b\n",
			time.UnixMicro(rec.Timestamp).Format("15:04:05.000"),
			rec.FiveTuple.SrcIP, rec.FiveTuple.SrcPort,
			rec.FiveTuple.DstIP, rec.FiveTuple.DstPort,
			rec.FiveTuple.Protocol, rec.PayloadBytes, rec.HeaderBytes, uint8(rec.Flags),
		)
	}
	stats := <-done
	fmt.Printf("total=%d valid=%d discarded=%d\n", stats.Total, stats.Valid, stats.Discarded)
}
