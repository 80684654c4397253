package flowtable

import (
	"Go2FlowMeter/internal/features"
	"Go2FlowMeter/internal/model"
	"io"
	"math/rand"
	"net/netip"
	"sync"
	"testing"
)

var benchPackets []*model.PacketRecord

// syntheticPackets returns n records spread over flows conversations, both directions.
func syntheticPackets(n, flows int) []*model.PacketRecord {
	rng := rand.New(rand.NewSource(1))
	tuples := make([]model.FiveTuple, flows)
	for i := range tuples {
		tuples[i] = model.FiveTuple{
			SrcIP:    netip.AddrFrom4([4]byte{10, byte(i >> 16), byte(i >> 8), byte(i)}),
			DstIP:    netip.AddrFrom4([4]byte{192, 168, byte(rng.Intn(256)), byte(rng.Intn(256))}),
			SrcPort:  uint16(rng.Intn(60000) + 1024),
			DstPort:  443,
			Protocol: model.ProtocolTCP,
		}
	}
	out := make([]*model.PacketRecord, n)
	for i := range out {
		ft := tuples[rng.Intn(flows)]
		if rng.Intn(2) == 0 {
			ft = ft.Reverse()
		}
		out[i] = packet(ft, int64(i)*100, int64(rng.Intn(1400)), model.FlagACK)
	}
	return out
}

func loadBenchPackets() {
	if benchPackets == nil {
		benchPackets = syntheticPackets(200000, 5000)
	}
}

func BenchmarkAddPacket(b *testing.B) {
	loadBenchPackets()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		table := New(Options{Bidirectional: true})
		for _, rec := range benchPackets {
			table.AddPacket(rec)
		}
	}
}

// BenchmarkAddPacketParallel routes packets to workers by ShardOf, the way the engine does.
func BenchmarkAddPacketParallel(b *testing.B) {
	loadBenchPackets()
	const workers = 8
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		table := New(Options{Bidirectional: true})
		chans := make([]chan *model.PacketRecord, workers)
		var wg sync.WaitGroup
		wg.Add(workers)
		for w := range chans {
			chans[w] = make(chan *model.PacketRecord, 1024)
			go func(in <-chan *model.PacketRecord) {
				defer wg.Done()
				for rec := range in {
					table.AddPacket(rec)
				}
			}(chans[w])
		}
		for _, rec := range benchPackets {
			chans[ShardOf(rec.FiveTuple, workers)] <- rec
		}
		for _, c := range chans {
			close(c)
		}
		wg.Wait()
	}
}

func BenchmarkDump(b *testing.B) {
	loadBenchPackets()
	table := New(Options{Bidirectional: true})
	for _, rec := range benchPackets {
		table.AddPacket(rec)
	}
	s, err := features.NewSchema("bench", features.NewKeySet("all"), "")
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := table.Dump(io.Discard, s.Header(), s); err != nil {
			b.Fatal(err)
		}
	}
}
