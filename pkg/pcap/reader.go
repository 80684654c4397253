package pcap

import (
	"Go2FlowMeter/internal/engine/protocol"
	"Go2FlowMeter/internal/model"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	log "github.com/sirupsen/logrus"
)

// Stats counts the packets seen by a Reader.
type Stats struct {
	Total     int64
	Valid     int64
	Discarded int64
	// First and Last are the capture timestamps, in microseconds, of the first and last valid packet.
	First int64
	Last  int64
}

// Reader reads packets from a pcap or pcapng file.
type Reader struct {
	file     *os.File
	source   gopacket.PacketDataSource
	linkType layers.LinkType
	parser   *protocol.Parser
}

// NewReader opens filePath. Classic pcap is tried first, then pcapng.
func NewReader(filePath string, parser *protocol.Parser) (*Reader, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	r := &Reader{file: f, parser: parser}

	if pr, err := pcapgo.NewReader(f); err == nil {
		r.source, r.linkType = pr, pr.LinkType()
		return r, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	ng, err := pcapgo.NewNgReader(f, pcapgo.DefaultNgReaderOptions)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s is neither pcap nor pcapng: %w", filePath, err)
	}
	r.source, r.linkType = ng, ng.LinkType()
	return r, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// ReadPackets reads all packets from the file and sends the parsed records to
// out, numbering them from 1. It closes the channel when done.
func (r *Reader) ReadPackets(out chan<- *model.PacketRecord) Stats {
	return r.ReadPacketsContext(context.Background(), out)
}

// ReadPacketsContext is ReadPackets that stops early once ctx is done.
func (r *Reader) ReadPacketsContext(ctx context.Context, out chan<- *model.PacketRecord) Stats {
	defer close(out)

	var stats Stats
	packetSource := gopacket.NewPacketSource(r.source, r.linkType)
	packetSource.DecodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}
	for ctx.Err() == nil {
		packet, err := packetSource.NextPacket()
		if err != nil {
			if err != io.EOF {
				log.Printf("Stopped reading capture after %d packets: %v", stats.Total, err)
			}
			break
		}
		stats.Total++
		rec, err := r.parser.Parse(packet)
		if err != nil {
			stats.Discarded++
			log.Debugf("Skipping packet %d: %v", stats.Total, err)
			continue
		}
		stats.Valid++
		rec.ID = stats.Valid
		if stats.First == 0 {
			stats.First = rec.Timestamp
		}
		stats.Last = rec.Timestamp
		select {
		case out <- rec:
		case <-ctx.Done():
			return stats
		}
	}
	return stats
}

// Capture file magic numbers.
const (
	magicMicroseconds = 0xa1b2c3d4
	magicNanoseconds  = 0xa1b23c4d
	magicPcapNG       = 0x0a0d0d0a
)

// IsCapture reports whether the file starts with a pcap or pcapng magic number.
func IsCapture(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	var head [4]byte
	if _, err := io.ReadFull(f, head[:]); err != nil {
		return false
	}
	for _, order := range []binary.ByteOrder{binary.BigEndian, binary.LittleEndian} {
		switch order.Uint32(head[:]) {
		case magicMicroseconds, magicNanoseconds, magicPcapNG:
			return true
		}
	}
	return false
}
