package persistent

import (
	"Go2FlowMeter/internal/config"
	"Go2FlowMeter/internal/model"
	"bufio"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	log "github.com/sirupsen/logrus"
)

// PacketContainer holds both the raw packet and the parsed record.
type PacketContainer struct {
	RawPacket gopacket.Packet
	Record    *model.PacketRecord
}

// Worker manages a pool of goroutines for persistently writing packets to disk.
type Worker struct {
	packetChan chan *PacketContainer
	wg         sync.WaitGroup
	stopOnce   sync.Once

	stateMu sync.RWMutex // guards stopped and the close of packetChan
	stopped bool

	mu    sync.Mutex // guards the encoder below
	file  *os.File
	write func(c *PacketContainer) error
	flush func() error
}

// NewWorker creates the output file and starts the worker pool.
func NewWorker(cfg config.PersistenceConfig) (*Worker, error) {
	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create persistence directory: %w", err)
	}

	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	w := &Worker{packetChan: make(chan *PacketContainer, bufferSize)}

	file, err := createOutputFile(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	w.file = file

	switch cfg.Encoding {
	case "gob":
		enc := gob.NewEncoder(file)
		w.write = func(c *PacketContainer) error { return enc.Encode(c.Record) }
		w.flush = func() error { return nil }
	case "text":
		bw := bufio.NewWriter(file)
		w.write = func(c *PacketContainer) error {
			_, err := bw.WriteString(FormatText(c.Record))
			return err
		}
		w.flush = bw.Flush
	case "pcap":
		// the archive assumes Ethernet frames, as produced by the live probe
		pw := pcapgo.NewWriter(file)
		if err := pw.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write pcap header: %w", err)
		}
		w.write = func(c *PacketContainer) error {
			if c.RawPacket == nil {
				return errors.New("no raw packet to archive")
			}
			return pw.WritePacket(c.RawPacket.Metadata().CaptureInfo, c.RawPacket.Data())
		}
		w.flush = func() error { return nil }
	default:
		file.Close()
		return nil, fmt.Errorf("unknown persistence encoding '%s'", cfg.Encoding)
	}

	numWorkers := cfg.NumWorkers
	if numWorkers <= 0 {
		numWorkers = 1
	}
	w.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go w.run()
	}
	log.Printf("Persistent worker started with %d goroutines, encoding: %s, writing to: %s", numWorkers, cfg.Encoding, file.Name())
	return w, nil
}

func createOutputFile(cfg config.PersistenceConfig) (*os.File, error) {
	ext := ".log"
	switch cfg.Encoding {
	case "gob":
		ext = ".gob"
	case "pcap":
		ext = ".pcap"
	}
	fileName := fmt.Sprintf("%s%s", time.Now().Format("2006-01-02_15-04-05.000000"), ext)
	return os.OpenFile(filepath.Join(cfg.Path, fileName), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
}

func (w *Worker) run() {
	defer w.wg.Done()
	for c := range w.packetChan {
		w.mu.Lock()
		err := w.write(c)
		w.mu.Unlock()
		if err != nil {
			log.Printf("PersistentWorker: Error writing packet: %v", err)
		}
	}
}

// FormatText renders a record as one archive line.
func FormatText(rec *model.PacketRecord) string {
	return fmt.Sprintf("%s - %s:%d -> %s:%d, Proto: %d, Payload: %d, Header: %d, Flags: %08b\n",
		time.UnixMicro(rec.Timestamp).UTC().Format("2006-01-02 15:04:05.000000"),
		rec.FiveTuple.SrcIP,
		rec.FiveTuple.SrcPort,
		rec.FiveTuple.DstIP,
		rec.FiveTuple.DstPort,
		rec.FiveTuple.Protocol,
		rec.PayloadBytes,
		rec.HeaderBytes,
		uint8(rec.Flags),
	)
}

// Path returns the archive file path.
func (w *Worker) Path() string { return w.file.Name() }

// Stop drains the queue, flushes and closes the file.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.stateMu.Lock()
		w.stopped = true
		close(w.packetChan)
		w.stateMu.Unlock()

		w.wg.Wait()
		if err := w.flush(); err != nil {
			log.Printf("PersistentWorker: Error flushing file: %v", err)
		}
		if err := w.file.Close(); err != nil {
			log.Printf("PersistentWorker: Error closing file: %v", err)
		}
		log.Println("Persistent worker stopped and file closed.")
	})
}

// Enqueue hands a packet to the pool. It never blocks: when the queue is full
// or the worker is stopped the packet is dropped.
func (w *Worker) Enqueue(container *PacketContainer) bool {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	if w.stopped {
		return false
	}
	select {
	case w.packetChan <- container:
		return true
	default:
		log.Println("PersistentWorker: Channel is full, dropping packet.")
		return false
	}
}

// ReadGob reads every record of a gob archive.
func ReadGob(path string) ([]*model.PacketRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := gob.NewDecoder(f)
	var out []*model.PacketRecord
	for {
		var rec model.PacketRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		out = append(out, &rec)
	}
}
