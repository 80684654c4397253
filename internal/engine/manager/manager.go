package manager

import (
	"Go2FlowMeter/internal/config"
	"Go2FlowMeter/internal/factory"
	"Go2FlowMeter/internal/features"
	"Go2FlowMeter/internal/flow"
	"Go2FlowMeter/internal/flowtable"
	"Go2FlowMeter/internal/metrics"
	"Go2FlowMeter/internal/model"
	"Go2FlowMeter/internal/writer"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

const metricsSource = "engine"

// Stats is a point-in-time view of the manager counters.
type Stats struct {
	Profile     string `json:"profile"`
	ActiveFlows int    `json:"active_flows"`
	Processed   uint64 `json:"processed"`
	Rejected    uint64 `json:"rejected"`
	Closed      uint64 `json:"closed"`
	Writers     int    `json:"writers"`
	NewestTS    int64  `json:"newest_ts"`
}

// closedQueue buffers rows of closed flows until the next snapshot of one writer.
type closedQueue struct {
	mu     sync.Mutex
	rows   [][]string
	values [][]interface{}
}

func (q *closedQueue) push(row []string, values []interface{}) {
	q.mu.Lock()
	q.rows = append(q.rows, row)
	q.values = append(q.values, values)
	q.mu.Unlock()
}

func (q *closedQueue) drain() ([][]string, [][]interface{}) {
	q.mu.Lock()
	defer q.mu.Unlock()
	rows, values := q.rows, q.values
	q.rows, q.values = nil, nil
	return rows, values
}

// Manager feeds live packet records into one flow table and snapshots it to
// every configured writer.
type Manager struct {
	table   *flowtable.Table
	schema  *features.Schema
	writers []model.Writer
	closed  []*closedQueue

	// Worker pool. Each worker owns the flows that hash to its channel, so
	// packets of one flow are applied in arrival order.
	packetChannels []chan *model.PacketRecord
	numWorkers     int
	workerWg       sync.WaitGroup

	sweepExpired  bool
	sweepPeriod   time.Duration
	done          chan struct{}
	snapshotterWg sync.WaitGroup
	sweeperWg     sync.WaitGroup

	processed atomic.Uint64
	rejected  atomic.Uint64
	closedCnt atomic.Uint64
}

// NewManager builds the writers configured for the engine and the manager around them.
func NewManager(cfg *config.Config) (*Manager, error) {
	writers, err := factory.CreateWriters(cfg.Engine.Writers)
	if err != nil {
		return nil, err
	}
	return NewWithWriters(cfg, writers)
}

// NewWithWriters creates a manager for the engine profile that snapshots to writers.
func NewWithWriters(cfg *config.Config, writers []model.Writer) (*Manager, error) {
	def, ok := cfg.Extractor.Profile(cfg.Engine.Profile)
	if !ok {
		return nil, fmt.Errorf("engine profile '%s' is not defined", cfg.Engine.Profile)
	}
	schema, err := features.NewSchema(def.Name, features.NewKeySet(def.Features...), def.Label)
	if err != nil {
		return nil, fmt.Errorf("profile '%s': %w", def.Name, err)
	}

	numWorkers := cfg.Engine.NumWorkers
	if numWorkers <= 0 {
		numWorkers = 1
	}
	m := &Manager{
		schema:         schema,
		writers:        writers,
		numWorkers:     numWorkers,
		packetChannels: make([]chan *model.PacketRecord, numWorkers),
		sweepExpired:   cfg.Engine.SweepExpired,
		sweepPeriod:    time.Duration(cfg.Extractor.ActivityTimeout) * time.Microsecond,
		done:           make(chan struct{}),
	}
	perWorker := cfg.Engine.SizeOfPacketChannel / numWorkers
	for i := range m.packetChannels {
		m.packetChannels[i] = make(chan *model.PacketRecord, perWorker)
	}
	for range writers {
		m.closed = append(m.closed, &closedQueue{})
	}

	opts := flowtable.Options{
		Bidirectional:   cfg.Extractor.IsBidirectional(),
		FlowTimeout:     cfg.Extractor.FlowTimeout,
		ActivityTimeout: cfg.Extractor.ActivityTimeout,
		NumShards:       cfg.Extractor.NumShards,
		Separator:       cfg.Extractor.FieldSeparator,
		OnClose:         m.onClose,
	}
	if !cfg.Extractor.ExportClosedFlows {
		opts.OnClose = func(_ *flow.Flow, reason flowtable.CloseReason) {
			m.closedCnt.Add(1)
			metrics.FlowsClosed.WithLabelValues(reason.String()).Inc()
		}
	}
	m.table = flowtable.New(opts)
	return m, nil
}

func (m *Manager) onClose(f *flow.Flow, reason flowtable.CloseReason) {
	m.closedCnt.Add(1)
	metrics.FlowsClosed.WithLabelValues(reason.String()).Inc()
	if f.PacketCount() <= 1 {
		return
	}
	row, values := f.ToRow(m.schema), f.Typed(m.schema)
	for _, q := range m.closed {
		q.push(row, values)
	}
}

// Start begins the packet workers, one snapshotter per writer and the optional sweeper.
func (m *Manager) Start() {
	for i, w := range m.writers {
		m.snapshotterWg.Add(1)
		go m.runSnapshotter(w, m.closed[i])
		log.Printf("Started snapshotter for a writer with interval %s.", w.GetInterval())
	}

	if m.sweepExpired && m.sweepPeriod > 0 {
		m.sweeperWg.Add(1)
		go m.runSweeper()
		log.Printf("Started expired-flow sweeper with period %s", m.sweepPeriod)
	}

	m.workerWg.Add(m.numWorkers)
	for i := 0; i < m.numWorkers; i++ {
		go m.worker(m.packetChannels[i])
	}
	log.Printf("Manager started with %d workers for profile '%s'.", m.numWorkers, m.schema.Name())
}

// Input queues rec on the worker owning its flow. It must not be called after Stop.
func (m *Manager) Input(rec *model.PacketRecord) {
	m.packetChannels[flowtable.ShardOf(rec.FiveTuple, uint32(m.numWorkers))] <- rec
}

func (m *Manager) worker(in <-chan *model.PacketRecord) {
	defer m.workerWg.Done()
	for rec := range in {
		if err := m.table.AddPacket(rec); err != nil {
			m.rejected.Add(1)
			metrics.PacketsRejected.WithLabelValues(metricsSource).Inc()
			log.Debugf("Dropping packet %d: %v", rec.ID, err)
			continue
		}
		m.processed.Add(1)
		metrics.PacketsProcessed.WithLabelValues(metricsSource).Inc()
	}
}

// runSnapshotter runs a dedicated snapshot loop for a single writer.
func (m *Manager) runSnapshotter(w model.Writer, q *closedQueue) {
	defer m.snapshotterWg.Done()
	interval := w.GetInterval()
	if interval <= 0 {
		log.Printf("Invalid interval %s for writer, snapshotter will not run.", interval)
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.takeSnapshotForWriter(w, q)
		case <-m.done:
			m.takeSnapshotForWriter(w, q)
			return
		}
	}
}

// Batch renders the active flows with more than one packet, followed by the
// queued closed-flow rows.
func (m *Manager) Batch(closedRows [][]string, closedValues [][]interface{}) *model.FeatureBatch {
	flows := m.table.Exportable()
	batch := &model.FeatureBatch{
		Profile: m.schema.Name(),
		Keys:    m.schema.Keys(),
		Header:  m.schema.Names(),
		Numeric: m.schema.NumericMask(),
		Rows:    make([][]string, 0, len(flows)+len(closedRows)),
		Values:  make([][]interface{}, 0, len(flows)+len(closedRows)),
	}
	for _, f := range flows {
		batch.Rows = append(batch.Rows, f.ToRow(m.schema))
		batch.Values = append(batch.Values, f.Typed(m.schema))
	}
	batch.Rows = append(batch.Rows, closedRows...)
	batch.Values = append(batch.Values, closedValues...)
	return batch
}

// takeSnapshotForWriter builds a batch and hands it to one writer.
func (m *Manager) takeSnapshotForWriter(w model.Writer, q *closedQueue) {
	start := time.Now()
	timestamp := start.Format(writer.SnapshotLayout)
	label := fmt.Sprintf("%T", w)

	batch := m.Batch(q.drain())
	metrics.ActiveFlows.WithLabelValues(metricsSource).Set(float64(m.table.Len()))
	if err := w.Write(batch, timestamp); err != nil {
		log.Printf("Error writing snapshot for profile %s: %v", batch.Profile, err)
		return
	}
	metrics.RowsExported.WithLabelValues(label).Add(float64(batch.Len()))
	metrics.SnapshotDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	log.Debugf("Completed snapshot of %d rows at %s.", batch.Len(), timestamp)
}

// runSweeper removes flows that outlived the flow timeout, measured against
// the newest packet time so replayed captures expire consistently.
func (m *Manager) runSweeper() {
	defer m.sweeperWg.Done()
	ticker := time.NewTicker(m.sweepPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.table.Sweep(m.table.Newest()); n > 0 {
				log.Debugf("Swept %d expired flows", n)
			}
		case <-m.done:
			log.Println("Sweeper shutting down.")
			return
		}
	}
}

// Stop drains the workers, takes a final snapshot for every writer and closes them.
func (m *Manager) Stop() {
	log.Println("Manager stopping...")
	// 1. Stop accepting new packets.
	for _, ch := range m.packetChannels {
		close(ch)
	}

	// 2. Wait for all workers to finish processing buffered packets.
	m.workerWg.Wait()

	// 3. Signal snapshotters and sweeper to take final actions and exit.
	close(m.done)
	m.snapshotterWg.Wait()
	m.sweeperWg.Wait()

	for _, w := range m.writers {
		if err := w.Close(); err != nil {
			log.Warnf("Failed to close writer: %v", err)
		}
	}
	log.Println("Manager stopped.")
}

// Schema returns the compiled schema of the engine profile.
func (m *Manager) Schema() *features.Schema { return m.schema }

// Table exposes the live flow table for read-only queries.
func (m *Manager) Table() *flowtable.Table { return m.table }

// Stats returns the current counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Profile:     m.schema.Name(),
		ActiveFlows: m.table.Len(),
		Processed:   m.processed.Load(),
		Rejected:    m.rejected.Load(),
		Closed:      m.closedCnt.Load(),
		Writers:     len(m.writers),
		NewestTS:    m.table.Newest(),
	}
}
