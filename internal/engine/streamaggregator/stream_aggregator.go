package streamaggregator

import (
	"Go2FlowMeter/internal/config"
	"Go2FlowMeter/internal/engine/manager"
	"Go2FlowMeter/internal/model"
	"Go2FlowMeter/internal/probe"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// StreamAggregator consumes packet records from NATS and feeds them to a manager.
type StreamAggregator struct {
	sub     *probe.Subscriber
	manager *manager.Manager
	cfg     config.ProbeConfig

	// mu orders in-flight NATS callbacks against Stop.
	mu      sync.RWMutex
	stopped bool
}

// NewStreamAggregator creates a new real-time stream aggregator.
func NewStreamAggregator(cfg *config.Config) (*StreamAggregator, error) {
	mgr, err := manager.NewManager(cfg)
	if err != nil {
		return nil, err
	}
	return New(cfg.Probe, mgr), nil
}

// New wraps an existing manager.
func New(cfg config.ProbeConfig, mgr *manager.Manager) *StreamAggregator {
	return &StreamAggregator{manager: mgr, cfg: cfg}
}

// Manager returns the underlying manager.
func (sa *StreamAggregator) Manager() *manager.Manager { return sa.manager }

// Start connects to NATS, starts the underlying manager, and begins processing messages.
func (sa *StreamAggregator) Start() error {
	log.Println("StreamAggregator starting for nats: ", sa.cfg.NATSURL)
	sub, err := probe.NewSubscriber(sa.cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	sa.sub = sub

	// The manager starts its own worker pool and snapshotters.
	sa.manager.Start()

	if err := sa.sub.Start(sa.handlePacket); err != nil {
		sa.sub.Close()
		sa.manager.Stop()
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	return nil
}

// Stop unsubscribes first so no record reaches the manager after its input closes.
func (sa *StreamAggregator) Stop() {
	log.Println("StreamAggregator stopping...")
	if sa.sub != nil {
		sa.sub.Close()
	}
	sa.mu.Lock()
	sa.stopped = true
	sa.mu.Unlock()
	// Stop the underlying manager, which drains its workers before the final snapshot.
	sa.manager.Stop()
	log.Println("StreamAggregator stopped.")
}

// handlePacket passes a decoded record to the manager unless Stop has begun.
func (sa *StreamAggregator) handlePacket(rec *model.PacketRecord) {
	sa.mu.RLock()
	defer sa.mu.RUnlock()
	if sa.stopped {
		return
	}
	sa.manager.Input(rec)
}
