package flowtable

import (
	"Go2FlowMeter/internal/features"
	"Go2FlowMeter/internal/flow"
	"Go2FlowMeter/internal/model"
	"bufio"
	"hash/fnv"
	"io"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

const (
	// DefaultFlowTimeout is the maximum flow age in microseconds before a flow is replaced.
	DefaultFlowTimeout int64 = 120000000
	// DefaultActivityTimeout is the pause in microseconds that ends an active window.
	DefaultActivityTimeout int64 = 5000000

	defaultShardCount = 64
)

// LineSeparator terminates every line written by Dump.
var LineSeparator = "\n"

func init() {
	if runtime.GOOS == "windows" {
		LineSeparator = "\r\n"
	}
}

// CloseReason tells why a flow left the table.
type CloseReason int

const (
	// ReasonTimeout means the flow was older than the flow timeout and was replaced.
	ReasonTimeout CloseReason = iota
	// ReasonFIN means the flow received a TCP FIN.
	ReasonFIN
	// ReasonExpired means Sweep removed the flow.
	ReasonExpired
)

func (r CloseReason) String() string {
	switch r {
	case ReasonTimeout:
		return "timeout"
	case ReasonFIN:
		return "fin"
	case ReasonExpired:
		return "expired"
	}
	return "unknown"
}

// CloseFunc receives every flow removed from the table, after its last packet was folded.
// It is called without any table lock held and owns f.
type CloseFunc func(f *flow.Flow, reason CloseReason)

// Options configures a Table. Zero timeouts select the defaults.
type Options struct {
	Bidirectional   bool
	FlowTimeout     int64
	ActivityTimeout int64
	NumShards       uint32
	// Separator joins the values of a dumped row. Empty means features.DefaultSeparator.
	Separator string
	// OnClose is nil by default: flows closed by timeout or FIN are discarded.
	OnClose CloseFunc
}

type shard struct {
	mu    sync.RWMutex
	flows map[string]*flow.Flow
}

// Table owns the active flows. Both directions of a conversation hash to the
// same shard, and the shard lock covers the routing decision together with the
// flow update, so packets of one flow never race.
type Table struct {
	opts       Options
	shards     []*shard
	shardCount uint32
	newest     atomic.Int64
}

// New creates an empty table.
func New(opts Options) *Table {
	if opts.FlowTimeout <= 0 {
		opts.FlowTimeout = DefaultFlowTimeout
	}
	if opts.ActivityTimeout <= 0 {
		opts.ActivityTimeout = DefaultActivityTimeout
	}
	if opts.NumShards == 0 || opts.NumShards >= 32768 {
		opts.NumShards = defaultShardCount
	}
	if opts.Separator == "" {
		opts.Separator = features.DefaultSeparator
	}
	t := &Table{
		opts:       opts,
		shards:     make([]*shard, opts.NumShards),
		shardCount: opts.NumShards,
	}
	for i := range t.shards {
		t.shards[i] = &shard{flows: make(map[string]*flow.Flow)}
	}
	return t
}

// Options returns the effective options.
func (t *Table) Options() Options { return t.opts }

// AddPacket routes rec to its flow, creating, replacing or closing flows as needed.
func (t *Table) AddPacket(rec *model.PacketRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	t.observe(rec.Timestamp)

	s := t.getShard(rec.FiveTuple)
	s.mu.Lock()
	closed, reason, err := t.route(s, rec)
	s.mu.Unlock()

	if closed != nil && t.opts.OnClose != nil {
		t.opts.OnClose(closed, reason)
	}
	return err
}

// route must be called with s.mu held.
func (t *Table) route(s *shard, rec *model.PacketRecord) (*flow.Flow, CloseReason, error) {
	key := flow.ForwardID(rec.FiveTuple)
	f, ok := s.flows[key]
	if !ok {
		key = flow.BackwardID(rec.FiveTuple)
		f, ok = s.flows[key]
	}
	if !ok {
		nf, err := flow.New(t.opts.Bidirectional, rec)
		if err != nil {
			return nil, 0, err
		}
		s.flows[nf.ForwardKey()] = nf
		return nil, 0, nil
	}

	switch {
	case rec.Timestamp-f.StartTime() > t.opts.FlowTimeout:
		nf, err := flow.NewWithAddressing(t.opts.Bidirectional, rec, f.Tuple())
		if err != nil {
			return nil, 0, err
		}
		s.flows[key] = nf
		return f, ReasonTimeout, nil
	case rec.HasFlag(model.FlagFIN):
		err := f.AddPacket(rec)
		delete(s.flows, key)
		return f, ReasonFIN, err
	default:
		f.UpdateActiveIdleTime(rec.Timestamp, t.opts.ActivityTimeout)
		return nil, 0, f.AddPacket(rec)
	}
}

func (t *Table) observe(ts int64) {
	for {
		cur := t.newest.Load()
		if ts <= cur || t.newest.CompareAndSwap(cur, ts) {
			return
		}
	}
}

// Newest returns the largest packet timestamp seen so far.
func (t *Table) Newest() int64 { return t.newest.Load() }

// Get returns a copy of the flow stored under either direction of ft.
func (t *Table) Get(ft model.FiveTuple) (*flow.Flow, bool) {
	s := t.getShard(ft)
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.flows[flow.ForwardID(ft)]
	if !ok {
		f, ok = s.flows[flow.BackwardID(ft)]
	}
	if !ok {
		return nil, false
	}
	c := *f
	return &c, true
}

// Len returns the number of active flows.
func (t *Table) Len() int {
	n := 0
	for _, s := range t.shards {
		s.mu.RLock()
		n += len(s.flows)
		s.mu.RUnlock()
	}
	return n
}

// Snapshot returns copies of all active flows ordered by start time, then key.
// Each shard is copied under its read lock, so no flow is observed half-updated.
func (t *Table) Snapshot() []*flow.Flow {
	parts := make([][]*flow.Flow, t.shardCount)
	var wg sync.WaitGroup
	wg.Add(int(t.shardCount))
	for i := 0; i < int(t.shardCount); i++ {
		go func(i int) {
			defer wg.Done()
			s := t.shards[i]
			s.mu.RLock()
			copied := make([]*flow.Flow, 0, len(s.flows))
			for _, f := range s.flows {
				c := *f
				copied = append(copied, &c)
			}
			s.mu.RUnlock()
			parts[i] = copied
		}(i)
	}
	wg.Wait()

	var out []*flow.Flow
	for _, p := range parts {
		out = append(out, p...)
	}
	SortFlows(out)
	return out
}

// Exportable returns the snapshot restricted to flows with more than one packet.
func (t *Table) Exportable() []*flow.Flow {
	all := t.Snapshot()
	out := all[:0]
	for _, f := range all {
		if f.PacketCount() > 1 {
			out = append(out, f)
		}
	}
	return out
}

// SortFlows orders flows by start time, then forward key.
func SortFlows(flows []*flow.Flow) {
	sort.Slice(flows, func(i, j int) bool {
		if flows[i].StartTime() != flows[j].StartTime() {
			return flows[i].StartTime() < flows[j].StartTime()
		}
		return flows[i].ForwardKey() < flows[j].ForwardKey()
	})
}

// Dump writes header and one row per active flow with more than one packet.
// It returns the number of rows written.
func (t *Table) Dump(sink io.Writer, header string, schema *features.Schema) (int, error) {
	w := bufio.NewWriter(sink)
	if _, err := w.WriteString(header + LineSeparator); err != nil {
		return 0, err
	}
	n := 0
	for _, f := range t.Exportable() {
		if _, err := w.WriteString(strings.Join(f.ToRow(schema), t.opts.Separator) + LineSeparator); err != nil {
			return n, err
		}
		n++
	}
	return n, w.Flush()
}

// Sweep removes flows whose age at now exceeds the flow timeout and reports
// them to OnClose with ReasonExpired. It returns the number of removed flows.
func (t *Table) Sweep(now int64) int {
	var expired []*flow.Flow
	for _, s := range t.shards {
		s.mu.Lock()
		for k, f := range s.flows {
			if now-f.StartTime() > t.opts.FlowTimeout {
				delete(s.flows, k)
				expired = append(expired, f)
			}
		}
		s.mu.Unlock()
	}
	if t.opts.OnClose != nil {
		for _, f := range expired {
			t.opts.OnClose(f, ReasonExpired)
		}
	}
	return len(expired)
}

// Reset drops every active flow without reporting them.
func (t *Table) Reset() {
	for _, s := range t.shards {
		s.mu.Lock()
		s.flows = make(map[string]*flow.Flow)
		s.mu.Unlock()
	}
}

// getShard hashes the direction-independent key so both directions share a shard.
func (t *Table) getShard(ft model.FiveTuple) *shard {
	return t.shards[ShardOf(ft, t.shardCount)]
}

// ShardOf maps ft to one of n buckets, identically for both directions.
func ShardOf(ft model.FiveTuple, n uint32) uint32 {
	hasher := fnv.New32a()
	hasher.Write([]byte(flow.CanonicalID(ft)))
	return hasher.Sum32() % n
}
