package flow

const (
	// bulkGap is the longest pause, in microseconds, between packets of one bulk.
	bulkGap = 1000000
	// bulkMinPackets is the packet count at which a candidate becomes a bulk.
	bulkMinPackets = 4
)

// bulkState detects bulk transfers in one direction. A flow owns two of them.
type bulkState struct {
	// candidate
	open         bool
	start        int64
	count        int64
	size         int64
	lastPacketTS int64

	// promoted totals
	stateCount  int64
	packetCount int64
	sizeTotal   int64
	duration    int64
}

// update folds a packet of this direction. Packets without payload are ignored.
func (b *bulkState) update(ts, payload int64) {
	if payload <= 0 {
		return
	}
	if !b.open || ts-b.lastPacketTS > bulkGap {
		b.open = true
		b.start = ts
		b.lastPacketTS = ts
		b.count = 1
		b.size = payload
		return
	}

	b.count++
	b.size += payload
	switch {
	case b.count == bulkMinPackets:
		b.stateCount++
		b.packetCount += b.count
		b.sizeTotal += b.size
		b.duration += ts - b.start
	case b.count > bulkMinPackets:
		b.packetCount++
		b.sizeTotal += payload
		b.duration += ts - b.lastPacketTS
	}
	b.lastPacketTS = ts
}

func (b *bulkState) avgBytesPerBulk() int64 {
	if b.stateCount == 0 {
		return 0
	}
	return b.sizeTotal / b.stateCount
}

func (b *bulkState) avgPacketsPerBulk() int64 {
	if b.stateCount == 0 {
		return 0
	}
	return b.packetCount / b.stateCount
}

// avgRate is bytes per second over the time spent in bulks.
func (b *bulkState) avgRate() int64 {
	if b.duration == 0 {
		return 0
	}
	return int64(float64(b.sizeTotal) / (float64(b.duration) / 1e6))
}
