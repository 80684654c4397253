package flow

import (
	"Go2FlowMeter/internal/model"
	"errors"
	"fmt"
	"net/netip"
)

// ErrIdentityMismatch is returned when a packet is added to a flow it does not belong to.
var ErrIdentityMismatch = errors.New("packet does not belong to flow")

const (
	// subflowGap is the pause, in microseconds, that starts a new subflow.
	subflowGap = 1000000
	// SubflowActivityThreshold is the active/idle threshold applied when a subflow starts.
	SubflowActivityThreshold = 5000000
)

// tcpFlagOrder indexes Flow.flagCounts.
var tcpFlagOrder = [...]model.TCPFlags{
	model.FlagFIN, model.FlagSYN, model.FlagRST, model.FlagPSH,
	model.FlagACK, model.FlagURG, model.FlagCWR, model.FlagECE,
}

// Flow accumulates the statistics of one conversation. All times are microseconds.
// A Flow holds no references, so copying the struct yields an independent snapshot.
// It is not safe for concurrent use.
type Flow struct {
	bidirectional bool

	// addressing fixed by the first packet, or by the caller on replacement
	src      netip.Addr
	dst      netip.Addr
	srcPort  uint16
	dstPort  uint16
	protocol uint8

	startTime   int64
	lastSeen    int64
	fwdLastSeen int64
	bwdLastSeen int64
	startActive int64
	endActive   int64

	flowLen Stats
	fwdLen  Stats
	bwdLen  Stats
	flowIAT Stats
	fwdIAT  Stats
	bwdIAT  Stats
	active  Stats
	idle    Stats

	fwdBytes     int64
	bwdBytes     int64
	fwdHeader    int64
	bwdHeader    int64
	flagCounts   [len(tcpFlagOrder)]int64
	fwdPSH       int64
	bwdPSH       int64
	fwdURG       int64
	bwdURG       int64
	initWinFwd   int
	initWinBwd   int
	minSegFwd    int64
	actDataFwd   int64

	sfStarted      bool
	sfLastPacketTS int64
	sfCount        int64

	fwdBulk bulkState
	bwdBulk bulkState
}

// New creates a flow whose forward direction is the direction of rec.
func New(bidirectional bool, rec *model.PacketRecord) (*Flow, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return NewWithAddressing(bidirectional, rec, rec.FiveTuple)
}

// NewWithAddressing creates a flow with explicit forward addressing and folds rec
// as its first packet. It is used to replace a timed-out flow while keeping its direction.
func NewWithAddressing(bidirectional bool, rec *model.PacketRecord, addressing model.FiveTuple) (*Flow, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	f := &Flow{
		bidirectional: bidirectional,
		src:           addressing.SrcIP,
		dst:           addressing.DstIP,
		srcPort:       addressing.SrcPort,
		dstPort:       addressing.DstPort,
		protocol:      rec.FiveTuple.Protocol,
	}
	if !f.owns(rec.FiveTuple) {
		return nil, fmt.Errorf("%w: %s is not %s", ErrIdentityMismatch, ForwardID(rec.FiveTuple), f.ForwardKey())
	}
	f.firstPacket(rec)
	return f, nil
}

func (f *Flow) firstPacket(rec *model.PacketRecord) {
	ts := rec.Timestamp
	f.updateBulk(rec)
	f.detectSubflows(ts)
	f.countFlags(rec)

	f.startTime = ts
	f.lastSeen = ts
	f.startActive = ts
	f.endActive = ts
	f.flowLen.Add(float64(rec.PayloadBytes))

	if f.IsForward(rec) {
		f.initWinFwd = rec.TCPWindow
		f.minSegFwd = rec.HeaderBytes
		f.addForward(rec)
	} else {
		f.addBackward(rec)
	}
}

// AddPacket folds a packet that belongs to this flow.
func (f *Flow) AddPacket(rec *model.PacketRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if !f.owns(rec.FiveTuple) {
		return fmt.Errorf("%w: %s is not %s", ErrIdentityMismatch, ForwardID(rec.FiveTuple), f.ForwardKey())
	}
	ts := rec.Timestamp

	f.updateBulk(rec)
	f.detectSubflows(ts)
	f.countFlags(rec)

	if f.IsForward(rec) {
		if f.fwdLen.N() == 0 {
			f.initWinFwd = rec.TCPWindow
			f.minSegFwd = rec.HeaderBytes
		}
		f.addForward(rec)
	} else {
		f.addBackward(rec)
	}

	f.flowLen.Add(float64(rec.PayloadBytes))
	f.flowIAT.Add(float64(ts - f.lastSeen))
	f.lastSeen = ts
	return nil
}

func (f *Flow) addForward(rec *model.PacketRecord) {
	ts := rec.Timestamp
	f.fwdLen.Add(float64(rec.PayloadBytes))
	f.fwdBytes += rec.PayloadBytes
	f.fwdHeader += rec.HeaderBytes
	if rec.PayloadBytes >= 1 {
		f.actDataFwd++
	}
	if rec.HeaderBytes < f.minSegFwd {
		f.minSegFwd = rec.HeaderBytes
	}
	if rec.HasFlag(model.FlagPSH) {
		f.fwdPSH++
	}
	if rec.HasFlag(model.FlagURG) {
		f.fwdURG++
	}
	if f.fwdLen.N() > 1 {
		f.fwdIAT.Add(float64(ts - f.fwdLastSeen))
	}
	f.fwdLastSeen = ts
}

func (f *Flow) addBackward(rec *model.PacketRecord) {
	ts := rec.Timestamp
	if f.bwdLen.N() == 0 {
		f.initWinBwd = rec.TCPWindow
	}
	f.bwdLen.Add(float64(rec.PayloadBytes))
	f.bwdBytes += rec.PayloadBytes
	f.bwdHeader += rec.HeaderBytes
	if rec.HasFlag(model.FlagPSH) {
		f.bwdPSH++
	}
	if rec.HasFlag(model.FlagURG) {
		f.bwdURG++
	}
	if f.bwdLen.N() > 1 {
		f.bwdIAT.Add(float64(ts - f.bwdLastSeen))
	}
	f.bwdLastSeen = ts
}

// IsForward reports whether rec travels in the flow's forward direction: its
// source address equals the flow's forward source. A unidirectional flow
// counts every packet as forward.
func (f *Flow) IsForward(rec *model.PacketRecord) bool {
	if !f.bidirectional {
		return true
	}
	return rec.FiveTuple.SrcIP == f.src
}

// isBulkForward picks the bulk detector for rec. It is kept apart from IsForward:
// bulk accounting always splits by source address, even on unidirectional flows.
func (f *Flow) isBulkForward(rec *model.PacketRecord) bool {
	return rec.FiveTuple.SrcIP == f.src
}

func (f *Flow) updateBulk(rec *model.PacketRecord) {
	if f.isBulkForward(rec) {
		f.fwdBulk.update(rec.Timestamp, rec.PayloadBytes)
	} else {
		f.bwdBulk.update(rec.Timestamp, rec.PayloadBytes)
	}
}

// detectSubflows counts a new subflow whenever more than a second passed since
// the previous packet of the flow, whatever its direction.
func (f *Flow) detectSubflows(ts int64) {
	if !f.sfStarted {
		f.sfStarted = true
		f.sfLastPacketTS = ts
	}
	if ts-f.sfLastPacketTS > subflowGap {
		f.sfCount++
		f.UpdateActiveIdleTime(ts, SubflowActivityThreshold)
	}
	f.sfLastPacketTS = ts
}

// UpdateActiveIdleTime closes the current active window when more than threshold
// microseconds passed since it was last extended, recording the active and idle
// durations, and otherwise extends it to currentTime.
func (f *Flow) UpdateActiveIdleTime(currentTime, threshold int64) {
	if currentTime-f.endActive > threshold {
		if d := f.endActive - f.startActive; d > 0 {
			f.active.Add(float64(d))
		}
		f.idle.Add(float64(currentTime - f.endActive))
		f.startActive = currentTime
	}
	f.endActive = currentTime
}

func (f *Flow) countFlags(rec *model.PacketRecord) {
	for i, flag := range tcpFlagOrder {
		if rec.HasFlag(flag) {
			f.flagCounts[i]++
		}
	}
}

// owns reports whether ft is the flow's tuple in either direction.
func (f *Flow) owns(ft model.FiveTuple) bool {
	fwd := ft.SrcIP == f.src && ft.DstIP == f.dst && ft.SrcPort == f.srcPort && ft.DstPort == f.dstPort
	bwd := ft.SrcIP == f.dst && ft.DstIP == f.src && ft.SrcPort == f.dstPort && ft.DstPort == f.srcPort
	return (fwd || bwd) && ft.Protocol == f.protocol
}
